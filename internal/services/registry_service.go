package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/bidsify/bidsify/internal/bids"
	"github.com/bidsify/bidsify/internal/database"
)

// FileIDWidth is the zero-padded width of registry file IDs.
const FileIDWidth = 7

// RegisterInput describes a source file seen during discovery.
type RegisterInput struct {
	RelPath   string
	SubjectID string
	SessionID string
	FileDate  time.Time
	AcqDate   time.Time
}

// RegistryService records processed source files so repeated runs skip
// them.
type RegistryService struct {
	repo   *database.SourceFileRepository
	logger *zap.Logger
}

// NewRegistryService creates a new RegistryService.
func NewRegistryService(ctx *database.Context, logger *zap.Logger) *RegistryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistryService{
		repo:   database.NewSourceFileRepository(ctx),
		logger: logger,
	}
}

// Register assigns a file ID to in.RelPath. created is false when the path
// was already registered, in which case the existing ID is returned.
func (s *RegistryService) Register(ctx context.Context, in RegisterInput) (string, bool, error) {
	existing, err := s.repo.FindByRelPath(ctx, in.RelPath)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		return existing.FileID, false, nil
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		return "", false, err
	}
	fileID := bids.ZeroPad(int(count)+1, FileIDWidth)

	err = s.repo.Insert(ctx, database.SourceFileRecord{
		FileID:    fileID,
		RelPath:   in.RelPath,
		FileDate:  in.FileDate,
		AcqDate:   in.AcqDate,
		SubjectID: in.SubjectID,
		SessionID: in.SessionID,
	})
	if err != nil {
		if database.IsConstraintError(err) {
			return s.resolveConflict(ctx, in.RelPath, fileID)
		}
		return "", false, fmt.Errorf("register %s: %w", in.RelPath, err)
	}

	s.logger.Debug("registered source file",
		zap.String("rel_path", in.RelPath),
		zap.String("file_id", fileID))
	return fileID, true, nil
}

// resolveConflict handles an insert rejected by a key constraint. The row
// that owns relPath is returned when one exists; an ID collision with
// another path is reported as already processed with no ID.
func (s *RegistryService) resolveConflict(ctx context.Context, relPath, fileID string) (string, bool, error) {
	existing, err := s.repo.FindByRelPath(ctx, relPath)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		s.logger.Info("source file already registered",
			zap.String("rel_path", relPath),
			zap.String("file_id", existing.FileID))
		return existing.FileID, false, nil
	}
	s.logger.Warn("file id collision, treating source file as processed",
		zap.String("rel_path", relPath),
		zap.String("file_id", fileID))
	return "", false, nil
}

// UpdateBIDSName stores the name given to a registered file.
func (s *RegistryService) UpdateBIDSName(ctx context.Context, fileID, modalityType, name string) error {
	return s.repo.UpdateBIDSName(ctx, fileID, modalityType, name)
}

// Get returns the record for fileID or database.ErrNotFound.
func (s *RegistryService) Get(ctx context.Context, fileID string) (*database.SourceFileRecord, error) {
	rec, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("source file %s: %w", fileID, database.ErrNotFound)
	}
	return rec, nil
}

// Lookup returns the record registered for relPath, or nil.
func (s *RegistryService) Lookup(ctx context.Context, relPath string) (*database.SourceFileRecord, error) {
	return s.repo.FindByRelPath(ctx, relPath)
}

// List returns the registered files ordered by file ID.
func (s *RegistryService) List(ctx context.Context, filter database.SourceFileFilter) ([]database.SourceFileRecord, error) {
	return s.repo.List(ctx, filter)
}

// ScansRow is one line of a BIDS scans file.
type ScansRow struct {
	Filename string
	AcqTime  string
}

// ScansRows lists the named files of one subject/session. Filenames are
// relative to the session directory.
func (s *RegistryService) ScansRows(ctx context.Context, sub, ses string, gzip bool) ([]ScansRow, error) {
	records, err := s.repo.List(ctx, database.SourceFileFilter{SubjectID: sub, SessionID: ses})
	if err != nil {
		return nil, err
	}

	ext := ".nii"
	if gzip {
		ext = ".nii.gz"
	}

	var rows []ScansRow
	for _, rec := range records {
		if rec.BIDSName == "" || rec.SessionID != ses {
			continue
		}
		acq := "n/a"
		if !rec.AcqDate.IsZero() {
			acq = rec.AcqDate.Format(database.TimeLayout)
		}
		rows = append(rows, ScansRow{
			Filename: rec.ModalityType + "/" + rec.BIDSName + ext,
			AcqTime:  acq,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Filename < rows[j].Filename })
	return rows, nil
}

// ScansFileName returns "sub-<sub>[_ses-<ses>]_scans.tsv".
func ScansFileName(sub, ses string) string {
	name := "sub-" + sub
	if ses != "" {
		name += "_ses-" + ses
	}
	return name + "_scans.tsv"
}

// WriteScans writes rows as a tab-separated scans table with header.
func WriteScans(w io.Writer, rows []ScansRow) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write([]string{"filename", "acq_time"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write([]string{row.Filename, row.AcqTime}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
