package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqldb "github.com/bidsify/bidsify/internal/database/sqlc"
)

type SourceFileRepository struct {
	ctx *Context
}

func NewSourceFileRepository(dbCtx *Context) *SourceFileRepository {
	return &SourceFileRepository{ctx: dbCtx}
}

func (r *SourceFileRepository) queries() (*sqldb.Queries, error) {
	queries := queriesFromContext(r.ctx)
	if queries == nil {
		return nil, fmt.Errorf("source file repository: missing database context")
	}
	return queries, nil
}

// FindByID returns nil when no record has the id.
func (r *SourceFileRepository) FindByID(ctx context.Context, fileID string) (*SourceFileRecord, error) {
	queries, err := r.queries()
	if err != nil {
		return nil, err
	}

	row, err := queries.FindSourceFileByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	record := mapSourceFileRow(row)
	return &record, nil
}

// FindByRelPath returns nil when the path is not registered.
func (r *SourceFileRepository) FindByRelPath(ctx context.Context, relPath string) (*SourceFileRecord, error) {
	queries, err := r.queries()
	if err != nil {
		return nil, err
	}

	row, err := queries.FindSourceFileByRelPath(ctx, relPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	record := mapSourceFileRow(row)
	return &record, nil
}

func (r *SourceFileRepository) Count(ctx context.Context) (int64, error) {
	queries, err := r.queries()
	if err != nil {
		return 0, err
	}
	return queries.CountSourceFiles(ctx)
}

// Insert stores a new record. FileID and RelPath must be unique.
func (r *SourceFileRepository) Insert(ctx context.Context, rec SourceFileRecord) error {
	queries, err := r.queries()
	if err != nil {
		return err
	}

	return queries.InsertSourceFile(ctx, sqldb.InsertSourceFileParams{
		FileID:   rec.FileID,
		RelPath:  rec.RelPath,
		FileDate: formatTime(rec.FileDate),
		AcqDate:  formatTime(rec.AcqDate),
		SubID:    rec.SubjectID,
		SesID:    rec.SessionID,
	})
}

func (r *SourceFileRepository) List(ctx context.Context, filter SourceFileFilter) ([]SourceFileRecord, error) {
	queries, err := r.queries()
	if err != nil {
		return nil, err
	}

	rows, err := queries.ListSourceFiles(ctx, sqldb.ListSourceFilesParams{
		SubID: filter.SubjectID,
		SesID: filter.SessionID,
	})
	if err != nil {
		return nil, err
	}

	records := make([]SourceFileRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, mapSourceFileRow(row))
	}
	return records, nil
}

// UpdateBIDSName sets the BIDS name and modality type of a record. It
// returns ErrNotFound when no record has the id.
func (r *SourceFileRepository) UpdateBIDSName(ctx context.Context, fileID, modalityType, name string) error {
	queries, err := r.queries()
	if err != nil {
		return err
	}

	affected, err := queries.UpdateSourceFileBidsName(ctx, sqldb.UpdateSourceFileBidsNameParams{
		BidsName:     nullString(name),
		ModalityType: modalityType,
		FileID:       fileID,
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("source file %s: %w", fileID, ErrNotFound)
	}
	return nil
}

func mapSourceFileRow(row sqldb.SourceFile) SourceFileRecord {
	return SourceFileRecord{
		FileID:       row.FileID,
		RelPath:      row.RelPath,
		FileDate:     parseTime(row.FileDate),
		AcqDate:      parseTime(row.AcqDate),
		SubjectID:    row.SubID,
		SessionID:    row.SesID,
		ModalityType: row.ModalityType,
		BIDSName:     optionalString(row.BidsName),
		CreatedAt:    optionalTime(row.CreatedAt),
	}
}
