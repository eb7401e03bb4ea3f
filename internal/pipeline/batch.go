package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/bidsify/bidsify/internal/discovery"
	"github.com/bidsify/bidsify/internal/filesystem"
	"github.com/bidsify/bidsify/internal/services"
)

// Registry is the part of the file registry the batch driver uses.
type Registry interface {
	NameRecorder
	Register(ctx context.Context, in services.RegisterInput) (string, bool, error)
	ScansRows(ctx context.Context, sub, ses string, gzip bool) ([]services.ScansRow, error)
}

// DependencyChecker is implemented by converters that can verify their
// executable before a run.
type DependencyChecker interface {
	Check() error
}

// Summary counts what a batch run did.
type Summary struct {
	Discovered int
	Registered int
	Skipped    int
	Converted  int
	Failed     int
	Outcomes   []Outcome
}

// Batch processes every source file of a study sequentially.
type Batch struct {
	proc     *Processor
	registry Registry
	exclude  []string
	logger   *zap.Logger
}

// NewBatch creates a batch driver. The registry also receives the BIDS
// names assigned by the processor.
func NewBatch(proc *Processor, registry Registry, logger *zap.Logger) *Batch {
	if logger == nil {
		logger = zap.NewNop()
	}
	if proc.names == nil {
		proc.names = registry
	}
	return &Batch{
		proc:     proc,
		registry: registry,
		exclude:  proc.cfg.Exclude,
		logger:   logger,
	}
}

// Run discovers, registers and converts every source file. Files already
// in the registry are skipped. One file's failure never stops the run;
// only dependency, configuration and cancellation errors are returned.
func (b *Batch) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	opts := b.proc.opts

	if checker, ok := b.proc.conv.(DependencyChecker); ok && !opts.DryRun {
		if err := checker.Check(); err != nil {
			return sum, err
		}
	}

	records, err := discovery.Discover(opts.StudyDir, discovery.Options{Exclude: b.exclude, Logger: b.logger})
	if err != nil {
		return sum, err
	}
	sum.Discovered = len(records)

	type sessionKey struct{ sub, ses string }
	touched := make(map[sessionKey]bool)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		if !opts.DryRun {
			fileID, created, err := b.registry.Register(ctx, b.registerInput(rec))
			if err != nil {
				b.logger.Warn("registration failed", zap.String("path", rec.Path), zap.Error(err))
				sum.Failed++
				continue
			}
			if !created {
				b.logger.Info("already processed", zap.String("path", rec.RelPath), zap.String("file_id", fileID))
				sum.Skipped++
				continue
			}
			rec.FileID = fileID
			sum.Registered++
		}

		out, err := b.proc.Process(ctx, rec)
		if err != nil {
			return sum, err
		}
		sum.Outcomes = append(sum.Outcomes, out)
		switch {
		case !out.Empty():
			sum.Converted++
			touched[sessionKey{rec.SubjectID, rec.SessionID}] = true
		case out.Reason == "dry run":
		default:
			sum.Failed++
		}
	}

	if opts.DryRun {
		return sum, nil
	}

	if err := WriteDatasetDescription(opts.OutDir, filepath.Base(opts.StudyDir), opts.BIDSVersion, opts.ToolVersion); err != nil {
		return sum, err
	}

	keys := make([]sessionKey, 0, len(touched))
	for k := range touched {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].sub != keys[j].sub {
			return keys[i].sub < keys[j].sub
		}
		return keys[i].ses < keys[j].ses
	})
	for _, k := range keys {
		if err := b.writeScans(ctx, k.sub, k.ses); err != nil {
			b.logger.Warn("scans file not written", zap.String("sub", k.sub), zap.String("ses", k.ses), zap.Error(err))
		}
	}

	b.logger.Info("batch finished",
		zap.Int("discovered", sum.Discovered),
		zap.Int("converted", sum.Converted),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed))
	return sum, nil
}

// registerInput gathers the registry fields of rec. The acquisition time
// falls back to the file's modification time.
func (b *Batch) registerInput(rec discovery.SourceRecord) services.RegisterInput {
	in := services.RegisterInput{
		RelPath:   rec.RelPath,
		SubjectID: rec.SubjectID,
		SessionID: rec.SessionID,
	}
	if st, err := os.Stat(rec.Path); err == nil {
		in.FileDate = st.ModTime().UTC().Truncate(time.Second)
	}
	in.AcqDate = in.FileDate
	if hdr := b.proc.openHeader(rec.Path); hdr != nil {
		if t, ok := hdr.AcquisitionTime(); ok {
			in.AcqDate = t
		}
	}
	return in
}

func (b *Batch) writeScans(ctx context.Context, sub, ses string) error {
	rows, err := b.registry.ScansRows(ctx, sub, ses, b.proc.opts.Gzip)
	if err != nil {
		return err
	}
	dir := filepath.Join(b.proc.opts.OutDir, "sub-"+sub)
	if ses != "" {
		dir = filepath.Join(dir, "ses-"+ses)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	//nolint:gosec // G304: path is inside the output tree
	f, err := os.Create(filepath.Join(dir, services.ScansFileName(sub, ses)))
	if err != nil {
		return err
	}
	if err := services.WriteScans(f, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

type generatedBy struct {
	Name    string `json:"Name"`
	Version string `json:"Version,omitempty"`
}

type datasetDescription struct {
	Name        string        `json:"Name"`
	BIDSVersion string        `json:"BIDSVersion"`
	DatasetType string        `json:"DatasetType"`
	GeneratedBy []generatedBy `json:"GeneratedBy"`
}

// WriteDatasetDescription creates dataset_description.json in outDir unless
// it already exists.
func WriteDatasetDescription(outDir, name, bidsVersion, toolVersion string) error {
	path := filepath.Join(outDir, "dataset_description.json")
	if filesystem.FileExists(path) {
		return nil
	}
	return filesystem.WriteJSON(path, datasetDescription{
		Name:        name,
		BIDSVersion: bidsVersion,
		DatasetType: "raw",
		GeneratedBy: []generatedBy{{Name: ToolName, Version: toolVersion}},
	})
}

var _ Registry = (*services.RegistryService)(nil)
