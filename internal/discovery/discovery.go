// Package discovery walks a study directory and lists the source files to
// convert, one record per file or DICOM series directory.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/bidsify/bidsify/internal/filesystem"
	"github.com/bidsify/bidsify/internal/heuristic"
)

// SourceRecord identifies one source acquisition. RelPath is relative to
// the parent of the study directory and starts with "./". FileID is empty
// until the record is registered.
type SourceRecord struct {
	SubjectID string
	SessionID string
	Path      string
	RelPath   string
	FileID    string
}

// IsDICOMSeries reports whether the record stands for a DICOM series
// directory.
func (r SourceRecord) IsDICOMSeries() bool {
	return isDICOMFile(r.Path)
}

func isDICOMFile(path string) bool {
	return strings.Contains(strings.ToLower(filepath.Base(path)), ".dcm")
}

// Options control discovery.
type Options struct {
	Exclude []string
	Logger  *zap.Logger
}

// SplitSubjectDir derives subject and session IDs from a subject directory
// name. "001-02" yields ("001", "02"); any other name is the subject ID.
func SplitSubjectDir(name string) (sub, ses string) {
	parts := strings.Split(name, "-")
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return parts[0], parts[1]
	}
	return name, ""
}

// Discover lists the source files below every subject directory of
// studyDir, with excluded paths removed. Records are unique and sorted by
// path.
func Discover(studyDir string, opts Options) ([]SourceRecord, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	root, err := filepath.Abs(studyDir)
	if err != nil {
		return nil, fmt.Errorf("resolve study dir: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("study dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("study dir %s is not a directory", root)
	}

	seen := make(map[string]bool)
	var records []SourceRecord

	err = filesystem.WalkDir(root, func(path string, d fs.DirEntry) error {
		if !d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		sub, ses := SplitSubjectDir(d.Name())

		images, err := globImages(path)
		if err != nil {
			return err
		}
		for _, img := range images {
			if heuristic.ListInSubstr(opts.Exclude, img) {
				logger.Debug("excluded source file", zap.String("path", img))
				continue
			}
			if seen[img] {
				continue
			}
			seen[img] = true
			records = append(records, SourceRecord{
				SubjectID: sub,
				SessionID: ses,
				Path:      img,
				RelPath:   RelativePath(root, img),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	logger.Info("discovered source files",
		zap.String("study_dir", root),
		zap.Int("count", len(records)))
	return records, nil
}

// globImages returns the image files below dir: the first DICOM file of
// each directory, every PAR header and every NIfTI image.
func globImages(dir string) ([]string, error) {
	var images []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		dicomTaken := false
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			lower := strings.ToLower(name)
			switch {
			case strings.Contains(lower, ".dcm"):
				if !dicomTaken {
					images = append(images, filepath.Join(path, name))
					dicomTaken = true
				}
			case strings.HasSuffix(lower, ".par"):
				images = append(images, filepath.Join(path, name))
			case strings.HasSuffix(lower, ".nii") || strings.HasSuffix(lower, ".nii.gz"):
				images = append(images, filepath.Join(path, name))
			}
		}
		return nil
	})
	return images, err
}

// RelativePath renders path relative to the parent of studyDir, prefixed
// with "./". DICOM files are reduced to their series directory.
func RelativePath(studyDir, path string) string {
	target := path
	if isDICOMFile(path) {
		target = filepath.Dir(path)
	}
	rel, err := filepath.Rel(filepath.Dir(studyDir), target)
	if err != nil {
		return target
	}
	return "./" + filepath.ToSlash(rel)
}
