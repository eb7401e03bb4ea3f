// Package header reads the scanner headers of source files: DICOM, Philips
// PAR and NIfTI-1.
package header

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bidsify/bidsify/internal/metadata"
)

// Format is a source data format.
type Format int

const (
	FormatUnknown Format = iota
	FormatDICOM
	FormatPAR
	FormatNIfTI
)

// String returns the SourceDataFormat value of f.
func (f Format) String() string {
	switch f {
	case FormatDICOM:
		return "DICOM"
	case FormatPAR:
		return "PAR REC"
	case FormatNIfTI:
		return "NIFTI"
	default:
		return "unknown"
	}
}

// DetectFormat classifies path by its file name.
func DetectFormat(path string) Format {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(name, ".dcm"):
		return FormatDICOM
	case strings.HasSuffix(name, ".par"):
		return FormatPAR
	case strings.HasSuffix(name, ".nii"), strings.HasSuffix(name, ".nii.gz"):
		return FormatNIfTI
	default:
		return FormatUnknown
	}
}

// Source is a parsed header.
type Source interface {
	// SearchStrings are the header fields used to classify the file, in
	// fallback order.
	SearchStrings() []string
	// Params derives sidecar fields from the header. sidecar is the
	// converter's JSON sidecar and may be nil.
	Params(sidecar metadata.Values) metadata.Values
	// AcquisitionTime is the scan start recorded in the header.
	AcquisitionTime() (time.Time, bool)
	Format() Format
}

// Open parses the header of path according to its format.
func Open(path string) (Source, error) {
	var (
		src Source
		err error
	)
	switch DetectFormat(path) {
	case FormatDICOM:
		src, err = ReadDICOM(path)
	case FormatPAR:
		src, err = ReadPAR(path)
	case FormatNIfTI:
		src, err = ReadNIfTI(path)
	default:
		return nil, fmt.Errorf("header: unsupported file %s", path)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}
