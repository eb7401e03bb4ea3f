package header

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/bidsify/bidsify/internal/metadata"
)

const nifti1HeaderSize = 348

// nifti1Header mirrors the leading fields of the NIfTI-1 header that are
// read here.
type nifti1Header struct {
	SizeofHdr    int32
	DataType     [10]byte
	DBName       [18]byte
	Extents      int32
	SessionError int16
	Regular      byte
	DimInfo      byte
	Dim          [8]int16
	IntentP1     float32
	IntentP2     float32
	IntentP3     float32
	IntentCode   int16
	Datatype     int16
	Bitpix       int16
	SliceStart   int16
	Pixdim       [8]float32
	VoxOffset    float32
	SclSlope     float32
	SclInter     float32
	SliceEnd     int16
	SliceCode    byte
	XYZTUnits    byte
}

// Time unit codes of xyzt_units.
const (
	niftiUnitsSec  = 8
	niftiUnitsMsec = 16
	niftiUnitsUsec = 24
)

// NIfTI is a parsed NIfTI-1 header.
type NIfTI struct {
	Dim       [8]int16
	Pixdim    [8]float32
	XYZTUnits byte
}

// ReadNIfTI reads the header of a .nii or .nii.gz file.
func ReadNIfTI(path string) (*NIfTI, error) {
	//nolint:gosec // G304: path comes from study discovery or converter output
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("read nifti %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	h, err := ParseNIfTI(r)
	if err != nil {
		return nil, fmt.Errorf("read nifti %s: %w", path, err)
	}
	return h, nil
}

// ParseNIfTI decodes a NIfTI-1 header of either byte order.
func ParseNIfTI(r io.Reader) (*NIfTI, error) {
	buf := make([]byte, nifti1HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(buf[:4]) == nifti1HeaderSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(buf[:4]) == nifti1HeaderSize:
		order = binary.BigEndian
	default:
		return nil, errors.New("not a NIfTI-1 header")
	}

	var hdr nifti1Header
	if err := binary.Read(bytes.NewReader(buf), order, &hdr); err != nil {
		return nil, err
	}
	return &NIfTI{Dim: hdr.Dim, Pixdim: hdr.Pixdim, XYZTUnits: hdr.XYZTUnits}, nil
}

// Format implements Source.
func (n *NIfTI) Format() Format { return FormatNIfTI }

// Frames is the number of volumes.
func (n *NIfTI) Frames() int {
	if n.Dim[0] >= 4 && n.Dim[4] > 0 {
		return int(n.Dim[4])
	}
	return 1
}

// RepetitionTime is pixdim[4] in seconds rounded to milliseconds. A zero
// spacing means unknown.
func (n *NIfTI) RepetitionTime() (float64, bool) {
	tr := float64(n.Pixdim[4])
	if tr == 0 || math.IsNaN(tr) {
		return 0, false
	}
	switch n.XYZTUnits & 0x38 {
	case niftiUnitsMsec:
		tr /= 1000
	case niftiUnitsUsec:
		tr /= 1e6
	case niftiUnitsSec:
	}
	return math.Round(tr*1000) / 1000, true
}

// SearchStrings implements Source. NIfTI headers carry nothing to search.
func (n *NIfTI) SearchStrings() []string { return nil }

// AcquisitionTime implements Source. NIfTI headers carry no acquisition time.
func (n *NIfTI) AcquisitionTime() (time.Time, bool) { return time.Time{}, false }

// Params implements Source.
func (n *NIfTI) Params(metadata.Values) metadata.Values {
	var v metadata.Values
	if tr, ok := n.RepetitionTime(); ok {
		v.Set("RepetitionTime", tr)
	}
	return v
}
