package header

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/bidsify/bidsify/internal/metadata"
)

// Tags outside the standard dictionary lookups used here.
var (
	// Philips "Scanning Technique Description MR".
	tagScanningTechnique = tag.Tag{Group: 0x2001, Element: 0x1020}
	// Siemens "BandwidthPerPixelPhaseEncode".
	tagBandwidthPerPixelPE          = tag.Tag{Group: 0x0019, Element: 0x1028}
	tagParallelReductionFactorPlane = tag.Tag{Group: 0x0018, Element: 0x9069}
	tagAcquisitionDuration          = tag.Tag{Group: 0x0018, Element: 0x9073}
	tagConversionType               = tag.Tag{Group: 0x0008, Element: 0x0064}
)

var (
	dicomSenseRe = regexp.MustCompile(`(?i)SENSE .*?([0-9.-]+)`)
	dicomMBRe    = regexp.MustCompile(`(?i)MB.*?([0-9.-]+)`)
)

// DICOM is a parsed DICOM header.
type DICOM struct {
	ds dicom.Dataset
}

// ReadDICOM parses the header of a DICOM file. Pixel data is skipped.
func ReadDICOM(path string) (*DICOM, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, fmt.Errorf("parse dicom %s: %w", path, err)
	}
	return &DICOM{ds: ds}, nil
}

// Format implements Source.
func (d *DICOM) Format() Format { return FormatDICOM }

// String returns the value of t with multiple values joined by a backslash.
func (d *DICOM) String(t tag.Tag) string {
	elem, err := d.ds.FindElementByTag(t)
	if err != nil || elem == nil || elem.Value == nil {
		return ""
	}
	return strings.Join(elementStrings(elem), `\`)
}

// Float returns the first numeric value of t.
func (d *DICOM) Float(t tag.Tag) (float64, bool) {
	elem, err := d.ds.FindElementByTag(t)
	if err != nil || elem == nil || elem.Value == nil {
		return 0, false
	}
	switch v := elem.Value.GetValue().(type) {
	case []float64:
		if len(v) > 0 {
			return v[0], true
		}
	case []int:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case []string:
		if len(v) > 0 {
			f, err := strconv.ParseFloat(strings.TrimSpace(v[0]), 64)
			return f, err == nil
		}
	case []byte:
		// Private tags in implicit VR files arrive as raw bytes.
		switch len(v) {
		case 8:
			return math.Float64frombits(binary.LittleEndian.Uint64(v)), true
		case 4:
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(v))), true
		default:
			f, err := strconv.ParseFloat(trimBytes(v), 64)
			return f, err == nil
		}
	}
	return 0, false
}

func elementStrings(elem *dicom.Element) []string {
	switch v := elem.Value.GetValue().(type) {
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, strings.TrimSpace(s))
		}
		return out
	case []int:
		out := make([]string, 0, len(v))
		for _, n := range v {
			out = append(out, strconv.Itoa(n))
		}
		return out
	case []float64:
		out := make([]string, 0, len(v))
		for _, f := range v {
			out = append(out, strconv.FormatFloat(f, 'f', -1, 64))
		}
		return out
	case []byte:
		return []string{trimBytes(v)}
	}
	return nil
}

func trimBytes(b []byte) string {
	return strings.TrimSpace(strings.TrimRight(string(b), "\x00 "))
}

// SearchStrings returns the Philips scanning technique, then
// SeriesDescription, ImageType and ProtocolName.
func (d *DICOM) SearchStrings() []string {
	return []string{
		d.String(tagScanningTechnique),
		d.String(tag.SeriesDescription),
		d.String(tag.ImageType),
		d.String(tag.ProtocolName),
	}
}

// Valid reports whether the file is an acquired image. Secondary captures
// carry a ConversionType.
func (d *DICOM) Valid() bool {
	return d.String(tagConversionType) == ""
}

// AcquisitionTime combines AcquisitionDate and AcquisitionTime, falling back
// to the study date and time.
func (d *DICOM) AcquisitionTime() (time.Time, bool) {
	if t, ok := dicomDateTime(d.String(tag.AcquisitionDate), d.String(tag.AcquisitionTime)); ok {
		return t, true
	}
	return dicomDateTime(d.String(tag.StudyDate), d.String(tag.StudyTime))
}

func dicomDateTime(date, clock string) (time.Time, bool) {
	if len(date) < 8 {
		return time.Time{}, false
	}
	clock = strings.ReplaceAll(clock, ":", "")
	if len(clock) > 6 {
		clock = clock[:6]
	}
	for len(clock) < 6 {
		clock += "0"
	}
	t, err := time.Parse("20060102150405", date[:8]+clock)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ReductionFactor is the in-plane parallel imaging factor. The dedicated tag
// wins; otherwise a "SENSE <n>" token in the series description is used.
// It defaults to 1.
func (d *DICOM) ReductionFactor() float64 {
	if f, ok := d.Float(tagParallelReductionFactorPlane); ok && f > 0 {
		return f
	}
	if m := dicomSenseRe.FindStringSubmatch(d.String(tag.SeriesDescription)); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			return f
		}
	}
	return 1
}

// Multiband is the multi-band factor parsed from the series description. It
// defaults to 1.
func (d *DICOM) Multiband() int {
	if m := dicomMBRe.FindStringSubmatch(d.String(tag.SeriesDescription)); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 1
}

// ReadoutInputs gathers the readout formula inputs. ReconMatrixPE and
// PixelBandwidth come from the converter sidecar; the echo train length is
// taken to be ReconMatrixPE.
func (d *DICOM) ReadoutInputs(sidecar metadata.Values) metadata.ReadoutInputs {
	var in metadata.ReadoutInputs
	if bw, ok := d.Float(tagBandwidthPerPixelPE); ok {
		in.BandwidthPerPixelPhaseEncode = &bw
	}
	if pe, ok := sidecar.Float("ReconMatrixPE"); ok {
		in.ReconMatrixPE = &pe
		etl := pe
		in.EchoTrainLength = &etl
	}
	if pbw, ok := sidecar.Float("PixelBandwidth"); ok {
		in.PixelBandwidth = &pbw
	}
	return in
}

// Params implements Source.
func (d *DICOM) Params(sidecar metadata.Values) metadata.Values {
	var v metadata.Values
	v.Set("ParallelReductionFactorInPlane", d.ReductionFactor())
	v.Set("MultibandAccelerationFactor", d.Multiband())
	if dur, ok := d.Float(tagAcquisitionDuration); ok {
		v.Set("AcquisitionDuration", dur)
	}
	if r, ok := metadata.CalcReadoutTime(d.ReadoutInputs(sidecar)); ok {
		r.Apply(&v)
	}
	return v
}
