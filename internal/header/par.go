package header

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bidsify/bidsify/internal/metadata"
)

// Image table columns of PAR v4.2 files.
const (
	parColEchoTime  = 30
	parColFlipAngle = 35
)

var (
	parSenseRe = regexp.MustCompile(` SENSE *?([0-9.-]+)`)
	parMBRe    = regexp.MustCompile(` MB *?([0-9.-]+)`)
)

// PAR is a parsed Philips PAR header.
type PAR struct {
	info   map[string]string
	lines  []string
	images [][]float64
}

// ReadPAR parses the PAR file at path.
func ReadPAR(path string) (*PAR, error) {
	//nolint:gosec // G304: path comes from study discovery
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := ParsePAR(f)
	if err != nil {
		return nil, fmt.Errorf("parse par %s: %w", path, err)
	}
	return p, nil
}

// ParsePAR reads the general information lines (". key : value") and the
// numeric image table of a PAR header.
func ParsePAR(r io.Reader) (*PAR, error) {
	p := &PAR{info: make(map[string]string)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		p.lines = append(p.lines, line)
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "#"):
		case strings.HasPrefix(trimmed, "."):
			body := strings.TrimPrefix(trimmed, ".")
			key, value, ok := strings.Cut(body, ":")
			if !ok {
				continue
			}
			p.info[normalizeKey(key)] = strings.TrimSpace(value)
		default:
			if row, ok := parseRow(trimmed); ok {
				p.images = append(p.images, row)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func normalizeKey(key string) string {
	return strings.Join(strings.Fields(key), " ")
}

func parseRow(line string) ([]float64, bool) {
	fields := strings.Fields(line)
	row := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false
		}
		row = append(row, v)
	}
	return row, true
}

// Format implements Source.
func (p *PAR) Format() Format { return FormatPAR }

// Value returns the general information value for key. Whitespace inside
// the key is insignificant.
func (p *PAR) Value(key string) string {
	return p.info[normalizeKey(key)]
}

// Float returns the first number of the value for key.
func (p *PAR) Float(key string) (float64, bool) {
	fields := strings.Fields(p.Value(key))
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	return v, err == nil
}

// Technique returns the scan technique line.
func (p *PAR) Technique() string {
	return p.Value("Technique")
}

// SearchStrings implements Source.
func (p *PAR) SearchStrings() []string {
	return []string{p.Technique(), p.Value("Protocol name")}
}

// AcquisitionTime parses "Examination date/time", e.g. "2019.05.06 / 10:11:12".
func (p *PAR) AcquisitionTime() (time.Time, bool) {
	raw := strings.ReplaceAll(p.Value("Examination date/time"), " ", "")
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006.01.02/15:04:05", raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ReductionFactor is the last "SENSE <n>" token in the file, defaulting to 1.
func (p *PAR) ReductionFactor() float64 {
	factor := 1.0
	for _, line := range p.lines {
		if m := parSenseRe.FindStringSubmatch(line); m != nil {
			if f, err := strconv.ParseFloat(m[1], 64); err == nil {
				factor = f
			}
		}
	}
	return factor
}

// Multiband is the last "MB <n>" token in the file, defaulting to 1.
func (p *PAR) Multiband() int {
	mb := 1
	for _, line := range p.lines {
		if m := parMBRe.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				mb = n
			}
		}
	}
	return mb
}

// column returns the single value of an image table column. ok is false
// when the column is missing or holds more than one distinct value.
func (p *PAR) column(idx int) (float64, bool) {
	var (
		value float64
		found bool
	)
	for _, row := range p.images {
		if len(row) <= idx {
			continue
		}
		if found && row[idx] != value {
			return 0, false
		}
		value, found = row[idx], true
	}
	return value, found
}

// EchoTime returns the echo time in seconds. Multi-echo files have none.
func (p *PAR) EchoTime() (float64, bool) {
	te, ok := p.column(parColEchoTime)
	if !ok {
		return 0, false
	}
	return te / 1000, true
}

// FlipAngle returns the flip angle in degrees.
func (p *PAR) FlipAngle() (float64, bool) {
	return p.column(parColFlipAngle)
}

// ReadoutInputs gathers the Philips readout formula inputs.
func (p *PAR) ReadoutInputs() metadata.ReadoutInputs {
	var in metadata.ReadoutInputs
	if wfs, ok := p.Float("Water Fat shift [pixels]"); ok {
		in.WaterFatShift = &wfs
	}
	if etl, ok := p.Float("EPI factor <0,1=no EPI>"); ok {
		in.EchoTrainLength = &etl
	}
	red := p.ReductionFactor()
	in.ReductionFactor = &red
	return in
}

// Params implements Source. The sidecar is not consulted.
func (p *PAR) Params(metadata.Values) metadata.Values {
	var v metadata.Values
	v.Set("ParallelAcquisitionTechnique", "SENSE")
	v.Set("ParallelReductionFactorInPlane", p.ReductionFactor())
	v.Set("MultibandAccelerationFactor", p.Multiband())
	if wfs, ok := p.Float("Water Fat shift [pixels]"); ok {
		v.Set("WaterFatShift", wfs)
	}
	if dur, ok := p.Float("Scan Duration [sec]"); ok {
		v.Set("AcquisitionDuration", dur)
	}
	if etl, ok := p.Float("EPI factor <0,1=no EPI>"); ok {
		v.Set("EchoTrainLength", etl)
	}
	if te, ok := p.EchoTime(); ok {
		v.Set("EchoTime", te)
	}
	if fa, ok := p.FlipAngle(); ok {
		v.Set("FlipAngle", fa)
	}
	if r, ok := metadata.CalcReadoutTime(p.ReadoutInputs()); ok {
		r.Apply(&v)
	}
	return v
}
