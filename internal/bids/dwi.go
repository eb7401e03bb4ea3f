package bids

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// DWIAcqSuffix appends the b-values and echo time of a diffusion scan to
// acq, e.g. "b800b2000TE93". Zero b-values are skipped and echoTime is in
// seconds. A nil echoTime omits the TE part.
func DWIAcqSuffix(acq string, bvals []float64, echoTime *float64) string {
	seen := make(map[float64]bool)
	var unique []float64
	for _, b := range bvals {
		if b == 0 || seen[b] {
			continue
		}
		seen[b] = true
		unique = append(unique, b)
	}
	sort.Float64s(unique)

	var sb strings.Builder
	sb.WriteString(acq)
	for _, b := range unique {
		sb.WriteString("b")
		sb.WriteString(strconv.FormatFloat(b, 'f', -1, 64))
	}
	if echoTime != nil {
		sb.WriteString(fmt.Sprintf("TE%d", int(math.Round(*echoTime*1000))))
	}
	return sb.String()
}

// ParseBvals reads whitespace-separated b-values.
func ParseBvals(content string) ([]float64, error) {
	fields := strings.Fields(content)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parse b-value %q: %w", f, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadBvals reads a .bval file.
func ReadBvals(path string) ([]float64, error) {
	//nolint:gosec // G304: path comes from converter output
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBvals(string(data))
}
