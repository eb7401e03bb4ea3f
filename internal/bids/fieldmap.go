package bids

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FieldmapKind enumerates the BIDS fieldmap acquisition cases.
type FieldmapKind int

const (
	FieldmapNone FieldmapKind = iota
	// FieldmapCase1 is a phase difference image with one or two magnitudes.
	FieldmapCase1
	// FieldmapCase2 is two phase images with two magnitudes.
	FieldmapCase2
	// FieldmapCase3 is a direct fieldmap with one magnitude.
	FieldmapCase3
	// FieldmapCase4 is a phase-encoding-polarity (epi) acquisition.
	FieldmapCase4
)

// FieldmapCase is the resolved fieldmap case. Mag2 only applies to Case1.
type FieldmapCase struct {
	Kind FieldmapKind
	Mag2 bool
}

func (f FieldmapCase) String() string {
	switch f.Kind {
	case FieldmapCase1:
		if f.Mag2 {
			return "case1+mag2"
		}
		return "case1"
	case FieldmapCase2:
		return "case2"
	case FieldmapCase3:
		return "case3"
	case FieldmapCase4:
		return "case4"
	default:
		return "none"
	}
}

// Suffixes returns the name suffixes of the case in output order.
func (f FieldmapCase) Suffixes() []string {
	switch f.Kind {
	case FieldmapCase1:
		if f.Mag2 {
			return []string{"phasediff", "magnitude1", "magnitude2"}
		}
		return []string{"phasediff", "magnitude1"}
	case FieldmapCase2:
		return []string{"phase1", "phase2", "magnitude1", "magnitude2"}
	case FieldmapCase3:
		return []string{"magnitude", "fieldmap"}
	case FieldmapCase4:
		return []string{"epi"}
	default:
		return nil
	}
}

// twoImageTerms decide between Case3 and Case1 for two-image fieldmaps.
// This is approximate: the single letter "a" matches most names.
var twoImageTerms = []string{"mag", "map", "a"}

// ResolveFieldmapCase maps the number of converted fieldmap images to a case.
func ResolveFieldmapCase(n int, names []string) (FieldmapCase, error) {
	switch n {
	case 4:
		return FieldmapCase{Kind: FieldmapCase2}, nil
	case 3:
		return FieldmapCase{Kind: FieldmapCase1, Mag2: true}, nil
	case 1:
		return FieldmapCase{Kind: FieldmapCase4}, nil
	case 2:
		for _, name := range names {
			base := strings.ToLower(filepath.Base(name))
			for _, term := range twoImageTerms {
				if strings.Contains(base, term) {
					return FieldmapCase{Kind: FieldmapCase3}, nil
				}
			}
		}
		return FieldmapCase{Kind: FieldmapCase1}, nil
	default:
		return FieldmapCase{}, fmt.Errorf("%w: %d images", ErrUnsupportedFieldmap, n)
	}
}
