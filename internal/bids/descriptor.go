// Package bids builds BIDS file names from classified scan descriptors.
//
// Names are built in two phases. A Descriptor is assembled from the
// classification result and naming components; ResolveRun then fills the run
// index from the destination directory; Render finally produces the names
// without touching the filesystem.
package bids

import (
	"errors"
	"fmt"
	"path/filepath"
)

var (
	// ErrName marks a descriptor that cannot produce a valid BIDS name.
	ErrName = errors.New("bids: invalid name")
	// ErrUnsupportedFieldmap marks a fieldmap image count with no BIDS case.
	ErrUnsupportedFieldmap = errors.New("bids: unsupported fieldmap image count")
)

// Modality types with dedicated naming rules.
const (
	TypeAnat    = "anat"
	TypeFunc    = "func"
	TypeDWI     = "dwi"
	TypeFmap    = "fmap"
	TypeUnknown = "unknown"
)

// Components are the optional key-value parts of a BIDS name plus the
// modality label used as suffix.
type Components struct {
	Task  string
	Acq   string
	Ce    string
	Dir   string
	Rec   string
	Run   string
	Echo  string
	Label string
}

// Set assigns a component by its BIDS key. Unknown keys are ignored.
func (c *Components) Set(key, value string) {
	switch key {
	case "task":
		c.Task = value
	case "acq":
		c.Acq = value
	case "ce":
		c.Ce = value
	case "dir":
		c.Dir = value
	case "rec":
		c.Rec = value
	case "run":
		c.Run = value
	case "echo":
		c.Echo = value
	}
}

// Descriptor is everything needed to name one scan.
type Descriptor struct {
	Subject      string
	Session      string
	ModalityType string
	Components
	Fieldmap FieldmapCase
}

// slots lists the components each modality type carries.
type slots struct {
	task, acq, ce, dir, rec, echo bool
}

func slotsFor(modalityType string, fm FieldmapCase) slots {
	switch modalityType {
	case TypeAnat:
		return slots{acq: true, ce: true, rec: true}
	case TypeFunc:
		return slots{task: true, acq: true, ce: true, dir: true, rec: true, echo: true}
	case TypeDWI:
		return slots{acq: true, dir: true}
	case TypeFmap:
		if fm.Kind == FieldmapCase4 {
			return slots{acq: true, ce: true, dir: true}
		}
		return slots{acq: true}
	default:
		return slots{task: true, acq: true, ce: true, dir: true, rec: true, echo: true}
	}
}

// NewDescriptor validates the components for modalityType and returns a
// descriptor. Components that the modality type does not carry are dropped.
// An empty modality type becomes "unknown".
func NewDescriptor(subject, session, modalityType string, c Components, fm FieldmapCase) (Descriptor, error) {
	if subject == "" {
		return Descriptor{}, fmt.Errorf("%w: subject is required", ErrName)
	}
	if modalityType == "" {
		modalityType = TypeUnknown
	}

	switch modalityType {
	case TypeAnat:
		if c.Label == "" {
			return Descriptor{}, fmt.Errorf("%w: anat requires a modality label", ErrName)
		}
	case TypeFunc:
		if c.Label == "" || c.Task == "" {
			return Descriptor{}, fmt.Errorf("%w: func requires a modality label and a task", ErrName)
		}
	case TypeDWI:
		if c.Label == "" {
			c.Label = "dwi"
		}
	case TypeFmap:
		if fm.Kind == FieldmapNone {
			return Descriptor{}, fmt.Errorf("%w: fmap requires a fieldmap case", ErrName)
		}
		c.Label = ""
	case TypeUnknown:
		if c.Label == "" {
			c.Label = TypeUnknown
		}
	default:
		if c.Label == "" {
			return Descriptor{}, fmt.Errorf("%w: %s requires a modality label", ErrName, modalityType)
		}
	}

	if modalityType != TypeFmap {
		fm = FieldmapCase{}
	}
	if fm.Kind != FieldmapCase1 {
		fm.Mag2 = false
	}

	s := slotsFor(modalityType, fm)
	if !s.task {
		c.Task = ""
	}
	if !s.acq {
		c.Acq = ""
	}
	if !s.ce {
		c.Ce = ""
	}
	if !s.dir {
		c.Dir = ""
	}
	if !s.rec {
		c.Rec = ""
	}
	if !s.echo {
		c.Echo = ""
	}

	return Descriptor{
		Subject:      subject,
		Session:      session,
		ModalityType: modalityType,
		Components:   c,
		Fieldmap:     fm,
	}, nil
}

// OutputDir returns the destination directory of d under root.
func OutputDir(root string, d Descriptor) string {
	parts := []string{root, "sub-" + d.Subject}
	if d.Session != "" {
		parts = append(parts, "ses-"+d.Session)
	}
	parts = append(parts, d.ModalityType)
	return filepath.Join(parts...)
}
