package bids

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ZeroPad formats n with at least width digits.
func ZeroPad(n, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

// PadRun zero-pads a numeric run label to width digits. Other labels are
// returned unchanged.
func PadRun(run string, width int) string {
	n, err := strconv.Atoi(run)
	if err != nil || n < 0 {
		return run
	}
	return ZeroPad(n, width)
}

// Render produces the BIDS names of d, one per output image. Fieldmaps yield
// one name per case suffix. The run component must already be set.
func Render(d Descriptor) ([]string, error) {
	if d.Run == "" {
		return nil, fmt.Errorf("%w: run index not resolved", ErrName)
	}
	suffixes := d.suffixes()
	if len(suffixes) == 0 {
		return nil, fmt.Errorf("%w: no suffix for %s", ErrName, d.ModalityType)
	}

	names := make([]string, 0, len(suffixes))
	for _, suffix := range suffixes {
		names = append(names, d.render(d.Run, suffix))
	}
	return names, nil
}

// ResolveRun returns the next run index for d in dir: one more than the
// number of existing NIfTI files that match d with any run. A missing
// directory yields the first run.
func ResolveRun(dir string, d Descriptor, width int) (string, error) {
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ZeroPad(1, width), nil
		}
		return "", err
	}

	suffixes := d.suffixes()
	if len(suffixes) == 0 {
		return "", fmt.Errorf("%w: no suffix for %s", ErrName, d.ModalityType)
	}
	pattern := filepath.Join(dir, d.render("*", suffixes[0])+".nii*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("run lookup: %w", err)
	}
	return ZeroPad(len(matches)+1, width), nil
}

func (d Descriptor) suffixes() []string {
	if d.ModalityType == TypeFmap {
		return d.Fieldmap.Suffixes()
	}
	if d.Label == "" {
		return nil
	}
	return []string{d.Label}
}

func (d Descriptor) render(run, suffix string) string {
	parts := []string{"sub-" + d.Subject}
	add := func(key, value string) {
		if value != "" {
			parts = append(parts, key+"-"+value)
		}
	}
	add("ses", d.Session)
	add("task", d.Task)
	add("acq", d.Acq)
	add("ce", d.Ce)
	add("dir", d.Dir)
	add("rec", d.Rec)
	add("run", run)
	add("echo", d.Echo)
	parts = append(parts, suffix)
	return strings.Join(parts, "_")
}
