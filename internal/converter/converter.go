// Package converter drives the external DICOM/PAR to NIfTI converter.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrDependency means the converter executable is not available.
	ErrDependency = errors.New("converter: executable not found")
	// ErrConversion means the converter produced no image.
	ErrConversion = errors.New("converter: conversion failed")
)

// DefaultExecutable is the converter looked up on PATH.
const DefaultExecutable = "dcm2niix"

// Options configure a Dcm2niix runner.
type Options struct {
	Executable       string
	CompressionLevel int
	Gzip             bool
	Logger           *zap.Logger
}

// Dcm2niix runs dcm2niix as a subprocess.
type Dcm2niix struct {
	exe    string
	level  int
	gzip   bool
	logger *zap.Logger
}

// New returns a runner for opts.
func New(opts Options) *Dcm2niix {
	exe := opts.Executable
	if exe == "" {
		exe = DefaultExecutable
	}
	level := opts.CompressionLevel
	if level < 1 || level > 9 {
		level = 6
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dcm2niix{exe: exe, level: level, gzip: opts.Gzip, logger: logger}
}

// Check verifies the executable is reachable.
func (c *Dcm2niix) Check() error {
	if _, err := exec.LookPath(c.exe); err != nil {
		return fmt.Errorf("%w: %s", ErrDependency, c.exe)
	}
	return nil
}

// Args returns the command line used to convert src into outDir/basename.
func (c *Dcm2niix) Args(src, basename, outDir string) []string {
	gz := "n"
	if c.gzip {
		gz = "y"
	}
	return []string{
		"-" + strconv.Itoa(c.level),
		"-d", "5",
		"-x", "n",
		"-w", "2",
		"--big-endian", "o",
		"-b", "y",
		"-ba", "y",
		"-z", gz,
		"-c", "y",
		"-i", "y",
		"-m", "y",
		"-f", basename,
		"-o", outDir,
		src,
	}
}

// Convert converts src into outDir and collects the produced images. A run
// that yields no image fails with ErrConversion.
func (c *Dcm2niix) Convert(ctx context.Context, src, basename, outDir string) (*Output, error) {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, fmt.Errorf("create conversion dir: %w", err)
	}

	out, err := runCommand(ctx, outDir, c.exe, c.Args(src, basename, outDir)...)
	c.logger.Debug("converter finished",
		zap.String("source", src),
		zap.String("output", strings.TrimSpace(out)))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			c.logger.Warn("converter exited with error",
				zap.String("source", src),
				zap.Int("code", exitErr.ExitCode()))
		} else {
			return nil, fmt.Errorf("%w: %v", ErrDependency, err)
		}
	}

	result, err := Collect(outDir)
	if err != nil {
		return nil, err
	}
	if len(result.Images) == 0 {
		return nil, fmt.Errorf("%w: no images from %s", ErrConversion, src)
	}
	c.logger.Info("converted source",
		zap.String("source", src),
		zap.Strings("images", result.Paths()))
	return result, nil
}

// runCommand executes name in dir and returns its combined output.
func runCommand(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}

// Image is one converted NIfTI image and its sibling files. Missing
// siblings are empty.
type Image struct {
	NIfTI string
	JSON  string
	Bval  string
	Bvec  string
}

// Diffusion reports whether the image carries gradient files.
func (i Image) Diffusion() bool {
	return i.Bval != "" && i.Bvec != ""
}

// Output is the set of images produced by one conversion.
type Output struct {
	Images []Image
}

// Diffusion reports whether any image carries gradient files.
func (o *Output) Diffusion() bool {
	for _, img := range o.Images {
		if img.Diffusion() {
			return true
		}
	}
	return false
}

// Paths returns the NIfTI paths in order.
func (o *Output) Paths() []string {
	paths := make([]string, 0, len(o.Images))
	for _, img := range o.Images {
		paths = append(paths, img.NIfTI)
	}
	return paths
}

// Collect lists the NIfTI images in dir, sorted by name, with their
// siblings.
func Collect(dir string) (*Output, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read conversion dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if IsNIfTI(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := &Output{}
	for _, name := range names {
		out.Images = append(out.Images, ImageFor(filepath.Join(dir, name)))
	}
	return out, nil
}

// ImageFor returns niftiPath with whichever sibling files exist beside it.
func ImageFor(niftiPath string) Image {
	stem := Stem(niftiPath)
	img := Image{NIfTI: niftiPath}
	if p := stem + ".json"; fileExists(p) {
		img.JSON = p
	}
	if p := stem + ".bval"; fileExists(p) {
		img.Bval = p
	}
	if p := stem + ".bvec"; fileExists(p) {
		img.Bvec = p
	}
	return img
}

// IsNIfTI reports whether name is a .nii or .nii.gz file.
func IsNIfTI(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".nii") || strings.HasSuffix(lower, ".nii.gz")
}

// Stem strips a .nii or .nii.gz extension.
func Stem(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".nii.gz"):
		return path[:len(path)-len(".nii.gz")]
	case strings.HasSuffix(lower, ".nii"):
		return path[:len(path)-len(".nii")]
	default:
		return strings.TrimSuffix(path, filepath.Ext(path))
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
