// Package filesystem provides the file operations used to stage converter
// output and place it in the BIDS tree.
package filesystem

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TempDir creates a scoped working directory under parent. The returned
// cleanup removes it and everything inside.
func TempDir(parent, prefix string) (string, func(), error) {
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp(parent, prefix)
	if err != nil {
		return "", nil, err
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// ReadFile reads a file from disk and returns its contents as a string.
func ReadFile(path string) (string, error) {
	//nolint:gosec // G304: path comes from study discovery or converter output
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FileExists reports whether the given path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CopyFile copies src to dst, creating dst's directory.
func CopyFile(src, dst string) error {
	return transfer(src, dst, func(w io.Writer, r io.Reader) error {
		_, err := io.Copy(w, r)
		return err
	})
}

// GzipFile writes a gzip-compressed copy of src to dst.
func GzipFile(src, dst string, level int) error {
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return transfer(src, dst, func(w io.Writer, r io.Reader) error {
		gz, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return err
		}
		if _, err := io.Copy(gz, r); err != nil {
			_ = gz.Close()
			return err
		}
		return gz.Close()
	})
}

// GunzipFile writes the decompressed content of src to dst.
func GunzipFile(src, dst string) error {
	return transfer(src, dst, func(w io.Writer, r io.Reader) error {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return err
		}
		defer gz.Close()
		//nolint:gosec // G110: images are trusted scanner output
		_, err = io.Copy(w, gz)
		return err
	})
}

// PlaceImage copies a NIfTI image to dstBase plus the extension the gzip
// policy asks for, compressing or decompressing on the way. It returns the
// written path.
func PlaceImage(src, dstBase string, compress bool, level int) (string, error) {
	srcGz := strings.HasSuffix(strings.ToLower(src), ".gz")
	switch {
	case compress && srcGz:
		dst := dstBase + ".nii.gz"
		return dst, CopyFile(src, dst)
	case compress:
		dst := dstBase + ".nii.gz"
		return dst, GzipFile(src, dst, level)
	case srcGz:
		dst := dstBase + ".nii"
		return dst, GunzipFile(src, dst)
	default:
		dst := dstBase + ".nii"
		return dst, CopyFile(src, dst)
	}
}

func transfer(src, dst string, fn func(io.Writer, io.Reader) error) error {
	//nolint:gosec // G304: path comes from study discovery or converter output
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	//nolint:gosec // G304: destination is inside the output tree
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if err := fn(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}

// WriteJSON writes v as indented JSON with a trailing newline.
func WriteJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o640)
}

// WalkFunc is called for each entry of a directory listing.
type WalkFunc func(path string, d fs.DirEntry) error

// WalkDir iterates over the direct children of dir. A missing directory is
// empty.
func WalkDir(dir string, fn WalkFunc) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := fn(filepath.Join(dir, entry.Name()), entry); err != nil {
			return err
		}
	}

	return nil
}
