package filesystem

import (
	"compress/gzip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestTempDirCleanup(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "sub-01")

	dir, cleanup, err := TempDir(parent, "convert-")
	if err != nil {
		t.Fatalf("TempDir returned error: %v", err)
	}
	if filepath.Dir(dir) != parent {
		t.Fatalf("expected %s under %s", dir, parent)
	}
	writeFile(t, filepath.Join(dir, "x.nii"), "data")

	cleanup()
	if FileExists(dir) {
		t.Fatalf("expected %s to be removed", dir)
	}
}

func TestCopyFile(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "in.json")
	dst := filepath.Join(tmp, "nested", "out.json")
	writeFile(t, src, "{}")

	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile returned error: %v", err)
	}
	content, err := ReadFile(dst)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if content != "{}" {
		t.Fatalf("expected copied content, got %q", content)
	}
}

func TestPlaceImageGzipPolicy(t *testing.T) {
	tmp := t.TempDir()
	raw := filepath.Join(tmp, "work", "img.nii")
	writeFile(t, raw, "voxels")

	gzPath, err := PlaceImage(raw, filepath.Join(tmp, "out", "sub-01_T1w"), true, 6)
	if err != nil {
		t.Fatalf("PlaceImage compress returned error: %v", err)
	}
	if filepath.Base(gzPath) != "sub-01_T1w.nii.gz" {
		t.Fatalf("unexpected compressed path %s", gzPath)
	}

	f, err := os.Open(gzPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("expected gzip stream: %v", err)
	}
	data, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	if string(data) != "voxels" {
		t.Fatalf("unexpected decompressed content %q", data)
	}

	plain, err := PlaceImage(gzPath, filepath.Join(tmp, "plain", "sub-01_T1w"), false, 6)
	if err != nil {
		t.Fatalf("PlaceImage decompress returned error: %v", err)
	}
	if filepath.Base(plain) != "sub-01_T1w.nii" {
		t.Fatalf("unexpected plain path %s", plain)
	}
	content, err := ReadFile(plain)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if content != "voxels" {
		t.Fatalf("unexpected content %q", content)
	}
}

func TestWriteJSONLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset_description.json")
	in := map[string]string{"Name": "study <1>"}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}

	content, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if content != "{\n  \"Name\": \"study <1>\"\n}\n" {
		t.Fatalf("unexpected JSON layout %q", content)
	}
}

func TestWalkDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.nii"), "")
	writeFile(t, filepath.Join(dir, "b.json"), "")

	count := 0
	err := WalkDir(dir, func(path string, d fs.DirEntry) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir returned error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 entries, got %d", count)
	}

	if err := WalkDir(filepath.Join(dir, "missing"), func(string, fs.DirEntry) error { return nil }); err != nil {
		t.Fatalf("WalkDir on missing dir should succeed: %v", err)
	}
}
