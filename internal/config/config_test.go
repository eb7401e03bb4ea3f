package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestGetDataDirWithExplicitEnv(t *testing.T) {
	tmpDir := t.TempDir()
	customDir := filepath.Join(tmpDir, "custom")

	t.Setenv(EnvDataDir, customDir)
	t.Setenv("XDG_DATA_HOME", "")

	got := GetDataDir()
	if got != customDir {
		t.Fatalf("expected %q, got %q", customDir, got)
	}
}

func TestGetDataDirFallsBackToXDG(t *testing.T) {
	tmpDir := t.TempDir()
	xdgDir := filepath.Join(tmpDir, "xdg")

	t.Setenv(EnvDataDir, "")
	t.Setenv("XDG_DATA_HOME", xdgDir)

	got := GetDataDir()
	want := filepath.Join(xdgDir, "bidsify")
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestGetDBAndLogPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(EnvDataDir, tmpDir)

	if got, want := GetDBPath(), filepath.Join(tmpDir, "registry.db"); got != want {
		t.Fatalf("GetDBPath expected %q, got %q", want, got)
	}

	if got, want := GetLogDir(), filepath.Join(tmpDir, "logs"); got != want {
		t.Fatalf("GetLogDir expected %q, got %q", want, got)
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(EnvDataDir, tmpDir)

	s, err := LoadSettings(NewViper(), "")
	if err != nil {
		t.Fatalf("LoadSettings returned error: %v", err)
	}

	if s.ZeroPad != 2 {
		t.Fatalf("expected zero_pad 2, got %d", s.ZeroPad)
	}
	if !s.Gzip || !s.KeepUnknown || !s.AppendDWIInfo {
		t.Fatalf("expected boolean defaults to be enabled, got %+v", s)
	}
	if s.Converter != "dcm2niix" {
		t.Fatalf("expected converter dcm2niix, got %q", s.Converter)
	}
	if s.DBPath != filepath.Join(tmpDir, "registry.db") {
		t.Fatalf("expected default db path under data dir, got %q", s.DBPath)
	}
	if s.BIDSVersion != DefaultBIDSVersion {
		t.Fatalf("expected bids version %q, got %q", DefaultBIDSVersion, s.BIDSVersion)
	}
}

func TestLoadSettingsEnvAndFlags(t *testing.T) {
	t.Setenv(EnvDataDir, t.TempDir())
	t.Setenv("BIDSIFY_CONVERTER", "/opt/dcm2niix")

	v := NewViper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("zero-pad", 2, "")
	flags.String("out-dir", "", "")
	if err := BindFlags(v, flags); err != nil {
		t.Fatalf("BindFlags returned error: %v", err)
	}
	if err := flags.Parse([]string{"--zero-pad", "3", "--out-dir", "/data/bids"}); err != nil {
		t.Fatalf("flag parse error: %v", err)
	}

	s, err := LoadSettings(v, "")
	if err != nil {
		t.Fatalf("LoadSettings returned error: %v", err)
	}
	if s.ZeroPad != 3 {
		t.Fatalf("expected zero_pad from flag, got %d", s.ZeroPad)
	}
	if s.OutDir != "/data/bids" {
		t.Fatalf("expected out_dir from flag, got %q", s.OutDir)
	}
	if s.Converter != "/opt/dcm2niix" {
		t.Fatalf("expected converter from env, got %q", s.Converter)
	}
}

func TestLoadSettingsFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(EnvDataDir, tmpDir)

	path := filepath.Join(tmpDir, "settings.yaml")
	content := "gzip: false\ncompression_level: 9\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	s, err := LoadSettings(NewViper(), path)
	if err != nil {
		t.Fatalf("LoadSettings returned error: %v", err)
	}
	if s.Gzip {
		t.Fatalf("expected gzip disabled by settings file")
	}
	if s.CompressionLevel != 9 {
		t.Fatalf("expected compression level 9, got %d", s.CompressionLevel)
	}
}

func TestLoadSettingsRejectsInvalidPadding(t *testing.T) {
	t.Setenv(EnvDataDir, t.TempDir())

	v := NewViper()
	v.Set("zero_pad", 0)
	if _, err := LoadSettings(v, ""); err == nil {
		t.Fatalf("expected error for zero padding width")
	}
}
