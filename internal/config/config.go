// Package config resolves bidsify's on-disk locations and runtime settings.
package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// EnvDataDir overrides the data directory when set.
const EnvDataDir = "BIDSIFY_DIR"

// GetDataDir resolves the base directory for bidsify state. BIDSIFY_DIR wins,
// then the XDG data home, and finally ~/.local/share.
func GetDataDir() string {
	if explicit := os.Getenv(EnvDataDir); explicit != "" {
		return explicit
	}

	xdg.Reload()

	dataHome := xdg.DataHome
	if dataHome == "" {
		home := xdg.Home
		if home == "" {
			var err error
			home, err = os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "bidsify")
			}
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	return filepath.Join(dataHome, "bidsify")
}

// GetDBPath returns the default location of the file registry database.
func GetDBPath() string {
	return filepath.Join(GetDataDir(), "registry.db")
}

// GetLogDir returns the directory for converter logs kept after a run.
func GetLogDir() string {
	return filepath.Join(GetDataDir(), "logs")
}
