package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bidsify/bidsify/internal/config"
	"github.com/bidsify/bidsify/internal/heuristic"
)

var rootCmd = &cobra.Command{
	Use:          "bidsify",
	Short:        "bidsify - convert MRI studies into BIDS datasets",
	Long:         "bidsify classifies DICOM, PAR REC and NIfTI source files with a study heuristic, converts them with dcm2niix and writes a BIDS tree.",
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config-file", "c", "", "Study heuristic YAML file")
	flags.String("settings", "", "Optional settings file (YAML, TOML or JSON)")
	flags.String("db-path", "", "Registry database path (default: <data dir>/registry.db)")
	flags.BoolP("verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(newConvertCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newInfoCmd())
	rootCmd.AddCommand(newScansCmd())
	rootCmd.AddCommand(newMCPCmd())
}

// loadSettings merges defaults, the settings file, BIDSIFY_* variables and
// the flags of cmd.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	v := config.NewViper()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	settingsFile, _ := cmd.Flags().GetString("settings")
	return config.LoadSettings(v, settingsFile)
}

// loadHeuristic reads the study heuristic named by the settings.
func loadHeuristic(s *config.Settings) (*heuristic.Config, error) {
	if s.ConfigFile == "" {
		return nil, fmt.Errorf("a study heuristic is required (--config-file or BIDSIFY_CONFIG_FILE)")
	}
	return heuristic.Load(s.ConfigFile)
}

// newLogger builds the process logger. Production logs also go to a file in
// the log directory when toFile is set.
func newLogger(verbose, toFile bool) (*zap.Logger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "console"
	}
	if toFile {
		dir := config.GetLogDir()
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, filepath.Join(dir, "bidsify.log"))
	}
	return cfg.Build()
}
