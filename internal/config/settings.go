package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Settings are the runtime options of a conversion run. They come from
// defaults, an optional settings file, BIDSIFY_* environment variables and
// command-line flags, in increasing order of precedence.
type Settings struct {
	ConfigFile       string `mapstructure:"config_file"`
	StudyDir         string `mapstructure:"study_dir"`
	OutDir           string `mapstructure:"out_dir"`
	DBPath           string `mapstructure:"db_path"`
	ZeroPad          int    `mapstructure:"zero_pad"`
	Gzip             bool   `mapstructure:"gzip"`
	AppendDWIInfo    bool   `mapstructure:"append_dwi_info"`
	KeepUnknown      bool   `mapstructure:"keep_unknown"`
	CompressionLevel int    `mapstructure:"compression_level"`
	Converter        string `mapstructure:"converter"`
	BIDSVersion      string `mapstructure:"bids_version"`
	Verbose          bool   `mapstructure:"verbose"`
	DryRun           bool   `mapstructure:"dry_run"`
}

// DefaultBIDSVersion is written to sidecars and dataset_description.json
// unless overridden.
const DefaultBIDSVersion = "1.8.0"

// NewViper returns a viper instance with bidsify's defaults and environment
// binding applied.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("db_path", "")
	v.SetDefault("zero_pad", 2)
	v.SetDefault("gzip", true)
	v.SetDefault("append_dwi_info", true)
	v.SetDefault("keep_unknown", true)
	v.SetDefault("compression_level", 6)
	v.SetDefault("converter", "dcm2niix")
	v.SetDefault("bids_version", DefaultBIDSVersion)
	v.SetDefault("verbose", false)
	v.SetDefault("dry_run", false)

	v.SetEnvPrefix("BIDSIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// BindFlags maps command-line flags onto settings keys. Flag names use
// dashes; keys use underscores.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

// LoadSettings reads an optional settings file and unmarshals the merged
// configuration.
func LoadSettings(v *viper.Viper, settingsFile string) (*Settings, error) {
	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read settings file: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	if s.DBPath == "" {
		s.DBPath = GetDBPath()
	}
	if s.ZeroPad < 1 {
		return nil, fmt.Errorf("zero_pad must be positive, got %d", s.ZeroPad)
	}
	if s.CompressionLevel < 1 || s.CompressionLevel > 9 {
		return nil, fmt.Errorf("compression_level must be within 1..9, got %d", s.CompressionLevel)
	}

	return &s, nil
}
