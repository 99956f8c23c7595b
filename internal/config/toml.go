// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Practice   PracticeConfig   `toml:"practice"`
	Simulation SimulationConfig `toml:"simulation"`
	Capture    CaptureConfig    `toml:"capture"`
	Log        LogConfig        `toml:"log"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// PracticeConfig maps practice-related settings.
type PracticeConfig struct {
	PassagesFile *string   `toml:"passages"`
	TestMode     *bool     `toml:"test-mode"`
	Duration     *Duration `toml:"duration"`
}

// SimulationConfig maps the simulated reader profile.
type SimulationConfig struct {
	WPM         *int    `toml:"wpm"`
	ErrorRate   *int    `toml:"error-rate"`
	Improvement *int    `toml:"improvement"`
	Kind        *string `toml:"kind"`
}

// CaptureConfig maps speech capture settings.
type CaptureConfig struct {
	Engine      *string `toml:"engine"`
	Language    *string `toml:"language"`
	Model       *string `toml:"model"`
	MicCommand  *string `toml:"mic-command"`
	MaxRestarts *int    `toml:"max-restarts"`
	ScriptFile  *string `toml:"script"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level *string `toml:"level"`
	File  *string `toml:"file"`
}

// MetricsConfig maps metrics export settings.
type MetricsConfig struct {
	Textfile *string `toml:"textfile"`
}

// Duration decodes TOML strings such as "60s" or "1m30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
