package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables read by LoadEnv.
const (
	EnvAPIKey       = "GEMINI_API_KEY"
	EnvGoogleAPIKey = "GOOGLE_API_KEY"
	EnvModel        = "MOODCAM_MODEL"
	EnvBackend      = "MOODCAM_BACKEND"
	EnvPort         = "MOODCAM_PORT"
	EnvLogLevel     = "MOODCAM_LOG_LEVEL"
	EnvArchive      = "MOODCAM_ARCHIVE"
	EnvCamera       = "MOODCAM_CAMERA"
)

// fileConfig mirrors Config with durations as strings ("2.5s") so the
// TOML file stays readable. Nil fields leave the current value alone.
type fileConfig struct {
	APIKey           *string `toml:"api_key"`
	Backend          *string `toml:"backend"`
	Model            *string `toml:"model"`
	BaseURL          *string `toml:"base_url"`
	Timeout          *string `toml:"timeout"`
	MaxWidth         *int    `toml:"max_width"`
	JPEGQuality      *int    `toml:"jpeg_quality"`
	HistoryCap       *int    `toml:"history_cap"`
	LiveInterval     *string `toml:"live_interval"`
	LiveSlowInterval *string `toml:"live_slow_interval"`
	MediaInterval    *string `toml:"media_interval"`
	CameraDevice     *int    `toml:"camera_device"`
	Port             *string `toml:"port"`
	LogLevel         *string `toml:"log_level"`
	ArchivePath      *string `toml:"archive_path"`
}

// Load builds a Config from defaults, ./.env, the TOML file at path and
// the environment. A missing .env or TOML file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	// godotenv never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.LoadFile(path); err != nil {
		return cfg, err
	}
	if err := cfg.LoadEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile applies a TOML file on top of c. Empty path or a missing file
// leaves c unchanged.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat config: %w", err)
	}

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return c.apply(fc)
}

func (c *Config) apply(fc fileConfig) error {
	setString(&c.APIKey, fc.APIKey)
	setString(&c.Backend, fc.Backend)
	setString(&c.Model, fc.Model)
	setString(&c.BaseURL, fc.BaseURL)
	setString(&c.Port, fc.Port)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.ArchivePath, fc.ArchivePath)
	setInt(&c.MaxWidth, fc.MaxWidth)
	setInt(&c.JPEGQuality, fc.JPEGQuality)
	setInt(&c.HistoryCap, fc.HistoryCap)
	setInt(&c.CameraDevice, fc.CameraDevice)

	durations := []struct {
		name string
		dst  *time.Duration
		src  *string
	}{
		{"timeout", &c.Timeout, fc.Timeout},
		{"live_interval", &c.LiveInterval, fc.LiveInterval},
		{"live_slow_interval", &c.LiveSlowInterval, fc.LiveSlowInterval},
		{"media_interval", &c.MediaInterval, fc.MediaInterval},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, *d.src, err)
		}
		*d.dst = v
	}
	return nil
}

// LoadEnv applies environment overrides on top of c.
func (c *Config) LoadEnv() error {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.APIKey = key
	} else if key := os.Getenv(EnvGoogleAPIKey); key != "" && c.APIKey == "" {
		c.APIKey = key
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Model = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.Backend = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		c.Port = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvArchive); v != "" {
		c.ArchivePath = v
	}
	if v := os.Getenv(EnvCamera); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvCamera, v, err)
		}
		c.CameraDevice = n
	}
	return nil
}

// DefaultPath returns $XDG_CONFIG_HOME/moodcam/config.toml.
func DefaultPath() string {
	return filepath.Join(configHome(), "moodcam", "config.toml")
}

// DefaultArchivePath returns $XDG_DATA_HOME/moodcam/observations.db.
func DefaultArchivePath() string {
	return filepath.Join(dataHome(), "moodcam", "observations.db")
}

func configHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}

func dataHome() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share")
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
