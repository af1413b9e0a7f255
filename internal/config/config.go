// Package config holds moodcam's runtime configuration.
//
// Values come from built-in defaults, an optional .env file, an optional
// TOML file, and the environment, in that order. Flag parsing is done in
// cmd/moodcam; this package is data and loading only.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Backend names for the classification client.
const (
	BackendGenAI = "genai"
	BackendREST  = "rest"
)

// Default configuration values.
const (
	DefaultModel            = "gemini-2.5-flash"
	DefaultMaxWidth         = 512
	DefaultJPEGQuality      = 60
	DefaultHistoryCap       = 100
	DefaultLiveInterval     = 2500 * time.Millisecond
	DefaultLiveSlowInterval = 5 * time.Second
	DefaultMediaInterval    = 2500 * time.Millisecond
	DefaultTimeout          = 30 * time.Second
	DefaultPort             = "8080"
)

// Config holds all configuration for moodcam.
type Config struct {
	// Classification client.
	APIKey  string        `toml:"api_key"`
	Backend string        `toml:"backend"`  // "genai" or "rest"
	Model   string        `toml:"model"`    // Remote model name
	BaseURL string        `toml:"base_url"` // REST backend only; empty = Google endpoint
	Timeout time.Duration `toml:"timeout"`

	// Preprocessing.
	MaxWidth    int `toml:"max_width"`
	JPEGQuality int `toml:"jpeg_quality"`

	// Session.
	HistoryCap int `toml:"history_cap"`

	// Auto-mode cadence.
	LiveInterval     time.Duration `toml:"live_interval"`
	LiveSlowInterval time.Duration `toml:"live_slow_interval"`
	MediaInterval    time.Duration `toml:"media_interval"`

	// Camera.
	CameraDevice int `toml:"camera_device"`

	// Process.
	Port        string `toml:"port"`
	LogLevel    string `toml:"log_level"`
	ArchivePath string `toml:"archive_path"` // Empty disables the archive
}

// Default returns sensible defaults for moodcam.
func Default() Config {
	return Config{
		Backend:          BackendGenAI,
		Model:            DefaultModel,
		Timeout:          DefaultTimeout,
		MaxWidth:         DefaultMaxWidth,
		JPEGQuality:      DefaultJPEGQuality,
		HistoryCap:       DefaultHistoryCap,
		LiveInterval:     DefaultLiveInterval,
		LiveSlowInterval: DefaultLiveSlowInterval,
		MediaInterval:    DefaultMediaInterval,
		Port:             DefaultPort,
		LogLevel:         "info",
	}
}

// Validate checks that configuration values are usable.
// The API key is not checked here; commands that talk to the remote
// service require it themselves.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendGenAI, BackendREST:
	default:
		errs = append(errs, fmt.Errorf("backend must be %q or %q, got %q", BackendGenAI, BackendREST, c.Backend))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.MaxWidth < 16 {
		errs = append(errs, fmt.Errorf("max_width must be at least 16, got %d", c.MaxWidth))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.JPEGQuality))
	}
	if c.HistoryCap < 1 {
		errs = append(errs, fmt.Errorf("history_cap must be positive, got %d", c.HistoryCap))
	}
	for name, d := range map[string]time.Duration{
		"live_interval":      c.LiveInterval,
		"live_slow_interval": c.LiveSlowInterval,
		"media_interval":     c.MediaInterval,
	} {
		if d < 100*time.Millisecond {
			errs = append(errs, fmt.Errorf("%s must be at least 100ms, got %s", name, d))
		}
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.CameraDevice < 0 {
		errs = append(errs, fmt.Errorf("camera_device must not be negative, got %d", c.CameraDevice))
	}

	return errors.Join(errs...)
}
