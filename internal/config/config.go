// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Loading functions accept context.Context as the first parameter.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// CheckpointPath points at the checkpoint loaded at startup.
	CheckpointPath string `koanf:"checkpoint_path"`

	// CORSAllowedOrigins lists origins echoed in Access-Control-Allow-Origin.
	// "*" allows every origin.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// MaxBodyBytes caps the size of a /predict request body.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// ShutdownTimeoutMS bounds graceful HTTP shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`

	// WatchConfig reloads the config file on change and applies log_level.
	WatchConfig bool `koanf:"watch_config"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":8000",
		CheckpointPath:     "models/met_fatigue_minimal.json",
		CORSAllowedOrigins: []string{"*"},
		MaxBodyBytes:       1 << 16,
		ShutdownTimeoutMS:  10_000,
		WatchConfig:        false,
	}
}

// ShutdownTimeout returns ShutdownTimeoutMS as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// Validate checks the values a server cannot start without.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.CheckpointPath == "":
		return fmt.Errorf("%w: checkpoint_path must not be empty", ErrInvalidConfig)
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("%w: max_body_bytes must be positive, got %d", ErrInvalidConfig, c.MaxBodyBytes)
	case c.ShutdownTimeoutMS < 0:
		return fmt.Errorf("%w: shutdown_timeout_ms must not be negative, got %d", ErrInvalidConfig, c.ShutdownTimeoutMS)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}
