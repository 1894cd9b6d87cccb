// TrackWire - Real-Time Location Tracking and Trail Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackwire

// Package config loads and validates the application configuration.
//
// Configuration is layered with koanf: built-in defaults first, then an
// optional YAML file, then environment variables. Later layers override
// earlier ones.
package config

import (
	"fmt"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Retention RetentionConfig `koanf:"retention"`
	Janitor   JanitorConfig   `koanf:"janitor"`
	WebSocket WebSocketConfig `koanf:"websocket"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// DatabaseConfig holds BadgerDB settings.
type DatabaseConfig struct {
	// Path is the Badger data directory.
	Path string `koanf:"path"`

	// InMemory runs the store without disk persistence. Intended for
	// development and tests only; all data is lost on shutdown.
	InMemory bool `koanf:"in_memory"`
}

// RetentionConfig bounds trail size and track staleness.
type RetentionConfig struct {
	MaxTrailPoints int           `koanf:"max_trail_points"`
	TrailWindow    time.Duration `koanf:"trail_window"`
	StaleAfter     time.Duration `koanf:"stale_after"`
}

// JanitorConfig controls the periodic cleanup sweep.
type JanitorConfig struct {
	Interval time.Duration `koanf:"interval"`
}

// WebSocketConfig controls the broadcast layer.
type WebSocketConfig struct {
	// GlobalBroadcast delivers every location event to every connected
	// client rather than only topic subscribers.
	GlobalBroadcast bool `koanf:"global_broadcast"`
}

// SecurityConfig holds CORS and rate limiting settings.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all defaults applied. These are the
// values used when neither the config file nor the environment overrides
// them.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:     "/data/trackwire",
			InMemory: false,
		},
		Retention: RetentionConfig{
			MaxTrailPoints: 1000,
			TrailWindow:    24 * time.Hour,
			StaleAfter:     24 * time.Hour,
		},
		Janitor: JanitorConfig{
			Interval: time.Hour,
		},
		WebSocket: WebSocketConfig{
			GlobalBroadcast: true,
		},
		Security: SecurityConfig{
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for values that cannot work at runtime.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if !c.Database.InMemory && c.Database.Path == "" {
		return fmt.Errorf("database.path is required unless database.in_memory is set")
	}
	if c.Retention.MaxTrailPoints < 1 {
		return fmt.Errorf("retention.max_trail_points must be at least 1, got %d", c.Retention.MaxTrailPoints)
	}
	if c.Retention.TrailWindow <= 0 {
		return fmt.Errorf("retention.trail_window must be positive, got %s", c.Retention.TrailWindow)
	}
	if c.Retention.StaleAfter <= 0 {
		return fmt.Errorf("retention.stale_after must be positive, got %s", c.Retention.StaleAfter)
	}
	if c.Janitor.Interval <= 0 {
		return fmt.Errorf("janitor.interval must be positive, got %s", c.Janitor.Interval)
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs < 1 {
			return fmt.Errorf("security.rate_limit_reqs must be at least 1, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("security.rate_limit_window must be positive, got %s", c.Security.RateLimitWindow)
		}
	}
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "":
	default:
		return fmt.Errorf("logging.level %q is not a valid zerolog level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console", "":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
