// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MemberGate Contributors

// Package config loads and validates MemberGate configuration.
//
// Sources are merged in order of increasing precedence: built-in defaults,
// an optional YAML file, MEMBERGATE_* environment variables, and command
// line flags. Environment keys use double underscores as section
// separators, e.g. MEMBERGATE_DATABASE__URL maps to database.url.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// envPrefix is the prefix for configuration environment variables.
const envPrefix = "MEMBERGATE_"

// Config is the full MemberGate configuration.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Database DatabaseConfig `koanf:"database"`
	Session  SessionConfig  `koanf:"session"`
	Log      LogConfig      `koanf:"log"`
}

// HTTPConfig configures the web application listener.
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// MetricsConfig configures the observability listener.
// An empty Addr disables the metrics/health server.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL            string        `koanf:"url"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	MaxAttempts    int           `koanf:"max_attempts"`
}

// SessionConfig configures session lifetime and cookie behavior.
type SessionConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	CookieSecure  bool          `koanf:"cookie_secure"`
	PurgeInterval time.Duration `koanf:"purge_interval"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		HTTP:    HTTPConfig{Addr: ":8000"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Database: DatabaseConfig{
			ConnectTimeout: 5 * time.Second,
			MaxAttempts:    5,
		},
		Session: SessionConfig{
			TTL:           time.Hour,
			PurgeInterval: 5 * time.Minute,
		},
		Log: LogConfig{Format: "json"},
	}
}

// Load merges all configuration sources into a validated Config.
// path is the optional YAML file path (empty means no file). flags may be
// nil when the caller has no flag-bound settings.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("http.addr is required")
	}
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}
	if c.Database.MaxAttempts < 1 {
		return oops.Code("CONFIG_INVALID").
			With("max_attempts", c.Database.MaxAttempts).
			Errorf("database.max_attempts must be at least 1")
	}
	if c.Session.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("ttl", c.Session.TTL.String()).
			Errorf("session.ttl must be positive")
	}
	if c.Session.PurgeInterval <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("purge_interval", c.Session.PurgeInterval.String()).
			Errorf("session.purge_interval must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("format", c.Log.Format).
			Errorf("log.format must be json or text")
	}
	return nil
}
