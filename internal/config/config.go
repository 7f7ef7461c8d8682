// Package config loads PalabraBox settings.
//
// Config file locations (priority order):
//  1. $PALABRABOX_CONFIG
//  2. ./palabrabox.yaml
//  3. $XDG_CONFIG_HOME/palabrabox/config.yaml
//  4. ~/.config/palabrabox/config.yaml
//
// Environment variables override the file: PALABRABOX_DB, PALABRABOX_DRIVER
// and PALABRABOX_LOG_LEVEL.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehmann314159/palabrabox/internal/repository"
)

const (
	EnvDatabasePath = "PALABRABOX_DB"
	EnvDriver       = "PALABRABOX_DRIVER"
	EnvLogLevel     = "PALABRABOX_LOG_LEVEL"
)

const (
	DefaultDatabasePath = "./palabrabox.db"
	DefaultDriver       = repository.DriverMattn
	DefaultLockTimeout  = repository.DefaultLockTimeout
)

// Config is the on-disk configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig locates and tunes the SQLite store
type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	Driver      string        `yaml:"driver"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// LogConfig selects log verbosity and output format
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load finds and loads the config file, or returns defaults if none found.
// The returned path is empty when no file was used.
func Load() (*Config, string, error) {
	path := FindConfigPath()
	if path == "" {
		cfg := DefaultConfig()
		cfg.applyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, "", err
		}
		return cfg, "", nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns the settings used without a config file
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        DefaultDatabasePath,
			Driver:      DefaultDriver,
			LockTimeout: DefaultLockTimeout,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Database.Path == "" {
		c.Database.Path = def.Database.Path
	}
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Database.LockTimeout <= 0 {
		c.Database.LockTimeout = def.Database.LockTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvDriver); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate rejects settings the rest of the program cannot use
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case repository.DriverMattn, repository.DriverModernc:
	default:
		return fmt.Errorf("unknown database driver %q (want %s or %s)",
			c.Database.Driver, repository.DriverMattn, repository.DriverModernc)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Log.Format)
	}
	return nil
}

// NewLogger builds the process logger described by the log section
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return level, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
