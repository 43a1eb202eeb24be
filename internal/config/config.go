package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the daemon configuration file
type Config struct {
	Daemon  DaemonConfig  `toml:"daemon"`
	Logging LoggingConfig `toml:"logging"`
}

// DaemonConfig contains listener and session settings
type DaemonConfig struct {
	MaxConnections    int     `toml:"max_connections"`
	ConnectionsPerSec float64 `toml:"connections_per_sec"`
	ConnectionBurst   int     `toml:"connection_burst"`
	RequestsPerSec    float64 `toml:"requests_per_sec"` // per session
	RequestBurst      int     `toml:"request_burst"`
	RequestTimeoutSec int     `toml:"request_timeout_sec"` // 0 disables the per-request deadline
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			MaxConnections:    64,
			ConnectionsPerSec: 50,
			ConnectionBurst:   100,
			RequestsPerSec:    50,
			RequestBurst:      100,
			RequestTimeoutSec: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// RequestTimeout returns the per-request deadline, zero when disabled
func (d DaemonConfig) RequestTimeout() time.Duration {
	return time.Duration(d.RequestTimeoutSec) * time.Second
}

// Load loads the configuration from the default config file
func Load() (*Config, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, fmt.Errorf("get paths: %w", err)
	}

	return LoadFrom(paths.ConfigFile)
}

// LoadFrom loads the configuration from a specific file
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if no config file exists
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveTo saves the configuration to a specific file
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// The connection limiter counts sessions in an int32
	if c.Daemon.MaxConnections < 1 || c.Daemon.MaxConnections > math.MaxInt32 {
		return fmt.Errorf("invalid max_connections: %d", c.Daemon.MaxConnections)
	}

	if c.Daemon.ConnectionsPerSec <= 0 {
		return fmt.Errorf("invalid connections_per_sec: %v", c.Daemon.ConnectionsPerSec)
	}

	if c.Daemon.ConnectionBurst < 1 {
		return fmt.Errorf("invalid connection_burst: %d", c.Daemon.ConnectionBurst)
	}

	if c.Daemon.RequestsPerSec <= 0 {
		return fmt.Errorf("invalid requests_per_sec: %v", c.Daemon.RequestsPerSec)
	}

	if c.Daemon.RequestBurst < 1 {
		return fmt.Errorf("invalid request_burst: %d", c.Daemon.RequestBurst)
	}

	if c.Daemon.RequestTimeoutSec < 0 {
		return fmt.Errorf("invalid request_timeout_sec: %d", c.Daemon.RequestTimeoutSec)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}
