package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Daemon.MaxConnections != Default().Daemon.MaxConnections {
		t.Errorf("MaxConnections: got %d, want default", cfg.Daemon.MaxConnections)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.toml")
	data := `
[daemon]
max_connections = 8
request_timeout_sec = 30

[logging]
level = "debug"
format = "json"
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	if cfg.Daemon.MaxConnections != 8 {
		t.Errorf("MaxConnections: got %d, want 8", cfg.Daemon.MaxConnections)
	}
	if cfg.Daemon.RequestTimeout() != 30*time.Second {
		t.Errorf("RequestTimeout: got %v, want 30s", cfg.Daemon.RequestTimeout())
	}
	// Unset keys keep their defaults
	if cfg.Daemon.ConnectionBurst != Default().Daemon.ConnectionBurst {
		t.Errorf("ConnectionBurst: got %d, want default", cfg.Daemon.ConnectionBurst)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging: got %+v", cfg.Logging)
	}
}

func TestLoadFromRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.toml")
	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"loud\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "daemon.toml")

	cfg := Default()
	cfg.Daemon.MaxConnections = 3
	cfg.Logging.Format = "json"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if loaded.Daemon.MaxConnections != 3 || loaded.Logging.Format != "json" {
		t.Errorf("loaded config mismatch: %+v", loaded)
	}
}

func TestLoadFromRejectsHugeMaxConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.toml")
	if err := os.WriteFile(path, []byte("[daemon]\nmax_connections = 2147483648\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected error for max_connections beyond int32")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max connections", func(c *Config) { c.Daemon.MaxConnections = 0 }},
		{"max connections overflows int32", func(c *Config) {
			limit := int64(math.MaxInt32)
			c.Daemon.MaxConnections = int(limit + 1)
		}},
		{"zero rate", func(c *Config) { c.Daemon.ConnectionsPerSec = 0 }},
		{"zero burst", func(c *Config) { c.Daemon.ConnectionBurst = 0 }},
		{"zero request rate", func(c *Config) { c.Daemon.RequestsPerSec = 0 }},
		{"zero request burst", func(c *Config) { c.Daemon.RequestBurst = 0 }},
		{"negative timeout", func(c *Config) { c.Daemon.RequestTimeoutSec = -1 }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
