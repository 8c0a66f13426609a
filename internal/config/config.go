// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for
// zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	internalcache "github.com/oprina-ai/memcore/internal/cache"
	"github.com/oprina-ai/memcore/internal/history"
	"github.com/oprina-ai/memcore/internal/postgres"
	"github.com/oprina-ai/memcore/internal/secret"
)

// Config represents the complete memory service configuration.
type Config struct {
	Server   ServerConfig             `yaml:"server"`
	Storage  StorageConfig            `yaml:"storage"`
	Cache    internalcache.Config     `yaml:"cache"`
	Archive  history.S3ArchiverConfig `yaml:"archive"`
	Learning LearningConfig           `yaml:"learning"`
	Health   HealthConfig             `yaml:"health"`
	Secrets  secret.Config            `yaml:"secrets"`
	MCP      MCPConfig                `yaml:"mcp"`
	Logging  LoggingConfig            `yaml:"logging"`
	Metrics  MetricsConfig            `yaml:"metrics"`
	Tracing  TracingConfig            `yaml:"tracing"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StorageConfig selects the durable backend shared by the session, history,
// and pattern tiers.
type StorageConfig struct {
	Backend  string          `yaml:"backend"` // memory, postgres
	Postgres postgres.Config `yaml:"postgres"`

	// InactivityWindow bounds "active" sessions in listings.
	InactivityWindow time.Duration `yaml:"inactivity_window"`
}

// LearningConfig tunes the async pattern-learning forwarder.
type LearningConfig struct {
	BufferSize   int     `yaml:"buffer_size"`
	EventsPerSec float64 `yaml:"events_per_sec"`

	// RecentMessageLimit is how many recent messages a session context carries.
	RecentMessageLimit int `yaml:"recent_message_limit"`
}

// HealthConfig controls the periodic tier prober.
type HealthConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MCPConfig controls the agent-facing MCP server.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Redact bool   `yaml:"redact"` // mask PII and credentials in log output
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP endpoint (e.g., "localhost:4317")
	ServiceName string  `yaml:"service_name"` // Service name for traces
	SampleRate  float64 `yaml:"sample_rate"`  // Sampling rate (0.0 to 1.0)
	Insecure    bool    `yaml:"insecure"`     // Use insecure connection (no TLS)
}

// DefaultConfig returns a configuration with sensible defaults: in-memory
// stores, a local cache, no archive.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8085,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Backend:  "memory",
			Postgres: postgres.DefaultConfig(),
		},
		Cache: internalcache.DefaultConfig(),
		Learning: LearningConfig{
			BufferSize:   256,
			EventsPerSec: 50,
		},
		Health: HealthConfig{
			Enabled:  true,
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
		},
		Secrets: secret.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Redact: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "memcore",
			SampleRate:  1.0,
			Insecure:    true,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.Host == "" {
			return fmt.Errorf("storage.postgres.host is required")
		}
		if c.Storage.Postgres.Database == "" {
			return fmt.Errorf("storage.postgres.database is required")
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}

	switch c.Cache.Type {
	case "local", "redis", "dual":
	default:
		return fmt.Errorf("unknown cache type: %q", c.Cache.Type)
	}

	if c.Archive.Enabled && c.Archive.BucketName == "" {
		return fmt.Errorf("archive.bucket_name is required when archiving is enabled")
	}

	if c.Learning.BufferSize < 0 {
		return fmt.Errorf("learning.buffer_size cannot be negative")
	}
	if c.Learning.EventsPerSec < 0 {
		return fmt.Errorf("learning.events_per_sec cannot be negative")
	}

	if c.Health.Interval < 0 || c.Health.Timeout < 0 {
		return fmt.Errorf("health intervals cannot be negative")
	}

	return nil
}
