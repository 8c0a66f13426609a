// Package secret resolves credentials referenced from configuration: the
// Postgres password, Redis password, and S3 keys can be given literally, as
// "env://VAR" references, or as "vault://path#key" references.
package secret

import (
	"context"
	"time"
)

// Provider defines the interface for retrieving secrets from various sources.
type Provider interface {
	// Get retrieves the secret value for the given path.
	Get(ctx context.Context, path string) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Config selects the secret sources available to configuration references.
type Config struct {
	// CacheTTL bounds how long resolved secrets are reused.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Vault    VaultConfig   `yaml:"vault"`
}

// VaultConfig configures the optional HashiCorp Vault source.
type VaultConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Address    string `yaml:"address"`
	AuthMethod string `yaml:"auth_method"` // "approle", "cert"
	RoleID     string `yaml:"role_id"`
	SecretID   string `yaml:"secret_id"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// DefaultConfig returns env-only secret resolution with short-lived caching.
func DefaultConfig() Config {
	return Config{
		CacheTTL: 5 * time.Minute,
	}
}
