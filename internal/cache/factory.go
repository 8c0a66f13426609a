// Package cache constructs the configured cache backend.
package cache

import (
	"fmt"

	"github.com/oprina-ai/memcore/internal/cache/dual"
	"github.com/oprina-ai/memcore/internal/cache/local"
	"github.com/oprina-ai/memcore/internal/cache/redis"
	pkgcache "github.com/oprina-ai/memcore/pkg/cache"
)

// Config selects and configures a cache backend.
type Config struct {
	Type  pkgcache.Type `yaml:"type"` // local, redis, dual
	Local local.Config  `yaml:"local"`
	Redis redis.Config  `yaml:"redis"`
	Dual  dual.Config   `yaml:"dual"`
}

// DefaultConfig returns a local-only cache configuration.
func DefaultConfig() Config {
	return Config{
		Type:  pkgcache.TypeLocal,
		Local: local.DefaultConfig(),
		Redis: redis.DefaultConfig(),
		Dual:  dual.DefaultConfig(),
	}
}

// New builds the backend named by cfg.Type.
func New(cfg Config) (pkgcache.Cache, error) {
	switch cfg.Type {
	case pkgcache.TypeLocal, "":
		return local.New(cfg.Local), nil
	case pkgcache.TypeRedis:
		return redis.New(cfg.Redis)
	case pkgcache.TypeDual:
		remote, err := redis.New(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return dual.New(local.New(cfg.Local), remote, cfg.Dual), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Type)
	}
}
