// Package local provides an in-process cache backend backed by
// patrickmn/go-cache. It is used standalone in single-node deployments and as
// the L1 tier of the dual cache.
package local

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/oprina-ai/memcore/pkg/cache"
)

// Cache implements cache.Cache using an in-process store.
type Cache struct {
	store *gocache.Cache

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

// Config holds configuration for the local cache.
type Config struct {
	DefaultTTL      time.Duration `yaml:"default_ttl"`      // fallback when namespace default is unknown
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // expired-entry sweep interval
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// New creates a new in-process cache.
func New(cfg Config) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	return &Cache{
		store: gocache.New(cfg.DefaultTTL, cfg.CleanupInterval),
	}
}

// Get retrieves a value. Returns nil, nil on a miss.
func (c *Cache) Get(_ context.Context, key string, ns cache.Namespace) ([]byte, error) {
	val, found := c.store.Get(ns.Key(key))
	if !found {
		c.misses.Add(1)
		return nil, nil
	}
	data, ok := val.([]byte)
	if !ok {
		// Foreign value type, treat as miss.
		c.misses.Add(1)
		return nil, nil
	}
	c.hits.Add(1)
	return data, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(_ context.Context, key string, ns cache.Namespace, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ns.DefaultTTL()
	}
	c.store.Set(ns.Key(key), value, ttl)
	c.sets.Add(1)
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(_ context.Context, key string, ns cache.Namespace) error {
	c.store.Delete(ns.Key(key))
	c.deletes.Add(1)
	return nil
}

// Exists reports whether a key is present.
func (c *Cache) Exists(_ context.Context, key string, ns cache.Namespace) (bool, error) {
	_, found := c.store.Get(ns.Key(key))
	return found, nil
}

// FlushNamespace removes every key in the namespace.
func (c *Cache) FlushNamespace(_ context.Context, ns cache.Namespace) error {
	prefix := string(ns) + ":"
	for key := range c.store.Items() {
		if strings.HasPrefix(key, prefix) {
			c.store.Delete(key)
			c.deletes.Add(1)
		}
	}
	return nil
}

// Ping always succeeds for the in-process store.
func (c *Cache) Ping(_ context.Context) error {
	return nil
}

// Close releases resources. The underlying janitor goroutine is stopped by
// go-cache's finalizer; flushing here keeps shutdown deterministic in tests.
func (c *Cache) Close() error {
	c.store.Flush()
	return nil
}

// Stats returns cache statistics.
func (c *Cache) Stats() cache.Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return cache.Stats{
		Hits:    hits,
		Misses:  misses,
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
		HitRate: hitRate,
	}
}
