// Package dual provides a two-tier cache with in-process (L1) and Redis (L2).
// Writes go to both caches, reads check L1 first then L2 with backfill.
package dual

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/oprina-ai/memcore/internal/cache/local"
	"github.com/oprina-ai/memcore/internal/cache/redis"
	"github.com/oprina-ai/memcore/pkg/cache"
)

// Cache implements cache.Cache over a local L1 and a Redis L2.
type Cache struct {
	local  *local.Cache
	remote *redis.Cache
	config Config

	localHits atomic.Int64
	redisHits atomic.Int64
	misses    atomic.Int64
	backfills atomic.Int64
}

// Config holds configuration for the dual cache.
type Config struct {
	LocalTTL time.Duration `yaml:"local_ttl"` // TTL for L1 entries (default: 2 minutes)
}

// DefaultConfig returns sensible defaults. The L1 TTL is deliberately short:
// the local tier only smooths bursts, Redis remains the shared copy.
func DefaultConfig() Config {
	return Config{
		LocalTTL: 2 * time.Minute,
	}
}

// New creates a new dual-tier cache.
func New(l1 *local.Cache, l2 *redis.Cache, cfg Config) *Cache {
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = 2 * time.Minute
	}
	return &Cache{
		local:  l1,
		remote: l2,
		config: cfg,
	}
}

// Get retrieves a value, checking the local cache first, then Redis.
func (c *Cache) Get(ctx context.Context, key string, ns cache.Namespace) ([]byte, error) {
	if val, err := c.local.Get(ctx, key, ns); err == nil && val != nil {
		c.localHits.Add(1)
		return val, nil
	}

	if c.remote != nil {
		val, err := c.remote.Get(ctx, key, ns)
		if err != nil {
			return nil, err
		}
		if val != nil {
			c.redisHits.Add(1)
			// Backfill is best-effort, failure doesn't affect the main flow.
			_ = c.local.Set(ctx, key, ns, val, c.config.LocalTTL)
			c.backfills.Add(1)
			return val, nil
		}
	}

	c.misses.Add(1)
	return nil, nil
}

// Set stores a value in both caches.
func (c *Cache) Set(ctx context.Context, key string, ns cache.Namespace, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, ns, value, c.config.LocalTTL); err != nil {
		return err
	}
	if c.remote != nil {
		return c.remote.Set(ctx, key, ns, value, ttl)
	}
	return nil
}

// Delete removes a key from both caches.
func (c *Cache) Delete(ctx context.Context, key string, ns cache.Namespace) error {
	_ = c.local.Delete(ctx, key, ns)
	if c.remote != nil {
		return c.remote.Delete(ctx, key, ns)
	}
	return nil
}

// Exists checks the local cache first, then Redis.
func (c *Cache) Exists(ctx context.Context, key string, ns cache.Namespace) (bool, error) {
	if found, err := c.local.Exists(ctx, key, ns); err == nil && found {
		return true, nil
	}
	if c.remote != nil {
		return c.remote.Exists(ctx, key, ns)
	}
	return false, nil
}

// FlushNamespace clears the namespace in both tiers.
func (c *Cache) FlushNamespace(ctx context.Context, ns cache.Namespace) error {
	_ = c.local.FlushNamespace(ctx, ns)
	if c.remote != nil {
		return c.remote.FlushNamespace(ctx, ns)
	}
	return nil
}

// Ping reports L2 health; the local tier cannot fail.
func (c *Cache) Ping(ctx context.Context) error {
	if c.remote != nil {
		return c.remote.Ping(ctx)
	}
	return nil
}

// Close closes both tiers.
func (c *Cache) Close() error {
	_ = c.local.Close()
	if c.remote != nil {
		return c.remote.Close()
	}
	return nil
}

// Stats merges statistics from both tiers.
func (c *Cache) Stats() cache.Stats {
	localHits := c.localHits.Load()
	redisHits := c.redisHits.Load()
	misses := c.misses.Load()
	total := localHits + redisHits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(localHits+redisHits) / float64(total)
	}

	var remoteStats cache.Stats
	if c.remote != nil {
		remoteStats = c.remote.Stats()
	}

	return cache.Stats{
		Hits:    localHits + redisHits,
		Misses:  misses,
		Sets:    remoteStats.Sets,
		Deletes: remoteStats.Deletes,
		Errors:  remoteStats.Errors,
		HitRate: hitRate,
	}
}
