// Package redis provides a Redis-based cache backend.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/oprina-ai/memcore/pkg/cache"
)

// Cache implements cache.Cache using Redis as backend.
type Cache struct {
	client goredis.UniversalClient
	prefix string

	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
	errs    atomic.Int64
}

// Config holds configuration for the Redis cache.
type Config struct {
	// Single node configuration
	Addr     string `yaml:"addr"`     // Redis address (e.g., "localhost:6379")
	Password string `yaml:"password"` // Redis password
	DB       int    `yaml:"db"`       // Redis database number

	// Sentinel configuration
	SentinelAddrs  []string `yaml:"sentinel_addrs"`  // Sentinel addresses
	SentinelMaster string   `yaml:"sentinel_master"` // Sentinel master name

	// Common configuration
	Prefix       string        `yaml:"prefix"`         // Service-wide key prefix
	DialTimeout  time.Duration `yaml:"dial_timeout"`   // Connection timeout
	ReadTimeout  time.Duration `yaml:"read_timeout"`   // Read timeout
	WriteTimeout time.Duration `yaml:"write_timeout"`  // Write timeout
	PoolSize     int           `yaml:"pool_size"`      // Connection pool size
	MinIdleConns int           `yaml:"min_idle_conns"` // Minimum idle connections
	MaxRetries   int           `yaml:"max_retries"`    // Maximum retries
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DB:           0,
		Prefix:       "memcore",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	}
}

// New creates a new Redis cache client and verifies connectivity.
func New(cfg Config) (*Cache, error) {
	var client goredis.UniversalClient

	if len(cfg.SentinelAddrs) > 0 {
		client = goredis.NewFailoverClient(&goredis.FailoverOptions{
			MasterName:    cfg.SentinelMaster,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			MaxRetries:    cfg.MaxRetries,
		})
	} else {
		client = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Cache{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

// NewWithClient wraps an existing client, used by tests with miniredis.
func NewWithClient(client goredis.UniversalClient, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// fullKey applies the service prefix and namespace to the key.
func (c *Cache) fullKey(key string, ns cache.Namespace) string {
	if c.prefix == "" {
		return ns.Key(key)
	}
	return c.prefix + ":" + ns.Key(key)
}

// Get retrieves a value from Redis. Returns nil, nil on a miss.
func (c *Cache) Get(ctx context.Context, key string, ns cache.Namespace) ([]byte, error) {
	val, err := c.client.Get(ctx, c.fullKey(key, ns)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			c.misses.Add(1)
			return nil, nil
		}
		c.errs.Add(1)
		return nil, fmt.Errorf("redis get: %w", err)
	}

	c.hits.Add(1)
	return val, nil
}

// Set stores a value in Redis with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, ns cache.Namespace, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ns.DefaultTTL()
	}

	if err := c.client.Set(ctx, c.fullKey(key, ns), value, ttl).Err(); err != nil {
		c.errs.Add(1)
		return fmt.Errorf("redis set: %w", err)
	}

	c.sets.Add(1)
	return nil
}

// Delete removes a key from Redis.
func (c *Cache) Delete(ctx context.Context, key string, ns cache.Namespace) error {
	if err := c.client.Del(ctx, c.fullKey(key, ns)).Err(); err != nil {
		c.errs.Add(1)
		return fmt.Errorf("redis del: %w", err)
	}

	c.deletes.Add(1)
	return nil
}

// Exists reports whether a key is present.
func (c *Cache) Exists(ctx context.Context, key string, ns cache.Namespace) (bool, error) {
	n, err := c.client.Exists(ctx, c.fullKey(key, ns)).Result()
	if err != nil {
		c.errs.Add(1)
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// FlushNamespace removes every key in the namespace using SCAN + DEL so large
// namespaces don't block the server the way KEYS would.
func (c *Cache) FlushNamespace(ctx context.Context, ns cache.Namespace) error {
	pattern := c.fullKey("*", ns)

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.errs.Add(1)
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.errs.Add(1)
				return fmt.Errorf("redis del: %w", err)
			}
			c.deletes.Add(int64(len(keys)))
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping checks Redis connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
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
		Errors:  c.errs.Load(),
		HitRate: hitRate,
	}
}
