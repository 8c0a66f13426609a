// Package cache provides the public caching interface for the memory
// substrate. It supports in-process and Redis backends, plus a two-tier
// combination. Entries are namespaced by data category and carry per-namespace
// default TTLs. No entry's absence may change correctness, only latency.
package cache

import (
	"context"
	"time"
)

// Type represents the type of cache backend.
type Type string

const (
	TypeLocal Type = "local" // In-memory cache
	TypeRedis Type = "redis" // Redis cache
	TypeDual  Type = "dual"  // In-memory + Redis dual cache
)

// Namespace partitions cache keys by data category and selects the default
// TTL. Bulk invalidation operates per namespace.
type Namespace string

const (
	NamespaceEmail   Namespace = "email"   // cached email lists
	NamespaceAgent   Namespace = "agent"   // per-turn agent coordination scratch
	NamespaceSession Namespace = "session" // session state snapshots
	NamespaceUser    Namespace = "user"    // user preference cache
	NamespaceTemp    Namespace = "temp"    // short-lived scratch
)

// DefaultTTL returns the namespace's default expiry. Session snapshots are
// short-lived; user preferences are cached for a day.
func (n Namespace) DefaultTTL() time.Duration {
	switch n {
	case NamespaceEmail:
		return 15 * time.Minute
	case NamespaceAgent:
		return 5 * time.Minute
	case NamespaceSession:
		return 30 * time.Minute
	case NamespaceUser:
		return 24 * time.Hour
	case NamespaceTemp:
		return 2 * time.Minute
	default:
		return 10 * time.Minute
	}
}

// Key returns the namespaced key layout shared by all backends.
func (n Namespace) Key(key string) string {
	return string(n) + ":" + key
}

// Cache defines the interface for all cache implementations. All operations
// are best-effort: callers must have a fallback path for every read and must
// not fail their primary operation on a write error.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string, ns Namespace) ([]byte, error)

	// Set stores a value in the cache with the given TTL.
	// If TTL is <= 0, the namespace default is used.
	Set(ctx context.Context, key string, ns Namespace, value []byte, ttl time.Duration) error

	// Delete removes a key from the cache.
	Delete(ctx context.Context, key string, ns Namespace) error

	// Exists reports whether a key is present without fetching it.
	Exists(ctx context.Context, key string, ns Namespace) (bool, error)

	// FlushNamespace removes every key in the namespace.
	FlushNamespace(ctx context.Context, ns Namespace) error

	// Ping checks if the cache is healthy.
	Ping(ctx context.Context) error

	// Close releases any resources held by the cache.
	Close() error

	// Stats returns cache statistics.
	Stats() Stats
}

// Entry represents a single cache entry for bulk operations.
type Entry struct {
	Key       string
	Namespace Namespace
	Value     []byte
	TTL       time.Duration
}

// Stats holds cache statistics for monitoring.
type Stats struct {
	Hits       int64         `json:"hits"`
	Misses     int64         `json:"misses"`
	Sets       int64         `json:"sets"`
	Deletes    int64         `json:"deletes"`
	Errors     int64         `json:"errors"`
	HitRate    float64       `json:"hit_rate"`
	AvgLatency time.Duration `json:"avg_latency"`
}
