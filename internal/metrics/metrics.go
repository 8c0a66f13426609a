// Package metrics provides Prometheus metrics for the memory service: cache
// effectiveness, per-tier store latency, learning throughput, and tier health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "memcore"

// LatencyBuckets defines histogram buckets for store latencies (in seconds).
// Memory-tier operations are fast; buckets top out at 10s.
var LatencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
	0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
}

var (
	// CacheHits counts cache reads served from a tier, per namespace.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache hits by namespace",
		},
		[]string{"namespace"},
	)

	// CacheMisses counts cache reads that fell through to a store.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache misses by namespace",
		},
		[]string{"namespace"},
	)

	// CacheErrors counts cache failures absorbed by best-effort fallbacks.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Cache errors swallowed by fallback paths",
		},
		[]string{"namespace", "op"},
	)
)

var (
	// StoreLatency tracks store operation latency per tier.
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_latency_seconds",
			Help:      "Store operation latency by tier and operation",
			Buckets:   LatencyBuckets,
		},
		[]string{"tier", "op"},
	)

	// StoreErrors counts failed store operations per tier.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Store operation errors by tier and operation",
		},
		[]string{"tier", "op"},
	)
)

var (
	// LearningEvents counts learning events by type and disposition
	// (learned, skipped, dropped).
	LearningEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "learning_events_total",
			Help:      "Learning events by event type and disposition",
		},
		[]string{"event_type", "disposition"},
	)

	// LearningQueueDepth tracks the forwarder's buffered backlog.
	LearningQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "learning_queue_depth",
			Help:      "Events waiting in the learning forwarder buffer",
		},
	)
)

var (
	// TierHealthy reports each tier's latest probe result (1 healthy,
	// 0.5 degraded, 0 unhealthy).
	TierHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tier_health",
			Help:      "Tier health: 1 healthy, 0.5 degraded, 0 unhealthy",
		},
		[]string{"tier"},
	)

	// HealthCheckDuration tracks probe round-trip time per tier.
	HealthCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_check_duration_seconds",
			Help:      "Health probe duration by tier",
			Buckets:   LatencyBuckets,
		},
		[]string{"tier"},
	)
)
