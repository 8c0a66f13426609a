// Package healthcheck probes the four memory tiers and aggregates the result
// into a single service status. The session and history tiers are critical;
// the cache and pattern tiers only degrade the service when they fail.
package healthcheck

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oprina-ai/memcore/internal/history"
	"github.com/oprina-ai/memcore/internal/metrics"
	"github.com/oprina-ai/memcore/internal/pattern"
	"github.com/oprina-ai/memcore/internal/session"
	"github.com/oprina-ai/memcore/pkg/cache"
	memerrors "github.com/oprina-ai/memcore/pkg/errors"
	"github.com/oprina-ai/memcore/pkg/types"
)

const (
	defaultProbeInterval = 30 * time.Second
	defaultProbeTimeout  = 5 * time.Second

	// probeUser namespaces sentinel records so they never collide with
	// real user data.
	probeUser    = "_healthcheck"
	probeSession = "probe"
)

// Config controls the periodic checker behavior.
type Config struct {
	Enabled  bool
	Interval time.Duration
	Timeout  time.Duration
}

// Checker probes each tier and keeps the latest aggregated report.
type Checker struct {
	cfg      Config
	cache    cache.Cache
	sessions session.Store
	history  history.Store
	patterns *pattern.Engine
	logger   *slog.Logger
	started  atomic.Bool

	mu   sync.RWMutex
	last *types.HealthReport
}

// NewChecker creates a tier health checker.
func NewChecker(cfg Config, c cache.Cache, sessions session.Store, hist history.Store, patterns *pattern.Engine, logger *slog.Logger) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		cfg:      cfg,
		cache:    c,
		sessions: sessions,
		history:  hist,
		patterns: patterns,
		logger:   logger,
	}
}

// Start begins the probe loop until the context is canceled.
func (c *Checker) Start(ctx context.Context) {
	if c == nil || !c.cfg.Enabled {
		return
	}
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.run(ctx)
}

func (c *Checker) run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.Check(ctx)

	for {
		select {
		case <-ticker.C:
			c.Check(ctx)
		case <-ctx.Done():
			c.logger.Info("health checker stopped")
			return
		}
	}
}

// LastReport returns the most recent report, or nil before the first probe.
func (c *Checker) LastReport() *types.HealthReport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Check probes every tier and aggregates the results.
func (c *Checker) Check(ctx context.Context) *types.HealthReport {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	report := &types.HealthReport{
		Tiers: map[string]*types.TierHealth{
			memerrors.TierCache:   c.checkCache(ctx),
			memerrors.TierSession: c.checkSession(ctx),
			memerrors.TierHistory: c.checkHistory(ctx),
			memerrors.TierPattern: c.checkPattern(ctx),
		},
		CheckedAt: time.Now().UTC(),
	}
	report.Status = Aggregate(report.Tiers)

	for tier, th := range report.Tiers {
		metrics.TierHealthy.WithLabelValues(tier).Set(healthValue(th.Status))
		metrics.HealthCheckDuration.WithLabelValues(tier).Observe(th.ResponseTime.Seconds())
		if th.Status != types.StatusHealthy {
			c.logger.Warn("tier unhealthy", "tier", tier, "status", th.Status, "error", th.Error)
		}
	}

	c.mu.Lock()
	c.last = report
	c.mu.Unlock()
	return report
}

// Aggregate folds per-tier results into the service status: a failed
// session or history tier is an outage, a failed cache or pattern tier
// only degrades.
func Aggregate(tiers map[string]*types.TierHealth) types.HealthStatus {
	status := types.StatusHealthy
	for tier, th := range tiers {
		if th.Status == types.StatusHealthy {
			continue
		}
		critical := tier == memerrors.TierSession || tier == memerrors.TierHistory
		if critical && th.Status == types.StatusUnhealthy {
			return types.StatusUnhealthy
		}
		status = types.StatusDegraded
	}
	return status
}

func healthValue(s types.HealthStatus) float64 {
	switch s {
	case types.StatusHealthy:
		return 1
	case types.StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

func (c *Checker) checkCache(ctx context.Context) *types.TierHealth {
	start := time.Now()
	th := &types.TierHealth{Checks: map[string]bool{}}

	th.Checks["ping"] = c.cache.Ping(ctx) == nil

	// Full round trip through the temp namespace.
	payload := []byte(`{"probe":true}`)
	roundTrip := false
	if err := c.cache.Set(ctx, probeUser, cache.NamespaceTemp, payload, time.Minute); err == nil {
		if got, err := c.cache.Get(ctx, probeUser, cache.NamespaceTemp); err == nil && bytes.Equal(got, payload) {
			roundTrip = c.cache.Delete(ctx, probeUser, cache.NamespaceTemp) == nil
		}
	}
	th.Checks["round_trip"] = roundTrip

	th.ResponseTime = time.Since(start)
	th.Status = statusFromChecks(th.Checks)
	if th.Status != types.StatusHealthy {
		th.Error = "cache probe failed"
	}
	return th
}

func (c *Checker) checkSession(ctx context.Context) *types.TierHealth {
	start := time.Now()
	th := &types.TierHealth{Checks: map[string]bool{}}

	th.Checks["ping"] = c.sessions.Ping(ctx) == nil

	roundTrip := false
	if _, err := c.sessions.CreateSession(ctx, probeUser, probeSession); err == nil {
		if sess, err := c.sessions.GetSession(ctx, probeUser, probeSession); err == nil && sess != nil {
			_, delErr := c.sessions.DeleteSession(ctx, probeUser, probeSession)
			roundTrip = delErr == nil
		}
	}
	th.Checks["round_trip"] = roundTrip

	th.ResponseTime = time.Since(start)
	th.Status = statusFromChecks(th.Checks)
	if th.Status != types.StatusHealthy {
		th.Error = "session store probe failed"
	}
	return th
}

func (c *Checker) checkHistory(ctx context.Context) *types.TierHealth {
	start := time.Now()
	th := &types.TierHealth{Checks: map[string]bool{}}

	th.Checks["ping"] = c.history.Ping(ctx) == nil

	_, err := c.history.ListUserConversations(ctx, probeUser, 1, 0)
	th.Checks["read"] = err == nil

	th.ResponseTime = time.Since(start)
	th.Status = statusFromChecks(th.Checks)
	if th.Status != types.StatusHealthy {
		th.Error = "history store probe failed"
	}
	return th
}

func (c *Checker) checkPattern(ctx context.Context) *types.TierHealth {
	start := time.Now()
	th := &types.TierHealth{Checks: map[string]bool{}}

	th.Checks["ping"] = c.patterns.Ping(ctx) == nil

	_, err := c.patterns.GetUserPatterns(ctx, probeUser, "")
	th.Checks["read"] = err == nil

	th.ResponseTime = time.Since(start)
	th.Status = statusFromChecks(th.Checks)
	if th.Status != types.StatusHealthy {
		th.Error = "pattern store probe failed"
	}
	return th
}

func statusFromChecks(checks map[string]bool) types.HealthStatus {
	failed := 0
	for _, ok := range checks {
		if !ok {
			failed++
		}
	}
	switch failed {
	case 0:
		return types.StatusHealthy
	case len(checks):
		return types.StatusUnhealthy
	default:
		return types.StatusDegraded
	}
}
