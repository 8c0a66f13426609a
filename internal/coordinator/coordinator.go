// Package coordinator implements the memory facade: the single surface
// agents use to touch the cache, session, history, and pattern tiers. It
// owns the cross-tier policies: cache reads are best-effort, the session
// store is authoritative for state, and learning never blocks a caller.
package coordinator

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/oprina-ai/memcore/internal/history"
	"github.com/oprina-ai/memcore/internal/metrics"
	"github.com/oprina-ai/memcore/internal/observability"
	"github.com/oprina-ai/memcore/internal/pattern"
	"github.com/oprina-ai/memcore/internal/session"
	"github.com/oprina-ai/memcore/pkg/cache"
	memerrors "github.com/oprina-ai/memcore/pkg/errors"
	"github.com/oprina-ai/memcore/pkg/types"
)

const (
	// historyPointerCap bounds the conversation_history list kept inside
	// session state. Older pointers fall off; the full log lives in the
	// history tier.
	historyPointerCap = 20

	// defaultRecentLimit is how many recent messages a session context carries.
	defaultRecentLimit = 10
)

// Config tunes the coordinator's composition behavior.
type Config struct {
	RecentMessageLimit int
	LearnBufferSize    int
	LearnEventsPerSec  float64
}

// Coordinator is the memory facade over the four tiers.
type Coordinator struct {
	sessions session.Store
	history  history.Store
	patterns *pattern.Engine
	cache    cache.Cache
	learner  *Learner
	logger   *slog.Logger
	tracer   trace.Tracer

	recentLimit int
	now         func() time.Time
}

// New wires the facade. The learner worker starts immediately.
func New(sessions session.Store, hist history.Store, patterns *pattern.Engine, c cache.Cache, logger *slog.Logger, cfg Config) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	recentLimit := cfg.RecentMessageLimit
	if recentLimit <= 0 {
		recentLimit = defaultRecentLimit
	}
	return &Coordinator{
		sessions:    sessions,
		history:     hist,
		patterns:    patterns,
		cache:       c,
		learner:     NewLearner(patterns, logger, cfg.LearnBufferSize, cfg.LearnEventsPerSec),
		logger:      logger,
		tracer:      otel.Tracer(observability.TracerName),
		recentLimit: recentLimit,
		now:         time.Now,
	}
}

// Close stops the learner and leaves the stores to their owners.
func (c *Coordinator) Close() {
	c.learner.Close()
}

func snapshotKey(userID, sessionID string) string {
	return userID + "/" + sessionID
}

func observe(tier, op string, start time.Time, err error) {
	metrics.StoreLatency.WithLabelValues(tier, op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreErrors.WithLabelValues(tier, op).Inc()
	}
}

// CreateSession creates (or returns) the session and warms its cache
// snapshot. Idempotent: recreating an existing session never resets state.
func (c *Coordinator) CreateSession(ctx context.Context, userID, sessionID string) (string, error) {
	ctx, span := observability.StartMemorySpan(ctx, c.tracer, "coordinator.create_session", memerrors.TierSession, userID)
	defer span.End()
	start := c.now()

	id, err := c.sessions.CreateSession(ctx, userID, sessionID)
	observe(memerrors.TierSession, "create_session", start, err)
	if err != nil {
		observability.RecordError(span, err)
		return "", err
	}

	c.refreshSnapshot(ctx, userID, id)
	c.logger.Info("session created", "user_id", userID, "session_id", id)
	return id, nil
}

// GetSessionContext assembles the merged context agents work from. Session
// state comes from the session store, never the cache; everything else is
// best-effort and degrades to an emptier context rather than an error.
func (c *Coordinator) GetSessionContext(ctx context.Context, userID, sessionID string) (*types.SessionContext, error) {
	ctx, span := observability.StartMemorySpan(ctx, c.tracer, "coordinator.get_session_context", memerrors.TierSession, userID)
	defer span.End()
	start := c.now()

	sess, err := c.sessions.GetSession(ctx, userID, sessionID)
	observe(memerrors.TierSession, "get_session", start, err)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if sess == nil {
		return nil, memerrors.NewNotFound(memerrors.TierSession, snapshotKey(userID, sessionID), "session not found")
	}

	sc := &types.SessionContext{
		UserID:    userID,
		SessionID: sessionID,
		State:     sess.State,
		Settings:  types.DefaultResponseSettings(),
	}

	if cached, err := c.cache.Exists(ctx, snapshotKey(userID, sessionID), cache.NamespaceSession); err == nil {
		sc.CacheStatus.SessionCached = cached
	} else {
		metrics.CacheErrors.WithLabelValues(string(cache.NamespaceSession), "exists").Inc()
	}

	if msgs, err := c.history.GetRecentMessages(ctx, userID, c.recentLimit); err == nil {
		sc.RecentMessages = msgs
	} else {
		c.logger.Warn("recent messages unavailable", "user_id", userID, "error", err)
	}

	if pats, err := c.patterns.GetUserPatterns(ctx, userID, ""); err == nil {
		sc.Patterns = pats
	} else {
		c.logger.Warn("patterns unavailable", "user_id", userID, "error", err)
	}

	if settings, err := c.patterns.GetAdaptiveResponseSettings(ctx, userID); err == nil {
		sc.Settings = settings
	}

	if sugg, err := c.patterns.GetSmartSuggestions(ctx, userID, map[string]any{
		"current_hour": c.now().Hour(),
	}); err == nil {
		sc.Suggestions = sugg
	}

	c.refreshSnapshot(ctx, userID, sessionID)
	return sc, nil
}

// UpdateSessionContext applies a state delta through the session store's
// append-only protocol, then refreshes the cache snapshot. Returns false for
// an unknown session.
func (c *Coordinator) UpdateSessionContext(ctx context.Context, userID, sessionID string, delta types.StateTree) (bool, error) {
	ctx, span := observability.StartMemorySpan(ctx, c.tracer, "coordinator.update_session_context", memerrors.TierSession, userID)
	defer span.End()
	start := c.now()

	ok, err := c.sessions.UpdateState(ctx, userID, sessionID, delta)
	observe(memerrors.TierSession, "update_state", start, err)
	if err != nil {
		observability.RecordError(span, err)
		return false, err
	}
	if ok {
		c.refreshSnapshot(ctx, userID, sessionID)
	}
	return ok, nil
}

// DeleteSession removes the session, its event log, and its cache snapshot.
func (c *Coordinator) DeleteSession(ctx context.Context, userID, sessionID string) (bool, error) {
	ctx, span := observability.StartMemorySpan(ctx, c.tracer, "coordinator.delete_session", memerrors.TierSession, userID)
	defer span.End()
	start := c.now()

	ok, err := c.sessions.DeleteSession(ctx, userID, sessionID)
	observe(memerrors.TierSession, "delete_session", start, err)
	if err != nil {
		observability.RecordError(span, err)
		return false, err
	}
	if ok {
		if cerr := c.cache.Delete(ctx, snapshotKey(userID, sessionID), cache.NamespaceSession); cerr != nil {
			metrics.CacheErrors.WithLabelValues(string(cache.NamespaceSession), "delete").Inc()
		}
		c.logger.Info("session deleted", "user_id", userID, "session_id", sessionID)
	}
	return ok, nil
}

// ListSessions lists the user's sessions, optionally only recently active ones.
func (c *Coordinator) ListSessions(ctx context.Context, userID string, activeOnly bool) ([]*types.Session, error) {
	return c.sessions.ListSessions(ctx, userID, activeOnly)
}

// LearnFromUserAction forwards one behavioral observation to the pattern
// engine. Fire-and-forget: a dropped event is invisible to the caller.
func (c *Coordinator) LearnFromUserAction(ctx context.Context, userID, actionType string, details map[string]any) {
	c.learner.Enqueue(types.LearningEvent{
		UserID:    userID,
		EventType: actionType,
		EventData: details,
		Context:   map[string]any{"current_hour": c.now().Hour()},
	})
}

// GetSmartSuggestions exposes ranked suggestions for the current situation.
func (c *Coordinator) GetSmartSuggestions(ctx context.Context, userID string, situational map[string]any) ([]types.Suggestion, error) {
	if situational == nil {
		situational = map[string]any{"current_hour": c.now().Hour()}
	}
	return c.patterns.GetSmartSuggestions(ctx, userID, situational)
}

// refreshSnapshot writes the current session state into the session-namespace
// cache. Failures are counted and logged, never surfaced.
func (c *Coordinator) refreshSnapshot(ctx context.Context, userID, sessionID string) {
	sess, err := c.sessions.GetSession(ctx, userID, sessionID)
	if err != nil || sess == nil {
		return
	}
	if err := cache.SetJSON(ctx, c.cache, snapshotKey(userID, sessionID), cache.NamespaceSession, sess, 0); err != nil {
		metrics.CacheErrors.WithLabelValues(string(cache.NamespaceSession), "set").Inc()
		c.logger.Debug("session snapshot refresh failed", "user_id", userID, "session_id", sessionID, "error", err)
	}
}
