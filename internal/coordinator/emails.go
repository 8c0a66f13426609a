package coordinator

import (
	"context"
	"strings"

	"github.com/oprina-ai/memcore/internal/metrics"
	"github.com/oprina-ai/memcore/internal/observability"
	"github.com/oprina-ai/memcore/pkg/cache"
	memerrors "github.com/oprina-ai/memcore/pkg/errors"
	"github.com/oprina-ai/memcore/pkg/types"
)

// CacheUserEmails stores the user's freshly fetched email list in the email
// namespace and records an email-check learning event. Unlike cache reads,
// the write is the point of this call, so its failure is surfaced.
func (c *Coordinator) CacheUserEmails(ctx context.Context, userID string, emails []types.EmailSummary) error {
	ctx, span := observability.StartMemorySpan(ctx, c.tracer, "coordinator.cache_user_emails", memerrors.TierCache, userID)
	defer span.End()

	if err := cache.SetJSON(ctx, c.cache, userID, cache.NamespaceEmail, emails, 0); err != nil {
		metrics.CacheErrors.WithLabelValues(string(cache.NamespaceEmail), "set").Inc()
		observability.RecordError(span, err)
		return memerrors.NewTransient(memerrors.TierCache, "email cache write failed", err)
	}

	c.learner.Enqueue(types.LearningEvent{
		UserID:    userID,
		EventType: types.EventEmailCheck,
		EventData: map[string]any{"email_count": len(emails)},
		Context:   map[string]any{"current_hour": c.now().Hour()},
	})
	return nil
}

// GetUserEmailsWithContext reads the cached email list together with the
// session's email:* state and the user's adaptive response settings. A cache
// miss or failure is reported via CacheStatus, never as an error: the email
// state comes from the session store and the caller falls back to the mail
// API for the list itself.
func (c *Coordinator) GetUserEmailsWithContext(ctx context.Context, userID, sessionID string) (*types.EmailContext, error) {
	ctx, span := observability.StartMemorySpan(ctx, c.tracer, "coordinator.get_user_emails", memerrors.TierCache, userID)
	defer span.End()

	ec := &types.EmailContext{
		Settings:  types.DefaultResponseSettings(),
		FetchedAt: c.now().UTC(),
	}

	var emails []types.EmailSummary
	found, err := cache.GetJSON(ctx, c.cache, userID, cache.NamespaceEmail, &emails)
	switch {
	case err != nil:
		metrics.CacheErrors.WithLabelValues(string(cache.NamespaceEmail), "get").Inc()
		c.logger.Warn("email cache read failed", "user_id", userID, "error", err)
	case found:
		metrics.CacheHits.WithLabelValues(string(cache.NamespaceEmail)).Inc()
		ec.Emails = emails
		ec.CacheStatus.EmailsCached = true
	default:
		metrics.CacheMisses.WithLabelValues(string(cache.NamespaceEmail)).Inc()
	}

	if cached, err := c.cache.Exists(ctx, snapshotKey(userID, sessionID), cache.NamespaceSession); err == nil {
		ec.CacheStatus.SessionCached = cached
	}

	if sessionID != "" {
		start := c.now()
		sess, err := c.sessions.GetSession(ctx, userID, sessionID)
		observe(memerrors.TierSession, "get_session", start, err)
		switch {
		case err != nil:
			c.logger.Warn("session read failed during email fetch",
				"user_id", userID, "session_id", sessionID, "error", err)
		case sess != nil:
			ec.EmailState = emailStateOf(sess.State)
		}
	}

	if settings, err := c.patterns.GetAdaptiveResponseSettings(ctx, userID); err == nil {
		ec.Settings = settings
	}

	return ec, nil
}

// InvalidateUserEmails drops the cached email list, for when an agent knows
// the mailbox changed.
func (c *Coordinator) InvalidateUserEmails(ctx context.Context, userID string) error {
	if err := c.cache.Delete(ctx, userID, cache.NamespaceEmail); err != nil {
		metrics.CacheErrors.WithLabelValues(string(cache.NamespaceEmail), "delete").Inc()
		return memerrors.NewTransient(memerrors.TierCache, "email cache invalidation failed", err)
	}
	return nil
}

// emailStateOf extracts the email:* keys from a session state tree.
func emailStateOf(state types.StateTree) types.StateTree {
	var out types.StateTree
	for key, value := range state {
		if strings.HasPrefix(key, types.StatePrefixEmail) {
			if out == nil {
				out = types.StateTree{}
			}
			out[key] = value
		}
	}
	return out
}

func agentDataKey(userID, sessionID, agent, key string) string {
	return userID + "/" + sessionID + "/" + agent + "/" + key
}

// SetAgentCoordinationData shares one value between agents. Ephemeral data
// lives only in the agent cache namespace; persistent data is written through
// to the session store under agent_states.<agent>.<key> and mirrored in the
// cache for fast reads.
func (c *Coordinator) SetAgentCoordinationData(ctx context.Context, userID, sessionID, agent, key string, value any, persistent bool) error {
	ctx, span := observability.StartMemorySpan(ctx, c.tracer, "coordinator.set_agent_data", memerrors.TierCache, userID)
	defer span.End()

	if persistent {
		start := c.now()
		ok, err := c.sessions.UpdateState(ctx, userID, sessionID, types.StateTree{
			types.StateKeyAgentStates: types.StateTree{
				agent: types.StateTree{key: value},
			},
		})
		observe(memerrors.TierSession, "update_state", start, err)
		if err != nil {
			observability.RecordError(span, err)
			return err
		}
		if !ok {
			return memerrors.NewNotFound(memerrors.TierSession, snapshotKey(userID, sessionID), "session not found")
		}
	}

	err := cache.SetJSON(ctx, c.cache, agentDataKey(userID, sessionID, agent, key), cache.NamespaceAgent, value, 0)
	if err != nil {
		metrics.CacheErrors.WithLabelValues(string(cache.NamespaceAgent), "set").Inc()
		if !persistent {
			// No durable copy exists; the caller must know the write was lost.
			observability.RecordError(span, err)
			return memerrors.NewTransient(memerrors.TierCache, "agent data cache write failed", err)
		}
		c.logger.Debug("agent data cache mirror failed", "user_id", userID, "agent", agent, "key", key, "error", err)
	}
	return nil
}

// GetAgentCoordinationData reads a shared value, cache first, falling back
// to the session store's agent_states subtree for persistent entries.
func (c *Coordinator) GetAgentCoordinationData(ctx context.Context, userID, sessionID, agent, key string) (any, bool, error) {
	ctx, span := observability.StartMemorySpan(ctx, c.tracer, "coordinator.get_agent_data", memerrors.TierCache, userID)
	defer span.End()

	var value any
	found, err := cache.GetJSON(ctx, c.cache, agentDataKey(userID, sessionID, agent, key), cache.NamespaceAgent, &value)
	if err != nil {
		metrics.CacheErrors.WithLabelValues(string(cache.NamespaceAgent), "get").Inc()
	} else if found {
		metrics.CacheHits.WithLabelValues(string(cache.NamespaceAgent)).Inc()
		return value, true, nil
	} else {
		metrics.CacheMisses.WithLabelValues(string(cache.NamespaceAgent)).Inc()
	}

	sess, err := c.sessions.GetSession(ctx, userID, sessionID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, false, err
	}
	if sess == nil {
		return nil, false, nil
	}

	agents, _ := sess.State[types.StateKeyAgentStates].(map[string]any)
	agentState, _ := agents[agent].(map[string]any)
	value, ok := agentState[key]
	return value, ok, nil
}
