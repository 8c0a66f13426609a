package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oprina-ai/memcore/pkg/types"
)

// MemoryStore implements Store using in-memory maps. Used in tests and
// single-node development setups.
type MemoryStore struct {
	mu               sync.RWMutex
	sessions         map[string]*types.Session
	events           map[string][]*types.SessionEvent
	inactivityWindow time.Duration
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore(inactivityWindow time.Duration) *MemoryStore {
	if inactivityWindow <= 0 {
		inactivityWindow = DefaultInactivityWindow
	}
	return &MemoryStore{
		sessions:         make(map[string]*types.Session),
		events:           make(map[string][]*types.SessionEvent),
		inactivityWindow: inactivityWindow,
	}
}

func sessionKey(userID, sessionID string) string {
	return userID + "/" + sessionID
}

// CreateSession creates the session if absent and returns its id.
func (s *MemoryStore) CreateSession(_ context.Context, userID, sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(userID, sessionID)
	if _, exists := s.sessions[key]; exists {
		return sessionID, nil
	}

	now := time.Now().UTC()
	s.sessions[key] = &types.Session{
		UserID:       userID,
		SessionID:    sessionID,
		State:        NewInitialState(),
		CreatedAt:    now,
		LastActivity: now,
	}
	return sessionID, nil
}

// GetSession returns a copy so callers cannot mutate stored state.
func (s *MemoryStore) GetSession(_ context.Context, userID, sessionID string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionKey(userID, sessionID)]
	if !ok {
		return nil, nil
	}
	cp := *sess
	cp.State = CloneTree(sess.State)
	return &cp, nil
}

// UpdateState appends an event and merges the delta atomically under the
// store lock.
func (s *MemoryStore) UpdateState(_ context.Context, userID, sessionID string, delta types.StateTree) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(userID, sessionID)
	sess, ok := s.sessions[key]
	if !ok {
		return false, nil
	}

	now := time.Now().UTC()
	event := &types.SessionEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		Seq:       int64(len(s.events[key]) + 1),
		Delta:     CloneTree(delta),
		CreatedAt: now,
	}
	s.events[key] = append(s.events[key], event)

	sess.State = ApplyDelta(sess.State, CloneTree(delta))
	sess.LastActivity = now
	return true, nil
}

// DeleteSession removes the session and its event log.
func (s *MemoryStore) DeleteSession(_ context.Context, userID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(userID, sessionID)
	if _, ok := s.sessions[key]; !ok {
		return false, nil
	}
	delete(s.sessions, key)
	delete(s.events, key)
	return true, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (s *MemoryStore) ListSessions(_ context.Context, userID string, activeOnly bool) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-s.inactivityWindow)
	var out []*types.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		if activeOnly && sess.LastActivity.Before(cutoff) {
			continue
		}
		cp := *sess
		cp.State = CloneTree(sess.State)
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

// ListEvents returns the most recent events, newest first.
func (s *MemoryStore) ListEvents(_ context.Context, userID, sessionID string, limit int) ([]*types.SessionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[sessionKey(userID, sessionID)]
	out := make([]*types.SessionEvent, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		cp := *events[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
