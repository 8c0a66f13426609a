package pattern

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"github.com/oprina-ai/memcore/pkg/types"
)

// MemoryStore implements Store using in-memory maps.
type MemoryStore struct {
	mu       sync.RWMutex
	patterns map[string]*types.Pattern
}

// NewMemoryStore creates a new in-memory pattern store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{patterns: make(map[string]*types.Pattern)}
}

func patternKey(userID string, pt types.PatternType) string {
	return userID + "/" + string(pt)
}

// clonePattern round-trips through JSON so stored data matches what a JSONB
// column would return and callers cannot mutate shared maps.
func clonePattern(p *types.Pattern) *types.Pattern {
	cp := *p
	if p.Data != nil {
		data, err := json.Marshal(p.Data)
		if err == nil {
			var out map[string]any
			if json.Unmarshal(data, &out) == nil {
				cp.Data = out
			}
		}
	}
	return &cp
}

// GetPattern returns nil, nil when no record exists yet.
func (s *MemoryStore) GetPattern(_ context.Context, userID string, pt types.PatternType) (*types.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patterns[patternKey(userID, pt)]
	if !ok {
		return nil, nil
	}
	return clonePattern(p), nil
}

// UpsertPattern writes the full record.
func (s *MemoryStore) UpsertPattern(_ context.Context, p *types.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[patternKey(p.UserID, p.Type)] = clonePattern(p)
	return nil
}

// ListPatterns returns all of a user's pattern records.
func (s *MemoryStore) ListPatterns(_ context.Context, userID string) ([]*types.Pattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Pattern
	for _, p := range s.patterns {
		if p.UserID == userID {
			out = append(out, clonePattern(p))
		}
	}
	return out, nil
}

// DeletePattern removes one record.
func (s *MemoryStore) DeletePattern(_ context.Context, userID string, pt types.PatternType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patterns, patternKey(userID, pt))
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
