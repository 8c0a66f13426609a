// Package session implements the durable per-(user, session) state store.
// State is mutated only through an append-only delta protocol: each update is
// recorded as an event and merged into the state tree, never applied as a
// blind overwrite.
package session

import (
	"context"
	"time"

	"github.com/oprina-ai/memcore/pkg/types"
)

// DefaultInactivityWindow bounds "active" sessions in ListSessions.
const DefaultInactivityWindow = 24 * time.Hour

// Store defines the session store contract. Implementations must make
// UpdateState atomic per call: either the whole delta is applied and its
// event recorded, or nothing is.
type Store interface {
	// CreateSession creates the session if absent and returns its id.
	// Passing an empty sessionID generates one. Idempotent: an existing
	// (user, session) pair is returned unchanged, never reinitialized.
	CreateSession(ctx context.Context, userID, sessionID string) (string, error)

	// GetSession returns nil, nil for an unknown (user, session) pair.
	GetSession(ctx context.Context, userID, sessionID string) (*types.Session, error)

	// UpdateState appends the delta to the session's event log and merges it
	// into the state tree. Dot-path keys expand into nested structure before
	// the merge. Returns false (without error) for an unknown session.
	UpdateState(ctx context.Context, userID, sessionID string, delta types.StateTree) (bool, error)

	// DeleteSession removes the session and its event log. Deletion is an
	// explicit operation; callers are expected to log it.
	DeleteSession(ctx context.Context, userID, sessionID string) (bool, error)

	// ListSessions returns the user's sessions, most recently active first.
	// With activeOnly set, sessions whose last_activity predates the
	// inactivity window are filtered out.
	ListSessions(ctx context.Context, userID string, activeOnly bool) ([]*types.Session, error)

	// ListEvents returns the most recent events for a session, newest first.
	ListEvents(ctx context.Context, userID, sessionID string, limit int) ([]*types.SessionEvent, error)

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
