package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/oprina-ai/memcore/pkg/types"
)

// PostgresStore implements Store using PostgreSQL. The delta-append protocol
// runs inside one transaction with the session row locked, which is what
// makes UpdateState atomic per call under concurrent writers.
type PostgresStore struct {
	db               *sql.DB
	inactivityWindow time.Duration
}

// NewPostgresStore creates a new PostgreSQL session store.
func NewPostgresStore(db *sql.DB, inactivityWindow time.Duration) *PostgresStore {
	if inactivityWindow <= 0 {
		inactivityWindow = DefaultInactivityWindow
	}
	return &PostgresStore{db: db, inactivityWindow: inactivityWindow}
}

// EnsureSchema creates the session tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			user_id       TEXT        NOT NULL,
			session_id    TEXT        NOT NULL,
			state         JSONB       NOT NULL DEFAULT '{}',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_activity TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, session_id)
		)`,
		`CREATE TABLE IF NOT EXISTS session_events (
			id         UUID        PRIMARY KEY,
			user_id    TEXT        NOT NULL,
			session_id TEXT        NOT NULL,
			seq        BIGINT      NOT NULL,
			delta      JSONB       NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_events_session
			ON session_events (user_id, session_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_activity
			ON sessions (user_id, last_activity DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure session schema: %w", err)
		}
	}
	return nil
}

// CreateSession creates the session if absent and returns its id.
// ON CONFLICT DO NOTHING keeps duplicate creation calls from reinitializing
// existing state.
func (s *PostgresStore) CreateSession(ctx context.Context, userID, sessionID string) (string, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	stateJSON, err := json.Marshal(NewInitialState())
	if err != nil {
		return "", fmt.Errorf("marshal initial state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, session_id, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, session_id) DO NOTHING`,
		userID, sessionID, stateJSON,
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return sessionID, nil
}

// GetSession returns nil, nil for an unknown (user, session) pair.
func (s *PostgresStore) GetSession(ctx context.Context, userID, sessionID string) (*types.Session, error) {
	var (
		sess      types.Session
		stateJSON []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, session_id, state, created_at, last_activity
		FROM sessions
		WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID,
	).Scan(&sess.UserID, &sess.SessionID, &stateJSON, &sess.CreatedAt, &sess.LastActivity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}

	if err := json.Unmarshal(stateJSON, &sess.State); err != nil {
		return nil, fmt.Errorf("parse session state: %w", err)
	}
	return &sess, nil
}

// UpdateState appends an event row and merges the delta into the state tree
// in a single transaction. The session row is locked FOR UPDATE so concurrent
// deltas serialize; non-overlapping keys never conflict because each delta is
// merged, not written whole.
func (s *PostgresStore) UpdateState(ctx context.Context, userID, sessionID string, delta types.StateTree) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var stateJSON []byte
	err = tx.QueryRowContext(ctx, `
		SELECT state FROM sessions
		WHERE user_id = $1 AND session_id = $2
		FOR UPDATE`,
		userID, sessionID,
	).Scan(&stateJSON)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock session: %w", err)
	}

	var state types.StateTree
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return false, fmt.Errorf("parse session state: %w", err)
	}

	merged := ApplyDelta(state, delta)
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return false, fmt.Errorf("marshal merged state: %w", err)
	}
	deltaJSON, err := json.Marshal(delta)
	if err != nil {
		return false, fmt.Errorf("marshal delta: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session_events (id, user_id, session_id, seq, delta)
		VALUES ($1, $2, $3,
			(SELECT COALESCE(MAX(seq), 0) + 1 FROM session_events
			 WHERE user_id = $2 AND session_id = $3),
			$4)`,
		uuid.New().String(), userID, sessionID, deltaJSON,
	)
	if err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions
		SET state = $3, last_activity = now()
		WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID, mergedJSON,
	)
	if err != nil {
		return false, fmt.Errorf("apply state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update: %w", err)
	}
	return true, nil
}

// DeleteSession removes the session and its event log.
func (s *PostgresStore) DeleteSession(ctx context.Context, userID, sessionID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM session_events WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID,
	); err != nil {
		return false, fmt.Errorf("delete events: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM sessions WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID,
	)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return n > 0, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (s *PostgresStore) ListSessions(ctx context.Context, userID string, activeOnly bool) ([]*types.Session, error) {
	query := `
		SELECT user_id, session_id, state, created_at, last_activity
		FROM sessions
		WHERE user_id = $1`
	args := []any{userID}
	if activeOnly {
		query += ` AND last_activity >= $2`
		args = append(args, time.Now().UTC().Add(-s.inactivityWindow))
	}
	query += ` ORDER BY last_activity DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Session
	for rows.Next() {
		var (
			sess      types.Session
			stateJSON []byte
		)
		if err := rows.Scan(&sess.UserID, &sess.SessionID, &stateJSON, &sess.CreatedAt, &sess.LastActivity); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if err := json.Unmarshal(stateJSON, &sess.State); err != nil {
			return nil, fmt.Errorf("parse session state: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// ListEvents returns the most recent events, newest first.
func (s *PostgresStore) ListEvents(ctx context.Context, userID, sessionID string, limit int) ([]*types.SessionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, session_id, seq, delta, created_at
		FROM session_events
		WHERE user_id = $1 AND session_id = $2
		ORDER BY seq DESC
		LIMIT $3`,
		userID, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.SessionEvent
	for rows.Next() {
		var (
			ev        types.SessionEvent
			deltaJSON []byte
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.SessionID, &ev.Seq, &deltaJSON, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal(deltaJSON, &ev.Delta); err != nil {
			return nil, fmt.Errorf("parse event delta: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
