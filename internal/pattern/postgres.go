package pattern

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/oprina-ai/memcore/pkg/types"
)

// PostgresStore implements Store using PostgreSQL with a JSONB payload.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL pattern store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the pattern table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS patterns (
			user_id      TEXT             NOT NULL,
			pattern_type TEXT             NOT NULL,
			pattern_data JSONB            NOT NULL DEFAULT '{}',
			confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_updated TIMESTAMPTZ      NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, pattern_type)
		)`)
	if err != nil {
		return fmt.Errorf("ensure pattern schema: %w", err)
	}
	return nil
}

// GetPattern returns nil, nil when no record exists yet.
func (s *PostgresStore) GetPattern(ctx context.Context, userID string, pt types.PatternType) (*types.Pattern, error) {
	var (
		p        types.Pattern
		ptStr    string
		dataJSON []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, pattern_type, pattern_data, confidence, last_updated
		FROM patterns
		WHERE user_id = $1 AND pattern_type = $2`,
		userID, string(pt),
	).Scan(&p.UserID, &ptStr, &dataJSON, &p.Confidence, &p.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query pattern: %w", err)
	}
	p.Type = types.PatternType(ptStr)
	if err := json.Unmarshal(dataJSON, &p.Data); err != nil {
		return nil, fmt.Errorf("parse pattern data: %w", err)
	}
	return &p, nil
}

// UpsertPattern writes the full record for (user_id, pattern_type).
func (s *PostgresStore) UpsertPattern(ctx context.Context, p *types.Pattern) error {
	dataJSON, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("marshal pattern data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patterns (user_id, pattern_type, pattern_data, confidence, last_updated)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, pattern_type) DO UPDATE SET
			pattern_data = EXCLUDED.pattern_data,
			confidence   = EXCLUDED.confidence,
			last_updated = now()`,
		p.UserID, string(p.Type), dataJSON, p.Confidence,
	)
	if err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}
	return nil
}

// ListPatterns returns all of a user's pattern records.
func (s *PostgresStore) ListPatterns(ctx context.Context, userID string) ([]*types.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, pattern_type, pattern_data, confidence, last_updated
		FROM patterns
		WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Pattern
	for rows.Next() {
		var (
			p        types.Pattern
			ptStr    string
			dataJSON []byte
		)
		if err := rows.Scan(&p.UserID, &ptStr, &dataJSON, &p.Confidence, &p.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		p.Type = types.PatternType(ptStr)
		if err := json.Unmarshal(dataJSON, &p.Data); err != nil {
			return nil, fmt.Errorf("parse pattern data: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeletePattern removes one record.
func (s *PostgresStore) DeletePattern(ctx context.Context, userID string, pt types.PatternType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM patterns WHERE user_id = $1 AND pattern_type = $2`,
		userID, string(pt),
	)
	if err != nil {
		return fmt.Errorf("delete pattern: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
