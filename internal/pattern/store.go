// Package pattern implements the behavioral pattern engine: it aggregates
// learning events into per-user, per-type pattern records with confidence
// scores, and derives suggestions and adaptive response settings from them.
// Learning is strictly best-effort; nothing in this package may fail a
// caller's primary operation.
package pattern

import (
	"context"

	"github.com/oprina-ai/memcore/pkg/types"
)

// Store persists pattern records keyed by (user_id, pattern_type). Patterns
// are always derived from events, never created directly by callers.
type Store interface {
	// GetPattern returns nil, nil when no record exists yet.
	GetPattern(ctx context.Context, userID string, pt types.PatternType) (*types.Pattern, error)

	// UpsertPattern writes the full record for (user_id, pattern_type).
	UpsertPattern(ctx context.Context, p *types.Pattern) error

	// ListPatterns returns all of a user's pattern records.
	ListPatterns(ctx context.Context, userID string) ([]*types.Pattern, error)

	// DeletePattern removes one record; used only by explicit resets.
	DeletePattern(ctx context.Context, userID string, pt types.PatternType) error

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
