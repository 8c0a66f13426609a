// Package history implements the permanent conversation and message log.
// Conversations and messages outlive sessions; message counts are maintained
// by recount-on-write so they self-heal after partial failures.
package history

import (
	"context"

	"github.com/oprina-ai/memcore/pkg/types"
)

// SearchOptions narrows a message search. The user scope is mandatory and
// enforced by the store, never by the caller.
type SearchOptions struct {
	ConversationID string
	TypeFilter     types.MessageType
	Limit          int
}

// Store defines the history store contract.
type Store interface {
	// CreateConversation creates a new conversation record.
	CreateConversation(ctx context.Context, userID, sessionID, title string) (*types.Conversation, error)

	// GetConversation returns nil, nil for an unknown id.
	GetConversation(ctx context.Context, conversationID string) (*types.Conversation, error)

	// ListUserConversations pages through a user's conversations, most
	// recent activity first.
	ListUserConversations(ctx context.Context, userID string, limit, offset int) ([]*types.Conversation, error)

	// UpdateConversationTitle renames a conversation, scoped by owner.
	UpdateConversationTitle(ctx context.Context, conversationID, userID, title string) error

	// DeleteConversation cascades: messages first, then the conversation,
	// both scoped by owner. Partial failure is surfaced as an error.
	DeleteConversation(ctx context.Context, conversationID, userID string) error

	// StoreMessage inserts the message, then recomputes the owning
	// conversation's message_count and last_message_at from the message
	// rows. The insert-then-recount order means a crash in between leaves a
	// stale count that the next successful write corrects.
	StoreMessage(ctx context.Context, msg *types.Message) (*types.Message, error)

	// GetMessages returns a conversation's messages in insertion order.
	GetMessages(ctx context.Context, conversationID string, limit, offset int, typeFilter types.MessageType) ([]*types.Message, error)

	// GetRecentMessages returns the user's newest messages across all
	// conversations, newest first.
	GetRecentMessages(ctx context.Context, userID string, limit int) ([]*types.Message, error)

	// SearchMessages performs substring matching over one user's messages,
	// most recent first.
	SearchMessages(ctx context.Context, userID, query string, opts SearchOptions) ([]*types.Message, error)

	// EnsureConversation returns the most recently created conversation for
	// (user, session), creating one when none exists. This is the only
	// implicit-creation path; concurrent first messages resolve
	// first-writer-wins.
	EnsureConversation(ctx context.Context, userID, sessionID string) (*types.Conversation, error)

	// UpdateMessage edits a message's content, scoped by owner.
	UpdateMessage(ctx context.Context, messageID, userID, content string) error

	// DeleteMessage removes a message, scoped by owner, and recounts.
	DeleteMessage(ctx context.Context, messageID, userID string) error

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// Archiver snapshots a conversation transcript before destructive operations.
type Archiver interface {
	ArchiveConversation(ctx context.Context, conv *types.Conversation, msgs []*types.Message) error
}
