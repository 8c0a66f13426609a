package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	memerrors "github.com/oprina-ai/memcore/pkg/errors"
	"github.com/oprina-ai/memcore/pkg/types"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db       *sql.DB
	archiver Archiver
}

// NewPostgresStore creates a new PostgreSQL history store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SetArchiver installs the transcript archiver used before deletes.
func (s *PostgresStore) SetArchiver(a Archiver) {
	s.archiver = a
}

// EnsureSchema creates the history tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id              UUID        PRIMARY KEY,
			user_id         TEXT        NOT NULL,
			session_id      TEXT        NOT NULL,
			title           TEXT        NOT NULL DEFAULT '',
			message_count   INT         NOT NULL DEFAULT 0,
			last_message_at TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              UUID        PRIMARY KEY,
			conversation_id UUID        NOT NULL REFERENCES conversations(id),
			message_type    TEXT        NOT NULL,
			content         TEXT        NOT NULL,
			metadata        JSONB,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user
			ON conversations (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_session
			ON conversations (user_id, session_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages (conversation_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure history schema: %w", err)
		}
	}
	return nil
}

// CreateConversation creates a new conversation record.
func (s *PostgresStore) CreateConversation(ctx context.Context, userID, sessionID, title string) (*types.Conversation, error) {
	conv := &types.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		Title:     title,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversations (id, user_id, session_id, title)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		conv.ID, userID, sessionID, title,
	).Scan(&conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

const conversationColumns = `id, user_id, session_id, title, message_count, last_message_at, created_at`

func scanConversation(row interface{ Scan(...any) error }) (*types.Conversation, error) {
	var (
		conv   types.Conversation
		lastAt sql.NullTime
	)
	err := row.Scan(&conv.ID, &conv.UserID, &conv.SessionID, &conv.Title,
		&conv.MessageCount, &lastAt, &conv.CreatedAt)
	if err != nil {
		return nil, err
	}
	if lastAt.Valid {
		conv.LastMessageAt = &lastAt.Time
	}
	return &conv, nil
}

// GetConversation returns nil, nil for an unknown id.
func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (*types.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, conversationID)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return conv, nil
}

// ListUserConversations pages through a user's conversations, most recent
// activity first.
func (s *PostgresStore) ListUserConversations(ctx context.Context, userID string, limit, offset int) ([]*types.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// UpdateConversationTitle renames a conversation, scoped by owner.
func (s *PostgresStore) UpdateConversationTitle(ctx context.Context, conversationID, userID, title string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = $3
		WHERE id = $1 AND user_id = $2`,
		conversationID, userID, title,
	)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return s.ownershipError(ctx, conversationID)
	}
	return nil
}

// ownershipError distinguishes not-found from owner mismatch after a scoped
// write matched no rows.
func (s *PostgresStore) ownershipError(ctx context.Context, conversationID string) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, conversationID).Scan(&exists)
	if err == nil && exists {
		return memerrors.NewUnauthorized(memerrors.TierHistory, conversationID, "conversation owner mismatch")
	}
	return memerrors.NewNotFound(memerrors.TierHistory, conversationID, "conversation not found")
}

// DeleteConversation cascades: messages first, then the conversation, in one
// transaction so a partial failure rolls back rather than orphaning rows.
func (s *PostgresStore) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return memerrors.NewNotFound(memerrors.TierHistory, conversationID, "conversation not found")
	}
	if conv.UserID != userID {
		return memerrors.NewUnauthorized(memerrors.TierHistory, conversationID, "conversation owner mismatch")
	}

	if s.archiver != nil {
		msgs, err := s.GetMessages(ctx, conversationID, 0, 0, "")
		if err != nil {
			return fmt.Errorf("load transcript for archive: %w", err)
		}
		if err := s.archiver.ArchiveConversation(ctx, conv, msgs); err != nil {
			return memerrors.NewInternal(memerrors.TierHistory, "archive before delete failed", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = $1 AND user_id = $2`, conversationID, userID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// StoreMessage inserts the message, then recounts the owning conversation
// from the message rows.
func (s *PostgresStore) StoreMessage(ctx context.Context, msg *types.Message) (*types.Message, error) {
	stored := *msg
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}

	var metadataJSON []byte
	if len(stored.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(stored.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, conversation_id, message_type, content, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		stored.ID, stored.ConversationID, string(stored.Type), stored.Content, metadataJSON,
	).Scan(&stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if err := s.recount(ctx, stored.ConversationID); err != nil {
		// The message is durable; the stale count heals on the next write.
		return &stored, fmt.Errorf("recount after insert: %w", err)
	}
	return &stored, nil
}

// recount recomputes message_count and last_message_at from the message rows.
func (s *PostgresStore) recount(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET
			message_count   = (SELECT COUNT(*) FROM messages WHERE conversation_id = $1),
			last_message_at = (SELECT MAX(created_at) FROM messages WHERE conversation_id = $1)
		WHERE id = $1`,
		conversationID,
	)
	return err
}

const messageColumns = `m.id, m.conversation_id, m.message_type, m.content, m.metadata, m.created_at`

func scanMessage(row interface{ Scan(...any) error }) (*types.Message, error) {
	var (
		msg          types.Message
		msgType      string
		metadataJSON []byte
	)
	err := row.Scan(&msg.ID, &msg.ConversationID, &msgType, &msg.Content, &metadataJSON, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	msg.Type = types.MessageType(msgType)
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
			// Logged by the caller as a history anomaly, not fatal.
			msg.Metadata = nil
		}
	}
	return &msg, nil
}

func (s *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]*types.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// GetMessages returns a conversation's messages in insertion order.
func (s *PostgresStore) GetMessages(ctx context.Context, conversationID string, limit, offset int, typeFilter types.MessageType) ([]*types.Message, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE m.conversation_id = $1`
	args := []any{conversationID}
	if typeFilter != "" {
		query += ` AND m.message_type = $2`
		args = append(args, string(typeFilter))
	}
	query += fmt.Sprintf(` ORDER BY m.created_at, m.id LIMIT %d OFFSET %d`, limit, offset)
	return s.queryMessages(ctx, query, args...)
}

// GetRecentMessages returns the user's newest messages, newest first.
func (s *PostgresStore) GetRecentMessages(ctx context.Context, userID string, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryMessages(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.user_id = $1
		ORDER BY m.created_at DESC
		LIMIT $2`,
		userID, limit,
	)
}

// SearchMessages performs ILIKE substring matching scoped to one user, most
// recent first.
func (s *PostgresStore) SearchMessages(ctx context.Context, userID, query string, opts SearchOptions) ([]*types.Message, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT ` + messageColumns + `
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.user_id = $1 AND m.content ILIKE '%' || $2 || '%'`
	args := []any{userID, norm.NFC.String(query)}
	if opts.ConversationID != "" {
		args = append(args, opts.ConversationID)
		q += fmt.Sprintf(` AND m.conversation_id = $%d`, len(args))
	}
	if opts.TypeFilter != "" {
		args = append(args, string(opts.TypeFilter))
		q += fmt.Sprintf(` AND m.message_type = $%d`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY m.created_at DESC LIMIT $%d`, len(args))

	return s.queryMessages(ctx, q, args...)
}

// EnsureConversation returns the newest conversation for (user, session),
// creating one when none exists. A transaction-scoped advisory lock on the
// (user, session) pair makes concurrent first messages resolve
// first-writer-wins instead of racing to duplicate conversations.
func (s *PostgresStore) EnsureConversation(ctx context.Context, userID, sessionID string) (*types.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ensure: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1 || '/' || $2))`, userID, sessionID); err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE user_id = $1 AND session_id = $2
		ORDER BY created_at DESC
		LIMIT 1`,
		userID, sessionID,
	)
	conv, err := scanConversation(row)
	if err == nil {
		if cerr := tx.Commit(); cerr != nil {
			return nil, fmt.Errorf("commit ensure: %w", cerr)
		}
		return conv, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("query latest conversation: %w", err)
	}

	conv = &types.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		Title:     DefaultTitle,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO conversations (id, user_id, session_id, title)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		conv.ID, userID, sessionID, conv.Title,
	).Scan(&conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ensure: %w", err)
	}
	return conv, nil
}

// UpdateMessage edits a message's content, scoped by owner through the
// conversation join.
func (s *PostgresStore) UpdateMessage(ctx context.Context, messageID, userID, content string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages m SET content = $3
		FROM conversations c
		WHERE m.id = $1 AND c.id = m.conversation_id AND c.user_id = $2`,
		messageID, userID, content,
	)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memerrors.NewNotFound(memerrors.TierHistory, messageID, "message not found for user")
	}
	return nil
}

// DeleteMessage removes a message, scoped by owner, then recounts.
func (s *PostgresStore) DeleteMessage(ctx context.Context, messageID, userID string) error {
	var conversationID string
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM messages m
		USING conversations c
		WHERE m.id = $1 AND c.id = m.conversation_id AND c.user_id = $2
		RETURNING m.conversation_id`,
		messageID, userID,
	).Scan(&conversationID)
	if err == sql.ErrNoRows {
		return memerrors.NewNotFound(memerrors.TierHistory, messageID, "message not found for user")
	}
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return s.recount(ctx, conversationID)
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
