package history

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	memerrors "github.com/oprina-ai/memcore/pkg/errors"
	"github.com/oprina-ai/memcore/pkg/types"
)

// MemoryStore implements Store using in-memory maps.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*types.Conversation
	messages      map[string]*types.Message
	byConv        map[string][]string // conversation id -> message ids in insertion order
	archiver      Archiver
}

// NewMemoryStore creates a new in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*types.Conversation),
		messages:      make(map[string]*types.Message),
		byConv:        make(map[string][]string),
	}
}

// SetArchiver installs the transcript archiver used before deletes.
func (s *MemoryStore) SetArchiver(a Archiver) {
	s.archiver = a
}

// CreateConversation creates a new conversation record.
func (s *MemoryStore) CreateConversation(_ context.Context, userID, sessionID, title string) (*types.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := &types.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	s.conversations[conv.ID] = conv
	cp := *conv
	return &cp, nil
}

// GetConversation returns nil, nil for an unknown id.
func (s *MemoryStore) GetConversation(_ context.Context, conversationID string) (*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, nil
	}
	cp := *conv
	return &cp, nil
}

// ListUserConversations pages through a user's conversations, most recent
// activity first.
func (s *MemoryStore) ListUserConversations(_ context.Context, userID string, limit, offset int) ([]*types.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*types.Conversation
	for _, conv := range s.conversations {
		if conv.UserID == userID {
			cp := *conv
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return activityTime(all[i]).After(activityTime(all[j]))
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func activityTime(conv *types.Conversation) time.Time {
	if conv.LastMessageAt != nil {
		return *conv.LastMessageAt
	}
	return conv.CreatedAt
}

// UpdateConversationTitle renames a conversation, scoped by owner.
func (s *MemoryStore) UpdateConversationTitle(_ context.Context, conversationID, userID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return memerrors.NewNotFound(memerrors.TierHistory, conversationID, "conversation not found")
	}
	if conv.UserID != userID {
		return memerrors.NewUnauthorized(memerrors.TierHistory, conversationID, "conversation owner mismatch")
	}
	conv.Title = title
	return nil
}

// DeleteConversation cascades: messages first, then the conversation. The
// archive snapshot, when configured, happens before anything is removed.
func (s *MemoryStore) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return memerrors.NewNotFound(memerrors.TierHistory, conversationID, "conversation not found")
	}
	if conv.UserID != userID {
		s.mu.Unlock()
		return memerrors.NewUnauthorized(memerrors.TierHistory, conversationID, "conversation owner mismatch")
	}

	var msgs []*types.Message
	for _, id := range s.byConv[conversationID] {
		if m, ok := s.messages[id]; ok {
			cp := *m
			msgs = append(msgs, &cp)
		}
	}
	convCopy := *conv
	s.mu.Unlock()

	if s.archiver != nil {
		if err := s.archiver.ArchiveConversation(ctx, &convCopy, msgs); err != nil {
			return memerrors.NewInternal(memerrors.TierHistory, "archive before delete failed", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.byConv[conversationID] {
		delete(s.messages, id)
	}
	delete(s.byConv, conversationID)
	delete(s.conversations, conversationID)
	return nil
}

// StoreMessage inserts the message, then recounts the owning conversation.
func (s *MemoryStore) StoreMessage(_ context.Context, msg *types.Message) (*types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return nil, memerrors.NewNotFound(memerrors.TierHistory, msg.ConversationID, "conversation not found")
	}

	stored := *msg
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.messages[stored.ID] = &stored
	s.byConv[msg.ConversationID] = append(s.byConv[msg.ConversationID], stored.ID)

	s.recountLocked(conv)

	cp := stored
	return &cp, nil
}

// recountLocked recomputes message_count and last_message_at from the message
// rows. Caller holds the write lock.
func (s *MemoryStore) recountLocked(conv *types.Conversation) {
	ids := s.byConv[conv.ID]
	conv.MessageCount = len(ids)
	conv.LastMessageAt = nil
	for _, id := range ids {
		m := s.messages[id]
		if conv.LastMessageAt == nil || m.CreatedAt.After(*conv.LastMessageAt) {
			at := m.CreatedAt
			conv.LastMessageAt = &at
		}
	}
}

// GetMessages returns a conversation's messages in insertion order.
func (s *MemoryStore) GetMessages(_ context.Context, conversationID string, limit, offset int, typeFilter types.MessageType) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Message
	for _, id := range s.byConv[conversationID] {
		m := s.messages[id]
		if typeFilter != "" && m.Type != typeFilter {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetRecentMessages returns the user's newest messages, newest first.
func (s *MemoryStore) GetRecentMessages(_ context.Context, userID string, limit int) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Message
	for _, m := range s.messages {
		conv, ok := s.conversations[m.ConversationID]
		if !ok || conv.UserID != userID {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchMessages performs case-insensitive substring matching scoped to one
// user, most recent first.
func (s *MemoryStore) SearchMessages(_ context.Context, userID, query string, opts SearchOptions) ([]*types.Message, error) {
	needle := strings.ToLower(norm.NFC.String(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Message
	for _, m := range s.messages {
		conv, ok := s.conversations[m.ConversationID]
		if !ok || conv.UserID != userID {
			continue
		}
		if opts.ConversationID != "" && m.ConversationID != opts.ConversationID {
			continue
		}
		if opts.TypeFilter != "" && m.Type != opts.TypeFilter {
			continue
		}
		if !strings.Contains(strings.ToLower(norm.NFC.String(m.Content)), needle) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// EnsureConversation returns the newest conversation for (user, session),
// creating one when none exists.
func (s *MemoryStore) EnsureConversation(_ context.Context, userID, sessionID string) (*types.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var newest *types.Conversation
	for _, conv := range s.conversations {
		if conv.UserID != userID || conv.SessionID != sessionID {
			continue
		}
		if newest == nil || conv.CreatedAt.After(newest.CreatedAt) {
			newest = conv
		}
	}
	if newest != nil {
		cp := *newest
		return &cp, nil
	}

	conv := &types.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		Title:     DefaultTitle,
		CreatedAt: time.Now().UTC(),
	}
	s.conversations[conv.ID] = conv
	cp := *conv
	return &cp, nil
}

// UpdateMessage edits a message's content, scoped by owner.
func (s *MemoryStore) UpdateMessage(_ context.Context, messageID, userID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return memerrors.NewNotFound(memerrors.TierHistory, messageID, "message not found")
	}
	conv := s.conversations[m.ConversationID]
	if conv == nil || conv.UserID != userID {
		return memerrors.NewUnauthorized(memerrors.TierHistory, messageID, "message owner mismatch")
	}
	m.Content = content
	return nil
}

// DeleteMessage removes a message, scoped by owner, then recounts.
func (s *MemoryStore) DeleteMessage(_ context.Context, messageID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return memerrors.NewNotFound(memerrors.TierHistory, messageID, "message not found")
	}
	conv := s.conversations[m.ConversationID]
	if conv == nil || conv.UserID != userID {
		return memerrors.NewUnauthorized(memerrors.TierHistory, messageID, "message owner mismatch")
	}

	delete(s.messages, messageID)
	ids := s.byConv[m.ConversationID]
	for i, id := range ids {
		if id == messageID {
			s.byConv[m.ConversationID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	s.recountLocked(conv)
	return nil
}

// CorruptCount overwrites a conversation's stored count, bypassing the
// recount path. Test hook for the self-healing property.
func (s *MemoryStore) CorruptCount(conversationID string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.conversations[conversationID]; ok {
		conv.MessageCount = count
	}
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
