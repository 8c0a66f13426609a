package coordinator

import (
	"context"
	"strings"

	"github.com/oprina-ai/memcore/internal/history"
	"github.com/oprina-ai/memcore/internal/observability"
	memerrors "github.com/oprina-ai/memcore/pkg/errors"
	"github.com/oprina-ai/memcore/pkg/types"
)

// StoreConversationMessage persists one message and fans out the side
// effects: the session's bounded conversation_history pointer list, the
// async learning event, and the auto-title on a conversation's first user
// message. Only the message insert itself can fail the call.
func (c *Coordinator) StoreConversationMessage(ctx context.Context, userID, sessionID string, msgType types.MessageType, content string, metadata map[string]any) (*types.Message, error) {
	ctx, span := observability.StartMemorySpan(ctx, c.tracer, "coordinator.store_message", memerrors.TierHistory, userID)
	defer span.End()

	if !msgType.Valid() {
		return nil, memerrors.NewInternal(memerrors.TierHistory, "unknown message type "+string(msgType), nil)
	}

	start := c.now()
	conv, err := c.history.EnsureConversation(ctx, userID, sessionID)
	observe(memerrors.TierHistory, "ensure_conversation", start, err)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	start = c.now()
	msg, err := c.history.StoreMessage(ctx, &types.Message{
		ConversationID: conv.ID,
		Type:           msgType,
		Content:        content,
		Metadata:       metadata,
	})
	observe(memerrors.TierHistory, "store_message", start, err)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	c.appendHistoryPointer(ctx, userID, sessionID, conv.ID, msg)
	c.maybeAutoTitle(ctx, userID, conv, msgType, content)
	c.enqueueMessageLearning(userID, msgType, content, metadata)

	return msg, nil
}

// GetMessages pages through a conversation's messages after checking the
// caller owns it.
func (c *Coordinator) GetMessages(ctx context.Context, conversationID, userID string, limit, offset int, typeFilter types.MessageType) ([]*types.Message, error) {
	conv, err := c.history.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, memerrors.NewNotFound(memerrors.TierHistory, conversationID, "conversation not found")
	}
	if conv.UserID != userID {
		return nil, memerrors.NewUnauthorized(memerrors.TierHistory, conversationID, "conversation belongs to another user")
	}
	return c.history.GetMessages(ctx, conversationID, limit, offset, typeFilter)
}

// ListConversations pages through the user's conversations.
func (c *Coordinator) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*types.Conversation, error) {
	return c.history.ListUserConversations(ctx, userID, limit, offset)
}

// SearchMessages searches the user's message history.
func (c *Coordinator) SearchMessages(ctx context.Context, userID, query string, opts history.SearchOptions) ([]*types.Message, error) {
	return c.history.SearchMessages(ctx, userID, query, opts)
}

// DeleteConversation removes a conversation and its messages, owner-scoped.
func (c *Coordinator) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	ctx, span := observability.StartMemorySpan(ctx, c.tracer, "coordinator.delete_conversation", memerrors.TierHistory, userID)
	defer span.End()

	start := c.now()
	err := c.history.DeleteConversation(ctx, conversationID, userID)
	observe(memerrors.TierHistory, "delete_conversation", start, err)
	if err != nil {
		observability.RecordError(span, err)
		return err
	}
	c.logger.Info("conversation deleted", "user_id", userID, "conversation_id", conversationID)
	return nil
}

// RenameConversation sets an explicit title, owner-scoped.
func (c *Coordinator) RenameConversation(ctx context.Context, conversationID, userID, title string) error {
	return c.history.UpdateConversationTitle(ctx, conversationID, userID, title)
}

// appendHistoryPointer pushes a lightweight message pointer onto the
// session's conversation_history list, capped at historyPointerCap.
// Best-effort: a session that has already been deleted just skips it.
func (c *Coordinator) appendHistoryPointer(ctx context.Context, userID, sessionID, conversationID string, msg *types.Message) {
	sess, err := c.sessions.GetSession(ctx, userID, sessionID)
	if err != nil || sess == nil {
		return
	}

	existing, _ := sess.State[types.StateKeyConversationHistory].([]any)
	ref := types.ConversationRef{
		ConversationID: conversationID,
		MessageID:      msg.ID,
		Type:           msg.Type,
		Preview:        preview(msg.Content),
		At:             msg.CreatedAt,
	}
	updated := append(append([]any{}, existing...), ref)
	if len(updated) > historyPointerCap {
		updated = updated[len(updated)-historyPointerCap:]
	}

	// A list at the leaf replaces wholesale under the delta merge.
	if _, err := c.sessions.UpdateState(ctx, userID, sessionID, types.StateTree{
		types.StateKeyConversationHistory: updated,
	}); err != nil {
		c.logger.Warn("conversation_history pointer update failed",
			"user_id", userID, "session_id", sessionID, "error", err)
		return
	}
	c.refreshSnapshot(ctx, userID, sessionID)
}

// maybeAutoTitle derives a title from the conversation's first user message.
// A conversation may open with system or agent messages; the title waits for
// the first user_voice message and is never overwritten once set.
func (c *Coordinator) maybeAutoTitle(ctx context.Context, userID string, conv *types.Conversation, msgType types.MessageType, content string) {
	if msgType != types.MessageTypeUserVoice {
		return
	}
	if conv.Title != "" && conv.Title != history.DefaultTitle {
		return
	}
	title := history.DeriveTitle(content)
	if title == conv.Title {
		return
	}
	if err := c.history.UpdateConversationTitle(ctx, conv.ID, userID, title); err != nil {
		c.logger.Warn("auto-title failed", "conversation_id", conv.ID, "error", err)
	}
}

// enqueueMessageLearning maps a stored message to its learning event.
func (c *Coordinator) enqueueMessageLearning(userID string, msgType types.MessageType, content string, metadata map[string]any) {
	evCtx := map[string]any{"current_hour": c.now().Hour()}

	switch msgType {
	case types.MessageTypeUserVoice:
		c.learner.Enqueue(types.LearningEvent{
			UserID:    userID,
			EventType: types.EventVoiceCommand,
			EventData: map[string]any{"command": commandOf(content)},
			Context:   evCtx,
		})
	case types.MessageTypeAgentResponse:
		format := "plain"
		if f, ok := metadata["format"].(string); ok && f != "" {
			format = f
		}
		c.learner.Enqueue(types.LearningEvent{
			UserID:    userID,
			EventType: types.EventResponseGenerated,
			EventData: map[string]any{"length": len(content), "format": format},
			Context:   evCtx,
		})
	case types.MessageTypeSummary:
		level := "normal"
		if d, ok := metadata["detail_level"].(string); ok && d != "" {
			level = d
		}
		c.learner.Enqueue(types.LearningEvent{
			UserID:    userID,
			EventType: types.EventSummaryRequested,
			EventData: map[string]any{"detail_level": level},
			Context:   evCtx,
		})
	}
}

const previewLen = 80

func preview(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= previewLen {
		return content
	}
	return string(runes[:previewLen])
}

// commandOf normalizes a voice transcript to its leading words, the rough
// shape of the command that triggered it.
func commandOf(content string) string {
	fields := strings.Fields(strings.ToLower(content))
	if len(fields) > 3 {
		fields = fields[:3]
	}
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.Join(fields, " ")
}
