package mcp

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/oprina-ai/memcore/internal/coordinator"
	memerrors "github.com/oprina-ai/memcore/pkg/errors"
	"github.com/oprina-ai/memcore/pkg/types"
)

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// objectArg extracts a JSON-object argument from a tool request.
func objectArg(req mcp.CallToolRequest, key string) map[string]any {
	v, _ := req.GetArguments()[key].(map[string]any)
	return v
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// ─── GetSessionContextTool ──────────────────────────────────────────────────

// GetSessionContextTool handles the get_session_context MCP tool.
type GetSessionContextTool struct {
	co *coordinator.Coordinator
}

// NewGetSessionContextTool creates a GetSessionContextTool.
func NewGetSessionContextTool(co *coordinator.Coordinator) *GetSessionContextTool {
	return &GetSessionContextTool{co: co}
}

// Definition returns the MCP tool definition for get_session_context.
func (t *GetSessionContextTool) Definition() mcp.Tool {
	return mcp.NewTool("get_session_context",
		mcp.WithDescription(
			"Fetch the merged memory context for a session: durable state, recent "+
				"messages, learned patterns, adaptive response settings, and suggestions. "+
				"Creates the session if it does not exist yet.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User identifier"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
	)
}

// Handle processes the get_session_context tool call.
func (t *GetSessionContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	sessionID := req.GetString("session_id", "")
	if userID == "" || sessionID == "" {
		return mcp.NewToolResultError("'user_id' and 'session_id' are required"), nil
	}

	if _, err := t.co.CreateSession(ctx, userID, sessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to ensure session: %v", err)), nil
	}

	sc, err := t.co.GetSessionContext(ctx, userID, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load context: %v", err)), nil
	}
	return jsonResult(sc)
}

// ─── UpdateSessionContextTool ───────────────────────────────────────────────

// UpdateSessionContextTool handles the update_session_context MCP tool.
type UpdateSessionContextTool struct {
	co *coordinator.Coordinator
}

// NewUpdateSessionContextTool creates an UpdateSessionContextTool.
func NewUpdateSessionContextTool(co *coordinator.Coordinator) *UpdateSessionContextTool {
	return &UpdateSessionContextTool{co: co}
}

// Definition returns the MCP tool definition for update_session_context.
func (t *UpdateSessionContextTool) Definition() mcp.Tool {
	return mcp.NewTool("update_session_context",
		mcp.WithDescription(
			"Apply a partial state delta to a session. Keys may use dot paths "+
				"(e.g. \"agent_states.email_agent.last_check\") to update nested values "+
				"without touching siblings.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User identifier"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
		mcp.WithObject("delta",
			mcp.Required(),
			mcp.Description("Partial state to merge into the session"),
		),
	)
}

// Handle processes the update_session_context tool call.
func (t *UpdateSessionContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	sessionID := req.GetString("session_id", "")
	if userID == "" || sessionID == "" {
		return mcp.NewToolResultError("'user_id' and 'session_id' are required"), nil
	}
	delta := objectArg(req, "delta")
	if len(delta) == 0 {
		return mcp.NewToolResultError("'delta' must be a non-empty object"), nil
	}

	ok, err := t.co.UpdateSessionContext(ctx, userID, sessionID, delta)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update session: %v", err)), nil
	}
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("session %q not found for user %q", sessionID, userID)), nil
	}
	return mcp.NewToolResultText("session state updated"), nil
}

// ─── StoreMessageTool ───────────────────────────────────────────────────────

// StoreMessageTool handles the store_conversation_message MCP tool.
type StoreMessageTool struct {
	co *coordinator.Coordinator
}

// NewStoreMessageTool creates a StoreMessageTool.
func NewStoreMessageTool(co *coordinator.Coordinator) *StoreMessageTool {
	return &StoreMessageTool{co: co}
}

// Definition returns the MCP tool definition for store_conversation_message.
func (t *StoreMessageTool) Definition() mcp.Tool {
	return mcp.NewTool("store_conversation_message",
		mcp.WithDescription(
			"Persist one conversation message. The conversation is created on first "+
				"use, titled from the first user message, and the session's recent-history "+
				"list is updated.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User identifier"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
		mcp.WithString("message_type",
			mcp.Required(),
			mcp.Description("One of: user_voice, agent_response, system, summary"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Message text"),
		),
		mcp.WithObject("metadata",
			mcp.Description("Optional message metadata (format, detail_level, ...)"),
		),
	)
}

// Handle processes the store_conversation_message tool call.
func (t *StoreMessageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	sessionID := req.GetString("session_id", "")
	content := req.GetString("content", "")
	msgType := types.MessageType(req.GetString("message_type", ""))
	if userID == "" || sessionID == "" || content == "" {
		return mcp.NewToolResultError("'user_id', 'session_id' and 'content' are required"), nil
	}
	if !msgType.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown message_type %q", msgType)), nil
	}

	msg, err := t.co.StoreConversationMessage(ctx, userID, sessionID, msgType, content, objectArg(req, "metadata"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store message: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
		"created_at":      msg.CreatedAt,
	})
}

// ─── SetAgentDataTool ───────────────────────────────────────────────────────

// SetAgentDataTool handles the set_agent_coordination_data MCP tool.
type SetAgentDataTool struct {
	co *coordinator.Coordinator
}

// NewSetAgentDataTool creates a SetAgentDataTool.
func NewSetAgentDataTool(co *coordinator.Coordinator) *SetAgentDataTool {
	return &SetAgentDataTool{co: co}
}

// Definition returns the MCP tool definition for set_agent_coordination_data.
func (t *SetAgentDataTool) Definition() mcp.Tool {
	return mcp.NewTool("set_agent_coordination_data",
		mcp.WithDescription(
			"Share a value between agents. Ephemeral values live in the short-TTL "+
				"cache; persistent values are written through to durable session state.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User identifier"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
		mcp.WithString("agent",
			mcp.Required(),
			mcp.Description("Agent name (e.g. email_agent)"),
		),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Data key"),
		),
		mcp.WithObject("value",
			mcp.Description("Value to share; any JSON shape"),
		),
		mcp.WithBoolean("persistent",
			mcp.Description("Write through to durable session state (default false)"),
		),
	)
}

// Handle processes the set_agent_coordination_data tool call.
func (t *SetAgentDataTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	sessionID := req.GetString("session_id", "")
	agent := req.GetString("agent", "")
	key := req.GetString("key", "")
	if userID == "" || sessionID == "" || agent == "" || key == "" {
		return mcp.NewToolResultError("'user_id', 'session_id', 'agent' and 'key' are required"), nil
	}

	value := req.GetArguments()["value"]
	persistent := boolArg(req, "persistent", false)

	if err := t.co.SetAgentCoordinationData(ctx, userID, sessionID, agent, key, value, persistent); err != nil {
		if memerrors.IsNotFound(err) {
			return mcp.NewToolResultError(fmt.Sprintf("session %q not found for user %q", sessionID, userID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to set coordination data: %v", err)), nil
	}
	return mcp.NewToolResultText("coordination data stored"), nil
}

// ─── GetAgentDataTool ───────────────────────────────────────────────────────

// GetAgentDataTool handles the get_agent_coordination_data MCP tool.
type GetAgentDataTool struct {
	co *coordinator.Coordinator
}

// NewGetAgentDataTool creates a GetAgentDataTool.
func NewGetAgentDataTool(co *coordinator.Coordinator) *GetAgentDataTool {
	return &GetAgentDataTool{co: co}
}

// Definition returns the MCP tool definition for get_agent_coordination_data.
func (t *GetAgentDataTool) Definition() mcp.Tool {
	return mcp.NewTool("get_agent_coordination_data",
		mcp.WithDescription(
			"Read a value another agent shared. Reads prefer the cache and fall "+
				"back to durable session state for persistent entries.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User identifier"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier"),
		),
		mcp.WithString("agent",
			mcp.Required(),
			mcp.Description("Agent name the data was stored under"),
		),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Data key"),
		),
	)
}

// Handle processes the get_agent_coordination_data tool call.
func (t *GetAgentDataTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	sessionID := req.GetString("session_id", "")
	agent := req.GetString("agent", "")
	key := req.GetString("key", "")
	if userID == "" || sessionID == "" || agent == "" || key == "" {
		return mcp.NewToolResultError("'user_id', 'session_id', 'agent' and 'key' are required"), nil
	}

	value, found, err := t.co.GetAgentCoordinationData(ctx, userID, sessionID, agent, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read coordination data: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"found": found,
		"value": value,
	})
}

// ─── LearnTool ──────────────────────────────────────────────────────────────

// LearnTool handles the learn_from_user_action MCP tool.
type LearnTool struct {
	co *coordinator.Coordinator
}

// NewLearnTool creates a LearnTool.
func NewLearnTool(co *coordinator.Coordinator) *LearnTool {
	return &LearnTool{co: co}
}

// Definition returns the MCP tool definition for learn_from_user_action.
func (t *LearnTool) Definition() mcp.Tool {
	return mcp.NewTool("learn_from_user_action",
		mcp.WithDescription(
			"Record one behavioral observation (email_check, voice_command, "+
				"email_action, response_generated, summary_requested). Learning is "+
				"asynchronous and best-effort; this call never fails the caller.",
		),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("User identifier"),
		),
		mcp.WithString("action_type",
			mcp.Required(),
			mcp.Description("Learning event type"),
		),
		mcp.WithObject("details",
			mcp.Description("Event payload (hour, command, action, ...)"),
		),
	)
}

// Handle processes the learn_from_user_action tool call.
func (t *LearnTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	actionType := req.GetString("action_type", "")
	if userID == "" || actionType == "" {
		return mcp.NewToolResultError("'user_id' and 'action_type' are required"), nil
	}

	t.co.LearnFromUserAction(ctx, userID, actionType, objectArg(req, "details"))
	return mcp.NewToolResultText("observation recorded"), nil
}
