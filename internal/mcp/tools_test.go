package mcp

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/oprina-ai/memcore/internal/cache/local"
	"github.com/oprina-ai/memcore/internal/coordinator"
	"github.com/oprina-ai/memcore/internal/history"
	"github.com/oprina-ai/memcore/internal/pattern"
	"github.com/oprina-ai/memcore/internal/session"
	"github.com/oprina-ai/memcore/pkg/types"
)

func newTestCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	co := coordinator.New(
		session.NewMemoryStore(0),
		history.NewMemoryStore(),
		pattern.NewEngine(pattern.NewMemoryStore(), logger),
		local.New(local.DefaultConfig()),
		logger,
		coordinator.Config{},
	)
	t.Cleanup(co.Close)
	return co
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcpgo.CallToolRequest {
	req := mcpgo.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcpgo.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestGetSessionContextTool_Definition(t *testing.T) {
	tool := NewGetSessionContextTool(newTestCoordinator(t))
	def := tool.Definition()

	if def.Name != "get_session_context" {
		t.Errorf("tool name = %q", def.Name)
	}
	props := def.InputSchema.Properties
	for _, p := range []string{"user_id", "session_id"} {
		if _, ok := props[p]; !ok {
			t.Errorf("missing %q parameter", p)
		}
	}
}

func TestGetSessionContextTool_CreatesAndReturnsContext(t *testing.T) {
	tool := NewGetSessionContextTool(newTestCoordinator(t))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"user_id":    "u1",
		"session_id": "s1",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(res))
	}

	var sc types.SessionContext
	if err := json.Unmarshal([]byte(resultText(res)), &sc); err != nil {
		t.Fatalf("result not a session context: %v", err)
	}
	if sc.UserID != "u1" || sc.SessionID != "s1" {
		t.Errorf("context ids = %s/%s", sc.UserID, sc.SessionID)
	}
	if sc.State == nil {
		t.Error("context missing state tree")
	}
}

func TestGetSessionContextTool_MissingArgs(t *testing.T) {
	tool := NewGetSessionContextTool(newTestCoordinator(t))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"user_id": "u1",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !res.IsError {
		t.Fatal("missing session_id accepted")
	}
}

func TestUpdateSessionContextTool_RoundTrip(t *testing.T) {
	co := newTestCoordinator(t)
	ctx := context.Background()
	co.CreateSession(ctx, "u1", "s1")

	upd := NewUpdateSessionContextTool(co)
	res, err := upd.Handle(ctx, makeReq(map[string]interface{}{
		"user_id":    "u1",
		"session_id": "s1",
		"delta": map[string]interface{}{
			"user:preferences.tone": "casual",
		},
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(res))
	}

	sc, err := co.GetSessionContext(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	prefs, _ := sc.State["user:preferences"].(map[string]any)
	if prefs["tone"] != "casual" {
		t.Fatalf("dot-path delta not applied: %v", sc.State)
	}
}

func TestUpdateSessionContextTool_UnknownSession(t *testing.T) {
	tool := NewUpdateSessionContextTool(newTestCoordinator(t))

	res, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"user_id":    "u1",
		"session_id": "ghost",
		"delta":      map[string]interface{}{"k": "v"},
	}))
	if !res.IsError {
		t.Fatal("unknown session accepted")
	}
	if !strings.Contains(resultText(res), "not found") {
		t.Errorf("error text = %q", resultText(res))
	}
}

func TestStoreMessageTool_StoresAndReportsIDs(t *testing.T) {
	co := newTestCoordinator(t)
	ctx := context.Background()
	co.CreateSession(ctx, "u1", "s1")

	tool := NewStoreMessageTool(co)
	res, err := tool.Handle(ctx, makeReq(map[string]interface{}{
		"user_id":      "u1",
		"session_id":   "s1",
		"message_type": "user_voice",
		"content":      "what's on my calendar today",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(res))
	}

	var out struct {
		MessageID      string `json:"message_id"`
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal([]byte(resultText(res)), &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if out.MessageID == "" || out.ConversationID == "" {
		t.Fatalf("ids missing: %+v", out)
	}

	msgs, err := co.GetMessages(ctx, out.ConversationID, "u1", 10, 0, "")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("stored messages: %v %v", msgs, err)
	}
}

func TestStoreMessageTool_RejectsBadType(t *testing.T) {
	tool := NewStoreMessageTool(newTestCoordinator(t))

	res, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"user_id":      "u1",
		"session_id":   "s1",
		"message_type": "carrier_pigeon",
		"content":      "hi",
	}))
	if !res.IsError {
		t.Fatal("invalid message type accepted")
	}
}

func TestAgentDataTools_RoundTrip(t *testing.T) {
	co := newTestCoordinator(t)
	ctx := context.Background()
	co.CreateSession(ctx, "u1", "s1")

	set := NewSetAgentDataTool(co)
	res, _ := set.Handle(ctx, makeReq(map[string]interface{}{
		"user_id":    "u1",
		"session_id": "s1",
		"agent":      "email_agent",
		"key":        "pending_draft",
		"value":      map[string]interface{}{"id": "d-7", "to": "team"},
		"persistent": true,
	}))
	if res.IsError {
		t.Fatalf("set error: %s", resultText(res))
	}

	get := NewGetAgentDataTool(co)
	res, _ = get.Handle(ctx, makeReq(map[string]interface{}{
		"user_id":    "u1",
		"session_id": "s1",
		"agent":      "email_agent",
		"key":        "pending_draft",
	}))
	if res.IsError {
		t.Fatalf("get error: %s", resultText(res))
	}

	var out struct {
		Found bool           `json:"found"`
		Value map[string]any `json:"value"`
	}
	if err := json.Unmarshal([]byte(resultText(res)), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Found || out.Value["id"] != "d-7" {
		t.Fatalf("round trip lost data: %+v", out)
	}
}

func TestSetAgentDataTool_PersistentUnknownSession(t *testing.T) {
	tool := NewSetAgentDataTool(newTestCoordinator(t))

	res, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"user_id":    "u1",
		"session_id": "ghost",
		"agent":      "a",
		"key":        "k",
		"value":      "v",
		"persistent": true,
	}))
	if !res.IsError {
		t.Fatal("persistent write to unknown session accepted")
	}
}

func TestLearnTool_AcceptsObservation(t *testing.T) {
	tool := NewLearnTool(newTestCoordinator(t))

	res, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"user_id":     "u1",
		"action_type": "email_check",
		"details":     map[string]interface{}{"hour": 9},
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(res))
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(newTestCoordinator(t))
	if s == nil {
		t.Fatal("no server")
	}
}
