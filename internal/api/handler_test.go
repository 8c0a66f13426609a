package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"

	"github.com/oprina-ai/memcore/internal/cache/local"
	"github.com/oprina-ai/memcore/internal/coordinator"
	"github.com/oprina-ai/memcore/internal/healthcheck"
	"github.com/oprina-ai/memcore/internal/history"
	"github.com/oprina-ai/memcore/internal/pattern"
	"github.com/oprina-ai/memcore/internal/session"
	"github.com/oprina-ai/memcore/pkg/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	c := local.New(local.DefaultConfig())
	sessions := session.NewMemoryStore(0)
	hist := history.NewMemoryStore()
	patterns := pattern.NewEngine(pattern.NewMemoryStore(), logger)

	co := coordinator.New(sessions, hist, patterns, c, logger, coordinator.Config{})
	t.Cleanup(co.Close)
	checker := healthcheck.NewChecker(healthcheck.Config{}, c, sessions, hist, patterns, logger)

	mux := http.NewServeMux()
	NewHandler(co, checker, logger).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestCreateSessionEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{
		"user_id":    "u1",
		"session_id": "s1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if body["session_id"] != "s1" {
		t.Fatalf("session_id = %v", body["session_id"])
	}
}

func TestCreateSessionRejectsMissingFields(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{"user_id": "u1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	errObj, ok := body["error"].(map[string]any)
	if !ok || errObj["type"] != "bad_request" {
		t.Fatalf("error envelope = %v", body)
	}
}

func TestSessionContextRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{
		"user_id": "u1", "session_id": "s1",
	})

	resp, body := doJSON(t, http.MethodPatch, srv.URL+"/v1/sessions/u1/s1/context", types.StateTree{
		"user:preferences.tone": "casual",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d: %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/u1/s1/context", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	state, ok := body["state"].(map[string]any)
	if !ok {
		t.Fatalf("state = %v", body["state"])
	}
	prefs, _ := state["user:preferences"].(map[string]any)
	if prefs["tone"] != "casual" {
		t.Fatalf("dot-path delta not expanded: %v", state)
	}
}

func TestGetContextUnknownSessionReturns404(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/u1/ghost/context", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	errObj, ok := body["error"].(map[string]any)
	if !ok || errObj["type"] != "not_found" {
		t.Fatalf("error envelope = %v", body)
	}
}

func TestStoreMessageAndListConversations(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{
		"user_id": "u1", "session_id": "s1",
	})

	resp, msg := doJSON(t, http.MethodPost, srv.URL+"/v1/messages", map[string]any{
		"user_id":      "u1",
		"session_id":   "s1",
		"message_type": "user_voice",
		"content":      "check my unread email please",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("store status = %d: %v", resp.StatusCode, msg)
	}
	convID, _ := msg["conversation_id"].(string)
	if convID == "" || msg["id"] == "" {
		t.Fatalf("message ids missing: %v", msg)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/conversations?user_id=u1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	convs, ok := body["conversations"].([]any)
	if !ok || len(convs) != 1 {
		t.Fatalf("conversations = %v", body["conversations"])
	}
	first := convs[0].(map[string]any)
	if first["id"] != convID {
		t.Fatalf("conversation id = %v, want %s", first["id"], convID)
	}
	// Auto-title comes from the first user_voice message.
	title, _ := first["title"].(string)
	if !strings.Contains(strings.ToLower(title), "check my unread email") {
		t.Fatalf("title = %q", title)
	}
}

func TestStoreMessageRejectsUnknownType(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{
		"user_id": "u1", "session_id": "s1",
	})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/messages", map[string]any{
		"user_id":      "u1",
		"session_id":   "s1",
		"message_type": "telepathy",
		"content":      "hello",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestConversationMessagesOwnerScoped(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{
		"user_id": "u1", "session_id": "s1",
	})
	_, msg := doJSON(t, http.MethodPost, srv.URL+"/v1/messages", map[string]any{
		"user_id": "u1", "session_id": "s1", "message_type": "user_voice", "content": "private note",
	})
	convID := msg["conversation_id"].(string)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/conversations/"+convID+"/messages?user_id=u1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner status = %d", resp.StatusCode)
	}
	if msgs, ok := body["messages"].([]any); !ok || len(msgs) != 1 {
		t.Fatalf("messages = %v", body["messages"])
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/conversations/"+convID+"/messages?user_id=intruder", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("intruder status = %d: %v", resp.StatusCode, body)
	}
}

func TestSearchEndpoint(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{
		"user_id": "u1", "session_id": "s1",
	})
	doJSON(t, http.MethodPost, srv.URL+"/v1/messages", map[string]any{
		"user_id": "u1", "session_id": "s1", "message_type": "user_voice", "content": "archive the newsletter",
	})
	doJSON(t, http.MethodPost, srv.URL+"/v1/messages", map[string]any{
		"user_id": "u1", "session_id": "s1", "message_type": "user_voice", "content": "what time is it",
	})

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/v1/search?user_id=u1&q=newsletter", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	results, ok := body["results"].([]any)
	if !ok || len(results) != 1 {
		t.Fatalf("results = %v", body["results"])
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/search?q=newsletter", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing user_id status = %d", resp.StatusCode)
	}
}

func TestEmailEndpoints(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{
		"user_id": "u1", "session_id": "s1",
	})

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/v1/emails/u1", map[string]any{
		"emails": []map[string]any{
			{"id": "m1", "from": "boss@example.com", "subject": "standup", "unread": true},
		},
	})
	if resp.StatusCode != http.StatusOK || body["cached"] != float64(1) {
		t.Fatalf("cache emails: %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/v1/emails/u1?session_id=s1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get emails status = %d", resp.StatusCode)
	}
	emails, ok := body["emails"].([]any)
	if !ok || len(emails) != 1 {
		t.Fatalf("emails = %v", body["emails"])
	}
	cacheStatus, ok := body["cache_status"].(map[string]any)
	if !ok || cacheStatus["emails_cached"] != true {
		t.Fatalf("cache_status = %v", body["cache_status"])
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/emails/u1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("invalidate status = %d", resp.StatusCode)
	}

	_, body = doJSON(t, http.MethodGet, srv.URL+"/v1/emails/u1?session_id=s1", nil)
	cacheStatus = body["cache_status"].(map[string]any)
	if cacheStatus["emails_cached"] != false {
		t.Fatalf("emails still cached after invalidate: %v", body)
	}
}

func TestDeleteSessionEndpoint(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", map[string]string{
		"user_id": "u1", "session_id": "s1",
	})

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/v1/sessions/u1/s1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/v1/sessions/u1/s1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != string(types.StatusHealthy) {
		t.Fatalf("health status = %v", body["status"])
	}
	tiers, ok := body["tiers"].(map[string]any)
	if !ok || len(tiers) != 4 {
		t.Fatalf("tiers = %v", body["tiers"])
	}
}
