// Package api provides HTTP handlers for the memory coordination service.
package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/oprina-ai/memcore/internal/coordinator"
	"github.com/oprina-ai/memcore/internal/healthcheck"
	"github.com/oprina-ai/memcore/internal/history"
	memerrors "github.com/oprina-ai/memcore/pkg/errors"
	"github.com/oprina-ai/memcore/pkg/types"
)

// Handler serves the v1 memory API over a single Coordinator.
type Handler struct {
	co      *coordinator.Coordinator
	checker *healthcheck.Checker
	logger  *slog.Logger
}

// NewHandler creates an API handler.
func NewHandler(co *coordinator.Coordinator, checker *healthcheck.Checker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{co: co, checker: checker, logger: logger}
}

// ============================================================================
// Session endpoints
// ============================================================================

// CreateSessionRequest is the body for POST /v1/sessions.
type CreateSessionRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// CreateSession handles POST /v1/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}
	if req.UserID == "" || req.SessionID == "" {
		h.writeBadRequest(w, "user_id and session_id are required")
		return
	}

	id, err := h.co.CreateSession(r.Context(), req.UserID, req.SessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// GetSessionContext handles GET /v1/sessions/{user}/{session}/context.
func (h *Handler) GetSessionContext(w http.ResponseWriter, r *http.Request) {
	sc, err := h.co.GetSessionContext(r.Context(), r.PathValue("user"), r.PathValue("session"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, sc)
}

// UpdateSessionContext handles PATCH /v1/sessions/{user}/{session}/context.
// The body is the state delta to merge.
func (h *Handler) UpdateSessionContext(w http.ResponseWriter, r *http.Request) {
	var delta types.StateTree
	if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}

	user, session := r.PathValue("user"), r.PathValue("session")
	ok, err := h.co.UpdateSessionContext(r.Context(), user, session, delta)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !ok {
		h.writeError(w, memerrors.NewNotFound(memerrors.TierSession, session, "session not found"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"applied": true})
}

// DeleteSession handles DELETE /v1/sessions/{user}/{session}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	user, session := r.PathValue("user"), r.PathValue("session")
	ok, err := h.co.DeleteSession(r.Context(), user, session)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !ok {
		h.writeError(w, memerrors.NewNotFound(memerrors.TierSession, session, "session not found"))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// ListSessions handles GET /v1/sessions?user_id=...&active=true.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeBadRequest(w, "user_id is required")
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"

	sessions, err := h.co.ListSessions(r.Context(), userID, activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// ============================================================================
// Message and conversation endpoints
// ============================================================================

// StoreMessageRequest is the body for POST /v1/messages.
type StoreMessageRequest struct {
	UserID      string         `json:"user_id"`
	SessionID   string         `json:"session_id"`
	MessageType string         `json:"message_type"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// StoreMessage handles POST /v1/messages.
func (h *Handler) StoreMessage(w http.ResponseWriter, r *http.Request) {
	var req StoreMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}
	if req.UserID == "" || req.SessionID == "" || req.Content == "" {
		h.writeBadRequest(w, "user_id, session_id and content are required")
		return
	}
	msgType := types.MessageType(req.MessageType)
	if !msgType.Valid() {
		h.writeBadRequest(w, "unknown message_type: "+req.MessageType)
		return
	}

	msg, err := h.co.StoreConversationMessage(r.Context(), req.UserID, req.SessionID, msgType, req.Content, req.Metadata)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, msg)
}

// ListConversations handles GET /v1/conversations?user_id=...&limit=&offset=.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeBadRequest(w, "user_id is required")
		return
	}

	convs, err := h.co.ListConversations(r.Context(), userID, queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

// GetConversationMessages handles GET /v1/conversations/{id}/messages?user_id=...
func (h *Handler) GetConversationMessages(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeBadRequest(w, "user_id is required")
		return
	}

	msgs, err := h.co.GetMessages(r.Context(), r.PathValue("id"), userID,
		queryInt(r, "limit"), queryInt(r, "offset"), types.MessageType(r.URL.Query().Get("type")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// RenameConversationRequest is the body for PATCH /v1/conversations/{id}.
type RenameConversationRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

// RenameConversation handles PATCH /v1/conversations/{id}.
func (h *Handler) RenameConversation(w http.ResponseWriter, r *http.Request) {
	var req RenameConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}
	if req.UserID == "" || req.Title == "" {
		h.writeBadRequest(w, "user_id and title are required")
		return
	}

	if err := h.co.RenameConversation(r.Context(), r.PathValue("id"), req.UserID, req.Title); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"renamed": true})
}

// DeleteConversation handles DELETE /v1/conversations/{id}?user_id=...
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeBadRequest(w, "user_id is required")
		return
	}

	if err := h.co.DeleteConversation(r.Context(), r.PathValue("id"), userID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// SearchMessages handles GET /v1/search?user_id=...&q=...
func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, query := q.Get("user_id"), q.Get("q")
	if userID == "" || query == "" {
		h.writeBadRequest(w, "user_id and q are required")
		return
	}

	msgs, err := h.co.SearchMessages(r.Context(), userID, query, history.SearchOptions{
		ConversationID: q.Get("conversation_id"),
		TypeFilter:     types.MessageType(q.Get("type")),
		Limit:          queryInt(r, "limit"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"results": msgs})
}

// ============================================================================
// Email and suggestion endpoints
// ============================================================================

// CacheEmailsRequest is the body for PUT /v1/emails/{user}.
type CacheEmailsRequest struct {
	Emails []types.EmailSummary `json:"emails"`
}

// CacheEmails handles PUT /v1/emails/{user}.
func (h *Handler) CacheEmails(w http.ResponseWriter, r *http.Request) {
	var req CacheEmailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}

	if err := h.co.CacheUserEmails(r.Context(), r.PathValue("user"), req.Emails); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"cached": len(req.Emails)})
}

// GetEmails handles GET /v1/emails/{user}?session_id=...
func (h *Handler) GetEmails(w http.ResponseWriter, r *http.Request) {
	ec, err := h.co.GetUserEmailsWithContext(r.Context(), r.PathValue("user"), r.URL.Query().Get("session_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ec)
}

// InvalidateEmails handles DELETE /v1/emails/{user}.
func (h *Handler) InvalidateEmails(w http.ResponseWriter, r *http.Request) {
	if err := h.co.InvalidateUserEmails(r.Context(), r.PathValue("user")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"invalidated": true})
}

// GetSuggestions handles GET /v1/suggestions/{user}.
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	situational := map[string]any{}
	if hour := r.URL.Query().Get("current_hour"); hour != "" {
		if v, err := strconv.Atoi(hour); err == nil {
			situational["current_hour"] = v
		}
	}
	if n := r.URL.Query().Get("pending_email_count"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			situational["pending_email_count"] = v
		}
	}

	suggestions, err := h.co.GetSmartSuggestions(r.Context(), r.PathValue("user"), situational)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// ============================================================================
// Health
// ============================================================================

// Health handles GET /health. An unhealthy aggregate returns 503 so load
// balancers can rotate the instance out.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Check(r.Context())
	status := http.StatusOK
	if report.Status == types.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, report)
}

// ============================================================================
// Helpers
// ============================================================================

func queryInt(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) writeBadRequest(w http.ResponseWriter, message string) {
	h.writeEnvelope(w, http.StatusBadRequest, ErrorDetail{Message: message, Type: "bad_request"})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var memErr *memerrors.MemoryError
	if e, ok := err.(*memerrors.MemoryError); ok {
		memErr = e
	} else {
		memErr = memerrors.NewInternal("api", "internal error", err)
	}
	h.writeEnvelope(w, httpStatus(memErr), ErrorDetail{
		Message: memErr.Message,
		Type:    memErr.Type,
		Tier:    memErr.Tier,
	})
}

func (h *Handler) writeEnvelope(w http.ResponseWriter, status int, detail ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: detail}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}

func httpStatus(err *memerrors.MemoryError) int {
	switch err.Type {
	case memerrors.TypeNotFound:
		return http.StatusNotFound
	case memerrors.TypeUnauthorized:
		return http.StatusForbidden
	case memerrors.TypeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
