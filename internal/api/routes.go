// Route registration for the memory API.
package api

import (
	"net/http"
)

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// ========================================================================
	// Session Routes
	// ========================================================================
	mux.HandleFunc("POST /v1/sessions", h.CreateSession)
	mux.HandleFunc("GET /v1/sessions", h.ListSessions)
	mux.HandleFunc("GET /v1/sessions/{user}/{session}/context", h.GetSessionContext)
	mux.HandleFunc("PATCH /v1/sessions/{user}/{session}/context", h.UpdateSessionContext)
	mux.HandleFunc("DELETE /v1/sessions/{user}/{session}", h.DeleteSession)

	// ========================================================================
	// Conversation Routes
	// ========================================================================
	mux.HandleFunc("POST /v1/messages", h.StoreMessage)
	mux.HandleFunc("GET /v1/conversations", h.ListConversations)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", h.GetConversationMessages)
	mux.HandleFunc("PATCH /v1/conversations/{id}", h.RenameConversation)
	mux.HandleFunc("DELETE /v1/conversations/{id}", h.DeleteConversation)
	mux.HandleFunc("GET /v1/search", h.SearchMessages)

	// ========================================================================
	// Email Cache and Suggestion Routes
	// ========================================================================
	mux.HandleFunc("PUT /v1/emails/{user}", h.CacheEmails)
	mux.HandleFunc("GET /v1/emails/{user}", h.GetEmails)
	mux.HandleFunc("DELETE /v1/emails/{user}", h.InvalidateEmails)
	mux.HandleFunc("GET /v1/suggestions/{user}", h.GetSuggestions)

	// ========================================================================
	// Health
	// ========================================================================
	mux.HandleFunc("GET /health", h.Health)
}
