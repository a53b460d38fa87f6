package server

import (
	"encoding/json"
	"net/http"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/items", s.handleCreateItem)
	mux.HandleFunc("GET /v1/items", s.handleListItems)
	mux.HandleFunc("GET /v1/items/{id}", s.handleGetItem)
	mux.HandleFunc("PATCH /v1/items/{id}", s.handleUpdateItem)
	mux.HandleFunc("POST /v1/items/{id}/publish", s.handlePublishItem)
	mux.HandleFunc("POST /v1/items/{id}/archive", s.handleArchiveItem)
	mux.HandleFunc("DELETE /v1/items/{id}", s.handleDeleteItem)
	mux.HandleFunc("POST /v1/items/{id}/restore", s.handleRestoreItem)
	mux.HandleFunc("DELETE /v1/items/{id}/hard", s.handleHardDeleteItem)
	mux.HandleFunc("GET /v1/items/{id}/events", s.handleItemEvents)
	mux.HandleFunc("PUT /v1/progress/{user}/{track}", s.handleSetProgress)
	mux.HandleFunc("GET /v1/progress/{user}/{track}", s.handleGetProgress)
	mux.HandleFunc("GET /v1/progress/{user}", s.handleListProgress)
	mux.HandleFunc("GET /v1/events", s.handlePollEvents)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/sessions", s.handleSessions)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSessions handles GET /v1/sessions: the live roster of connected
// push subscribers on this instance.
func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.Presence.Snapshot()})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
