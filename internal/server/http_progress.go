package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/groblegark/madrasa/internal/events"
	"github.com/groblegark/madrasa/internal/idgen"
	"github.com/groblegark/madrasa/internal/model"
)

// setProgressInput is the request body for PUT /v1/progress/{user}/{track}.
// Completed is the absolute count after the change; clients never send deltas,
// which keeps concurrent sessions last-write-wins and replays harmless.
type setProgressInput struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Actor     string `json:"actor,omitempty"`
}

// handleSetProgress handles PUT /v1/progress/{user}/{track}.
func (s *Server) handleSetProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	trackID := r.PathValue("track")
	if userID == "" || trackID == "" {
		writeError(w, http.StatusBadRequest, "user and track are required")
		return
	}

	var in setProgressInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.Completed < 0 || in.Total < 0 {
		writeError(w, http.StatusBadRequest, "completed and total must not be negative")
		return
	}
	if in.Total > 0 && in.Completed > in.Total {
		writeError(w, http.StatusBadRequest, "completed must not exceed total")
		return
	}

	id, err := idgen.GenerateWithPrefix("pr-")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate id")
		return
	}

	p := &model.Progress{
		ID:        id,
		UserID:    userID,
		TrackID:   trackID,
		Completed: in.Completed,
		Total:     in.Total,
		UpdatedAt: time.Now().UTC(),
	}

	if err := s.store.UpsertProgress(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save progress")
		return
	}

	// Progress events route to the learning user: every open session of
	// that user sees the new absolute value.
	actor := in.Actor
	if actor == "" {
		actor = userID
	}
	s.emitEvent(r.Context(), "progress", events.KindUpdated, p.ID, userID, actor,
		events.ProgressUpdated{Progress: p})

	writeJSON(w, http.StatusOK, p)
}

// handleGetProgress handles GET /v1/progress/{user}/{track}.
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	trackID := r.PathValue("track")
	if userID == "" || trackID == "" {
		writeError(w, http.StatusBadRequest, "user and track are required")
		return
	}

	p, err := s.store.GetProgress(r.Context(), userID, trackID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "progress not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get progress")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// handleListProgress handles GET /v1/progress/{user}.
func (s *Server) handleListProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	records, err := s.store.ListProgress(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list progress")
		return
	}
	if records == nil {
		records = []*model.Progress{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"progress": records})
}
