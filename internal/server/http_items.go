package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/groblegark/madrasa/internal/events"
	"github.com/groblegark/madrasa/internal/idgen"
	"github.com/groblegark/madrasa/internal/model"
)

// createItemInput is the request body for POST /v1/items.
type createItemInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PriceCents  int    `json:"price_cents"`
	Owner       string `json:"owner"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// updateItemInput holds optional fields for PATCH /v1/items/{id}.
// Nil pointer fields mean "don't change".
type updateItemInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	PriceCents  *int    `json:"price_cents,omitempty"`
	Actor       string  `json:"actor,omitempty"`
}

// handleCreateItem handles POST /v1/items.
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var in createItemInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	item, err := s.createItem(r.Context(), in)
	if err != nil {
		var ie inputError
		if errors.As(err, &ie) {
			writeError(w, http.StatusBadRequest, ie.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) createItem(ctx context.Context, in createItemInput) (*model.Item, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, inputError("title is required")
	}
	if in.Owner == "" {
		return nil, inputError("owner is required")
	}
	if in.PriceCents < 0 {
		return nil, inputError("price_cents must not be negative")
	}

	id, err := idgen.Generate()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &model.Item{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Status:      model.StatusDraft,
		PriceCents:  in.PriceCents,
		Owner:       in.Owner,
		CreatedAt:   now,
		CreatedBy:   in.CreatedBy,
		UpdatedAt:   now,
	}

	if err := s.store.CreateItem(ctx, item); err != nil {
		return nil, err
	}

	s.emitEvent(ctx, "item", events.KindCreated, item.ID, item.Owner, in.CreatedBy,
		events.ItemCreated{Item: item})

	return item, nil
}

// handleListItems handles GET /v1/items.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ItemFilter{
		Owner:  q.Get("owner"),
		Search: q.Get("search"),
	}

	if v := q.Get("status"); v != "" {
		for _, st := range strings.Split(v, ",") {
			filter.Status = append(filter.Status, model.ItemStatus(st))
		}
	}
	if q.Get("include_deleted") == "true" {
		filter.IncludeDeleted = true
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	items, total, err := s.store.ListItems(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	// Ensure items is never null in JSON output.
	if items == nil {
		items = []*model.Item{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
	})
}

// handleGetItem handles GET /v1/items/{id}.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	item, err := s.store.GetItem(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get item")
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// handleUpdateItem handles PATCH /v1/items/{id}.
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	var in updateItemInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	item, err := s.store.GetItem(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get item")
		return
	}

	changes := make(map[string]any)
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			writeError(w, http.StatusBadRequest, "title must not be empty")
			return
		}
		item.Title = *in.Title
		changes["title"] = *in.Title
	}
	if in.Description != nil {
		item.Description = *in.Description
		changes["description"] = *in.Description
	}
	if in.PriceCents != nil {
		if *in.PriceCents < 0 {
			writeError(w, http.StatusBadRequest, "price_cents must not be negative")
			return
		}
		item.PriceCents = *in.PriceCents
		changes["price_cents"] = *in.PriceCents
	}

	if len(changes) == 0 {
		writeJSON(w, http.StatusOK, item)
		return
	}

	item.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateItem(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update item")
		return
	}

	s.emitEvent(r.Context(), "item", events.KindUpdated, item.ID, item.Owner, in.Actor,
		events.ItemUpdated{Item: item, Changes: changes})

	writeJSON(w, http.StatusOK, item)
}

// handlePublishItem handles POST /v1/items/{id}/publish.
func (s *Server) handlePublishItem(w http.ResponseWriter, r *http.Request) {
	s.changeItemStatus(w, r, model.StatusPublished)
}

// handleArchiveItem handles POST /v1/items/{id}/archive.
func (s *Server) handleArchiveItem(w http.ResponseWriter, r *http.Request) {
	s.changeItemStatus(w, r, model.StatusArchived)
}

// changeItemStatus moves an item to the target status and emits one
// status_changed event recording the transition.
func (s *Server) changeItemStatus(w http.ResponseWriter, r *http.Request, to model.ItemStatus) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	item, err := s.store.GetItem(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item.Deleted() {
		writeError(w, http.StatusConflict, "item is deleted")
		return
	}

	from := item.Status
	if from == to {
		writeJSON(w, http.StatusOK, item)
		return
	}
	if !validTransition(from, to) {
		writeError(w, http.StatusConflict, "cannot move item from "+from.String()+" to "+to.String())
		return
	}

	updated, err := s.store.SetItemStatus(r.Context(), id, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to change item status")
		return
	}

	s.emitEvent(r.Context(), "item", events.KindStatusChanged, id, updated.Owner, r.URL.Query().Get("actor"),
		events.ItemStatusChanged{ItemID: id, From: from, To: to})

	writeJSON(w, http.StatusOK, updated)
}

// validTransition enforces the item status lifecycle:
// draft -> published -> archived, with archived -> published re-listing.
func validTransition(from, to model.ItemStatus) bool {
	switch from {
	case model.StatusDraft:
		return to == model.StatusPublished
	case model.StatusPublished:
		return to == model.StatusArchived
	case model.StatusArchived:
		return to == model.StatusPublished
	}
	return false
}

// handleDeleteItem handles DELETE /v1/items/{id} (soft delete).
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	item, err := s.store.GetItem(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get item")
		return
	}

	if err := s.store.SoftDeleteItem(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusConflict, "item already deleted")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	s.emitEvent(r.Context(), "item", events.KindDeleted, id, item.Owner, r.URL.Query().Get("actor"),
		events.ItemDeleted{ItemID: id})

	w.WriteHeader(http.StatusNoContent)
}

// handleRestoreItem handles POST /v1/items/{id}/restore.
func (s *Server) handleRestoreItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	item, err := s.store.RestoreItem(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "no deleted item to restore")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to restore item")
		return
	}

	s.emitEvent(r.Context(), "item", events.KindRestored, id, item.Owner, r.URL.Query().Get("actor"),
		events.ItemRestored{Item: item})

	writeJSON(w, http.StatusOK, item)
}

// handleHardDeleteItem handles DELETE /v1/items/{id}/hard.
// The row is gone afterwards; the hard_deleted event is the only record
// that the item existed.
func (s *Server) handleHardDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	item, err := s.store.GetItem(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get item")
		return
	}

	if err := s.store.HardDeleteItem(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete item")
		return
	}

	s.emitEvent(r.Context(), "item", events.KindHardDeleted, id, item.Owner, r.URL.Query().Get("actor"),
		events.ItemHardDeleted{ItemID: id})

	w.WriteHeader(http.StatusNoContent)
}

// handleItemEvents handles GET /v1/items/{id}/events: the full ordered
// history for one subject.
func (s *Server) handleItemEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	evts, err := s.store.EventsForSubject(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get events")
		return
	}
	if evts == nil {
		evts = []*model.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}
