// Package server implements the madrasa HTTP API: subject CRUD, the event
// writer, the push broadcast hub, and the polling reconciliation endpoint.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/groblegark/madrasa/internal/events"
	"github.com/groblegark/madrasa/internal/model"
	"github.com/groblegark/madrasa/internal/presence"
	"github.com/groblegark/madrasa/internal/store"
)

// Server owns the store, the optional cross-instance publisher, and the
// in-process push hub. The hub only reaches subscribers connected to this
// instance; horizontally scaled deployments rely on the polling endpoint
// (and the NATS mirror, when configured) for cross-instance visibility.
type Server struct {
	store     store.Store
	publisher events.Publisher
	hub       *pushHub
	Presence  *presence.Tracker
}

// NewServer returns a new Server backed by the given store and publisher.
func NewServer(s store.Store, p events.Publisher) *Server {
	return &Server{
		store:     s,
		publisher: p,
		hub:       newPushHub(),
		Presence:  presence.New(),
	}
}

// emitEvent appends one event to the log and fans it out: to NATS (when
// configured) and to this instance's push hub. Every step is best-effort;
// failures are logged and swallowed so a notification problem can never
// fail the mutation that triggered it.
func (s *Server) emitEvent(ctx context.Context, family string, kind events.Kind, subjectID, owner, actor string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("failed to marshal event payload", "kind", kind, "subject_id", subjectID, "error", err)
		return
	}

	evt := &model.Event{
		SubjectID: subjectID,
		Kind:      kind.String(),
		Owner:     owner,
		Actor:     actor,
		Payload:   data,
	}
	if err := s.store.AppendEvent(ctx, evt); err != nil {
		// The mutation already committed; pollers will miss this event but
		// recover correct state from the subject tables on their next full
		// fetch. Push delivery still proceeds with a caller-side timestamp.
		slog.Warn("failed to append event", "kind", kind, "subject_id", subjectID, "error", err)
		evt.CreatedAt = time.Now().UTC()
	}

	if topic, err := events.TopicFor(family, kind); err != nil {
		slog.Warn("event not mirrored", "kind", kind, "subject_id", subjectID, "error", err)
	} else if err := s.publisher.Publish(ctx, topic, evt); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "subject_id", subjectID, "error", err)
	}

	s.hub.broadcast(evt)
}
