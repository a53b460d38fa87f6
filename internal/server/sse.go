package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/groblegark/madrasa/internal/model"
)

// sseKeepaliveInterval is how often keepalive comments are sent to
// prevent connection timeouts.
const sseKeepaliveInterval = 15 * time.Second

// pushHub routes events to the open streaming connections of the owning
// user. The registry is process-local: a subscriber connected to another
// instance is reached by the polling endpoint (or the NATS mirror), never
// by this hub.
//
// There is deliberately no replay buffer. A reconnecting client revalidates
// once via the polling endpoint; the stream only carries events appended
// while it is open.
type pushHub struct {
	mu    sync.RWMutex
	conns map[string]map[*pushConn]struct{} // owner id -> open connections
}

// pushConn is a single open stream belonging to one owner. Multiple
// connections per owner are expected (several tabs or devices).
type pushConn struct {
	owner string
	ch    chan *model.Event // buffered channel for event delivery
}

func newPushHub() *pushHub {
	return &pushHub{
		conns: make(map[string]map[*pushConn]struct{}),
	}
}

// broadcast delivers an event to every open connection of its owner.
// Sends are non-blocking: a slow or dead connection drops the event rather
// than stalling the mutation path; the client recovers by revalidating.
func (h *pushHub) broadcast(evt *model.Event) {
	if evt.Owner == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[evt.Owner] {
		select {
		case c.ch <- evt:
		default:
		}
	}
}

// subscribe registers a new connection for an owner. Call unsubscribe when done.
func (h *pushHub) subscribe(owner string) *pushConn {
	c := &pushConn{
		owner: owner,
		ch:    make(chan *model.Event, 64),
	}
	h.mu.Lock()
	set := h.conns[owner]
	if set == nil {
		set = make(map[*pushConn]struct{})
		h.conns[owner] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// unsubscribe removes a connection from the hub. The per-owner set is
// deleted when its last connection goes away so the map cannot grow with
// departed users.
func (h *pushHub) unsubscribe(c *pushConn) {
	h.mu.Lock()
	if set := h.conns[c.owner]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.owner)
		}
	}
	h.mu.Unlock()
}

// connected reports how many open connections an owner currently has.
func (h *pushHub) connected(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[owner])
}

// handleEventStream handles GET /v1/events/stream (SSE endpoint).
// The owner query parameter scopes which events this connection receives;
// it must match the identity the auth layer admitted.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	conn := s.hub.subscribe(owner)
	defer s.hub.unsubscribe(conn)

	s.Presence.Connected(owner)
	defer s.Presence.Disconnected(owner)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Stream events until the client disconnects; r.Context() is done when
	// the tab closes or navigates away, which removes this hub entry.
	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-conn.ch:
			if err := writeSSEEvent(w, evt); err != nil {
				return
			}
			flusher.Flush()
			s.Presence.Delivered(owner)
		case <-keepalive.C:
			if _, err := fmt.Fprintf(w, ":keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single named SSE message. The event name is the
// mutation kind and the data line is the full wire-shape event record.
// Events that failed to persist carry seq 0 and get no id line: they have
// no log position a client could meaningfully resume from.
func writeSSEEvent(w http.ResponseWriter, evt *model.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("failed to marshal event for push", "kind", evt.Kind, "subject_id", evt.SubjectID, "error", err)
		return nil
	}
	if evt.Seq > 0 {
		if _, err := fmt.Fprintf(w, "id:%d\n", evt.Seq); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event:%s\n", evt.Kind); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data:%s\n\n", data)
	return err
}
