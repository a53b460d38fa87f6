package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/groblegark/madrasa/internal/model"
)

// handlePollEvents handles GET /v1/events, the polling reconciliation
// endpoint. It is stateless: the caller supplies its cursor (`since` epoch
// millis, optionally `after_id` for exact same-millisecond resumption) and
// advances it to the newest createdAt/id pair it receives.
//
// A query failure degrades to an empty event list rather than an error:
// the poller simply misses one round and recovers on the next, or on any
// full refetch of the subject tables.
func (s *Server) handlePollEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var since time.Time
	if v := q.Get("since"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms < 0 {
			writeError(w, http.StatusBadRequest, "since must be epoch milliseconds")
			return
		}
		since = time.UnixMilli(ms).UTC()
	}

	var afterSeq int64
	if v := q.Get("after_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "after_id must be a non-negative integer")
			return
		}
		afterSeq = n
	}

	filter := model.EventFilter{
		Owner:     q.Get("owner"),
		SubjectID: q.Get("subject"),
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	evts, err := s.store.ListEventsSince(r.Context(), since, afterSeq, filter, limit)
	if err != nil {
		slog.Warn("event poll query failed", "owner", filter.Owner, "subject", filter.SubjectID, "error", err)
		evts = nil
	}
	if evts == nil {
		evts = []*model.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}
