package model

import (
	"encoding/json"
	"time"
)

// Event is a persisted mutation record. Events are immutable and append-only:
// they are never updated or deleted, even when their subject is hard-deleted.
//
// Seq is assigned by the database (BIGSERIAL) and breaks ties between events
// sharing a millisecond timestamp, giving the log a strict total order.
// The (CreatedAt, Seq) pair is the delivery cursor.
type Event struct {
	Seq       int64           `json:"id"`
	SubjectID string          `json:"subjectId"`
	Kind      string          `json:"type"`
	Owner     string          `json:"ownerId"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"-"`
}

// MarshalJSON emits the wire shape: createdAt as epoch milliseconds.
func (e *Event) MarshalJSON() ([]byte, error) {
	type alias Event
	return json.Marshal(struct {
		*alias
		CreatedAtMillis int64 `json:"createdAt"`
	}{
		alias:           (*alias)(e),
		CreatedAtMillis: e.CreatedAt.UnixMilli(),
	})
}

// UnmarshalJSON parses the wire shape back into an Event.
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	aux := struct {
		*alias
		CreatedAtMillis int64 `json:"createdAt"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.CreatedAt = time.UnixMilli(aux.CreatedAtMillis).UTC()
	return nil
}

// EventFilter scopes an event-log query.
type EventFilter struct {
	// Owner restricts results to events routed to one owner (e.g. "this
	// user's content lifecycle events"). Empty means all owners.
	Owner string
	// SubjectID restricts results to one subject's history.
	SubjectID string
}
