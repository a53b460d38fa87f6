// Package presence tracks which owners currently hold open push
// connections on this instance.
//
// The Tracker maintains an in-memory roster updated by the SSE handler on
// connect and disconnect. It is per-instance state, like the push hub it
// mirrors: in a scaled deployment each instance only knows its own
// connections.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Entry represents one owner's live connection state.
type Entry struct {
	Owner          string    `json:"owner"`
	Connections    int       `json:"connections"`
	FirstConnected time.Time `json:"first_connected"`
	LastSeen       time.Time `json:"last_seen"`
	Delivered      int64     `json:"delivered"` // events pushed since first connect
}

// Tracker maintains an in-memory roster of connected owners.
type Tracker struct {
	mu     sync.RWMutex
	owners map[string]*ownerState
}

type ownerState struct {
	connections    int
	firstConnected time.Time
	lastSeen       time.Time
	delivered      int64
}

// New creates a new presence tracker.
func New() *Tracker {
	return &Tracker{owners: make(map[string]*ownerState)}
}

// Connected records a new open push connection for an owner.
func (t *Tracker) Connected(owner string) {
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.owners[owner]
	if st == nil {
		st = &ownerState{firstConnected: now}
		t.owners[owner] = st
	}
	st.connections++
	st.lastSeen = now
}

// Disconnected records a closed push connection. The owner is removed from
// the roster once its last connection goes away, so the map cannot grow
// with departed users.
func (t *Tracker) Disconnected(owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.owners[owner]
	if st == nil {
		return
	}
	st.connections--
	if st.connections <= 0 {
		delete(t.owners, owner)
		return
	}
	st.lastSeen = time.Now().UTC()
}

// Delivered records one event pushed to an owner's connection.
func (t *Tracker) Delivered(owner string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st := t.owners[owner]; st != nil {
		st.delivered++
		st.lastSeen = time.Now().UTC()
	}
}

// Snapshot returns the current roster sorted by owner id.
func (t *Tracker) Snapshot() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.owners))
	for owner, st := range t.owners {
		out = append(out, Entry{
			Owner:          owner,
			Connections:    st.connections,
			FirstConnected: st.firstConnected,
			LastSeen:       st.lastSeen,
			Delivered:      st.delivered,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}
