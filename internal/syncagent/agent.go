// Package syncagent holds per-session optimistic state for subjects a
// client is viewing, and keeps it reconciled with server truth.
//
// A mutation is applied to local state immediately, then submitted; on
// success the agent schedules a short-delayed revalidation against the
// authoritative record, and on failure it restores the pre-mutation value.
// Incoming events (from the push stream or the polling fallback) merge by
// absolute-value assignment keyed by the event cursor, so the duplicated or
// out-of-order delivery that both channels can produce independently is
// harmless.
package syncagent

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/groblegark/madrasa/internal/client"
	"github.com/groblegark/madrasa/internal/model"
)

// State is the lifecycle of one tracked subject value.
type State int

const (
	StateIdle State = iota
	StateOptimistic
	StateConfirmed
	StateRolledBack
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOptimistic:
		return "optimistic"
	case StateConfirmed:
		return "confirmed"
	case StateRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

const (
	// DefaultRevalidateDelay is how long after a confirmed mutation the
	// agent re-fetches server truth to settle any divergence.
	DefaultRevalidateDelay = 2 * time.Second

	// DefaultReconnectBackoff is the fixed wait between push stream
	// reconnection attempts.
	DefaultReconnectBackoff = 5 * time.Second

	// DefaultPollInterval is the polling cadence when the push stream is
	// unavailable. Deliberately coarse: polling is a fallback, not the
	// primary delivery path.
	DefaultPollInterval = 15 * time.Second
)

// Options configures an Agent.
type Options struct {
	// Fetch returns the authoritative value for a subject; used by
	// revalidation. Nil disables revalidation.
	Fetch func(ctx context.Context, subject string) (any, error)

	// OnChange is called (outside the agent lock) whenever a tracked
	// subject's value or state changes.
	OnChange func(subject string, value any, state State)

	RevalidateDelay  time.Duration
	ReconnectBackoff time.Duration
	PollInterval     time.Duration
}

// Agent reconciles local optimistic state with the server's event feed.
type Agent struct {
	client client.Client
	owner  string
	opts   Options

	mu       sync.Mutex
	subjects map[string]*subjectState

	// Poll cursor: newest (createdAt millis, seq) seen on either channel.
	cursorMillis int64
	cursorSeq    int64
}

type subjectState struct {
	state      State
	value      any
	prev       any   // pre-mutation value, for rollback
	pending    bool  // a mutation is in flight
	applied    int64 // cursor millis of the last merged event
	appliedSeq int64
}

// New creates an Agent for the given owner. The owner scopes the push
// stream and the polling fallback to this user's events.
func New(c client.Client, owner string, opts Options) *Agent {
	if opts.RevalidateDelay <= 0 {
		opts.RevalidateDelay = DefaultRevalidateDelay
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = DefaultReconnectBackoff
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Agent{
		client:   c,
		owner:    owner,
		opts:     opts,
		subjects: make(map[string]*subjectState),
	}
}

// Track seeds local state for a subject from an authoritative read.
func (a *Agent) Track(subject string, value any) {
	a.mu.Lock()
	a.subjects[subject] = &subjectState{state: StateIdle, value: value}
	a.mu.Unlock()
}

// Get returns the current local value and state for a subject.
func (a *Agent) Get(subject string) (any, State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.subjects[subject]
	if !ok {
		return nil, StateIdle, false
	}
	return st.value, st.state, true
}

// ErrUntracked is returned by Mutate for a subject Track never saw.
var ErrUntracked = errors.New("syncagent: subject not tracked")

// Mutate applies next to local state immediately, then runs submit. On
// submit failure the pre-mutation value is restored and the error returned;
// on success a delayed revalidation against server truth is scheduled.
func (a *Agent) Mutate(ctx context.Context, subject string, next any, submit func(ctx context.Context) error) error {
	a.mu.Lock()
	st, ok := a.subjects[subject]
	if !ok {
		a.mu.Unlock()
		return ErrUntracked
	}
	st.prev = st.value
	st.value = next
	st.state = StateOptimistic
	st.pending = true
	a.mu.Unlock()
	a.notify(subject, next, StateOptimistic)

	if err := submit(ctx); err != nil {
		a.mu.Lock()
		st.value = st.prev
		st.state = StateRolledBack
		st.pending = false
		restored := st.value
		a.mu.Unlock()
		a.notify(subject, restored, StateRolledBack)
		return err
	}

	a.mu.Lock()
	st.state = StateConfirmed
	st.pending = false
	confirmed := st.value
	a.mu.Unlock()
	a.notify(subject, confirmed, StateConfirmed)

	if a.opts.Fetch != nil {
		time.AfterFunc(a.opts.RevalidateDelay, func() {
			a.Revalidate(context.Background(), subject)
		})
	}
	return nil
}

// ApplyEvent merges one incoming event into local state. The merge is an
// absolute-value assignment: applying the same event twice, or events out
// of order, converges to the same state. Events for subjects with a
// mutation in flight are skipped; the in-flight local value is newer than
// anything the server can echo back.
func (a *Agent) ApplyEvent(evt *model.Event) {
	millis := evt.CreatedAt.UnixMilli()

	a.mu.Lock()
	// Advance the poll cursor past everything we have seen, tracked or
	// not. Seq 0 marks an event the server broadcast without managing to
	// persist it; it has no position in the log and must never move the
	// cursor, or the next poll would skip real rows at its timestamp.
	if evt.Seq > 0 &&
		(millis > a.cursorMillis || (millis == a.cursorMillis && evt.Seq > a.cursorSeq)) {
		a.cursorMillis = millis
		a.cursorSeq = evt.Seq
	}

	st, tracked := a.subjects[evt.SubjectID]
	if !tracked || st.pending {
		a.mu.Unlock()
		return
	}
	// Stale or duplicate delivery: the last merged event is at least as
	// new. An unpersisted event has no seq to compare, so it competes on
	// timestamp alone; the push stream is its only delivery.
	if millis < st.applied {
		a.mu.Unlock()
		return
	}
	if evt.Seq > 0 && millis == st.applied && evt.Seq <= st.appliedSeq {
		a.mu.Unlock()
		return
	}

	value, ok := extractValue(evt)
	if !ok {
		a.mu.Unlock()
		return
	}

	st.value = value
	st.applied = millis
	if evt.Seq > 0 {
		st.appliedSeq = evt.Seq
	}
	if st.state == StateOptimistic {
		// Should not happen while pending is false, but keep the machine
		// honest: an external write lands as confirmed truth.
		st.state = StateConfirmed
	}
	a.mu.Unlock()
	a.notify(evt.SubjectID, value, StateIdle)
}

// Revalidate replaces local state with an authoritative read, unless a
// mutation is currently in flight for the subject.
func (a *Agent) Revalidate(ctx context.Context, subject string) {
	if a.opts.Fetch == nil {
		return
	}
	value, err := a.opts.Fetch(ctx, subject)
	if err != nil {
		slog.Debug("revalidation failed", "subject", subject, "error", err)
		return
	}

	a.mu.Lock()
	st, ok := a.subjects[subject]
	if !ok || st.pending {
		a.mu.Unlock()
		return
	}
	st.value = value
	st.state = StateIdle
	a.mu.Unlock()
	a.notify(subject, value, StateIdle)
}

// Cursor returns the newest (epoch millis, seq) pair the agent has merged.
func (a *Agent) Cursor() (int64, int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursorMillis, a.cursorSeq
}

func (a *Agent) notify(subject string, value any, state State) {
	if a.opts.OnChange != nil {
		a.opts.OnChange(subject, value, state)
	}
}
