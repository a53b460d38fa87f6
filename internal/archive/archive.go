// Package archive tiers the append-only event log: it periodically exports
// events as JSONL to a destination (S3 or a local file) and, once an export
// succeeds, prunes rows older than the configured retention window from the
// hot table. With retention disabled the log grows without bound and the
// archive is a plain backup.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/groblegark/madrasa/internal/model"
	"github.com/groblegark/madrasa/internal/store"
)

// Destination is the interface for an archive target (S3, local file, etc.).
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	EventCount int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes the full event log as JSONL to w, oldest first,
// paging through the store with the cursor query.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) (int, error) {
	var all []*model.Event
	var since time.Time
	var afterSeq int64
	for {
		page, err := s.ListEventsSince(ctx, since, afterSeq, model.EventFilter{}, store.MaxEventPage)
		if err != nil {
			return 0, fmt.Errorf("list events: %w", err)
		}
		all = append(all, page...)
		if len(page) < store.MaxEventPage {
			break
		}
		last := page[len(page)-1]
		since = last.CreatedAt
		afterSeq = last.Seq
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		EventCount: len(all),
	}); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for _, evt := range all {
		if err := enc.Encode(record{Type: "event", Data: evt}); err != nil {
			return 0, fmt.Errorf("write event %d: %w", evt.Seq, err)
		}
	}
	return len(all), nil
}

// Scheduler runs periodic exports, then prunes per the retention window.
type Scheduler struct {
	store        store.Store
	destinations []Destination
	interval     time.Duration
	retention    time.Duration // 0 = never prune
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that archives the event log to the given
// destinations at the specified interval. retention of zero disables pruning.
func NewScheduler(s store.Store, destinations []Destination, interval, retention time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:        s,
		destinations: destinations,
		interval:     interval,
		retention:    retention,
		logger:       logger,
	}
}

// Start begins periodic archiving. It runs an initial export immediately,
// then on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current export (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.archiveOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.archiveOnce(ctx)
		}
	}
}

func (s *Scheduler) archiveOnce(ctx context.Context) {
	var buf bytes.Buffer
	count, err := ExportJSONL(ctx, s.store, &buf)
	if err != nil {
		s.logger.Error("archive export failed", "err", err)
		return
	}
	data := buf.Bytes()

	ok := true
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Error("archive destination write failed", "destination", fmt.Sprintf("%d", i), "err", err)
			ok = false
		}
	}

	s.logger.Info("archive completed", "events", count, "bytes", len(data), "destinations", len(s.destinations))

	// Prune only after every destination accepted the snapshot; a failed
	// upload must never cost history.
	if !ok || s.retention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-s.retention)
	pruned, err := s.store.PruneEventsBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("event prune failed", "cutoff", cutoff, "err", err)
		return
	}
	if pruned > 0 {
		s.logger.Info("pruned archived events", "count", pruned, "cutoff", cutoff)
	}
}
