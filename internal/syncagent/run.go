package syncagent

import (
	"context"
	"log/slog"
	"time"

	"github.com/groblegark/madrasa/internal/client"
)

// Run keeps the agent fed with events until ctx is done. It prefers the
// push stream, reconnecting with a fixed backoff when it drops; after every
// (re)connect it polls once from its cursor, because the server does not
// replay missed history on a new stream. If the stream cannot be opened at
// all the agent degrades to pure polling for one interval, then tries the
// stream again.
func (a *Agent) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		ch, cancel, err := a.client.StreamEvents(ctx, a.owner)
		if err != nil {
			slog.Debug("push stream unavailable, polling", "owner", a.owner, "error", err)
			a.pollOnce(ctx)
			if !sleepCtx(ctx, a.opts.PollInterval) {
				return
			}
			continue
		}

		// Recover anything appended while we were disconnected.
		a.pollOnce(ctx)

		for evt := range ch {
			a.ApplyEvent(evt)
		}
		cancel()

		// Stream closed (server restart, network drop, proxy timeout).
		if !sleepCtx(ctx, a.opts.ReconnectBackoff) {
			return
		}
	}
}

// RunPolling feeds the agent from the polling endpoint only, for consumers
// that never hold a push connection (e.g. a public profile viewer).
func (a *Agent) RunPolling(ctx context.Context) {
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	a.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

// pollOnce fetches events past the agent's cursor and merges them. Errors
// degrade freshness, not correctness: the next poll or revalidation
// catches the agent up.
func (a *Agent) pollOnce(ctx context.Context) {
	millis, seq := a.Cursor()
	evts, err := a.client.EventsSince(ctx, &client.EventsSinceRequest{
		SinceMillis: millis,
		AfterSeq:    seq,
		Owner:       a.owner,
	})
	if err != nil {
		slog.Debug("event poll failed", "owner", a.owner, "error", err)
		return
	}
	for _, evt := range evts {
		a.ApplyEvent(evt)
	}
}

// sleepCtx waits d or until ctx is done; it reports whether the full wait
// elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
