package server

import (
	"context"

	"github.com/groblegark/madrasa/internal/events"
)

// RunMirror consumes events mirrored over NATS by other instances and
// re-broadcasts them into this instance's push hub, so an owner connected
// here still sees mutations that committed elsewhere. Without a mirror,
// cross-instance visibility falls back entirely on polling.
//
// Events published by this instance come back through the mirror too; the
// client merge is an absolute-value assignment keyed by the event cursor,
// so the duplicate delivery is harmless.
func (s *Server) RunMirror(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.TopicWildcard)
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			s.hub.broadcast(evt)
		}
	}
}
