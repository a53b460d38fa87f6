package events

import (
	"context"

	"github.com/groblegark/madrasa/internal/model"
)

// NoopPublisher discards every event. Single-instance deployments use it
// when no NATS URL is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ string, _ *model.Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
