package store

import (
	"context"
	"time"

	"github.com/groblegark/madrasa/internal/model"
)

// MaxEventPage caps how many events a single cursor query may return,
// bounding response size for pollers.
const MaxEventPage = 500

// Store defines the persistence interface for madrasa.
type Store interface {
	// Item CRUD
	CreateItem(ctx context.Context, item *model.Item) error
	GetItem(ctx context.Context, id string) (*model.Item, error)
	ListItems(ctx context.Context, filter model.ItemFilter) ([]*model.Item, int, error) // returns items, total count, error
	UpdateItem(ctx context.Context, item *model.Item) error
	SetItemStatus(ctx context.Context, id string, status model.ItemStatus) (*model.Item, error)
	SoftDeleteItem(ctx context.Context, id string) error
	RestoreItem(ctx context.Context, id string) (*model.Item, error)
	HardDeleteItem(ctx context.Context, id string) error

	// Learning progress
	UpsertProgress(ctx context.Context, p *model.Progress) error
	GetProgress(ctx context.Context, userID, trackID string) (*model.Progress, error)
	ListProgress(ctx context.Context, userID string) ([]*model.Progress, error)

	// Event log. AppendEvent fills in Seq and CreatedAt on success.
	// Events are immutable: there is no update, and the only delete path is
	// PruneEventsBefore, which the archiver calls after a successful export.
	AppendEvent(ctx context.Context, event *model.Event) error
	ListEventsSince(ctx context.Context, since time.Time, afterSeq int64, filter model.EventFilter, limit int) ([]*model.Event, error)
	EventsForSubject(ctx context.Context, subjectID string) ([]*model.Event, error)
	PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
