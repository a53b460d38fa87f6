// Package client provides a transport-agnostic interface for the madrasa
// service and an HTTP/JSON implementation that talks to the REST API.
package client

import (
	"context"

	"github.com/groblegark/madrasa/internal/model"
)

// Client is the interface CLI commands and the sync agent use to
// communicate with the madrasa server.
type Client interface {
	// Item CRUD and lifecycle
	CreateItem(ctx context.Context, req *CreateItemRequest) (*model.Item, error)
	GetItem(ctx context.Context, id string) (*model.Item, error)
	ListItems(ctx context.Context, req *ListItemsRequest) (*ListItemsResponse, error)
	UpdateItem(ctx context.Context, id string, req *UpdateItemRequest) (*model.Item, error)
	PublishItem(ctx context.Context, id, actor string) (*model.Item, error)
	ArchiveItem(ctx context.Context, id, actor string) (*model.Item, error)
	DeleteItem(ctx context.Context, id, actor string) error
	RestoreItem(ctx context.Context, id, actor string) (*model.Item, error)
	HardDeleteItem(ctx context.Context, id, actor string) error
	ItemEvents(ctx context.Context, id string) ([]*model.Event, error)

	// Learning progress
	SetProgress(ctx context.Context, userID, trackID string, completed, total int) (*model.Progress, error)
	GetProgress(ctx context.Context, userID, trackID string) (*model.Progress, error)
	ListProgress(ctx context.Context, userID string) ([]*model.Progress, error)

	// Change notification
	EventsSince(ctx context.Context, req *EventsSinceRequest) ([]*model.Event, error)
	StreamEvents(ctx context.Context, owner string) (<-chan *model.Event, func(), error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// CreateItemRequest holds parameters for creating an item.
type CreateItemRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PriceCents  int    `json:"price_cents"`
	Owner       string `json:"owner"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// ListItemsRequest holds parameters for listing items.
type ListItemsRequest struct {
	Status         []string `json:"status,omitempty"`
	Owner          string   `json:"owner,omitempty"`
	Search         string   `json:"search,omitempty"`
	IncludeDeleted bool     `json:"include_deleted,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Offset         int      `json:"offset,omitempty"`
}

// ListItemsResponse is the response from ListItems.
type ListItemsResponse struct {
	Items []*model.Item `json:"items"`
	Total int           `json:"total"`
}

// UpdateItemRequest holds optional parameters for updating an item.
// Nil pointer fields mean "don't change".
type UpdateItemRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	PriceCents  *int    `json:"price_cents,omitempty"`
	Actor       string  `json:"actor,omitempty"`
}

// EventsSinceRequest is a cursor query against the event log.
type EventsSinceRequest struct {
	// SinceMillis is the epoch-millisecond cursor; events strictly after it
	// are returned (up to the server's page cap).
	SinceMillis int64
	// AfterSeq resumes exactly within a shared millisecond. Zero means no
	// tiebreaker: the server then returns only events with createdAt
	// strictly greater than SinceMillis, so a caller that re-polls with
	// the last createdAt it saw never re-receives the boundary event.
	AfterSeq int64
	// Owner and Subject optionally scope the query.
	Owner   string
	Subject string
	Limit   int
}
