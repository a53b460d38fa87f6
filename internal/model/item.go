package model

import "time"

// ItemStatus represents the publication state of a content item.
type ItemStatus string

const (
	StatusDraft     ItemStatus = "draft"
	StatusPublished ItemStatus = "published"
	StatusArchived  ItemStatus = "archived"
)

// String returns the string representation of the status.
func (s ItemStatus) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s ItemStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// Item is a content item: a lesson, course unit, or marketplace entry.
// Items are soft-deleted by default (DeletedAt set); a hard delete removes
// the row entirely. Events recording an item's history outlive the item.
type Item struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      ItemStatus `json:"status"`
	PriceCents  int        `json:"price_cents"`
	Owner       string     `json:"owner"`
	CreatedAt   time.Time  `json:"created_at"`
	CreatedBy   string     `json:"created_by,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the item is soft-deleted.
func (i *Item) Deleted() bool {
	return i.DeletedAt != nil
}

// ItemFilter holds list query parameters for items.
type ItemFilter struct {
	Status         []ItemStatus
	Owner          string
	Search         string
	IncludeDeleted bool
	Limit          int
	Offset         int
}
