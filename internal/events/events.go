package events

import (
	"context"
	"fmt"

	"github.com/groblegark/madrasa/internal/model"
)

// Kind identifies the state transition an event records.
type Kind string

const (
	KindCreated       Kind = "created"
	KindUpdated       Kind = "updated"
	KindStatusChanged Kind = "status_changed"
	KindDeleted       Kind = "deleted"
	KindRestored      Kind = "restored"
	KindHardDeleted   Kind = "hard_deleted"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// IsValid checks whether the kind is a known value.
func (k Kind) IsValid() bool {
	switch k {
	case KindCreated, KindUpdated, KindStatusChanged, KindDeleted, KindRestored, KindHardDeleted:
		return true
	}
	return false
}

// NATS subjects for the optional cross-instance mirror. The mirror carries
// the full wire-shape event so a receiving instance can re-broadcast it into
// its local push hub unchanged.
const (
	// TopicPrefix namespaces every mirror subject; TopicWildcard matches
	// them all, which is what a mirroring instance subscribes to.
	TopicPrefix   = "madrasa."
	TopicWildcard = "madrasa.>"
)

const (
	TopicItemCreated       = "madrasa.item.created"
	TopicItemUpdated       = "madrasa.item.updated"
	TopicItemStatusChanged = "madrasa.item.status_changed"
	TopicItemDeleted       = "madrasa.item.deleted"
	TopicItemRestored      = "madrasa.item.restored"
	TopicItemHardDeleted   = "madrasa.item.hard_deleted"
	TopicProgressUpdated   = "madrasa.progress.updated"
)

// TopicFor maps an event kind to its NATS subject for the given subject
// family ("item" or "progress"). Unknown kinds return an error so a new
// kind cannot be silently dropped by the mirror.
func TopicFor(family string, k Kind) (string, error) {
	if family == "progress" {
		if k != KindUpdated {
			return "", fmt.Errorf("events: progress records only emit %q, got %q", KindUpdated, k)
		}
		return TopicProgressUpdated, nil
	}
	switch k {
	case KindCreated:
		return TopicItemCreated, nil
	case KindUpdated:
		return TopicItemUpdated, nil
	case KindStatusChanged:
		return TopicItemStatusChanged, nil
	case KindDeleted:
		return TopicItemDeleted, nil
	case KindRestored:
		return TopicItemRestored, nil
	case KindHardDeleted:
		return TopicItemHardDeleted, nil
	}
	return "", fmt.Errorf("events: unknown kind %q", k)
}

// Payload schemas, one fixed shape per event kind.

// ItemCreated is the payload for KindCreated on an item.
type ItemCreated struct {
	Item *model.Item `json:"item"`
}

// ItemUpdated is the payload for KindUpdated on an item.
type ItemUpdated struct {
	Item    *model.Item    `json:"item"`
	Changes map[string]any `json:"changes"` // field name -> new value
}

// ItemStatusChanged is the payload for KindStatusChanged.
type ItemStatusChanged struct {
	ItemID string           `json:"item_id"`
	From   model.ItemStatus `json:"from"`
	To     model.ItemStatus `json:"to"`
}

// ItemDeleted is the payload for KindDeleted (soft delete).
type ItemDeleted struct {
	ItemID string `json:"item_id"`
}

// ItemRestored is the payload for KindRestored.
type ItemRestored struct {
	Item *model.Item `json:"item"`
}

// ItemHardDeleted is the payload for KindHardDeleted. The event is the only
// surviving record of the item.
type ItemHardDeleted struct {
	ItemID string `json:"item_id"`
}

// ProgressUpdated is the payload for KindUpdated on a progress record.
// Completed is the absolute value after the update, never a delta.
type ProgressUpdated struct {
	Progress *model.Progress `json:"progress"`
}

// Publisher mirrors committed events to other instances. The mirror only
// ever carries the wire-shape event record, so Publish is typed to it.
type Publisher interface {
	Publish(ctx context.Context, topic string, evt *model.Event) error
	Close() error
}

// Subscriber receives mirrored events from other instances.
type Subscriber interface {
	// Subscribe delivers decoded events on the returned channel. Call the
	// returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan *model.Event, func(), error)
	Close() error
}
