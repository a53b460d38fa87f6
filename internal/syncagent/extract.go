package syncagent

import (
	"encoding/json"

	"github.com/groblegark/madrasa/internal/events"
	"github.com/groblegark/madrasa/internal/model"
)

// extractValue pulls the absolute merge value out of an event payload.
// For progress records that is the completed count; for items it is the
// lifecycle status. The switch is exhaustive over event kinds so a new
// kind cannot be silently ignored.
func extractValue(evt *model.Event) (any, bool) {
	switch events.Kind(evt.Kind) {
	case events.KindCreated:
		var p events.ItemCreated
		if err := json.Unmarshal(evt.Payload, &p); err != nil || p.Item == nil {
			return nil, false
		}
		return p.Item.Status.String(), true

	case events.KindUpdated:
		// KindUpdated carries either an item or a progress payload;
		// distinguish by which field is present.
		var p struct {
			Item     *model.Item     `json:"item"`
			Progress *model.Progress `json:"progress"`
		}
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return nil, false
		}
		if p.Progress != nil {
			return p.Progress.Completed, true
		}
		if p.Item != nil {
			return p.Item.Status.String(), true
		}
		return nil, false

	case events.KindStatusChanged:
		var p events.ItemStatusChanged
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return nil, false
		}
		return p.To.String(), true

	case events.KindDeleted:
		return "deleted", true

	case events.KindRestored:
		var p events.ItemRestored
		if err := json.Unmarshal(evt.Payload, &p); err != nil || p.Item == nil {
			return nil, false
		}
		return p.Item.Status.String(), true

	case events.KindHardDeleted:
		return "hard_deleted", true
	}
	return nil, false
}
