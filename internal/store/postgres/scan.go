package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/groblegark/madrasa/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanItem scans a single row into a model.Item.
// The row must contain columns in the order defined by itemColumns.
func scanItem(row scannable) (*model.Item, error) {
	var i model.Item
	var (
		description sql.NullString
		createdBy   sql.NullString
		deletedAt   sql.NullTime
	)

	err := row.Scan(
		&i.ID,
		&i.Title,
		&description,
		&i.Status,
		&i.PriceCents,
		&i.Owner,
		&i.CreatedAt,
		&createdBy,
		&i.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	i.Description = description.String
	i.CreatedBy = createdBy.String
	if deletedAt.Valid {
		t := deletedAt.Time
		i.DeletedAt = &t
	}
	return &i, nil
}

// scanItemWithTotal scans a row produced by queryListItems, which prefixes
// the item columns with a window-function total count.
func scanItemWithTotal(row scannable) (*model.Item, int, error) {
	var i model.Item
	var (
		total       int
		description sql.NullString
		createdBy   sql.NullString
		deletedAt   sql.NullTime
	)

	err := row.Scan(
		&total,
		&i.ID,
		&i.Title,
		&description,
		&i.Status,
		&i.PriceCents,
		&i.Owner,
		&i.CreatedAt,
		&createdBy,
		&i.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, 0, err
	}

	i.Description = description.String
	i.CreatedBy = createdBy.String
	if deletedAt.Valid {
		t := deletedAt.Time
		i.DeletedAt = &t
	}
	return &i, total, nil
}

func scanProgress(row scannable) (*model.Progress, error) {
	var p model.Progress
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.TrackID,
		&p.Completed,
		&p.Total,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		actor   sql.NullString
		payload []byte
	)

	err := row.Scan(
		&e.Seq,
		&e.SubjectID,
		&e.Kind,
		&e.Owner,
		&actor,
		&payload,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Actor = actor.String
	if len(payload) > 0 {
		e.Payload = json.RawMessage(payload)
	}
	return &e, nil
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
