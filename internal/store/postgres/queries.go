package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/groblegark/madrasa/internal/model"
	"github.com/groblegark/madrasa/internal/store"
)

// itemColumns is the column list used for SELECT statements on the items table.
const itemColumns = `id, title, description, status, price_cents, owner, created_at, created_by, updated_at, deleted_at`

// eventColumns is the column list used for SELECT statements on the events table.
const eventColumns = `id, subject_id, kind, owner, actor, payload, created_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateItem(ctx context.Context, db executor, i *model.Item) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO items (
			id, title, description, status, price_cents, owner,
			created_at, created_by, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		i.ID,
		i.Title,
		nullString(i.Description),
		string(i.Status),
		i.PriceCents,
		i.Owner,
		i.CreatedAt,
		nullString(i.CreatedBy),
		i.UpdatedAt,
		nullTimePtr(i.DeletedAt),
	)
	return err
}

func queryGetItem(ctx context.Context, db executor, id string) (*model.Item, error) {
	row := db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	return scanItem(row)
}

func queryListItems(ctx context.Context, db executor, filter model.ItemFilter) ([]*model.Item, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if !filter.IncludeDeleted {
		whereClauses = append(whereClauses, "deleted_at IS NULL")
	}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = nextArg()
			args = append(args, string(s))
		}
		whereClauses = append(whereClauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.Owner != "" {
		whereClauses = append(whereClauses, "owner = "+nextArg())
		args = append(args, filter.Owner)
	}

	if filter.Search != "" {
		p := nextArg()
		whereClauses = append(whereClauses, "(title ILIKE "+p+" OR description ILIKE "+p+")")
		args = append(args, "%"+filter.Search+"%")
	}

	where := ""
	if len(whereClauses) > 0 {
		where = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query := `SELECT COUNT(*) OVER () AS total_count, ` + itemColumns + ` FROM items` + where +
		` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		items []*model.Item
		total int
	)
	for rows.Next() {
		item, rowTotal, err := scanItemWithTotal(rows)
		if err != nil {
			return nil, 0, err
		}
		total = rowTotal
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func queryUpdateItem(ctx context.Context, db executor, i *model.Item) error {
	res, err := db.ExecContext(ctx, `
		UPDATE items SET
			title = $2, description = $3, status = $4, price_cents = $5,
			owner = $6, updated_at = $7
		WHERE id = $1`,
		i.ID,
		i.Title,
		nullString(i.Description),
		string(i.Status),
		i.PriceCents,
		i.Owner,
		i.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func querySetItemStatus(ctx context.Context, db executor, id string, status model.ItemStatus) (*model.Item, error) {
	row := db.QueryRowContext(ctx, `
		UPDATE items SET status = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+itemColumns,
		id, string(status),
	)
	return scanItem(row)
}

func querySoftDeleteItem(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE items SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryRestoreItem(ctx context.Context, db executor, id string) (*model.Item, error) {
	row := db.QueryRowContext(ctx, `
		UPDATE items SET deleted_at = NULL, updated_at = now()
		WHERE id = $1 AND deleted_at IS NOT NULL
		RETURNING `+itemColumns, id)
	return scanItem(row)
}

func queryHardDeleteItem(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func queryUpsertProgress(ctx context.Context, db executor, p *model.Progress) error {
	// Last write wins on the whole record; completed is an absolute value.
	row := db.QueryRowContext(ctx, `
		INSERT INTO progress (id, user_id, track_id, completed, total, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, track_id) DO UPDATE SET
			completed = EXCLUDED.completed,
			total = EXCLUDED.total,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		p.ID, p.UserID, p.TrackID, p.Completed, p.Total, p.UpdatedAt,
	)
	return row.Scan(&p.ID)
}

func queryGetProgress(ctx context.Context, db executor, userID, trackID string) (*model.Progress, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, user_id, track_id, completed, total, updated_at
		FROM progress WHERE user_id = $1 AND track_id = $2`,
		userID, trackID)
	return scanProgress(row)
}

func queryListProgress(ctx context.Context, db executor, userID string) ([]*model.Progress, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, track_id, completed, total, updated_at
		FROM progress WHERE user_id = $1 ORDER BY track_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func queryAppendEvent(ctx context.Context, db executor, e *model.Event) error {
	// The database assigns both the sequence number and the timestamp so
	// ordering is decided in one place regardless of writer clock skew.
	row := db.QueryRowContext(ctx, `
		INSERT INTO events (subject_id, kind, owner, actor, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		e.SubjectID,
		e.Kind,
		e.Owner,
		nullString(e.Actor),
		jsonbBytes(e.Payload),
	)
	return row.Scan(&e.Seq, &e.CreatedAt)
}

func queryListEventsSince(ctx context.Context, db executor, since time.Time, afterSeq int64, filter model.EventFilter, limit int) ([]*model.Event, error) {
	if limit <= 0 || limit > store.MaxEventPage {
		limit = store.MaxEventPage
	}

	var (
		whereClauses []string
		args         []any
		argIdx       int
	)
	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	// Strict cursor: created_at past the mark, or same millisecond with a
	// higher sequence when the caller supplies the id tiebreaker. Without
	// a tiebreaker (afterSeq <= 0) the bare timestamp cursor must still
	// exclude the boundary event, so the pair form cannot be used: every
	// row has id >= 1 and the OR branch would admit created_at = since.
	if afterSeq > 0 {
		p1, p2 := nextArg(), nextArg()
		whereClauses = append(whereClauses,
			"(created_at > "+p1+" OR (created_at = "+p1+" AND id > "+p2+"))")
		args = append(args, since, afterSeq)
	} else {
		whereClauses = append(whereClauses, "created_at > "+nextArg())
		args = append(args, since)
	}

	if filter.Owner != "" {
		whereClauses = append(whereClauses, "owner = "+nextArg())
		args = append(args, filter.Owner)
	}
	if filter.SubjectID != "" {
		whereClauses = append(whereClauses, "subject_id = "+nextArg())
		args = append(args, filter.SubjectID)
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE ` +
		strings.Join(whereClauses, " AND ") +
		` ORDER BY created_at ASC, id ASC LIMIT ` + nextArg()
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func queryEventsForSubject(ctx context.Context, db executor, subjectID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE subject_id = $1 ORDER BY created_at ASC, id ASC`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func queryPruneEventsBefore(ctx context.Context, db executor, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// requireRow converts a zero-row update/delete into sql.ErrNoRows so
// callers can map it to a 404.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
