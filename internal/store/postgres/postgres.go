// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/groblegark/madrasa/internal/model"
	"github.com/groblegark/madrasa/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateItem(ctx context.Context, item *model.Item) error {
	return queryCreateItem(ctx, s.db, item)
}

func (s *PostgresStore) GetItem(ctx context.Context, id string) (*model.Item, error) {
	return queryGetItem(ctx, s.db, id)
}

func (s *PostgresStore) ListItems(ctx context.Context, filter model.ItemFilter) ([]*model.Item, int, error) {
	return queryListItems(ctx, s.db, filter)
}

func (s *PostgresStore) UpdateItem(ctx context.Context, item *model.Item) error {
	return queryUpdateItem(ctx, s.db, item)
}

func (s *PostgresStore) SetItemStatus(ctx context.Context, id string, status model.ItemStatus) (*model.Item, error) {
	return querySetItemStatus(ctx, s.db, id, status)
}

func (s *PostgresStore) SoftDeleteItem(ctx context.Context, id string) error {
	return querySoftDeleteItem(ctx, s.db, id)
}

func (s *PostgresStore) RestoreItem(ctx context.Context, id string) (*model.Item, error) {
	return queryRestoreItem(ctx, s.db, id)
}

func (s *PostgresStore) HardDeleteItem(ctx context.Context, id string) error {
	return queryHardDeleteItem(ctx, s.db, id)
}

func (s *PostgresStore) UpsertProgress(ctx context.Context, p *model.Progress) error {
	return queryUpsertProgress(ctx, s.db, p)
}

func (s *PostgresStore) GetProgress(ctx context.Context, userID, trackID string) (*model.Progress, error) {
	return queryGetProgress(ctx, s.db, userID, trackID)
}

func (s *PostgresStore) ListProgress(ctx context.Context, userID string) ([]*model.Progress, error) {
	return queryListProgress(ctx, s.db, userID)
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event *model.Event) error {
	return queryAppendEvent(ctx, s.db, event)
}

func (s *PostgresStore) ListEventsSince(ctx context.Context, since time.Time, afterSeq int64, filter model.EventFilter, limit int) ([]*model.Event, error) {
	return queryListEventsSince(ctx, s.db, since, afterSeq, filter, limit)
}

func (s *PostgresStore) EventsForSubject(ctx context.Context, subjectID string) ([]*model.Event, error) {
	return queryEventsForSubject(ctx, s.db, subjectID)
}

func (s *PostgresStore) PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return queryPruneEventsBefore(ctx, s.db, cutoff)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateItem(ctx context.Context, item *model.Item) error {
	return queryCreateItem(ctx, s.tx, item)
}

func (s *txStore) GetItem(ctx context.Context, id string) (*model.Item, error) {
	return queryGetItem(ctx, s.tx, id)
}

func (s *txStore) ListItems(ctx context.Context, filter model.ItemFilter) ([]*model.Item, int, error) {
	return queryListItems(ctx, s.tx, filter)
}

func (s *txStore) UpdateItem(ctx context.Context, item *model.Item) error {
	return queryUpdateItem(ctx, s.tx, item)
}

func (s *txStore) SetItemStatus(ctx context.Context, id string, status model.ItemStatus) (*model.Item, error) {
	return querySetItemStatus(ctx, s.tx, id, status)
}

func (s *txStore) SoftDeleteItem(ctx context.Context, id string) error {
	return querySoftDeleteItem(ctx, s.tx, id)
}

func (s *txStore) RestoreItem(ctx context.Context, id string) (*model.Item, error) {
	return queryRestoreItem(ctx, s.tx, id)
}

func (s *txStore) HardDeleteItem(ctx context.Context, id string) error {
	return queryHardDeleteItem(ctx, s.tx, id)
}

func (s *txStore) UpsertProgress(ctx context.Context, p *model.Progress) error {
	return queryUpsertProgress(ctx, s.tx, p)
}

func (s *txStore) GetProgress(ctx context.Context, userID, trackID string) (*model.Progress, error) {
	return queryGetProgress(ctx, s.tx, userID, trackID)
}

func (s *txStore) ListProgress(ctx context.Context, userID string) ([]*model.Progress, error) {
	return queryListProgress(ctx, s.tx, userID)
}

func (s *txStore) AppendEvent(ctx context.Context, event *model.Event) error {
	return queryAppendEvent(ctx, s.tx, event)
}

func (s *txStore) ListEventsSince(ctx context.Context, since time.Time, afterSeq int64, filter model.EventFilter, limit int) ([]*model.Event, error) {
	return queryListEventsSince(ctx, s.tx, since, afterSeq, filter, limit)
}

func (s *txStore) EventsForSubject(ctx context.Context, subjectID string) ([]*model.Event, error) {
	return queryEventsForSubject(ctx, s.tx, subjectID)
}

func (s *txStore) PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return queryPruneEventsBefore(ctx, s.tx, cutoff)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close on a txStore is a no-op; the outer store owns the connection.
func (s *txStore) Close() error {
	return nil
}
