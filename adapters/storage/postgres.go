package storage

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"usage-cost/internal/errors"
)

// DB is the subset of a pgx pool or connection the tracker uses.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	schemaSQL = `
		CREATE TABLE IF NOT EXISTS usage_cost_progress (
			key        TEXT PRIMARY KEY,
			report_id  TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	loadSQL = `SELECT report_id FROM usage_cost_progress WHERE key = $1`

	// A single upsert replaces the marker atomically.
	advanceSQL = `
		INSERT INTO usage_cost_progress (key, report_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET report_id = EXCLUDED.report_id, updated_at = EXCLUDED.updated_at
	`
)

// PostgresTracker keeps the marker in one row of usage_cost_progress.
type PostgresTracker struct {
	db     DB
	key    string
	closer func()
}

// NewPostgresTracker creates a tracker for the row named key.
func NewPostgresTracker(db DB, key string) *PostgresTracker {
	return &PostgresTracker{db: db, key: key}
}

// EnsureSchema creates the progress table if it is missing.
func (t *PostgresTracker) EnsureSchema(ctx context.Context) error {
	if _, err := t.db.Exec(ctx, schemaSQL); err != nil {
		return errors.Progress("failed to create progress table", err)
	}
	return nil
}

func (t *PostgresTracker) Load(ctx context.Context) (string, error) {
	var id string
	err := t.db.QueryRow(ctx, loadSQL, t.key).Scan(&id)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", errors.Progress("failed to load progress marker", err).WithContext("key", t.key)
	}
	return id, nil
}

func (t *PostgresTracker) Advance(ctx context.Context, id string) error {
	tag, err := t.db.Exec(ctx, advanceSQL, t.key, id)
	if err != nil {
		return errors.Progress(fmt.Sprintf("failed to advance progress marker to %q", id), err).WithContext("key", t.key)
	}
	if tag.RowsAffected() != 1 {
		return errors.Progress(fmt.Sprintf("progress upsert touched %d rows", tag.RowsAffected()), nil).WithContext("key", t.key)
	}
	return nil
}

func (t *PostgresTracker) Close() error {
	if t.closer != nil {
		t.closer()
	}
	return nil
}
