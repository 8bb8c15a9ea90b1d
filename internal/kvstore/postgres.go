package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// DefaultTable is the table PostgresStore uses when none is configured.
const DefaultTable = "kv_store"

// PostgresStore keeps values in a two-column table keyed by text.
type PostgresStore struct {
	db *sql.DB

	createTableQuery string
	getQuery         string
	upsertQuery      string
	deleteQuery      string
	lockQuery        string
}

func NewPostgresStore(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	t := pq.QuoteIdentifier(table)
	return &PostgresStore{
		db: db,
		createTableQuery: fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, t),
		getQuery: fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, t),
		upsertQuery: fmt.Sprintf(`
			INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`, t),
		deleteQuery: fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, t),
		// serializes updates per key, including keys that have no row yet
		lockQuery: `SELECT pg_advisory_xact_lock(hashtext($1))`,
	}
}

// EnsureSchema creates the backing table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.createTableQuery); err != nil {
		return fmt.Errorf("kvstore: create table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.getQuery, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("kvstore: get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, s.upsertQuery, key, value); err != nil {
		return fmt.Errorf("kvstore: set %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.deleteQuery, key); err != nil {
		return fmt.Errorf("kvstore: remove %s: %w", key, err)
	}
	return nil
}

// Update runs fn inside a transaction holding an advisory lock on key.
func (s *PostgresStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kvstore: begin update %s: %w", key, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, s.lockQuery, key); err != nil {
		return fmt.Errorf("kvstore: lock %s: %w", key, err)
	}

	var (
		cur string
		ok  = true
	)
	if err := tx.QueryRowContext(ctx, s.getQuery, key).Scan(&cur); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("kvstore: get %s: %w", key, err)
		}
		ok = false
	}

	next, err := fn(cur, ok)
	if err != nil {
		if errors.Is(err, ErrSkip) {
			return nil
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, s.upsertQuery, key, next); err != nil {
		return fmt.Errorf("kvstore: set %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kvstore: commit %s: %w", key, err)
	}
	return nil
}
