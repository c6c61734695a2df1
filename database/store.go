// database/store.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the repository over datasets, records, change logs and updates.
// A Store returned inside WithTx runs every query in that transaction.
type Store struct {
	db *sql.DB
	q  Querier
}

// NewStore wraps an open connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// DB returns the underlying pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn in a transaction, committing when fn returns nil. Nested
// calls reuse the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		slog.Error("Database: failed to commit transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}
