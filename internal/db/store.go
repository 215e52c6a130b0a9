package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/aura/internal/config"
	"github.com/hpungsan/aura/internal/store"
)

// Store is the SQLite implementation of store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open initializes the database under baseDir and applies pool settings.
func Open(baseDir string, cfg *config.Config) (*Store, error) {
	db, err := Init(baseDir)
	if err != nil {
		return nil, err
	}
	ConfigurePool(db, cfg)
	return &Store{db: db}, nil
}

// DB exposes the underlying handle (tests and maintenance).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
