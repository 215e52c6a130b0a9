// Package pgdb is the PostgreSQL implementation of store.Store.
package pgdb

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hpungsan/aura/internal/config"
	"github.com/hpungsan/aura/internal/store"
)

const initTimeout = 15 * time.Second

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS episodes (
		id          TEXT PRIMARY KEY,
		owner_id    TEXT NOT NULL,
		start_time  BIGINT NOT NULL,
		end_time    BIGINT,
		severity    SMALLINT NOT NULL CHECK (severity BETWEEN 1 AND 10),
		history     JSONB NOT NULL,
		notes       TEXT,
		triggers    TEXT[],
		created_at  BIGINT NOT NULL,
		updated_at  BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_episodes_one_active ON episodes (owner_id) WHERE end_time IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_owner_start ON episodes (owner_id, start_time DESC)`,
	`CREATE TABLE IF NOT EXISTS endpoints (
		owner_id   TEXT NOT NULL,
		kind       TEXT NOT NULL,
		address    TEXT NOT NULL,
		secret     TEXT,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (owner_id, address)
	)`,
	`CREATE TABLE IF NOT EXISTS check_ins (
		id          TEXT PRIMARY KEY,
		action      TEXT NOT NULL,
		arg         TEXT NOT NULL,
		fire_at     BIGINT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'pending',
		attempts    INTEGER NOT NULL DEFAULT 0,
		claimed_at  BIGINT,
		last_error  TEXT,
		created_at  BIGINT NOT NULL,
		updated_at  BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_check_ins_due ON check_ins (status, fire_at)`,
}

// Store implements store.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects, pings and migrates.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database_url: %w", err)
	}
	if cfg.DBMaxOpenConns > 0 {
		pc.MaxConns = int32(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		pc.MinIdleConns = int32(cfg.DBMaxIdleConns)
	}

	p, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := RunMigration(ctx, p); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}
	return New(p), nil
}

// New wraps an existing, migrated pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// RunMigration applies the idempotent schema statements.
func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
