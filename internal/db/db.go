package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/aura/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// FileName is the database file inside the base directory.
const FileName = "aura.db"

// Init initializes the SQLite database at baseDir/aura.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.aura.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	// Explicit chmod (best-effort, may not work on all platforms)
	_ = os.Chmod(baseDir, 0700)

	// Pragmas in the connection string apply to every pooled connection.
	// _txlock=immediate makes BeginTx take the write lock up front, so two
	// read-modify-write transactions never both read the same snapshot.
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: episodes
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS episodes (
		  id            TEXT PRIMARY KEY,
		  owner_id      TEXT NOT NULL,
		  start_time    INTEGER NOT NULL,
		  end_time      INTEGER,
		  severity      INTEGER NOT NULL CHECK (severity BETWEEN 1 AND 10),
		  history_json  TEXT NOT NULL,
		  notes         TEXT,
		  triggers_json TEXT,
		  created_at    INTEGER NOT NULL,
		  updated_at    INTEGER NOT NULL
		);

		-- at most one active episode per owner
		CREATE UNIQUE INDEX IF NOT EXISTS idx_episodes_one_active
		ON episodes(owner_id)
		WHERE end_time IS NULL;

		CREATE INDEX IF NOT EXISTS idx_episodes_owner_start
		ON episodes(owner_id, start_time DESC);

		CREATE TABLE IF NOT EXISTS endpoints (
		  owner_id   TEXT NOT NULL,
		  kind       TEXT NOT NULL,
		  address    TEXT NOT NULL,
		  secret     TEXT,
		  created_at INTEGER NOT NULL,
		  PRIMARY KEY (owner_id, address)
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: durable check-in queue
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS check_ins (
		  id          TEXT PRIMARY KEY,
		  action      TEXT NOT NULL,
		  arg         TEXT NOT NULL,
		  fire_at     INTEGER NOT NULL,
		  status      TEXT NOT NULL DEFAULT 'pending',
		  attempts    INTEGER NOT NULL DEFAULT 0,
		  claimed_at  INTEGER,
		  last_error  TEXT,
		  created_at  INTEGER NOT NULL,
		  updated_at  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_check_ins_due
		ON check_ins(status, fire_at);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
