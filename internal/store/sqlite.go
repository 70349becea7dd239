// ABOUTME: SQLite-backed dispatch audit log using modernc.org/sqlite.
// ABOUTME: Schema is created automatically; WAL mode for concurrent writers.

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists dispatch audit records in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a store at the given path. The schema is created if
// it doesn't exist and parent directories are created as needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS dispatch_log (
		id          TEXT PRIMARY KEY,
		request_id  TEXT NOT NULL,
		tool        TEXT NOT NULL,
		realm       TEXT NOT NULL DEFAULT '',
		tenant_id   TEXT NOT NULL DEFAULT '',
		user_id     TEXT NOT NULL DEFAULT '',
		success     INTEGER NOT NULL,
		error       TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL,
		started_at  TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dispatch_log_tool ON dispatch_log(tool);
	CREATE INDEX IF NOT EXISTS idx_dispatch_log_realm ON dispatch_log(realm);
	CREATE INDEX IF NOT EXISTS idx_dispatch_log_started_at ON dispatch_log(started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
