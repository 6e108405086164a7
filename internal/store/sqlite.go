package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite is a file-backed store for the CLI run history and single-node
// deployments.
type SQLite struct {
	sqlStore
	path string
}

// NewSQLite opens (creating if needed) the database at path. Call Migrate
// before first use.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	log.Printf("[STORE] opening SQLite database at %s", path)
	db, err := sql.Open("sqlite", path+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}
	return &SQLite{sqlStore: sqlStore{db: db, d: sqliteDialect}, path: path}, nil
}

// Path is the database file.
func (s *SQLite) Path() string { return s.path }
