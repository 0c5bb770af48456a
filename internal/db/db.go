package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB with tracker-specific helpers.
type DB struct {
	*sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
// The pool is capped at one connection so every caller sees the same
// in-memory database.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// Path returns the filesystem path of the database.
func (d *DB) Path() string { return d.path }

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    cid TEXT NOT NULL UNIQUE,
    label TEXT NOT NULL DEFAULT '',
    file_path TEXT NOT NULL DEFAULT '',
    first_seen_at DATETIME NOT NULL DEFAULT (datetime('now')),
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL DEFAULT '',
    identity_key TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    last_seen_at DATETIME NOT NULL,
    event_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_lookup
    ON sessions(document_id, identity_key, last_seen_at DESC);

CREATE TABLE IF NOT EXISTS access_events (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL DEFAULT '',
    cid TEXT NOT NULL DEFAULT '',
    session_id TEXT NOT NULL DEFAULT '',
    identity_key TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL,
    method TEXT NOT NULL DEFAULT 'GET',
    path TEXT NOT NULL DEFAULT '',
    query_params TEXT NOT NULL DEFAULT '[]',
    body_raw BLOB,
    headers TEXT NOT NULL DEFAULT '{}',
    ip_address TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    accept_headers TEXT NOT NULL DEFAULT '',
    accept_language TEXT NOT NULL DEFAULT '',
    os_name TEXT NOT NULL DEFAULT '',
    os_version TEXT NOT NULL DEFAULT '',
    browser_name TEXT NOT NULL DEFAULT '',
    browser_version TEXT NOT NULL DEFAULT '',
    client_app TEXT NOT NULL DEFAULT '',
    client_build TEXT NOT NULL DEFAULT '',
    is_proxy INTEGER NOT NULL DEFAULT 0,
    is_tor INTEGER NOT NULL DEFAULT 0,
    country TEXT NOT NULL DEFAULT '',
    city TEXT NOT NULL DEFAULT '',
    asn TEXT NOT NULL DEFAULT '',
    isp TEXT NOT NULL DEFAULT '',
    occurred_at DATETIME NOT NULL,
    is_first_access INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_occurred ON access_events(occurred_at);
CREATE INDEX IF NOT EXISTS idx_events_cid ON access_events(cid, occurred_at);
CREATE INDEX IF NOT EXISTS idx_events_identity ON access_events(document_id, identity_key);
CREATE INDEX IF NOT EXISTS idx_events_ip ON access_events(ip_address, occurred_at);
CREATE INDEX IF NOT EXISTS idx_events_category ON access_events(category);
`
