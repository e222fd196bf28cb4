// Package store provides the embedded SQLite cache for patron.
//
// This is the only place customer data and the check-in outbox persist.
// The database runs in embedded mode with WAL so UI lookups can read
// concurrently while a sync pass writes.
//
// Architecture:
//   - Database file: .patron/cache.db (configurable)
//   - WAL mode: concurrent readers during writes
//   - Schema: customers, outbox, sync_state tables
//   - Indexes: phone-suffix and name lookups scoped by venue
//
// Workflow:
//  1. Sync engine pages the remote directory and batch-upserts customers
//  2. Check-in path enqueues to the outbox when the remote is unreachable
//  3. Replayer drains the outbox oldest-first and marks entries synced
//  4. CLI/UI lookups query the cache, never the remote
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection with patron-specific functionality.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist, it is created; call InitSchema before use.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn: conn,
		path: path,
	}

	// WAL lets UI lookups read while a sync batch commits.
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return s, nil
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent - safe to call multiple times.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		remote_id INTEGER NOT NULL,
		venue_id TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT,
		phone_digits TEXT,  -- trailing 10 digits, for suffix lookups
		email TEXT,
		loyalty_member INTEGER NOT NULL DEFAULT 0,
		synced_at TEXT NOT NULL,
		PRIMARY KEY (remote_id, venue_id)
	);

	CREATE TABLE IF NOT EXISTS outbox (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		venue_id TEXT NOT NULL,
		name TEXT NOT NULL,
		phone TEXT,
		method TEXT NOT NULL,
		customer_ref INTEGER,
		idempotency_key TEXT NOT NULL,
		created_at TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS sync_state (
		venue_id TEXT PRIMARY KEY,
		last_sync TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_customers_phone
	    ON customers(venue_id, phone_digits);
	CREATE INDEX IF NOT EXISTS idx_customers_name
	    ON customers(venue_id, last_name, first_name);

	CREATE INDEX IF NOT EXISTS idx_outbox_pending
	    ON outbox(venue_id, synced, created_at);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}
