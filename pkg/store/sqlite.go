// Package store persists mandates, monitoring jobs, and transactions
// in SQLite. It also provides the atomic job claim that guarantees at
// most one in-flight evaluation per monitoring job.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database at dbPath and migrates the
// schema. WAL mode is enabled for concurrency and durability.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Concurrent evaluators race on the job claim; wait out writer
	// contention instead of surfacing SQLITE_BUSY.
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	// Mandates keep their full payload as a JSON blob; the columns
	// exist for lookup and for grouping a chain under its transaction.
	query := `
	CREATE TABLE IF NOT EXISTS mandates (
		mandate_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		user_id TEXT NOT NULL,
		transaction_id TEXT,
		payload JSON NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_mandates_transaction ON mandates(transaction_id);
	CREATE INDEX IF NOT EXISTS idx_mandates_user ON mandates(user_id);

	CREATE TABLE IF NOT EXISTS monitoring_jobs (
		job_id TEXT PRIMARY KEY,
		intent_mandate_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		query TEXT NOT NULL,
		max_price_cents INTEGER NOT NULL,
		max_delivery_days INTEGER NOT NULL,
		currency TEXT NOT NULL,
		interval_seconds INTEGER NOT NULL,
		status TEXT NOT NULL,
		active INTEGER NOT NULL,
		last_check_at DATETIME,
		transaction_id TEXT,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_active ON monitoring_jobs(active);
	CREATE INDEX IF NOT EXISTS idx_jobs_expires ON monitoring_jobs(expires_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_user ON monitoring_jobs(user_id);

	CREATE TABLE IF NOT EXISTS transactions (
		transaction_id TEXT PRIMARY KEY,
		intent_mandate_id TEXT,
		cart_mandate_id TEXT NOT NULL,
		payment_mandate_id TEXT,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		authorization_code TEXT,
		decline_reason TEXT,
		decline_code TEXT,
		amount_cents INTEGER NOT NULL,
		currency TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(status);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}
