// Package qcdb persists monitoring output: one row per closed cycle with
// the full snapshot as JSON, plus the bad-channel reference list. SQLite
// keeps the daemon single-binary; writes go through a busy-retry wrapper
// because the HTTP layer reads concurrently.
package qcdb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// OpenDB opens (creating if needed) the database at path and applies the
// connection pragmas, without touching the schema. The migrate subcommand
// uses this so file-based migrations fully own schema changes.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	return &DB{db}, nil
}

// NewDB opens the database at path and ensures the baseline schema exists.
// Migrations manage everything beyond the baseline.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS qc_cycles (
			cycle_id          TEXT PRIMARY KEY,
			activity_id       TEXT NOT NULL,
			cycle             INTEGER NOT NULL,
			mode              TEXT NOT NULL,
			created_at        TIMESTAMP NOT NULL,
			batches           BIGINT NOT NULL DEFAULT 0,
			events            BIGINT NOT NULL DEFAULT 0,
			readings          BIGINT NOT NULL DEFAULT 0,
			snapshot_json     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_qc_cycles_activity
			ON qc_cycles(activity_id, cycle);
		CREATE INDEX IF NOT EXISTS idx_qc_cycles_created
			ON qc_cycles(created_at);
		CREATE TABLE IF NOT EXISTS bad_channels (
			channel           INTEGER PRIMARY KEY,
			updated_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// isSQLiteBusy reports whether the error is a transient SQLITE_BUSY.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// retryOnBusy runs fn, retrying with linear backoff while the database
// reports busy. Non-busy errors return immediately.
func retryOnBusy(fn func() error) error {
	const maxRetries = 5
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err = fn(); err == nil || !isSQLiteBusy(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}
