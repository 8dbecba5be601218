/*
Package sqlite provides a SQLite-backed workbook and payment registry.

PURPOSE:
  Keeps tenant ledgers as tables of positional cells so the engine can run
  against a local database exactly as it runs against a hosted spreadsheet.
  The same database holds the caller-side bookkeeping: which payment
  references were applied, and the history of every applied payment.

INTERFACES IMPLEMENTED:
  generic.Workbook: Sheets, AddSheet
  generic.Sheet:    via *Sheet (ReadAll, UpdateRow, BatchUpdate, ...)
  rent.Registry:    IsProcessed, Record

KEY TABLES:
  sheets:           One row per ledger, with its grid bounds
  cells:            Non-empty cells, keyed by (sheet, row, col)
  highlight_rules:  Conditional formatting, keyed by rule
  processed_refs:   Every applied payment reference (unique)
  payment_history:  Append-only log of applied payments

FORMULAS:
  Cells starting with "=" are stored verbatim. SQLite does not evaluate
  them, so engines writing here should run in values mode.

THROTTLING:
  SQLITE_BUSY and SQLITE_LOCKED are reported as generic.ErrRateLimited and
  go through the same backoff as a throttled remote.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ":memory:" databases are pinned to a
  single connection so every statement sees the same database.

WAL MODE:
  Opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/ledgers.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  runner := rent.NewRunner(engine, store, store)

SEE ALSO:
  - workbook.go: Sheet implementation
  - registry.go: Processed references and history
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/rent-ledger/generic"
)

// Store implements generic.Workbook and rent.Registry on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=250")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledgers and their grid bounds
	CREATE TABLE IF NOT EXISTS sheets (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL UNIQUE COLLATE NOCASE,
		position INTEGER NOT NULL,
		row_count INTEGER NOT NULL,
		col_count INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Non-empty cells only; an empty write deletes the row
	CREATE TABLE IF NOT EXISTS cells (
		sheet_id TEXT NOT NULL REFERENCES sheets(id) ON DELETE CASCADE,
		row_num INTEGER NOT NULL,
		col_num INTEGER NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (sheet_id, row_num, col_num)
	);

	CREATE TABLE IF NOT EXISTS highlight_rules (
		sheet_id TEXT NOT NULL REFERENCES sheets(id) ON DELETE CASCADE,
		rule_key TEXT NOT NULL,
		col_num INTEGER NOT NULL,
		from_row INTEGER NOT NULL,
		op TEXT NOT NULL,
		threshold TEXT NOT NULL,
		style TEXT NOT NULL,
		PRIMARY KEY (sheet_id, rule_key)
	);

	-- CRITICAL: one row per applied reference, never two
	CREATE TABLE IF NOT EXISTS processed_refs (
		ref TEXT PRIMARY KEY,
		processed_at TEXT NOT NULL
	);

	-- Append-only payment log
	CREATE TABLE IF NOT EXISTS payment_history (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		ref TEXT NOT NULL,
		account_code TEXT NOT NULL,
		payer TEXT,
		phone TEXT,
		amount TEXT NOT NULL,
		date_paid TEXT NOT NULL,
		sheet_id TEXT NOT NULL,
		sheet_title TEXT NOT NULL,
		row_number INTEGER NOT NULL,
		period_label TEXT NOT NULL,
		paid_after TEXT NOT NULL,
		penalty TEXT NOT NULL,
		balance TEXT NOT NULL,
		auto_periods INTEGER NOT NULL,
		comment TEXT,
		applied_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_account
		ON payment_history(account_code, applied_at);
	CREATE INDEX IF NOT EXISTS idx_history_ref
		ON payment_history(ref);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data (for testing/demo purposes).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"highlight_rules", "cells", "sheets", "payment_history", "processed_refs"}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to clear %s: %w", t, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// wrapErr maps lock contention to the throttling signal.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isBusyError(err) {
		return fmt.Errorf("%s: %v: %w", op, err, generic.ErrRateLimited)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusyError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
