/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements stock.TxStore and stock.AlertStore using SQLite. It is the
  default store for a single kitchen server; store/postgres covers the
  multi-process case with row locks.

INTERFACES IMPLEMENTED:
  stock.Store:      Catalog, recipes, sales, ledger entries
  stock.TxStore:    WithTx over a database/sql transaction
  stock.AlertStore: Alerts with open-pair dedup in the schema

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on stock_entries
  - AppendEntry moves ingredients.current_stock with an optimistic
    version check in the same transaction as the insert

KEY TABLES:
  ingredients:   Catalog rows with the running balance and version
  stock_entries: Immutable ledger of all balance changes
  foods:         Sellable items
  recipe_lines:  Per-unit ingredient requirements
  sales:         Sale headers, with sale_items
  stock_alerts:  Raised alerts

INDEXES:
  - idx_stock_entries_sequence: One entry per (ingredient, sequence)
  - idx_recipe_active_ingredient: An ingredient at most once per active recipe
  - idx_open_alert_pair: At most one open alert per (ingredient, type)

CONCURRENCY:
  The pool is capped at one connection, so every statement is serialized
  and WithTx holds the connection for the whole transaction. Code running
  inside WithTx must only use the store it is handed.

USAGE:
  store, err := sqlite.New("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := stock.NewLedger(store, stock.NewAlertEngine(store, store))

SEE ALSO:
  - stock/store.go: Interface definitions
  - stock/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/stock"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	queries
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db}
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
	CREATE TABLE IF NOT EXISTS ingredients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL,
		current_stock TEXT NOT NULL DEFAULT '0',
		minimum_stock TEXT NOT NULL DEFAULT '0',
		reorder_level TEXT,
		cost_per_unit TEXT NOT NULL DEFAULT '0',
		expiry_date TEXT,
		branch TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'active',
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ingredients_branch
		ON ingredients(branch, state);

	-- Ledger (append-only)
	CREATE TABLE IF NOT EXISTS stock_entries (
		id TEXT PRIMARY KEY,
		ingredient_id TEXT NOT NULL REFERENCES ingredients(id),
		tx_type TEXT NOT NULL,
		direction TEXT NOT NULL DEFAULT '',
		quantity TEXT NOT NULL,
		delta TEXT NOT NULL,
		previous_stock TEXT NOT NULL,
		new_stock TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		reference_id TEXT NOT NULL DEFAULT '',
		sequence INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_stock_entries_sequence
		ON stock_entries(ingredient_id, sequence);
	CREATE INDEX IF NOT EXISTS idx_stock_entries_type
		ON stock_entries(ingredient_id, tx_type);
	CREATE INDEX IF NOT EXISTS idx_stock_entries_reference
		ON stock_entries(reference_id) WHERE reference_id <> '';

	CREATE TABLE IF NOT EXISTS foods (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL DEFAULT '0',
		available INTEGER NOT NULL DEFAULT 1,
		preparation_minutes INTEGER NOT NULL DEFAULT 0,
		branch TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recipe_lines (
		id TEXT PRIMARY KEY,
		food_id TEXT NOT NULL REFERENCES foods(id),
		ingredient_id TEXT NOT NULL REFERENCES ingredients(id),
		quantity TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_recipe_active_ingredient
		ON recipe_lines(food_id, ingredient_id) WHERE state = 'active';
	CREATE INDEX IF NOT EXISTS idx_recipe_lines_ingredient
		ON recipe_lines(ingredient_id) WHERE state = 'active';

	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		sold_at TEXT NOT NULL,
		total TEXT NOT NULL,
		cashier TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS sale_items (
		sale_id TEXT NOT NULL REFERENCES sales(id),
		position INTEGER NOT NULL,
		food_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price TEXT NOT NULL,
		subtotal TEXT NOT NULL,
		PRIMARY KEY (sale_id, position)
	);

	CREATE TABLE IF NOT EXISTS stock_alerts (
		id TEXT PRIMARY KEY,
		ingredient_id TEXT NOT NULL REFERENCES ingredients(id),
		alert_type TEXT NOT NULL,
		message TEXT NOT NULL,
		branch TEXT NOT NULL DEFAULT '',
		acknowledged INTEGER NOT NULL DEFAULT 0,
		acknowledged_by TEXT NOT NULL DEFAULT '',
		acknowledged_at TEXT,
		state TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	-- CRITICAL: at most one open alert per ingredient and type
	CREATE UNIQUE INDEX IF NOT EXISTS idx_open_alert_pair
		ON stock_alerts(ingredient_id, alert_type)
		WHERE acknowledged = 0 AND state = 'active';

	CREATE INDEX IF NOT EXISTS idx_stock_alerts_open
		ON stock_alerts(branch, created_at) WHERE acknowledged = 0 AND state = 'active';
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (stock.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store stock.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{"stock_alerts", "sale_items", "sales", "recipe_lines", "stock_entries", "foods", "ingredients"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// QUERIES - Shared by the store and its transactions
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q querier
}

type scanner interface {
	Scan(dest ...any) error
}

// Helper functions

const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullDate(d *stock.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	return stock.MustParseDecimal(s)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
