/*
Package postgres provides a PostgreSQL implementation of the storage interfaces
using GORM.

PURPOSE:
  Implements stock.TxStore and stock.AlertStore for deployments where more
  than one process writes the same ledger. Unlike SQLite, writers are not
  serialized by a single connection: LockIngredient takes a row lock
  (SELECT ... FOR UPDATE) inside the caller's transaction.

APPEND-ONLY ENFORCEMENT:
  - stock_entries rows are only ever created
  - AppendEntry moves ingredients.current_stock with an optimistic version
    check, so a writer that skipped LockIngredient still cannot lose updates

INDEXES (created by AutoMigrate from struct tags):
  - idx_stock_entries_sequence: One entry per (ingredient, sequence)
  - idx_recipe_active_ingredient: Partial, WHERE state = 'active'
  - idx_open_alert_pair: Partial, WHERE acknowledged = false AND state = 'active'

USAGE:
  store, err := postgres.New(os.Getenv("STOCK_POSTGRES_DSN"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - stock/store.go: Interface definitions
  - store/sqlite/sqlite.go: Single-node implementation
*/
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/stock-engine/stock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store implements all storage interfaces on PostgreSQL.
type Store struct {
	queries
	root *gorm.DB
}

// New connects to PostgreSQL and migrates the schema.
func New(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return Open(db)
}

// Open wraps an existing GORM handle and migrates the schema.
func Open(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(allModels...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{queries: queries{db: db}, root: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.root.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// =============================================================================
// TRANSACTIONAL STORE (stock.TxStore interface)
// =============================================================================

// WithTx runs fn in a database transaction; row locks taken through the
// handed store are held until it returns.
func (s *Store) WithTx(ctx context.Context, fn func(store stock.Store) error) error {
	return s.root.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(queries{db: tx})
	})
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	return s.root.WithContext(ctx).Exec(
		"TRUNCATE stock_alerts, sale_items, sales, recipe_lines, stock_entries, foods, ingredients",
	).Error
}

// =============================================================================
// QUERIES - Shared by the store and its transactions
// =============================================================================

type queries struct {
	db *gorm.DB
}

func (q queries) with(ctx context.Context) *gorm.DB {
	return q.db.WithContext(ctx)
}

func expectRow(res *gorm.DB, notFound error) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
