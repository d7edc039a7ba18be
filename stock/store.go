/*
store.go - Persistence interfaces for the stock engine

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  never talks to SQL directly; it asks a Store for rows and appends
  entries through it. Implementations: in-memory, SQLite, PostgreSQL
  (and Redis for alerts only).

KEY INTERFACES:
  IngredientStore: Catalog rows for stocked items
  LedgerStore:     Locked reads and the append-only entry log
  RecipeStore:     Foods and their recipe lines
  SaleStore:       Sale headers and items
  AlertStore:      Open/acknowledged alerts with atomic open-pair dedup
  TxStore:         All of the above plus WithTx

APPEND-ONLY CONTRACT:
  AppendEntry is the only way a balance changes. It writes the entry and
  sets the ingredient's CurrentStock to entry.NewStock and its Version to
  entry.Sequence in the same call. There is no entry update or delete.

LIFECYCLE:
  Catalog rows are never hard-deleted. Set*State flips the lifecycle and
  cascades are driven by the caller (see kitchen/catalog.go).

IMPLEMENTATIONS:
  - stock/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: Single-node SQLite
  - store/postgres/postgres.go: PostgreSQL via GORM, row locks
  - store/redis/alerts.go: AlertStore only

SEE ALSO:
  - ledger.go: The only writer of entries
*/
package stock

import (
	"context"
	"time"
)

// =============================================================================
// CATALOG
// =============================================================================

type IngredientStore interface {
	// CreateIngredient inserts a new row. Fails with ErrDuplicateID if the ID exists.
	CreateIngredient(ctx context.Context, ing Ingredient) error

	// UpdateIngredient writes descriptive fields and thresholds.
	// It never touches CurrentStock or Version.
	UpdateIngredient(ctx context.Context, ing Ingredient) error

	// SetIngredientState flips the lifecycle.
	SetIngredientState(ctx context.Context, id IngredientID, state Lifecycle, at time.Time) error

	// GetIngredient returns the row regardless of lifecycle, or ErrIngredientNotFound.
	GetIngredient(ctx context.Context, id IngredientID) (Ingredient, error)

	ListIngredients(ctx context.Context, filter IngredientFilter) ([]Ingredient, error)
}

type RecipeStore interface {
	CreateFood(ctx context.Context, food Food) error
	UpdateFood(ctx context.Context, food Food) error
	SetFoodState(ctx context.Context, id FoodID, state Lifecycle, at time.Time) error
	GetFood(ctx context.Context, id FoodID) (Food, error)
	ListFoods(ctx context.Context, includeDeleted bool) ([]Food, error)

	// RecipeLines returns active lines for a food ordered by Position.
	RecipeLines(ctx context.Context, foodID FoodID) ([]RecipeLine, error)

	// RecipeLinesByIngredient returns active lines referencing an ingredient.
	RecipeLinesByIngredient(ctx context.Context, ingredientID IngredientID) ([]RecipeLine, error)

	AddRecipeLine(ctx context.Context, line RecipeLine) error
	SetRecipeLineState(ctx context.Context, id RecipeLineID, state Lifecycle) error
}

type SaleStore interface {
	SaveSale(ctx context.Context, sale Sale) error
	GetSale(ctx context.Context, id SaleID) (Sale, error)
}

// =============================================================================
// LEDGER
// =============================================================================

type LedgerStore interface {
	// LockIngredient reads an ingredient for update. Stores with row locks
	// take one here; others rely on WithTx serialization.
	LockIngredient(ctx context.Context, id IngredientID) (Ingredient, error)

	// AppendEntry persists the entry and the ingredient's new balance together.
	AppendEntry(ctx context.Context, entry Entry) error

	// Entries returns an ingredient's entries ordered by Sequence.
	Entries(ctx context.Context, id IngredientID) ([]Entry, error)

	// EntriesByType returns an ingredient's entries of one type ordered by Sequence.
	EntriesByType(ctx context.Context, id IngredientID, t TxType) ([]Entry, error)
}

// Store is everything the engine persists besides alerts.
type Store interface {
	IngredientStore
	RecipeStore
	SaleStore
	LedgerStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// ALERT STORE
// =============================================================================

type AlertStore interface {
	// InsertOpen creates the alert unless an open alert already exists for
	// the same (ingredient, type). Returns the stored alert and whether it
	// was created. Must be atomic against concurrent callers.
	InsertOpen(ctx context.Context, alert Alert) (Alert, bool, error)

	GetAlert(ctx context.Context, id AlertID) (Alert, error)

	// Acknowledge closes an alert. Acknowledging a closed alert returns it unchanged.
	Acknowledge(ctx context.Context, id AlertID, actor string, at time.Time) (Alert, error)

	// DeleteAlert soft-deletes an alert.
	DeleteAlert(ctx context.Context, id AlertID) error

	// ListOpen returns unacknowledged, non-deleted alerts ordered by CreatedAt.
	ListOpen(ctx context.Context, filter AlertFilter) ([]Alert, error)
}
