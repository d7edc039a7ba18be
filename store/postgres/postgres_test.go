package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/stock"
	"github.com/warp/stock-engine/store/postgres"
)

// =============================================================================
// TEST SETUP - Runs only when POSTGRES_DSN points at a disposable database
// =============================================================================

var now = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	store, err := postgres.New(dsn)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	require.NoError(t, store.Reset(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func seedIngredient(t *testing.T, store *postgres.Store, id string, minimum int64) stock.Ingredient {
	t.Helper()
	expiry := stock.NewDate(2025, time.March, 20)
	ing := stock.Ingredient{
		ID:           stock.IngredientID(id),
		Name:         "Ingredient " + id,
		Category:     "dry goods",
		Unit:         "kg",
		MinimumStock: decimal.NewFromInt(minimum),
		CostPerUnit:  stock.MustParseDecimal("2.10"),
		ExpiryDate:   &expiry,
		Branch:       "main",
		State:        stock.LifecycleActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.CreateIngredient(context.Background(), ing))
	return ing
}

func newLedger(store *postgres.Store) *stock.Ledger {
	opts := []stock.Option{stock.WithClock(stock.FixedClock{At: now})}
	return stock.NewLedger(store, stock.NewAlertEngine(store, store, opts...), opts...)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestPostgres_IngredientRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	want := seedIngredient(t, store, "ing-flour", 5)

	got, err := store.GetIngredient(ctx, want.ID)

	require.NoError(t, err)
	assert.Equal(t, want.Name, got.Name)
	assert.True(t, want.CostPerUnit.Equal(got.CostPerUnit))
	require.NotNil(t, got.ExpiryDate)
	assert.Equal(t, "2025-03-20", got.ExpiryDate.String())
	assert.Nil(t, got.ReorderLevel)
}

func TestPostgres_DuplicateIngredient(t *testing.T) {
	store := newTestStore(t)
	ing := seedIngredient(t, store, "ing-flour", 5)

	err := store.CreateIngredient(context.Background(), ing)

	assert.ErrorIs(t, err, stock.ErrDuplicateID)
}

func TestPostgres_RecipeLineUniqueAmongActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedIngredient(t, store, "ing-flour", 5)
	require.NoError(t, store.CreateFood(ctx, stock.Food{
		ID: "food-bread", Name: "Bread", Available: true, CreatedAt: now, UpdatedAt: now,
	}))
	line := stock.RecipeLine{
		ID: "rl-1", FoodID: "food-bread", IngredientID: "ing-flour",
		Quantity: decimal.NewFromInt(1), CreatedAt: now,
	}
	require.NoError(t, store.AddRecipeLine(ctx, line))

	// WHEN: The same ingredient is added while the first line is active
	line.ID = "rl-2"
	err := store.AddRecipeLine(ctx, line)

	// THEN: Rejected; after retiring the first line it is accepted
	assert.ErrorIs(t, err, stock.ErrDuplicateIngredientInRecipe)
	require.NoError(t, store.SetRecipeLineState(ctx, "rl-1", stock.LifecycleDeleted))
	line.ID = "rl-3"
	require.NoError(t, store.AddRecipeLine(ctx, line))
}

func TestPostgres_CreateFoodKeepsUnavailable(t *testing.T) {
	// GIVEN: A food created as unavailable
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateFood(ctx, stock.Food{
		ID: "food-special", Name: "Seasonal special", Available: false, CreatedAt: now, UpdatedAt: now,
	}))

	// WHEN: It is read back
	got, err := store.GetFood(ctx, "food-special")

	// THEN: It is still unavailable
	require.NoError(t, err)
	assert.False(t, got.Available)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestPostgres_LedgerApplyAndReplay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedIngredient(t, store, "ing-flour", 5)
	ledger := newLedger(store)

	_, err := ledger.Apply(ctx, stock.ApplyRequest{
		IngredientID: "ing-flour", Type: stock.TxPurchase, Quantity: decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	_, err = ledger.Apply(ctx, stock.ApplyRequest{
		IngredientID: "ing-flour", Type: stock.TxWaste, Quantity: stock.MustParseDecimal("2.5"),
	})
	require.NoError(t, err)

	result, err := ledger.Replay(ctx, "ing-flour")

	require.NoError(t, err)
	assert.True(t, result.Stored.Equal(stock.MustParseDecimal("17.5")))
	assert.True(t, result.Folded.Equal(result.Stored))
	assert.Len(t, result.Entries, 2)
}

func TestPostgres_ConcurrentSalesNeverOversell(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedIngredient(t, store, "ing-flour", 0)
	ledger := newLedger(store)
	_, err := ledger.Apply(ctx, stock.ApplyRequest{
		IngredientID: "ing-flour", Type: stock.TxPurchase, Quantity: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	// WHEN: 20 writers each take one unit from 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Apply(ctx, stock.ApplyRequest{
				IngredientID: "ing-flour", Type: stock.TxSale, Quantity: decimal.NewFromInt(1),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else if !errors.Is(err, stock.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// THEN: Exactly 10 succeed and the balance is zero
	assert.Equal(t, 10, succeeded)
	ing, err := store.GetIngredient(ctx, "ing-flour")
	require.NoError(t, err)
	assert.True(t, ing.CurrentStock.IsZero())
	assert.Equal(t, int64(11), ing.Version)
}

func TestPostgres_StaleVersionRejected(t *testing.T) {
	store := newTestStore(t)
	seedIngredient(t, store, "ing-flour", 5)

	err := store.AppendEntry(context.Background(), stock.Entry{
		ID: "e-1", IngredientID: "ing-flour", Type: stock.TxPurchase,
		Quantity: decimal.NewFromInt(1), Delta: decimal.NewFromInt(1),
		NewStock: decimal.NewFromInt(1), Sequence: 5, CreatedAt: now,
	})

	assert.ErrorIs(t, err, stock.ErrConcurrentModification)
}

// =============================================================================
// ALERTS
// =============================================================================

func TestPostgres_InsertOpenDedupsPair(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedIngredient(t, store, "ing-flour", 5)
	alert := stock.Alert{
		ID: "alert-1", IngredientID: "ing-flour", Type: stock.AlertLowStock,
		Message: "low", Branch: "main", CreatedAt: now,
	}

	first, created, err := store.InsertOpen(ctx, alert)
	require.NoError(t, err)
	require.True(t, created)

	alert.ID = "alert-2"
	second, created, err := store.InsertOpen(ctx, alert)

	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// Acknowledging frees the pair
	_, err = store.Acknowledge(ctx, first.ID, "chef", now)
	require.NoError(t, err)
	alert.ID = "alert-3"
	_, created, err = store.InsertOpen(ctx, alert)
	require.NoError(t, err)
	assert.True(t, created)

	open, err := store.ListOpen(ctx, stock.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, stock.AlertID("alert-3"), open[0].ID)
}
