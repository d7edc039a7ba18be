package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/stock"
	"github.com/warp/stock-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var now = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedIngredient(t *testing.T, store *sqlite.Store, id, name string) stock.Ingredient {
	t.Helper()
	expiry := stock.NewDate(2025, time.March, 20)
	reorder := decimal.NewFromInt(8)
	ing := stock.Ingredient{
		ID:           stock.IngredientID(id),
		Name:         name,
		Category:     "dry goods",
		Unit:         "kg",
		CurrentStock: decimal.Zero,
		MinimumStock: decimal.NewFromInt(5),
		ReorderLevel: &reorder,
		CostPerUnit:  stock.MustParseDecimal("1.25"),
		ExpiryDate:   &expiry,
		Branch:       "main",
		State:        stock.LifecycleActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.CreateIngredient(context.Background(), ing))
	return ing
}

func newLedger(store *sqlite.Store) *stock.Ledger {
	opts := []stock.Option{stock.WithClock(stock.FixedClock{At: now})}
	return stock.NewLedger(store, stock.NewAlertEngine(store, store, opts...), opts...)
}

// =============================================================================
// INGREDIENTS
// =============================================================================

func TestIngredient_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	want := seedIngredient(t, store, "ing-flour", "Flour")

	got, err := store.GetIngredient(ctx, want.ID)

	require.NoError(t, err)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, "dry goods", got.Category)
	assert.True(t, want.MinimumStock.Equal(got.MinimumStock))
	assert.True(t, want.CostPerUnit.Equal(got.CostPerUnit))
	require.NotNil(t, got.ReorderLevel)
	assert.True(t, want.ReorderLevel.Equal(*got.ReorderLevel))
	require.NotNil(t, got.ExpiryDate)
	assert.Equal(t, "2025-03-20", got.ExpiryDate.String())
	assert.Equal(t, now, got.CreatedAt)
	assert.Equal(t, stock.LifecycleActive, got.State)
}

func TestIngredient_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	ing := seedIngredient(t, store, "ing-flour", "Flour")

	err := store.CreateIngredient(context.Background(), ing)

	assert.ErrorIs(t, err, stock.ErrDuplicateID)
}

func TestIngredient_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetIngredient(context.Background(), "missing")

	assert.ErrorIs(t, err, stock.ErrIngredientNotFound)
	assert.True(t, stock.IsNotFound(err))
}

func TestUpdateIngredient_LeavesBalanceAlone(t *testing.T) {
	// GIVEN: An ingredient with 10 kg booked through the ledger
	store := newTestStore(t)
	ctx := context.Background()
	ing := seedIngredient(t, store, "ing-flour", "Flour")
	_, err := newLedger(store).Apply(ctx, stock.ApplyRequest{IngredientID: ing.ID, Type: stock.TxPurchase, Quantity: decimal.NewFromInt(10)})
	require.NoError(t, err)

	// WHEN: Updating the row with a bogus balance
	ing.Name = "Bread Flour"
	ing.CurrentStock = decimal.NewFromInt(999)
	require.NoError(t, store.UpdateIngredient(ctx, ing))

	// THEN: Name changed, balance did not
	got, err := store.GetIngredient(ctx, ing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bread Flour", got.Name)
	assert.True(t, decimal.NewFromInt(10).Equal(got.CurrentStock))
	assert.Equal(t, int64(1), got.Version)
}

func TestListIngredients_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedIngredient(t, store, "ing-a", "Anchovies")
	b := seedIngredient(t, store, "ing-b", "Basil")
	c := seedIngredient(t, store, "ing-c", "Capers")
	c.Branch = "harbor"
	c.ExpiryDate = nil
	require.NoError(t, store.UpdateIngredient(ctx, c))
	require.NoError(t, store.SetIngredientState(ctx, b.ID, stock.LifecycleDeleted, now))

	all, err := store.ListIngredients(ctx, stock.IngredientFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Anchovies", all[0].Name)

	harbor := "harbor"
	byBranch, err := store.ListIngredients(ctx, stock.IngredientFilter{Branch: &harbor})
	require.NoError(t, err)
	require.Len(t, byBranch, 1)
	assert.Equal(t, c.ID, byBranch[0].ID)

	withExpiry, err := store.ListIngredients(ctx, stock.IngredientFilter{WithExpiryOnly: true})
	require.NoError(t, err)
	require.Len(t, withExpiry, 1)

	everything, err := store.ListIngredients(ctx, stock.IngredientFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, everything, 3)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestLedger_OverSQLite_AppendsAndReplays(t *testing.T) {
	// GIVEN: A ledger backed by SQLite
	store := newTestStore(t)
	ctx := context.Background()
	ing := seedIngredient(t, store, "ing-rice", "Rice")
	ledger := newLedger(store)

	// WHEN: Several movements are applied
	for _, req := range []stock.ApplyRequest{
		{IngredientID: ing.ID, Type: stock.TxPurchase, Quantity: decimal.NewFromInt(20), Actor: "chef"},
		{IngredientID: ing.ID, Type: stock.TxSale, Quantity: stock.MustParseDecimal("2.5"), ReferenceID: "sale-1"},
		{IngredientID: ing.ID, Type: stock.TxTransfer, Direction: stock.DirectionOut, Quantity: decimal.NewFromInt(3)},
	} {
		_, err := ledger.Apply(ctx, req)
		require.NoError(t, err)
	}

	// THEN: Entries come back in sequence order and fold to the stored balance
	entries, err := store.Entries(ctx, ing.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(1), entries[0].Sequence)
	assert.Equal(t, "chef", entries[0].Actor)
	assert.Equal(t, "sale-1", entries[1].ReferenceID)
	assert.Equal(t, stock.DirectionOut, entries[2].Direction)
	assert.Equal(t, "main", entries[2].Branch)

	result, err := ledger.Replay(ctx, ing.ID)
	require.NoError(t, err)
	assert.True(t, stock.MustParseDecimal("14.5").Equal(result.Stored))

	sales, err := store.EntriesByType(ctx, ing.ID, stock.TxSale)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestLedger_InsufficientStock_RollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := seedIngredient(t, store, "ing-a", "A")
	b := seedIngredient(t, store, "ing-b", "B")
	ledger := newLedger(store)
	_, err := ledger.ApplyBatch(ctx, []stock.ApplyRequest{
		{IngredientID: a.ID, Type: stock.TxPurchase, Quantity: decimal.NewFromInt(5)},
		{IngredientID: b.ID, Type: stock.TxPurchase, Quantity: decimal.NewFromInt(1)},
	})
	require.NoError(t, err)

	_, err = ledger.ApplyBatch(ctx, []stock.ApplyRequest{
		{IngredientID: a.ID, Type: stock.TxSale, Quantity: decimal.NewFromInt(2)},
		{IngredientID: b.ID, Type: stock.TxSale, Quantity: decimal.NewFromInt(2)},
	})

	assert.ErrorIs(t, err, stock.ErrInsufficientStock)
	got, err := store.GetIngredient(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(got.CurrentStock))
	entries, err := store.Entries(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAppendEntry_StaleVersion_Conflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ing := seedIngredient(t, store, "ing-a", "A")

	err := store.AppendEntry(ctx, stock.Entry{
		ID:           "entry-x",
		IngredientID: ing.ID,
		Type:         stock.TxPurchase,
		Quantity:     decimal.NewFromInt(1),
		Delta:        decimal.NewFromInt(1),
		NewStock:     decimal.NewFromInt(1),
		Sequence:     3,
		CreatedAt:    now,
	})

	assert.ErrorIs(t, err, stock.ErrConcurrentModification)
	assert.True(t, stock.IsRetryable(err))
}

// =============================================================================
// RECIPES & SALES
// =============================================================================

func TestRecipeLines_ActiveOnlyAndUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ing := seedIngredient(t, store, "ing-a", "A")
	require.NoError(t, store.CreateFood(ctx, stock.Food{ID: "food-1", Name: "Soup", Price: decimal.NewFromInt(7), Available: true, CreatedAt: now, UpdatedAt: now}))

	line := stock.RecipeLine{ID: "line-1", FoodID: "food-1", IngredientID: ing.ID, Quantity: stock.MustParseDecimal("0.2"), CreatedAt: now}
	require.NoError(t, store.AddRecipeLine(ctx, line))

	dup := line
	dup.ID = "line-2"
	err := store.AddRecipeLine(ctx, dup)
	assert.ErrorIs(t, err, stock.ErrDuplicateIngredientInRecipe)

	require.NoError(t, store.SetRecipeLineState(ctx, line.ID, stock.LifecycleDeleted))
	lines, err := store.RecipeLines(ctx, "food-1")
	require.NoError(t, err)
	assert.Empty(t, lines)

	require.NoError(t, store.AddRecipeLine(ctx, dup))
	byIngredient, err := store.RecipeLinesByIngredient(ctx, ing.ID)
	require.NoError(t, err)
	require.Len(t, byIngredient, 1)
	assert.Equal(t, stock.RecipeLineID("line-2"), byIngredient[0].ID)
}

func TestSale_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sale := stock.Sale{
		ID:            "sale-1",
		SoldAt:        now,
		Total:         stock.MustParseDecimal("23.50"),
		Cashier:       "sam",
		PaymentMethod: "card",
		Items: []stock.SaleItem{
			{FoodID: "food-1", Quantity: 2, UnitPrice: stock.MustParseDecimal("8.25"), Subtotal: stock.MustParseDecimal("16.50")},
			{FoodID: "food-2", Quantity: 1, UnitPrice: decimal.NewFromInt(7), Subtotal: decimal.NewFromInt(7)},
		},
	}
	require.NoError(t, store.SaveSale(ctx, sale))

	got, err := store.GetSale(ctx, "sale-1")

	require.NoError(t, err)
	assert.Equal(t, "card", got.PaymentMethod)
	assert.True(t, sale.Total.Equal(got.Total))
	require.Len(t, got.Items, 2)
	assert.Equal(t, stock.FoodID("food-2"), got.Items[1].FoodID)

	_, err = store.GetSale(ctx, "sale-2")
	assert.ErrorIs(t, err, stock.ErrSaleNotFound)
}

// =============================================================================
// ALERTS
// =============================================================================

func TestInsertOpen_SecondForSamePair_ReturnsExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ing := seedIngredient(t, store, "ing-a", "A")

	first, created, err := store.InsertOpen(ctx, stock.Alert{ID: "alert-1", IngredientID: ing.ID, Type: stock.AlertLowStock, Message: "low", Branch: "main", CreatedAt: now})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := store.InsertOpen(ctx, stock.Alert{ID: "alert-2", IngredientID: ing.ID, Type: stock.AlertLowStock, Message: "low again", CreatedAt: now})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	// A different type is a different pair
	_, created, err = store.InsertOpen(ctx, stock.Alert{ID: "alert-3", IngredientID: ing.ID, Type: stock.AlertExpiringSoon, Message: "soon", CreatedAt: now})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestAcknowledge_ReopensPairAndIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ing := seedIngredient(t, store, "ing-a", "A")
	_, _, err := store.InsertOpen(ctx, stock.Alert{ID: "alert-1", IngredientID: ing.ID, Type: stock.AlertOutOfStock, Message: "out", CreatedAt: now})
	require.NoError(t, err)

	acked, err := store.Acknowledge(ctx, "alert-1", "manager", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, acked.Acknowledged)
	assert.Equal(t, "manager", acked.AcknowledgedBy)

	again, err := store.Acknowledge(ctx, "alert-1", "someone-else", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "manager", again.AcknowledgedBy)
	require.NotNil(t, again.AcknowledgedAt)
	assert.Equal(t, now.Add(time.Minute), *again.AcknowledgedAt)

	_, created, err := store.InsertOpen(ctx, stock.Alert{ID: "alert-2", IngredientID: ing.ID, Type: stock.AlertOutOfStock, Message: "out", CreatedAt: now})
	require.NoError(t, err)
	assert.True(t, created)

	_, err = store.Acknowledge(ctx, "nope", "manager", now)
	assert.ErrorIs(t, err, stock.ErrAlertNotFound)
}

func TestListOpen_BranchFilterAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := seedIngredient(t, store, "ing-a", "A")
	b := seedIngredient(t, store, "ing-b", "B")
	for i, al := range []stock.Alert{
		{ID: "alert-1", IngredientID: a.ID, Type: stock.AlertLowStock, Branch: "main"},
		{ID: "alert-2", IngredientID: b.ID, Type: stock.AlertLowStock, Branch: "harbor"},
		{ID: "alert-3", IngredientID: b.ID, Type: stock.AlertExpired, Branch: "harbor"},
	} {
		al.Message = "m"
		al.CreatedAt = now.Add(time.Duration(i) * time.Second)
		_, _, err := store.InsertOpen(ctx, al)
		require.NoError(t, err)
	}

	harbor := "harbor"
	open, err := store.ListOpen(ctx, stock.AlertFilter{Branch: &harbor})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, stock.AlertID("alert-2"), open[0].ID)

	require.NoError(t, store.DeleteAlert(ctx, "alert-2"))
	open, err = store.ListOpen(ctx, stock.AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	err = store.DeleteAlert(ctx, "alert-2")
	assert.True(t, errors.Is(err, stock.ErrAlertNotFound))
}

func TestReset_ClearsEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedIngredient(t, store, "ing-a", "A")

	require.NoError(t, store.Reset(ctx))

	all, err := store.ListIngredients(ctx, stock.IngredientFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, all)
}
