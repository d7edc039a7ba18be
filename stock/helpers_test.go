package stock_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/stock"
	"github.com/warp/stock-engine/stock/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func today() stock.Date { return stock.DateOf(testNow) }

func qty(s string) decimal.Decimal { return stock.MustParseDecimal(s) }

// sequentialIDs makes generated ids predictable in assertions.
func sequentialIDs() stock.IDGenerator {
	var n atomic.Int64
	return func(prefix string) string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

type fixture struct {
	store    *store.Memory
	ledger   *stock.Ledger
	resolver *stock.Resolver
	engine   *stock.Engine
	alerts   *stock.AlertEngine
	sweeper  *stock.Sweeper
}

func newFixture(t *testing.T, extra ...stock.Option) *fixture {
	t.Helper()
	mem := store.NewMemory()
	opts := []stock.Option{
		stock.WithClock(stock.FixedClock{At: testNow}),
		stock.WithIDGenerator(sequentialIDs()),
		stock.WithLocks(stock.NewKeyedMutex()),
	}
	opts = append(opts, extra...)
	alerts := stock.NewAlertEngine(mem, mem, opts...)
	ledger := stock.NewLedger(mem, alerts, opts...)
	resolver := stock.NewResolver(mem, opts...)
	return &fixture{
		store:    mem,
		ledger:   ledger,
		resolver: resolver,
		engine:   stock.NewEngine(ledger, resolver, opts...),
		alerts:   alerts,
		sweeper:  stock.NewSweeper(mem, alerts, opts...),
	}
}

type ingredientSpec struct {
	name    string
	unit    string
	stock   string
	minimum string
	expiry  *stock.Date
	branch  string
}

// addIngredient creates the row and, when stock is set, purchases it so the
// balance is backed by an entry.
func (f *fixture) addIngredient(t *testing.T, id string, spec ingredientSpec) stock.IngredientID {
	t.Helper()
	ctx := context.Background()
	if spec.unit == "" {
		spec.unit = "kg"
	}
	if spec.minimum == "" {
		spec.minimum = "0"
	}
	ing := stock.Ingredient{
		ID:           stock.IngredientID(id),
		Name:         spec.name,
		Unit:         spec.unit,
		CurrentStock: decimal.Zero,
		MinimumStock: qty(spec.minimum),
		ExpiryDate:   spec.expiry,
		Branch:       spec.branch,
		State:        stock.LifecycleActive,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	require.NoError(t, f.store.CreateIngredient(ctx, ing))

	if spec.stock != "" && !qty(spec.stock).IsZero() {
		_, err := f.ledger.Apply(ctx, stock.ApplyRequest{
			IngredientID: ing.ID,
			Type:         stock.TxPurchase,
			Quantity:     qty(spec.stock),
			Reason:       "opening stock",
			Actor:        "test",
		})
		require.NoError(t, err)
	}
	return ing.ID
}

func (f *fixture) addFood(t *testing.T, id, name string, lines ...stock.RecipeLine) stock.FoodID {
	t.Helper()
	ctx := context.Background()
	food := stock.Food{
		ID:        stock.FoodID(id),
		Name:      name,
		Price:     qty("10"),
		Available: true,
		State:     stock.LifecycleActive,
		CreatedAt: testNow,
	}
	require.NoError(t, f.store.CreateFood(ctx, food))
	if len(lines) > 0 {
		_, err := f.resolver.SetRecipe(ctx, food.ID, lines)
		require.NoError(t, err)
	}
	return food.ID
}

func line(ingredientID stock.IngredientID, quantity string) stock.RecipeLine {
	return stock.RecipeLine{IngredientID: ingredientID, Quantity: qty(quantity)}
}

func (f *fixture) balance(t *testing.T, id stock.IngredientID) decimal.Decimal {
	t.Helper()
	ing, err := f.ledger.Balance(context.Background(), id)
	require.NoError(t, err)
	return ing.CurrentStock
}

func (f *fixture) openAlerts(t *testing.T, id stock.IngredientID) []stock.Alert {
	t.Helper()
	alerts, err := f.store.ListOpen(context.Background(), stock.AlertFilter{IngredientID: id})
	require.NoError(t, err)
	return alerts
}

// setExpiry changes the expiry date without going through the ledger, so no
// alert is evaluated.
func (f *fixture) setExpiry(t *testing.T, id stock.IngredientID, d stock.Date) {
	t.Helper()
	ctx := context.Background()
	ing, err := f.store.GetIngredient(ctx, id)
	require.NoError(t, err)
	ing.ExpiryDate = &d
	require.NoError(t, f.store.UpdateIngredient(ctx, ing))
}

func datePtr(d stock.Date) *stock.Date { return &d }
