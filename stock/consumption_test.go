package stock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/stock"
)

func TestConsume_ScalesRecipeByUnits(t *testing.T) {
	// GIVEN: Margherita = 0.25 kg dough + 0.1 kg mozzarella
	f := newFixture(t)
	dough := f.addIngredient(t, "dough", ingredientSpec{name: "Dough", stock: "5"})
	mozz := f.addIngredient(t, "mozzarella", ingredientSpec{name: "Mozzarella", stock: "2"})
	pizza := f.addFood(t, "margherita", "Margherita", line(dough, "0.25"), line(mozz, "0.1"))

	// WHEN: Selling 4 pizzas
	entries, err := f.engine.Consume(context.Background(), pizza, 4, stock.SaleContext{
		ReferenceID: "sale-1", Actor: "cashier", Branch: "main",
	})

	// THEN: One SALE entry per ingredient, scaled by 4, in recipe order
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, dough, entries[0].IngredientID)
	assert.True(t, qty("1").Equal(entries[0].Quantity))
	assert.True(t, qty("-1").Equal(entries[0].Delta))
	assert.Equal(t, mozz, entries[1].IngredientID)
	assert.True(t, qty("0.4").Equal(entries[1].Quantity))
	for _, e := range entries {
		assert.Equal(t, stock.TxSale, e.Type)
		assert.Equal(t, "sale-1", e.ReferenceID)
		assert.Equal(t, "cashier", e.Actor)
		assert.Equal(t, "main", e.Branch)
		assert.Equal(t, "sale of 4 x margherita", e.Reason)
	}
	assert.True(t, qty("4").Equal(f.balance(t, dough)))
	assert.True(t, qty("1.6").Equal(f.balance(t, mozz)))
}

func TestConsume_Shortfall_ListsEveryIngredientAndWritesNothing(t *testing.T) {
	// GIVEN: Both ingredients are short for 10 burgers, the third is fine
	f := newFixture(t)
	ctx := context.Background()
	bun := f.addIngredient(t, "bun", ingredientSpec{name: "Bun", unit: "pcs", stock: "4"})
	patty := f.addIngredient(t, "patty", ingredientSpec{name: "Patty", unit: "pcs", stock: "6"})
	sauce := f.addIngredient(t, "sauce", ingredientSpec{name: "Sauce", unit: "l", stock: "1"})
	burger := f.addFood(t, "burger", "Burger", line(bun, "1"), line(patty, "1"), line(sauce, "0.02"))

	// WHEN: Selling 10
	entries, err := f.engine.Consume(ctx, burger, 10, stock.SaleContext{ReferenceID: "sale-2"})

	// THEN: Failure names both short ingredients; no balance moved
	require.Error(t, err)
	assert.Nil(t, entries)
	assert.ErrorIs(t, err, stock.ErrConsumptionFailed)
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)

	var failed *stock.ConsumptionFailedError
	require.True(t, errors.As(err, &failed))
	require.Len(t, failed.Shortfalls, 2)
	assert.Equal(t, bun, failed.Shortfalls[0].IngredientID)
	assert.Equal(t, "Bun", failed.Shortfalls[0].Name)
	assert.True(t, qty("10").Equal(failed.Shortfalls[0].Required))
	assert.True(t, qty("4").Equal(failed.Shortfalls[0].Available))
	assert.True(t, qty("6").Equal(failed.Shortfalls[0].Missing()))
	assert.Equal(t, patty, failed.Shortfalls[1].IngredientID)

	assert.True(t, qty("4").Equal(f.balance(t, bun)))
	assert.True(t, qty("6").Equal(f.balance(t, patty)))
	assert.True(t, qty("1").Equal(f.balance(t, sauce)))
	saleEntries, err := f.ledger.HistoryByType(ctx, sauce, stock.TxSale)
	require.NoError(t, err)
	assert.Empty(t, saleEntries)
}

func TestConsume_FoodWithoutRecipe_NoOp(t *testing.T) {
	f := newFixture(t)
	water := f.addFood(t, "water", "Tap Water")

	entries, err := f.engine.Consume(context.Background(), water, 3, stock.SaleContext{})

	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConsume_NonPositiveUnits_Invalid(t *testing.T) {
	f := newFixture(t)
	dough := f.addIngredient(t, "dough", ingredientSpec{name: "Dough", stock: "5"})
	pizza := f.addFood(t, "pizza", "Pizza", line(dough, "0.25"))

	for _, units := range []int{0, -1} {
		_, err := f.engine.Consume(context.Background(), pizza, units, stock.SaleContext{})
		assert.ErrorIs(t, err, stock.ErrInvalidQuantity)
	}
	assert.True(t, qty("5").Equal(f.balance(t, dough)))
}

func TestConsume_UnknownFood_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Consume(context.Background(), "nope", 1, stock.SaleContext{})

	assert.ErrorIs(t, err, stock.ErrFoodNotFound)
}

func TestConsume_DeletedIngredientInRecipe_Skipped(t *testing.T) {
	// GIVEN: A recipe whose garnish ingredient was deleted afterwards
	f := newFixture(t)
	ctx := context.Background()
	pasta := f.addIngredient(t, "pasta", ingredientSpec{name: "Pasta", stock: "3"})
	parsley := f.addIngredient(t, "parsley", ingredientSpec{name: "Parsley", stock: "0.1"})
	dish := f.addFood(t, "carbonara", "Carbonara", line(pasta, "0.15"), line(parsley, "0.01"))
	require.NoError(t, f.store.SetIngredientState(ctx, parsley, stock.LifecycleDeleted, testNow))

	// WHEN: Selling 2
	entries, err := f.engine.Consume(ctx, dish, 2, stock.SaleContext{})

	// THEN: Only the active ingredient is consumed
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, pasta, entries[0].IngredientID)
	assert.True(t, qty("0.1").Equal(f.balance(t, parsley)))
}

func TestConsumeItems_SharedIngredient_AggregatedPreCheck(t *testing.T) {
	// GIVEN: Two foods both using cheese; 1 kg on hand
	f := newFixture(t)
	ctx := context.Background()
	cheese := f.addIngredient(t, "cheese", ingredientSpec{name: "Cheese", stock: "1"})
	bread := f.addIngredient(t, "bread", ingredientSpec{name: "Bread", unit: "pcs", stock: "50"})
	toastie := f.addFood(t, "toastie", "Toastie", line(bread, "2"), line(cheese, "0.1"))
	nachos := f.addFood(t, "nachos", "Nachos", line(cheese, "0.2"))

	// WHEN: A ticket needs 0.6 + 0.6 = 1.2 kg cheese
	_, err := f.engine.ConsumeItems(ctx, []stock.SaleLine{
		{FoodID: toastie, Units: 6},
		{FoodID: nachos, Units: 3},
	}, stock.SaleContext{ReferenceID: "ticket-1"})

	// THEN: Rejected on the combined amount even though each line fits alone
	var failed *stock.ConsumptionFailedError
	require.True(t, errors.As(err, &failed))
	require.Len(t, failed.Shortfalls, 1)
	assert.True(t, qty("1.2").Equal(failed.Shortfalls[0].Required))
	assert.True(t, qty("50").Equal(f.balance(t, bread)))

	// WHEN: A ticket that fits
	entries, err := f.engine.ConsumeItems(ctx, []stock.SaleLine{
		{FoodID: toastie, Units: 2},
		{FoodID: nachos, Units: 1},
	}, stock.SaleContext{ReferenceID: "ticket-2"})

	// THEN: One entry per (item, ingredient)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.True(t, qty("0.6").Equal(f.balance(t, cheese)))
	assert.True(t, qty("46").Equal(f.balance(t, bread)))
}

func TestConsume_LeavesLedgerReplayable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rice := f.addIngredient(t, "rice", ingredientSpec{name: "Rice", stock: "2"})
	bowl := f.addFood(t, "bowl", "Rice Bowl", line(rice, "0.3"))

	for i := 0; i < 6; i++ {
		_, err := f.engine.Consume(ctx, bowl, 1, stock.SaleContext{})
		require.NoError(t, err)
	}
	_, err := f.engine.Consume(ctx, bowl, 1, stock.SaleContext{})
	require.ErrorIs(t, err, stock.ErrConsumptionFailed)

	result, err := f.ledger.Replay(ctx, rice)
	require.NoError(t, err)
	assert.True(t, qty("0.2").Equal(result.Folded))
}

func TestConsumeSale_SavesHeaderWithEntries(t *testing.T) {
	// GIVEN: A ticket with a pizza and a drink that has no recipe
	f := newFixture(t)
	ctx := context.Background()
	dough := f.addIngredient(t, "dough", ingredientSpec{name: "Dough", stock: "5"})
	pizza := f.addFood(t, "margherita", "Margherita", line(dough, "0.25"))
	water := f.addFood(t, "water", "Water")
	sale := stock.Sale{
		ID:     "sale-9",
		SoldAt: testNow,
		Total:  qty("23"),
		Items: []stock.SaleItem{
			{FoodID: pizza, Quantity: 2, UnitPrice: qty("10"), Subtotal: qty("20")},
			{FoodID: water, Quantity: 1, UnitPrice: qty("3"), Subtotal: qty("3")},
		},
	}

	// WHEN: The sale is recorded
	entries, err := f.engine.ConsumeSale(ctx, sale, stock.SaleContext{Actor: "cashier"})

	// THEN: Only the pizza consumes stock; the header is stored and referenced
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sale-9", entries[0].ReferenceID)
	assert.True(t, qty("4.5").Equal(f.balance(t, dough)))
	stored, err := f.store.GetSale(ctx, "sale-9")
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
}

func TestConsumeSale_ShortfallDoesNotSaveHeader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dough := f.addIngredient(t, "dough", ingredientSpec{name: "Dough", stock: "0.1"})
	pizza := f.addFood(t, "margherita", "Margherita", line(dough, "0.25"))

	_, err := f.engine.ConsumeSale(ctx, stock.Sale{
		ID:    "sale-10",
		Items: []stock.SaleItem{{FoodID: pizza, Quantity: 1}},
	}, stock.SaleContext{})

	assert.ErrorIs(t, err, stock.ErrConsumptionFailed)
	_, err = f.store.GetSale(ctx, "sale-10")
	assert.ErrorIs(t, err, stock.ErrSaleNotFound)
}
