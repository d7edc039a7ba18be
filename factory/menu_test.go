package factory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/factory"
	"github.com/warp/stock-engine/kitchen"
	"github.com/warp/stock-engine/stock"
	"github.com/warp/stock-engine/stock/store"
)

var today = stock.NewDate(2025, time.March, 10)

func TestParseMenu_Bistro(t *testing.T) {
	// GIVEN: the bistro preset
	// WHEN: parsing it
	menu, err := factory.NewMenuFactory().ParseMenu(factory.BistroMenuJSON(), today)
	require.NoError(t, err)

	// THEN: every ingredient and food is converted with the menu's branch
	require.Len(t, menu.Ingredients, 6)
	require.Len(t, menu.Foods, 4)
	for _, ing := range menu.Ingredients {
		assert.Equal(t, "main", ing.Branch)
	}

	// expires_in_days is relative to the day given
	dough := menu.Ingredients[0]
	require.NotNil(t, dough.ExpiryDate)
	assert.Equal(t, "2025-03-15", dough.ExpiryDate.String())

	mozzarella := menu.Ingredients[2]
	require.NotNil(t, mozzarella.ReorderLevel)
	assert.True(t, mozzarella.ReorderLevel.Equal(stock.MustParseDecimal("2")))

	margherita := menu.Foods[0]
	assert.True(t, margherita.Food.Available)
	require.Len(t, margherita.Recipe, 4)
	assert.Equal(t, "added after baking", margherita.Recipe[3].Notes)

	// a food without a recipe is allowed
	assert.Empty(t, menu.Foods[3].Recipe)
}

func TestParseMenu_AbsoluteExpiryWins(t *testing.T) {
	json := `{"ingredients": [{"id": "cream", "name": "Cream", "unit": "l",
		"expiry_date": "2025-04-01", "expires_in_days": 2}], "foods": []}`

	menu, err := factory.NewMenuFactory().ParseMenu(json, today)
	require.NoError(t, err)
	require.NotNil(t, menu.Ingredients[0].ExpiryDate)
	assert.Equal(t, "2025-04-01", menu.Ingredients[0].ExpiryDate.String())
}

func TestParseMenu_Rejects(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{
			name: "malformed",
			json: `{"ingredients": [`,
			want: "failed to parse menu JSON",
		},
		{
			name: "missing unit",
			json: `{"ingredients": [{"id": "salt", "name": "Salt"}]}`,
			want: "ingredients[0]",
		},
		{
			name: "duplicate ingredient",
			json: `{"ingredients": [{"id": "salt", "name": "Salt", "unit": "kg"},
				{"id": "salt", "name": "Sea salt", "unit": "kg"}]}`,
			want: "duplicate id",
		},
		{
			name: "unknown recipe ingredient",
			json: `{"ingredients": [], "foods": [{"id": "soup", "name": "Soup",
				"recipe": [{"ingredient": "leek", "quantity": 1}]}]}`,
			want: "unknown ingredient",
		},
		{
			name: "ingredient twice in recipe",
			json: `{"ingredients": [{"id": "leek", "name": "Leek", "unit": "kg"}],
				"foods": [{"id": "soup", "name": "Soup", "recipe": [
					{"ingredient": "leek", "quantity": 1}, {"ingredient": "leek", "quantity": 2}]}]}`,
			want: "foods[0]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.NewMenuFactory().ParseMenu(tt.json, today)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMenuLoad_PopulatesKitchen(t *testing.T) {
	// GIVEN: an empty kitchen
	ctx := context.Background()
	mem := store.NewMemory()
	svc := kitchen.New(mem, mem, kitchen.Config{
		Clock: stock.FixedClock{At: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)},
	})

	// WHEN: loading the bistro menu
	menu, err := factory.NewMenuFactory().ParseMenu(factory.BistroMenuJSON(), today)
	require.NoError(t, err)
	require.NoError(t, menu.Load(ctx, svc, "setup"))

	// THEN: opening balances are in the ledger
	balance, err := svc.GetCurrentStock(ctx, "dough")
	require.NoError(t, err)
	assert.True(t, balance.Equal(stock.MustParseDecimal("10")))

	result, err := svc.VerifyLedger(ctx, "dough")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Entries)

	// AND: recipes resolve
	recipe, err := svc.Recipe(ctx, "margherita")
	require.NoError(t, err)
	assert.Len(t, recipe, 4)

	// AND: basil starts below its minimum, so a LOW_STOCK alert is open
	open, err := svc.ListUnacknowledgedAlerts(ctx, nil)
	require.NoError(t, err)
	var types []stock.AlertType
	for _, a := range open {
		if a.IngredientID == "basil" {
			types = append(types, a.Type)
		}
	}
	assert.Equal(t, []stock.AlertType{stock.AlertLowStock}, types)

	// AND: sixteen margheritas are possible before the basil runs out
	units, err := svc.FoodAvailability(ctx, "margherita")
	require.NoError(t, err)
	assert.Equal(t, 16, units)
}

func TestMenuLoad_StopsOnDuplicate(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := kitchen.New(mem, mem, kitchen.Config{})

	menu, err := factory.NewMenuFactory().ParseMenu(factory.CafeMenuJSON(), today)
	require.NoError(t, err)
	require.NoError(t, menu.Load(ctx, svc, "setup"))

	// Loading the same catalog twice collides on ingredient IDs.
	err = menu.Load(ctx, svc, "setup")
	require.Error(t, err)
	assert.ErrorIs(t, err, stock.ErrDuplicateID)
	assert.Contains(t, err.Error(), "ingredient espresso-beans")
}
