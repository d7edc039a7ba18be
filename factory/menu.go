/*
Package factory provides JSON to Go menu conversion.

PURPOSE:
  Converts JSON menu definitions into ingredients, foods and recipes and
  loads them into a kitchen. Kitchens can describe a catalog in one file
  instead of a series of API calls; the demo scenarios use it too.

JSON SCHEMA:
  {
    "branch": "main",
    "ingredients": [
      {"id": "dough", "name": "Pizza dough", "unit": "kg",
       "opening_stock": "10", "minimum_stock": "2", "expires_in_days": 4}
    ],
    "foods": [
      {"id": "margherita", "name": "Margherita", "price": "9.50",
       "recipe": [{"ingredient": "dough", "quantity": "0.25"}]}
    ]
  }

  Quantities accept JSON numbers or strings. expires_in_days is relative to
  the day the menu is built; expiry_date (YYYY-MM-DD) is absolute.

USAGE:
  menu, err := factory.NewMenuFactory().ParseMenu(factory.BistroMenuJSON(), today)
  if err != nil { ... }
  err = menu.Load(ctx, service, "setup")

SEE ALSO:
  - factory/presets.go: Ready-made menus
  - kitchen/catalog.go: The operations Load calls
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/stock"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// MenuJSON is the JSON representation of a catalog.
type MenuJSON struct {
	Branch      string           `json:"branch,omitempty"`
	Ingredients []IngredientJSON `json:"ingredients"`
	Foods       []FoodJSON       `json:"foods"`
}

type IngredientJSON struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	Category      string           `json:"category,omitempty"`
	Unit          string           `json:"unit"`
	OpeningStock  decimal.Decimal  `json:"opening_stock"`
	MinimumStock  decimal.Decimal  `json:"minimum_stock"`
	ReorderLevel  *decimal.Decimal `json:"reorder_level,omitempty"`
	CostPerUnit   decimal.Decimal  `json:"cost_per_unit"`
	ExpiresInDays *int             `json:"expires_in_days,omitempty"`
	ExpiryDate    *stock.Date      `json:"expiry_date,omitempty"`
	Branch        string           `json:"branch,omitempty"`
}

type FoodJSON struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Description        string           `json:"description,omitempty"`
	Category           string           `json:"category,omitempty"`
	Price              decimal.Decimal  `json:"price"`
	PreparationMinutes int              `json:"preparation_minutes,omitempty"`
	Unavailable        bool             `json:"unavailable,omitempty"`
	Recipe             []RecipeLineJSON `json:"recipe,omitempty"`
}

type RecipeLineJSON struct {
	Ingredient string          `json:"ingredient"`
	Quantity   decimal.Decimal `json:"quantity"`
	Notes      string          `json:"notes,omitempty"`
}

// =============================================================================
// MENU
// =============================================================================

// Menu is a parsed, cross-checked catalog ready to load.
type Menu struct {
	Ingredients []stock.Ingredient
	Foods       []FoodDefinition
}

type FoodDefinition struct {
	Food   stock.Food
	Recipe []stock.RecipeLine
}

// Catalog is the subset of kitchen.Service that Load needs.
type Catalog interface {
	CreateIngredient(ctx context.Context, ing stock.Ingredient, actor string) (stock.Ingredient, error)
	CreateFood(ctx context.Context, food stock.Food, recipe []stock.RecipeLine) (stock.Food, []stock.RecipeLine, error)
}

// Load creates every ingredient, then every food with its recipe. It stops
// at the first failure; what was created before it stays.
func (m *Menu) Load(ctx context.Context, catalog Catalog, actor string) error {
	for _, ing := range m.Ingredients {
		if _, err := catalog.CreateIngredient(ctx, ing, actor); err != nil {
			return fmt.Errorf("ingredient %s: %w", ing.ID, err)
		}
	}
	for _, def := range m.Foods {
		if _, _, err := catalog.CreateFood(ctx, def.Food, def.Recipe); err != nil {
			return fmt.Errorf("food %s: %w", def.Food.ID, err)
		}
	}
	return nil
}

// =============================================================================
// MENU FACTORY
// =============================================================================

// MenuFactory converts JSON menus to Go structs.
type MenuFactory struct{}

func NewMenuFactory() *MenuFactory {
	return &MenuFactory{}
}

// ParseMenu parses a JSON string. today anchors expires_in_days.
func (f *MenuFactory) ParseMenu(jsonStr string, today stock.Date) (*Menu, error) {
	var mj MenuJSON
	if err := json.Unmarshal([]byte(jsonStr), &mj); err != nil {
		return nil, fmt.Errorf("failed to parse menu JSON: %w", err)
	}
	return f.FromJSON(mj, today)
}

// FromJSON checks references and converts to domain types.
func (f *MenuFactory) FromJSON(mj MenuJSON, today stock.Date) (*Menu, error) {
	menu := &Menu{}
	known := make(map[string]bool, len(mj.Ingredients))

	for i, ij := range mj.Ingredients {
		if ij.ID == "" || ij.Name == "" || ij.Unit == "" {
			return nil, fmt.Errorf("ingredients[%d]: id, name and unit are required", i)
		}
		if known[ij.ID] {
			return nil, fmt.Errorf("ingredients[%d]: duplicate id %q", i, ij.ID)
		}
		known[ij.ID] = true

		branch := ij.Branch
		if branch == "" {
			branch = mj.Branch
		}
		ing := stock.Ingredient{
			ID:           stock.IngredientID(ij.ID),
			Name:         ij.Name,
			Description:  ij.Description,
			Category:     ij.Category,
			Unit:         ij.Unit,
			CurrentStock: ij.OpeningStock,
			MinimumStock: ij.MinimumStock,
			ReorderLevel: ij.ReorderLevel,
			CostPerUnit:  ij.CostPerUnit,
			Branch:       branch,
		}
		switch {
		case ij.ExpiryDate != nil:
			d := *ij.ExpiryDate
			ing.ExpiryDate = &d
		case ij.ExpiresInDays != nil:
			d := today.AddDays(*ij.ExpiresInDays)
			ing.ExpiryDate = &d
		}
		menu.Ingredients = append(menu.Ingredients, ing)
	}

	for i, fj := range mj.Foods {
		if fj.ID == "" || fj.Name == "" {
			return nil, fmt.Errorf("foods[%d]: id and name are required", i)
		}
		def := FoodDefinition{Food: stock.Food{
			ID:                 stock.FoodID(fj.ID),
			Name:               fj.Name,
			Description:        fj.Description,
			Category:           fj.Category,
			Price:              fj.Price,
			Available:          !fj.Unavailable,
			PreparationMinutes: fj.PreparationMinutes,
			Branch:             mj.Branch,
		}}
		for j, rj := range fj.Recipe {
			if !known[rj.Ingredient] {
				return nil, fmt.Errorf("foods[%d].recipe[%d]: unknown ingredient %q", i, j, rj.Ingredient)
			}
			def.Recipe = append(def.Recipe, stock.RecipeLine{
				IngredientID: stock.IngredientID(rj.Ingredient),
				Quantity:     rj.Quantity,
				Notes:        rj.Notes,
			})
		}
		if err := stock.ValidateRecipe(def.Food.ID, def.Recipe); err != nil {
			return nil, fmt.Errorf("foods[%d]: %w", i, err)
		}
		menu.Foods = append(menu.Foods, def)
	}
	return menu, nil
}
