package kitchen

import (
	"context"

	"github.com/warp/stock-engine/stock"
)

// UnlimitedUnits is FoodAvailability's answer for a food without a recipe.
const UnlimitedUnits = -1

// LowStock lists active ingredients with a positive balance below their
// minimum.
func (s *Service) LowStock(ctx context.Context, branch *string) ([]stock.Ingredient, error) {
	return s.selectIngredients(ctx, stock.IngredientFilter{Branch: branch}, stock.Ingredient.IsLow)
}

// OutOfStock lists active ingredients with nothing on hand.
func (s *Service) OutOfStock(ctx context.Context, branch *string) ([]stock.Ingredient, error) {
	return s.selectIngredients(ctx, stock.IngredientFilter{Branch: branch}, stock.Ingredient.IsOut)
}

// Expiring lists active ingredients whose expiry date is within [from, to].
func (s *Service) Expiring(ctx context.Context, from, to stock.Date) ([]stock.Ingredient, error) {
	return s.selectIngredients(ctx, stock.IngredientFilter{WithExpiryOnly: true}, func(ing stock.Ingredient) bool {
		return ing.ExpiryDate.AfterOrEqual(from) && ing.ExpiryDate.BeforeOrEqual(to)
	})
}

// Expired lists active ingredients whose expiry date is before asOf.
func (s *Service) Expired(ctx context.Context, asOf stock.Date) ([]stock.Ingredient, error) {
	return s.selectIngredients(ctx, stock.IngredientFilter{WithExpiryOnly: true}, func(ing stock.Ingredient) bool {
		return ing.ExpiryDate.Before(asOf)
	})
}

func (s *Service) selectIngredients(ctx context.Context, filter stock.IngredientFilter, keep func(stock.Ingredient) bool) ([]stock.Ingredient, error) {
	all, err := s.store.ListIngredients(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]stock.Ingredient, 0, len(all))
	for _, ing := range all {
		if keep(ing) {
			out = append(out, ing)
		}
	}
	return out, nil
}

// FoodAvailability returns how many units of a food current stock can
// cover: the minimum over its recipe lines of floor(stock / quantity).
// Deleted ingredients are skipped, as consumption skips them.
func (s *Service) FoodAvailability(ctx context.Context, foodID stock.FoodID) (int, error) {
	lines, err := s.resolver.Recipe(ctx, foodID)
	if err != nil {
		return 0, err
	}

	available := UnlimitedUnits
	for _, line := range lines {
		ing, err := s.store.GetIngredient(ctx, line.IngredientID)
		if err != nil {
			return 0, err
		}
		if ing.IsDeleted() {
			continue
		}
		units := 0
		if ing.CurrentStock.IsPositive() {
			units = int(ing.CurrentStock.Div(line.Quantity).Floor().IntPart())
		}
		if available == UnlimitedUnits || units < available {
			available = units
		}
	}
	return available, nil
}
