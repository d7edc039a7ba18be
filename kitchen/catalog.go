package kitchen

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/stock"
	"go.uber.org/zap"
)

// =============================================================================
// INGREDIENTS
// =============================================================================

// CreateIngredient adds an ingredient. A positive CurrentStock on the input
// is recorded as an ADJUSTMENT "opening balance" entry, so the balance is
// always the fold of the ledger.
func (s *Service) CreateIngredient(ctx context.Context, ing stock.Ingredient, actor string) (stock.Ingredient, error) {
	if err := validateIngredient(ing); err != nil {
		return stock.Ingredient{}, err
	}
	if ing.CurrentStock.IsNegative() {
		return stock.Ingredient{}, &stock.ValidationError{Field: "current_stock", Message: "opening stock must not be negative"}
	}

	opening := ing.CurrentStock
	now := s.now()
	if ing.ID == "" {
		ing.ID = stock.IngredientID(s.ids("ing"))
	}
	ing.CurrentStock = decimal.Zero
	ing.Version = 0
	ing.State = stock.LifecycleActive
	ing.CreatedAt = now
	ing.UpdatedAt = now
	if err := s.store.CreateIngredient(ctx, ing); err != nil {
		return stock.Ingredient{}, err
	}

	if opening.IsPositive() {
		if _, err := s.ledger.Apply(ctx, stock.ApplyRequest{
			IngredientID: ing.ID,
			Type:         stock.TxAdjustment,
			Quantity:     opening,
			Reason:       "opening balance",
			Actor:        actor,
		}); err != nil {
			return stock.Ingredient{}, fmt.Errorf("record opening balance: %w", err)
		}
	} else if _, err := s.alerter.Evaluate(ctx, ing.ID, s.Today()); err != nil {
		s.logger.Warn("alert evaluation failed",
			zap.String("ingredient_id", string(ing.ID)),
			zap.Error(err))
	}

	s.logger.Info("ingredient created",
		zap.String("ingredient_id", string(ing.ID)),
		zap.String("name", ing.Name),
		zap.Stringer("opening_stock", opening))
	return s.store.GetIngredient(ctx, ing.ID)
}

// UpdateIngredient changes descriptive fields, thresholds and expiry. The
// balance is owned by the ledger and is left as stored.
func (s *Service) UpdateIngredient(ctx context.Context, ing stock.Ingredient) (stock.Ingredient, error) {
	if err := validateIngredient(ing); err != nil {
		return stock.Ingredient{}, err
	}
	current, err := s.store.GetIngredient(ctx, ing.ID)
	if err != nil {
		return stock.Ingredient{}, err
	}
	if current.IsDeleted() {
		return stock.Ingredient{}, fmt.Errorf("%w: %s", stock.ErrIngredientDeleted, ing.ID)
	}

	current.Name = ing.Name
	current.Description = ing.Description
	current.Category = ing.Category
	current.Unit = ing.Unit
	current.MinimumStock = ing.MinimumStock
	current.ReorderLevel = ing.ReorderLevel
	current.CostPerUnit = ing.CostPerUnit
	current.ExpiryDate = ing.ExpiryDate
	current.Branch = ing.Branch
	current.UpdatedAt = s.now()
	if err := s.store.UpdateIngredient(ctx, current); err != nil {
		return stock.Ingredient{}, err
	}

	// A new minimum or expiry date can put the ingredient over a threshold.
	if _, err := s.alerter.Evaluate(ctx, ing.ID, s.Today()); err != nil {
		s.logger.Warn("alert evaluation failed",
			zap.String("ingredient_id", string(ing.ID)),
			zap.Error(err))
	}
	return s.store.GetIngredient(ctx, ing.ID)
}

// DeleteIngredient marks the ingredient deleted and retires every recipe line
// that uses it. Ledger entries and alerts are kept; open alerts stay in the
// inbox until acknowledged.
func (s *Service) DeleteIngredient(ctx context.Context, id stock.IngredientID) error {
	var retired int
	err := s.store.WithTx(ctx, func(tx stock.Store) error {
		ing, err := tx.GetIngredient(ctx, id)
		if err != nil {
			return err
		}
		if ing.IsDeleted() {
			return nil
		}
		if err := tx.SetIngredientState(ctx, id, stock.LifecycleDeleted, s.now()); err != nil {
			return err
		}
		lines, err := tx.RecipeLinesByIngredient(ctx, id)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := tx.SetRecipeLineState(ctx, line.ID, stock.LifecycleDeleted); err != nil {
				return err
			}
		}
		retired = len(lines)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("ingredient deleted",
		zap.String("ingredient_id", string(id)),
		zap.Int("recipe_lines_retired", retired))
	return nil
}

func (s *Service) GetIngredient(ctx context.Context, id stock.IngredientID) (stock.Ingredient, error) {
	return s.store.GetIngredient(ctx, id)
}

func (s *Service) ListIngredients(ctx context.Context, filter stock.IngredientFilter) ([]stock.Ingredient, error) {
	return s.store.ListIngredients(ctx, filter)
}

func validateIngredient(ing stock.Ingredient) error {
	if ing.Name == "" {
		return &stock.ValidationError{Field: "name", Message: "required"}
	}
	if ing.Unit == "" {
		return &stock.ValidationError{Field: "unit", Message: "required"}
	}
	if ing.MinimumStock.IsNegative() {
		return &stock.ValidationError{Field: "minimum_stock", Message: "must not be negative"}
	}
	if ing.ReorderLevel != nil && ing.ReorderLevel.IsNegative() {
		return &stock.ValidationError{Field: "reorder_level", Message: "must not be negative"}
	}
	if ing.CostPerUnit.IsNegative() {
		return &stock.ValidationError{Field: "cost_per_unit", Message: "must not be negative"}
	}
	return nil
}

// =============================================================================
// FOODS & RECIPES
// =============================================================================

// CreateFood adds a food and, when given, its recipe. The recipe is checked
// before anything is written.
func (s *Service) CreateFood(ctx context.Context, food stock.Food, recipe []stock.RecipeLine) (stock.Food, []stock.RecipeLine, error) {
	if err := validateFood(food); err != nil {
		return stock.Food{}, nil, err
	}
	if food.ID == "" {
		food.ID = stock.FoodID(s.ids("food"))
	}
	if err := stock.ValidateRecipe(food.ID, recipe); err != nil {
		return stock.Food{}, nil, err
	}

	now := s.now()
	food.State = stock.LifecycleActive
	food.CreatedAt = now
	food.UpdatedAt = now
	if err := s.store.CreateFood(ctx, food); err != nil {
		return stock.Food{}, nil, err
	}

	var lines []stock.RecipeLine
	if len(recipe) > 0 {
		written, err := s.resolver.SetRecipe(ctx, food.ID, recipe)
		if err != nil {
			// Leave no food behind with a half-written recipe.
			if delErr := s.store.SetFoodState(ctx, food.ID, stock.LifecycleDeleted, now); delErr != nil {
				s.logger.Error("failed to roll back food", zap.String("food_id", string(food.ID)), zap.Error(delErr))
			}
			return stock.Food{}, nil, err
		}
		lines = written
	}
	return food, lines, nil
}

func (s *Service) UpdateFood(ctx context.Context, food stock.Food) (stock.Food, error) {
	if err := validateFood(food); err != nil {
		return stock.Food{}, err
	}
	current, err := s.activeFood(ctx, food.ID)
	if err != nil {
		return stock.Food{}, err
	}
	current.Name = food.Name
	current.Description = food.Description
	current.Category = food.Category
	current.Price = food.Price
	current.Available = food.Available
	current.PreparationMinutes = food.PreparationMinutes
	current.Branch = food.Branch
	current.UpdatedAt = s.now()
	if err := s.store.UpdateFood(ctx, current); err != nil {
		return stock.Food{}, err
	}
	return current, nil
}

// DeleteFood marks the food deleted and retires its recipe lines.
func (s *Service) DeleteFood(ctx context.Context, id stock.FoodID) error {
	return s.store.WithTx(ctx, func(tx stock.Store) error {
		food, err := tx.GetFood(ctx, id)
		if err != nil {
			return err
		}
		if food.IsDeleted() {
			return nil
		}
		lines, err := tx.RecipeLines(ctx, id)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := tx.SetRecipeLineState(ctx, line.ID, stock.LifecycleDeleted); err != nil {
				return err
			}
		}
		return tx.SetFoodState(ctx, id, stock.LifecycleDeleted, s.now())
	})
}

func (s *Service) GetFood(ctx context.Context, id stock.FoodID) (stock.Food, error) {
	return s.store.GetFood(ctx, id)
}

func (s *Service) ListFoods(ctx context.Context) ([]stock.Food, error) {
	return s.store.ListFoods(ctx, false)
}

// SetRecipe replaces the recipe of a food.
func (s *Service) SetRecipe(ctx context.Context, foodID stock.FoodID, lines []stock.RecipeLine) ([]stock.RecipeLine, error) {
	return s.resolver.SetRecipe(ctx, foodID, lines)
}

// AddRecipeLine appends one ingredient to a food's recipe.
func (s *Service) AddRecipeLine(ctx context.Context, foodID stock.FoodID, line stock.RecipeLine) (stock.RecipeLine, error) {
	return s.resolver.AddLine(ctx, foodID, line)
}

func (s *Service) Recipe(ctx context.Context, foodID stock.FoodID) ([]stock.RecipeLine, error) {
	return s.resolver.Recipe(ctx, foodID)
}

func (s *Service) activeFood(ctx context.Context, id stock.FoodID) (stock.Food, error) {
	food, err := s.store.GetFood(ctx, id)
	if err != nil {
		return stock.Food{}, err
	}
	if food.IsDeleted() {
		return stock.Food{}, fmt.Errorf("%w: %s", stock.ErrFoodNotFound, id)
	}
	return food, nil
}

func validateFood(food stock.Food) error {
	if food.Name == "" {
		return &stock.ValidationError{Field: "name", Message: "required"}
	}
	if food.Price.IsNegative() {
		return &stock.ValidationError{Field: "price", Message: "must not be negative"}
	}
	if food.PreparationMinutes < 0 {
		return &stock.ValidationError{Field: "preparation_minutes", Message: "must not be negative"}
	}
	return nil
}
