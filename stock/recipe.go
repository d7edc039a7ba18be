/*
recipe.go - Recipe resolution and write-time validation

PURPOSE:
  A recipe maps one unit of a food to the ingredient quantities it uses.
  The Resolver reads active recipe lines for the consumption engine and
  guards recipe writes so that an ingredient can appear at most once per
  food and every quantity is positive.

KEY CONCEPTS:
  - Requirement: (ingredient, quantity per unit), scaled by units sold
  - Lifecycle: Replaced or cascaded lines are marked deleted, never removed
  - Order: Lines keep the Position they were written with

SEE ALSO:
  - consumption.go: Scales requirements by units sold
  - kitchen/catalog.go: Cascades deletes onto recipe lines
*/
package stock

import (
	"context"
	"fmt"
	"sort"
)

type Resolver struct {
	store TxStore
	opts  options
}

func NewResolver(store TxStore, opts ...Option) *Resolver {
	return &Resolver{store: store, opts: buildOptions(opts)}
}

// Requirements returns the per-unit ingredient needs of a food.
// Fails with ErrFoodNotFound for unknown or deleted foods and ErrNoRecipe
// when the food has no active lines.
func (r *Resolver) Requirements(ctx context.Context, foodID FoodID) ([]Requirement, error) {
	lines, err := r.Recipe(ctx, foodID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRecipe, foodID)
	}

	reqs := make([]Requirement, 0, len(lines))
	for _, line := range lines {
		reqs = append(reqs, Requirement{IngredientID: line.IngredientID, QuantityPerUnit: line.Quantity})
	}
	return reqs, nil
}

// Recipe returns the active lines of a food ordered by position.
func (r *Resolver) Recipe(ctx context.Context, foodID FoodID) ([]RecipeLine, error) {
	food, err := r.store.GetFood(ctx, foodID)
	if err != nil {
		return nil, err
	}
	if food.IsDeleted() {
		return nil, fmt.Errorf("%w: %s", ErrFoodNotFound, foodID)
	}

	lines, err := r.store.RecipeLines(ctx, foodID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Position < lines[j].Position })
	return lines, nil
}

// ValidateRecipe checks a full recipe before it is written.
func ValidateRecipe(foodID FoodID, lines []RecipeLine) error {
	seen := make(map[IngredientID]bool, len(lines))
	for i, line := range lines {
		if line.IngredientID == "" {
			return &ValidationError{Field: fmt.Sprintf("recipe[%d].ingredient_id", i), Message: "required"}
		}
		if !line.Quantity.IsPositive() {
			return &ValidationError{
				Field:   fmt.Sprintf("recipe[%d].quantity", i),
				Message: fmt.Sprintf("must be positive, got %s", line.Quantity),
			}
		}
		if seen[line.IngredientID] {
			return &DuplicateIngredientError{FoodID: foodID, IngredientID: line.IngredientID}
		}
		seen[line.IngredientID] = true
	}
	return nil
}

// SetRecipe replaces a food's recipe. Previous lines are marked deleted.
// Every referenced ingredient must exist and be active.
func (r *Resolver) SetRecipe(ctx context.Context, foodID FoodID, lines []RecipeLine) ([]RecipeLine, error) {
	if err := ValidateRecipe(foodID, lines); err != nil {
		return nil, err
	}

	now := r.opts.clock.Now()
	written := make([]RecipeLine, 0, len(lines))
	err := r.store.WithTx(ctx, func(s Store) error {
		if err := activeFood(ctx, s, foodID); err != nil {
			return err
		}
		for _, line := range lines {
			if err := activeIngredient(ctx, s, line.IngredientID); err != nil {
				return err
			}
		}

		existing, err := s.RecipeLines(ctx, foodID)
		if err != nil {
			return err
		}
		for _, old := range existing {
			if err := s.SetRecipeLineState(ctx, old.ID, LifecycleDeleted); err != nil {
				return err
			}
		}

		for i, line := range lines {
			line.ID = RecipeLineID(r.opts.ids("line"))
			line.FoodID = foodID
			line.Position = i
			line.State = LifecycleActive
			line.CreatedAt = now
			if err := s.AddRecipeLine(ctx, line); err != nil {
				return err
			}
			written = append(written, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

// AddLine appends one line, rejecting an ingredient already in the recipe.
func (r *Resolver) AddLine(ctx context.Context, foodID FoodID, line RecipeLine) (RecipeLine, error) {
	if err := ValidateRecipe(foodID, []RecipeLine{line}); err != nil {
		return RecipeLine{}, err
	}

	err := r.store.WithTx(ctx, func(s Store) error {
		if err := activeFood(ctx, s, foodID); err != nil {
			return err
		}
		if err := activeIngredient(ctx, s, line.IngredientID); err != nil {
			return err
		}

		existing, err := s.RecipeLines(ctx, foodID)
		if err != nil {
			return err
		}
		next := 0
		for _, old := range existing {
			if old.IngredientID == line.IngredientID {
				return &DuplicateIngredientError{FoodID: foodID, IngredientID: line.IngredientID}
			}
			if old.Position >= next {
				next = old.Position + 1
			}
		}

		line.ID = RecipeLineID(r.opts.ids("line"))
		line.FoodID = foodID
		line.Position = next
		line.State = LifecycleActive
		line.CreatedAt = r.opts.clock.Now()
		return s.AddRecipeLine(ctx, line)
	})
	if err != nil {
		return RecipeLine{}, err
	}
	return line, nil
}

func activeFood(ctx context.Context, s Store, id FoodID) error {
	food, err := s.GetFood(ctx, id)
	if err != nil {
		return err
	}
	if food.IsDeleted() {
		return fmt.Errorf("%w: %s", ErrFoodNotFound, id)
	}
	return nil
}

func activeIngredient(ctx context.Context, s Store, id IngredientID) error {
	ing, err := s.GetIngredient(ctx, id)
	if err != nil {
		return err
	}
	if ing.IsDeleted() {
		return fmt.Errorf("%w: %s", ErrIngredientDeleted, id)
	}
	return nil
}
