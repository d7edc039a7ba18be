/*
errors.go - Centralized error types for the stock engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on the sentinels with errors.Is and read the structured
  types with errors.As when they need the details.

ERROR CATEGORIES:
  1. Validation errors - Malformed quantities, types, recipes, sales
  2. Stock errors - Insufficient balance, failed consumption
  3. Lookup errors - Missing or deleted catalog records
  4. Store errors - Concurrency conflicts, replay mismatches

USAGE:
  entries, err := engine.Consume(ctx, foodID, 3, saleCtx)
  var failed *stock.ConsumptionFailedError
  if errors.As(err, &failed) {
      for _, s := range failed.Shortfalls { ... }
  }

SEE ALSO:
  - ledger.go: Returns InsufficientStockError
  - consumption.go: Returns ConsumptionFailedError
  - recipe.go: Returns DuplicateIngredientError
*/
package stock

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidQuantity is returned for a non-positive quantity, a zero
	// adjustment, an unknown type, or a non-positive unit count.
	ErrInvalidQuantity = errors.New("invalid quantity")

	// ErrInsufficientStock is returned when a change would take a balance below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConsumptionFailed is returned when a sale cannot be fully covered.
	ErrConsumptionFailed = errors.New("consumption failed")

	// ErrNoRecipe is returned when a food has no active recipe lines.
	ErrNoRecipe = errors.New("food has no recipe")

	// ErrDuplicateIngredientInRecipe is returned when a recipe names an ingredient twice.
	ErrDuplicateIngredientInRecipe = errors.New("duplicate ingredient in recipe")

	// ErrInvalidSale is returned when sale totals do not add up.
	ErrInvalidSale = errors.New("invalid sale")

	// ErrNotFound is the parent of every lookup failure below.
	ErrNotFound = errors.New("not found")

	ErrIngredientNotFound = fmt.Errorf("ingredient %w", ErrNotFound)
	ErrFoodNotFound       = fmt.Errorf("food %w", ErrNotFound)
	ErrAlertNotFound      = fmt.Errorf("alert %w", ErrNotFound)
	ErrSaleNotFound       = fmt.Errorf("sale %w", ErrNotFound)
	ErrRecipeLineNotFound = fmt.Errorf("recipe line %w", ErrNotFound)

	// ErrIngredientDeleted is returned when applying to a deleted ingredient.
	ErrIngredientDeleted = errors.New("ingredient is deleted")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrReplayMismatch is returned when folding entries disagrees with the stored balance.
	ErrReplayMismatch = errors.New("ledger replay mismatch")

	// ErrDuplicateID is returned when a record with the same ID already exists.
	ErrDuplicateID = errors.New("duplicate id")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field. It unwraps to ErrInvalidQuantity.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidQuantity
}

// InsufficientStockError provides details about a balance shortage.
type InsufficientStockError struct {
	IngredientID IngredientID
	Available    decimal.Decimal
	Requested    decimal.Decimal
}

func (e *InsufficientStockError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %s, requested %s, shortfall %s",
		e.IngredientID, e.Available, e.Requested, e.Shortfall())
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Shortfall describes one ingredient a sale could not cover.
type Shortfall struct {
	IngredientID IngredientID
	Name         string
	Required     decimal.Decimal
	Available    decimal.Decimal
}

func (s Shortfall) Missing() decimal.Decimal {
	return s.Required.Sub(s.Available)
}

// ConsumptionFailedError lists every short ingredient, not just the first.
type ConsumptionFailedError struct {
	Shortfalls []Shortfall
}

func (e *ConsumptionFailedError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		name := s.Name
		if name == "" {
			name = string(s.IngredientID)
		}
		parts = append(parts, fmt.Sprintf("%s (need %s, have %s)", name, s.Required, s.Available))
	}
	return fmt.Sprintf("consumption failed: insufficient stock for %s", strings.Join(parts, ", "))
}

func (e *ConsumptionFailedError) Unwrap() []error {
	return []error{ErrConsumptionFailed, ErrInsufficientStock}
}

// DuplicateIngredientError names the ingredient repeated in a recipe.
type DuplicateIngredientError struct {
	FoodID       FoodID
	IngredientID IngredientID
}

func (e *DuplicateIngredientError) Error() string {
	return fmt.Sprintf("ingredient %s appears more than once in recipe for %s", e.IngredientID, e.FoodID)
}

func (e *DuplicateIngredientError) Unwrap() error {
	return ErrDuplicateIngredientInRecipe
}

// ReplayMismatchError reports the first point where a fold disagrees.
type ReplayMismatchError struct {
	IngredientID IngredientID
	Sequence     int64 // 0 when only the stored balance disagrees
	Expected     decimal.Decimal
	Actual       decimal.Decimal
}

func (e *ReplayMismatchError) Error() string {
	if e.Sequence == 0 {
		return fmt.Sprintf("ledger replay mismatch for %s: folded balance %s, stored balance %s",
			e.IngredientID, e.Expected, e.Actual)
	}
	return fmt.Sprintf("ledger replay mismatch for %s at entry %d: expected %s, recorded %s",
		e.IngredientID, e.Sequence, e.Expected, e.Actual)
}

func (e *ReplayMismatchError) Unwrap() error {
	return ErrReplayMismatch
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrDuplicateIngredientInRecipe) ||
		errors.Is(err, ErrInvalidSale) ||
		errors.Is(err, ErrIngredientDeleted) ||
		errors.Is(err, ErrDuplicateID)
}

// IsConflict returns true if the request was valid but the stock cannot cover it.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrConsumptionFailed)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
