/*
consumption.go - Turning sales into ingredient consumption

PURPOSE:
  When food is sold, every ingredient in its recipe is consumed in
  proportion to the units sold. The Engine resolves the recipe, checks that
  every ingredient can cover its share, and only then writes one SALE entry
  per (food, ingredient). If anything is short, nothing is written.

ALL-OR-NOTHING:
  The sufficiency pre-check and the writes happen under the keyed locks of
  every involved ingredient and inside a single store transaction. The
  pre-check aggregates needs per ingredient, so a ticket selling two foods
  that share an ingredient is checked against the combined amount. Every
  shortfall is reported, not only the first.

EDGE CASES:
  - unitsSold <= 0: ErrInvalidQuantity
  - Food without a recipe: no entries, no error
  - Deleted ingredient still referenced by a recipe: skipped and logged

EXAMPLE:
  Margherita = 0.25 kg dough + 0.1 kg mozzarella
  Consume(margherita, 4) -> SALE -1.0 dough, SALE -0.4 mozzarella

SEE ALSO:
  - recipe.go: Requirements
  - ledger.go: commit/applyOne, shared with Apply
*/
package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Engine struct {
	ledger   *Ledger
	resolver *Resolver
	opts     options
}

func NewEngine(ledger *Ledger, resolver *Resolver, opts ...Option) *Engine {
	return &Engine{ledger: ledger, resolver: resolver, opts: buildOptions(opts)}
}

// planned is one SALE entry waiting for the pre-check to pass.
type planned struct {
	foodID       FoodID
	units        int
	ingredientID IngredientID
	quantity     decimal.Decimal
}

// Consume records the ingredient consumption for unitsSold of one food.
func (e *Engine) Consume(ctx context.Context, foodID FoodID, unitsSold int, sc SaleContext) ([]Entry, error) {
	return e.ConsumeItems(ctx, []SaleLine{{FoodID: foodID, Units: unitsSold}}, sc)
}

// ConsumeItems records consumption for a whole ticket atomically.
func (e *Engine) ConsumeItems(ctx context.Context, lines []SaleLine, sc SaleContext) ([]Entry, error) {
	return e.consume(ctx, lines, sc, nil)
}

// ConsumeSale saves the sale header and its consumption in one transaction.
// The sale is written even when none of its foods has a recipe.
func (e *Engine) ConsumeSale(ctx context.Context, sale Sale, sc SaleContext) ([]Entry, error) {
	lines := make([]SaleLine, 0, len(sale.Items))
	for _, item := range sale.Items {
		lines = append(lines, SaleLine{FoodID: item.FoodID, Units: item.Quantity})
	}
	if sc.ReferenceID == "" {
		sc.ReferenceID = string(sale.ID)
	}
	return e.consume(ctx, lines, sc, func(s Store) error {
		return s.SaveSale(ctx, sale)
	})
}

// consume runs persist, if any, after the sufficiency check and before the
// SALE entries, inside the same transaction.
func (e *Engine) consume(ctx context.Context, lines []SaleLine, sc SaleContext, persist func(Store) error) ([]Entry, error) {
	if len(lines) == 0 {
		return nil, &ValidationError{Field: "items", Message: "at least one item is required"}
	}
	for i, line := range lines {
		if line.Units <= 0 {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("items[%d].units", i),
				Message: fmt.Sprintf("must be positive, got %d", line.Units),
			}
		}
	}

	plan, err := e.plan(ctx, lines)
	if err != nil {
		return nil, err
	}
	if len(plan) == 0 && persist == nil {
		return nil, nil
	}

	totals := make(map[IngredientID]decimal.Decimal)
	ids := make([]IngredientID, 0, len(plan))
	for _, p := range plan {
		totals[p.ingredientID] = totals[p.ingredientID].Add(p.quantity)
		ids = append(ids, p.ingredientID)
	}
	ids = SortedUnique(ids)

	return e.ledger.commit(ctx, ids, TxSale, func(s Store, now time.Time) ([]Entry, error) {
		skipped := make(map[IngredientID]bool)
		var shortfalls []Shortfall
		for _, id := range ids {
			ing, err := s.LockIngredient(ctx, id)
			if err != nil {
				return nil, err
			}
			if ing.IsDeleted() {
				skipped[id] = true
				e.opts.logger.Warn("skipping deleted ingredient in recipe",
					zap.String("ingredient_id", string(id)),
					zap.String("reference_id", sc.ReferenceID))
				continue
			}
			if ing.CurrentStock.LessThan(totals[id]) {
				shortfalls = append(shortfalls, Shortfall{
					IngredientID: id,
					Name:         ing.Name,
					Required:     totals[id],
					Available:    ing.CurrentStock,
				})
			}
		}
		if len(shortfalls) > 0 {
			return nil, &ConsumptionFailedError{Shortfalls: shortfalls}
		}
		if persist != nil {
			if err := persist(s); err != nil {
				return nil, err
			}
		}

		out := make([]Entry, 0, len(plan))
		for _, p := range plan {
			if skipped[p.ingredientID] {
				continue
			}
			entry, err := e.ledger.applyOne(ctx, s, ApplyRequest{
				IngredientID: p.ingredientID,
				Type:         TxSale,
				Quantity:     p.quantity,
				Reason:       saleReason(sc, p),
				Actor:        sc.Actor,
				Branch:       sc.Branch,
				ReferenceID:  sc.ReferenceID,
			}, now)
			if err != nil {
				return nil, err
			}
			out = append(out, entry)
		}
		return out, nil
	})
}

// plan resolves every line into per-ingredient quantities. Foods without a
// recipe contribute nothing.
func (e *Engine) plan(ctx context.Context, lines []SaleLine) ([]planned, error) {
	var plan []planned
	for _, line := range lines {
		reqs, err := e.resolver.Requirements(ctx, line.FoodID)
		if errors.Is(err, ErrNoRecipe) {
			e.opts.logger.Debug("food has no recipe, nothing to consume",
				zap.String("food_id", string(line.FoodID)))
			continue
		}
		if err != nil {
			return nil, err
		}

		units := decimal.NewFromInt(int64(line.Units))
		for _, req := range reqs {
			plan = append(plan, planned{
				foodID:       line.FoodID,
				units:        line.Units,
				ingredientID: req.IngredientID,
				quantity:     req.QuantityPerUnit.Mul(units),
			})
		}
	}
	return plan, nil
}

func saleReason(sc SaleContext, p planned) string {
	if sc.Reason != "" {
		return sc.Reason
	}
	return fmt.Sprintf("sale of %d x %s", p.units, p.foodID)
}
