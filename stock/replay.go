package stock

import (
	"context"

	"github.com/shopspring/decimal"
)

// ReplayResult is the outcome of folding an ingredient's entries.
type ReplayResult struct {
	IngredientID IngredientID
	Entries      int
	Folded       decimal.Decimal
	Stored       decimal.Decimal
}

// Fold replays entries from zero in the order given and checks that each
// entry continues from the running balance. It returns the final balance.
func Fold(id IngredientID, entries []Entry) (decimal.Decimal, error) {
	running := decimal.Zero
	var last int64
	for _, e := range entries {
		if e.Sequence <= last {
			return running, &ReplayMismatchError{
				IngredientID: id,
				Sequence:     e.Sequence,
				Expected:     decimal.NewFromInt(last + 1),
				Actual:       decimal.NewFromInt(e.Sequence),
			}
		}
		last = e.Sequence

		if !e.PreviousStock.Equal(running) {
			return running, &ReplayMismatchError{IngredientID: id, Sequence: e.Sequence, Expected: running, Actual: e.PreviousStock}
		}
		delta, err := SignedDelta(e.Type, e.Direction, e.Quantity)
		if err != nil {
			return running, err
		}
		if !delta.Equal(e.Delta) {
			return running, &ReplayMismatchError{IngredientID: id, Sequence: e.Sequence, Expected: delta, Actual: e.Delta}
		}
		running = running.Add(delta)
		if !e.NewStock.Equal(running) {
			return running, &ReplayMismatchError{IngredientID: id, Sequence: e.Sequence, Expected: running, Actual: e.NewStock}
		}
	}
	return running, nil
}

// Replay folds the ingredient's full history and compares it with the
// stored balance. Writers for the ingredient are held off while it reads.
func (l *Ledger) Replay(ctx context.Context, id IngredientID) (ReplayResult, error) {
	unlock := l.opts.locks.Lock(id)
	defer unlock()

	ing, err := l.store.GetIngredient(ctx, id)
	if err != nil {
		return ReplayResult{}, err
	}
	entries, err := l.store.Entries(ctx, id)
	if err != nil {
		return ReplayResult{}, err
	}

	result := ReplayResult{IngredientID: id, Entries: len(entries), Stored: ing.CurrentStock}
	folded, err := Fold(id, entries)
	result.Folded = folded
	if err != nil {
		return result, err
	}
	if !folded.Equal(ing.CurrentStock) {
		return result, &ReplayMismatchError{IngredientID: id, Expected: folded, Actual: ing.CurrentStock}
	}
	return result, nil
}
