/*
ledger.go - Append-only stock ledger

PURPOSE:
  The Ledger is the only writer of stock balances. Every purchase, sale,
  waste, adjustment, return and transfer is recorded as an Entry, and the
  ingredient's CurrentStock is moved to the entry's NewStock in the same
  store transaction. The balance is therefore always the fold of its
  entries, starting from zero.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Entries are never updated or deleted
  2. NON-NEGATIVE: A change that would take a balance below zero is
     rejected whole, with no entry and no balance change
  3. SERIALIZED: Read, compute, append and balance write for one
     ingredient happen under that ingredient's lock and one WithTx
  4. CONTINUOUS: entry.PreviousStock equals the prior entry's NewStock

ATOMIC UNIT:
  Apply and ApplyBatch take the keyed locks for every ingredient involved
  (sorted order), then run everything inside store.WithTx. Stores with row
  locks (PostgreSQL) also lock the rows in LockIngredient, which covers
  writers in other processes.

ALERTS:
  After the transaction commits, each touched ingredient is evaluated by
  the AlertEngine. A failure there is logged and counted; it never undoes
  the committed entry and never reaches the caller.

EXAMPLE FLOW:
  1. Delivery of 10 kg flour:   PURCHASE +10   0  -> 10
  2. Sale uses 0.4 kg:          SALE     -0.4  10 -> 9.6
  3. Count finds 9.5 kg:        ADJUSTMENT -0.1 9.6 -> 9.5
  4. Sale needs 12 kg:          rejected, balance stays 9.5

SEE ALSO:
  - store.go: AppendEntry contract
  - consumption.go: Multi-ingredient sales through commit
  - replay.go: Verifying a balance against its entries
*/
package stock

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store  TxStore
	alerts *AlertEngine
	opts   options
}

// NewLedger builds a ledger over store. alerts may be nil, in which case no
// alert evaluation happens after a commit.
func NewLedger(store TxStore, alerts *AlertEngine, opts ...Option) *Ledger {
	return &Ledger{
		store:  store,
		alerts: alerts,
		opts:   buildOptions(opts),
	}
}

// Apply records one stock movement and returns the persisted entry.
func (l *Ledger) Apply(ctx context.Context, req ApplyRequest) (Entry, error) {
	entries, err := l.ApplyBatch(ctx, []ApplyRequest{req})
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

// ApplyBatch records several movements atomically. Either every entry is
// written or none is. The same ingredient may appear more than once; later
// requests see the balance left by earlier ones.
func (l *Ledger) ApplyBatch(ctx context.Context, reqs []ApplyRequest) ([]Entry, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	ids := make([]IngredientID, 0, len(reqs))
	for _, r := range reqs {
		if err := r.Validate(); err != nil {
			l.opts.observer.ApplyRejected(r.Type, err)
			return nil, err
		}
		ids = append(ids, r.IngredientID)
	}

	return l.commit(ctx, ids, reqs[0].Type, func(s Store, now time.Time) ([]Entry, error) {
		out := make([]Entry, 0, len(reqs))
		for _, r := range reqs {
			e, err := l.applyOne(ctx, s, r, now)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	})
}

// Balance returns the ingredient's current stock. Deleted ingredients are readable.
func (l *Ledger) Balance(ctx context.Context, id IngredientID) (Ingredient, error) {
	return l.store.GetIngredient(ctx, id)
}

// History returns every entry for an ingredient in sequence order.
func (l *Ledger) History(ctx context.Context, id IngredientID) ([]Entry, error) {
	if _, err := l.store.GetIngredient(ctx, id); err != nil {
		return nil, err
	}
	return l.store.Entries(ctx, id)
}

// HistoryByType returns an ingredient's entries of a single type.
func (l *Ledger) HistoryByType(ctx context.Context, id IngredientID, t TxType) ([]Entry, error) {
	if !t.IsValid() {
		return nil, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown transaction type %q", t)}
	}
	if _, err := l.store.GetIngredient(ctx, id); err != nil {
		return nil, err
	}
	return l.store.EntriesByType(ctx, id, t)
}

// =============================================================================
// INTERNALS
// =============================================================================

// commit runs fn under the keyed locks for ids and one store transaction,
// then reports and evaluates alerts for what was written.
func (l *Ledger) commit(ctx context.Context, ids []IngredientID, label TxType, fn func(Store, time.Time) ([]Entry, error)) ([]Entry, error) {
	entries, err := l.locked(ctx, ids, fn)
	if err != nil {
		l.opts.observer.ApplyRejected(label, err)
		l.opts.logger.Debug("stock change rejected",
			zap.String("type", string(label)),
			zap.Error(err))
		return nil, err
	}

	touched := make([]IngredientID, 0, len(entries))
	for _, e := range entries {
		l.opts.observer.EntryApplied(e)
		l.opts.logger.Info("stock entry applied",
			zap.String("ingredient_id", string(e.IngredientID)),
			zap.String("type", string(e.Type)),
			zap.Stringer("delta", e.Delta),
			zap.Stringer("new_stock", e.NewStock),
			zap.String("actor", e.Actor))
		touched = append(touched, e.IngredientID)
	}

	l.evaluate(ctx, SortedUnique(touched))
	return entries, nil
}

func (l *Ledger) locked(ctx context.Context, ids []IngredientID, fn func(Store, time.Time) ([]Entry, error)) ([]Entry, error) {
	unlock := l.opts.locks.Lock(ids...)
	defer unlock()

	now := l.opts.clock.Now()
	var entries []Entry
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		entries, err = fn(s, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// applyOne is the read-compute-append step. It must run inside commit.
func (l *Ledger) applyOne(ctx context.Context, s Store, req ApplyRequest, now time.Time) (Entry, error) {
	ing, err := s.LockIngredient(ctx, req.IngredientID)
	if err != nil {
		return Entry{}, err
	}
	if ing.IsDeleted() {
		return Entry{}, fmt.Errorf("%w: %s", ErrIngredientDeleted, ing.ID)
	}

	delta, err := SignedDelta(req.Type, req.Direction, req.Quantity)
	if err != nil {
		return Entry{}, err
	}

	newStock := ing.CurrentStock.Add(delta)
	if delta.IsNegative() && newStock.IsNegative() {
		return Entry{}, &InsufficientStockError{
			IngredientID: ing.ID,
			Available:    ing.CurrentStock,
			Requested:    delta.Neg(),
		}
	}

	dir := req.Direction
	if req.Type == TxTransfer && dir == "" {
		dir = DirectionOut
	}
	if req.Type != TxTransfer {
		dir = ""
	}
	branch := req.Branch
	if branch == "" {
		branch = ing.Branch
	}

	entry := Entry{
		ID:            EntryID(l.opts.ids("entry")),
		IngredientID:  ing.ID,
		Type:          req.Type,
		Direction:     dir,
		Quantity:      req.Quantity,
		Delta:         delta,
		PreviousStock: ing.CurrentStock,
		NewStock:      newStock,
		Reason:        req.Reason,
		Actor:         req.Actor,
		Branch:        branch,
		ReferenceID:   req.ReferenceID,
		Sequence:      ing.Version + 1,
		CreatedAt:     now,
	}
	if err := s.AppendEntry(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("append entry for %s: %w", ing.ID, err)
	}
	return entry, nil
}

func (l *Ledger) evaluate(ctx context.Context, ids []IngredientID) {
	if l.alerts == nil {
		return
	}
	today := Today(l.opts.clock)
	for _, id := range ids {
		if _, err := l.alerts.Evaluate(ctx, id, today); err != nil {
			l.opts.observer.AlertFailed(id, err)
			l.opts.logger.Warn("alert evaluation failed",
				zap.String("ingredient_id", string(id)),
				zap.Error(err))
		}
	}
}
