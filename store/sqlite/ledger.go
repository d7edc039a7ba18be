package sqlite

import (
	"context"
	"fmt"

	"github.com/warp/stock-engine/stock"
)

// =============================================================================
// LEDGER (stock.LedgerStore interface)
// =============================================================================

const entryColumns = `id, ingredient_id, tx_type, direction, quantity, delta, previous_stock,
	new_stock, reason, actor, branch, reference_id, sequence, created_at`

// LockIngredient is a plain read. SQLite has no row locks; the single
// connection held by WithTx serializes writers.
func (q queries) LockIngredient(ctx context.Context, id stock.IngredientID) (stock.Ingredient, error) {
	return q.GetIngredient(ctx, id)
}

// AppendEntry moves the balance with a version check, then inserts the entry.
func (q queries) AppendEntry(ctx context.Context, e stock.Entry) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE ingredients
		SET current_stock = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`, e.NewStock.String(), e.Sequence, formatTime(e.CreatedAt), e.IngredientID, e.Sequence-1)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if err := expectRow(res, fmt.Errorf("%w: %s expected version %d",
		stock.ErrConcurrentModification, e.IngredientID, e.Sequence-1)); err != nil {
		return err
	}

	_, err = q.q.ExecContext(ctx, `
		INSERT INTO stock_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.IngredientID, e.Type, e.Direction, e.Quantity.String(), e.Delta.String(),
		e.PreviousStock.String(), e.NewStock.String(), e.Reason, e.Actor, e.Branch,
		e.ReferenceID, e.Sequence, formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: entry %s", stock.ErrConcurrentModification, e.ID)
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func (q queries) Entries(ctx context.Context, id stock.IngredientID) ([]stock.Entry, error) {
	return q.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM stock_entries
		WHERE ingredient_id = ?
		ORDER BY sequence ASC
	`, id)
}

func (q queries) EntriesByType(ctx context.Context, id stock.IngredientID, t stock.TxType) ([]stock.Entry, error) {
	return q.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM stock_entries
		WHERE ingredient_id = ? AND tx_type = ?
		ORDER BY sequence ASC
	`, id, t)
}

func (q queries) queryEntries(ctx context.Context, query string, args ...any) ([]stock.Entry, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []stock.Entry
	for rows.Next() {
		var (
			e             stock.Entry
			quantity      string
			delta         string
			previousStock string
			newStock      string
			createdAt     string
		)
		if err := rows.Scan(
			&e.ID, &e.IngredientID, &e.Type, &e.Direction, &quantity, &delta,
			&previousStock, &newStock, &e.Reason, &e.Actor, &e.Branch,
			&e.ReferenceID, &e.Sequence, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Quantity = parseDecimal(quantity)
		e.Delta = parseDecimal(delta)
		e.PreviousStock = parseDecimal(previousStock)
		e.NewStock = parseDecimal(newStock)
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
