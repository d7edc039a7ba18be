package postgres

import (
	"context"
	"fmt"

	"github.com/warp/stock-engine/stock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// =============================================================================
// LEDGER (stock.LedgerStore interface)
// =============================================================================

// LockIngredient reads the row with FOR UPDATE. The lock is only held when
// called on the store handed to WithTx.
func (q queries) LockIngredient(ctx context.Context, id stock.IngredientID) (stock.Ingredient, error) {
	var row ingredientRow
	err := q.with(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", string(id)).
		Take(&row).Error
	if err != nil {
		if isNotFound(err) {
			return stock.Ingredient{}, fmt.Errorf("%w: %s", stock.ErrIngredientNotFound, id)
		}
		return stock.Ingredient{}, fmt.Errorf("failed to lock ingredient: %w", err)
	}
	return row.toDomain(), nil
}

// AppendEntry moves the balance with a version check, then inserts the entry.
func (q queries) AppendEntry(ctx context.Context, e stock.Entry) error {
	res := q.with(ctx).Model(&ingredientRow{}).
		Where("id = ? AND version = ?", string(e.IngredientID), e.Sequence-1).
		Updates(map[string]any{
			"current_stock": e.NewStock,
			"version":       e.Sequence,
			"updated_at":    e.CreatedAt.UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s expected version %d",
			stock.ErrConcurrentModification, e.IngredientID, e.Sequence-1)
	}

	row := toEntryRow(e)
	if err := q.with(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: entry %s", stock.ErrConcurrentModification, e.ID)
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func (q queries) Entries(ctx context.Context, id stock.IngredientID) ([]stock.Entry, error) {
	return findEntries(q.with(ctx).Where("ingredient_id = ?", string(id)))
}

func (q queries) EntriesByType(ctx context.Context, id stock.IngredientID, t stock.TxType) ([]stock.Entry, error) {
	return findEntries(q.with(ctx).Where("ingredient_id = ? AND tx_type = ?", string(id), string(t)))
}

func findEntries(tx *gorm.DB) ([]stock.Entry, error) {
	var rows []entryRow
	if err := tx.Order("sequence ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	entries := make([]stock.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toDomain())
	}
	return entries, nil
}
