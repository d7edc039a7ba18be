package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/stock-engine/stock"
	"gorm.io/gorm/clause"
)

// =============================================================================
// ALERTS (stock.AlertStore interface)
// =============================================================================

const openAlert = "acknowledged = false AND state = 'active'"

// InsertOpen uses ON CONFLICT DO NOTHING against idx_open_alert_pair so a
// losing writer does not abort the surrounding transaction.
func (q queries) InsertOpen(ctx context.Context, a stock.Alert) (stock.Alert, bool, error) {
	if a.State == "" {
		a.State = stock.LifecycleActive
	}
	row := alertRow{
		ID:           string(a.ID),
		IngredientID: string(a.IngredientID),
		AlertType:    string(a.Type),
		Message:      a.Message,
		Branch:       a.Branch,
		State:        string(a.State),
		CreatedAt:    a.CreatedAt.UTC(),
	}
	res := q.with(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return stock.Alert{}, false, fmt.Errorf("failed to insert alert: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return row.toDomain(), true, nil
	}

	var existing alertRow
	err := q.with(ctx).
		Where("ingredient_id = ? AND alert_type = ?", row.IngredientID, row.AlertType).
		Where(openAlert).
		Take(&existing).Error
	if err != nil {
		if isNotFound(err) {
			return stock.Alert{}, false, fmt.Errorf("%w: alert %s", stock.ErrDuplicateID, a.ID)
		}
		return stock.Alert{}, false, fmt.Errorf("failed to load open alert: %w", err)
	}
	return existing.toDomain(), false, nil
}

func (q queries) GetAlert(ctx context.Context, id stock.AlertID) (stock.Alert, error) {
	var row alertRow
	err := q.with(ctx).Where("id = ? AND state = ?", string(id), string(stock.LifecycleActive)).Take(&row).Error
	if err != nil {
		if isNotFound(err) {
			return stock.Alert{}, fmt.Errorf("%w: %s", stock.ErrAlertNotFound, id)
		}
		return stock.Alert{}, fmt.Errorf("failed to get alert: %w", err)
	}
	return row.toDomain(), nil
}

func (q queries) Acknowledge(ctx context.Context, id stock.AlertID, actor string, at time.Time) (stock.Alert, error) {
	acknowledgedAt := at.UTC()
	err := q.with(ctx).Model(&alertRow{}).
		Where("id = ?", string(id)).
		Where(openAlert).
		Updates(map[string]any{
			"acknowledged":    true,
			"acknowledged_by": actor,
			"acknowledged_at": &acknowledgedAt,
		}).Error
	if err != nil {
		return stock.Alert{}, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return q.GetAlert(ctx, id)
}

func (q queries) DeleteAlert(ctx context.Context, id stock.AlertID) error {
	res := q.with(ctx).Model(&alertRow{}).
		Where("id = ? AND state = ?", string(id), string(stock.LifecycleActive)).
		Update("state", string(stock.LifecycleDeleted))
	if res.Error != nil {
		return fmt.Errorf("failed to delete alert: %w", res.Error)
	}
	return expectRow(res, fmt.Errorf("%w: %s", stock.ErrAlertNotFound, id))
}

func (q queries) ListOpen(ctx context.Context, filter stock.AlertFilter) ([]stock.Alert, error) {
	tx := q.with(ctx).Where(openAlert)
	if filter.Branch != nil {
		tx = tx.Where("branch = ?", *filter.Branch)
	}
	if filter.IngredientID != "" {
		tx = tx.Where("ingredient_id = ?", string(filter.IngredientID))
	}

	var rows []alertRow
	if err := tx.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	result := make([]stock.Alert, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}
