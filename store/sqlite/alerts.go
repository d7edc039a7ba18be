package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/stock-engine/stock"
)

// =============================================================================
// ALERTS (stock.AlertStore interface)
// =============================================================================

const alertColumns = `id, ingredient_id, alert_type, message, branch, acknowledged,
	acknowledged_by, acknowledged_at, state, created_at`

// InsertOpen relies on idx_open_alert_pair: a second open alert for the same
// pair fails the insert and the existing one is returned instead.
func (q queries) InsertOpen(ctx context.Context, a stock.Alert) (stock.Alert, bool, error) {
	if a.State == "" {
		a.State = stock.LifecycleActive
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO stock_alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, 0, '', NULL, ?, ?)
	`, a.ID, a.IngredientID, a.Type, a.Message, a.Branch, a.State, formatTime(a.CreatedAt))
	if err == nil {
		return a, true, nil
	}
	if !isUniqueConstraintError(err) {
		return stock.Alert{}, false, fmt.Errorf("failed to insert alert: %w", err)
	}

	row := q.q.QueryRowContext(ctx, `
		SELECT `+alertColumns+` FROM stock_alerts
		WHERE ingredient_id = ? AND alert_type = ? AND acknowledged = 0 AND state = 'active'
	`, a.IngredientID, a.Type)
	existing, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return stock.Alert{}, false, fmt.Errorf("%w: alert %s", stock.ErrDuplicateID, a.ID)
		}
		return stock.Alert{}, false, err
	}
	return existing, false, nil
}

func (q queries) GetAlert(ctx context.Context, id stock.AlertID) (stock.Alert, error) {
	row := q.q.QueryRowContext(ctx,
		"SELECT "+alertColumns+" FROM stock_alerts WHERE id = ? AND state = 'active'", id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return stock.Alert{}, fmt.Errorf("%w: %s", stock.ErrAlertNotFound, id)
	}
	return a, err
}

func (q queries) Acknowledge(ctx context.Context, id stock.AlertID, actor string, at time.Time) (stock.Alert, error) {
	_, err := q.q.ExecContext(ctx, `
		UPDATE stock_alerts
		SET acknowledged = 1, acknowledged_by = ?, acknowledged_at = ?
		WHERE id = ? AND acknowledged = 0 AND state = 'active'
	`, actor, formatTime(at), id)
	if err != nil {
		return stock.Alert{}, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return q.GetAlert(ctx, id)
}

func (q queries) DeleteAlert(ctx context.Context, id stock.AlertID) error {
	res, err := q.q.ExecContext(ctx,
		"UPDATE stock_alerts SET state = ? WHERE id = ? AND state = 'active'",
		stock.LifecycleDeleted, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	return expectRow(res, fmt.Errorf("%w: %s", stock.ErrAlertNotFound, id))
}

func (q queries) ListOpen(ctx context.Context, filter stock.AlertFilter) ([]stock.Alert, error) {
	where := []string{"acknowledged = 0", "state = 'active'"}
	var args []any
	if filter.Branch != nil {
		where = append(where, "branch = ?")
		args = append(args, *filter.Branch)
	}
	if filter.IngredientID != "" {
		where = append(where, "ingredient_id = ?")
		args = append(args, filter.IngredientID)
	}

	rows, err := q.q.QueryContext(ctx, `
		SELECT `+alertColumns+` FROM stock_alerts
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY created_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var result []stock.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func scanAlert(row scanner) (stock.Alert, error) {
	var (
		a              stock.Alert
		acknowledged   int
		acknowledgedAt sql.NullString
		createdAt      string
	)
	err := row.Scan(&a.ID, &a.IngredientID, &a.Type, &a.Message, &a.Branch,
		&acknowledged, &a.AcknowledgedBy, &acknowledgedAt, &a.State, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("failed to scan alert: %w", err)
	}
	a.Acknowledged = acknowledged != 0
	if acknowledgedAt.Valid {
		t := parseTime(acknowledgedAt.String)
		a.AcknowledgedAt = &t
	}
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}
