/*
alert.go - Threshold and expiry alerting

PURPOSE:
  After every committed stock change, and periodically for expiry, an
  ingredient is classified against four rules. The first rule that matches
  produces an alert, unless an open alert of the same type is already
  outstanding for that ingredient.

PRIORITY (first match wins):
  1. OUT_OF_STOCK   currentStock <= 0
  2. LOW_STOCK      currentStock < minimumStock
  3. EXPIRED        expiryDate < today
  4. EXPIRING_SOON  today <= expiryDate <= today + window

IDEMPOTENCY:
  At most one open alert per (ingredient, type). AlertStore.InsertOpen is
  atomic, so two concurrent evaluations raise one alert. Alerts are never
  closed automatically; an operator acknowledges them.

SEE ALSO:
  - sweep.go: Periodic expiry evaluation
  - store.go: AlertStore contract
*/
package stock

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// CLASSIFICATION - Pure functions
// =============================================================================

// Classify returns the highest-priority alert type that applies.
func Classify(ing Ingredient, today Date, windowDays int) (AlertType, bool) {
	if ing.IsOut() {
		return AlertOutOfStock, true
	}
	if ing.CurrentStock.LessThan(ing.MinimumStock) {
		return AlertLowStock, true
	}
	return ClassifyExpiry(ing, today, windowDays)
}

// ClassifyExpiry applies the two expiry rules only.
func ClassifyExpiry(ing Ingredient, today Date, windowDays int) (AlertType, bool) {
	if ing.ExpiryDate == nil {
		return "", false
	}
	expiry := *ing.ExpiryDate
	if expiry.Before(today) {
		return AlertExpired, true
	}
	if expiry.BeforeOrEqual(today.AddDays(windowDays)) {
		return AlertExpiringSoon, true
	}
	return "", false
}

// AlertMessage renders the human-readable text for an alert.
func AlertMessage(t AlertType, ing Ingredient, today Date) string {
	switch t {
	case AlertOutOfStock:
		return fmt.Sprintf("%s is out of stock (0 %s)", ing.Name, ing.Unit)
	case AlertLowStock:
		return fmt.Sprintf("%s is low on stock: %s %s remaining, minimum is %s %s",
			ing.Name, ing.CurrentStock, ing.Unit, ing.MinimumStock, ing.Unit)
	case AlertExpired:
		return fmt.Sprintf("%s expired on %s", ing.Name, ing.ExpiryDate)
	case AlertExpiringSoon:
		return fmt.Sprintf("%s expires on %s (in %d days)", ing.Name, ing.ExpiryDate, today.DaysUntil(*ing.ExpiryDate))
	}
	return fmt.Sprintf("%s: %s", ing.Name, t)
}

// =============================================================================
// ALERT ENGINE
// =============================================================================

type AlertEngine struct {
	ingredients IngredientStore
	alerts      AlertStore
	opts        options
}

func NewAlertEngine(ingredients IngredientStore, alerts AlertStore, opts ...Option) *AlertEngine {
	return &AlertEngine{ingredients: ingredients, alerts: alerts, opts: buildOptions(opts)}
}

// Window returns the EXPIRING_SOON horizon in days.
func (e *AlertEngine) Window() int { return e.opts.window }

// Evaluate classifies the ingredient and raises an alert if a rule fires.
// Returns nil when nothing fired or an open alert of that type already exists.
func (e *AlertEngine) Evaluate(ctx context.Context, id IngredientID, today Date) (*Alert, error) {
	ing, err := e.ingredients.GetIngredient(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.evaluate(ctx, ing, today, false)
}

// EvaluateExpiry is Evaluate restricted to the expiry rules.
func (e *AlertEngine) EvaluateExpiry(ctx context.Context, ing Ingredient, today Date) (*Alert, error) {
	return e.evaluate(ctx, ing, today, true)
}

func (e *AlertEngine) evaluate(ctx context.Context, ing Ingredient, today Date, expiryOnly bool) (*Alert, error) {
	if ing.IsDeleted() {
		return nil, nil
	}

	var (
		t  AlertType
		ok bool
	)
	if expiryOnly {
		t, ok = ClassifyExpiry(ing, today, e.opts.window)
	} else {
		t, ok = Classify(ing, today, e.opts.window)
	}
	if !ok {
		return nil, nil
	}

	alert := Alert{
		ID:           AlertID(e.opts.ids("alert")),
		IngredientID: ing.ID,
		Type:         t,
		Message:      AlertMessage(t, ing, today),
		Branch:       ing.Branch,
		State:        LifecycleActive,
		CreatedAt:    e.opts.clock.Now(),
	}
	stored, created, err := e.alerts.InsertOpen(ctx, alert)
	if err != nil {
		return nil, fmt.Errorf("insert %s alert for %s: %w", t, ing.ID, err)
	}
	if !created {
		return nil, nil
	}

	e.opts.observer.AlertRaised(stored)
	e.opts.logger.Info("stock alert raised",
		zap.String("alert_id", string(stored.ID)),
		zap.String("ingredient_id", string(stored.IngredientID)),
		zap.String("type", string(stored.Type)),
		zap.String("message", stored.Message))
	return &stored, nil
}
