/*
Package kitchen is the service surface of the stock engine.

PURPOSE:
  Wires the ledger, recipe resolver, consumption engine, alert engine and
  expiry sweeper over one store and exposes the operations a kitchen needs:
  record stock movements and sales, read balances and history, verify the
  ledger, and work the alert inbox. Catalog management with explicit
  cascades lives in catalog.go; read-side queries in queries.go.

WIRING:
  Every component shares one KeyedMutex, clock, ID generator, logger and
  observer, so a transfer, a sale and a direct adjustment on the same
  ingredient serialize against each other.

USAGE:
  svc := kitchen.New(store, store, kitchen.Config{Logger: logger})
  entry, balance, err := svc.ApplyStockTransaction(ctx, stock.ApplyRequest{...})

SEE ALSO:
  - stock/ledger.go: Apply and replay
  - stock/consumption.go: Sales to SALE entries
  - api/handlers.go: HTTP mapping of these operations
*/
package kitchen

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/stock"
	"go.uber.org/zap"
)

// Config carries the shared collaborators. Zero values get defaults.
type Config struct {
	Logger   *zap.Logger
	Clock    stock.Clock
	IDs      stock.IDGenerator
	Observer stock.Observer

	// ExpiryWindowDays nil means stock.DefaultExpiryWindowDays. Zero is a
	// valid window: only ingredients expiring today are EXPIRING_SOON.
	ExpiryWindowDays *int
	SweepParallelism int
}

type Service struct {
	store  stock.TxStore
	alerts stock.AlertStore

	ledger   *stock.Ledger
	resolver *stock.Resolver
	engine   *stock.Engine
	alerter  *stock.AlertEngine
	sweeper  *stock.Sweeper

	logger *zap.Logger
	clock  stock.Clock
	ids    stock.IDGenerator
}

func New(store stock.TxStore, alerts stock.AlertStore, cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = stock.SystemClock{}
	}
	if cfg.IDs == nil {
		cfg.IDs = stock.NewID
	}
	window := stock.DefaultExpiryWindowDays
	if cfg.ExpiryWindowDays != nil {
		window = *cfg.ExpiryWindowDays
	}

	opts := []stock.Option{
		stock.WithLogger(cfg.Logger),
		stock.WithClock(cfg.Clock),
		stock.WithIDGenerator(cfg.IDs),
		stock.WithObserver(cfg.Observer),
		stock.WithLocks(stock.NewKeyedMutex()),
		stock.WithExpiryWindow(window),
		stock.WithSweepParallelism(cfg.SweepParallelism),
	}
	alerter := stock.NewAlertEngine(store, alerts, opts...)
	ledger := stock.NewLedger(store, alerter, opts...)
	resolver := stock.NewResolver(store, opts...)

	return &Service{
		store:    store,
		alerts:   alerts,
		ledger:   ledger,
		resolver: resolver,
		engine:   stock.NewEngine(ledger, resolver, opts...),
		alerter:  alerter,
		sweeper:  stock.NewSweeper(store, alerter, opts...),
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		ids:      cfg.IDs,
	}
}

// Today is the service's current date.
func (s *Service) Today() stock.Date {
	return stock.Today(s.clock)
}

// =============================================================================
// STOCK MOVEMENTS
// =============================================================================

// ApplyStockTransaction records one movement and returns the entry and the
// new balance.
func (s *Service) ApplyStockTransaction(ctx context.Context, req stock.ApplyRequest) (stock.Entry, decimal.Decimal, error) {
	entry, err := s.ledger.Apply(ctx, req)
	if err != nil {
		return stock.Entry{}, decimal.Zero, err
	}
	return entry, entry.NewStock, nil
}

// Transfer moves quantity from one ingredient row to another, typically the
// same item at two branches. Both entries commit together.
func (s *Service) Transfer(ctx context.Context, from, to stock.IngredientID, quantity decimal.Decimal, reason, actor string) ([]stock.Entry, error) {
	if from == to {
		return nil, &stock.ValidationError{Field: "to", Message: "must differ from source"}
	}
	ref := s.ids("transfer")
	return s.ledger.ApplyBatch(ctx, []stock.ApplyRequest{
		{
			IngredientID: from,
			Type:         stock.TxTransfer,
			Direction:    stock.DirectionOut,
			Quantity:     quantity,
			Reason:       reason,
			Actor:        actor,
			ReferenceID:  ref,
		},
		{
			IngredientID: to,
			Type:         stock.TxTransfer,
			Direction:    stock.DirectionIn,
			Quantity:     quantity,
			Reason:       reason,
			Actor:        actor,
			ReferenceID:  ref,
		},
	})
}

// =============================================================================
// SALES
// =============================================================================

// RecordSale consumes the recipe of one food and stores a one-item sale.
func (s *Service) RecordSale(ctx context.Context, foodID stock.FoodID, unitsSold int, sc stock.SaleContext) ([]stock.Entry, error) {
	if unitsSold <= 0 {
		return nil, &stock.ValidationError{Field: "units", Message: fmt.Sprintf("must be positive, got %d", unitsSold)}
	}
	food, err := s.activeFood(ctx, foodID)
	if err != nil {
		return nil, err
	}

	subtotal := food.Price.Mul(decimal.NewFromInt(int64(unitsSold)))
	sale := stock.Sale{
		ID:      stock.SaleID(s.ids("sale")),
		SoldAt:  s.clock.Now(),
		Total:   subtotal,
		Cashier: sc.Actor,
		Branch:  sc.Branch,
		Notes:   sc.Reason,
		Items: []stock.SaleItem{{
			FoodID:    food.ID,
			Quantity:  unitsSold,
			UnitPrice: food.Price,
			Subtotal:  subtotal,
		}},
	}
	return s.engine.ConsumeSale(ctx, sale, sc)
}

// RecordSaleTicket stores a multi-item sale and consumes every recipe on it.
// Zero subtotals and totals are computed; supplied ones must add up.
func (s *Service) RecordSaleTicket(ctx context.Context, sale stock.Sale, sc stock.SaleContext) (stock.Sale, []stock.Entry, error) {
	sale, err := s.priceSale(sale)
	if err != nil {
		return stock.Sale{}, nil, err
	}
	if sale.ID == "" {
		sale.ID = stock.SaleID(s.ids("sale"))
	}
	if sale.SoldAt.IsZero() {
		sale.SoldAt = s.clock.Now()
	}
	if sale.Cashier == "" {
		sale.Cashier = sc.Actor
	}
	if sale.Branch == "" {
		sale.Branch = sc.Branch
	}
	if sc.Branch == "" {
		sc.Branch = sale.Branch
	}

	entries, err := s.engine.ConsumeSale(ctx, sale, sc)
	if err != nil {
		return stock.Sale{}, nil, err
	}
	s.logger.Info("sale recorded",
		zap.String("sale_id", string(sale.ID)),
		zap.Int("items", len(sale.Items)),
		zap.Stringer("total", sale.Total),
		zap.Int("entries", len(entries)))
	return sale, entries, nil
}

func (s *Service) priceSale(sale stock.Sale) (stock.Sale, error) {
	if len(sale.Items) == 0 {
		return sale, fmt.Errorf("%w: at least one item is required", stock.ErrInvalidSale)
	}
	items := make([]stock.SaleItem, len(sale.Items))
	total := decimal.Zero
	for i, item := range sale.Items {
		if item.FoodID == "" {
			return sale, fmt.Errorf("%w: items[%d] has no food", stock.ErrInvalidSale, i)
		}
		if item.Quantity <= 0 {
			return sale, fmt.Errorf("%w: items[%d] quantity must be positive", stock.ErrInvalidSale, i)
		}
		if item.UnitPrice.IsNegative() {
			return sale, fmt.Errorf("%w: items[%d] unit price is negative", stock.ErrInvalidSale, i)
		}
		want := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if item.Subtotal.IsZero() {
			item.Subtotal = want
		} else if !item.Subtotal.Equal(want) {
			return sale, fmt.Errorf("%w: items[%d] subtotal %s, expected %s", stock.ErrInvalidSale, i, item.Subtotal, want)
		}
		items[i] = item
		total = total.Add(item.Subtotal)
	}
	if sale.Total.IsZero() {
		sale.Total = total
	} else if !sale.Total.Equal(total) {
		return sale, fmt.Errorf("%w: total %s, items add up to %s", stock.ErrInvalidSale, sale.Total, total)
	}
	sale.Items = items
	return sale, nil
}

func (s *Service) GetSale(ctx context.Context, id stock.SaleID) (stock.Sale, error) {
	return s.store.GetSale(ctx, id)
}

// =============================================================================
// BALANCES & HISTORY
// =============================================================================

func (s *Service) GetCurrentStock(ctx context.Context, id stock.IngredientID) (decimal.Decimal, error) {
	ing, err := s.ledger.Balance(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return ing.CurrentStock, nil
}

func (s *Service) History(ctx context.Context, id stock.IngredientID) ([]stock.Entry, error) {
	return s.ledger.History(ctx, id)
}

func (s *Service) HistoryByType(ctx context.Context, id stock.IngredientID, t stock.TxType) ([]stock.Entry, error) {
	return s.ledger.HistoryByType(ctx, id, t)
}

// VerifyLedger replays an ingredient's entries against its stored balance.
func (s *Service) VerifyLedger(ctx context.Context, id stock.IngredientID) (stock.ReplayResult, error) {
	result, err := s.ledger.Replay(ctx, id)
	if err != nil {
		s.logger.Error("ledger verification failed",
			zap.String("ingredient_id", string(id)),
			zap.Error(err))
	}
	return result, err
}

// =============================================================================
// ALERTS
// =============================================================================

// ListUnacknowledgedAlerts returns open alerts, optionally for one branch.
func (s *Service) ListUnacknowledgedAlerts(ctx context.Context, branch *string) ([]stock.Alert, error) {
	return s.alerts.ListOpen(ctx, stock.AlertFilter{Branch: branch})
}

// AcknowledgeAlert closes an alert. Repeating it returns the alert unchanged.
func (s *Service) AcknowledgeAlert(ctx context.Context, id stock.AlertID, actor string) (stock.Alert, error) {
	alert, err := s.alerts.Acknowledge(ctx, id, actor, s.clock.Now())
	if err != nil {
		return stock.Alert{}, err
	}
	s.logger.Info("alert acknowledged",
		zap.String("alert_id", string(id)),
		zap.String("actor", alert.AcknowledgedBy))
	return alert, nil
}

// ExpiryWindow is the EXPIRING_SOON horizon in days.
func (s *Service) ExpiryWindow() int {
	return s.alerter.Window()
}

// RunExpirySweep raises expiry alerts for every ingredient as of asOf.
func (s *Service) RunExpirySweep(ctx context.Context, asOf stock.Date) (stock.SweepReport, error) {
	return s.sweeper.Run(ctx, asOf)
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}
