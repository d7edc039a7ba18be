/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the stores with realistic
  data for testing and demos. Each scenario loads one or more menus from
  factory presets and then drives the kitchen through a few operations.

AVAILABLE SCENARIOS:
  bistro:        Bistro menu only, basil already low
  busy-service:  Bistro menu after a lunch service, a delivery and a spill
  two-branches:  Bistro at "main", cafe at "downtown", a transfer between them
  expiry-check:  Cafe menu with milk and croissants about to expire, swept

HOW SCENARIOS WORK:
  1. Reset every registered store
  2. Parse menus via factory, relative to today
  3. Load ingredients (opening balances are ledgered) and foods
  4. Optionally record sales, purchases, waste or run the sweep

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "busy-service"}

NOTE:
  Scenarios reset the stores. Only use in development/demo environments.

SEE ALSO:
  - factory/presets.go: Menu JSON definitions
  - handlers.go: Handler and error mapping
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/warp/stock-engine/factory"
	"github.com/warp/stock-engine/stock"
	"go.uber.org/zap"
)

const scenarioActor = "scenario"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "bistro",
		Name:        "Bistro",
		Description: "Pizza, pasta and salad menu with shared ingredients",
	},
	{
		ID:          "busy-service",
		Name:        "Busy Service",
		Description: "Bistro after lunch: sales, a basil delivery and spoiled lettuce",
	},
	{
		ID:          "two-branches",
		Name:        "Two Branches",
		Description: "Bistro and cafe on separate branches with a stock transfer",
	},
	{
		ID:          "expiry-check",
		Name:        "Expiry Check",
		Description: "Cafe with perishables at their expiry date, swept for alerts",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the stores and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("%s", req.ScenarioID))
			return
		}
		h.respondError(w, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "scenario": req.ScenarioID})
}

// ResetDatabase clears every registered store.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		h.respondError(w, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var errUnknownScenario = errors.New("unknown scenario")

// LoadScenarioByID resets the stores and loads one scenario. It is also used
// by the server's -scenario flag.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	loaders := map[string]func(context.Context) error{
		"bistro":       h.loadBistroScenario,
		"busy-service": h.loadBusyServiceScenario,
		"two-branches": h.loadTwoBranchesScenario,
		"expiry-check": h.loadExpiryCheckScenario,
	}
	load, ok := loaders[id]
	if !ok {
		return errUnknownScenario
	}

	if err := h.reset(ctx); err != nil {
		return err
	}
	if err := load(ctx); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.Logger.Info("scenario loaded", zap.String("scenario", id))
	return nil
}

func (h *Handler) reset(ctx context.Context) error {
	for _, r := range h.resetters {
		if err := r.Reset(ctx); err != nil {
			return err
		}
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadMenu(ctx context.Context, menuJSON string) error {
	menu, err := h.MenuFactory.ParseMenu(menuJSON, h.Service.Today())
	if err != nil {
		return err
	}
	return menu.Load(ctx, h.Service, scenarioActor)
}

func (h *Handler) loadBistroScenario(ctx context.Context) error {
	return h.loadMenu(ctx, factory.BistroMenuJSON())
}

func (h *Handler) loadBusyServiceScenario(ctx context.Context) error {
	if err := h.loadMenu(ctx, factory.BistroMenuJSON()); err != nil {
		return err
	}
	sc := stock.SaleContext{Actor: "cashier", Branch: "main"}

	// Lunch: eight margheritas, five pastas, four salads on one ticket.
	if _, _, err := h.Service.RecordSaleTicket(ctx, stock.Sale{
		PaymentMethod: "card",
		Items: []stock.SaleItem{
			{FoodID: "margherita", Quantity: 8, UnitPrice: stock.MustParseDecimal("9.50")},
			{FoodID: "spaghetti-pomodoro", Quantity: 5, UnitPrice: stock.MustParseDecimal("11.00")},
			{FoodID: "caesar", Quantity: 4, UnitPrice: stock.MustParseDecimal("8.00")},
		},
	}, sc); err != nil {
		return err
	}

	// Basil delivery.
	if _, _, err := h.Service.ApplyStockTransaction(ctx, stock.ApplyRequest{
		IngredientID: "basil",
		Type:         stock.TxPurchase,
		Quantity:     stock.MustParseDecimal("6"),
		Reason:       "morning delivery",
		Actor:        "chef",
		ReferenceID:  "PO-1042",
	}); err != nil {
		return err
	}

	// Lettuce went limp in the walk-in.
	_, _, err := h.Service.ApplyStockTransaction(ctx, stock.ApplyRequest{
		IngredientID: "lettuce",
		Type:         stock.TxWaste,
		Quantity:     stock.MustParseDecimal("2.5"),
		Reason:       "spoiled",
		Actor:        "chef",
	})
	return err
}

func (h *Handler) loadTwoBranchesScenario(ctx context.Context) error {
	if err := h.loadMenu(ctx, factory.BistroMenuJSON()); err != nil {
		return err
	}
	if err := h.loadMenu(ctx, factory.CafeMenuJSON()); err != nil {
		return err
	}

	// The cafe keeps its own mozzarella row for toasties, stocked from main.
	if _, err := h.Service.CreateIngredient(ctx, stock.Ingredient{
		ID:           "mozzarella-downtown",
		Name:         "Mozzarella",
		Unit:         "kg",
		Category:     "dairy",
		MinimumStock: stock.MustParseDecimal("0.5"),
		Branch:       "downtown",
	}, scenarioActor); err != nil {
		return err
	}
	_, err := h.Service.Transfer(ctx, "mozzarella", "mozzarella-downtown",
		stock.MustParseDecimal("1.5"), "weekly top-up", "manager")
	return err
}

func (h *Handler) loadExpiryCheckScenario(ctx context.Context) error {
	if err := h.loadMenu(ctx, factory.CafeMenuJSON()); err != nil {
		return err
	}
	_, err := h.Service.RunExpirySweep(ctx, h.Service.Today())
	return err
}
