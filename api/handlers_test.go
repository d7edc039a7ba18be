/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Ingredient creation, stock movements and history
- Sales: shortfall reporting, tickets, nothing written on failure
- Error status mapping
- Alerts: listing and idempotent acknowledgement
- Authentication: JWT and X-Actor
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/kitchen"
	"github.com/warp/stock-engine/observability"
	"github.com/warp/stock-engine/stock"
	"github.com/warp/stock-engine/stock/store"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type testServer struct {
	router  http.Handler
	service *kitchen.Service
	handler *Handler
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	mem := store.NewMemory()
	metrics := observability.NewMetrics(nil)
	svc := kitchen.New(mem, mem, kitchen.Config{
		Clock:    stock.FixedClock{At: testNow},
		Observer: metrics,
	})
	h := NewHandler(svc, nil, mem)
	router := NewRouter(h, RouterOptions{
		JWTSecret: secret,
		Metrics:   metrics.Handler(),
		Scheduler: NewSweepScheduler(svc, nil),
	})
	return &testServer{router: router, service: svc, handler: h}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createIngredient(t *testing.T, id, opening, minimum string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/ingredients", map[string]any{
		"id": id, "name": id, "unit": "kg",
		"opening_stock": opening, "minimum_stock": minimum, "branch": "main",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// INGREDIENTS & STOCK
// =============================================================================

func TestCreateIngredient_AndApplyPurchase(t *testing.T) {
	// GIVEN: an ingredient with an opening balance
	srv := newTestServer(t, "")
	srv.createIngredient(t, "flour", "10", "2")

	// WHEN: a purchase is applied
	rec := srv.do(t, http.MethodPost, "/api/ingredients/flour/transactions", map[string]any{
		"type": "purchase", "quantity": 5.5, "reason": "delivery",
	}, ActorHeader, "chef")

	// THEN: the entry and new balance come back
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[StockTransactionResponse](t, rec)
	assert.Equal(t, "PURCHASE", resp.Entry.Type)
	assert.Equal(t, "chef", resp.Entry.Actor)
	assert.Equal(t, "main", resp.Entry.Branch)
	assert.True(t, resp.CurrentStock.Equal(stock.MustParseDecimal("15.5")))

	// AND: the balance endpoint agrees
	level := decode[StockLevelDTO](t, srv.do(t, http.MethodGet, "/api/ingredients/flour/stock", nil))
	assert.True(t, level.CurrentStock.Equal(stock.MustParseDecimal("15.5")))

	// AND: history holds the opening balance then the purchase
	history := decode[[]EntryDTO](t, srv.do(t, http.MethodGet, "/api/ingredients/flour/transactions", nil))
	require.Len(t, history, 2)
	assert.Equal(t, "ADJUSTMENT", history[0].Type)
	assert.Equal(t, "PURCHASE", history[1].Type)

	purchases := decode[[]EntryDTO](t, srv.do(t, http.MethodGet, "/api/ingredients/flour/transactions?type=purchase", nil))
	assert.Len(t, purchases, 1)

	// AND: the ledger verifies
	replay := decode[ReplayDTO](t, srv.do(t, http.MethodGet, "/api/ingredients/flour/verify", nil))
	assert.True(t, replay.Consistent)
	assert.Equal(t, 2, replay.Entries)
}

func TestApplyTransaction_ErrorStatuses(t *testing.T) {
	srv := newTestServer(t, "")
	srv.createIngredient(t, "salt", "1", "0")

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{"unknown type", "/api/ingredients/salt/transactions", map[string]any{"type": "gift", "quantity": 1}, http.StatusBadRequest},
		{"zero quantity", "/api/ingredients/salt/transactions", map[string]any{"type": "WASTE", "quantity": 0}, http.StatusBadRequest},
		{"insufficient", "/api/ingredients/salt/transactions", map[string]any{"type": "WASTE", "quantity": 2}, http.StatusConflict},
		{"missing ingredient", "/api/ingredients/pepper/transactions", map[string]any{"type": "PURCHASE", "quantity": 1}, http.StatusNotFound},
		{"malformed body", "/api/ingredients/salt/transactions", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}

	// Nothing was written by the failures.
	level := decode[StockLevelDTO](t, srv.do(t, http.MethodGet, "/api/ingredients/salt/stock", nil))
	assert.True(t, level.CurrentStock.Equal(stock.MustParseDecimal("1")))
}

func TestCreateIngredient_DuplicateIsConflict(t *testing.T) {
	srv := newTestServer(t, "")
	srv.createIngredient(t, "rice", "1", "0")

	rec := srv.do(t, http.MethodPost, "/api/ingredients", map[string]any{"id": "rice", "name": "Rice", "unit": "kg"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTransfer(t *testing.T) {
	srv := newTestServer(t, "")
	srv.createIngredient(t, "oil-main", "4", "0")
	srv.createIngredient(t, "oil-annex", "0", "0")

	rec := srv.do(t, http.MethodPost, "/api/stock/transfers", map[string]any{
		"from": "oil-main", "to": "oil-annex", "quantity": "1.5",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	entries := decode[[]EntryDTO](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].ReferenceID, entries[1].ReferenceID)
	assert.Equal(t, "out", entries[0].Direction)
	assert.Equal(t, "in", entries[1].Direction)
}

func TestStockQueries(t *testing.T) {
	srv := newTestServer(t, "")
	srv.createIngredient(t, "eggs", "3", "5")
	srv.createIngredient(t, "cream", "0", "1")

	low := decode[[]IngredientDTO](t, srv.do(t, http.MethodGet, "/api/stock/low?branch=main", nil))
	require.Len(t, low, 1)
	assert.Equal(t, "eggs", low[0].ID)

	out := decode[[]IngredientDTO](t, srv.do(t, http.MethodGet, "/api/stock/out", nil))
	require.Len(t, out, 1)
	assert.Equal(t, "cream", out[0].ID)

	rec := srv.do(t, http.MethodGet, "/api/stock/expired?as_of=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SALES
// =============================================================================

func TestRecordSale_ShortfallListsEveryIngredient(t *testing.T) {
	// GIVEN: a food whose recipe needs more of two ingredients than exists
	srv := newTestServer(t, "")
	srv.createIngredient(t, "dough", "0.5", "0")
	srv.createIngredient(t, "cheese", "0.2", "0")
	srv.createIngredient(t, "sauce", "5", "0")
	rec := srv.do(t, http.MethodPost, "/api/foods", map[string]any{
		"id": "pizza", "name": "Pizza", "price": "9.50",
		"recipe": []map[string]any{
			{"ingredient_id": "dough", "quantity": "0.25"},
			{"ingredient_id": "cheese", "quantity": "0.1"},
			{"ingredient_id": "sauce", "quantity": "0.1"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: selling three
	rec = srv.do(t, http.MethodPost, "/api/sales", map[string]any{"food_id": "pizza", "units": 3})

	// THEN: 409 with both shortfalls
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	require.Len(t, resp.Shortfalls, 2)
	missing := map[string]string{}
	for _, s := range resp.Shortfalls {
		missing[s.IngredientID] = s.Missing.String()
	}
	assert.Equal(t, map[string]string{"dough": "0.25", "cheese": "0.1"}, missing)

	// AND: no SALE entry was written anywhere
	sales := decode[[]EntryDTO](t, srv.do(t, http.MethodGet, "/api/ingredients/sauce/transactions?type=SALE", nil))
	assert.Empty(t, sales)

	// WHEN: selling two fits
	rec = srv.do(t, http.MethodPost, "/api/sales", map[string]any{"food_id": "pizza", "units": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, decode[SaleResponse](t, rec).Entries, 3)
}

func TestRecordTicket_SavesSale(t *testing.T) {
	srv := newTestServer(t, "")
	srv.createIngredient(t, "beans", "1", "0")
	rec := srv.do(t, http.MethodPost, "/api/foods", map[string]any{
		"id": "espresso", "name": "Espresso", "price": "2.20",
		"recipe": []map[string]any{{"ingredient_id": "beans", "quantity": "0.018"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/sales/tickets", map[string]any{
		"id":    "ticket-1",
		"items": []map[string]any{{"food_id": "espresso", "quantity": 3, "unit_price": "2.20"}},
	}, ActorHeader, "barista")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[SaleResponse](t, rec)
	require.NotNil(t, resp.Sale)
	assert.Equal(t, "6.6", resp.Sale.Total.String())
	assert.Equal(t, "barista", resp.Sale.Cashier)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "ticket-1", resp.Entries[0].ReferenceID)

	got := decode[SaleDTO](t, srv.do(t, http.MethodGet, "/api/sales/ticket-1", nil))
	assert.Equal(t, "ticket-1", got.ID)

	// Totals that do not add up are rejected.
	rec = srv.do(t, http.MethodPost, "/api/sales/tickets", map[string]any{
		"items": []map[string]any{{"food_id": "espresso", "quantity": 1, "unit_price": "2.20"}},
		"total": "5.00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFoodAvailability(t *testing.T) {
	srv := newTestServer(t, "")
	srv.createIngredient(t, "bread", "7", "0")
	srv.do(t, http.MethodPost, "/api/foods", map[string]any{
		"id": "toast", "name": "Toast", "price": "3",
		"recipe": []map[string]any{{"ingredient_id": "bread", "quantity": "2"}},
	})
	srv.do(t, http.MethodPost, "/api/foods", map[string]any{"id": "water", "name": "Water", "price": "1"})

	toast := decode[AvailabilityDTO](t, srv.do(t, http.MethodGet, "/api/foods/toast/availability", nil))
	assert.Equal(t, 3, toast.Units)
	assert.False(t, toast.Unlimited)

	water := decode[AvailabilityDTO](t, srv.do(t, http.MethodGet, "/api/foods/water/availability", nil))
	assert.True(t, water.Unlimited)
}

// =============================================================================
// ALERTS
// =============================================================================

func TestAlerts_ListAndAcknowledge(t *testing.T) {
	// GIVEN: an ingredient that opens below its minimum
	srv := newTestServer(t, "")
	srv.createIngredient(t, "basil", "1", "2")

	alerts := decode[[]AlertDTO](t, srv.do(t, http.MethodGet, "/api/alerts", nil))
	require.Len(t, alerts, 1)
	assert.Equal(t, "LOW_STOCK", alerts[0].Type)

	// WHEN: acknowledging twice
	path := "/api/alerts/" + alerts[0].ID + "/acknowledge"
	first := srv.do(t, http.MethodPost, path, nil, ActorHeader, "manager")
	second := srv.do(t, http.MethodPost, path, nil, ActorHeader, "someone-else")

	// THEN: both succeed and the first acknowledgement sticks
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "manager", decode[AlertDTO](t, second).AcknowledgedBy)

	assert.Empty(t, decode[[]AlertDTO](t, srv.do(t, http.MethodGet, "/api/alerts", nil)))

	rec := srv.do(t, http.MethodPost, "/api/alerts/alert-missing/acknowledge", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunSweep(t *testing.T) {
	srv := newTestServer(t, "")
	expiry := stock.DateOf(testNow).AddDays(1)
	_, err := srv.service.CreateIngredient(context.Background(), stock.Ingredient{
		ID: "milk", Name: "Milk", Unit: "l",
		CurrentStock: stock.MustParseDecimal("10"), MinimumStock: stock.MustParseDecimal("1"),
		ExpiryDate: &expiry,
	}, "test")
	require.NoError(t, err)

	rec := srv.do(t, http.MethodPost, "/api/alerts/sweep", map[string]any{"as_of": expiry.AddDays(1).String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[SweepReportDTO](t, rec)
	assert.Equal(t, 1, report.Scanned)
	require.Len(t, report.Raised, 1)
	assert.Equal(t, "EXPIRED", report.Raised[0].Type)
}

// =============================================================================
// AUTH, SCENARIOS, METRICS
// =============================================================================

func TestAuthenticate_JWT(t *testing.T) {
	const secret = "test-secret"
	srv := newTestServer(t, secret)

	// No token
	rec := srv.do(t, http.MethodGet, "/api/ingredients", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Token signed with another secret
	bad, err := GenerateToken("other", "mallory", "", time.Hour)
	require.NoError(t, err)
	rec = srv.do(t, http.MethodGet, "/api/ingredients", nil, "Authorization", "Bearer "+bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token: subject becomes the actor, branch the default branch
	token, err := GenerateToken(secret, "alice", "downtown", time.Hour)
	require.NoError(t, err)
	rec = srv.do(t, http.MethodPost, "/api/ingredients", map[string]any{
		"id": "sugar", "name": "Sugar", "unit": "kg", "opening_stock": "2",
	}, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "downtown", decode[IngredientDTO](t, rec).Branch)

	history, err := srv.service.History(context.Background(), "sugar")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "alice", history[0].Actor)

	// Health stays open
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/healthz", nil).Code)
}

func TestScenarios_LoadBusyService(t *testing.T) {
	srv := newTestServer(t, "")

	rec := srv.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "busy-service"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	current := decode[ScenarioDTO](t, srv.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "busy-service", current.ID)

	// Lettuce: 6 opening, 4 salads x 0.5, 2.5 spoiled = 1.5, under its minimum of 2.
	level := decode[StockLevelDTO](t, srv.do(t, http.MethodGet, "/api/ingredients/lettuce/stock", nil))
	assert.Equal(t, "1.5", level.CurrentStock.String())

	alerts := decode[[]AlertDTO](t, srv.do(t, http.MethodGet, "/api/alerts?branch=main", nil))
	types := map[string][]string{}
	for _, a := range alerts {
		types[a.IngredientID] = append(types[a.IngredientID], a.Type)
	}
	assert.Equal(t, []string{"LOW_STOCK"}, types["lettuce"])
	// Basil was low at opening; once restocked its near expiry shows too.
	assert.ElementsMatch(t, []string{"LOW_STOCK", "EXPIRING_SOON"}, types["basil"])

	// Loading again starts from a clean slate.
	rec = srv.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "bistro"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	level = decode[StockLevelDTO](t, srv.do(t, http.MethodGet, "/api/ingredients/lettuce/stock", nil))
	assert.Equal(t, "6", level.CurrentStock.String())

	rec = srv.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenarios_AllLoad(t *testing.T) {
	srv := newTestServer(t, "")
	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			require.NoError(t, srv.handler.LoadScenarioByID(context.Background(), s.ID))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, "")
	srv.createIngredient(t, "flour", "1", "0")

	rec := srv.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `stock_ledger_applied_total{type="ADJUSTMENT"} 1`)
}
