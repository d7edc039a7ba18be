/*
handlers.go - HTTP API handlers for the stock engine

PURPOSE:
  Exposes the kitchen service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to kitchen.Service.

ENDPOINTS:
  Ingredients:
    GET    /api/ingredients                     List (branch, category, include_deleted)
    POST   /api/ingredients                     Create with opening stock
    GET    /api/ingredients/{id}                Get one
    PUT    /api/ingredients/{id}                Update descriptive fields
    DELETE /api/ingredients/{id}                Soft delete, cascades recipe lines
    GET    /api/ingredients/{id}/stock          Current balance
    GET    /api/ingredients/{id}/transactions   Ledger history (type filter)
    POST   /api/ingredients/{id}/transactions   Apply one stock movement
    GET    /api/ingredients/{id}/verify         Replay ledger against balance

  Stock queries:
    GET    /api/stock/low                       Low stock (branch)
    GET    /api/stock/out                       Out of stock (branch)
    GET    /api/stock/expiring                  Expiring between from and to
    GET    /api/stock/expired                   Expired as of a date
    POST   /api/stock/transfers                 Move stock between two rows

  Foods, recipes, sales: see handlers_sales.go

  Alerts:
    GET    /api/alerts                          Unacknowledged alerts (branch)
    POST   /api/alerts/{id}/acknowledge         Acknowledge, idempotent
    POST   /api/alerts/sweep                    Run the expiry sweep now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Insufficient stock (with shortfalls), duplicates, write conflicts
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/stock-engine/factory"
	"github.com/warp/stock-engine/kitchen"
	"github.com/warp/stock-engine/stock"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears a backing store. Scenarios reset every registered store
// before seeding.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service     *kitchen.Service
	MenuFactory *factory.MenuFactory
	Logger      *zap.Logger

	resetters []Resetter

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over svc. resetters are the stores cleared
// by /api/scenarios/reset.
func NewHandler(svc *kitchen.Service, logger *zap.Logger, resetters ...Resetter) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:     svc,
		MenuFactory: factory.NewMenuFactory(),
		Logger:      logger,
		resetters:   resetters,
	}
}

// =============================================================================
// INGREDIENT HANDLERS
// =============================================================================

// ListIngredients returns active ingredients, optionally filtered.
func (h *Handler) ListIngredients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := stock.IngredientFilter{
		Branch:         branchParam(r),
		Category:       q.Get("category"),
		IncludeDeleted: q.Get("include_deleted") == "true",
	}
	ings, err := h.Service.ListIngredients(r.Context(), filter)
	if err != nil {
		h.respondError(w, "Failed to list ingredients", err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientDTOs(ings))
}

// CreateIngredient creates an ingredient. A positive opening_stock is
// recorded as the first ledger entry.
func (h *Handler) CreateIngredient(w http.ResponseWriter, r *http.Request) {
	var req IngredientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Branch == "" {
		req.Branch = BranchFrom(r.Context())
	}

	ing, err := h.Service.CreateIngredient(r.Context(), req.toDomain(), ActorFrom(r.Context()))
	if err != nil {
		h.respondError(w, "Failed to create ingredient", err)
		return
	}
	writeJSON(w, http.StatusCreated, toIngredientDTO(ing))
}

// GetIngredient returns one ingredient, deleted ones included.
func (h *Handler) GetIngredient(w http.ResponseWriter, r *http.Request) {
	ing, err := h.Service.GetIngredient(r.Context(), ingredientParam(r))
	if err != nil {
		h.respondError(w, "Ingredient not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientDTO(ing))
}

// UpdateIngredient changes descriptive fields. opening_stock is ignored;
// balances only change through transactions.
func (h *Handler) UpdateIngredient(w http.ResponseWriter, r *http.Request) {
	var req IngredientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ing := req.toDomain()
	ing.ID = ingredientParam(r)

	updated, err := h.Service.UpdateIngredient(r.Context(), ing)
	if err != nil {
		h.respondError(w, "Failed to update ingredient", err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientDTO(updated))
}

// DeleteIngredient soft-deletes an ingredient and retires its recipe lines.
func (h *Handler) DeleteIngredient(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteIngredient(r.Context(), ingredientParam(r)); err != nil {
		h.respondError(w, "Failed to delete ingredient", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// STOCK HANDLERS
// =============================================================================

// GetStock returns the current balance of an ingredient.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	id := ingredientParam(r)
	balance, err := h.Service.GetCurrentStock(r.Context(), id)
	if err != nil {
		h.respondError(w, "Failed to read stock", err)
		return
	}
	writeJSON(w, http.StatusOK, StockLevelDTO{IngredientID: string(id), CurrentStock: balance})
}

// ApplyTransaction records one stock movement against an ingredient.
func (h *Handler) ApplyTransaction(w http.ResponseWriter, r *http.Request) {
	var req StockTransactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, balance, err := h.Service.ApplyStockTransaction(r.Context(), stock.ApplyRequest{
		IngredientID: ingredientParam(r),
		Type:         stock.TxType(strings.ToUpper(req.Type)),
		Direction:    stock.Direction(strings.ToLower(req.Direction)),
		Quantity:     req.Quantity,
		Reason:       req.Reason,
		Actor:        ActorFrom(r.Context()),
		Branch:       firstNonEmpty(req.Branch, BranchFrom(r.Context())),
		ReferenceID:  req.ReferenceID,
	})
	if err != nil {
		h.respondError(w, "Failed to apply transaction", err)
		return
	}
	writeJSON(w, http.StatusCreated, StockTransactionResponse{Entry: toEntryDTO(entry), CurrentStock: balance})
}

// GetTransactions returns the ledger history of an ingredient, oldest
// first. ?type= narrows it to one transaction type.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id := ingredientParam(r)
	var (
		entries []stock.Entry
		err     error
	)
	if t := r.URL.Query().Get("type"); t != "" {
		txType := stock.TxType(strings.ToUpper(t))
		if !txType.IsValid() {
			writeError(w, http.StatusBadRequest, "Unknown transaction type", errors.New(t))
			return
		}
		entries, err = h.Service.HistoryByType(r.Context(), id, txType)
	} else {
		entries, err = h.Service.History(r.Context(), id)
	}
	if err != nil {
		h.respondError(w, "Failed to load transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// VerifyLedger replays the ledger. A mismatch is reported in the body with
// consistent=false rather than as an error status.
func (h *Handler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.VerifyLedger(r.Context(), ingredientParam(r))
	if err != nil && !errors.Is(err, stock.ErrReplayMismatch) {
		h.respondError(w, "Failed to verify ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, ReplayDTO{
		IngredientID: string(result.IngredientID),
		Entries:      result.Entries,
		Folded:       result.Folded,
		Stored:       result.Stored,
		Consistent:   err == nil,
	})
}

// Transfer moves stock between two ingredient rows in one commit.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	entries, err := h.Service.Transfer(r.Context(),
		stock.IngredientID(req.From), stock.IngredientID(req.To),
		req.Quantity, req.Reason, ActorFrom(r.Context()))
	if err != nil {
		h.respondError(w, "Failed to transfer stock", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTOs(entries))
}

// LowStock lists ingredients below their minimum.
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	ings, err := h.Service.LowStock(r.Context(), branchParam(r))
	if err != nil {
		h.respondError(w, "Failed to list low stock", err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientDTOs(ings))
}

// OutOfStock lists ingredients with nothing on hand.
func (h *Handler) OutOfStock(w http.ResponseWriter, r *http.Request) {
	ings, err := h.Service.OutOfStock(r.Context(), branchParam(r))
	if err != nil {
		h.respondError(w, "Failed to list out of stock", err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientDTOs(ings))
}

// Expiring lists ingredients expiring in [from, to]. Defaults to today
// through the alert window.
func (h *Handler) Expiring(w http.ResponseWriter, r *http.Request) {
	today := h.Service.Today()
	from, ok := dateParam(w, r, "from", today)
	if !ok {
		return
	}
	to, ok := dateParam(w, r, "to", from.AddDays(h.Service.ExpiryWindow()))
	if !ok {
		return
	}
	ings, err := h.Service.Expiring(r.Context(), from, to)
	if err != nil {
		h.respondError(w, "Failed to list expiring stock", err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientDTOs(ings))
}

// Expired lists ingredients whose expiry date is before as_of (default today).
func (h *Handler) Expired(w http.ResponseWriter, r *http.Request) {
	asOf, ok := dateParam(w, r, "as_of", h.Service.Today())
	if !ok {
		return
	}
	ings, err := h.Service.Expired(r.Context(), asOf)
	if err != nil {
		h.respondError(w, "Failed to list expired stock", err)
		return
	}
	writeJSON(w, http.StatusOK, toIngredientDTOs(ings))
}

// =============================================================================
// ALERT HANDLERS
// =============================================================================

// ListAlerts returns unacknowledged alerts, oldest first.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Service.ListUnacknowledgedAlerts(r.Context(), branchParam(r))
	if err != nil {
		h.respondError(w, "Failed to list alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertDTOs(alerts))
}

// AcknowledgeAlert closes an alert. Acknowledging twice returns the alert
// as first acknowledged.
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id := stock.AlertID(chi.URLParam(r, "id"))
	alert, err := h.Service.AcknowledgeAlert(r.Context(), id, ActorFrom(r.Context()))
	if err != nil {
		h.respondError(w, "Failed to acknowledge alert", err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertDTO(alert))
}

// RunSweep runs the expiry sweep as of the given date (default today).
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}
	asOf := h.Service.Today()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}
	report, err := h.Service.RunExpirySweep(r.Context(), asOf)
	if err != nil {
		h.respondError(w, "Expiry sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepReportDTO(report))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// respondError maps a service error to its HTTP status. A failed sale
// carries every shortfall.
func (h *Handler) respondError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
	}

	resp := ErrorResponse{Error: message, Details: err.Error()}
	var failed *stock.ConsumptionFailedError
	if errors.As(err, &failed) {
		resp.Shortfalls = toShortfallDTOs(failed.Shortfalls)
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case stock.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, stock.ErrDuplicateID),
		stock.IsConflict(err),
		stock.IsRetryable(err):
		return http.StatusConflict
	case stock.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func ingredientParam(r *http.Request) stock.IngredientID {
	return stock.IngredientID(chi.URLParam(r, "id"))
}

// branchParam returns nil when ?branch is absent, meaning every branch.
func branchParam(r *http.Request) *string {
	q := r.URL.Query()
	if !q.Has("branch") {
		return nil
	}
	branch := q.Get("branch")
	return &branch
}

func dateParam(w http.ResponseWriter, r *http.Request, name string, fallback stock.Date) (stock.Date, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	d, err := stock.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name+" date", err)
		return stock.Date{}, false
	}
	return d, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
