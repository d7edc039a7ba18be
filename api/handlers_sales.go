package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warp/stock-engine/kitchen"
	"github.com/warp/stock-engine/stock"
)

// =============================================================================
// FOOD HANDLERS
// =============================================================================
//
//   GET    /api/foods                      List active foods
//   POST   /api/foods                      Create, optionally with recipe
//   GET    /api/foods/{id}                 Food with its active recipe
//   PUT    /api/foods/{id}                 Update descriptive fields and price
//   DELETE /api/foods/{id}                 Soft delete, retires recipe lines
//   GET    /api/foods/{id}/recipe          Active recipe lines
//   PUT    /api/foods/{id}/recipe          Replace the recipe
//   POST   /api/foods/{id}/recipe          Add one recipe line
//   GET    /api/foods/{id}/availability    Units current stock can cover

func (h *Handler) ListFoods(w http.ResponseWriter, r *http.Request) {
	foods, err := h.Service.ListFoods(r.Context())
	if err != nil {
		h.respondError(w, "Failed to list foods", err)
		return
	}
	dtos := make([]FoodDTO, len(foods))
	for i, f := range foods {
		dtos[i] = toFoodDTO(f, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateFood(w http.ResponseWriter, r *http.Request) {
	var req FoodRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	food := req.toDomain()
	if food.Branch == "" {
		food.Branch = BranchFrom(r.Context())
	}

	created, recipe, err := h.Service.CreateFood(r.Context(), food, fromRecipeLineDTOs(req.Recipe))
	if err != nil {
		h.respondError(w, "Failed to create food", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFoodDTO(created, recipe))
}

func (h *Handler) GetFood(w http.ResponseWriter, r *http.Request) {
	id := foodParam(r)
	food, err := h.Service.GetFood(r.Context(), id)
	if err != nil {
		h.respondError(w, "Food not found", err)
		return
	}
	var recipe []stock.RecipeLine
	if !food.IsDeleted() {
		if recipe, err = h.Service.Recipe(r.Context(), id); err != nil {
			h.respondError(w, "Failed to load recipe", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toFoodDTO(food, recipe))
}

func (h *Handler) UpdateFood(w http.ResponseWriter, r *http.Request) {
	var req FoodRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	food := req.toDomain()
	food.ID = foodParam(r)

	updated, err := h.Service.UpdateFood(r.Context(), food)
	if err != nil {
		h.respondError(w, "Failed to update food", err)
		return
	}
	writeJSON(w, http.StatusOK, toFoodDTO(updated, nil))
}

func (h *Handler) DeleteFood(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.DeleteFood(r.Context(), foodParam(r)); err != nil {
		h.respondError(w, "Failed to delete food", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetRecipe(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Service.Recipe(r.Context(), foodParam(r))
	if err != nil {
		h.respondError(w, "Failed to load recipe", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipeLineDTOs(lines))
}

// SetRecipe replaces the whole recipe. An empty list clears it.
func (h *Handler) SetRecipe(w http.ResponseWriter, r *http.Request) {
	var req []RecipeLineDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	lines, err := h.Service.SetRecipe(r.Context(), foodParam(r), fromRecipeLineDTOs(req))
	if err != nil {
		h.respondError(w, "Failed to set recipe", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecipeLineDTOs(lines))
}

func (h *Handler) AddRecipeLine(w http.ResponseWriter, r *http.Request) {
	var req RecipeLineDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	line, err := h.Service.AddRecipeLine(r.Context(), foodParam(r), fromRecipeLineDTOs([]RecipeLineDTO{req})[0])
	if err != nil {
		h.respondError(w, "Failed to add recipe line", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecipeLineDTOs([]stock.RecipeLine{line})[0])
}

func (h *Handler) FoodAvailability(w http.ResponseWriter, r *http.Request) {
	id := foodParam(r)
	units, err := h.Service.FoodAvailability(r.Context(), id)
	if err != nil {
		h.respondError(w, "Failed to compute availability", err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityDTO{
		FoodID:    string(id),
		Units:     units,
		Unlimited: units == kitchen.UnlimitedUnits,
	})
}

// =============================================================================
// SALE HANDLERS
// =============================================================================
//
//   POST   /api/sales             Sell units of one food at list price
//   POST   /api/sales/tickets     Record a multi-item ticket
//   GET    /api/sales/{id}        Sale header and items
//
// A sale that stock cannot cover returns 409 with every shortfall and
// writes nothing.

func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sc := stock.SaleContext{
		Actor:  ActorFrom(r.Context()),
		Branch: firstNonEmpty(req.Branch, BranchFrom(r.Context())),
		Reason: req.Reason,
	}

	entries, err := h.Service.RecordSale(r.Context(), stock.FoodID(req.FoodID), req.Units, sc)
	if err != nil {
		h.respondError(w, "Failed to record sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, SaleResponse{Entries: toEntryDTOs(entries)})
}

func (h *Handler) RecordTicket(w http.ResponseWriter, r *http.Request) {
	var req TicketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sale := stock.Sale{
		ID:            stock.SaleID(req.ID),
		Total:         req.Total,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
		Branch:        firstNonEmpty(req.Branch, BranchFrom(r.Context())),
	}
	for _, item := range req.Items {
		sale.Items = append(sale.Items, stock.SaleItem{
			FoodID:    stock.FoodID(item.FoodID),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}
	sc := stock.SaleContext{Actor: ActorFrom(r.Context()), Branch: sale.Branch, Reason: req.Notes}

	saved, entries, err := h.Service.RecordSaleTicket(r.Context(), sale, sc)
	if err != nil {
		h.respondError(w, "Failed to record sale", err)
		return
	}
	writeJSON(w, http.StatusCreated, SaleResponse{Sale: toSaleDTO(saved), Entries: toEntryDTOs(entries)})
}

func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.Service.GetSale(r.Context(), stock.SaleID(chi.URLParam(r, "id")))
	if err != nil {
		h.respondError(w, "Sale not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toSaleDTO(sale))
}

func foodParam(r *http.Request) stock.FoodID {
	return stock.FoodID(chi.URLParam(r, "id"))
}
