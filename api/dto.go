/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in stock/ from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

QUANTITIES:
  Quantities and money are decimal strings on the way out ("12.5") and
  accept either strings or JSON numbers on the way in. Dates are
  YYYY-MM-DD; timestamps are RFC 3339.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/menu.go: Menu JSON used by scenarios
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/stock"
)

// =============================================================================
// INGREDIENTS
// =============================================================================

type IngredientDTO struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	Category     string           `json:"category,omitempty"`
	Unit         string           `json:"unit"`
	CurrentStock decimal.Decimal  `json:"current_stock"`
	MinimumStock decimal.Decimal  `json:"minimum_stock"`
	ReorderLevel *decimal.Decimal `json:"reorder_level,omitempty"`
	CostPerUnit  decimal.Decimal  `json:"cost_per_unit"`
	ExpiryDate   *stock.Date      `json:"expiry_date,omitempty"`
	Branch       string           `json:"branch,omitempty"`
	State        string           `json:"state"`
	Version      int64            `json:"version"`
	CreatedAt    string           `json:"created_at,omitempty"`
	UpdatedAt    string           `json:"updated_at,omitempty"`
}

// IngredientRequest creates or updates an ingredient. OpeningStock is only
// read on create.
type IngredientRequest struct {
	ID           string           `json:"id,omitempty"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	Category     string           `json:"category,omitempty"`
	Unit         string           `json:"unit"`
	OpeningStock decimal.Decimal  `json:"opening_stock"`
	MinimumStock decimal.Decimal  `json:"minimum_stock"`
	ReorderLevel *decimal.Decimal `json:"reorder_level,omitempty"`
	CostPerUnit  decimal.Decimal  `json:"cost_per_unit"`
	ExpiryDate   *stock.Date      `json:"expiry_date,omitempty"`
	Branch       string           `json:"branch,omitempty"`
}

func (r IngredientRequest) toDomain() stock.Ingredient {
	return stock.Ingredient{
		ID:           stock.IngredientID(r.ID),
		Name:         r.Name,
		Description:  r.Description,
		Category:     r.Category,
		Unit:         r.Unit,
		CurrentStock: r.OpeningStock,
		MinimumStock: r.MinimumStock,
		ReorderLevel: r.ReorderLevel,
		CostPerUnit:  r.CostPerUnit,
		ExpiryDate:   r.ExpiryDate,
		Branch:       r.Branch,
	}
}

// =============================================================================
// LEDGER
// =============================================================================

type EntryDTO struct {
	ID            string          `json:"id"`
	IngredientID  string          `json:"ingredient_id"`
	Type          string          `json:"type"`
	Direction     string          `json:"direction,omitempty"`
	Quantity      decimal.Decimal `json:"quantity"`
	Delta         decimal.Decimal `json:"delta"`
	PreviousStock decimal.Decimal `json:"previous_stock"`
	NewStock      decimal.Decimal `json:"new_stock"`
	Reason        string          `json:"reason,omitempty"`
	Actor         string          `json:"actor,omitempty"`
	Branch        string          `json:"branch,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	Sequence      int64           `json:"sequence"`
	CreatedAt     string          `json:"created_at"`
}

// StockTransactionRequest is one movement against an ingredient. The
// ingredient comes from the URL.
type StockTransactionRequest struct {
	Type        string          `json:"type"`
	Direction   string          `json:"direction,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Reason      string          `json:"reason,omitempty"`
	Branch      string          `json:"branch,omitempty"`
	ReferenceID string          `json:"reference_id,omitempty"`
}

type StockTransactionResponse struct {
	Entry        EntryDTO        `json:"entry"`
	CurrentStock decimal.Decimal `json:"current_stock"`
}

type TransferRequest struct {
	From     string          `json:"from"`
	To       string          `json:"to"`
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason,omitempty"`
}

type StockLevelDTO struct {
	IngredientID string          `json:"ingredient_id"`
	CurrentStock decimal.Decimal `json:"current_stock"`
}

type ReplayDTO struct {
	IngredientID string          `json:"ingredient_id"`
	Entries      int             `json:"entries"`
	Folded       decimal.Decimal `json:"folded"`
	Stored       decimal.Decimal `json:"stored"`
	Consistent   bool            `json:"consistent"`
}

// =============================================================================
// FOODS & RECIPES
// =============================================================================

type FoodDTO struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	Category           string          `json:"category,omitempty"`
	Price              decimal.Decimal `json:"price"`
	Available          bool            `json:"available"`
	PreparationMinutes int             `json:"preparation_minutes,omitempty"`
	Branch             string          `json:"branch,omitempty"`
	State              string          `json:"state"`
	Recipe             []RecipeLineDTO `json:"recipe,omitempty"`
}

type FoodRequest struct {
	ID                 string          `json:"id,omitempty"`
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	Category           string          `json:"category,omitempty"`
	Price              decimal.Decimal `json:"price"`
	Available          *bool           `json:"available,omitempty"`
	PreparationMinutes int             `json:"preparation_minutes,omitempty"`
	Branch             string          `json:"branch,omitempty"`
	Recipe             []RecipeLineDTO `json:"recipe,omitempty"`
}

func (r FoodRequest) toDomain() stock.Food {
	available := true
	if r.Available != nil {
		available = *r.Available
	}
	return stock.Food{
		ID:                 stock.FoodID(r.ID),
		Name:               r.Name,
		Description:        r.Description,
		Category:           r.Category,
		Price:              r.Price,
		Available:          available,
		PreparationMinutes: r.PreparationMinutes,
		Branch:             r.Branch,
	}
}

type RecipeLineDTO struct {
	ID           string          `json:"id,omitempty"`
	IngredientID string          `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	Notes        string          `json:"notes,omitempty"`
	Position     int             `json:"position,omitempty"`
}

type AvailabilityDTO struct {
	FoodID    string `json:"food_id"`
	Units     int    `json:"units"`
	Unlimited bool   `json:"unlimited"`
}

// =============================================================================
// SALES
// =============================================================================

// SaleRequest records units of one food at its list price.
type SaleRequest struct {
	FoodID string `json:"food_id"`
	Units  int    `json:"units"`
	Reason string `json:"reason,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// TicketRequest records a multi-item sale. Zero subtotals and total are
// computed from the items.
type TicketRequest struct {
	ID            string              `json:"id,omitempty"`
	Items         []TicketItemRequest `json:"items"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod string              `json:"payment_method,omitempty"`
	Notes         string              `json:"notes,omitempty"`
	Branch        string              `json:"branch,omitempty"`
}

type TicketItemRequest struct {
	FoodID    string          `json:"food_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type SaleDTO struct {
	ID            string          `json:"id"`
	SoldAt        string          `json:"sold_at"`
	Total         decimal.Decimal `json:"total"`
	Cashier       string          `json:"cashier,omitempty"`
	Branch        string          `json:"branch,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Items         []SaleItemDTO   `json:"items"`
}

type SaleItemDTO struct {
	FoodID    string          `json:"food_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type SaleResponse struct {
	Sale    *SaleDTO   `json:"sale,omitempty"`
	Entries []EntryDTO `json:"entries"`
}

// =============================================================================
// ALERTS
// =============================================================================

type AlertDTO struct {
	ID             string  `json:"id"`
	IngredientID   string  `json:"ingredient_id"`
	Type           string  `json:"type"`
	Message        string  `json:"message"`
	Branch         string  `json:"branch,omitempty"`
	Acknowledged   bool    `json:"acknowledged"`
	AcknowledgedBy string  `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *string `json:"acknowledged_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

type SweepRequest struct {
	AsOf *stock.Date `json:"as_of,omitempty"`
}

type SweepReportDTO struct {
	AsOf    stock.Date `json:"as_of"`
	Scanned int        `json:"scanned"`
	Raised  []AlertDTO `json:"raised"`
	Failed  int        `json:"failed"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response. Shortfalls is set when a
// sale could not be covered.
type ErrorResponse struct {
	Error      string         `json:"error"`
	Details    any            `json:"details,omitempty"`
	Shortfalls []ShortfallDTO `json:"shortfalls,omitempty"`
}

type ShortfallDTO struct {
	IngredientID string          `json:"ingredient_id"`
	Name         string          `json:"name,omitempty"`
	Required     decimal.Decimal `json:"required"`
	Available    decimal.Decimal `json:"available"`
	Missing      decimal.Decimal `json:"missing"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toIngredientDTO(ing stock.Ingredient) IngredientDTO {
	return IngredientDTO{
		ID:           string(ing.ID),
		Name:         ing.Name,
		Description:  ing.Description,
		Category:     ing.Category,
		Unit:         ing.Unit,
		CurrentStock: ing.CurrentStock,
		MinimumStock: ing.MinimumStock,
		ReorderLevel: ing.ReorderLevel,
		CostPerUnit:  ing.CostPerUnit,
		ExpiryDate:   ing.ExpiryDate,
		Branch:       ing.Branch,
		State:        string(ing.State),
		Version:      ing.Version,
		CreatedAt:    formatTime(ing.CreatedAt),
		UpdatedAt:    formatTime(ing.UpdatedAt),
	}
}

func toIngredientDTOs(ings []stock.Ingredient) []IngredientDTO {
	dtos := make([]IngredientDTO, len(ings))
	for i, ing := range ings {
		dtos[i] = toIngredientDTO(ing)
	}
	return dtos
}

func toEntryDTO(e stock.Entry) EntryDTO {
	return EntryDTO{
		ID:            string(e.ID),
		IngredientID:  string(e.IngredientID),
		Type:          string(e.Type),
		Direction:     string(e.Direction),
		Quantity:      e.Quantity,
		Delta:         e.Delta,
		PreviousStock: e.PreviousStock,
		NewStock:      e.NewStock,
		Reason:        e.Reason,
		Actor:         e.Actor,
		Branch:        e.Branch,
		ReferenceID:   e.ReferenceID,
		Sequence:      e.Sequence,
		CreatedAt:     formatTime(e.CreatedAt),
	}
}

func toEntryDTOs(entries []stock.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toFoodDTO(f stock.Food, recipe []stock.RecipeLine) FoodDTO {
	dto := FoodDTO{
		ID:                 string(f.ID),
		Name:               f.Name,
		Description:        f.Description,
		Category:           f.Category,
		Price:              f.Price,
		Available:          f.Available,
		PreparationMinutes: f.PreparationMinutes,
		Branch:             f.Branch,
		State:              string(f.State),
	}
	if len(recipe) > 0 {
		dto.Recipe = toRecipeLineDTOs(recipe)
	}
	return dto
}

func toRecipeLineDTOs(lines []stock.RecipeLine) []RecipeLineDTO {
	dtos := make([]RecipeLineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = RecipeLineDTO{
			ID:           string(l.ID),
			IngredientID: string(l.IngredientID),
			Quantity:     l.Quantity,
			Notes:        l.Notes,
			Position:     l.Position,
		}
	}
	return dtos
}

func fromRecipeLineDTOs(dtos []RecipeLineDTO) []stock.RecipeLine {
	lines := make([]stock.RecipeLine, len(dtos))
	for i, d := range dtos {
		lines[i] = stock.RecipeLine{
			IngredientID: stock.IngredientID(d.IngredientID),
			Quantity:     d.Quantity,
			Notes:        d.Notes,
		}
	}
	return lines
}

func toSaleDTO(s stock.Sale) *SaleDTO {
	items := make([]SaleItemDTO, len(s.Items))
	for i, it := range s.Items {
		items[i] = SaleItemDTO{
			FoodID:    string(it.FoodID),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal,
		}
	}
	return &SaleDTO{
		ID:            string(s.ID),
		SoldAt:        formatTime(s.SoldAt),
		Total:         s.Total,
		Cashier:       s.Cashier,
		Branch:        s.Branch,
		PaymentMethod: s.PaymentMethod,
		Notes:         s.Notes,
		Items:         items,
	}
}

func toAlertDTO(a stock.Alert) AlertDTO {
	dto := AlertDTO{
		ID:             string(a.ID),
		IngredientID:   string(a.IngredientID),
		Type:           string(a.Type),
		Message:        a.Message,
		Branch:         a.Branch,
		Acknowledged:   a.Acknowledged,
		AcknowledgedBy: a.AcknowledgedBy,
		CreatedAt:      formatTime(a.CreatedAt),
	}
	if a.AcknowledgedAt != nil {
		at := formatTime(*a.AcknowledgedAt)
		dto.AcknowledgedAt = &at
	}
	return dto
}

func toAlertDTOs(alerts []stock.Alert) []AlertDTO {
	dtos := make([]AlertDTO, len(alerts))
	for i, a := range alerts {
		dtos[i] = toAlertDTO(a)
	}
	return dtos
}

func toSweepReportDTO(r stock.SweepReport) SweepReportDTO {
	return SweepReportDTO{
		AsOf:    r.AsOf,
		Scanned: r.Scanned,
		Raised:  toAlertDTOs(r.Raised),
		Failed:  r.Failed,
	}
}

func toShortfallDTOs(shortfalls []stock.Shortfall) []ShortfallDTO {
	dtos := make([]ShortfallDTO, len(shortfalls))
	for i, s := range shortfalls {
		dtos[i] = ShortfallDTO{
			IngredientID: string(s.IngredientID),
			Name:         s.Name,
			Required:     s.Required,
			Available:    s.Available,
			Missing:      s.Missing(),
		}
	}
	return dtos
}
