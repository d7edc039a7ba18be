/*
Package stock provides the core stock ledger engine for a restaurant kitchen.

PURPOSE:
  This package contains the types and algorithms that keep an ingredient's
  on-hand quantity correct. Every change to a balance goes through the ledger
  as an immutable entry; sales are turned into ingredient consumption through
  recipes; alerts fire when a balance or expiry date crosses a threshold.

KEY CONCEPTS IN THIS FILE (types.go):
  - Ingredient: A stocked item with a running balance and alert thresholds
  - Entry: An immutable ledger record of one balance change
  - TxType/Direction: What caused a change and which way it moved stock
  - Food/RecipeLine: A sellable item and the ingredients one unit consumes
  - Alert: A raised threshold or expiry notification

DESIGN PRINCIPLES:
  1. Append-only: Entries are never modified; the balance is their fold
  2. Precision: Uses decimal.Decimal, never float, for every quantity
  3. Type Safety: Distinct ID types prevent mixing ingredient/food/alert IDs
  4. Explicit lifecycle: Soft deletion is a state, not a boolean flag

USAGE:
  entry, err := ledger.Apply(ctx, stock.ApplyRequest{
      IngredientID: "ing-flour",
      Type:         stock.TxPurchase,
      Quantity:     decimal.NewFromInt(25),
      Reason:       "weekly delivery",
      Actor:        "chef",
  })

SEE ALSO:
  - ledger.go: Applying entries under per-ingredient locks
  - consumption.go: Turning sales into SALE entries
  - alert.go: Threshold and expiry classification
*/
package stock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type IngredientID string
type FoodID string
type EntryID string
type AlertID string
type SaleID string
type RecipeLineID string

// IDGenerator produces a new unique identifier with the given prefix.
type IDGenerator func(prefix string) string

// NewID returns a time-sortable identifier (UUID v7) with a readable prefix.
func NewID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "-" + id.String()
}

// MustParseDecimal parses s or returns zero. Intended for literals in tests
// and scenario data.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// LIFECYCLE - Soft deletion as an explicit state
// =============================================================================

type Lifecycle string

const (
	LifecycleActive  Lifecycle = "active"
	LifecycleDeleted Lifecycle = "deleted"
)

func (l Lifecycle) IsValid() bool {
	return l == LifecycleActive || l == LifecycleDeleted
}

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

type TxType string

const (
	TxPurchase   TxType = "PURCHASE"   // Stock received from a supplier
	TxSale       TxType = "SALE"       // Consumed by a recorded sale
	TxWaste      TxType = "WASTE"      // Spoiled, dropped, discarded
	TxAdjustment TxType = "ADJUSTMENT" // Signed correction after a count
	TxReturn     TxType = "RETURN"     // Returned into stock
	TxTransfer   TxType = "TRANSFER"   // Moved between locations
)

var txTypes = []TxType{TxPurchase, TxSale, TxWaste, TxAdjustment, TxReturn, TxTransfer}

// TxTypes returns every known transaction type.
func TxTypes() []TxType {
	out := make([]TxType, len(txTypes))
	copy(out, txTypes)
	return out
}

func (t TxType) IsValid() bool {
	for _, known := range txTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Direction only matters for TRANSFER entries.
type Direction string

const (
	DirectionOut Direction = "out"
	DirectionIn  Direction = "in"
)

// SignedDelta converts a supplied quantity into the signed balance change
// for the given type. ADJUSTMENT quantities are already signed.
func SignedDelta(t TxType, dir Direction, quantity decimal.Decimal) (decimal.Decimal, error) {
	switch t {
	case TxPurchase, TxReturn:
		return quantity, nil
	case TxSale, TxWaste:
		return quantity.Neg(), nil
	case TxAdjustment:
		return quantity, nil
	case TxTransfer:
		switch dir {
		case "", DirectionOut:
			return quantity.Neg(), nil
		case DirectionIn:
			return quantity, nil
		default:
			return decimal.Zero, &ValidationError{Field: "direction", Message: fmt.Sprintf("unknown direction %q", dir)}
		}
	default:
		return decimal.Zero, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown transaction type %q", t)}
	}
}

// =============================================================================
// INGREDIENT
// =============================================================================

// Ingredient is a stocked item. CurrentStock is owned by the ledger and only
// changes when an entry is appended; Version counts the entries applied.
type Ingredient struct {
	ID           IngredientID
	Name         string
	Description  string
	Category     string
	Unit         string
	CurrentStock decimal.Decimal
	MinimumStock decimal.Decimal
	ReorderLevel *decimal.Decimal
	CostPerUnit  decimal.Decimal
	ExpiryDate   *Date
	Branch       string
	State        Lifecycle
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (i Ingredient) IsDeleted() bool { return i.State == LifecycleDeleted }

// IsLow reports whether the balance is positive but below the minimum.
func (i Ingredient) IsLow() bool {
	return i.CurrentStock.IsPositive() && i.CurrentStock.LessThan(i.MinimumStock)
}

// IsOut reports whether nothing is left on hand.
func (i Ingredient) IsOut() bool {
	return i.CurrentStock.LessThanOrEqual(decimal.Zero)
}

// IngredientFilter narrows ListIngredients. Nil Branch means all branches.
type IngredientFilter struct {
	Branch         *string
	Category       string
	WithExpiryOnly bool
	IncludeDeleted bool
}

// Matches applies the filter to a single ingredient.
func (f IngredientFilter) Matches(i Ingredient) bool {
	if !f.IncludeDeleted && i.IsDeleted() {
		return false
	}
	if f.Branch != nil && i.Branch != *f.Branch {
		return false
	}
	if f.Category != "" && i.Category != f.Category {
		return false
	}
	if f.WithExpiryOnly && i.ExpiryDate == nil {
		return false
	}
	return true
}

// =============================================================================
// LEDGER ENTRY
// =============================================================================

// Entry is one immutable ledger record. Quantity is the value as supplied
// (signed only for ADJUSTMENT); Delta is the signed change actually applied.
// NewStock always equals PreviousStock + Delta.
type Entry struct {
	ID            EntryID
	IngredientID  IngredientID
	Type          TxType
	Direction     Direction
	Quantity      decimal.Decimal
	Delta         decimal.Decimal
	PreviousStock decimal.Decimal
	NewStock      decimal.Decimal
	Reason        string
	Actor         string
	Branch        string
	ReferenceID   string
	Sequence      int64
	CreatedAt     time.Time
}

// ApplyRequest is the input to Ledger.Apply.
type ApplyRequest struct {
	IngredientID IngredientID
	Type         TxType
	Direction    Direction
	Quantity     decimal.Decimal
	Reason       string
	Actor        string
	Branch       string
	ReferenceID  string
}

// Validate checks the request shape. It does not look at the balance.
func (r ApplyRequest) Validate() error {
	if r.IngredientID == "" {
		return &ValidationError{Field: "ingredient_id", Message: "required"}
	}
	if !r.Type.IsValid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown transaction type %q", r.Type)}
	}
	if r.Type == TxAdjustment {
		if r.Quantity.IsZero() {
			return &ValidationError{Field: "quantity", Message: "adjustment must be non-zero"}
		}
	} else if !r.Quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Message: fmt.Sprintf("must be positive, got %s", r.Quantity)}
	}
	if r.Direction != "" && r.Direction != DirectionIn && r.Direction != DirectionOut {
		return &ValidationError{Field: "direction", Message: fmt.Sprintf("unknown direction %q", r.Direction)}
	}
	return nil
}

// =============================================================================
// FOOD & RECIPE
// =============================================================================

type Food struct {
	ID                 FoodID
	Name               string
	Description        string
	Category           string
	Price              decimal.Decimal
	Available          bool
	PreparationMinutes int
	Branch             string
	State              Lifecycle
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (f Food) IsDeleted() bool { return f.State == LifecycleDeleted }

// RecipeLine is one ingredient requirement for a single unit of a food.
// Position keeps the order lines were written in.
type RecipeLine struct {
	ID           RecipeLineID
	FoodID       FoodID
	IngredientID IngredientID
	Quantity     decimal.Decimal
	Notes        string
	Position     int
	State        Lifecycle
	CreatedAt    time.Time
}

// Requirement is the resolved per-unit need for one ingredient.
type Requirement struct {
	IngredientID    IngredientID
	QuantityPerUnit decimal.Decimal
}

// =============================================================================
// SALE
// =============================================================================

type Sale struct {
	ID            SaleID
	SoldAt        time.Time
	Total         decimal.Decimal
	Cashier       string
	Branch        string
	PaymentMethod string
	Notes         string
	Items         []SaleItem
}

type SaleItem struct {
	FoodID    FoodID
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// SaleLine is one food and unit count fed to the consumption engine.
type SaleLine struct {
	FoodID FoodID
	Units  int
}

// SaleContext carries the audit fields stamped on every SALE entry.
type SaleContext struct {
	ReferenceID string
	Actor       string
	Branch      string
	Reason      string
}

// =============================================================================
// ALERTS
// =============================================================================

type AlertType string

const (
	AlertOutOfStock   AlertType = "OUT_OF_STOCK"
	AlertLowStock     AlertType = "LOW_STOCK"
	AlertExpired      AlertType = "EXPIRED"
	AlertExpiringSoon AlertType = "EXPIRING_SOON"
)

func (t AlertType) IsValid() bool {
	switch t {
	case AlertOutOfStock, AlertLowStock, AlertExpired, AlertExpiringSoon:
		return true
	}
	return false
}

// Alert is open while Acknowledged is false and State is active.
type Alert struct {
	ID             AlertID
	IngredientID   IngredientID
	Type           AlertType
	Message        string
	Branch         string
	Acknowledged   bool
	AcknowledgedBy string
	AcknowledgedAt *time.Time
	State          Lifecycle
	CreatedAt      time.Time
}

func (a Alert) IsOpen() bool {
	return !a.Acknowledged && a.State != LifecycleDeleted
}

// AlertFilter narrows ListOpen. Nil Branch means all branches.
type AlertFilter struct {
	Branch       *string
	IngredientID IngredientID
}

func (f AlertFilter) Matches(a Alert) bool {
	if !a.IsOpen() {
		return false
	}
	if f.Branch != nil && a.Branch != *f.Branch {
		return false
	}
	if f.IngredientID != "" && a.IngredientID != f.IngredientID {
		return false
	}
	return true
}
