package postgres

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stock-engine/stock"
)

// =============================================================================
// TABLE MODELS
// =============================================================================

type ingredientRow struct {
	ID           string              `gorm:"primaryKey;size:64"`
	Name         string              `gorm:"size:255;not null"`
	Description  string              `gorm:"not null;default:''"`
	Category     string              `gorm:"size:100;not null;default:''"`
	Unit         string              `gorm:"size:32;not null"`
	CurrentStock decimal.Decimal     `gorm:"type:numeric;not null;default:0"`
	MinimumStock decimal.Decimal     `gorm:"type:numeric;not null;default:0"`
	ReorderLevel decimal.NullDecimal `gorm:"type:numeric"`
	CostPerUnit  decimal.Decimal     `gorm:"type:numeric;not null;default:0"`
	ExpiryDate   *time.Time          `gorm:"type:date"`
	Branch       string              `gorm:"size:64;not null;default:'';index:idx_ingredients_branch"`
	State        string              `gorm:"size:16;not null;default:'active';index:idx_ingredients_branch"`
	Version      int64               `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ingredientRow) TableName() string { return "ingredients" }

// entryRow is append-only. Nothing in this package updates or deletes it.
type entryRow struct {
	ID            string          `gorm:"primaryKey;size:64"`
	IngredientID  string          `gorm:"size:64;not null;uniqueIndex:idx_stock_entries_sequence;index:idx_stock_entries_type"`
	TxType        string          `gorm:"size:16;not null;index:idx_stock_entries_type"`
	Direction     string          `gorm:"size:8;not null;default:''"`
	Quantity      decimal.Decimal `gorm:"type:numeric;not null"`
	Delta         decimal.Decimal `gorm:"type:numeric;not null"`
	PreviousStock decimal.Decimal `gorm:"type:numeric;not null"`
	NewStock      decimal.Decimal `gorm:"type:numeric;not null"`
	Reason        string          `gorm:"not null;default:''"`
	Actor         string          `gorm:"size:128;not null;default:''"`
	Branch        string          `gorm:"size:64;not null;default:''"`
	ReferenceID   string          `gorm:"size:128;not null;default:'';index"`
	Sequence      int64           `gorm:"not null;uniqueIndex:idx_stock_entries_sequence"`
	CreatedAt     time.Time
}

func (entryRow) TableName() string { return "stock_entries" }

type foodRow struct {
	ID                 string          `gorm:"primaryKey;size:64"`
	Name               string          `gorm:"size:255;not null"`
	Description        string          `gorm:"not null;default:''"`
	Category           string          `gorm:"size:100;not null;default:''"`
	Price              decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	Available          bool            `gorm:"not null"`
	PreparationMinutes int             `gorm:"not null;default:0"`
	Branch             string          `gorm:"size:64;not null;default:''"`
	State              string          `gorm:"size:16;not null;default:'active'"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (foodRow) TableName() string { return "foods" }

// An ingredient appears at most once among a food's active lines.
type recipeLineRow struct {
	ID           string          `gorm:"primaryKey;size:64"`
	FoodID       string          `gorm:"size:64;not null;uniqueIndex:idx_recipe_active_ingredient,where:state = 'active'"`
	IngredientID string          `gorm:"size:64;not null;uniqueIndex:idx_recipe_active_ingredient,where:state = 'active';index"`
	Quantity     decimal.Decimal `gorm:"type:numeric;not null"`
	Notes        string          `gorm:"not null;default:''"`
	Position     int             `gorm:"not null;default:0"`
	State        string          `gorm:"size:16;not null;default:'active'"`
	CreatedAt    time.Time
}

func (recipeLineRow) TableName() string { return "recipe_lines" }

type saleRow struct {
	ID            string          `gorm:"primaryKey;size:64"`
	SoldAt        time.Time       `gorm:"not null"`
	Total         decimal.Decimal `gorm:"type:numeric;not null"`
	Cashier       string          `gorm:"size:128;not null;default:''"`
	Branch        string          `gorm:"size:64;not null;default:''"`
	PaymentMethod string          `gorm:"size:32;not null;default:''"`
	Notes         string          `gorm:"not null;default:''"`
}

func (saleRow) TableName() string { return "sales" }

type saleItemRow struct {
	SaleID    string          `gorm:"primaryKey;size:64"`
	Position  int             `gorm:"primaryKey;autoIncrement:false"`
	FoodID    string          `gorm:"size:64;not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:numeric;not null"`
	Subtotal  decimal.Decimal `gorm:"type:numeric;not null"`
}

func (saleItemRow) TableName() string { return "sale_items" }

// At most one open alert per (ingredient, type).
type alertRow struct {
	ID             string `gorm:"primaryKey;size:64"`
	IngredientID   string `gorm:"size:64;not null;uniqueIndex:idx_open_alert_pair,where:acknowledged = false AND state = 'active'"`
	AlertType      string `gorm:"size:32;not null;uniqueIndex:idx_open_alert_pair,where:acknowledged = false AND state = 'active'"`
	Message        string `gorm:"not null"`
	Branch         string `gorm:"size:64;not null;default:''"`
	Acknowledged   bool   `gorm:"not null;default:false"`
	AcknowledgedBy string `gorm:"size:128;not null;default:''"`
	AcknowledgedAt *time.Time
	State          string `gorm:"size:16;not null;default:'active'"`
	CreatedAt      time.Time
}

func (alertRow) TableName() string { return "stock_alerts" }

// allModels is the AutoMigrate set, in dependency order.
var allModels = []any{
	&ingredientRow{},
	&entryRow{},
	&foodRow{},
	&recipeLineRow{},
	&saleRow{},
	&saleItemRow{},
	&alertRow{},
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toIngredientRow(ing stock.Ingredient) ingredientRow {
	row := ingredientRow{
		ID:           string(ing.ID),
		Name:         ing.Name,
		Description:  ing.Description,
		Category:     ing.Category,
		Unit:         ing.Unit,
		CurrentStock: ing.CurrentStock,
		MinimumStock: ing.MinimumStock,
		CostPerUnit:  ing.CostPerUnit,
		ExpiryDate:   dateToTime(ing.ExpiryDate),
		Branch:       ing.Branch,
		State:        string(ing.State),
		Version:      ing.Version,
		CreatedAt:    ing.CreatedAt.UTC(),
		UpdatedAt:    ing.UpdatedAt.UTC(),
	}
	if ing.ReorderLevel != nil {
		row.ReorderLevel = decimal.NewNullDecimal(*ing.ReorderLevel)
	}
	if row.State == "" {
		row.State = string(stock.LifecycleActive)
	}
	return row
}

func (r ingredientRow) toDomain() stock.Ingredient {
	ing := stock.Ingredient{
		ID:           stock.IngredientID(r.ID),
		Name:         r.Name,
		Description:  r.Description,
		Category:     r.Category,
		Unit:         r.Unit,
		CurrentStock: r.CurrentStock,
		MinimumStock: r.MinimumStock,
		CostPerUnit:  r.CostPerUnit,
		Branch:       r.Branch,
		State:        stock.Lifecycle(r.State),
		Version:      r.Version,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if r.ReorderLevel.Valid {
		d := r.ReorderLevel.Decimal
		ing.ReorderLevel = &d
	}
	if r.ExpiryDate != nil {
		d := stock.DateOf(*r.ExpiryDate)
		ing.ExpiryDate = &d
	}
	return ing
}

func toEntryRow(e stock.Entry) entryRow {
	return entryRow{
		ID:            string(e.ID),
		IngredientID:  string(e.IngredientID),
		TxType:        string(e.Type),
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
		CreatedAt:     e.CreatedAt.UTC(),
	}
}

func (r entryRow) toDomain() stock.Entry {
	return stock.Entry{
		ID:            stock.EntryID(r.ID),
		IngredientID:  stock.IngredientID(r.IngredientID),
		Type:          stock.TxType(r.TxType),
		Direction:     stock.Direction(r.Direction),
		Quantity:      r.Quantity,
		Delta:         r.Delta,
		PreviousStock: r.PreviousStock,
		NewStock:      r.NewStock,
		Reason:        r.Reason,
		Actor:         r.Actor,
		Branch:        r.Branch,
		ReferenceID:   r.ReferenceID,
		Sequence:      r.Sequence,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func toFoodRow(f stock.Food) foodRow {
	row := foodRow{
		ID:                 string(f.ID),
		Name:               f.Name,
		Description:        f.Description,
		Category:           f.Category,
		Price:              f.Price,
		Available:          f.Available,
		PreparationMinutes: f.PreparationMinutes,
		Branch:             f.Branch,
		State:              string(f.State),
		CreatedAt:          f.CreatedAt.UTC(),
		UpdatedAt:          f.UpdatedAt.UTC(),
	}
	if row.State == "" {
		row.State = string(stock.LifecycleActive)
	}
	return row
}

func (r foodRow) toDomain() stock.Food {
	return stock.Food{
		ID:                 stock.FoodID(r.ID),
		Name:               r.Name,
		Description:        r.Description,
		Category:           r.Category,
		Price:              r.Price,
		Available:          r.Available,
		PreparationMinutes: r.PreparationMinutes,
		Branch:             r.Branch,
		State:              stock.Lifecycle(r.State),
		CreatedAt:          r.CreatedAt.UTC(),
		UpdatedAt:          r.UpdatedAt.UTC(),
	}
}

func (r recipeLineRow) toDomain() stock.RecipeLine {
	return stock.RecipeLine{
		ID:           stock.RecipeLineID(r.ID),
		FoodID:       stock.FoodID(r.FoodID),
		IngredientID: stock.IngredientID(r.IngredientID),
		Quantity:     r.Quantity,
		Notes:        r.Notes,
		Position:     r.Position,
		State:        stock.Lifecycle(r.State),
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func (r alertRow) toDomain() stock.Alert {
	a := stock.Alert{
		ID:             stock.AlertID(r.ID),
		IngredientID:   stock.IngredientID(r.IngredientID),
		Type:           stock.AlertType(r.AlertType),
		Message:        r.Message,
		Branch:         r.Branch,
		Acknowledged:   r.Acknowledged,
		AcknowledgedBy: r.AcknowledgedBy,
		State:          stock.Lifecycle(r.State),
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if r.AcknowledgedAt != nil {
		t := r.AcknowledgedAt.UTC()
		a.AcknowledgedAt = &t
	}
	return a
}

func dateToTime(d *stock.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
