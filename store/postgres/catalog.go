package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/stock-engine/stock"
)

// =============================================================================
// INGREDIENTS
// =============================================================================

func (q queries) CreateIngredient(ctx context.Context, ing stock.Ingredient) error {
	row := toIngredientRow(ing)
	if err := q.with(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: ingredient %s", stock.ErrDuplicateID, ing.ID)
		}
		return fmt.Errorf("failed to insert ingredient: %w", err)
	}
	return nil
}

// UpdateIngredient never writes current_stock, version or state.
func (q queries) UpdateIngredient(ctx context.Context, ing stock.Ingredient) error {
	row := toIngredientRow(ing)
	res := q.with(ctx).Model(&ingredientRow{}).Where("id = ?", row.ID).Updates(map[string]any{
		"name":          row.Name,
		"description":   row.Description,
		"category":      row.Category,
		"unit":          row.Unit,
		"minimum_stock": row.MinimumStock,
		"reorder_level": row.ReorderLevel,
		"cost_per_unit": row.CostPerUnit,
		"expiry_date":   row.ExpiryDate,
		"branch":        row.Branch,
		"updated_at":    row.UpdatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update ingredient: %w", res.Error)
	}
	return expectRow(res, fmt.Errorf("%w: %s", stock.ErrIngredientNotFound, ing.ID))
}

func (q queries) SetIngredientState(ctx context.Context, id stock.IngredientID, state stock.Lifecycle, at time.Time) error {
	res := q.with(ctx).Model(&ingredientRow{}).Where("id = ?", string(id)).Updates(map[string]any{
		"state":      string(state),
		"updated_at": at.UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update ingredient state: %w", res.Error)
	}
	return expectRow(res, fmt.Errorf("%w: %s", stock.ErrIngredientNotFound, id))
}

func (q queries) GetIngredient(ctx context.Context, id stock.IngredientID) (stock.Ingredient, error) {
	var row ingredientRow
	if err := q.with(ctx).Where("id = ?", string(id)).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return stock.Ingredient{}, fmt.Errorf("%w: %s", stock.ErrIngredientNotFound, id)
		}
		return stock.Ingredient{}, fmt.Errorf("failed to get ingredient: %w", err)
	}
	return row.toDomain(), nil
}

func (q queries) ListIngredients(ctx context.Context, filter stock.IngredientFilter) ([]stock.Ingredient, error) {
	tx := q.with(ctx).Model(&ingredientRow{})
	if !filter.IncludeDeleted {
		tx = tx.Where("state = ?", string(stock.LifecycleActive))
	}
	if filter.Branch != nil {
		tx = tx.Where("branch = ?", *filter.Branch)
	}
	if filter.Category != "" {
		tx = tx.Where("category = ?", filter.Category)
	}
	if filter.WithExpiryOnly {
		tx = tx.Where("expiry_date IS NOT NULL")
	}

	var rows []ingredientRow
	if err := tx.Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query ingredients: %w", err)
	}
	result := make([]stock.Ingredient, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// =============================================================================
// FOODS
// =============================================================================

func (q queries) CreateFood(ctx context.Context, food stock.Food) error {
	row := toFoodRow(food)
	if err := q.with(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: food %s", stock.ErrDuplicateID, food.ID)
		}
		return fmt.Errorf("failed to insert food: %w", err)
	}
	return nil
}

func (q queries) UpdateFood(ctx context.Context, food stock.Food) error {
	res := q.with(ctx).Model(&foodRow{}).Where("id = ?", string(food.ID)).Updates(map[string]any{
		"name":                food.Name,
		"description":         food.Description,
		"category":            food.Category,
		"price":               food.Price,
		"available":           food.Available,
		"preparation_minutes": food.PreparationMinutes,
		"branch":              food.Branch,
		"updated_at":          food.UpdatedAt.UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update food: %w", res.Error)
	}
	return expectRow(res, fmt.Errorf("%w: %s", stock.ErrFoodNotFound, food.ID))
}

func (q queries) SetFoodState(ctx context.Context, id stock.FoodID, state stock.Lifecycle, at time.Time) error {
	res := q.with(ctx).Model(&foodRow{}).Where("id = ?", string(id)).Updates(map[string]any{
		"state":      string(state),
		"updated_at": at.UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update food state: %w", res.Error)
	}
	return expectRow(res, fmt.Errorf("%w: %s", stock.ErrFoodNotFound, id))
}

func (q queries) GetFood(ctx context.Context, id stock.FoodID) (stock.Food, error) {
	var row foodRow
	if err := q.with(ctx).Where("id = ?", string(id)).Take(&row).Error; err != nil {
		if isNotFound(err) {
			return stock.Food{}, fmt.Errorf("%w: %s", stock.ErrFoodNotFound, id)
		}
		return stock.Food{}, fmt.Errorf("failed to get food: %w", err)
	}
	return row.toDomain(), nil
}

func (q queries) ListFoods(ctx context.Context, includeDeleted bool) ([]stock.Food, error) {
	tx := q.with(ctx).Model(&foodRow{})
	if !includeDeleted {
		tx = tx.Where("state = ?", string(stock.LifecycleActive))
	}
	var rows []foodRow
	if err := tx.Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query foods: %w", err)
	}
	result := make([]stock.Food, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

// =============================================================================
// RECIPE LINES
// =============================================================================

func (q queries) RecipeLines(ctx context.Context, foodID stock.FoodID) ([]stock.RecipeLine, error) {
	return q.findRecipeLines(ctx, "food_id = ?", string(foodID), "position ASC, id ASC")
}

func (q queries) RecipeLinesByIngredient(ctx context.Context, id stock.IngredientID) ([]stock.RecipeLine, error) {
	return q.findRecipeLines(ctx, "ingredient_id = ?", string(id), "id ASC")
}

func (q queries) findRecipeLines(ctx context.Context, where string, arg any, order string) ([]stock.RecipeLine, error) {
	var rows []recipeLineRow
	err := q.with(ctx).
		Where(where, arg).
		Where("state = ?", string(stock.LifecycleActive)).
		Order(order).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recipe lines: %w", err)
	}
	result := make([]stock.RecipeLine, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (q queries) AddRecipeLine(ctx context.Context, line stock.RecipeLine) error {
	state := line.State
	if state == "" {
		state = stock.LifecycleActive
	}
	row := recipeLineRow{
		ID:           string(line.ID),
		FoodID:       string(line.FoodID),
		IngredientID: string(line.IngredientID),
		Quantity:     line.Quantity,
		Notes:        line.Notes,
		Position:     line.Position,
		State:        string(state),
		CreatedAt:    line.CreatedAt.UTC(),
	}
	if err := q.with(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return &stock.DuplicateIngredientError{FoodID: line.FoodID, IngredientID: line.IngredientID}
		}
		return fmt.Errorf("failed to insert recipe line: %w", err)
	}
	return nil
}

func (q queries) SetRecipeLineState(ctx context.Context, id stock.RecipeLineID, state stock.Lifecycle) error {
	res := q.with(ctx).Model(&recipeLineRow{}).Where("id = ?", string(id)).Update("state", string(state))
	if res.Error != nil {
		return fmt.Errorf("failed to update recipe line: %w", res.Error)
	}
	return expectRow(res, fmt.Errorf("%w: %s", stock.ErrRecipeLineNotFound, id))
}

// =============================================================================
// SALES
// =============================================================================

func (q queries) SaveSale(ctx context.Context, sale stock.Sale) error {
	header := saleRow{
		ID:            string(sale.ID),
		SoldAt:        sale.SoldAt.UTC(),
		Total:         sale.Total,
		Cashier:       sale.Cashier,
		Branch:        sale.Branch,
		PaymentMethod: sale.PaymentMethod,
		Notes:         sale.Notes,
	}
	if err := q.with(ctx).Create(&header).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: sale %s", stock.ErrDuplicateID, sale.ID)
		}
		return fmt.Errorf("failed to insert sale: %w", err)
	}
	if len(sale.Items) == 0 {
		return nil
	}

	items := make([]saleItemRow, 0, len(sale.Items))
	for i, item := range sale.Items {
		items = append(items, saleItemRow{
			SaleID:    string(sale.ID),
			Position:  i,
			FoodID:    string(item.FoodID),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}
	if err := q.with(ctx).Create(&items).Error; err != nil {
		return fmt.Errorf("failed to insert sale items: %w", err)
	}
	return nil
}

func (q queries) GetSale(ctx context.Context, id stock.SaleID) (stock.Sale, error) {
	var header saleRow
	if err := q.with(ctx).Where("id = ?", string(id)).Take(&header).Error; err != nil {
		if isNotFound(err) {
			return stock.Sale{}, fmt.Errorf("%w: %s", stock.ErrSaleNotFound, id)
		}
		return stock.Sale{}, fmt.Errorf("failed to get sale: %w", err)
	}

	var items []saleItemRow
	if err := q.with(ctx).Where("sale_id = ?", string(id)).Order("position ASC").Find(&items).Error; err != nil {
		return stock.Sale{}, fmt.Errorf("failed to query sale items: %w", err)
	}

	sale := stock.Sale{
		ID:            stock.SaleID(header.ID),
		SoldAt:        header.SoldAt.UTC(),
		Total:         header.Total,
		Cashier:       header.Cashier,
		Branch:        header.Branch,
		PaymentMethod: header.PaymentMethod,
		Notes:         header.Notes,
	}
	for _, item := range items {
		sale.Items = append(sale.Items, stock.SaleItem{
			FoodID:    stock.FoodID(item.FoodID),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}
	return sale, nil
}
