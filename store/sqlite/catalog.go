package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/stock-engine/stock"
)

// =============================================================================
// INGREDIENTS
// =============================================================================

const ingredientColumns = `id, name, description, category, unit, current_stock, minimum_stock,
	reorder_level, cost_per_unit, expiry_date, branch, state, version, created_at, updated_at`

func (q queries) CreateIngredient(ctx context.Context, ing stock.Ingredient) error {
	if ing.State == "" {
		ing.State = stock.LifecycleActive
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO ingredients (`+ingredientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ing.ID, ing.Name, ing.Description, ing.Category, ing.Unit,
		ing.CurrentStock.String(), ing.MinimumStock.String(),
		nullDecimal(ing.ReorderLevel), ing.CostPerUnit.String(),
		nullDate(ing.ExpiryDate), ing.Branch, ing.State, ing.Version,
		formatTime(ing.CreatedAt), formatTime(ing.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: ingredient %s", stock.ErrDuplicateID, ing.ID)
		}
		return fmt.Errorf("failed to insert ingredient: %w", err)
	}
	return nil
}

// UpdateIngredient never writes current_stock, version or state.
func (q queries) UpdateIngredient(ctx context.Context, ing stock.Ingredient) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE ingredients
		SET name = ?, description = ?, category = ?, unit = ?, minimum_stock = ?,
		    reorder_level = ?, cost_per_unit = ?, expiry_date = ?, branch = ?, updated_at = ?
		WHERE id = ?
	`,
		ing.Name, ing.Description, ing.Category, ing.Unit, ing.MinimumStock.String(),
		nullDecimal(ing.ReorderLevel), ing.CostPerUnit.String(), nullDate(ing.ExpiryDate),
		ing.Branch, formatTime(ing.UpdatedAt), ing.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update ingredient: %w", err)
	}
	return expectRow(res, fmt.Errorf("%w: %s", stock.ErrIngredientNotFound, ing.ID))
}

func (q queries) SetIngredientState(ctx context.Context, id stock.IngredientID, state stock.Lifecycle, at time.Time) error {
	res, err := q.q.ExecContext(ctx,
		"UPDATE ingredients SET state = ?, updated_at = ? WHERE id = ?",
		state, formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update ingredient state: %w", err)
	}
	return expectRow(res, fmt.Errorf("%w: %s", stock.ErrIngredientNotFound, id))
}

func (q queries) GetIngredient(ctx context.Context, id stock.IngredientID) (stock.Ingredient, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+ingredientColumns+" FROM ingredients WHERE id = ?", id)
	ing, err := scanIngredient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return stock.Ingredient{}, fmt.Errorf("%w: %s", stock.ErrIngredientNotFound, id)
	}
	return ing, err
}

func (q queries) ListIngredients(ctx context.Context, filter stock.IngredientFilter) ([]stock.Ingredient, error) {
	var (
		where []string
		args  []any
	)
	if !filter.IncludeDeleted {
		where = append(where, "state = ?")
		args = append(args, stock.LifecycleActive)
	}
	if filter.Branch != nil {
		where = append(where, "branch = ?")
		args = append(args, *filter.Branch)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.WithExpiryOnly {
		where = append(where, "expiry_date IS NOT NULL")
	}

	query := "SELECT " + ingredientColumns + " FROM ingredients"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name ASC, id ASC"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingredients: %w", err)
	}
	defer rows.Close()

	var result []stock.Ingredient
	for rows.Next() {
		ing, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ing)
	}
	return result, rows.Err()
}

func scanIngredient(row scanner) (stock.Ingredient, error) {
	var (
		ing          stock.Ingredient
		currentStock string
		minimumStock string
		reorderLevel sql.NullString
		costPerUnit  string
		expiryDate   sql.NullString
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(
		&ing.ID, &ing.Name, &ing.Description, &ing.Category, &ing.Unit,
		&currentStock, &minimumStock, &reorderLevel, &costPerUnit, &expiryDate,
		&ing.Branch, &ing.State, &ing.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ing, err
		}
		return ing, fmt.Errorf("failed to scan ingredient: %w", err)
	}

	ing.CurrentStock = parseDecimal(currentStock)
	ing.MinimumStock = parseDecimal(minimumStock)
	ing.CostPerUnit = parseDecimal(costPerUnit)
	if reorderLevel.Valid {
		d := parseDecimal(reorderLevel.String)
		ing.ReorderLevel = &d
	}
	if expiryDate.Valid {
		d, err := stock.ParseDate(expiryDate.String)
		if err == nil {
			ing.ExpiryDate = &d
		}
	}
	ing.CreatedAt = parseTime(createdAt)
	ing.UpdatedAt = parseTime(updatedAt)
	return ing, nil
}

// =============================================================================
// FOODS
// =============================================================================

const foodColumns = `id, name, description, category, price, available, preparation_minutes,
	branch, state, created_at, updated_at`

func (q queries) CreateFood(ctx context.Context, food stock.Food) error {
	if food.State == "" {
		food.State = stock.LifecycleActive
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO foods (`+foodColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		food.ID, food.Name, food.Description, food.Category, food.Price.String(),
		boolToInt(food.Available), food.PreparationMinutes, food.Branch, food.State,
		formatTime(food.CreatedAt), formatTime(food.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: food %s", stock.ErrDuplicateID, food.ID)
		}
		return fmt.Errorf("failed to insert food: %w", err)
	}
	return nil
}

func (q queries) UpdateFood(ctx context.Context, food stock.Food) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE foods
		SET name = ?, description = ?, category = ?, price = ?, available = ?,
		    preparation_minutes = ?, branch = ?, updated_at = ?
		WHERE id = ?
	`,
		food.Name, food.Description, food.Category, food.Price.String(), boolToInt(food.Available),
		food.PreparationMinutes, food.Branch, formatTime(food.UpdatedAt), food.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update food: %w", err)
	}
	return expectRow(res, fmt.Errorf("%w: %s", stock.ErrFoodNotFound, food.ID))
}

func (q queries) SetFoodState(ctx context.Context, id stock.FoodID, state stock.Lifecycle, at time.Time) error {
	res, err := q.q.ExecContext(ctx,
		"UPDATE foods SET state = ?, updated_at = ? WHERE id = ?",
		state, formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update food state: %w", err)
	}
	return expectRow(res, fmt.Errorf("%w: %s", stock.ErrFoodNotFound, id))
}

func (q queries) GetFood(ctx context.Context, id stock.FoodID) (stock.Food, error) {
	row := q.q.QueryRowContext(ctx, "SELECT "+foodColumns+" FROM foods WHERE id = ?", id)
	food, err := scanFood(row)
	if errors.Is(err, sql.ErrNoRows) {
		return stock.Food{}, fmt.Errorf("%w: %s", stock.ErrFoodNotFound, id)
	}
	return food, err
}

func (q queries) ListFoods(ctx context.Context, includeDeleted bool) ([]stock.Food, error) {
	query := "SELECT " + foodColumns + " FROM foods"
	var args []any
	if !includeDeleted {
		query += " WHERE state = ?"
		args = append(args, stock.LifecycleActive)
	}
	query += " ORDER BY name ASC, id ASC"

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query foods: %w", err)
	}
	defer rows.Close()

	var result []stock.Food
	for rows.Next() {
		food, err := scanFood(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, food)
	}
	return result, rows.Err()
}

func scanFood(row scanner) (stock.Food, error) {
	var (
		food      stock.Food
		price     string
		available int
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&food.ID, &food.Name, &food.Description, &food.Category, &price, &available,
		&food.PreparationMinutes, &food.Branch, &food.State, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return food, err
		}
		return food, fmt.Errorf("failed to scan food: %w", err)
	}
	food.Price = parseDecimal(price)
	food.Available = available != 0
	food.CreatedAt = parseTime(createdAt)
	food.UpdatedAt = parseTime(updatedAt)
	return food, nil
}

// =============================================================================
// RECIPE LINES
// =============================================================================

const recipeColumns = `id, food_id, ingredient_id, quantity, notes, position, state, created_at`

func (q queries) RecipeLines(ctx context.Context, foodID stock.FoodID) ([]stock.RecipeLine, error) {
	return q.queryRecipeLines(ctx, `
		SELECT `+recipeColumns+` FROM recipe_lines
		WHERE food_id = ? AND state = 'active'
		ORDER BY position ASC, id ASC
	`, foodID)
}

func (q queries) RecipeLinesByIngredient(ctx context.Context, id stock.IngredientID) ([]stock.RecipeLine, error) {
	return q.queryRecipeLines(ctx, `
		SELECT `+recipeColumns+` FROM recipe_lines
		WHERE ingredient_id = ? AND state = 'active'
		ORDER BY id ASC
	`, id)
}

func (q queries) AddRecipeLine(ctx context.Context, line stock.RecipeLine) error {
	if line.State == "" {
		line.State = stock.LifecycleActive
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO recipe_lines (`+recipeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		line.ID, line.FoodID, line.IngredientID, line.Quantity.String(), line.Notes,
		line.Position, line.State, formatTime(line.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &stock.DuplicateIngredientError{FoodID: line.FoodID, IngredientID: line.IngredientID}
		}
		return fmt.Errorf("failed to insert recipe line: %w", err)
	}
	return nil
}

func (q queries) SetRecipeLineState(ctx context.Context, id stock.RecipeLineID, state stock.Lifecycle) error {
	res, err := q.q.ExecContext(ctx, "UPDATE recipe_lines SET state = ? WHERE id = ?", state, id)
	if err != nil {
		return fmt.Errorf("failed to update recipe line: %w", err)
	}
	return expectRow(res, fmt.Errorf("%w: %s", stock.ErrRecipeLineNotFound, id))
}

func (q queries) queryRecipeLines(ctx context.Context, query string, args ...any) ([]stock.RecipeLine, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recipe lines: %w", err)
	}
	defer rows.Close()

	var result []stock.RecipeLine
	for rows.Next() {
		var (
			line      stock.RecipeLine
			quantity  string
			createdAt string
		)
		if err := rows.Scan(&line.ID, &line.FoodID, &line.IngredientID, &quantity,
			&line.Notes, &line.Position, &line.State, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan recipe line: %w", err)
		}
		line.Quantity = parseDecimal(quantity)
		line.CreatedAt = parseTime(createdAt)
		result = append(result, line)
	}
	return result, rows.Err()
}

// =============================================================================
// SALES
// =============================================================================

func (q queries) SaveSale(ctx context.Context, sale stock.Sale) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO sales (id, sold_at, total, cashier, branch, payment_method, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		sale.ID, formatTime(sale.SoldAt), sale.Total.String(), sale.Cashier,
		sale.Branch, sale.PaymentMethod, sale.Notes,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: sale %s", stock.ErrDuplicateID, sale.ID)
		}
		return fmt.Errorf("failed to insert sale: %w", err)
	}

	for i, item := range sale.Items {
		_, err := q.q.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, position, food_id, quantity, unit_price, subtotal)
			VALUES (?, ?, ?, ?, ?, ?)
		`, sale.ID, i, item.FoodID, item.Quantity, item.UnitPrice.String(), item.Subtotal.String())
		if err != nil {
			return fmt.Errorf("failed to insert sale item: %w", err)
		}
	}
	return nil
}

func (q queries) GetSale(ctx context.Context, id stock.SaleID) (stock.Sale, error) {
	var (
		sale   stock.Sale
		soldAt string
		total  string
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT id, sold_at, total, cashier, branch, payment_method, notes
		FROM sales WHERE id = ?
	`, id).Scan(&sale.ID, &soldAt, &total, &sale.Cashier, &sale.Branch, &sale.PaymentMethod, &sale.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return stock.Sale{}, fmt.Errorf("%w: %s", stock.ErrSaleNotFound, id)
	}
	if err != nil {
		return stock.Sale{}, fmt.Errorf("failed to get sale: %w", err)
	}
	sale.SoldAt = parseTime(soldAt)
	sale.Total = parseDecimal(total)

	rows, err := q.q.QueryContext(ctx, `
		SELECT food_id, quantity, unit_price, subtotal
		FROM sale_items WHERE sale_id = ? ORDER BY position ASC
	`, id)
	if err != nil {
		return stock.Sale{}, fmt.Errorf("failed to query sale items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item      stock.SaleItem
			unitPrice string
			subtotal  string
		)
		if err := rows.Scan(&item.FoodID, &item.Quantity, &unitPrice, &subtotal); err != nil {
			return stock.Sale{}, fmt.Errorf("failed to scan sale item: %w", err)
		}
		item.UnitPrice = parseDecimal(unitPrice)
		item.Subtotal = parseDecimal(subtotal)
		sale.Items = append(sale.Items, item)
	}
	return sale, rows.Err()
}

func expectRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
