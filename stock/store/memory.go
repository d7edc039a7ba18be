// Package store provides the in-memory Store implementation.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/stock-engine/stock"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements stock.TxStore and stock.AlertStore. Alerts live behind
// their own mutex so alert traffic never waits on a ledger transaction.
type Memory struct {
	mu   sync.RWMutex
	data *memoryData

	amu    sync.Mutex
	alerts map[stock.AlertID]stock.Alert
	open   map[openKey]stock.AlertID
}

type openKey struct {
	IngredientID stock.IngredientID
	Type         stock.AlertType
}

func NewMemory() *Memory {
	return &Memory{
		data:   newMemoryData(),
		alerts: make(map[stock.AlertID]stock.Alert),
		open:   make(map[openKey]stock.AlertID),
	}
}

// Reset drops every row.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	m.data = newMemoryData()
	m.mu.Unlock()

	m.amu.Lock()
	m.alerts = make(map[stock.AlertID]stock.Alert)
	m.open = make(map[openKey]stock.AlertID)
	m.amu.Unlock()
	return nil
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(stock.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(m.data); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

// Catalog

func (m *Memory) CreateIngredient(ctx context.Context, ing stock.Ingredient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateIngredient(ctx, ing)
}

func (m *Memory) UpdateIngredient(ctx context.Context, ing stock.Ingredient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.UpdateIngredient(ctx, ing)
}

func (m *Memory) SetIngredientState(ctx context.Context, id stock.IngredientID, state stock.Lifecycle, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SetIngredientState(ctx, id, state, at)
}

func (m *Memory) GetIngredient(ctx context.Context, id stock.IngredientID) (stock.Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetIngredient(ctx, id)
}

func (m *Memory) ListIngredients(ctx context.Context, filter stock.IngredientFilter) ([]stock.Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListIngredients(ctx, filter)
}

func (m *Memory) CreateFood(ctx context.Context, food stock.Food) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateFood(ctx, food)
}

func (m *Memory) UpdateFood(ctx context.Context, food stock.Food) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.UpdateFood(ctx, food)
}

func (m *Memory) SetFoodState(ctx context.Context, id stock.FoodID, state stock.Lifecycle, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SetFoodState(ctx, id, state, at)
}

func (m *Memory) GetFood(ctx context.Context, id stock.FoodID) (stock.Food, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetFood(ctx, id)
}

func (m *Memory) ListFoods(ctx context.Context, includeDeleted bool) ([]stock.Food, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListFoods(ctx, includeDeleted)
}

func (m *Memory) RecipeLines(ctx context.Context, foodID stock.FoodID) ([]stock.RecipeLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.RecipeLines(ctx, foodID)
}

func (m *Memory) RecipeLinesByIngredient(ctx context.Context, id stock.IngredientID) ([]stock.RecipeLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.RecipeLinesByIngredient(ctx, id)
}

func (m *Memory) AddRecipeLine(ctx context.Context, line stock.RecipeLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.AddRecipeLine(ctx, line)
}

func (m *Memory) SetRecipeLineState(ctx context.Context, id stock.RecipeLineID, state stock.Lifecycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SetRecipeLineState(ctx, id, state)
}

func (m *Memory) SaveSale(ctx context.Context, sale stock.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SaveSale(ctx, sale)
}

func (m *Memory) GetSale(ctx context.Context, id stock.SaleID) (stock.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetSale(ctx, id)
}

// Ledger

func (m *Memory) LockIngredient(ctx context.Context, id stock.IngredientID) (stock.Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.LockIngredient(ctx, id)
}

// AppendEntry adds a single entry and moves the balance. Append-only.
func (m *Memory) AppendEntry(ctx context.Context, entry stock.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.AppendEntry(ctx, entry)
}

func (m *Memory) Entries(ctx context.Context, id stock.IngredientID) ([]stock.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Entries(ctx, id)
}

func (m *Memory) EntriesByType(ctx context.Context, id stock.IngredientID, t stock.TxType) ([]stock.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.EntriesByType(ctx, id, t)
}

// =============================================================================
// ALERTS
// =============================================================================

func (m *Memory) InsertOpen(_ context.Context, alert stock.Alert) (stock.Alert, bool, error) {
	m.amu.Lock()
	defer m.amu.Unlock()

	k := openKey{IngredientID: alert.IngredientID, Type: alert.Type}
	if id, ok := m.open[k]; ok {
		return m.alerts[id], false, nil
	}
	if _, ok := m.alerts[alert.ID]; ok {
		return stock.Alert{}, false, fmt.Errorf("%w: alert %s", stock.ErrDuplicateID, alert.ID)
	}
	if alert.State == "" {
		alert.State = stock.LifecycleActive
	}
	m.alerts[alert.ID] = alert
	m.open[k] = alert.ID
	return alert, true, nil
}

func (m *Memory) GetAlert(_ context.Context, id stock.AlertID) (stock.Alert, error) {
	m.amu.Lock()
	defer m.amu.Unlock()

	a, ok := m.alerts[id]
	if !ok || a.State == stock.LifecycleDeleted {
		return stock.Alert{}, fmt.Errorf("%w: %s", stock.ErrAlertNotFound, id)
	}
	return a, nil
}

func (m *Memory) Acknowledge(_ context.Context, id stock.AlertID, actor string, at time.Time) (stock.Alert, error) {
	m.amu.Lock()
	defer m.amu.Unlock()

	a, ok := m.alerts[id]
	if !ok || a.State == stock.LifecycleDeleted {
		return stock.Alert{}, fmt.Errorf("%w: %s", stock.ErrAlertNotFound, id)
	}
	if a.Acknowledged {
		return a, nil
	}
	a.Acknowledged = true
	a.AcknowledgedBy = actor
	a.AcknowledgedAt = &at
	m.alerts[id] = a
	m.closeLocked(a)
	return a, nil
}

func (m *Memory) DeleteAlert(_ context.Context, id stock.AlertID) error {
	m.amu.Lock()
	defer m.amu.Unlock()

	a, ok := m.alerts[id]
	if !ok || a.State == stock.LifecycleDeleted {
		return fmt.Errorf("%w: %s", stock.ErrAlertNotFound, id)
	}
	a.State = stock.LifecycleDeleted
	m.alerts[id] = a
	m.closeLocked(a)
	return nil
}

func (m *Memory) closeLocked(a stock.Alert) {
	k := openKey{IngredientID: a.IngredientID, Type: a.Type}
	if m.open[k] == a.ID {
		delete(m.open, k)
	}
}

func (m *Memory) ListOpen(_ context.Context, filter stock.AlertFilter) ([]stock.Alert, error) {
	m.amu.Lock()
	defer m.amu.Unlock()

	var result []stock.Alert
	for _, id := range m.open {
		a := m.alerts[id]
		if filter.Matches(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// =============================================================================
// DATA - Unlocked state, also used as the transactional view
// =============================================================================

type memoryData struct {
	ingredients map[stock.IngredientID]stock.Ingredient
	entries     map[stock.IngredientID][]stock.Entry
	foods       map[stock.FoodID]stock.Food
	lines       map[stock.RecipeLineID]stock.RecipeLine
	sales       map[stock.SaleID]stock.Sale
}

func newMemoryData() *memoryData {
	return &memoryData{
		ingredients: make(map[stock.IngredientID]stock.Ingredient),
		entries:     make(map[stock.IngredientID][]stock.Entry),
		foods:       make(map[stock.FoodID]stock.Food),
		lines:       make(map[stock.RecipeLineID]stock.RecipeLine),
		sales:       make(map[stock.SaleID]stock.Sale),
	}
}

func (d *memoryData) clone() *memoryData {
	c := newMemoryData()
	for k, v := range d.ingredients {
		c.ingredients[k] = v
	}
	for k, v := range d.entries {
		c.entries[k] = append([]stock.Entry{}, v...)
	}
	for k, v := range d.foods {
		c.foods[k] = v
	}
	for k, v := range d.lines {
		c.lines[k] = v
	}
	for k, v := range d.sales {
		c.sales[k] = v
	}
	return c
}

func (d *memoryData) CreateIngredient(_ context.Context, ing stock.Ingredient) error {
	if _, ok := d.ingredients[ing.ID]; ok {
		return fmt.Errorf("%w: ingredient %s", stock.ErrDuplicateID, ing.ID)
	}
	if ing.State == "" {
		ing.State = stock.LifecycleActive
	}
	d.ingredients[ing.ID] = ing
	return nil
}

func (d *memoryData) UpdateIngredient(_ context.Context, ing stock.Ingredient) error {
	cur, ok := d.ingredients[ing.ID]
	if !ok {
		return fmt.Errorf("%w: %s", stock.ErrIngredientNotFound, ing.ID)
	}
	ing.CurrentStock = cur.CurrentStock
	ing.Version = cur.Version
	ing.State = cur.State
	ing.CreatedAt = cur.CreatedAt
	d.ingredients[ing.ID] = ing
	return nil
}

func (d *memoryData) SetIngredientState(_ context.Context, id stock.IngredientID, state stock.Lifecycle, at time.Time) error {
	cur, ok := d.ingredients[id]
	if !ok {
		return fmt.Errorf("%w: %s", stock.ErrIngredientNotFound, id)
	}
	cur.State = state
	cur.UpdatedAt = at
	d.ingredients[id] = cur
	return nil
}

func (d *memoryData) GetIngredient(_ context.Context, id stock.IngredientID) (stock.Ingredient, error) {
	ing, ok := d.ingredients[id]
	if !ok {
		return stock.Ingredient{}, fmt.Errorf("%w: %s", stock.ErrIngredientNotFound, id)
	}
	return ing, nil
}

func (d *memoryData) ListIngredients(_ context.Context, filter stock.IngredientFilter) ([]stock.Ingredient, error) {
	var result []stock.Ingredient
	for _, ing := range d.ingredients {
		if filter.Matches(ing) {
			result = append(result, ing)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (d *memoryData) CreateFood(_ context.Context, food stock.Food) error {
	if _, ok := d.foods[food.ID]; ok {
		return fmt.Errorf("%w: food %s", stock.ErrDuplicateID, food.ID)
	}
	if food.State == "" {
		food.State = stock.LifecycleActive
	}
	d.foods[food.ID] = food
	return nil
}

func (d *memoryData) UpdateFood(_ context.Context, food stock.Food) error {
	cur, ok := d.foods[food.ID]
	if !ok {
		return fmt.Errorf("%w: %s", stock.ErrFoodNotFound, food.ID)
	}
	food.State = cur.State
	food.CreatedAt = cur.CreatedAt
	d.foods[food.ID] = food
	return nil
}

func (d *memoryData) SetFoodState(_ context.Context, id stock.FoodID, state stock.Lifecycle, at time.Time) error {
	cur, ok := d.foods[id]
	if !ok {
		return fmt.Errorf("%w: %s", stock.ErrFoodNotFound, id)
	}
	cur.State = state
	cur.UpdatedAt = at
	d.foods[id] = cur
	return nil
}

func (d *memoryData) GetFood(_ context.Context, id stock.FoodID) (stock.Food, error) {
	food, ok := d.foods[id]
	if !ok {
		return stock.Food{}, fmt.Errorf("%w: %s", stock.ErrFoodNotFound, id)
	}
	return food, nil
}

func (d *memoryData) ListFoods(_ context.Context, includeDeleted bool) ([]stock.Food, error) {
	var result []stock.Food
	for _, f := range d.foods {
		if includeDeleted || !f.IsDeleted() {
			result = append(result, f)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (d *memoryData) RecipeLines(_ context.Context, foodID stock.FoodID) ([]stock.RecipeLine, error) {
	var result []stock.RecipeLine
	for _, l := range d.lines {
		if l.FoodID == foodID && l.State == stock.LifecycleActive {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

func (d *memoryData) RecipeLinesByIngredient(_ context.Context, id stock.IngredientID) ([]stock.RecipeLine, error) {
	var result []stock.RecipeLine
	for _, l := range d.lines {
		if l.IngredientID == id && l.State == stock.LifecycleActive {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (d *memoryData) AddRecipeLine(_ context.Context, line stock.RecipeLine) error {
	if _, ok := d.lines[line.ID]; ok {
		return fmt.Errorf("%w: recipe line %s", stock.ErrDuplicateID, line.ID)
	}
	if line.State == "" {
		line.State = stock.LifecycleActive
	}
	d.lines[line.ID] = line
	return nil
}

func (d *memoryData) SetRecipeLineState(_ context.Context, id stock.RecipeLineID, state stock.Lifecycle) error {
	cur, ok := d.lines[id]
	if !ok {
		return fmt.Errorf("%w: %s", stock.ErrRecipeLineNotFound, id)
	}
	cur.State = state
	d.lines[id] = cur
	return nil
}

func (d *memoryData) SaveSale(_ context.Context, sale stock.Sale) error {
	if _, ok := d.sales[sale.ID]; ok {
		return fmt.Errorf("%w: sale %s", stock.ErrDuplicateID, sale.ID)
	}
	sale.Items = append([]stock.SaleItem{}, sale.Items...)
	d.sales[sale.ID] = sale
	return nil
}

func (d *memoryData) GetSale(_ context.Context, id stock.SaleID) (stock.Sale, error) {
	sale, ok := d.sales[id]
	if !ok {
		return stock.Sale{}, fmt.Errorf("%w: %s", stock.ErrSaleNotFound, id)
	}
	sale.Items = append([]stock.SaleItem{}, sale.Items...)
	return sale, nil
}

// LockIngredient is a plain read; WithTx already holds the store lock.
func (d *memoryData) LockIngredient(ctx context.Context, id stock.IngredientID) (stock.Ingredient, error) {
	return d.GetIngredient(ctx, id)
}

func (d *memoryData) AppendEntry(_ context.Context, entry stock.Entry) error {
	ing, ok := d.ingredients[entry.IngredientID]
	if !ok {
		return fmt.Errorf("%w: %s", stock.ErrIngredientNotFound, entry.IngredientID)
	}
	if entry.Sequence != ing.Version+1 {
		return fmt.Errorf("%w: %s at version %d, entry sequence %d",
			stock.ErrConcurrentModification, ing.ID, ing.Version, entry.Sequence)
	}
	d.entries[entry.IngredientID] = append(d.entries[entry.IngredientID], entry)
	ing.CurrentStock = entry.NewStock
	ing.Version = entry.Sequence
	ing.UpdatedAt = entry.CreatedAt
	d.ingredients[ing.ID] = ing
	return nil
}

func (d *memoryData) Entries(_ context.Context, id stock.IngredientID) ([]stock.Entry, error) {
	result := make([]stock.Entry, len(d.entries[id]))
	copy(result, d.entries[id])
	return result, nil
}

func (d *memoryData) EntriesByType(_ context.Context, id stock.IngredientID, t stock.TxType) ([]stock.Entry, error) {
	var result []stock.Entry
	for _, e := range d.entries[id] {
		if e.Type == t {
			result = append(result, e)
		}
	}
	return result, nil
}
