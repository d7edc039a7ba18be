/*
presets.go - Ready-made menus

PURPOSE:
  Small, realistic catalogs used by the demo scenarios and by tests that
  need a populated kitchen.

AVAILABLE MENUS:
  BistroMenuJSON:
    - Pizza, pasta and salad sharing dough, tomato sauce and mozzarella
    - Mozzarella and basil carry expiry dates
    - Basil starts below its minimum so a LOW_STOCK alert is open from day one

  CafeMenuJSON:
    - Espresso drinks for a second branch
    - Milk is already near expiry so the sweep has something to find
*/
package factory

// BistroMenuJSON returns the bistro catalog for branch "main".
func BistroMenuJSON() string {
	return `{
  "branch": "main",
  "ingredients": [
    {"id": "dough", "name": "Pizza dough", "unit": "kg", "category": "bakery",
     "opening_stock": "10", "minimum_stock": "2", "cost_per_unit": "1.20", "expires_in_days": 5},
    {"id": "tomato-sauce", "name": "Tomato sauce", "unit": "l", "category": "sauces",
     "opening_stock": "8", "minimum_stock": "1.5", "cost_per_unit": "2.10"},
    {"id": "mozzarella", "name": "Mozzarella", "unit": "kg", "category": "dairy",
     "opening_stock": "5", "minimum_stock": "1", "reorder_level": "2", "cost_per_unit": "8.40", "expires_in_days": 6},
    {"id": "basil", "name": "Fresh basil", "unit": "bunch", "category": "produce",
     "opening_stock": "4", "minimum_stock": "5", "cost_per_unit": "0.90", "expires_in_days": 2},
    {"id": "spaghetti", "name": "Spaghetti", "unit": "kg", "category": "dry goods",
     "opening_stock": "12", "minimum_stock": "3", "cost_per_unit": "1.60"},
    {"id": "lettuce", "name": "Romaine lettuce", "unit": "head", "category": "produce",
     "opening_stock": "6", "minimum_stock": "2", "cost_per_unit": "1.10", "expires_in_days": 4}
  ],
  "foods": [
    {"id": "margherita", "name": "Margherita", "category": "pizza", "price": "9.50", "preparation_minutes": 12,
     "recipe": [
       {"ingredient": "dough", "quantity": "0.25"},
       {"ingredient": "tomato-sauce", "quantity": "0.1"},
       {"ingredient": "mozzarella", "quantity": "0.15"},
       {"ingredient": "basil", "quantity": "0.25", "notes": "added after baking"}
     ]},
    {"id": "spaghetti-pomodoro", "name": "Spaghetti pomodoro", "category": "pasta", "price": "11.00", "preparation_minutes": 15,
     "recipe": [
       {"ingredient": "spaghetti", "quantity": "0.12"},
       {"ingredient": "tomato-sauce", "quantity": "0.2"},
       {"ingredient": "basil", "quantity": "0.1"}
     ]},
    {"id": "caesar", "name": "Caesar salad", "category": "salad", "price": "8.00", "preparation_minutes": 8,
     "recipe": [
       {"ingredient": "lettuce", "quantity": "0.5"}
     ]},
    {"id": "sparkling-water", "name": "Sparkling water", "category": "drinks", "price": "3.00"}
  ]
}`
}

// CafeMenuJSON returns the cafe catalog for branch "downtown".
func CafeMenuJSON() string {
	return `{
  "branch": "downtown",
  "ingredients": [
    {"id": "espresso-beans", "name": "Espresso beans", "unit": "kg", "category": "coffee",
     "opening_stock": "3", "minimum_stock": "0.5", "cost_per_unit": "22.00"},
    {"id": "milk", "name": "Whole milk", "unit": "l", "category": "dairy",
     "opening_stock": "10", "minimum_stock": "2", "cost_per_unit": "1.05", "expires_in_days": 1},
    {"id": "croissant", "name": "Butter croissant", "unit": "piece", "category": "bakery",
     "opening_stock": "24", "minimum_stock": "6", "cost_per_unit": "0.70", "expires_in_days": 0}
  ],
  "foods": [
    {"id": "espresso", "name": "Espresso", "category": "coffee", "price": "2.20", "preparation_minutes": 1,
     "recipe": [{"ingredient": "espresso-beans", "quantity": "0.018"}]},
    {"id": "cappuccino", "name": "Cappuccino", "category": "coffee", "price": "3.40", "preparation_minutes": 3,
     "recipe": [
       {"ingredient": "espresso-beans", "quantity": "0.018"},
       {"ingredient": "milk", "quantity": "0.15"}
     ]},
    {"id": "croissant-plate", "name": "Croissant", "category": "bakery", "price": "2.80",
     "recipe": [{"ingredient": "croissant", "quantity": "1"}]}
  ]
}`
}
