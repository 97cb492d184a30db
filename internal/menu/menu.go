// Package menu holds the fixed menu the POS terminals sell from.
package menu

import (
	"github.com/jardin-pos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// MenuItem is a purchasable item. Values are immutable once the catalog is built.
type MenuItem struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Ingredients []string        `json:"ingredients"`
}

// Catalog is a read-only, category-ordered set of menu items.
type Catalog struct {
	categories []string
	byCategory map[string][]MenuItem
	byID       map[int]MenuItem
}

// New builds a catalog from items, keeping the category order of first appearance.
// Later duplicates of an ID are ignored.
func New(items []MenuItem) *Catalog {
	c := &Catalog{
		byCategory: make(map[string][]MenuItem),
		byID:       make(map[int]MenuItem),
	}
	for _, it := range items {
		if _, dup := c.byID[it.ID]; dup {
			continue
		}
		if it.Ingredients == nil {
			it.Ingredients = []string{}
		}
		if _, seen := c.byCategory[it.Category]; !seen {
			c.categories = append(c.categories, it.Category)
		}
		c.byCategory[it.Category] = append(c.byCategory[it.Category], it)
		c.byID[it.ID] = it
	}
	return c
}

// Default returns the restaurant's menu.
func Default() *Catalog {
	return New(defaultItems)
}

// Lookup finds an item by ID.
func (c *Catalog) Lookup(id int) (MenuItem, bool) {
	it, ok := c.byID[id]
	if !ok {
		return MenuItem{}, false
	}
	it.Ingredients = append([]string(nil), it.Ingredients...)
	return it, true
}

// Categories returns category names in menu order.
func (c *Catalog) Categories() []string {
	return append([]string(nil), c.categories...)
}

// Items returns the items of one category in menu order.
func (c *Catalog) Items(category string) []MenuItem {
	return append([]MenuItem(nil), c.byCategory[category]...)
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var defaultItems = []MenuItem{
	{ID: 1, Name: "Pasta Carbonara", Category: enum.CategoryMains, Price: price("12.99"), Ingredients: []string{"pasta", "huevo", "panceta", "queso"}},
	{ID: 2, Name: "Pizza Margarita", Category: enum.CategoryMains, Price: price("10.99"), Ingredients: []string{"masa", "salsa", "mozzarella", "albahaca"}},
	{ID: 3, Name: "Ensalada César", Category: enum.CategoryMains, Price: price("8.99"), Ingredients: []string{"lechuga", "crutones", "salsa", "parmesano"}},

	{ID: 4, Name: "Refresco", Category: enum.CategoryDrinks, Price: price("2.50")},
	{ID: 5, Name: "Cerveza", Category: enum.CategoryDrinks, Price: price("3.50")},
	{ID: 6, Name: "Agua Mineral", Category: enum.CategoryDrinks, Price: price("1.50")},

	{ID: 7, Name: "Tarta de Chocolate", Category: enum.CategoryDesserts, Price: price("5.99"), Ingredients: []string{"chocolate", "harina", "huevo", "azúcar"}},
	{ID: 8, Name: "Helado", Category: enum.CategoryDesserts, Price: price("3.99"), Ingredients: []string{"leche", "azúcar", "vainilla"}},
	{ID: 9, Name: "Fruta Fresca", Category: enum.CategoryDesserts, Price: price("4.50")},

	{ID: 10, Name: "Menú del Chef", Category: enum.CategorySpecials, Price: price("15.99"), Ingredients: []string{"plato del día", "postre", "bebida"}},
	{ID: 11, Name: "Menú del Chef especial", Category: enum.CategorySpecials, Price: price("35.00"), Ingredients: []string{"plato del día", "postre", "bebida", "vinos"}},
}
