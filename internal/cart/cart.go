// Package cart accumulates the items of one in-progress order on a terminal.
// Nothing here is persisted; a cart only becomes an order on submission.
package cart

import (
	"github.com/jardin-pos/api/internal/menu"
	"github.com/shopspring/decimal"
)

// Line is one selected menu item. Name, price and ingredients are copied
// from the catalog when the line is created.
type Line struct {
	ItemID      int             `json:"item_id"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Ingredients []string        `json:"ingredients"`
}

// Subtotal is UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Sum returns the sum of line subtotals.
func Sum(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Catalog is the subset of *menu.Catalog a cart needs.
type Catalog interface {
	Lookup(id int) (menu.MenuItem, bool)
}

// Cart is single-session state and is not safe for concurrent use;
// Registry serialises access per terminal.
type Cart struct {
	catalog Catalog
	lines   []Line
}

func New(catalog Catalog) *Cart {
	return &Cart{catalog: catalog}
}

// Add puts one unit of itemID in the cart. Unknown items are ignored and
// Add reports false.
func (c *Cart) Add(itemID int) bool {
	item, ok := c.catalog.Lookup(itemID)
	if !ok {
		return false
	}
	for i := range c.lines {
		if c.lines[i].ItemID == itemID {
			c.lines[i].Quantity++
			return true
		}
	}
	c.lines = append(c.lines, Line{
		ItemID:      item.ID,
		Name:        item.Name,
		UnitPrice:   item.Price,
		Quantity:    1,
		Ingredients: append([]string{}, item.Ingredients...),
	})
	return true
}

// Remove drops the whole line for itemID.
func (c *Cart) Remove(itemID int) {
	for i := range c.lines {
		if c.lines[i].ItemID == itemID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

// Deduct takes submitted lines out of the cart. Units added after the
// submission was read stay in the cart.
func (c *Cart) Deduct(submitted []Line) {
	for _, sl := range submitted {
		for i := range c.lines {
			if c.lines[i].ItemID != sl.ItemID {
				continue
			}
			c.lines[i].Quantity -= sl.Quantity
			if c.lines[i].Quantity <= 0 {
				c.lines = append(c.lines[:i], c.lines[i+1:]...)
			}
			break
		}
	}
}

func (c *Cart) Total() decimal.Decimal { return Sum(c.lines) }

func (c *Cart) Clear() { c.lines = nil }

func (c *Cart) Len() int { return len(c.lines) }

// Lines returns a copy of the lines in the order they were first added.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	for i, l := range c.lines {
		l.Ingredients = append([]string{}, l.Ingredients...)
		out[i] = l
	}
	return out
}
