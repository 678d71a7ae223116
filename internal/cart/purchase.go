package cart

import (
	"slices"

	"github.com/shopspring/decimal"

	"bengkelpos/backend/internal/xid"
)

var hundred = decimal.NewFromInt(100)

// PercentageDiscountLine is a purchase cart line. DiscountPercent applies
// to the line total and Subtotal is kept current after every mutation.
// Code may be empty for free-text items that are not in master stock.
type PercentageDiscountLine struct {
	LineID          string
	Code            string
	Name            string
	Price           decimal.Decimal
	Qty             int
	DiscountPercent decimal.Decimal
	Subtotal        decimal.Decimal
}

// Key identifies the line in the cart: the item code, or the name for
// free-text items.
func (l PercentageDiscountLine) Key() string {
	if l.Code != "" {
		return l.Code
	}
	return l.Name
}

func (l *PercentageDiscountLine) recompute() {
	gross := l.Price.Mul(decimal.NewFromInt(int64(l.Qty)))
	l.Subtotal = gross.Mul(hundred.Sub(l.DiscountPercent)).Div(hundred)
}

type PurchaseCart struct {
	lines []PercentageDiscountLine
}

// Add appends the item, or grows qty by one for a key already in the cart
// keeping the existing discount.
func (c *PurchaseCart) Add(item PercentageDiscountLine) {
	if i := c.index(item.Key()); i >= 0 {
		c.lines[i].Qty++
		c.lines[i].recompute()
		return
	}
	if item.LineID == "" {
		item.LineID = xid.NewLineID()
	}
	if item.Qty < 1 {
		item.Qty = 1
	}
	item.recompute()
	c.lines = append(c.lines, item)
}

func (c *PurchaseCart) Delete(key string) {
	if i := c.index(key); i >= 0 {
		c.lines = slices.Delete(c.lines, i, i+1)
	}
}

// SetQty overwrites the quantity. qty <= 0 removes the line.
func (c *PurchaseCart) SetQty(key string, qty int) {
	i := c.index(key)
	if i < 0 {
		return
	}
	if qty <= 0 {
		c.lines = slices.Delete(c.lines, i, i+1)
		return
	}
	c.lines[i].Qty = qty
	c.lines[i].recompute()
}

func (c *PurchaseCart) SetPrice(key string, price decimal.Decimal) {
	if i := c.index(key); i >= 0 {
		c.lines[i].Price = price
		c.lines[i].recompute()
	}
}

func (c *PurchaseCart) SetDiscount(key string, pct decimal.Decimal) {
	if i := c.index(key); i >= 0 {
		c.lines[i].DiscountPercent = pct
		c.lines[i].recompute()
	}
}

func (c *PurchaseCart) Lines() []PercentageDiscountLine {
	return slices.Clone(c.lines)
}

func (c *PurchaseCart) Len() int {
	return len(c.lines)
}

func (c *PurchaseCart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Subtotal)
	}
	return total
}

func (c *PurchaseCart) Clear() {
	c.lines = nil
}

func (c *PurchaseCart) index(key string) int {
	return slices.IndexFunc(c.lines, func(l PercentageDiscountLine) bool {
		return l.Key() == key
	})
}
