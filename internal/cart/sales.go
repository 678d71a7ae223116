// Package cart holds the in-progress line collections for the two checkout
// workflows. Sales lines carry an absolute discount per line and purchase
// lines carry a percentage discount; the two are kept as separate types.
package cart

import (
	"slices"

	"github.com/shopspring/decimal"

	"bengkelpos/backend/internal/domain"
	"bengkelpos/backend/internal/xid"
)

// AbsoluteDiscountLine is a sales cart line. Discount is a currency amount
// for the whole line, not per unit.
type AbsoluteDiscountLine struct {
	LineID   string
	ID       string
	Name     string
	Type     string
	Price    decimal.Decimal
	Qty      int
	Discount decimal.Decimal

	priceSet bool
}

// Subtotal is price*qty - discount. It is not clamped at zero.
func (l AbsoluteDiscountLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Qty))).Sub(l.Discount)
}

type Charges struct {
	OtherFees decimal.Decimal
	Tax       decimal.Decimal
}

type Totals struct {
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	OtherFees     decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
}

type SalesCart struct {
	lines []AbsoluteDiscountLine
}

// Add puts one unit of an item in the cart. When the id is already present
// only qty grows; edited price and discount stay. A line whose price was
// never known takes the incoming price. An explicit SetPrice, zero included,
// is never refilled.
func (c *SalesCart) Add(item AbsoluteDiscountLine) {
	if i := c.index(item.ID); i >= 0 {
		c.lines[i].Qty++
		if !c.lines[i].priceSet && !item.Price.IsZero() {
			c.lines[i].Price = item.Price
			c.lines[i].priceSet = true
		}
		return
	}
	item.priceSet = !item.Price.IsZero()
	if item.LineID == "" {
		item.LineID = xid.NewLineID()
	}
	if item.Qty < 1 {
		item.Qty = 1
	}
	if item.Type == "" {
		item.Type = domain.ItemTypePart
	}
	c.lines = append(c.lines, item)
}

// Decrement removes one unit and drops the line when qty reaches zero.
func (c *SalesCart) Decrement(id string) {
	i := c.index(id)
	if i < 0 {
		return
	}
	if c.lines[i].Qty <= 1 {
		c.lines = slices.Delete(c.lines, i, i+1)
		return
	}
	c.lines[i].Qty--
}

func (c *SalesCart) Delete(id string) {
	if i := c.index(id); i >= 0 {
		c.lines = slices.Delete(c.lines, i, i+1)
	}
}

// SetQty overwrites the quantity. qty <= 0 removes the line.
func (c *SalesCart) SetQty(id string, qty int) {
	i := c.index(id)
	if i < 0 {
		return
	}
	if qty <= 0 {
		c.lines = slices.Delete(c.lines, i, i+1)
		return
	}
	c.lines[i].Qty = qty
}

func (c *SalesCart) SetPrice(id string, price decimal.Decimal) {
	if i := c.index(id); i >= 0 {
		c.lines[i].Price = price
		c.lines[i].priceSet = true
	}
}

func (c *SalesCart) SetDiscount(id string, discount decimal.Decimal) {
	if i := c.index(id); i >= 0 {
		c.lines[i].Discount = discount
	}
}

func (c *SalesCart) Lines() []AbsoluteDiscountLine {
	return slices.Clone(c.lines)
}

func (c *SalesCart) Len() int {
	return len(c.lines)
}

func (c *SalesCart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Totals adds other fees and tax, both absolute amounts, on top of the
// line subtotals.
func (c *SalesCart) Totals(charges Charges) Totals {
	discount := decimal.Zero
	for _, line := range c.lines {
		discount = discount.Add(line.Discount)
	}
	subtotal := c.Subtotal()
	return Totals{
		Subtotal:      subtotal,
		DiscountTotal: discount,
		OtherFees:     charges.OtherFees,
		Tax:           charges.Tax,
		Total:         subtotal.Add(charges.OtherFees).Add(charges.Tax),
	}
}

// ServiceRevenue is the subtotal of service lines only.
func (c *SalesCart) ServiceRevenue() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		if line.Type == domain.ItemTypeService {
			total = total.Add(line.Subtotal())
		}
	}
	return total
}

func (c *SalesCart) Clear() {
	c.lines = nil
}

func (c *SalesCart) index(id string) int {
	return slices.IndexFunc(c.lines, func(l AbsoluteDiscountLine) bool {
		return l.ID == id
	})
}
