package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is the engine's read model of a restaurant order. The order itself is
// owned by the order-management service; this engine only rewrites the
// discount-related fields and the total.
type Order struct {
	ID             string
	TenantID       string
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	DiscountReason string
	Total          decimal.Decimal
	CreatedAt      time.Time
}

// Item is one line of an order. CategoryID is resolved through the product
// catalog when items are loaded. Void items never participate in discounting.
type Item struct {
	ID             string
	OrderID        string
	ProductID      string
	CategoryID     string
	Quantity       int
	UnitPrice      decimal.Decimal
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	Void           bool
	DiscountAmount decimal.Decimal
	DiscountReason string
	PromotionID    string
}

// Totals is a recalculated order aggregate.
type Totals struct {
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
}

// Recalculate derives order totals from the current non-void items and the
// target discount: subtotal and tax are summed from the items, and
// total = subtotal + tax - discount, floored at zero.
func Recalculate(items []Item, discount decimal.Decimal) Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, it := range items {
		if it.Void {
			continue
		}
		subtotal = subtotal.Add(it.Subtotal)
		tax = tax.Add(it.TaxAmount)
	}

	total := subtotal.Add(tax).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal:       subtotal.Round(2),
		TaxAmount:      tax.Round(2),
		DiscountAmount: discount.Round(2),
		Total:          total.Round(2),
	}
}
