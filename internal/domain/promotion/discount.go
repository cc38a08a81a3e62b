package promotion

import (
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/platterhq/promo-service/internal/domain/order"
)

var hundred = decimal.NewFromInt(100)

// ItemDiscount is the share of a promotion's discount attributed to one item.
type ItemDiscount struct {
	ItemID string
	Amount decimal.Decimal
}

// Result is the outcome of applying one promotion to an order's items.
// Items is empty for pure order-level discounts (a flat coupon amount).
type Result struct {
	Total decimal.Decimal
	Items []ItemDiscount
}

// Calculate computes the discount one promotion produces for the given
// non-void items. It returns a zero Result when no item is eligible.
func Calculate(p *Promotion, items []order.Item) (Result, error) {
	eligible := eligibleItems(p, items)
	if len(eligible) == 0 {
		return Result{Total: decimal.Zero}, nil
	}

	d, err := discounterFor(p)
	if err != nil {
		return Result{}, err
	}
	return d.apply(eligible), nil
}

// eligibleItems narrows items to those the promotion's scope allows.
// Product and category scopes with an empty id list fall through to all
// items; rules were historically authored relying on that.
func eligibleItems(p *Promotion, items []order.Item) []order.Item {
	switch {
	case p.Scope == ScopeProduct && len(p.ProductIDs) > 0:
		return filterItems(items, func(it *order.Item) bool {
			return containsString(p.ProductIDs, it.ProductID)
		})
	case p.Scope == ScopeCategory && len(p.CategoryIDs) > 0:
		return filterItems(items, func(it *order.Item) bool {
			return containsString(p.CategoryIDs, it.CategoryID)
		})
	default:
		return items
	}
}

// discounter is one promotion kind's calculation. Each variant carries only
// the fields its algorithm needs, so invalid combinations (a buy quantity on
// a percentage rule, say) cannot reach the arithmetic.
type discounter interface {
	apply(eligible []order.Item) Result
}

func discounterFor(p *Promotion) (discounter, error) {
	switch p.Type {
	case TypePercentage, TypeHappyHour:
		return percentOff{value: p.DiscountValue}, nil
	case TypeFixedAmount:
		if p.Scope == ScopeOrder {
			return fixedOffOrder{amount: p.DiscountValue}, nil
		}
		return fixedOffPerItem{amount: p.DiscountValue}, nil
	case TypeBuyXGetY:
		if p.BuyQuantity <= 0 || p.GetQuantity <= 0 {
			return nil, errors.Errorf("promotion %s: buy_x_get_y requires positive buy and get quantities", p.ID)
		}
		return buyXGetY{buy: p.BuyQuantity, get: p.GetQuantity}, nil
	case TypeCoupon:
		// Values up to 100 are a percentage; anything larger is a flat
		// currency amount applied at order level.
		if p.DiscountValue.LessThanOrEqual(hundred) {
			return percentOff{value: p.DiscountValue}, nil
		}
		return flatOff{amount: p.DiscountValue}, nil
	default:
		return nil, errors.Errorf("unsupported promotion type %q", p.Type)
	}
}

// percentOff discounts every eligible item by value% of its subtotal,
// rounding each item share to 2 decimals.
type percentOff struct {
	value decimal.Decimal
}

func (d percentOff) apply(eligible []order.Item) Result {
	res := Result{Total: decimal.Zero}
	for _, it := range eligible {
		amt := it.Subtotal.Mul(d.value).Div(hundred).Round(2)
		if !amt.IsPositive() {
			continue
		}
		res.Items = append(res.Items, ItemDiscount{ItemID: it.ID, Amount: amt})
		res.Total = res.Total.Add(amt)
	}
	return res
}

// fixedOffOrder distributes a flat amount across eligible items in proportion
// to their subtotals. Every item but the last gets its rounded proportional
// share (capped so the running budget never goes negative); the last item
// absorbs the remainder so the shares sum exactly to the distributed amount.
type fixedOffOrder struct {
	amount decimal.Decimal
}

func (d fixedOffOrder) apply(eligible []order.Item) Result {
	total := decimal.Zero
	for _, it := range eligible {
		total = total.Add(it.Subtotal)
	}
	if !total.IsPositive() {
		return Result{Total: decimal.Zero}
	}

	amount := decimal.Min(d.amount, total).Round(2)
	remaining := amount

	res := Result{Total: amount}
	for i, it := range eligible {
		var share decimal.Decimal
		if i == len(eligible)-1 {
			share = remaining
		} else {
			share = amount.Mul(it.Subtotal).Div(total).Round(2)
			if share.GreaterThan(remaining) {
				share = remaining
			}
		}
		remaining = remaining.Sub(share)
		if !share.IsPositive() {
			continue
		}
		res.Items = append(res.Items, ItemDiscount{ItemID: it.ID, Amount: share})
	}
	return res
}

// fixedOffPerItem removes a flat amount from each eligible item
// independently, capped at that item's own subtotal.
type fixedOffPerItem struct {
	amount decimal.Decimal
}

func (d fixedOffPerItem) apply(eligible []order.Item) Result {
	res := Result{Total: decimal.Zero}
	for _, it := range eligible {
		amt := decimal.Min(d.amount, it.Subtotal).Round(2)
		if !amt.IsPositive() {
			continue
		}
		res.Items = append(res.Items, ItemDiscount{ItemID: it.ID, Amount: amt})
		res.Total = res.Total.Add(amt)
	}
	return res
}

// buyXGetY groups eligible items by product, computes how many units go free
// per group, and consumes the free units from the cheapest lines first.
type buyXGetY struct {
	buy int
	get int
}

func (d buyXGetY) apply(eligible []order.Item) Result {
	groups := make(map[string][]order.Item)
	var keys []string
	for _, it := range eligible {
		if _, ok := groups[it.ProductID]; !ok {
			keys = append(keys, it.ProductID)
		}
		groups[it.ProductID] = append(groups[it.ProductID], it)
	}

	res := Result{Total: decimal.Zero}
	bundle := d.buy + d.get
	for _, productID := range keys {
		lines := groups[productID]
		totalQty := 0
		for _, ln := range lines {
			totalQty += ln.Quantity
		}

		free := totalQty / bundle * d.get
		if free == 0 {
			continue
		}

		// Cheapest lines first keeps the payout minimal.
		sorted := make([]order.Item, len(lines))
		copy(sorted, lines)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].UnitPrice.LessThan(sorted[j].UnitPrice)
		})

		for _, ln := range sorted {
			if free == 0 {
				break
			}
			units := ln.Quantity
			if units > free {
				units = free
			}
			amt := ln.UnitPrice.Mul(decimal.NewFromInt(int64(units))).Round(2)
			free -= units
			if !amt.IsPositive() {
				continue
			}
			res.Items = append(res.Items, ItemDiscount{ItemID: ln.ID, Amount: amt})
			res.Total = res.Total.Add(amt)
		}
	}
	return res
}

// flatOff applies a flat currency amount as a single order-level discount,
// capped at the sum of eligible subtotals, with no per-item breakdown.
type flatOff struct {
	amount decimal.Decimal
}

func (d flatOff) apply(eligible []order.Item) Result {
	total := decimal.Zero
	for _, it := range eligible {
		total = total.Add(it.Subtotal)
	}

	amount := decimal.Min(d.amount, total).Round(2)
	if !amount.IsPositive() {
		return Result{Total: decimal.Zero}
	}
	return Result{Total: amount}
}

func filterItems(items []order.Item, keep func(*order.Item) bool) []order.Item {
	out := make([]order.Item, 0, len(items))
	for i := range items {
		if keep(&items[i]) {
			out = append(out, items[i])
		}
	}
	return out
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
