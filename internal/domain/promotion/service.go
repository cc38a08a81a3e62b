package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/platterhq/promo-service/internal/domain/order"
)

// AppliedDiscount is one line of an apply summary: a promotion's discount
// attributed to a single item, or to the whole order when ItemID is empty.
type AppliedDiscount struct {
	PromotionID string
	PromoName   string
	PromoType   Type
	Amount      decimal.Decimal
	ItemID      string
}

// ApplyResult summarizes one automatic-application cycle.
type ApplyResult struct {
	Discounts     []AppliedDiscount
	TotalDiscount decimal.Decimal
}

// CouponResult is the outcome of a successful manual coupon redemption.
type CouponResult struct {
	PromoName      string
	DiscountAmount decimal.Decimal
	CouponCode     string
}

// Service composes matching, stacking, discount calculation, and the ledger
// into the engine's public operations. Every operation runs inside a single
// transaction holding a row lock on the order, so concurrent calls on the
// same order serialize and a failing step leaves the order untouched.
type Service struct {
	catalog Repository
	store   Store
	now     func() time.Time
}

// NewService creates the promotion engine over a catalog and an order store.
func NewService(catalog Repository, store Store) *Service {
	return &Service{
		catalog: catalog,
		store:   store,
		now:     time.Now,
	}
}

// ApplyAutomatic re-evaluates all automatic promotions for an order. It is a
// full idempotent rebuild: the existing ledger and item discount fields are
// cleared first, then every matched promotion is applied in priority order,
// subject to the stacking policy (at most one non-stackable promotion).
func (s *Service) ApplyAutomatic(ctx context.Context, tenantID, orderID string) (*ApplyResult, error) {
	now := s.now()
	res := &ApplyResult{TotalDiscount: decimal.Zero}

	err := s.store.WithOrder(ctx, tenantID, orderID, func(ctx context.Context, tx OrderTx) error {
		o, err := tx.Order(ctx)
		if err != nil {
			return err
		}
		items, err := tx.Items(ctx)
		if err != nil {
			return err
		}

		if err := tx.DeleteApplied(ctx); err != nil {
			return errors.Wrap(err, "clear ledger")
		}
		if err := tx.ResetItemDiscounts(ctx); err != nil {
			return errors.Wrap(err, "reset item discounts")
		}

		candidates, err := s.catalog.ListAutomatic(ctx, tenantID, now)
		if err != nil {
			return errors.Wrap(err, "list automatic promotions")
		}
		matched := Match(candidates, o.Subtotal, now)

		total := decimal.Zero
		var reasons []string
		appliedNonStackable := false

		for i := range matched {
			p := &matched[i]
			if appliedNonStackable && !p.Stackable {
				continue
			}

			calc, err := Calculate(p, items)
			if err != nil {
				return err
			}
			if !calc.Total.IsPositive() {
				continue
			}
			// The cap applies to the aggregate only; per-item shares keep
			// their computed values.
			if p.MaxDiscount.IsPositive() && calc.Total.GreaterThan(p.MaxDiscount) {
				calc.Total = p.MaxDiscount
			}

			if err := s.writeDiscount(ctx, tx, orderID, p, calc, now, res); err != nil {
				return err
			}

			total = total.Add(calc.Total)
			reasons = append(reasons, p.Name)
			if !p.Stackable {
				appliedNonStackable = true
			}
		}

		totals := order.Recalculate(items, total)
		if err := tx.UpdateOrderTotals(ctx, totals, strings.Join(reasons, ", ")); err != nil {
			return errors.Wrap(err, "update order totals")
		}
		res.TotalDiscount = totals.DiscountAmount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// writeDiscount persists one promotion's discount: item fields and one ledger
// row per discounted item, or a single order-level ledger row when the
// calculator returned no per-item breakdown.
func (s *Service) writeDiscount(ctx context.Context, tx OrderTx, orderID string, p *Promotion, calc Result, now time.Time, res *ApplyResult) error {
	if len(calc.Items) == 0 {
		row := s.ledgerRow(p, orderID, "", calc.Total, now)
		if err := tx.InsertApplied(ctx, row); err != nil {
			return errors.Wrap(err, "insert ledger row")
		}
		res.Discounts = append(res.Discounts, AppliedDiscount{
			PromotionID: p.ID,
			PromoName:   p.Name,
			PromoType:   p.Type,
			Amount:      calc.Total,
		})
		return nil
	}

	for _, it := range calc.Items {
		if err := tx.SetItemDiscount(ctx, it.ItemID, it.Amount, p.Name, p.ID); err != nil {
			return errors.Wrapf(err, "set discount on item %s", it.ItemID)
		}
		row := s.ledgerRow(p, orderID, it.ItemID, it.Amount, now)
		if err := tx.InsertApplied(ctx, row); err != nil {
			return errors.Wrap(err, "insert ledger row")
		}
		res.Discounts = append(res.Discounts, AppliedDiscount{
			PromotionID: p.ID,
			PromoName:   p.Name,
			PromoType:   p.Type,
			Amount:      it.Amount,
			ItemID:      it.ItemID,
		})
	}
	return nil
}

func (s *Service) ledgerRow(p *Promotion, orderID, itemID string, amount decimal.Decimal, now time.Time) *AppliedPromotion {
	return &AppliedPromotion{
		ID:             uuid.New().String(),
		TenantID:       p.TenantID,
		OrderID:        orderID,
		OrderItemID:    itemID,
		PromotionID:    p.ID,
		PromoName:      p.Name,
		PromoType:      p.Type,
		DiscountAmount: amount,
		CreatedAt:      now,
	}
}

// ApplyCoupon redeems a manually entered coupon code on an order. Unlike
// ApplyAutomatic this is additive: the new discount stacks on top of
// whatever discount the order already carries.
func (s *Service) ApplyCoupon(ctx context.Context, tenantID, orderID, code string) (*CouponResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrInvalidCoupon
	}
	now := s.now()

	var out *CouponResult
	err := s.store.WithOrder(ctx, tenantID, orderID, func(ctx context.Context, tx OrderTx) error {
		p, err := s.catalog.FindCoupon(ctx, tenantID, code)
		if err != nil {
			return err
		}

		if p.EndDate != nil && p.EndDate.Before(now) {
			return ErrCouponExpired
		}
		if p.MaxUses > 0 && p.Uses >= p.MaxUses {
			return ErrCouponUsageLimitReached
		}

		applied, err := tx.Applied(ctx)
		if err != nil {
			return errors.Wrap(err, "read ledger")
		}
		for i := range applied {
			if applied[i].PromotionID == p.ID {
				return ErrCouponAlreadyApplied
			}
		}

		o, err := tx.Order(ctx)
		if err != nil {
			return err
		}
		if p.MinOrderAmount.IsPositive() && o.Subtotal.LessThan(p.MinOrderAmount) {
			return ErrBelowMinimumOrder
		}

		items, err := tx.Items(ctx)
		if err != nil {
			return err
		}

		calc, err := Calculate(p, items)
		if err != nil {
			return err
		}
		if p.MaxDiscount.IsPositive() && calc.Total.GreaterThan(p.MaxDiscount) {
			calc.Total = p.MaxDiscount
		}
		if !calc.Total.IsPositive() {
			return ErrNoApplicableDiscount
		}

		for _, it := range calc.Items {
			if err := tx.SetItemDiscount(ctx, it.ItemID, it.Amount, p.Name, p.ID); err != nil {
				return errors.Wrapf(err, "set discount on item %s", it.ItemID)
			}
		}
		// One ledger row per redemption, regardless of per-item breakdown.
		if err := tx.InsertApplied(ctx, s.ledgerRow(p, orderID, "", calc.Total, now)); err != nil {
			return errors.Wrap(err, "insert ledger row")
		}
		if err := tx.IncrementUses(ctx, p.ID); err != nil {
			return errors.Wrap(err, "increment coupon uses")
		}

		totals := order.Recalculate(items, o.DiscountAmount.Add(calc.Total))
		if err := tx.UpdateOrderTotals(ctx, totals, joinReason(o.DiscountReason, p.Name)); err != nil {
			return errors.Wrap(err, "update order totals")
		}

		out = &CouponResult{
			PromoName:      p.Name,
			DiscountAmount: calc.Total,
			CouponCode:     code,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Remove detaches one promotion from an order. The order discount is rebuilt
// from the remaining ledger rows rather than by subtraction, so the order
// stays consistent even if prior state drifted. Returns the amount removed.
func (s *Service) Remove(ctx context.Context, tenantID, orderID, promotionID string) (decimal.Decimal, error) {
	removed := decimal.Zero

	err := s.store.WithOrder(ctx, tenantID, orderID, func(ctx context.Context, tx OrderTx) error {
		applied, err := tx.Applied(ctx)
		if err != nil {
			return errors.Wrap(err, "read ledger")
		}

		remaining := decimal.Zero
		var reasons []string
		found := false
		for i := range applied {
			row := &applied[i]
			if row.PromotionID == promotionID {
				found = true
				removed = removed.Add(row.DiscountAmount)
				continue
			}
			remaining = remaining.Add(row.DiscountAmount)
			if !containsString(reasons, row.PromoName) {
				reasons = append(reasons, row.PromoName)
			}
		}
		if !found {
			return ErrNotApplied
		}

		if err := tx.ClearItemDiscounts(ctx, promotionID); err != nil {
			return errors.Wrap(err, "clear item discounts")
		}
		if err := tx.DeleteAppliedByPromotion(ctx, promotionID); err != nil {
			return errors.Wrap(err, "delete ledger rows")
		}

		items, err := tx.Items(ctx)
		if err != nil {
			return err
		}
		totals := order.Recalculate(items, remaining)
		if err := tx.UpdateOrderTotals(ctx, totals, strings.Join(reasons, ", ")); err != nil {
			return errors.Wrap(err, "update order totals")
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return removed, nil
}

// ListApplied returns the order's current ledger rows.
func (s *Service) ListApplied(ctx context.Context, tenantID, orderID string) ([]AppliedPromotion, error) {
	return s.store.ListApplied(ctx, tenantID, orderID)
}

func joinReason(existing, name string) string {
	if existing == "" {
		return name
	}
	return existing + ", " + name
}
