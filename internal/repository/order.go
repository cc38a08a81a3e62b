package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/platterhq/promo-service/internal/domain/order"
	"github.com/platterhq/promo-service/internal/domain/promotion"
)

const (
	lockOrderSQL = `SELECT id FROM orders WHERE id = $1 AND tenant_id = $2 FOR UPDATE`

	getOrderSQL = `SELECT id, tenant_id, subtotal, tax_amount, discount_amount,
			COALESCE(discount_reason, ''), total, created_at
		FROM orders WHERE id = $1`

	listItemsSQL = `SELECT i.id, i.order_id, i.product_id, COALESCE(p.category_id, ''),
			i.quantity, i.unit_price, i.subtotal, i.tax_amount, i.is_void,
			i.discount_amount, COALESCE(i.discount_reason, ''), COALESCE(i.promotion_id, '')
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1 AND NOT i.is_void
		ORDER BY i.created_at, i.id`

	resetItemDiscountsSQL = `UPDATE order_items
		SET discount_amount = 0, discount_reason = NULL, promotion_id = NULL
		WHERE order_id = $1 AND NOT is_void`

	setItemDiscountSQL = `UPDATE order_items
		SET discount_amount = $2, discount_reason = $3, promotion_id = $4
		WHERE id = $1`

	clearItemDiscountsSQL = `UPDATE order_items
		SET discount_amount = 0, discount_reason = NULL, promotion_id = NULL
		WHERE order_id = $1 AND promotion_id = $2`

	listAppliedSQL = `SELECT id, tenant_id, order_id, COALESCE(order_item_id, ''),
			promotion_id, promo_name, promo_type, discount_amount, created_at
		FROM applied_promotions WHERE order_id = $1
		ORDER BY created_at, id`

	listAppliedTenantSQL = `SELECT id, tenant_id, order_id, COALESCE(order_item_id, ''),
			promotion_id, promo_name, promo_type, discount_amount, created_at
		FROM applied_promotions WHERE tenant_id = $1 AND order_id = $2
		ORDER BY created_at, id`

	insertAppliedSQL = `INSERT INTO applied_promotions (id, tenant_id, order_id,
			order_item_id, promotion_id, promo_name, promo_type, discount_amount, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)`

	deleteAppliedSQL            = `DELETE FROM applied_promotions WHERE order_id = $1`
	deleteAppliedByPromotionSQL = `DELETE FROM applied_promotions WHERE order_id = $1 AND promotion_id = $2`

	incrementUsesSQL = `UPDATE promotions SET current_uses = current_uses + 1 WHERE id = $1`

	updateOrderTotalsSQL = `UPDATE orders SET subtotal = $2, tax_amount = $3,
			discount_amount = $4, discount_reason = NULLIF($5, ''), total = $6
		WHERE id = $1`
)

var _ promotion.Store = (*OrderStore)(nil)

// OrderStore implements promotion.Store backed by PostgreSQL. Each unit of
// work is a transaction that first locks the order row, so apply/remove
// cycles on the same order never interleave.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// WithOrder begins a transaction, takes a row lock on the order, and runs fn.
// Any error from fn rolls the whole transaction back.
func (s *OrderStore) WithOrder(ctx context.Context, tenantID, orderID string, fn func(ctx context.Context, tx promotion.OrderTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked string
	if err := tx.QueryRow(ctx, lockOrderSQL, orderID, tenantID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return promotion.ErrOrderNotFound
		}
		return fmt.Errorf("locking order %s: %w", orderID, err)
	}

	if err := fn(ctx, &orderTx{tx: tx, orderID: orderID}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %s: %w", orderID, err)
	}
	return nil
}

// ListApplied reads the order's ledger rows outside any lock.
func (s *OrderStore) ListApplied(ctx context.Context, tenantID, orderID string) ([]promotion.AppliedPromotion, error) {
	rows, err := s.pool.Query(ctx, listAppliedTenantSQL, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing applied promotions: %w", err)
	}
	applied, err := pgx.CollectRows(rows, scanApplied)
	if err != nil {
		return nil, fmt.Errorf("listing applied promotions: %w", err)
	}
	return applied, nil
}

// orderTx is the per-transaction gateway for one locked order.
type orderTx struct {
	tx      pgx.Tx
	orderID string
}

var _ promotion.OrderTx = (*orderTx)(nil)

func (t *orderTx) Order(ctx context.Context) (*order.Order, error) {
	rows, err := t.tx.Query(ctx, getOrderSQL, t.orderID)
	if err != nil {
		return nil, fmt.Errorf("getting order %s: %w", t.orderID, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order %s: %w", t.orderID, err)
	}
	return &o, nil
}

func (t *orderTx) Items(ctx context.Context) ([]order.Item, error) {
	rows, err := t.tx.Query(ctx, listItemsSQL, t.orderID)
	if err != nil {
		return nil, fmt.Errorf("listing items for order %s: %w", t.orderID, err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("listing items for order %s: %w", t.orderID, err)
	}
	return items, nil
}

func (t *orderTx) ResetItemDiscounts(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, resetItemDiscountsSQL, t.orderID); err != nil {
		return fmt.Errorf("resetting item discounts: %w", err)
	}
	return nil
}

func (t *orderTx) SetItemDiscount(ctx context.Context, itemID string, amount decimal.Decimal, reason, promotionID string) error {
	if _, err := t.tx.Exec(ctx, setItemDiscountSQL, itemID, amount, reason, promotionID); err != nil {
		return fmt.Errorf("setting discount on item %s: %w", itemID, err)
	}
	return nil
}

func (t *orderTx) ClearItemDiscounts(ctx context.Context, promotionID string) error {
	if _, err := t.tx.Exec(ctx, clearItemDiscountsSQL, t.orderID, promotionID); err != nil {
		return fmt.Errorf("clearing item discounts for promotion %s: %w", promotionID, err)
	}
	return nil
}

func (t *orderTx) Applied(ctx context.Context) ([]promotion.AppliedPromotion, error) {
	rows, err := t.tx.Query(ctx, listAppliedSQL, t.orderID)
	if err != nil {
		return nil, fmt.Errorf("listing applied promotions: %w", err)
	}
	applied, err := pgx.CollectRows(rows, scanApplied)
	if err != nil {
		return nil, fmt.Errorf("listing applied promotions: %w", err)
	}
	return applied, nil
}

func (t *orderTx) InsertApplied(ctx context.Context, row *promotion.AppliedPromotion) error {
	_, err := t.tx.Exec(ctx, insertAppliedSQL,
		row.ID, row.TenantID, t.orderID, row.OrderItemID,
		row.PromotionID, row.PromoName, string(row.PromoType),
		row.DiscountAmount, row.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting applied promotion: %w", err)
	}
	return nil
}

func (t *orderTx) DeleteApplied(ctx context.Context) error {
	if _, err := t.tx.Exec(ctx, deleteAppliedSQL, t.orderID); err != nil {
		return fmt.Errorf("deleting applied promotions: %w", err)
	}
	return nil
}

func (t *orderTx) DeleteAppliedByPromotion(ctx context.Context, promotionID string) error {
	if _, err := t.tx.Exec(ctx, deleteAppliedByPromotionSQL, t.orderID, promotionID); err != nil {
		return fmt.Errorf("deleting applied promotion %s: %w", promotionID, err)
	}
	return nil
}

func (t *orderTx) IncrementUses(ctx context.Context, promotionID string) error {
	if _, err := t.tx.Exec(ctx, incrementUsesSQL, promotionID); err != nil {
		return fmt.Errorf("incrementing uses for promotion %s: %w", promotionID, err)
	}
	return nil
}

func (t *orderTx) UpdateOrderTotals(ctx context.Context, totals order.Totals, reason string) error {
	_, err := t.tx.Exec(ctx, updateOrderTotalsSQL,
		t.orderID, totals.Subtotal, totals.TaxAmount,
		totals.DiscountAmount, reason, totals.Total,
	)
	if err != nil {
		return fmt.Errorf("updating totals for order %s: %w", t.orderID, err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.TenantID, &o.Subtotal, &o.TaxAmount, &o.DiscountAmount,
		&o.DiscountReason, &o.Total, &o.CreatedAt,
	)
	return o, err
}

func scanItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.CategoryID,
		&it.Quantity, &it.UnitPrice, &it.Subtotal, &it.TaxAmount, &it.Void,
		&it.DiscountAmount, &it.DiscountReason, &it.PromotionID,
	)
	return it, err
}

func scanApplied(row pgx.CollectableRow) (promotion.AppliedPromotion, error) {
	var (
		ap        promotion.AppliedPromotion
		promoType string
	)
	err := row.Scan(
		&ap.ID, &ap.TenantID, &ap.OrderID, &ap.OrderItemID,
		&ap.PromotionID, &ap.PromoName, &promoType,
		&ap.DiscountAmount, &ap.CreatedAt,
	)
	ap.PromoType = promotion.Type(promoType)
	return ap, err
}
