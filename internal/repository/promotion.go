package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/platterhq/promo-service/internal/domain/promotion"
)

const promotionColumns = `id, tenant_id, name, promo_type, discount_value,
	buy_quantity, get_quantity, scope, product_ids, category_ids,
	COALESCE(coupon_code, ''), min_order_amount, COALESCE(max_discount_amount, 0),
	COALESCE(max_uses, 0), max_uses_per_order, current_uses,
	start_date, end_date, days_of_week,
	COALESCE(start_time, ''), COALESCE(end_time, ''),
	active, automatic, priority, stackable, created_at`

const (
	listAutomaticSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE tenant_id = $1 AND active AND automatic
			AND start_date <= $2 AND (end_date IS NULL OR end_date >= $2)
		ORDER BY priority DESC, created_at`

	findCouponSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE tenant_id = $1 AND coupon_code = upper($2)
			AND active AND promo_type = 'coupon'`

	getPromotionSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE tenant_id = $1 AND id = $2`

	listPromotionsSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE tenant_id = $1 ORDER BY priority DESC, created_at`

	insertPromotionSQL = `INSERT INTO promotions (
			id, tenant_id, name, promo_type, discount_value,
			buy_quantity, get_quantity, scope, product_ids, category_ids,
			coupon_code, min_order_amount, max_discount_amount,
			max_uses, max_uses_per_order, current_uses,
			start_date, end_date, days_of_week, start_time, end_time,
			active, automatic, priority, stackable, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			NULLIF(upper($11), ''), $12, NULLIF($13, 0::numeric),
			NULLIF($14, 0), $15, $16, $17, $18, $19,
			NULLIF($20, ''), NULLIF($21, ''), $22, $23, $24, $25, $26)`

	updatePromotionSQL = `UPDATE promotions SET
			name = $3, promo_type = $4, discount_value = $5,
			buy_quantity = $6, get_quantity = $7, scope = $8,
			product_ids = $9, category_ids = $10,
			coupon_code = NULLIF(upper($11), ''), min_order_amount = $12,
			max_discount_amount = NULLIF($13, 0::numeric),
			max_uses = NULLIF($14, 0), max_uses_per_order = $15,
			start_date = $16, end_date = $17, days_of_week = $18,
			start_time = NULLIF($19, ''), end_time = NULLIF($20, ''),
			active = $21, automatic = $22, priority = $23, stackable = $24
		WHERE tenant_id = $1 AND id = $2`

	deletePromotionSQL = `DELETE FROM promotions WHERE tenant_id = $1 AND id = $2`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// ListAutomatic returns active automatic promotions whose date window contains
// now, ordered by priority descending.
func (r *PromotionRepository) ListAutomatic(ctx context.Context, tenantID string, now time.Time) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listAutomaticSQL, tenantID, now)
	if err != nil {
		return nil, fmt.Errorf("listing automatic promotions: %w", err)
	}
	promos, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, fmt.Errorf("listing automatic promotions: %w", err)
	}
	return promos, nil
}

// FindCoupon looks up an active coupon promotion by its code
// (case-insensitive). Returns promotion.ErrInvalidCoupon when absent.
func (r *PromotionRepository) FindCoupon(ctx context.Context, tenantID, code string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, findCouponSQL, tenantID, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &p, nil
}

// Create inserts a new promotion. A duplicate coupon code within the tenant
// maps to promotion.ErrDuplicateCouponCode.
func (r *PromotionRepository) Create(ctx context.Context, p *promotion.Promotion) error {
	_, err := r.pool.Exec(ctx, insertPromotionSQL, promotionArgs(p)...)
	if err != nil {
		if isUniqueViolation(err) {
			return promotion.ErrDuplicateCouponCode
		}
		return fmt.Errorf("creating promotion %q: %w", p.Name, err)
	}
	return nil
}

// Update rewrites all mutable fields of a promotion. The usage counter is not
// touched here; it only moves through the transactional increment.
func (r *PromotionRepository) Update(ctx context.Context, p *promotion.Promotion) error {
	args := []any{
		p.TenantID, p.ID, p.Name, string(p.Type), p.DiscountValue,
		p.BuyQuantity, p.GetQuantity, string(p.Scope),
		stringArray(p.ProductIDs), stringArray(p.CategoryIDs),
		p.CouponCode, p.MinOrderAmount, p.MaxDiscount,
		p.MaxUses, p.MaxUsesPerOrder,
		p.StartDate, p.EndDate, intArray(p.DaysOfWeek),
		p.StartTime, p.EndTime,
		p.Active, p.Automatic, p.Priority, p.Stackable,
	}
	tag, err := r.pool.Exec(ctx, updatePromotionSQL, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return promotion.ErrDuplicateCouponCode
		}
		return fmt.Errorf("updating promotion %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrPromotionNotFound
	}
	return nil
}

// Delete removes a promotion from the catalog.
func (r *PromotionRepository) Delete(ctx context.Context, tenantID, id string) error {
	tag, err := r.pool.Exec(ctx, deletePromotionSQL, tenantID, id)
	if err != nil {
		return fmt.Errorf("deleting promotion %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrPromotionNotFound
	}
	return nil
}

// GetByID fetches one promotion scoped to the tenant.
func (r *PromotionRepository) GetByID(ctx context.Context, tenantID, id string) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, getPromotionSQL, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("getting promotion %s: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrPromotionNotFound
		}
		return nil, fmt.Errorf("getting promotion %s: %w", id, err)
	}
	return &p, nil
}

// List returns all promotions for a tenant, highest priority first.
func (r *PromotionRepository) List(ctx context.Context, tenantID string) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listPromotionsSQL, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	promos, err := pgx.CollectRows(rows, scanPromotion)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	return promos, nil
}

func promotionArgs(p *promotion.Promotion) []any {
	return []any{
		p.ID, p.TenantID, p.Name, string(p.Type), p.DiscountValue,
		p.BuyQuantity, p.GetQuantity, string(p.Scope),
		stringArray(p.ProductIDs), stringArray(p.CategoryIDs),
		p.CouponCode, p.MinOrderAmount, p.MaxDiscount,
		p.MaxUses, p.MaxUsesPerOrder, p.Uses,
		p.StartDate, p.EndDate, intArray(p.DaysOfWeek),
		p.StartTime, p.EndTime,
		p.Active, p.Automatic, p.Priority, p.Stackable, p.CreatedAt,
	}
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p              promotion.Promotion
		promoType      string
		scope          string
		discountValue  decimal.Decimal
		productIDs     []string
		categoryIDs    []string
		daysOfWeek     []int32
		endDate        *time.Time
		maxDiscount    decimal.Decimal
		minOrderAmount decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.TenantID, &p.Name, &promoType, &discountValue,
		&p.BuyQuantity, &p.GetQuantity, &scope, &productIDs, &categoryIDs,
		&p.CouponCode, &minOrderAmount, &maxDiscount,
		&p.MaxUses, &p.MaxUsesPerOrder, &p.Uses,
		&p.StartDate, &endDate, &daysOfWeek,
		&p.StartTime, &p.EndTime,
		&p.Active, &p.Automatic, &p.Priority, &p.Stackable, &p.CreatedAt,
	)
	p.Type = promotion.Type(promoType)
	p.Scope = promotion.Scope(scope)
	p.DiscountValue = discountValue
	p.ProductIDs = productIDs
	p.CategoryIDs = categoryIDs
	p.MinOrderAmount = minOrderAmount
	p.MaxDiscount = maxDiscount
	p.EndDate = endDate
	p.DaysOfWeek = make([]int, len(daysOfWeek))
	for i, d := range daysOfWeek {
		p.DaysOfWeek[i] = int(d)
	}
	return p, err
}

// stringArray normalizes nil slices to empty ones so text[] columns never
// receive NULL.
func stringArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func intArray(s []int) []int32 {
	out := make([]int32, len(s))
	for i, v := range s {
		out[i] = int32(v)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
