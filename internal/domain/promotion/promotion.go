package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/platterhq/promo-service/internal/domain/order"
)

// Type enumerates the supported promotion kinds.
type Type string

const (
	// TypePercentage discounts each eligible item by a percentage of its subtotal.
	TypePercentage Type = "percentage"
	// TypeFixedAmount removes a fixed currency amount, distributed
	// proportionally for order scope and per-item for narrower scopes.
	TypeFixedAmount Type = "fixed_amount"
	// TypeBuyXGetY grants free units per product group, cheapest lines first.
	TypeBuyXGetY Type = "buy_x_get_y"
	// TypeHappyHour behaves like TypePercentage; the distinction is kept for
	// reporting and for the time-window matching it is normally paired with.
	TypeHappyHour Type = "happy_hour"
	// TypeCoupon is a manually entered code. Values up to 100 are a percent
	// off; larger values are a flat currency amount.
	TypeCoupon Type = "coupon"
)

// Scope controls which line items a promotion may discount.
type Scope string

const (
	ScopeOrder    Scope = "order"
	ScopeProduct  Scope = "product"
	ScopeCategory Scope = "category"
)

// Business-rule rejections. All are surfaced synchronously to the caller;
// none is retried.
var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrPromotionNotFound       = errors.New("promotion not found")
	ErrNotApplied              = errors.New("promotion not applied to this order")
	ErrInvalidCoupon           = errors.New("invalid coupon code")
	ErrCouponExpired           = errors.New("coupon expired")
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	ErrCouponAlreadyApplied    = errors.New("coupon already applied to this order")
	ErrBelowMinimumOrder       = errors.New("order subtotal below promotion minimum")
	ErrNoApplicableDiscount    = errors.New("coupon produces no applicable discount")
	ErrDuplicateCouponCode     = errors.New("coupon code already exists for tenant")
)

// Promotion is a tenant-scoped discount rule.
type Promotion struct {
	ID            string
	TenantID      string
	Name          string
	Type          Type
	DiscountValue decimal.Decimal

	// BuyQuantity and GetQuantity apply only to TypeBuyXGetY.
	BuyQuantity int
	GetQuantity int

	Scope       Scope
	ProductIDs  []string
	CategoryIDs []string

	// CouponCode is stored uppercased and is unique per tenant when set.
	CouponCode string

	MinOrderAmount decimal.Decimal
	// MaxDiscount caps the aggregate discount of one application.
	// Zero means uncapped.
	MaxDiscount decimal.Decimal
	// MaxUses limits total redemptions; zero means unlimited.
	// Uses is the monotonic redemption counter (coupons only).
	MaxUses         int
	MaxUsesPerOrder int
	Uses            int

	StartDate time.Time
	EndDate   *time.Time
	// DaysOfWeek restricts matching to the listed weekdays (0=Sunday..6).
	// Empty means unrestricted.
	DaysOfWeek []int
	// StartTime and EndTime are zero-padded "HH:MM" strings; both must be set
	// for the time window to apply.
	StartTime string
	EndTime   string

	Active    bool
	Automatic bool
	Priority  int
	Stackable bool

	CreatedAt time.Time
}

// AppliedPromotion is one row of the audit ledger: a discount currently
// attributed to an order, or to a single item of it. Rows are never mutated
// in place; they are inserted and deleted by the engine operations only.
type AppliedPromotion struct {
	ID       string
	TenantID string
	OrderID  string
	// OrderItemID is empty for order-level discounts.
	OrderItemID    string
	PromotionID    string
	PromoName      string
	PromoType      Type
	DiscountAmount decimal.Decimal
	CreatedAt      time.Time
}

// Repository provides tenant-scoped access to the promotion catalog.
type Repository interface {
	// ListAutomatic returns active automatic promotions whose date window
	// contains now, ordered by priority descending.
	ListAutomatic(ctx context.Context, tenantID string, now time.Time) ([]Promotion, error)
	// FindCoupon looks up an active coupon-type promotion by its code
	// (case-insensitive). Returns ErrInvalidCoupon when absent.
	FindCoupon(ctx context.Context, tenantID, code string) (*Promotion, error)

	Create(ctx context.Context, p *Promotion) error
	Update(ctx context.Context, p *Promotion) error
	Delete(ctx context.Context, tenantID, id string) error
	GetByID(ctx context.Context, tenantID, id string) (*Promotion, error)
	List(ctx context.Context, tenantID string) ([]Promotion, error)
}

// Store opens transactional units of work against one order. Every mutation
// of the ledger, the item discount fields, and the order totals happens
// through an OrderTx, so a failing step rolls back the whole operation.
type Store interface {
	// WithOrder runs fn inside a transaction that holds a row-level lock on
	// the order, serializing concurrent apply/remove cycles. It returns
	// ErrOrderNotFound when the order does not exist for the tenant.
	WithOrder(ctx context.Context, tenantID, orderID string, fn func(ctx context.Context, tx OrderTx) error) error
	// ListApplied reads the current ledger rows for an order without taking
	// the lock.
	ListApplied(ctx context.Context, tenantID, orderID string) ([]AppliedPromotion, error)
}

// OrderTx is the transactional write gateway for one locked order.
type OrderTx interface {
	Order(ctx context.Context) (*order.Order, error)
	// Items returns the order's non-void items with category data, in their
	// original line order.
	Items(ctx context.Context) ([]order.Item, error)

	ResetItemDiscounts(ctx context.Context) error
	SetItemDiscount(ctx context.Context, itemID string, amount decimal.Decimal, reason, promotionID string) error
	ClearItemDiscounts(ctx context.Context, promotionID string) error

	Applied(ctx context.Context) ([]AppliedPromotion, error)
	InsertApplied(ctx context.Context, row *AppliedPromotion) error
	DeleteApplied(ctx context.Context) error
	DeleteAppliedByPromotion(ctx context.Context, promotionID string) error

	IncrementUses(ctx context.Context, promotionID string) error
	UpdateOrderTotals(ctx context.Context, t order.Totals, reason string) error
}
