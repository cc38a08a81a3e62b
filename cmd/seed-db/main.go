// Command seed-db provisions a demo tenant: products, an open order with
// line items, a set of automatic promotions and coupons, and an API key.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/platterhq/promo-service/internal/domain/promotion"
	"github.com/platterhq/promo-service/internal/repository"
)

const demoTenant = "demo"

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or PROMO_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PROMO_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PROMO_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PROMO_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PROMO_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedOrder(ctx, pool); err != nil {
		return errors.Wrap(err, "seed order")
	}
	if err := seedPromotions(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promotions")
	}
	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

type productSeed struct {
	id       string
	name     string
	category string
	price    string
}

var products = []productSeed{
	{id: "prod-margherita", name: "Margherita Pizza", category: "cat-mains", price: "12.50"},
	{id: "prod-carbonara", name: "Spaghetti Carbonara", category: "cat-mains", price: "14.00"},
	{id: "prod-tiramisu", name: "Tiramisu", category: "cat-desserts", price: "6.50"},
	{id: "prod-espresso", name: "Espresso", category: "cat-drinks", price: "2.00"},
	{id: "prod-lemonade", name: "House Lemonade", category: "cat-drinks", price: "3.50"},
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	const upsert = `INSERT INTO products (id, tenant_id, name, category_id, price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = $3, category_id = $4, price = $5`

	for _, p := range products {
		price, err := decimal.NewFromString(p.price)
		if err != nil {
			return errors.Wrapf(err, "parse price for %s", p.id)
		}
		if _, err := pool.Exec(ctx, upsert, p.id, demoTenant, p.name, p.category, price); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.id)
		}
		slog.Info("upserted product", slog.String("id", p.id), slog.String("name", p.name))
	}
	return nil
}

type itemSeed struct {
	id        string
	productID string
	quantity  int
	unitPrice string
	subtotal  string
	tax       string
}

func seedOrder(ctx context.Context, pool *pgxpool.Pool) error {
	const orderID = "order-demo-1"
	items := []itemSeed{
		{id: "item-demo-1", productID: "prod-margherita", quantity: 2, unitPrice: "12.50", subtotal: "25.00", tax: "2.50"},
		{id: "item-demo-2", productID: "prod-espresso", quantity: 3, unitPrice: "2.00", subtotal: "6.00", tax: "0.60"},
		{id: "item-demo-3", productID: "prod-tiramisu", quantity: 1, unitPrice: "6.50", subtotal: "6.50", tax: "0.65"},
	}

	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, it := range items {
		s, err := decimal.NewFromString(it.subtotal)
		if err != nil {
			return errors.Wrapf(err, "parse subtotal for %s", it.id)
		}
		t, err := decimal.NewFromString(it.tax)
		if err != nil {
			return errors.Wrapf(err, "parse tax for %s", it.id)
		}
		subtotal = subtotal.Add(s)
		tax = tax.Add(t)
	}

	const upsertOrder = `INSERT INTO orders (id, tenant_id, subtotal, tax_amount, total)
		VALUES ($1, $2, $3, $4, $3 + $4)
		ON CONFLICT (id) DO NOTHING`
	if _, err := pool.Exec(ctx, upsertOrder, orderID, demoTenant, subtotal, tax); err != nil {
		return errors.Wrapf(err, "upsert order %s", orderID)
	}

	const upsertItem = `INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, subtotal, tax_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	for _, it := range items {
		if _, err := pool.Exec(ctx, upsertItem,
			it.id, orderID, it.productID, it.quantity,
			mustDecimal(it.unitPrice), mustDecimal(it.subtotal), mustDecimal(it.tax),
		); err != nil {
			return errors.Wrapf(err, "upsert item %s", it.id)
		}
	}

	slog.Info("seeded demo order", slog.String("id", orderID), slog.Int("items", len(items)))
	return nil
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool) error {
	repo := repository.NewPromotionRepository(pool)
	now := time.Now()

	promos := []promotion.Promotion{
		{
			Name:          "Lunch Deal 10%",
			Type:          promotion.TypePercentage,
			DiscountValue: decimal.NewFromInt(10),
			Scope:         promotion.ScopeOrder,
			Active:        true,
			Automatic:     true,
			Priority:      100,
		},
		{
			Name:          "Happy Hour Drinks",
			Type:          promotion.TypeHappyHour,
			DiscountValue: decimal.NewFromInt(20),
			Scope:         promotion.ScopeCategory,
			CategoryIDs:   []string{"cat-drinks"},
			StartTime:     "16:00",
			EndTime:       "18:00",
			Active:        true,
			Automatic:     true,
			Priority:      50,
			Stackable:     true,
		},
		{
			Name:          "Espresso 3-for-2",
			Type:          promotion.TypeBuyXGetY,
			BuyQuantity:   2,
			GetQuantity:   1,
			Scope:         promotion.ScopeProduct,
			ProductIDs:    []string{"prod-espresso"},
			Active:        true,
			Automatic:     true,
			Priority:      40,
			Stackable:     true,
		},
		{
			Name:           "Welcome Coupon",
			Type:           promotion.TypeCoupon,
			DiscountValue:  decimal.NewFromInt(15),
			Scope:          promotion.ScopeOrder,
			CouponCode:     "WELCOME15",
			MinOrderAmount: decimal.NewFromInt(20),
			Active:         true,
		},
		{
			Name:          "Ten Dollars Off",
			Type:          promotion.TypeCoupon,
			DiscountValue: decimal.RequireFromString("100.01"),
			Scope:         promotion.ScopeOrder,
			CouponCode:    "TENNER",
			MaxDiscount:   decimal.NewFromInt(10),
			Active:        true,
		},
	}

	for i := range promos {
		p := &promos[i]
		p.ID = uuid.New().String()
		p.TenantID = demoTenant
		p.MaxUsesPerOrder = 1
		p.StartDate = now
		p.CreatedAt = now

		err := repo.Create(ctx, p)
		if errors.Is(err, promotion.ErrDuplicateCouponCode) {
			slog.Info("coupon already seeded", slog.String("code", p.CouponCode))
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "create promotion %q", p.Name)
		}
		slog.Info("created promotion", slog.String("name", p.Name), slog.String("id", p.ID))
	}
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	const upsert = `INSERT INTO api_keys (id, tenant_id, key_hash, name, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (key_hash) DO NOTHING`
	if _, err := pool.Exec(ctx, upsert, "default", demoTenant, keyHash, "Default demo key"); err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("tenant", demoTenant))
	return nil
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
