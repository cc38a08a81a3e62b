package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platterhq/promo-service/internal/domain/auth"
	"github.com/platterhq/promo-service/internal/domain/promotion"
)

// --- Mock implementations ---

type mockEngine struct {
	applyResult  *promotion.ApplyResult
	couponResult *promotion.CouponResult
	removed      decimal.Decimal
	applied      []promotion.AppliedPromotion
	err          error

	lastTenant string
	lastOrder  string
	lastCode   string
	lastPromo  string
}

func (m *mockEngine) ApplyAutomatic(_ context.Context, tenantID, orderID string) (*promotion.ApplyResult, error) {
	m.lastTenant, m.lastOrder = tenantID, orderID
	return m.applyResult, m.err
}

func (m *mockEngine) ApplyCoupon(_ context.Context, tenantID, orderID, code string) (*promotion.CouponResult, error) {
	m.lastTenant, m.lastOrder, m.lastCode = tenantID, orderID, code
	return m.couponResult, m.err
}

func (m *mockEngine) Remove(_ context.Context, tenantID, orderID, promotionID string) (decimal.Decimal, error) {
	m.lastTenant, m.lastOrder, m.lastPromo = tenantID, orderID, promotionID
	return m.removed, m.err
}

func (m *mockEngine) ListApplied(_ context.Context, tenantID, orderID string) ([]promotion.AppliedPromotion, error) {
	m.lastTenant, m.lastOrder = tenantID, orderID
	return m.applied, m.err
}

type mockCatalogRepo struct {
	created *promotion.Promotion
	updated *promotion.Promotion
	byID    map[string]*promotion.Promotion
	list    []promotion.Promotion
	err     error
}

func (m *mockCatalogRepo) ListAutomatic(context.Context, string, time.Time) ([]promotion.Promotion, error) {
	return nil, nil
}

func (m *mockCatalogRepo) FindCoupon(context.Context, string, string) (*promotion.Promotion, error) {
	return nil, promotion.ErrInvalidCoupon
}

func (m *mockCatalogRepo) Create(_ context.Context, p *promotion.Promotion) error {
	m.created = p
	return m.err
}

func (m *mockCatalogRepo) Update(_ context.Context, p *promotion.Promotion) error {
	m.updated = p
	return m.err
}

func (m *mockCatalogRepo) Delete(context.Context, string, string) error {
	return m.err
}

func (m *mockCatalogRepo) GetByID(_ context.Context, _, id string) (*promotion.Promotion, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, promotion.ErrPromotionNotFound
	}
	return p, nil
}

func (m *mockCatalogRepo) List(context.Context, string) ([]promotion.Promotion, error) {
	return m.list, m.err
}

type mockAPIKeyRepo struct {
	info *auth.APIKeyInfo
	err  error
}

func (m *mockAPIKeyRepo) FindByHash(_ context.Context, _ string) (*auth.APIKeyInfo, error) {
	return m.info, m.err
}

// --- Helpers ---

func serve(t *testing.T, h *Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(WithTenant(req.Context(), "demo"))

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// --- Order promotion endpoints ---

func TestApplyAutomaticEndpoint(t *testing.T) {
	eng := &mockEngine{applyResult: &promotion.ApplyResult{
		Discounts: []promotion.AppliedDiscount{
			{PromotionID: "promo-1", PromoName: "Lunch Deal", PromoType: promotion.TypePercentage, Amount: decimal.RequireFromString("3.00"), ItemID: "i1"},
		},
		TotalDiscount: decimal.RequireFromString("3.00"),
	}}
	h := NewHandler(eng, &mockCatalogRepo{})

	rec := serve(t, h, http.MethodPost, "/orders/order-1/promotions/apply", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "demo", eng.lastTenant)
	assert.Equal(t, "order-1", eng.lastOrder)

	out := decodeBody[applyResponse](t, rec)
	assert.InDelta(t, 3.00, out.TotalDiscount, 0.001)
	require.Len(t, out.Discounts, 1)
	assert.Equal(t, "promo-1", out.Discounts[0].PromotionID)
	assert.Equal(t, "i1", out.Discounts[0].ItemID)
}

func TestApplyAutomaticEndpoint_OrderNotFound(t *testing.T) {
	eng := &mockEngine{err: promotion.ErrOrderNotFound}
	h := NewHandler(eng, &mockCatalogRepo{})

	rec := serve(t, h, http.MethodPost, "/orders/missing/promotions/apply", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplyCouponEndpoint(t *testing.T) {
	eng := &mockEngine{couponResult: &promotion.CouponResult{
		PromoName:      "Welcome",
		DiscountAmount: decimal.RequireFromString("6.00"),
		CouponCode:     "WELCOME15",
	}}
	h := NewHandler(eng, &mockCatalogRepo{})

	rec := serve(t, h, http.MethodPost, "/orders/order-1/promotions/coupon", couponRequest{Code: "welcome15"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "welcome15", eng.lastCode)

	out := decodeBody[couponResponse](t, rec)
	assert.Equal(t, "WELCOME15", out.CouponCode)
	assert.InDelta(t, 6.00, out.DiscountAmount, 0.001)
}

func TestApplyCouponEndpoint_MissingCode(t *testing.T) {
	h := NewHandler(&mockEngine{}, &mockCatalogRepo{})

	rec := serve(t, h, http.MethodPost, "/orders/order-1/promotions/coupon", couponRequest{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyCouponEndpoint_InvalidBody(t *testing.T) {
	h := NewHandler(&mockEngine{}, &mockCatalogRepo{})

	req := httptest.NewRequest(http.MethodPost, "/orders/order-1/promotions/coupon", bytes.NewBufferString("{not json"))
	req = req.WithContext(WithTenant(req.Context(), "demo"))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyCouponEndpoint_ErrorStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid coupon", promotion.ErrInvalidCoupon, http.StatusUnprocessableEntity},
		{"expired", promotion.ErrCouponExpired, http.StatusUnprocessableEntity},
		{"usage limit", promotion.ErrCouponUsageLimitReached, http.StatusUnprocessableEntity},
		{"below minimum", promotion.ErrBelowMinimumOrder, http.StatusUnprocessableEntity},
		{"no applicable discount", promotion.ErrNoApplicableDiscount, http.StatusUnprocessableEntity},
		{"already applied", promotion.ErrCouponAlreadyApplied, http.StatusConflict},
		{"order not found", promotion.ErrOrderNotFound, http.StatusNotFound},
		{"internal", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockEngine{err: tc.err}, &mockCatalogRepo{})

			rec := serve(t, h, http.MethodPost, "/orders/order-1/promotions/coupon", couponRequest{Code: "X"})

			assert.Equal(t, tc.want, rec.Code)
			out := decodeBody[errorResponse](t, rec)
			assert.Equal(t, tc.want, out.Code)
		})
	}
}

func TestRemovePromotionEndpoint(t *testing.T) {
	eng := &mockEngine{removed: decimal.RequireFromString("6.00")}
	h := NewHandler(eng, &mockCatalogRepo{})

	rec := serve(t, h, http.MethodDelete, "/orders/order-1/promotions/promo-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "promo-1", eng.lastPromo)

	out := decodeBody[removeResponse](t, rec)
	assert.InDelta(t, 6.00, out.RemovedDiscount, 0.001)
}

func TestRemovePromotionEndpoint_NotApplied(t *testing.T) {
	h := NewHandler(&mockEngine{err: promotion.ErrNotApplied}, &mockCatalogRepo{})

	rec := serve(t, h, http.MethodDelete, "/orders/order-1/promotions/ghost", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrderPromotionsEndpoint(t *testing.T) {
	eng := &mockEngine{applied: []promotion.AppliedPromotion{
		{
			ID:             "row-1",
			OrderID:        "order-1",
			PromotionID:    "coupon-1",
			PromoName:      "Welcome",
			PromoType:      promotion.TypeCoupon,
			DiscountAmount: decimal.RequireFromString("6.00"),
		},
	}}
	h := NewHandler(eng, &mockCatalogRepo{})

	rec := serve(t, h, http.MethodGet, "/orders/order-1/promotions/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody[[]appliedPromotionJSON](t, rec)
	require.Len(t, out, 1)
	assert.Equal(t, "coupon-1", out[0].PromotionID)
	assert.Empty(t, out[0].OrderItemID)
}

// --- Catalog endpoints ---

func TestCreatePromotionEndpoint(t *testing.T) {
	repo := &mockCatalogRepo{}
	h := NewHandler(&mockEngine{}, repo)

	body := promotionJSON{
		Name:          "Lunch Deal",
		PromoType:     "percentage",
		DiscountValue: decimal.NewFromInt(10),
		Active:        true,
		Automatic:     true,
	}
	rec := serve(t, h, http.MethodPost, "/promotions/", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, repo.created)
	assert.Equal(t, "demo", repo.created.TenantID)
	assert.Equal(t, promotion.TypePercentage, repo.created.Type)
	assert.Equal(t, promotion.ScopeOrder, repo.created.Scope, "scope defaults to order")
	assert.Equal(t, 1, repo.created.MaxUsesPerOrder)
	assert.NotEmpty(t, repo.created.ID)
	assert.False(t, repo.created.StartDate.IsZero())
}

func TestCreatePromotionEndpoint_Validation(t *testing.T) {
	cases := []struct {
		name string
		body promotionJSON
	}{
		{"missing name", promotionJSON{PromoType: "percentage"}},
		{"unknown type", promotionJSON{Name: "X", PromoType: "mystery"}},
		{"unknown scope", promotionJSON{Name: "X", PromoType: "percentage", Scope: "galaxy"}},
		{"coupon without code", promotionJSON{Name: "X", PromoType: "coupon"}},
		{"bxgy without quantities", promotionJSON{Name: "X", PromoType: "buy_x_get_y"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&mockEngine{}, &mockCatalogRepo{})

			rec := serve(t, h, http.MethodPost, "/promotions/", tc.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreatePromotionEndpoint_DuplicateCode(t *testing.T) {
	repo := &mockCatalogRepo{err: promotion.ErrDuplicateCouponCode}
	h := NewHandler(&mockEngine{}, repo)

	body := promotionJSON{
		Name:          "Welcome",
		PromoType:     "coupon",
		DiscountValue: decimal.NewFromInt(15),
		CouponCode:    "WELCOME15",
	}
	rec := serve(t, h, http.MethodPost, "/promotions/", body)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdatePromotionEndpoint(t *testing.T) {
	repo := &mockCatalogRepo{}
	h := NewHandler(&mockEngine{}, repo)

	body := promotionJSON{
		Name:          "Lunch Deal v2",
		PromoType:     "percentage",
		DiscountValue: decimal.NewFromInt(15),
	}
	rec := serve(t, h, http.MethodPut, "/promotions/promo-1", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, repo.updated)
	assert.Equal(t, "promo-1", repo.updated.ID)
	assert.Equal(t, "Lunch Deal v2", repo.updated.Name)
}

func TestGetPromotionEndpoint(t *testing.T) {
	repo := &mockCatalogRepo{byID: map[string]*promotion.Promotion{
		"promo-1": {ID: "promo-1", Name: "Lunch Deal", Type: promotion.TypePercentage, DiscountValue: decimal.NewFromInt(10)},
	}}
	h := NewHandler(&mockEngine{}, repo)

	rec := serve(t, h, http.MethodGet, "/promotions/promo-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeBody[promotionJSON](t, rec)
	assert.Equal(t, "Lunch Deal", out.Name)
}

func TestGetPromotionEndpoint_NotFound(t *testing.T) {
	h := NewHandler(&mockEngine{}, &mockCatalogRepo{})

	rec := serve(t, h, http.MethodGet, "/promotions/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeletePromotionEndpoint(t *testing.T) {
	h := NewHandler(&mockEngine{}, &mockCatalogRepo{})

	rec := serve(t, h, http.MethodDelete, "/promotions/promo-1", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// --- API key middleware ---

func computeKeyHash(key string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRequireAPIKey(t *testing.T) {
	const key = "apitest123"
	pepper := []byte("pepper")

	hash := computeKeyHash(key, pepper)
	repo := &mockAPIKeyRepo{info: &auth.APIKeyInfo{ID: "k1", TenantID: "demo", KeyHash: hash}}

	var gotTenant string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = TenantID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	mw := RequireAPIKey(repo, pepper)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("api_key", key)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "demo", gotTenant)
}

func TestRequireAPIKey_MissingHeader(t *testing.T) {
	mw := RequireAPIKey(&mockAPIKeyRepo{}, []byte("pepper"))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAPIKey_UnknownKey(t *testing.T) {
	repo := &mockAPIKeyRepo{err: errors.New("not found")}
	mw := RequireAPIKey(repo, []byte("pepper"))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("api_key", "bogus")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
