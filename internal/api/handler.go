// Package api exposes the promotion engine over a thin JSON HTTP surface.
// Request validation and transport concerns live here; all business rules
// stay in the domain packages.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/platterhq/promo-service/internal/domain/promotion"
)

// Engine is the subset of the promotion service the handlers need.
type Engine interface {
	ApplyAutomatic(ctx context.Context, tenantID, orderID string) (*promotion.ApplyResult, error)
	ApplyCoupon(ctx context.Context, tenantID, orderID, code string) (*promotion.CouponResult, error)
	Remove(ctx context.Context, tenantID, orderID, promotionID string) (decimal.Decimal, error)
	ListApplied(ctx context.Context, tenantID, orderID string) ([]promotion.AppliedPromotion, error)
}

// Handler serves the engine and catalog-administration endpoints.
type Handler struct {
	engine  Engine
	catalog promotion.Repository
}

// NewHandler constructs a Handler over the engine and the promotion catalog.
func NewHandler(engine Engine, catalog promotion.Repository) *Handler {
	return &Handler{engine: engine, catalog: catalog}
}

// Routes returns the router for all API endpoints. Callers mount it behind
// the authentication middleware that resolves the tenant.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/orders/{orderID}/promotions", func(r chi.Router) {
		r.Get("/", h.listOrderPromotions)
		r.Post("/apply", h.applyAutomatic)
		r.Post("/coupon", h.applyCoupon)
		r.Delete("/{promotionID}", h.removePromotion)
	})

	r.Route("/promotions", func(r chi.Router) {
		r.Get("/", h.listPromotions)
		r.Post("/", h.createPromotion)
		r.Get("/{promotionID}", h.getPromotion)
		r.Put("/{promotionID}", h.updatePromotion)
		r.Delete("/{promotionID}", h.deletePromotion)
	})

	return r
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps domain sentinels to HTTP statuses. Unknown errors are
// logged and surfaced as 500 without detail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, promotion.ErrOrderNotFound),
		errors.Is(err, promotion.ErrPromotionNotFound),
		errors.Is(err, promotion.ErrNotApplied):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, promotion.ErrCouponAlreadyApplied),
		errors.Is(err, promotion.ErrDuplicateCouponCode):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, promotion.ErrInvalidCoupon),
		errors.Is(err, promotion.ErrCouponExpired),
		errors.Is(err, promotion.ErrCouponUsageLimitReached),
		errors.Is(err, promotion.ErrBelowMinimumOrder),
		errors.Is(err, promotion.ErrNoApplicableDiscount):
		status = http.StatusUnprocessableEntity
		message = err.Error()
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
	}

	respondJSON(w, status, errorResponse{Code: status, Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
