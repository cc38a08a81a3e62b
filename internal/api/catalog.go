package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/platterhq/promo-service/internal/domain/promotion"
)

// promotionJSON is the admin wire shape of a promotion rule. Money fields are
// decimals so values survive the round trip exactly.
type promotionJSON struct {
	ID                string          `json:"id,omitempty"`
	Name              string          `json:"name"`
	PromoType         string          `json:"promoType"`
	DiscountValue     decimal.Decimal `json:"discountValue"`
	BuyQuantity       int             `json:"buyQuantity,omitempty"`
	GetQuantity       int             `json:"getQuantity,omitempty"`
	Scope             string          `json:"scope,omitempty"`
	ProductIDs        []string        `json:"productIds,omitempty"`
	CategoryIDs       []string        `json:"categoryIds,omitempty"`
	CouponCode        string          `json:"couponCode,omitempty"`
	MinOrderAmount    decimal.Decimal `json:"minOrderAmount"`
	MaxDiscountAmount decimal.Decimal `json:"maxDiscountAmount"`
	MaxUses           int             `json:"maxUses,omitempty"`
	MaxUsesPerOrder   int             `json:"maxUsesPerOrder,omitempty"`
	CurrentUses       int             `json:"currentUses,omitempty"`
	StartDate         time.Time       `json:"startDate,omitzero"`
	EndDate           *time.Time      `json:"endDate,omitempty"`
	DaysOfWeek        []int           `json:"daysOfWeek,omitempty"`
	StartTime         string          `json:"startTime,omitempty"`
	EndTime           string          `json:"endTime,omitempty"`
	Active            bool            `json:"active"`
	Automatic         bool            `json:"automatic"`
	Priority          int             `json:"priority"`
	Stackable         bool            `json:"stackable"`
	CreatedAt         time.Time       `json:"createdAt,omitzero"`
}

var validTypes = map[promotion.Type]bool{
	promotion.TypePercentage:  true,
	promotion.TypeFixedAmount: true,
	promotion.TypeBuyXGetY:    true,
	promotion.TypeHappyHour:   true,
	promotion.TypeCoupon:      true,
}

var validScopes = map[promotion.Scope]bool{
	promotion.ScopeOrder:    true,
	promotion.ScopeProduct:  true,
	promotion.ScopeCategory: true,
}

// toDomain validates the wire shape and fills defaults.
func (j *promotionJSON) toDomain(tenantID string, now time.Time) (*promotion.Promotion, string) {
	if j.Name == "" {
		return nil, "name required"
	}
	if !validTypes[promotion.Type(j.PromoType)] {
		return nil, "unknown promoType"
	}
	scope := promotion.Scope(j.Scope)
	if j.Scope == "" {
		scope = promotion.ScopeOrder
	} else if !validScopes[scope] {
		return nil, "unknown scope"
	}
	if promotion.Type(j.PromoType) == promotion.TypeCoupon && j.CouponCode == "" {
		return nil, "coupon promotions require couponCode"
	}
	if promotion.Type(j.PromoType) == promotion.TypeBuyXGetY && (j.BuyQuantity <= 0 || j.GetQuantity <= 0) {
		return nil, "buy_x_get_y promotions require positive buyQuantity and getQuantity"
	}

	maxUsesPerOrder := j.MaxUsesPerOrder
	if maxUsesPerOrder <= 0 {
		maxUsesPerOrder = 1
	}
	startDate := j.StartDate
	if startDate.IsZero() {
		startDate = now
	}

	return &promotion.Promotion{
		TenantID:        tenantID,
		Name:            j.Name,
		Type:            promotion.Type(j.PromoType),
		DiscountValue:   j.DiscountValue,
		BuyQuantity:     j.BuyQuantity,
		GetQuantity:     j.GetQuantity,
		Scope:           scope,
		ProductIDs:      j.ProductIDs,
		CategoryIDs:     j.CategoryIDs,
		CouponCode:      j.CouponCode,
		MinOrderAmount:  j.MinOrderAmount,
		MaxDiscount:     j.MaxDiscountAmount,
		MaxUses:         j.MaxUses,
		MaxUsesPerOrder: maxUsesPerOrder,
		StartDate:       startDate,
		EndDate:         j.EndDate,
		DaysOfWeek:      j.DaysOfWeek,
		StartTime:       j.StartTime,
		EndTime:         j.EndTime,
		Active:          j.Active,
		Automatic:       j.Automatic,
		Priority:        j.Priority,
		Stackable:       j.Stackable,
	}, ""
}

func toPromotionJSON(p *promotion.Promotion) promotionJSON {
	return promotionJSON{
		ID:                p.ID,
		Name:              p.Name,
		PromoType:         string(p.Type),
		DiscountValue:     p.DiscountValue,
		BuyQuantity:       p.BuyQuantity,
		GetQuantity:       p.GetQuantity,
		Scope:             string(p.Scope),
		ProductIDs:        p.ProductIDs,
		CategoryIDs:       p.CategoryIDs,
		CouponCode:        p.CouponCode,
		MinOrderAmount:    p.MinOrderAmount,
		MaxDiscountAmount: p.MaxDiscount,
		MaxUses:           p.MaxUses,
		MaxUsesPerOrder:   p.MaxUsesPerOrder,
		CurrentUses:       p.Uses,
		StartDate:         p.StartDate,
		EndDate:           p.EndDate,
		DaysOfWeek:        p.DaysOfWeek,
		StartTime:         p.StartTime,
		EndTime:           p.EndTime,
		Active:            p.Active,
		Automatic:         p.Automatic,
		Priority:          p.Priority,
		Stackable:         p.Stackable,
		CreatedAt:         p.CreatedAt,
	}
}

func (h *Handler) createPromotion(w http.ResponseWriter, r *http.Request) {
	var req promotionJSON
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: 400, Message: "invalid request body"})
		return
	}

	now := time.Now()
	p, msg := req.toDomain(TenantID(r.Context()), now)
	if msg != "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: 400, Message: msg})
		return
	}
	p.ID = uuid.New().String()
	p.CreatedAt = now

	if err := h.catalog.Create(r.Context(), p); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPromotionJSON(p))
}

func (h *Handler) updatePromotion(w http.ResponseWriter, r *http.Request) {
	var req promotionJSON
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: 400, Message: "invalid request body"})
		return
	}

	p, msg := req.toDomain(TenantID(r.Context()), time.Now())
	if msg != "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: 400, Message: msg})
		return
	}
	p.ID = chi.URLParam(r, "promotionID")

	if err := h.catalog.Update(r.Context(), p); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPromotionJSON(p))
}

func (h *Handler) getPromotion(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetByID(r.Context(), TenantID(r.Context()), chi.URLParam(r, "promotionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toPromotionJSON(p))
}

func (h *Handler) listPromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := h.catalog.List(r.Context(), TenantID(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]promotionJSON, 0, len(promos))
	for i := range promos {
		out = append(out, toPromotionJSON(&promos[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *Handler) deletePromotion(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), TenantID(r.Context()), chi.URLParam(r, "promotionID")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
