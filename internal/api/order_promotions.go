package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/platterhq/promo-service/internal/domain/promotion"
)

type appliedDiscountJSON struct {
	PromotionID string  `json:"promotionId"`
	PromoName   string  `json:"promoName"`
	PromoType   string  `json:"promoType"`
	Amount      float64 `json:"amount"`
	ItemID      string  `json:"itemId,omitempty"`
}

type applyResponse struct {
	Discounts     []appliedDiscountJSON `json:"discounts"`
	TotalDiscount float64               `json:"totalDiscount"`
}

func (h *Handler) applyAutomatic(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantID(r.Context())
	orderID := chi.URLParam(r, "orderID")

	res, err := h.engine.ApplyAutomatic(r.Context(), tenantID, orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := applyResponse{
		Discounts:     make([]appliedDiscountJSON, 0, len(res.Discounts)),
		TotalDiscount: res.TotalDiscount.InexactFloat64(),
	}
	for _, d := range res.Discounts {
		out.Discounts = append(out.Discounts, appliedDiscountJSON{
			PromotionID: d.PromotionID,
			PromoName:   d.PromoName,
			PromoType:   string(d.PromoType),
			Amount:      d.Amount.InexactFloat64(),
			ItemID:      d.ItemID,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

type couponRequest struct {
	Code string `json:"code"`
}

type couponResponse struct {
	PromoName      string  `json:"promoName"`
	DiscountAmount float64 `json:"discountAmount"`
	CouponCode     string  `json:"couponCode"`
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantID(r.Context())
	orderID := chi.URLParam(r, "orderID")

	var req couponRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: 400, Message: "invalid request body"})
		return
	}
	if req.Code == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Code: 400, Message: "coupon code required"})
		return
	}

	res, err := h.engine.ApplyCoupon(r.Context(), tenantID, orderID, req.Code)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, couponResponse{
		PromoName:      res.PromoName,
		DiscountAmount: res.DiscountAmount.InexactFloat64(),
		CouponCode:     res.CouponCode,
	})
}

type removeResponse struct {
	RemovedDiscount float64 `json:"removedDiscount"`
}

func (h *Handler) removePromotion(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantID(r.Context())
	orderID := chi.URLParam(r, "orderID")
	promotionID := chi.URLParam(r, "promotionID")

	removed, err := h.engine.Remove(r.Context(), tenantID, orderID, promotionID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, removeResponse{RemovedDiscount: removed.InexactFloat64()})
}

type appliedPromotionJSON struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"orderId"`
	OrderItemID    string    `json:"orderItemId,omitempty"`
	PromotionID    string    `json:"promotionId"`
	PromoName      string    `json:"promoName"`
	PromoType      string    `json:"promoType"`
	DiscountAmount float64   `json:"discountAmount"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (h *Handler) listOrderPromotions(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantID(r.Context())
	orderID := chi.URLParam(r, "orderID")

	applied, err := h.engine.ListApplied(r.Context(), tenantID, orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]appliedPromotionJSON, 0, len(applied))
	for i := range applied {
		out = append(out, toAppliedJSON(&applied[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

func toAppliedJSON(ap *promotion.AppliedPromotion) appliedPromotionJSON {
	return appliedPromotionJSON{
		ID:             ap.ID,
		OrderID:        ap.OrderID,
		OrderItemID:    ap.OrderItemID,
		PromotionID:    ap.PromotionID,
		PromoName:      ap.PromoName,
		PromoType:      string(ap.PromoType),
		DiscountAmount: ap.DiscountAmount.InexactFloat64(),
		CreatedAt:      ap.CreatedAt,
	}
}
