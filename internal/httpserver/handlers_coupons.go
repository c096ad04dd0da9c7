package httpserver

import (
	"net/http"

	"github.com/lilgiftcorner/server/internal/auth"
	"github.com/lilgiftcorner/server/internal/coupons"
	"github.com/lilgiftcorner/server/pkg/responders"
)

type validateCouponRequest struct {
	Code       string  `json:"code"`
	OrderValue float64 `json:"order_value"`
}

type validateCouponResponse struct {
	Valid          bool           `json:"valid"`
	Coupon         coupons.Coupon `json:"coupon"`
	DiscountAmount float64        `json:"discount_amount"`
	FinalAmount    float64        `json:"final_amount"`
}

func (h *handlers) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	result, err := h.Coupons.Validate(r.Context(), req.Code, req.OrderValue, auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, "coupons.validate_rejected", err)
		return
	}
	responders.JSON(w, http.StatusOK, validateCouponResponse{
		Valid:          true,
		Coupon:         result.Coupon,
		DiscountAmount: result.DiscountAmount,
		FinalAmount:    result.FinalAmount,
	})
}

func (h *handlers) activeCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.Coupons.ListActive(r.Context())
	if err != nil {
		writeServiceError(w, r, "coupons.active_failed", err)
		return
	}
	if list == nil {
		list = []coupons.PublicCoupon{}
	}
	responders.JSON(w, http.StatusOK, list)
}
