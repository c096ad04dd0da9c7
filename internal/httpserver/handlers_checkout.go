package httpserver

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lilgiftcorner/server/internal/auth"
	"github.com/lilgiftcorner/server/internal/checkout"
	apierrors "github.com/lilgiftcorner/server/internal/errors"
	"github.com/lilgiftcorner/server/pkg/responders"
)

const maxWebhookBytes = 64 << 10

type checkoutStatusResponse struct {
	Status        checkout.Status        `json:"status"`
	PaymentStatus checkout.PaymentStatus `json:"payment_status"`
	OrderID       *string                `json:"order_id"`
}

func (h *handlers) createCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var in checkout.CreateSessionInput
	if err := decodeJSON(r.Body, &in); err != nil {
		writeBadJSON(w)
		return
	}
	in.UserID = auth.UserID(r.Context())

	result, err := h.Checkout.CreateSession(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, "checkout.session_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, result)
}

// checkoutStatus reconciles the provider's view of the session. A paid session
// produces its order exactly once no matter how many pollers race here.
func (h *handlers) checkoutStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.Checkout.GetStatus(r.Context(), chi.URLParam(r, "checkoutSessionID"))
	if err != nil {
		writeServiceError(w, r, "checkout.status_failed", err)
		return
	}
	resp := checkoutStatusResponse{
		Status:        result.Status,
		PaymentStatus: result.PaymentStatus,
	}
	if result.OrderID != "" {
		resp.OrderID = &result.OrderID
	}
	responders.JSON(w, http.StatusOK, resp)
}

func (h *handlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeWebhookError, "Webhook error")
		return
	}
	if err := h.Checkout.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeWebhookError, "Webhook error")
		return
	}
	responders.JSON(w, http.StatusOK, map[string]string{"status": "success"})
}
