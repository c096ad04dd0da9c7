package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lilgiftcorner/server/internal/auth"
	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/internal/orders"
	"github.com/lilgiftcorner/server/pkg/responders"
)

func (h *handlers) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.NewOrder
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	order, err := h.Orders.Create(r.Context(), req, auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, "orders.create_failed", err)
		return
	}
	log := logger.FromContext(r.Context())
	log.Info().
		Str("order_id", order.ID).
		Str("payment_method", string(order.PaymentMethod)).
		Float64("total_amount", order.TotalAmount).
		Msg("orders.created")
	responders.JSON(w, http.StatusOK, order)
}

// getOrder serves both the public lookup and the admin detail view.
func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(w, r, "orders.get_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, order)
}

func (h *handlers) orderTimeline(w http.ResponseWriter, r *http.Request) {
	timeline, err := h.Orders.Timeline(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(w, r, "orders.timeline_failed", err)
		return
	}
	if timeline.Timeline == nil {
		timeline.Timeline = []orders.HistoryEntry{}
	}
	responders.JSON(w, http.StatusOK, timeline)
}

func (h *handlers) trackOrder(w http.ResponseWriter, r *http.Request) {
	tracking, err := h.Orders.Track(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(w, r, "orders.track_failed", err)
		return
	}
	if tracking.Timeline == nil {
		tracking.Timeline = []orders.HistoryEntry{}
	}
	responders.JSON(w, http.StatusOK, tracking)
}
