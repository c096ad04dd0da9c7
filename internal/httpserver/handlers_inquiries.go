package httpserver

import (
	"net/http"

	"github.com/lilgiftcorner/server/internal/inquiries"
	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/pkg/responders"
)

func (h *handlers) submitContact(w http.ResponseWriter, r *http.Request) {
	h.submitInquiry(w, r, inquiries.KindContact)
}

func (h *handlers) submitCustomGift(w http.ResponseWriter, r *http.Request) {
	h.submitInquiry(w, r, inquiries.KindCustomGift)
}

func (h *handlers) submitInquiry(w http.ResponseWriter, r *http.Request, kind inquiries.Kind) {
	var req inquiries.Inquiry
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	inquiry, err := h.Inquiries.Submit(r.Context(), kind, req)
	if err != nil {
		writeServiceError(w, r, "inquiries.submit_failed", err)
		return
	}
	log := logger.FromContext(r.Context())
	log.Info().
		Str("inquiry_id", inquiry.ID).
		Str("kind", string(kind)).
		Str("email", logger.RedactEmail(inquiry.Email)).
		Msg("inquiries.submitted")
	responders.JSON(w, http.StatusOK, inquiry)
}
