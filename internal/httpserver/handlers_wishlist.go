package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lilgiftcorner/server/internal/auth"
	"github.com/lilgiftcorner/server/internal/wishlist"
	"github.com/lilgiftcorner/server/pkg/responders"
)

type wishlistRequest struct {
	ProductID string `json:"product_id"`
}

func (h *handlers) addToWishlist(w http.ResponseWriter, r *http.Request) {
	var req wishlistRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	if _, err := h.Wishlist.Add(r.Context(), auth.UserID(r.Context()), req.ProductID); err != nil {
		writeServiceError(w, r, "wishlist.add_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Added to wishlist",
	})
}

func (h *handlers) listWishlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Wishlist.List(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, "wishlist.list_failed", err)
		return
	}
	if entries == nil {
		entries = []wishlist.Entry{}
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"items": entries,
		"count": len(entries),
	})
}

func (h *handlers) removeFromWishlist(w http.ResponseWriter, r *http.Request) {
	if err := h.Wishlist.Remove(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "productID")); err != nil {
		writeServiceError(w, r, "wishlist.remove_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Removed from wishlist",
	})
}

func (h *handlers) checkWishlist(w http.ResponseWriter, r *http.Request) {
	ok, err := h.Wishlist.Contains(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(w, r, "wishlist.check_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, map[string]bool{"in_wishlist": ok})
}
