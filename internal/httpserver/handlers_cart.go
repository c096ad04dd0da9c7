package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lilgiftcorner/server/internal/auth"
	"github.com/lilgiftcorner/server/internal/cart"
	"github.com/lilgiftcorner/server/pkg/responders"
)

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// cartInput decodes an AddInput and binds it to the signed-in user, if any.
func cartInput(r *http.Request) (cart.AddInput, error) {
	var in cart.AddInput
	if err := decodeJSON(r.Body, &in); err != nil {
		return in, err
	}
	if uid := auth.UserID(r.Context()); uid != "" {
		in.UserID = uid
	}
	return in, nil
}

func (h *handlers) addToCart(w http.ResponseWriter, r *http.Request) {
	in, err := cartInput(r)
	if err != nil {
		writeBadJSON(w)
		return
	}
	item, err := h.Cart.Add(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, "cart.add_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, item)
}

func (h *handlers) updateCartProduct(w http.ResponseWriter, r *http.Request) {
	in, err := cartInput(r)
	if err != nil {
		writeBadJSON(w)
		return
	}
	item, err := h.Cart.UpdateProductQuantity(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, "cart.update_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, item)
}

// getCart shares the /cart/{id} pattern with the item routes; here id is the session.
func (h *handlers) getCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.Cart.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, "cart.get_failed", err)
		return
	}
	if view.Items == nil {
		view.Items = []cart.Line{}
	}
	responders.JSON(w, http.StatusOK, view)
}

func (h *handlers) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	item, err := h.Cart.UpdateQuantity(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		writeServiceError(w, r, "cart.update_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, item)
}

func (h *handlers) removeCartItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, "cart.remove_failed", err)
		return
	}
	responders.Message(w, http.StatusOK, "Item removed from cart")
}

func (h *handlers) clearCart(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Cart.Clear(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeServiceError(w, r, "cart.clear_failed", err)
		return
	}
	responders.Message(w, http.StatusOK, "Cart cleared")
}
