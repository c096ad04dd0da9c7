package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lilgiftcorner/server/internal/auth"
	"github.com/lilgiftcorner/server/internal/orders"
	"github.com/lilgiftcorner/server/internal/users"
	"github.com/lilgiftcorner/server/pkg/responders"
)

type profileResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.Get(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, "users.profile_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, profileResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		Phone:     user.Phone,
		CreatedAt: user.CreatedAt,
	})
}

func (h *handlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req users.Profile
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	if _, err := h.Users.UpdateProfile(r.Context(), auth.UserID(r.Context()), req); err != nil {
		writeServiceError(w, r, "users.profile_update_failed", err)
		return
	}
	responders.Message(w, http.StatusOK, "Profile updated successfully")
}

func (h *handlers) userOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Orders.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, "users.orders_failed", err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	responders.JSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *handlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	list, err := h.Users.Addresses(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, "users.addresses_failed", err)
		return
	}
	if list == nil {
		list = []users.Address{}
	}
	responders.JSON(w, http.StatusOK, map[string]any{"addresses": list})
}

func (h *handlers) createAddress(w http.ResponseWriter, r *http.Request) {
	var req users.AddressInput
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	addr, err := h.Users.CreateAddress(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		writeServiceError(w, r, "users.address_create_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, addr)
}

func (h *handlers) updateAddress(w http.ResponseWriter, r *http.Request) {
	var req users.AddressInput
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	if _, err := h.Users.UpdateAddress(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "addressID"), req); err != nil {
		writeServiceError(w, r, "users.address_update_failed", err)
		return
	}
	responders.Message(w, http.StatusOK, "Address updated successfully")
}

func (h *handlers) deleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.DeleteAddress(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "addressID")); err != nil {
		writeServiceError(w, r, "users.address_delete_failed", err)
		return
	}
	responders.Message(w, http.StatusOK, "Address deleted successfully")
}
