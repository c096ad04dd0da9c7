package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lilgiftcorner/server/internal/auth"
	"github.com/lilgiftcorner/server/internal/reviews"
	"github.com/lilgiftcorner/server/pkg/responders"
)

// author resolves the signed-in user into a review author.
func (h *handlers) author(r *http.Request) (reviews.Author, error) {
	claims, _ := auth.UserFromContext(r.Context())
	user, err := h.Users.Get(r.Context(), claims.UserID)
	if err != nil {
		return reviews.Author{}, err
	}
	return reviews.Author{ID: user.ID, Name: user.Name, IsAdmin: claims.IsAdmin()}, nil
}

func (h *handlers) createReview(w http.ResponseWriter, r *http.Request) {
	var req reviews.NewReview
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	if pid := chi.URLParam(r, "productID"); pid != "" {
		req.ProductID = pid
	}
	author, err := h.author(r)
	if err != nil {
		writeServiceError(w, r, "reviews.author_failed", err)
		return
	}
	review, err := h.Reviews.Create(r.Context(), author, req)
	if err != nil {
		writeServiceError(w, r, "reviews.create_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, review)
}

func (h *handlers) productReviews(w http.ResponseWriter, r *http.Request) {
	page, err := h.Reviews.ListForProduct(r.Context(),
		chi.URLParam(r, "productID"),
		r.URL.Query().Get("sort"),
		queryInt(r, "limit", 0),
		queryInt(r, "skip", 0),
	)
	if err != nil {
		writeServiceError(w, r, "reviews.list_failed", err)
		return
	}
	if page.Reviews == nil {
		page.Reviews = []reviews.Review{}
	}
	responders.JSON(w, http.StatusOK, page)
}

func (h *handlers) markReviewHelpful(w http.ResponseWriter, r *http.Request) {
	if err := h.Reviews.MarkHelpful(r.Context(), chi.URLParam(r, "reviewID")); err != nil {
		writeServiceError(w, r, "reviews.helpful_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *handlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.UserFromContext(r.Context())
	author := reviews.Author{ID: claims.UserID, IsAdmin: claims.IsAdmin()}
	if err := h.Reviews.Delete(r.Context(), author, chi.URLParam(r, "reviewID")); err != nil {
		writeServiceError(w, r, "reviews.delete_failed", err)
		return
	}
	responders.Message(w, http.StatusOK, "Review deleted")
}
