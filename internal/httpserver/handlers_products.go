package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lilgiftcorner/server/internal/products"
	"github.com/lilgiftcorner/server/pkg/responders"
)

func (h *handlers) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := products.Filter{
		Category: strings.TrimSpace(q.Get("category")),
		Search:   strings.TrimSpace(q.Get("search")),
		MinPrice: queryFloat(r, "min_price"),
		MaxPrice: queryFloat(r, "max_price"),
		SortBy:   q.Get("sort_by"),
		Desc:     q.Get("order") != "asc",
		Limit:    queryInt(r, "limit", 0),
		Skip:     queryInt(r, "skip", 0),
	}
	if raw := q.Get("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}

	list, err := h.Products.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, "products.list_failed", err)
		return
	}
	if list == nil {
		list = []products.Product{}
	}
	responders.JSON(w, http.StatusOK, list)
}

func (h *handlers) searchProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.Products.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 20), queryInt(r, "skip", 0))
	if err != nil {
		writeServiceError(w, r, "products.search_failed", err)
		return
	}
	if list == nil {
		list = []products.Product{}
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"products": list,
		"total":    len(list),
	})
}

func (h *handlers) productCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Products.Categories(r.Context())
	if err != nil {
		writeServiceError(w, r, "products.categories_failed", err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	responders.JSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *handlers) productSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.Products.Suggestions(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 5))
	if err != nil {
		writeServiceError(w, r, "products.suggestions_failed", err)
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}
	responders.JSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (h *handlers) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.Products.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(w, r, "products.get_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, product)
}
