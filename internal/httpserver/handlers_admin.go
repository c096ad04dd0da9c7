package httpserver

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lilgiftcorner/server/internal/coupons"
	"github.com/lilgiftcorner/server/internal/inquiries"
	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/internal/orders"
	"github.com/lilgiftcorner/server/internal/products"
	"github.com/lilgiftcorner/server/internal/reviews"
	"github.com/lilgiftcorner/server/internal/users"
	"github.com/lilgiftcorner/server/pkg/responders"
)

type statusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type stockRequest struct {
	Quantity *int `json:"quantity"`
}

type dashboard struct {
	TotalProducts      int64          `json:"total_products"`
	TotalOrders        int64          `json:"total_orders"`
	TotalUsers         int64          `json:"total_users"`
	TotalSales         float64        `json:"total_sales"`
	RecentOrders       []orders.Order `json:"recent_orders"`
	PendingOrders      int64          `json:"pending_orders"`
	CompletedOrders    int64          `json:"completed_orders"`
	LowStockProducts   int            `json:"low_stock_products"`
	PendingCustomGifts int            `json:"pending_custom_gifts"`
	PendingContacts    int            `json:"pending_contacts"`
}

type lowStockProduct struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	StockQuantity     int    `json:"stock_quantity"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	Category          string `json:"category"`
}

func (h *handlers) buildDashboard(ctx context.Context) (dashboard, error) {
	var (
		d   dashboard
		err error
	)
	if d.TotalProducts, err = h.Products.Count(ctx); err != nil {
		return d, err
	}
	if d.TotalOrders, err = h.Orders.Count(ctx, ""); err != nil {
		return d, err
	}
	if d.TotalUsers, err = h.Users.Count(ctx); err != nil {
		return d, err
	}
	if d.TotalSales, err = h.Orders.TotalSales(ctx); err != nil {
		return d, err
	}
	if d.RecentOrders, err = h.Orders.Recent(ctx, 5); err != nil {
		return d, err
	}
	if d.PendingOrders, err = h.Orders.Count(ctx, orders.StatusPending); err != nil {
		return d, err
	}
	if d.CompletedOrders, err = h.Orders.Count(ctx, orders.StatusCompleted); err != nil {
		return d, err
	}
	low, err := h.Products.LowStock(ctx)
	if err != nil {
		return d, err
	}
	d.LowStockProducts = len(low)
	gifts, err := h.Inquiries.List(ctx, inquiries.KindCustomGift, inquiries.StatusNew, 0)
	if err != nil {
		return d, err
	}
	d.PendingCustomGifts = len(gifts)
	contacts, err := h.Inquiries.List(ctx, inquiries.KindContact, inquiries.StatusNew, 0)
	if err != nil {
		return d, err
	}
	d.PendingContacts = len(contacts)
	if d.RecentOrders == nil {
		d.RecentOrders = []orders.Order{}
	}
	return d, nil
}

func (h *handlers) adminDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.buildDashboard(r.Context())
	if err != nil {
		writeServiceError(w, r, "admin.dashboard_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, d)
}

// Products

func (h *handlers) adminListProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.Products.List(r.Context(), products.Filter{Desc: true})
	if err != nil {
		writeServiceError(w, r, "admin.products_failed", err)
		return
	}
	if list == nil {
		list = []products.Product{}
	}
	responders.JSON(w, http.StatusOK, map[string]any{"products": list})
}

func (h *handlers) adminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req products.NewProduct
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	product, err := h.Products.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, "admin.product_create_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, product)
}

func (h *handlers) adminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req products.Update
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	if _, err := h.Products.Update(r.Context(), chi.URLParam(r, "productID"), req); err != nil {
		writeServiceError(w, r, "admin.product_update_failed", err)
		return
	}
	responders.Message(w, http.StatusOK, "Product updated")
}

func (h *handlers) adminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Products.Delete(r.Context(), chi.URLParam(r, "productID")); err != nil {
		writeServiceError(w, r, "admin.product_delete_failed", err)
		return
	}
	responders.Message(w, http.StatusOK, "Product deleted")
}

// adminUpdateStock takes the quantity from the query string or a JSON body.
func (h *handlers) adminUpdateStock(w http.ResponseWriter, r *http.Request) {
	var req stockRequest
	if raw := r.URL.Query().Get("quantity"); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil {
			writeServiceError(w, r, "admin.stock_update_failed", products.ErrInvalidProduct)
			return
		}
		req.Quantity = &q
	} else if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	if req.Quantity == nil {
		writeServiceError(w, r, "admin.stock_update_failed", products.ErrInvalidProduct)
		return
	}
	if _, err := h.Products.SetStock(r.Context(), chi.URLParam(r, "productID"), *req.Quantity); err != nil {
		writeServiceError(w, r, "admin.stock_update_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Stock updated",
	})
}

func (h *handlers) adminLowStock(w http.ResponseWriter, r *http.Request) {
	list, err := h.Products.LowStock(r.Context())
	if err != nil {
		writeServiceError(w, r, "admin.low_stock_failed", err)
		return
	}
	out := make([]lowStockProduct, 0, len(list))
	for _, p := range list {
		out = append(out, lowStockProduct{
			ID:                p.ID,
			Name:              p.Name,
			StockQuantity:     p.StockQuantity,
			LowStockThreshold: p.LowStockThreshold,
			Category:          p.Category,
		})
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"low_stock_products": out,
		"count":              len(out),
	})
}

// Orders

func (h *handlers) adminListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.Orders.List(r.Context(), orders.ListFilter{
		Status: orders.Status(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 100),
		Skip:   queryInt(r, "skip", 0),
	})
	if err != nil {
		writeServiceError(w, r, "admin.orders_failed", err)
		return
	}
	if page.Orders == nil {
		page.Orders = []orders.Order{}
	}
	responders.JSON(w, http.StatusOK, page)
}

func (h *handlers) adminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	status, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeServiceError(w, r, "admin.order_status_failed", err)
		return
	}
	if _, err := h.Orders.UpdateStatus(r.Context(), chi.URLParam(r, "orderID"), status, req.Note); err != nil {
		writeServiceError(w, r, "admin.order_status_failed", err)
		return
	}
	responders.Message(w, http.StatusOK, "Order status updated")
}

// Users

func (h *handlers) adminListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.Users.List(r.Context(), queryInt(r, "limit", 1000))
	if err != nil {
		writeServiceError(w, r, "admin.users_failed", err)
		return
	}
	if list == nil {
		list = []users.User{}
	}
	responders.JSON(w, http.StatusOK, map[string]any{"users": list})
}

func (h *handlers) adminDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if err := h.Users.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, "admin.user_delete_failed", err)
		return
	}
	log := logger.FromContext(r.Context())
	log.Info().Str("user_id", id).Msg("admin.user_deleted")
	responders.Message(w, http.StatusOK, "User deleted")
}

// Inquiries

func (h *handlers) adminListInquiries(kind inquiries.Kind) http.HandlerFunc {
	key := "contacts"
	if kind == inquiries.KindCustomGift {
		key = "custom_gifts"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := h.Inquiries.List(r.Context(), kind, r.URL.Query().Get("status"), 0)
		if err != nil {
			writeServiceError(w, r, "admin.inquiries_failed", err)
			return
		}
		if list == nil {
			list = []inquiries.Inquiry{}
		}
		responders.JSON(w, http.StatusOK, map[string]any{key: list})
	}
}

func (h *handlers) adminUpdateInquiry(kind inquiries.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req statusRequest
		if err := decodeJSON(r.Body, &req); err != nil {
			writeBadJSON(w)
			return
		}
		if _, err := h.Inquiries.UpdateStatus(r.Context(), kind, chi.URLParam(r, "inquiryID"), req.Status); err != nil {
			writeServiceError(w, r, "admin.inquiry_status_failed", err)
			return
		}
		responders.Message(w, http.StatusOK, "Status updated")
	}
}

// Reviews

func (h *handlers) adminListReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.Reviews.List(r.Context(), reviews.Status(r.URL.Query().Get("status")), 0)
	if err != nil {
		writeServiceError(w, r, "admin.reviews_failed", err)
		return
	}
	if list == nil {
		list = []reviews.Review{}
	}
	responders.JSON(w, http.StatusOK, map[string]any{"reviews": list})
}

func (h *handlers) adminUpdateReviewStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	if req.Status == "" {
		req.Status = string(reviews.StatusApproved)
	}
	if _, err := h.Reviews.UpdateStatus(r.Context(), chi.URLParam(r, "reviewID"), reviews.Status(req.Status)); err != nil {
		writeServiceError(w, r, "admin.review_status_failed", err)
		return
	}
	responders.Message(w, http.StatusOK, "Review status updated")
}

// Coupons

func (h *handlers) adminListCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.Coupons.ListCoupons(r.Context())
	if err != nil {
		writeServiceError(w, r, "admin.coupons_failed", err)
		return
	}
	if list == nil {
		list = []coupons.Coupon{}
	}
	responders.JSON(w, http.StatusOK, map[string]any{"coupons": list})
}

func (h *handlers) adminCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req coupons.NewCoupon
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	coupon, err := h.Coupons.CreateCoupon(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, "admin.coupon_create_failed", err)
		return
	}
	responders.JSON(w, http.StatusOK, coupon)
}

func (h *handlers) adminUpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req coupons.Update
	if err := decodeJSON(r.Body, &req); err != nil {
		writeBadJSON(w)
		return
	}
	if _, err := h.Coupons.UpdateCoupon(r.Context(), chi.URLParam(r, "couponID"), req); err != nil {
		writeServiceError(w, r, "admin.coupon_update_failed", err)
		return
	}
	responders.Message(w, http.StatusOK, "Coupon updated")
}

func (h *handlers) adminDeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.Coupons.DeleteCoupon(r.Context(), chi.URLParam(r, "couponID")); err != nil {
		writeServiceError(w, r, "admin.coupon_delete_failed", err)
		return
	}
	responders.Message(w, http.StatusOK, "Coupon deleted")
}

// Analytics

func (h *handlers) adminSalesAnalytics(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	rows, err := h.Orders.SalesAnalytics(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, "admin.analytics_failed", err)
		return
	}
	if rows == nil {
		rows = []orders.DailySales{}
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"sales_data": rows,
		"days":       days,
	})
}
