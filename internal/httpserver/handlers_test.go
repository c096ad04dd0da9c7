package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/lilgiftcorner/server/internal/auth"
	"github.com/lilgiftcorner/server/internal/cart"
	"github.com/lilgiftcorner/server/internal/checkout"
	"github.com/lilgiftcorner/server/internal/config"
	"github.com/lilgiftcorner/server/internal/coupons"
	"github.com/lilgiftcorner/server/internal/idempotency"
	"github.com/lilgiftcorner/server/internal/inquiries"
	"github.com/lilgiftcorner/server/internal/metrics"
	"github.com/lilgiftcorner/server/internal/orders"
	"github.com/lilgiftcorner/server/internal/products"
	"github.com/lilgiftcorner/server/internal/reviews"
	"github.com/lilgiftcorner/server/internal/stripe"
	"github.com/lilgiftcorner/server/internal/users"
	"github.com/lilgiftcorner/server/internal/wishlist"
)

const (
	testAdminEmail    = "admin@lilgiftcorner.test"
	testAdminPassword = "admin-pass"
	testMetricsKey    = "metrics-secret"
)

type stubProvider struct {
	mu            sync.Mutex
	created       int
	status        string
	paymentStatus string
}

func (p *stubProvider) CreateSession(_ context.Context, req stripe.SessionRequest) (stripe.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created++
	return stripe.Session{ID: "cs_test_http", URL: "https://pay.example/cs_test_http"}, nil
}

func (p *stubProvider) GetSession(_ context.Context, id string) (stripe.SessionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return stripe.SessionStatus{ID: id, Status: p.status, PaymentStatus: p.paymentStatus}, nil
}

func (p *stubProvider) ParseWebhook(_ context.Context, payload []byte, _ string) (stripe.WebhookEvent, error) {
	if string(payload) != "ok" {
		return stripe.WebhookEvent{}, errors.New("signature mismatch")
	}
	return stripe.WebhookEvent{ID: "evt_1", Type: "checkout.session.completed", SessionID: "cs_test_http"}, nil
}

func (p *stubProvider) report(status, payment string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status, p.paymentStatus = status, payment
}

type testServer struct {
	handler  http.Handler
	provider *stubProvider
	users    *users.Service
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			RoutePrefix:        "/api",
			AdminMetricsAPIKey: testMetricsKey,
		},
		Catalog: config.CatalogConfig{DefaultPageSize: 20, MaxPageSize: 100},
		Checkout: config.CheckoutConfig{
			IdempotencyTTL: config.Duration{Duration: time.Hour},
		},
	}
}

func newTestServer(t *testing.T, health ...HealthCheck) *testServer {
	t.Helper()

	tokens, err := auth.NewIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	now := time.Now().UTC()
	catalog := products.NewMemoryRepository(
		products.Product{ID: "p1", Name: "Photo Mug", Price: 499.99, Category: "mugs", InStock: true, StockQuantity: 20, LowStockThreshold: 5},
		products.Product{ID: "p2", Name: "Greeting Card", Price: 50, Category: "cards", InStock: true, StockQuantity: 2, LowStockThreshold: 5},
	)
	engine := coupons.NewEngine(coupons.NewMemoryRepository(coupons.Coupon{
		ID:            "c1",
		Code:          "SAVE10",
		Type:          coupons.DiscountTypePercentage,
		Value:         10,
		MinOrderValue: 500,
		IsActive:      true,
		ValidFrom:     now.Add(-time.Hour),
		ValidUntil:    now.Add(time.Hour),
	}), coupons.WithMetrics(m))

	userSvc := users.NewService(users.NewMemoryRepository(), tokens)
	if _, err := userSvc.EnsureAdmin(context.Background(), testAdminEmail, testAdminPassword, "Admin"); err != nil {
		t.Fatalf("EnsureAdmin() error = %v", err)
	}

	cartSvc := cart.NewService(cart.NewMemoryRepository(), catalog)
	orderSvc := orders.NewService(orders.NewMemoryRepository(), engine, m)
	provider := &stubProvider{status: "open", paymentStatus: "unpaid"}
	checkoutSvc := checkout.NewService(checkout.NewMemoryRepository(), cartSvc, orderSvc, engine, provider,
		checkout.WithPollInterval(5*time.Millisecond),
		checkout.WithMetrics(m),
	)

	store := idempotency.NewMemoryStore()
	t.Cleanup(store.Stop)

	svcs := Services{
		Tokens:      tokens,
		Users:       userSvc,
		Products:    products.NewService(catalog, testConfig().Catalog),
		Cart:        cartSvc,
		Checkout:    checkoutSvc,
		Orders:      orderSvc,
		Coupons:     engine,
		Reviews:     reviews.NewService(reviews.NewMemoryRepository(), catalog, orderSvc),
		Wishlist:    wishlist.NewService(wishlist.NewMemoryRepository(), catalog),
		Inquiries:   inquiries.NewService(inquiries.NewMemoryRepository()),
		Idempotency: store,
		Metrics:     m,
		Gatherer:    registry,
		Health:      health,
	}

	router := chi.NewRouter()
	ConfigureRouter(router, testConfig(), svcs, zerolog.Nop())
	return &testServer{handler: router, provider: provider, users: userSvc}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, email string) string {
	t.Helper()
	rec := s.do(t, "POST", "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": "secret123",
		"name":     "Asha",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, rec, &resp)
	return resp.Token
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	rec := s.do(t, "POST", "/api/auth/login", "", map[string]string{
		"email":    testAdminEmail,
		"password": testAdminPassword,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, rec, &resp)
	return resp.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rec, &resp)
	return resp.Error.Code
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantBody   string
	}{
		{"no dependencies", nil, http.StatusOK, "ok"},
		{"healthy store", []HealthCheck{{Name: "mongodb", Ping: func(context.Context) error { return nil }}}, http.StatusOK, "ok"},
		{"failing store", []HealthCheck{{Name: "mongodb", Ping: func(context.Context) error { return errors.New("down") }}}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.checks...)
			rec := s.do(t, "GET", "/api/health", "", nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp healthResponse
			decode(t, rec, &resp)
			if resp.Status != tt.wantBody {
				t.Errorf("health status = %q, want %q", resp.Status, tt.wantBody)
			}
		})
	}
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "asha@example.com")

	rec := s.do(t, "GET", "/api/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var me publicUser
	decode(t, rec, &me)
	if me.Email != "asha@example.com" || me.Role != auth.RoleCustomer {
		t.Errorf("me = %+v", me)
	}

	if rec := s.do(t, "GET", "/api/auth/me", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous me status = %d, want 401", rec.Code)
	}
	if rec := s.do(t, "GET", "/api/auth/me", "garbage", nil); errorCode(t, rec) != "invalid_token" {
		t.Errorf("bad token code = %s, want invalid_token", errorCode(t, rec))
	}

	dup := s.do(t, "POST", "/api/auth/register", "", map[string]string{"email": "ASHA@example.com", "password": "secret123", "name": "A"})
	if dup.Code != http.StatusBadRequest || errorCode(t, dup) != "email_registered" {
		t.Errorf("duplicate register = %d %s", dup.Code, dup.Body.String())
	}

	bad := s.do(t, "POST", "/api/auth/login", "", map[string]string{"email": "asha@example.com", "password": "wrong"})
	if bad.Code != http.StatusUnauthorized || errorCode(t, bad) != "invalid_credentials" {
		t.Errorf("bad login = %d %s", bad.Code, bad.Body.String())
	}
}

func TestCartFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, "POST", "/api/cart", "", map[string]any{"session_id": "sess-1", "product_id": "p1", "quantity": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var item cart.Item
	decode(t, rec, &item)

	s.do(t, "POST", "/api/cart", "", map[string]any{"session_id": "sess-1", "product_id": "p2", "quantity": 1})

	rec = s.do(t, "GET", "/api/cart/sess-1", "", nil)
	var view struct {
		Items     []cart.Line `json:"items"`
		Total     float64     `json:"total"`
		ItemCount int         `json:"item_count"`
	}
	decode(t, rec, &view)
	if view.Total != 1049.98 || view.ItemCount != 2 || len(view.Items) != 2 {
		t.Errorf("cart = %+v, want total 1049.98 over 2 lines", view)
	}

	if rec := s.do(t, "PUT", "/api/cart/"+item.ID, "", map[string]int{"quantity": 0}); rec.Code != http.StatusBadRequest {
		t.Errorf("zero quantity status = %d, want 400", rec.Code)
	}
	if rec := s.do(t, "DELETE", "/api/cart/"+item.ID, "", nil); rec.Code != http.StatusOK {
		t.Errorf("remove status = %d", rec.Code)
	}
	rec = s.do(t, "DELETE", "/api/cart/"+item.ID, "", nil)
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != "cart_item_not_found" {
		t.Errorf("second remove = %d %s", rec.Code, rec.Body.String())
	}

	if rec := s.do(t, "POST", "/api/cart", "", map[string]any{"session_id": "sess-1", "product_id": "nope", "quantity": 1}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown product status = %d, want 404", rec.Code)
	}

	if rec := s.do(t, "DELETE", "/api/cart/session/sess-1", "", nil); rec.Code != http.StatusOK {
		t.Errorf("clear status = %d", rec.Code)
	}
	decode(t, s.do(t, "GET", "/api/cart/sess-1", "", nil), &view)
	if len(view.Items) != 0 || view.Total != 0 {
		t.Errorf("cleared cart = %+v", view)
	}
}

func TestValidateCoupon(t *testing.T) {
	s := newTestServer(t)
	token := s.register(t, "coupon@example.com")

	tests := []struct {
		name       string
		token      string
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{"anonymous", "", map[string]any{"code": "SAVE10", "order_value": 1000}, http.StatusUnauthorized, "unauthorized"},
		{"unknown code", token, map[string]any{"code": "NOPE", "order_value": 1000}, http.StatusNotFound, "coupon_not_found"},
		{"below minimum", token, map[string]any{"code": "SAVE10", "order_value": 100}, http.StatusBadRequest, "coupon_below_minimum"},
		{"valid lower case", token, map[string]any{"code": "save10", "order_value": 1000}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, "POST", "/api/coupons/validate", tt.token, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode != "" {
				if got := errorCode(t, rec); got != tt.wantCode {
					t.Errorf("code = %s, want %s", got, tt.wantCode)
				}
				return
			}
			var resp validateCouponResponse
			decode(t, rec, &resp)
			if !resp.Valid || resp.DiscountAmount != 100 || resp.FinalAmount != 900 {
				t.Errorf("validate = %+v", resp)
			}
		})
	}

	rec := s.do(t, "POST", "/api/coupons/validate", token, map[string]any{"code": "SAVE10", "order_value": 100})
	var resp struct {
		Detail string `json:"detail"`
	}
	decode(t, rec, &resp)
	if !strings.Contains(resp.Detail, "Minimum order value") {
		t.Errorf("detail = %q, want minimum order message", resp.Detail)
	}
}

func TestCheckoutCreatesOneOrder(t *testing.T) {
	s := newTestServer(t)
	s.do(t, "POST", "/api/cart", "", map[string]any{"session_id": "sess-9", "product_id": "p1", "quantity": 1})

	body := map[string]string{"session_id": "sess-9", "origin_url": "https://shop.example"}
	first := s.do(t, "POST", "/api/checkout/session", "", body, idempotency.HeaderKey, "k-1")
	if first.Code != http.StatusOK {
		t.Fatalf("session status = %d, body = %s", first.Code, first.Body.String())
	}
	second := s.do(t, "POST", "/api/checkout/session", "", body, idempotency.HeaderKey, "k-1")
	if second.Header().Get(idempotency.HeaderReplay) != "true" {
		t.Error("expected replayed session response")
	}
	if s.provider.created != 1 {
		t.Errorf("provider sessions = %d, want 1", s.provider.created)
	}

	var pending checkoutStatusResponse
	decode(t, s.do(t, "GET", "/api/checkout/status/cs_test_http", "", nil), &pending)
	if pending.OrderID != nil {
		t.Errorf("unpaid session has order %v", *pending.OrderID)
	}

	s.provider.report("complete", "paid")
	var paid, again checkoutStatusResponse
	decode(t, s.do(t, "GET", "/api/checkout/status/cs_test_http", "", nil), &paid)
	decode(t, s.do(t, "GET", "/api/checkout/status/cs_test_http", "", nil), &again)
	if paid.OrderID == nil || again.OrderID == nil || *paid.OrderID != *again.OrderID {
		t.Fatalf("order ids = %v, %v, want one stable id", paid.OrderID, again.OrderID)
	}
	if paid.PaymentStatus != checkout.PaymentPaid {
		t.Errorf("payment_status = %s, want paid", paid.PaymentStatus)
	}

	rec := s.do(t, "GET", "/api/track/"+*paid.OrderID, "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("track status = %d", rec.Code)
	}

	if rec := s.do(t, "GET", "/api/checkout/status/cs_unknown", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}
}

func TestStripeWebhook(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(t, "POST", "/api/checkout/webhook/stripe", "", "ok"); rec.Code != http.StatusOK {
		t.Errorf("valid webhook status = %d", rec.Code)
	}
	rec := s.do(t, "POST", "/api/checkout/webhook/stripe", "", "tampered")
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "webhook_error" {
		t.Errorf("invalid webhook = %d %s", rec.Code, rec.Body.String())
	}
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	customer := s.register(t, "shopper@example.com")
	admin := s.adminToken(t)

	if rec := s.do(t, "GET", "/api/admin/dashboard", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous dashboard = %d, want 401", rec.Code)
	}
	if rec := s.do(t, "GET", "/api/admin/dashboard", customer, nil); rec.Code != http.StatusForbidden {
		t.Errorf("customer dashboard = %d, want 403", rec.Code)
	}

	rec := s.do(t, "GET", "/api/admin/dashboard", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin dashboard = %d, body = %s", rec.Code, rec.Body.String())
	}
	var d dashboard
	decode(t, rec, &d)
	if d.TotalProducts != 2 || d.TotalUsers != 2 || d.LowStockProducts != 1 {
		t.Errorf("dashboard = %+v", d)
	}

	rec = s.do(t, "POST", "/api/admin/coupons", admin, map[string]any{"code": "save10", "type": "fixed", "value": 50})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "duplicate_coupon" {
		t.Errorf("duplicate coupon = %d %s", rec.Code, rec.Body.String())
	}

	if rec := s.do(t, "PUT", "/api/admin/products/p2/stock?quantity=40", admin, nil); rec.Code != http.StatusOK {
		t.Errorf("stock update = %d %s", rec.Code, rec.Body.String())
	}
	var low struct {
		Count int `json:"count"`
	}
	decode(t, s.do(t, "GET", "/api/admin/inventory/low-stock", admin, nil), &low)
	if low.Count != 0 {
		t.Errorf("low stock count = %d, want 0 after restock", low.Count)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, "GET", "/api/products", "", nil)

	if rec := s.do(t, "GET", "/api/metrics", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("metrics without key = %d, want 401", rec.Code)
	}

	rec := s.do(t, "GET", "/api/metrics", "", nil, "X-API-Key", testMetricsKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics with key = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/api/products"`) {
		t.Error("metrics missing the products route label")
	}

	if rec := s.do(t, "GET", "/api/metrics", s.adminToken(t), nil); rec.Code != http.StatusOK {
		t.Errorf("metrics with admin session = %d, want 200", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"unknown route", "GET", "/api/nowhere", http.StatusNotFound, "not_found"},
		{"missing product", "GET", "/api/products/missing", http.StatusNotFound, "product_not_found"},
		{"missing order", "GET", "/api/orders/missing", http.StatusNotFound, "order_not_found"},
		{"short search", "GET", "/api/products/search?q=a", http.StatusBadRequest, "invalid_field"},
		{"wishlist anonymous", "GET", "/api/wishlist", http.StatusUnauthorized, "unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, "", nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := errorCode(t, rec); got != tt.wantCode {
				t.Errorf("code = %s, want %s", got, tt.wantCode)
			}
		})
	}
}

func TestClassifyUnknownError(t *testing.T) {
	code, msg, known := classify(errors.New("boom"))
	if known || code != "internal_error" || msg != "Internal server error" {
		t.Errorf("classify() = %s, %q, %v", code, msg, known)
	}
	code, _, _ = classify(&coupons.MinimumOrderError{Minimum: 500})
	if code != "coupon_below_minimum" {
		t.Errorf("classify(MinimumOrderError) = %s", code)
	}
}

func TestClassifyCouponMessages(t *testing.T) {
	tests := []struct {
		err     error
		wantMsg string
	}{
		{coupons.ErrCouponAlreadyUsed, "You've already used this coupon"},
		{fmt.Errorf("record: %w", coupons.ErrCouponAlreadyUsed), "You've already used this coupon"},
	}
	for _, tt := range tests {
		if _, msg, _ := classify(tt.err); msg != tt.wantMsg {
			t.Errorf("classify(%v) message = %q, want %q", tt.err, msg, tt.wantMsg)
		}
	}
}
