package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lilgiftcorner/server/internal/apikey"
	"github.com/lilgiftcorner/server/internal/auth"
	"github.com/lilgiftcorner/server/internal/cart"
	"github.com/lilgiftcorner/server/internal/checkout"
	"github.com/lilgiftcorner/server/internal/config"
	"github.com/lilgiftcorner/server/internal/coupons"
	"github.com/lilgiftcorner/server/internal/idempotency"
	"github.com/lilgiftcorner/server/internal/inquiries"
	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/internal/metrics"
	"github.com/lilgiftcorner/server/internal/orders"
	"github.com/lilgiftcorner/server/internal/products"
	"github.com/lilgiftcorner/server/internal/ratelimit"
	"github.com/lilgiftcorner/server/internal/reviews"
	"github.com/lilgiftcorner/server/internal/users"
	"github.com/lilgiftcorner/server/internal/wishlist"
)

var (
	serverStartTime = time.Now()
)

// HealthCheck is a dependency probed by /health.
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Services are the domain services the router exposes.
type Services struct {
	Tokens      *auth.Issuer
	Users       *users.Service
	Products    *products.Service
	Cart        *cart.Service
	Checkout    *checkout.Service
	Orders      *orders.Service
	Coupons     *coupons.Engine
	Reviews     *reviews.Service
	Wishlist    *wishlist.Service
	Inquiries   *inquiries.Service
	Idempotency idempotency.Store
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Health   []HealthCheck
}

// Server is the HTTP listener in front of a configured router.
type Server struct {
	httpServer *http.Server
}

type handlers struct {
	cfg *config.Config
	Services
	logger zerolog.Logger
}

// New wraps handler in an http.Server using the configured address and timeouts.
// A nil handler gets a fresh router configured with svcs.
func New(cfg *config.Config, handler http.Handler, svcs Services, appLogger zerolog.Logger) *Server {
	if handler == nil {
		router := chi.NewRouter()
		ConfigureRouter(router, cfg, svcs, appLogger)
		handler = router
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      handler,
		},
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ConfigureRouter attaches the storefront routes to an existing router.
func ConfigureRouter(router chi.Router, cfg *config.Config, svcs Services, appLogger zerolog.Logger) {
	if router == nil {
		return
	}

	h := handlers{cfg: cfg, Services: svcs, logger: appLogger}

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"X-Request-ID", idempotency.HeaderReplay},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler)
	}

	router.Use(securityHeadersMiddleware)

	// logging before RequestID so the request id reaches the context logger
	router.Use(logger.Middleware(appLogger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(recoverer)
	router.Use(metricsMiddleware(svcs.Metrics))

	// tokens are read before limiting so the per-user limiter can key on them
	router.Use(svcs.Tokens.Authenticate)

	rateLimitCfg := ratelimit.FromConfig(cfg.RateLimit, svcs.Metrics)
	router.Use(ratelimit.GlobalLimiter(rateLimitCfg))
	router.Use(ratelimit.UserLimiter(rateLimitCfg))
	router.Use(ratelimit.IPLimiter(rateLimitCfg))

	router.NotFound(h.notFound)
	router.MethodNotAllowed(h.methodNotAllowed)

	prefix := cfg.Server.RoutePrefix

	idempotencyMW := func(next http.Handler) http.Handler { return next }
	if svcs.Idempotency != nil {
		idempotencyMW = idempotency.Middleware(svcs.Idempotency, cfg.Checkout.IdempotencyTTL.Duration)
	}

	metricsHandler := promhttp.Handler()
	if svcs.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(svcs.Gatherer, promhttp.HandlerOpts{})
	}

	router.Route(prefix, func(r chi.Router) {
		// Lightweight endpoints with 5s timeout
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(5 * time.Second))
			r.Get("/", h.root)
			r.Get("/health", h.health)
			r.With(apikey.Require(cfg.Server.AdminMetricsAPIKey, isAdmin)).Handle("/metrics", metricsHandler)
		})

		// Payment endpoints call Stripe and may wait on reconciliation.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.With(idempotencyMW).Post("/checkout/session", h.createCheckoutSession)
			r.Get("/checkout/status/{checkoutSessionID}", h.checkoutStatus)
			r.Post("/checkout/webhook/stripe", h.stripeWebhook)
			r.With(idempotencyMW).Post("/orders", h.createOrder)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			h.mountShop(r)
			h.mountAccount(r)
			r.Route("/admin", h.mountAdmin)
		})
	})
}

func (h *handlers) mountShop(r chi.Router) {
	r.Post("/auth/register", h.register)
	r.Post("/auth/login", h.login)
	r.With(auth.RequireUser).Get("/auth/me", h.me)

	r.Get("/products", h.listProducts)
	r.Get("/products/search", h.searchProducts)
	r.Get("/products/categories", h.productCategories)
	r.Get("/products/suggestions", h.productSuggestions)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/products/{productID}/reviews", h.productReviews)
	r.With(auth.RequireUser).Post("/products/{productID}/reviews", h.createReview)

	r.Post("/cart", h.addToCart)
	r.Put("/cart", h.updateCartProduct)
	r.Get("/cart/{id}", h.getCart)
	r.Put("/cart/{id}", h.updateCartItem)
	r.Delete("/cart/{id}", h.removeCartItem)
	r.Delete("/cart/session/{sessionID}", h.clearCart)

	r.Get("/orders/{orderID}", h.getOrder)
	r.Get("/orders/{orderID}/timeline", h.orderTimeline)
	r.Get("/track/{orderID}", h.trackOrder)

	r.With(auth.RequireUser).Post("/coupons/validate", h.validateCoupon)
	r.Get("/coupons/active", h.activeCoupons)

	r.With(auth.RequireUser).Post("/reviews", h.createReview)
	r.Get("/reviews/product/{productID}", h.productReviews)
	r.Post("/reviews/{reviewID}/helpful", h.markReviewHelpful)
	r.With(auth.RequireUser).Delete("/reviews/{reviewID}", h.deleteReview)

	r.Post("/contact", h.submitContact)
	r.Post("/custom-gifts", h.submitCustomGift)
}

func (h *handlers) mountAccount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)

		r.Get("/wishlist", h.listWishlist)
		r.Post("/wishlist", h.addToWishlist)
		r.Delete("/wishlist/{productID}", h.removeFromWishlist)
		r.Get("/wishlist/check/{productID}", h.checkWishlist)

		r.Get("/users/profile", h.getProfile)
		r.Put("/users/profile", h.updateProfile)
		r.Get("/users/orders", h.userOrders)
		r.Get("/users/addresses", h.listAddresses)
		r.Post("/users/addresses", h.createAddress)
		r.Put("/users/addresses/{addressID}", h.updateAddress)
		r.Delete("/users/addresses/{addressID}", h.deleteAddress)
	})
}

func (h *handlers) mountAdmin(r chi.Router) {
	r.Use(auth.RequireAdmin)

	r.Get("/dashboard", h.adminDashboard)

	r.Get("/products", h.adminListProducts)
	r.Post("/products", h.adminCreateProduct)
	r.Put("/products/{productID}", h.adminUpdateProduct)
	r.Delete("/products/{productID}", h.adminDeleteProduct)
	r.Put("/products/{productID}/stock", h.adminUpdateStock)
	r.Get("/inventory/low-stock", h.adminLowStock)

	r.Get("/orders", h.adminListOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Put("/orders/{orderID}/status", h.adminUpdateOrderStatus)

	r.Get("/users", h.adminListUsers)
	r.Delete("/users/{userID}", h.adminDeleteUser)

	r.Get("/custom-gifts", h.adminListInquiries(inquiries.KindCustomGift))
	r.Put("/custom-gifts/{inquiryID}/status", h.adminUpdateInquiry(inquiries.KindCustomGift))
	r.Get("/contacts", h.adminListInquiries(inquiries.KindContact))
	r.Put("/contacts/{inquiryID}/status", h.adminUpdateInquiry(inquiries.KindContact))

	r.Get("/reviews", h.adminListReviews)
	r.Put("/reviews/{reviewID}/status", h.adminUpdateReviewStatus)

	r.Get("/coupons", h.adminListCoupons)
	r.Post("/coupons", h.adminCreateCoupon)
	r.Put("/coupons/{couponID}", h.adminUpdateCoupon)
	r.Delete("/coupons/{couponID}", h.adminDeleteCoupon)

	r.Get("/analytics/sales", h.adminSalesAnalytics)
}

func isAdmin(r *http.Request) bool {
	claims, ok := auth.UserFromContext(r.Context())
	return ok && claims.IsAdmin()
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
