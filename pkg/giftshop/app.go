package giftshop

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/lilgiftcorner/server/internal/auth"
	"github.com/lilgiftcorner/server/internal/cart"
	"github.com/lilgiftcorner/server/internal/checkout"
	"github.com/lilgiftcorner/server/internal/circuitbreaker"
	"github.com/lilgiftcorner/server/internal/config"
	"github.com/lilgiftcorner/server/internal/coupons"
	"github.com/lilgiftcorner/server/internal/dbpool"
	"github.com/lilgiftcorner/server/internal/httpserver"
	"github.com/lilgiftcorner/server/internal/idempotency"
	"github.com/lilgiftcorner/server/internal/inquiries"
	"github.com/lilgiftcorner/server/internal/lifecycle"
	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/internal/metrics"
	"github.com/lilgiftcorner/server/internal/orders"
	"github.com/lilgiftcorner/server/internal/products"
	"github.com/lilgiftcorner/server/internal/reviews"
	"github.com/lilgiftcorner/server/internal/storage"
	stripesvc "github.com/lilgiftcorner/server/internal/stripe"
	"github.com/lilgiftcorner/server/internal/users"
	"github.com/lilgiftcorner/server/internal/wishlist"
)

// App wires the storefront components for reuse or standalone serving.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Mongo    *storage.Mongo
	Stripe   *stripesvc.Client
	Services httpserver.Services

	router          chi.Router
	resourceManager *lifecycle.Manager
}

// Option configures App construction.
type Option func(*options)

type options struct {
	router   chi.Router
	registry *prometheus.Registry
	provider checkout.Provider
	logger   *zerolog.Logger
}

// WithRouter allows callers to provide an existing chi.Router to register routes onto.
func WithRouter(router chi.Router) Option {
	return func(o *options) {
		o.router = router
	}
}

// WithRegistry registers metrics on registry instead of the process default.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithPaymentProvider replaces the Stripe client used by checkout.
func WithPaymentProvider(provider checkout.Provider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithLogger overrides the logger built from cfg.Logging.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &log
	}
}

type repositories struct {
	products    products.Repository
	cart        cart.Repository
	orders      orders.Repository
	checkout    checkout.Repository
	users       users.Repository
	reviews     reviews.Repository
	wishlist    wishlist.Repository
	inquiries   inquiries.Repository
	idempotency idempotency.Store
}

// NewApp connects storage and assembles every storefront service.
func NewApp(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("giftshop: config required")
	}

	optState := options{}
	for _, opt := range opts {
		opt(&optState)
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "lilgiftcorner",
		Environment: cfg.Logging.Environment,
	})
	if optState.logger != nil {
		appLogger = *optState.logger
	}

	app := &App{
		Config:          cfg,
		Logger:          appLogger,
		resourceManager: lifecycle.NewManager(appLogger),
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	if optState.registry != nil {
		registerer = optState.registry
		app.Services.Gatherer = optState.registry
	}
	metricsCollector := metrics.New(registerer)
	app.Services.Metrics = metricsCollector

	// Close whatever was opened if a later step fails.
	ok := false
	defer func() {
		if !ok {
			_ = app.resourceManager.Close()
		}
	}()

	repos, err := app.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	couponRepository, err := app.openCoupons(ctx)
	if err != nil {
		return nil, err
	}
	app.resourceManager.Register("coupon-repository", couponRepository)

	catalog := repos.products
	if ttl := cfg.Catalog.CacheTTL.Duration; ttl > 0 {
		catalog = products.NewCachedRepository(catalog, ttl)
	}

	engine := coupons.NewEngine(couponRepository,
		coupons.WithMetrics(metricsCollector),
		coupons.WithClampFixedDiscount(cfg.Coupons.ClampFixedDiscount),
	)

	tokens, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Duration)
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	userSvc := users.NewService(repos.users, tokens)
	created, err := userSvc.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword, cfg.Auth.AdminName)
	if err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		appLogger.Info().
			Str("email", logger.RedactEmail(cfg.Auth.AdminEmail)).
			Msg("users.admin_bootstrapped")
	}

	cartSvc := cart.NewService(repos.cart, catalog)
	orderSvc := orders.NewService(repos.orders, engine, metricsCollector)

	provider := optState.provider
	if provider == nil {
		breakers := circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker, appLogger, metricsCollector)
		app.Stripe = stripesvc.NewClient(cfg.Stripe, breakers, metricsCollector)
		provider = app.Stripe
	}

	checkoutOpts := []checkout.Option{
		checkout.WithCurrency(cfg.Stripe.Currency),
		checkout.WithMetrics(metricsCollector),
	}
	if d := cfg.Checkout.LinkWait.Duration; d > 0 {
		checkoutOpts = append(checkoutOpts, checkout.WithLinkWait(d))
	}
	if d := cfg.Checkout.RepairAfter.Duration; d > 0 {
		checkoutOpts = append(checkoutOpts, checkout.WithRepairAfter(d))
	}
	checkoutSvc := checkout.NewService(repos.checkout, cartSvc, orderSvc, engine, provider, checkoutOpts...)

	app.Services.Tokens = tokens
	app.Services.Users = userSvc
	app.Services.Products = products.NewService(catalog, cfg.Catalog)
	app.Services.Cart = cartSvc
	app.Services.Checkout = checkoutSvc
	app.Services.Orders = orderSvc
	app.Services.Coupons = engine
	app.Services.Reviews = reviews.NewService(repos.reviews, catalog, orderSvc)
	app.Services.Wishlist = wishlist.NewService(repos.wishlist, catalog)
	app.Services.Inquiries = inquiries.NewService(repos.inquiries)
	app.Services.Idempotency = repos.idempotency

	if optState.router != nil {
		app.router = optState.router
	} else {
		app.router = chi.NewRouter()
	}
	httpserver.ConfigureRouter(app.router, cfg, app.Services, appLogger)

	ok = true
	return app, nil
}

// openStorage returns the repositories of the configured backend.
func (a *App) openStorage(ctx context.Context) (repositories, error) {
	cfg := a.Config.Storage

	switch cfg.Backend {
	case storage.BackendMemory:
		a.Logger.Warn().Msg("giftshop: using in-memory storage, data is lost on restart")
		store := idempotency.NewMemoryStore()
		a.resourceManager.RegisterFunc("idempotency-store", func() error {
			store.Stop()
			return nil
		})
		return repositories{
			products:    products.NewMemoryRepository(),
			cart:        cart.NewMemoryRepository(),
			orders:      orders.NewMemoryRepository(),
			checkout:    checkout.NewMemoryRepository(),
			users:       users.NewMemoryRepository(),
			reviews:     reviews.NewMemoryRepository(),
			wishlist:    wishlist.NewMemoryRepository(),
			inquiries:   inquiries.NewMemoryRepository(),
			idempotency: store,
		}, nil

	case storage.BackendMongoDB:
		m, err := storage.ConnectMongo(ctx, cfg)
		if err != nil {
			return repositories{}, err
		}
		a.Mongo = m
		a.resourceManager.Register("mongodb", m)
		a.Services.Health = append(a.Services.Health, httpserver.HealthCheck{Name: "mongodb", Ping: m.Ping})
		return mongoRepositories(m.Database(), m.QueryTimeout()), nil

	default:
		return repositories{}, fmt.Errorf("invalid storage backend %q: must be %q or %q", cfg.Backend, storage.BackendMongoDB, storage.BackendMemory)
	}
}

func mongoRepositories(db *mongo.Database, timeout time.Duration) repositories {
	return repositories{
		products:    products.NewMongoDBRepository(db, timeout),
		cart:        cart.NewMongoDBRepository(db, timeout),
		orders:      orders.NewMongoDBRepository(db, timeout),
		checkout:    checkout.NewMongoDBRepository(db, timeout),
		users:       users.NewMongoDBRepository(db, timeout),
		reviews:     reviews.NewMongoDBRepository(db, timeout),
		wishlist:    wishlist.NewMongoDBRepository(db, timeout),
		inquiries:   inquiries.NewMongoDBRepository(db, timeout),
		idempotency: idempotency.NewMongoDBStore(db, timeout),
	}
}

// openCoupons builds the coupon source. Postgres coupons get a shared pool that the
// health check also pings.
func (a *App) openCoupons(ctx context.Context) (coupons.Repository, error) {
	cfg := a.Config.Coupons

	var mongoDB *mongo.Database
	timeout := a.Config.Storage.QueryTimeout.Duration
	if a.Mongo != nil {
		mongoDB = a.Mongo.Database()
		timeout = a.Mongo.QueryTimeout()
	}

	if cfg.CouponSource != coupons.SourcePostgres {
		return coupons.NewRepository(cfg, mongoDB, timeout, nil)
	}

	pool, err := dbpool.Open(ctx, cfg.PostgresURL, cfg.PostgresPool)
	if err != nil {
		return nil, err
	}
	a.resourceManager.Register("postgres-pool", pool)
	a.Services.Health = append(a.Services.Health, httpserver.HealthCheck{Name: "postgres", Ping: pool.Ping})

	if err := coupons.NewPostgresRepositoryWithDB(pool.DB()).EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return coupons.NewRepository(cfg, nil, timeout, pool.DB())
}

// Router returns the chi router with storefront routes registered.
func (a *App) Router() chi.Router {
	return a.router
}

// Handler exposes the router as an http.Handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Close releases storage connections and background workers.
func (a *App) Close() error {
	return a.resourceManager.Close()
}

// RegisterRoutes attaches the storefront endpoints of an existing App to router.
func RegisterRoutes(router chi.Router, app *App) {
	if router == nil || app == nil {
		return
	}
	httpserver.ConfigureRouter(router, app.Config, app.Services, app.Logger)
}

// NewHandler is a convenience that constructs an App and returns its handler.
func NewHandler(ctx context.Context, cfg *config.Config, opts ...Option) (http.Handler, func(context.Context) error, error) {
	app, err := NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	shutdown := func(context.Context) error {
		return app.Close()
	}
	return app.Handler(), shutdown, nil
}

// Config is an exported alias of the internal configuration struct for embedding use.
type Config = config.Config

// LoadConfig wraps the internal loader for consumers embedding the storefront.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}
