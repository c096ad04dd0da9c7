package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the shop server.
// Every Observe method is a no-op on a nil receiver so collaborators can run without metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Checkout metrics
	CheckoutSessionsTotal *prometheus.CounterVec
	ReconciliationsTotal  *prometheus.CounterVec
	OrdersCreatedTotal    *prometheus.CounterVec
	OrderValueTotal       *prometheus.CounterVec

	// Coupon metrics
	CouponValidationsTotal *prometheus.CounterVec
	CouponRedemptionsTotal *prometheus.CounterVec

	// Stripe metrics
	StripeCallsTotal    *prometheus.CounterVec
	StripeCallDuration  *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lilgift_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lilgift_http_request_duration_seconds",
				Help:    "HTTP request latency (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"route", "method"},
		),

		CheckoutSessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lilgift_checkout_sessions_total",
				Help: "Total number of checkout session attempts",
			},
			[]string{"status"},
		),
		ReconciliationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lilgift_checkout_reconciliations_total",
				Help: "Checkout status polls by outcome",
			},
			[]string{"outcome"},
		),
		OrdersCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lilgift_orders_created_total",
				Help: "Total number of orders created",
			},
			[]string{"payment_method"},
		),
		OrderValueTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lilgift_order_value_paise_total",
				Help: "Total order value in paise",
			},
			[]string{"payment_method"},
		),

		CouponValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lilgift_coupon_validations_total",
				Help: "Coupon validations by outcome",
			},
			[]string{"outcome"},
		),
		CouponRedemptionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lilgift_coupon_redemptions_total",
				Help: "Coupon usages recorded against orders",
			},
			[]string{"code"},
		),

		StripeCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lilgift_stripe_calls_total",
				Help: "Total number of Stripe API calls",
			},
			[]string{"operation", "result"},
		),
		StripeCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lilgift_stripe_call_duration_seconds",
				Help:    "Duration of Stripe API calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"operation"},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lilgift_circuit_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"service"},
		),

		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lilgift_rate_limit_hits_total",
				Help: "Total number of rate limit hits",
			},
			[]string{"limit_type"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lilgift_db_query_duration_seconds",
				Help:    "Database query duration (supports p50, p95, p99 percentiles)",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"operation", "backend"},
		),
	}
}

// ObserveHTTPRequest records a served request.
func (m *Metrics) ObserveHTTPRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// ObserveCheckoutSession records a checkout session attempt ("created", "cart_empty", "error").
func (m *Metrics) ObserveCheckoutSession(status string) {
	if m == nil {
		return
	}
	m.CheckoutSessionsTotal.WithLabelValues(status).Inc()
}

// ObserveReconciliation records the outcome of a status poll.
func (m *Metrics) ObserveReconciliation(outcome string) {
	if m == nil {
		return
	}
	m.ReconciliationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveOrderCreated records a new order and its value.
func (m *Metrics) ObserveOrderCreated(paymentMethod string, amountPaise int64) {
	if m == nil {
		return
	}
	m.OrdersCreatedTotal.WithLabelValues(paymentMethod).Inc()
	if amountPaise > 0 {
		m.OrderValueTotal.WithLabelValues(paymentMethod).Add(float64(amountPaise))
	}
}

// ObserveCouponValidation records a validation outcome ("valid" or a rejection code).
func (m *Metrics) ObserveCouponValidation(outcome string) {
	if m == nil {
		return
	}
	m.CouponValidationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCouponRedemption records a consumed coupon use.
func (m *Metrics) ObserveCouponRedemption(code string) {
	if m == nil {
		return
	}
	m.CouponRedemptionsTotal.WithLabelValues(code).Inc()
}

// ObserveStripeCall records a Stripe API call.
func (m *Metrics) ObserveStripeCall(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = classifyError(err)
	}
	m.StripeCallsTotal.WithLabelValues(operation, result).Inc()
	m.StripeCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetCircuitBreakerState publishes a breaker state (0 closed, 1 half-open, 2 open).
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// ObserveRateLimit records a rate limit hit.
func (m *Metrics) ObserveRateLimit(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitHitsTotal.WithLabelValues(limitType).Inc()
}

// ObserveDBQuery records a database query.
func (m *Metrics) ObserveDBQuery(operation, backend string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

func classifyError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "circuit breaker"):
		return "circuit_open"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "rate limit"):
		return "rate_limit"
	case strings.Contains(msg, "connection"):
		return "connection"
	default:
		return "error"
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
