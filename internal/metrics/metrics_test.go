package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsInitialization(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	if m == nil {
		t.Fatal("metrics collector should not be nil")
	}
	if m.ReconciliationsTotal == nil {
		t.Error("ReconciliationsTotal should be initialized")
	}
	if m.CouponValidationsTotal == nil {
		t.Error("CouponValidationsTotal should be initialized")
	}
	if m.DBQueryDuration == nil {
		t.Error("DBQueryDuration should be initialized")
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.ObserveHTTPRequest("/health", "GET", 200, time.Millisecond)
	m.ObserveReconciliation("won")
	m.ObserveOrderCreated("cod", 100)
	m.ObserveCouponValidation("valid")
	m.ObserveStripeCall("session.new", time.Millisecond, nil)
	m.SetCircuitBreakerState("stripe", 2)
	MeasureDBQuery(m, "op", "mongodb")()
	MeasureStripeCall(m, "session.get")(nil)
}

func TestObserveReconciliation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveReconciliation("won")
	m.ObserveReconciliation("lost")
	m.ObserveReconciliation("lost")

	if got := promtest.ToFloat64(m.ReconciliationsTotal.WithLabelValues("lost")); got != 2 {
		t.Errorf("lost reconciliations = %.0f, want 2", got)
	}
	if got := promtest.ToFloat64(m.ReconciliationsTotal.WithLabelValues("won")); got != 1 {
		t.Errorf("won reconciliations = %.0f, want 1", got)
	}
}

func TestObserveOrderCreated(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOrderCreated("stripe", 49999)
	m.ObserveOrderCreated("stripe", 1)

	if got := promtest.ToFloat64(m.OrdersCreatedTotal.WithLabelValues("stripe")); got != 2 {
		t.Errorf("orders = %.0f, want 2", got)
	}
	if got := promtest.ToFloat64(m.OrderValueTotal.WithLabelValues("stripe")); got != 50000 {
		t.Errorf("order value = %.0f, want 50000", got)
	}
}

func TestObserveStripeCallClassifiesErrors(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveStripeCall("session.get", time.Millisecond, nil)
	m.ObserveStripeCall("session.get", time.Millisecond, errors.New("circuit breaker is open"))
	m.ObserveStripeCall("session.get", time.Millisecond, errors.New("context deadline exceeded"))

	tests := []struct {
		result string
		want   float64
	}{
		{"success", 1},
		{"circuit_open", 1},
		{"timeout", 1},
		{"error", 0},
	}
	for _, tt := range tests {
		if got := promtest.ToFloat64(m.StripeCallsTotal.WithLabelValues("session.get", tt.result)); got != tt.want {
			t.Errorf("stripe calls[%s] = %.0f, want %.0f", tt.result, got, tt.want)
		}
	}
}

func TestObserveHTTPRequestUsesStatusClass(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveHTTPRequest("/api/products", "GET", 200, time.Millisecond)
	m.ObserveHTTPRequest("/api/products", "GET", 404, time.Millisecond)
	m.ObserveHTTPRequest("/api/products", "GET", 503, time.Millisecond)

	for _, class := range []string{"2xx", "4xx", "5xx"} {
		if got := promtest.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/api/products", "GET", class)); got != 1 {
			t.Errorf("requests[%s] = %.0f, want 1", class, got)
		}
	}
}

func TestMeasureDBQuery(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	MeasureDBQuery(m, "mark_paid", "mongodb")()

	if n := promtest.CollectAndCount(m.DBQueryDuration); n != 1 {
		t.Errorf("db query series = %d, want 1", n)
	}
}
