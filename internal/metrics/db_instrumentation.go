package metrics

import (
	"time"
)

// MeasureDBQuery wraps a database operation with timing instrumentation.
// Usage:
//
//	defer metrics.MeasureDBQuery(m, "mark_paid", "mongodb")()
func MeasureDBQuery(m *Metrics, operation, backend string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.ObserveDBQuery(operation, backend, time.Since(start))
	}
}

// MeasureStripeCall times a Stripe call; pass the call's error to the returned func.
//
//	done := metrics.MeasureStripeCall(m, "session.get")
//	sess, err := session.Get(id, nil)
//	done(err)
func MeasureStripeCall(m *Metrics, operation string) func(error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	return func(err error) {
		m.ObserveStripeCall(operation, time.Since(start), err)
	}
}
