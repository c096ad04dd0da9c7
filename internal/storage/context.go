package storage

import (
	"context"
	"time"
)

// DefaultQueryTimeout is the deadline applied to store calls that arrive without one.
const DefaultQueryTimeout = 5 * time.Second

// WithQueryTimeout wraps ctx with timeout unless the caller already set a deadline.
// A non-positive timeout falls back to DefaultQueryTimeout.
func WithQueryTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
