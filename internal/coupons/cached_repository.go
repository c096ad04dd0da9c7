package coupons

import (
	"context"
	"sync"
	"time"

	"github.com/lilgiftcorner/server/internal/cacheutil"
)

// CachedRepository wraps any Repository with a TTL-based cache for code lookups and the
// active listing. The usage_count of a cached coupon may be stale; the store's conditional
// increment stays authoritative.
type CachedRepository struct {
	underlying   Repository
	cacheTTL     time.Duration
	mu           sync.RWMutex
	cachedCoupon map[string]cacheutil.CachedValue[Coupon]
	cachedActive cacheutil.CachedValue[[]Coupon]
}

// NewCachedRepository wraps a repository with caching.
func NewCachedRepository(underlying Repository, cacheTTL time.Duration) *CachedRepository {
	return &CachedRepository{
		underlying:   underlying,
		cacheTTL:     cacheTTL,
		cachedCoupon: make(map[string]cacheutil.CachedValue[Coupon]),
	}
}

// GetCoupon retrieves an active coupon with caching.
func (r *CachedRepository) GetCoupon(ctx context.Context, code string) (Coupon, error) {
	if r.cacheTTL == 0 {
		return r.underlying.GetCoupon(ctx, code)
	}
	code = NormalizeCode(code)

	return cacheutil.ReadThrough(
		&r.mu,
		func(now time.Time) (Coupon, bool) {
			if entry, ok := r.cachedCoupon[code]; ok && entry.Fresh(now, r.cacheTTL) {
				return entry.Value, true
			}
			return Coupon{}, false
		},
		func(now time.Time) (Coupon, error) {
			coupon, err := r.underlying.GetCoupon(ctx, code)
			if err != nil {
				return Coupon{}, err
			}
			r.cachedCoupon[code] = cacheutil.CachedValue[Coupon]{Value: coupon, FetchedAt: now}
			return coupon, nil
		},
	)
}

// GetCouponByID delegates to the underlying repository (no caching).
func (r *CachedRepository) GetCouponByID(ctx context.Context, id string) (Coupon, error) {
	return r.underlying.GetCouponByID(ctx, id)
}

// ListCoupons delegates to the underlying repository (no caching).
func (r *CachedRepository) ListCoupons(ctx context.Context, limit int) ([]Coupon, error) {
	return r.underlying.ListCoupons(ctx, limit)
}

// ListActive returns active coupons with caching. Callers re-check the window against
// their own clock since a cached listing can outlive a coupon's valid_until.
func (r *CachedRepository) ListActive(ctx context.Context, now time.Time) ([]Coupon, error) {
	if r.cacheTTL == 0 {
		return r.underlying.ListActive(ctx, now)
	}

	return cacheutil.ReadThrough(
		&r.mu,
		func(at time.Time) ([]Coupon, bool) {
			if r.cachedActive.Value != nil && r.cachedActive.Fresh(at, r.cacheTTL) {
				return r.cachedActive.Value, true
			}
			return nil, false
		},
		func(at time.Time) ([]Coupon, error) {
			coupons, err := r.underlying.ListActive(ctx, now)
			if err != nil {
				return nil, err
			}
			r.cachedActive = cacheutil.CachedValue[[]Coupon]{Value: coupons, FetchedAt: at}
			return coupons, nil
		},
	)
}

// CreateCoupon creates a coupon and invalidates cache.
func (r *CachedRepository) CreateCoupon(ctx context.Context, coupon Coupon) error {
	return cacheutil.WriteThrough(r.InvalidateCache, func() error {
		return r.underlying.CreateCoupon(ctx, coupon)
	})
}

// UpdateCoupon updates a coupon and invalidates cache.
func (r *CachedRepository) UpdateCoupon(ctx context.Context, id string, update Update) (Coupon, error) {
	var updated Coupon
	err := cacheutil.WriteThrough(r.InvalidateCache, func() error {
		var err error
		updated, err = r.underlying.UpdateCoupon(ctx, id, update)
		return err
	})
	return updated, err
}

// IncrementUsage increments usage and invalidates cache.
func (r *CachedRepository) IncrementUsage(ctx context.Context, id string) error {
	return cacheutil.WriteThrough(r.InvalidateCache, func() error {
		return r.underlying.IncrementUsage(ctx, id)
	})
}

// ReleaseUsage releases usage and invalidates cache.
func (r *CachedRepository) ReleaseUsage(ctx context.Context, id string) error {
	return cacheutil.WriteThrough(r.InvalidateCache, func() error {
		return r.underlying.ReleaseUsage(ctx, id)
	})
}

// ReserveUserUsage delegates to the underlying repository (no caching).
func (r *CachedRepository) ReserveUserUsage(ctx context.Context, couponID, userID string, limit int) error {
	return r.underlying.ReserveUserUsage(ctx, couponID, userID, limit)
}

// ReleaseUserUsage delegates to the underlying repository (no caching).
func (r *CachedRepository) ReleaseUserUsage(ctx context.Context, couponID, userID string) error {
	return r.underlying.ReleaseUserUsage(ctx, couponID, userID)
}

// HasOrderUsage delegates to the underlying repository (no caching).
func (r *CachedRepository) HasOrderUsage(ctx context.Context, couponID, orderID string) (bool, error) {
	return r.underlying.HasOrderUsage(ctx, couponID, orderID)
}

// CountUserUsage delegates to the underlying repository (no caching).
func (r *CachedRepository) CountUserUsage(ctx context.Context, couponID, userID string) (int, error) {
	return r.underlying.CountUserUsage(ctx, couponID, userID)
}

// RecordUsage delegates to the underlying repository.
func (r *CachedRepository) RecordUsage(ctx context.Context, usage Usage) error {
	return r.underlying.RecordUsage(ctx, usage)
}

// DeleteCoupon deletes a coupon and invalidates cache.
func (r *CachedRepository) DeleteCoupon(ctx context.Context, id string) error {
	return cacheutil.WriteThrough(r.InvalidateCache, func() error {
		return r.underlying.DeleteCoupon(ctx, id)
	})
}

// Close closes the underlying repository.
func (r *CachedRepository) Close() error {
	return r.underlying.Close()
}

// InvalidateCache forces the next operations to fetch fresh data.
func (r *CachedRepository) InvalidateCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cachedCoupon = make(map[string]cacheutil.CachedValue[Coupon])
	r.cachedActive = cacheutil.CachedValue[[]Coupon]{}
}
