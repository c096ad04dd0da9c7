package coupons

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// countingRepository counts reads that reach the wrapped repository.
type countingRepository struct {
	Repository
	getCoupon  atomic.Int32
	listActive atomic.Int32
	getErr     error
}

func (c *countingRepository) GetCoupon(ctx context.Context, code string) (Coupon, error) {
	c.getCoupon.Add(1)
	if c.getErr != nil {
		return Coupon{}, c.getErr
	}
	return c.Repository.GetCoupon(ctx, code)
}

func (c *countingRepository) ListActive(ctx context.Context, now time.Time) ([]Coupon, error) {
	c.listActive.Add(1)
	return c.Repository.ListActive(ctx, now)
}

func newCountingRepository(seed ...Coupon) *countingRepository {
	return &countingRepository{Repository: NewMemoryRepository(seed...)}
}

func TestCachedRepository_GetCoupon_CacheHit(t *testing.T) {
	mock := newCountingRepository(activeCoupon("c1", "TEST10", DiscountTypePercentage, 10))
	cached := NewCachedRepository(mock, 5*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		coupon, err := cached.GetCoupon(ctx, "test10")
		if err != nil {
			t.Fatalf("GetCoupon() error = %v", err)
		}
		if coupon.Code != "TEST10" {
			t.Errorf("GetCoupon().Code = %q, want TEST10", coupon.Code)
		}
	}
	if got := mock.getCoupon.Load(); got != 1 {
		t.Errorf("underlying GetCoupon calls = %d, want 1", got)
	}
}

func TestCachedRepository_GetCoupon_Expires(t *testing.T) {
	mock := newCountingRepository(activeCoupon("c1", "EXPIRE", DiscountTypeFixed, 10))
	cached := NewCachedRepository(mock, 50*time.Millisecond)
	ctx := context.Background()

	if _, err := cached.GetCoupon(ctx, "EXPIRE"); err != nil {
		t.Fatalf("GetCoupon() error = %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, err := cached.GetCoupon(ctx, "EXPIRE"); err != nil {
		t.Fatalf("GetCoupon() error = %v", err)
	}
	if got := mock.getCoupon.Load(); got != 2 {
		t.Errorf("underlying GetCoupon calls = %d, want 2", got)
	}
}

func TestCachedRepository_NoCaching(t *testing.T) {
	mock := newCountingRepository(activeCoupon("c1", "TEST", DiscountTypeFixed, 10))
	cached := NewCachedRepository(mock, 0)
	ctx := context.Background()

	_, _ = cached.GetCoupon(ctx, "TEST")
	_, _ = cached.GetCoupon(ctx, "TEST")

	if got := mock.getCoupon.Load(); got != 2 {
		t.Errorf("underlying GetCoupon calls = %d, want 2", got)
	}
}

func TestCachedRepository_GetCoupon_ErrorNotCached(t *testing.T) {
	dbErr := errors.New("database error")
	mock := newCountingRepository()
	mock.getErr = dbErr
	cached := NewCachedRepository(mock, 5*time.Minute)
	ctx := context.Background()

	if _, err := cached.GetCoupon(ctx, "ERROR"); !errors.Is(err, dbErr) {
		t.Errorf("GetCoupon() error = %v, want %v", err, dbErr)
	}
	_, _ = cached.GetCoupon(ctx, "ERROR")
	if got := mock.getCoupon.Load(); got != 2 {
		t.Errorf("underlying GetCoupon calls = %d, want 2", got)
	}
}

func TestCachedRepository_WritesInvalidate(t *testing.T) {
	limit := 5
	tests := []struct {
		name  string
		write func(ctx context.Context, r *CachedRepository) error
	}{
		{"create", func(ctx context.Context, r *CachedRepository) error {
			return r.CreateCoupon(ctx, activeCoupon("c2", "NEW", DiscountTypeFixed, 5))
		}},
		{"update", func(ctx context.Context, r *CachedRepository) error {
			v := 15.0
			_, err := r.UpdateCoupon(ctx, "c1", Update{Value: &v})
			return err
		}},
		{"increment", func(ctx context.Context, r *CachedRepository) error {
			return r.IncrementUsage(ctx, "c1")
		}},
		{"release", func(ctx context.Context, r *CachedRepository) error {
			return r.ReleaseUsage(ctx, "c1")
		}},
		{"delete", func(ctx context.Context, r *CachedRepository) error {
			return r.DeleteCoupon(ctx, "c2-missing")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := activeCoupon("c1", "TEST", DiscountTypeFixed, 10)
			c.UsageLimit = &limit
			mock := newCountingRepository(c)
			cached := NewCachedRepository(mock, 5*time.Minute)
			ctx := context.Background()

			_, _ = cached.GetCoupon(ctx, "TEST")
			_, _ = cached.ListActive(ctx, time.Now())
			err := tt.write(ctx, cached)
			_, _ = cached.GetCoupon(ctx, "TEST")
			_, _ = cached.ListActive(ctx, time.Now())

			wantCalls := int32(2)
			if err != nil {
				// Failed writes keep the cache.
				wantCalls = 1
			}
			if got := mock.getCoupon.Load(); got != wantCalls {
				t.Errorf("underlying GetCoupon calls = %d, want %d (write err %v)", got, wantCalls, err)
			}
			if got := mock.listActive.Load(); got != wantCalls {
				t.Errorf("underlying ListActive calls = %d, want %d (write err %v)", got, wantCalls, err)
			}
		})
	}
}

func TestCachedRepository_UpdateReturnsUpdated(t *testing.T) {
	mock := newCountingRepository(activeCoupon("c1", "TEST", DiscountTypeFixed, 10))
	cached := NewCachedRepository(mock, 5*time.Minute)

	v := 25.0
	updated, err := cached.UpdateCoupon(context.Background(), "c1", Update{Value: &v})
	if err != nil {
		t.Fatalf("UpdateCoupon() error = %v", err)
	}
	if updated.Value != 25 {
		t.Errorf("UpdateCoupon().Value = %v, want 25", updated.Value)
	}
}
