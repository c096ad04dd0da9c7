package coupons

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps coupons and usage in process. Increments are serialised by a
// mutex, which gives the same conditional semantics as the database stores.
type MemoryRepository struct {
	mu      sync.Mutex
	coupons map[string]Coupon // by ID
	usage   []Usage
	perUser map[userKey]int
}

type userKey struct{ couponID, userID string }

// NewMemoryRepository creates a repository seeded with coupons.
func NewMemoryRepository(seed ...Coupon) *MemoryRepository {
	r := &MemoryRepository{
		coupons: make(map[string]Coupon, len(seed)),
		perUser: make(map[userKey]int),
	}
	for _, c := range seed {
		c.Code = NormalizeCode(c.Code)
		r.coupons[c.ID] = c
	}
	return r
}

func (r *MemoryRepository) GetCoupon(_ context.Context, code string) (Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code = NormalizeCode(code)
	for _, c := range r.coupons {
		if c.Code == code && c.IsActive {
			return c, nil
		}
	}
	return Coupon{}, ErrCouponNotFound
}

func (r *MemoryRepository) GetCouponByID(_ context.Context, id string) (Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return Coupon{}, ErrCouponNotFound
	}
	return c, nil
}

func (r *MemoryRepository) sorted() []Coupon {
	out := make([]Coupon, 0, len(r.coupons))
	for _, c := range r.coupons {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepository) ListCoupons(_ context.Context, limit int) ([]Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sorted()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListActive(_ context.Context, now time.Time) ([]Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Coupon, 0)
	for _, c := range r.sorted() {
		if c.IsActive && CheckWindow(c, now) == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CreateCoupon(_ context.Context, c Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Code = NormalizeCode(c.Code)
	for _, existing := range r.coupons {
		if existing.Code == c.Code {
			return ErrDuplicateCode
		}
	}
	r.coupons[c.ID] = c
	return nil
}

func (r *MemoryRepository) UpdateCoupon(_ context.Context, id string, update Update) (Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return Coupon{}, ErrCouponNotFound
	}
	c = update.Apply(c)
	c.UpdatedAt = time.Now().UTC()
	r.coupons[id] = c
	return c, nil
}

func (r *MemoryRepository) IncrementUsage(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return ErrCouponNotFound
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return ErrCouponUsageLimitReached
	}
	c.UsageCount++
	r.coupons[id] = c
	return nil
}

func (r *MemoryRepository) ReleaseUsage(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return ErrCouponNotFound
	}
	if c.UsageCount > 0 {
		c.UsageCount--
		r.coupons[id] = c
	}
	return nil
}

func (r *MemoryRepository) ReserveUserUsage(_ context.Context, couponID, userID string, limit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := userKey{couponID, userID}
	if r.perUser[k] >= limit {
		return ErrCouponAlreadyUsed
	}
	r.perUser[k]++
	return nil
}

func (r *MemoryRepository) ReleaseUserUsage(_ context.Context, couponID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := userKey{couponID, userID}
	if r.perUser[k] > 0 {
		r.perUser[k]--
	}
	return nil
}

func (r *MemoryRepository) HasOrderUsage(_ context.Context, couponID, orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.usage {
		if u.CouponID == couponID && u.OrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) CountUserUsage(_ context.Context, couponID, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.usage {
		if u.CouponID == couponID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) RecordUsage(_ context.Context, usage Usage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.usage {
		if u.CouponID == usage.CouponID && u.OrderID == usage.OrderID {
			return ErrUsageRecorded
		}
	}
	r.usage = append(r.usage, usage)
	return nil
}

// Usages returns a copy of the usage records.
func (r *MemoryRepository) Usages() []Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Usage, len(r.usage))
	copy(out, r.usage)
	return out
}

func (r *MemoryRepository) DeleteCoupon(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return ErrCouponNotFound
	}
	c.IsActive = false
	r.coupons[id] = c
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
