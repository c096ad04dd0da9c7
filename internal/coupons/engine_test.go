package coupons

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func activeCoupon(id, code string, typ DiscountType, value float64) Coupon {
	now := time.Now().UTC()
	return Coupon{
		ID:             id,
		Code:           code,
		Type:           typ,
		Value:          value,
		UserUsageLimit: 1,
		ValidFrom:      now.Add(-24 * time.Hour),
		ValidUntil:     now.Add(24 * time.Hour),
		IsActive:       true,
		CreatedAt:      now,
	}
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestValidate_Percentage(t *testing.T) {
	c := activeCoupon("c1", "SAVE20", DiscountTypePercentage, 20)
	c.MinOrderValue = 500
	c.MaxDiscount = floatPtr(200)
	engine := NewEngine(NewMemoryRepository(c))

	tests := []struct {
		name         string
		orderValue   float64
		wantDiscount float64
		wantFinal    float64
	}{
		{"twenty percent", 500, 100, 400},
		{"capped", 2000, 200, 1800},
		{"rounded", 512.33, 102.47, 409.86},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Validate(context.Background(), "save20", tt.orderValue, "u1")
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if res.DiscountAmount != tt.wantDiscount {
				t.Errorf("DiscountAmount = %v, want %v", res.DiscountAmount, tt.wantDiscount)
			}
			if res.FinalAmount != tt.wantFinal {
				t.Errorf("FinalAmount = %v, want %v", res.FinalAmount, tt.wantFinal)
			}
		})
	}
}

func TestValidate_BelowMinimum(t *testing.T) {
	c := activeCoupon("c1", "SAVE20", DiscountTypePercentage, 20)
	c.MinOrderValue = 500
	engine := NewEngine(NewMemoryRepository(c))

	_, err := engine.Validate(context.Background(), "SAVE20", 499.99, "u1")
	var minErr *MinimumOrderError
	if !errors.As(err, &minErr) {
		t.Fatalf("Validate() error = %v, want MinimumOrderError", err)
	}
	if got, want := err.Error(), "Minimum order value ₹500 required"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidate_FixedClamp(t *testing.T) {
	c := activeCoupon("c1", "FLAT50", DiscountTypeFixed, 50)

	tests := []struct {
		name         string
		clamp        bool
		wantDiscount float64
		wantFinal    float64
	}{
		{"clamped", true, 30, 0},
		{"unclamped", false, 50, -20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(NewMemoryRepository(c), WithClampFixedDiscount(tt.clamp))
			res, err := engine.Validate(context.Background(), "FLAT50", 30, "u1")
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if res.DiscountAmount != tt.wantDiscount || res.FinalAmount != tt.wantFinal {
				t.Errorf("Validate() = (%v, %v), want (%v, %v)",
					res.DiscountAmount, res.FinalAmount, tt.wantDiscount, tt.wantFinal)
			}
		})
	}
}

func TestValidate_FreeShipping(t *testing.T) {
	engine := NewEngine(NewMemoryRepository(activeCoupon("c1", "SHIPFREE", DiscountTypeFreeShipping, 0)))
	res, err := engine.Validate(context.Background(), "SHIPFREE", 800, "u1")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if res.DiscountAmount != 0 || res.FinalAmount != 800 {
		t.Errorf("Validate() = (%v, %v), want (0, 800)", res.DiscountAmount, res.FinalAmount)
	}
}

func TestValidate_Rejections(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	base := Coupon{
		ID:             "c1",
		Code:           "CODE",
		Type:           DiscountTypePercentage,
		Value:          10,
		UserUsageLimit: 1,
		ValidFrom:      now.Add(-time.Hour),
		ValidUntil:     now.Add(time.Hour),
		IsActive:       true,
	}

	tests := []struct {
		name    string
		mutate  func(c *Coupon)
		userID  string
		usage   []Usage
		wantErr error
	}{
		{"inactive", func(c *Coupon) { c.IsActive = false }, "u1", nil, ErrCouponNotFound},
		{"not started", func(c *Coupon) { c.ValidFrom = now.Add(time.Minute) }, "u1", nil, ErrCouponNotStarted},
		{"valid_from inclusive", func(c *Coupon) { c.ValidFrom = now }, "u1", nil, nil},
		{"valid_until exclusive", func(c *Coupon) { c.ValidUntil = now }, "u1", nil, ErrCouponExpired},
		{"window checked before minimum", func(c *Coupon) {
			c.ValidUntil = now.Add(-time.Minute)
			c.MinOrderValue = 10000
		}, "u1", nil, ErrCouponExpired},
		{"usage exhausted", func(c *Coupon) {
			c.UsageLimit = intPtr(3)
			c.UsageCount = 3
		}, "u1", nil, ErrCouponUsageLimitReached},
		{"zero usage limit", func(c *Coupon) { c.UsageLimit = intPtr(0) }, "u1", nil, ErrCouponUsageLimitReached},
		{"requires user", func(c *Coupon) {}, "", nil, ErrCouponRequiresUser},
		{"already used", func(c *Coupon) {}, "u1",
			[]Usage{{ID: "x", CouponID: "c1", UserID: "u1"}}, ErrCouponAlreadyUsed},
		{"other user's usage ignored", func(c *Coupon) {}, "u2",
			[]Usage{{ID: "x", CouponID: "c1", UserID: "u1"}}, nil},
		{"per-user limit two", func(c *Coupon) { c.UserUsageLimit = 2 }, "u1",
			[]Usage{{ID: "x", CouponID: "c1", UserID: "u1"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			repo := NewMemoryRepository(c)
			for _, u := range tt.usage {
				_ = repo.RecordUsage(context.Background(), u)
			}
			engine := NewEngine(repo, WithClock(func() time.Time { return now }))

			_, err := engine.Validate(context.Background(), "code", 1000, tt.userID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_UnknownCode(t *testing.T) {
	engine := NewEngine(NewMemoryRepository())
	if _, err := engine.Validate(context.Background(), "NOPE", 100, "u1"); !errors.Is(err, ErrCouponNotFound) {
		t.Errorf("Validate() error = %v, want %v", err, ErrCouponNotFound)
	}
}

func TestRecordUsage_ConcurrentLimit(t *testing.T) {
	const limit = 5
	const attempts = 40

	c := activeCoupon("c1", "LIMITED", DiscountTypeFixed, 10)
	c.UsageLimit = intPtr(limit)
	repo := NewMemoryRepository(c)
	engine := NewEngine(repo)

	var wg sync.WaitGroup
	var succeeded, limited atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := engine.RecordUsage(context.Background(), c, fmt.Sprintf("user-%d", i), fmt.Sprintf("order-%d", i), 10)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrCouponUsageLimitReached):
				limited.Add(1)
			default:
				t.Errorf("RecordUsage() unexpected error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := succeeded.Load(); got != limit {
		t.Errorf("successful redemptions = %d, want %d", got, limit)
	}
	if got := limited.Load(); got != attempts-limit {
		t.Errorf("limited redemptions = %d, want %d", got, attempts-limit)
	}
	stored, _ := repo.GetCouponByID(context.Background(), "c1")
	if stored.UsageCount != limit {
		t.Errorf("UsageCount = %d, want %d", stored.UsageCount, limit)
	}
	if got := len(repo.Usages()); got != limit {
		t.Errorf("usage records = %d, want %d", got, limit)
	}
}

// failingUsageRepository fails every RecordUsage call.
type failingUsageRepository struct {
	*MemoryRepository
}

func (failingUsageRepository) RecordUsage(context.Context, Usage) error {
	return errors.New("write failed")
}

func TestRecordUsage_ReleasesOnFailure(t *testing.T) {
	c := activeCoupon("c1", "ONCE", DiscountTypeFixed, 10)
	c.UsageLimit = intPtr(1)
	mem := NewMemoryRepository(c)
	engine := NewEngine(failingUsageRepository{mem})

	if err := engine.RecordUsage(context.Background(), c, "u1", "o1", 10); err == nil {
		t.Fatal("RecordUsage() error = nil, want failure")
	}
	stored, _ := mem.GetCouponByID(context.Background(), "c1")
	if stored.UsageCount != 0 {
		t.Errorf("UsageCount = %d, want 0 after release", stored.UsageCount)
	}
	// the per-user allowance was returned too
	if err := NewEngine(mem).Reserve(context.Background(), c, "u1"); err != nil {
		t.Errorf("Reserve() after release error = %v", err)
	}
}

func TestRecordUsage_PerUserLimit(t *testing.T) {
	c := activeCoupon("c1", "SAVE10", DiscountTypePercentage, 10)
	repo := NewMemoryRepository(c)
	engine := NewEngine(repo)
	ctx := context.Background()

	// Both sessions validated before either was paid.
	for _, order := range []string{"o1", "o2"} {
		if _, err := engine.Validate(ctx, "SAVE10", 1000, "u1"); err != nil {
			t.Fatalf("Validate() for %s error = %v", order, err)
		}
	}

	if err := engine.RecordUsage(ctx, c, "u1", "o1", 100); err != nil {
		t.Fatalf("RecordUsage(o1) error = %v", err)
	}
	if err := engine.RecordUsage(ctx, c, "u1", "o2", 100); !errors.Is(err, ErrCouponAlreadyUsed) {
		t.Errorf("RecordUsage(o2) error = %v, want %v", err, ErrCouponAlreadyUsed)
	}
	if err := engine.RecordUsage(ctx, c, "u2", "o3", 100); err != nil {
		t.Errorf("RecordUsage(o3) for another user error = %v", err)
	}

	stored, _ := repo.GetCouponByID(ctx, "c1")
	if stored.UsageCount != 2 {
		t.Errorf("UsageCount = %d, want 2 (the rejected use is released)", stored.UsageCount)
	}
	if got := len(repo.Usages()); got != 2 {
		t.Errorf("usage records = %d, want 2", got)
	}
}

func TestRecordUsage_ConcurrentPerUserLimit(t *testing.T) {
	const userLimit = 2
	const attempts = 20

	c := activeCoupon("c1", "TWICE", DiscountTypeFixed, 10)
	c.UserUsageLimit = userLimit
	repo := NewMemoryRepository(c)
	engine := NewEngine(repo)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := engine.RecordUsage(context.Background(), c, "u1", fmt.Sprintf("order-%d", i), 10)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrCouponAlreadyUsed):
			default:
				t.Errorf("RecordUsage() unexpected error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := succeeded.Load(); got != userLimit {
		t.Errorf("successful redemptions = %d, want %d", got, userLimit)
	}
	stored, _ := repo.GetCouponByID(context.Background(), "c1")
	if stored.UsageCount != userLimit {
		t.Errorf("UsageCount = %d, want %d", stored.UsageCount, userLimit)
	}
}

func TestRecordUsage_SameOrderOnce(t *testing.T) {
	c := activeCoupon("c1", "SAVE10", DiscountTypePercentage, 10)
	repo := NewMemoryRepository(c)
	engine := NewEngine(repo)

	for i := 0; i < 2; i++ {
		if err := engine.RecordUsage(context.Background(), c, "u1", "o1", 100); err != nil {
			t.Fatalf("RecordUsage() call %d error = %v", i+1, err)
		}
	}
	stored, _ := repo.GetCouponByID(context.Background(), "c1")
	if stored.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1", stored.UsageCount)
	}
	if got := len(repo.Usages()); got != 1 {
		t.Errorf("usage records = %d, want 1", got)
	}
}

func TestRecordUsage_ConcurrentSameOrder(t *testing.T) {
	c := activeCoupon("c1", "SAVE10", DiscountTypePercentage, 10)
	c.UserUsageLimit = 50
	repo := NewMemoryRepository(c)
	engine := NewEngine(repo)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := engine.RecordUsage(context.Background(), Coupon{ID: "c1", Code: "SAVE10"}, "u1", "o1", 100); err != nil {
				t.Errorf("RecordUsage() error = %v", err)
			}
		}()
	}
	wg.Wait()

	stored, _ := repo.GetCouponByID(context.Background(), "c1")
	if stored.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1", stored.UsageCount)
	}
	if got := len(repo.Usages()); got != 1 {
		t.Errorf("usage records = %d, want 1", got)
	}
	if n, _ := repo.CountUserUsage(context.Background(), "c1", "u1"); n != 1 {
		t.Errorf("CountUserUsage() = %d, want 1", n)
	}
}

func TestRecordUsage_LoadsUserAllowance(t *testing.T) {
	c := activeCoupon("c1", "SAVE10", DiscountTypePercentage, 10)
	c.UserUsageLimit = 2
	repo := NewMemoryRepository(c)
	engine := NewEngine(repo)
	ref := Coupon{ID: "c1", Code: "SAVE10"}

	for i, order := range []string{"o1", "o2"} {
		if err := engine.RecordUsage(context.Background(), ref, "u1", order, 100); err != nil {
			t.Fatalf("RecordUsage() call %d error = %v", i+1, err)
		}
	}
	if err := engine.RecordUsage(context.Background(), ref, "u1", "o3", 100); !errors.Is(err, ErrCouponAlreadyUsed) {
		t.Errorf("RecordUsage() third error = %v, want %v", err, ErrCouponAlreadyUsed)
	}
}

func TestReserve_RequiresUser(t *testing.T) {
	c := activeCoupon("c1", "SAVE10", DiscountTypePercentage, 10)
	repo := NewMemoryRepository(c)
	if err := NewEngine(repo).Reserve(context.Background(), c, ""); !errors.Is(err, ErrCouponRequiresUser) {
		t.Errorf("Reserve() error = %v, want %v", err, ErrCouponRequiresUser)
	}
	stored, _ := repo.GetCouponByID(context.Background(), "c1")
	if stored.UsageCount != 0 {
		t.Errorf("UsageCount = %d, want 0", stored.UsageCount)
	}
}

func TestReleaseUsage_NeverNegative(t *testing.T) {
	c := activeCoupon("c1", "X", DiscountTypeFixed, 10)
	repo := NewMemoryRepository(c)
	engine := NewEngine(repo)
	engine.Release(context.Background(), c, "u1")
	stored, _ := repo.GetCouponByID(context.Background(), "c1")
	if stored.UsageCount != 0 {
		t.Errorf("UsageCount = %d, want 0", stored.UsageCount)
	}
}

func TestListActive_PublicProjection(t *testing.T) {
	now := time.Now().UTC()
	live := activeCoupon("c1", "LIVE", DiscountTypePercentage, 10)
	expired := activeCoupon("c2", "OLD", DiscountTypePercentage, 10)
	expired.ValidUntil = now.Add(-time.Hour)
	inactive := activeCoupon("c3", "OFF", DiscountTypeFixed, 10)
	inactive.IsActive = false

	engine := NewEngine(NewMemoryRepository(live, expired, inactive))
	got, err := engine.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(got) != 1 || got[0].Code != "LIVE" {
		t.Fatalf("ListActive() = %+v, want only LIVE", got)
	}
}

func TestCreateCoupon(t *testing.T) {
	engine := NewEngine(NewMemoryRepository())
	ctx := context.Background()
	now := time.Now().UTC()

	in := NewCoupon{
		Code:       " welcome10 ",
		Type:       DiscountTypePercentage,
		Value:      10,
		ValidFrom:  Timestamp{now.Add(-time.Hour)},
		ValidUntil: Timestamp{now.Add(time.Hour)},
	}
	c, err := engine.CreateCoupon(ctx, in)
	if err != nil {
		t.Fatalf("CreateCoupon() error = %v", err)
	}
	if c.Code != "WELCOME10" || !c.IsActive || c.UserUsageLimit != 1 || c.ID == "" {
		t.Errorf("CreateCoupon() = %+v", c)
	}

	if _, err := engine.CreateCoupon(ctx, in); !errors.Is(err, ErrDuplicateCode) {
		t.Errorf("CreateCoupon() duplicate error = %v, want %v", err, ErrDuplicateCode)
	}

	bad := in
	bad.Code = "BAD"
	bad.Value = 150
	if _, err := engine.CreateCoupon(ctx, bad); !errors.Is(err, ErrInvalidCoupon) {
		t.Errorf("CreateCoupon() error = %v, want %v", err, ErrInvalidCoupon)
	}
}

func TestUpdateAndDeleteCoupon(t *testing.T) {
	repo := NewMemoryRepository(activeCoupon("c1", "EDIT", DiscountTypePercentage, 10))
	engine := NewEngine(repo)
	ctx := context.Background()

	if _, err := engine.UpdateCoupon(ctx, "c1", Update{}); !errors.Is(err, ErrNothingToUpdate) {
		t.Errorf("UpdateCoupon() empty error = %v, want %v", err, ErrNothingToUpdate)
	}
	if _, err := engine.UpdateCoupon(ctx, "c1", Update{Value: floatPtr(101)}); !errors.Is(err, ErrInvalidCoupon) {
		t.Errorf("UpdateCoupon() error = %v, want %v", err, ErrInvalidCoupon)
	}
	updated, err := engine.UpdateCoupon(ctx, "c1", Update{Value: floatPtr(15)})
	if err != nil {
		t.Fatalf("UpdateCoupon() error = %v", err)
	}
	if updated.Value != 15 {
		t.Errorf("UpdateCoupon().Value = %v, want 15", updated.Value)
	}

	if err := engine.DeleteCoupon(ctx, "c1"); err != nil {
		t.Fatalf("DeleteCoupon() error = %v", err)
	}
	if _, err := engine.Validate(ctx, "EDIT", 100, "u1"); !errors.Is(err, ErrCouponNotFound) {
		t.Errorf("Validate() after delete error = %v, want %v", err, ErrCouponNotFound)
	}
	if err := engine.DeleteCoupon(ctx, "missing"); !errors.Is(err, ErrCouponNotFound) {
		t.Errorf("DeleteCoupon() missing error = %v, want %v", err, ErrCouponNotFound)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-01-31T10:00:00Z", time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)},
		{"2025-01-31T10:00:00+05:30", time.Date(2025, 1, 31, 4, 30, 0, 0, time.UTC)},
		{"2025-01-31T10:00", time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)},
		{"2025-01-31", time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) error = %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("ParseTimestamp(yesterday) error = nil, want error")
	}
}
