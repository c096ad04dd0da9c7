package coupons

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/lilgiftcorner/server/internal/logger"
	"github.com/lilgiftcorner/server/internal/metrics"
	"github.com/lilgiftcorner/server/internal/money"
)

// Rejections returned by Validate, in the order they are checked.
var (
	ErrCouponNotStarted        = errors.New("coupon not started yet")
	ErrCouponExpired           = errors.New("coupon expired")
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
	ErrCouponAlreadyUsed       = errors.New("coupon already used by this user")
	ErrCouponRequiresUser      = errors.New("coupon requires a signed-in user")
)

// MinimumOrderError rejects an order below the coupon's minimum value.
type MinimumOrderError struct {
	Minimum float64
}

func (e *MinimumOrderError) Error() string {
	return fmt.Sprintf("Minimum order value ₹%s required", money.Format(e.Minimum))
}

// Result is a successful validation.
type Result struct {
	Coupon         Coupon  `json:"coupon"`
	DiscountAmount float64 `json:"discount_amount"`
	FinalAmount    float64 `json:"final_amount"`
}

// PublicCoupon is the projection of a coupon shown to shoppers.
type PublicCoupon struct {
	Code          string       `json:"code"`
	Type          DiscountType `json:"type"`
	Value         float64      `json:"value"`
	MinOrderValue float64      `json:"min_order_value"`
	ValidUntil    time.Time    `json:"valid_until"`
}

// Engine validates coupons and records their consumption.
type Engine struct {
	repo       Repository
	clampFixed bool
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics reports validations and redemptions to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClampFixedDiscount caps fixed discounts at the order value when clamp is true.
func WithClampFixedDiscount(clamp bool) Option {
	return func(e *Engine) { e.clampFixed = clamp }
}

// NewEngine creates an engine over repo. Fixed discounts are clamped by default.
func NewEngine(repo Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:       repo,
		clampFixed: true,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Repository exposes the underlying store.
func (e *Engine) Repository() Repository {
	return e.repo
}

// Validate checks code against orderValue and userID and computes the discount.
// It has no side effects.
func (e *Engine) Validate(ctx context.Context, code string, orderValue float64, userID string) (Result, error) {
	result, err := e.validate(ctx, code, orderValue, userID)
	log := logger.FromContext(ctx)
	if err != nil {
		e.metrics.ObserveCouponValidation(outcome(err))
		log.Info().
			Str("coupon_code", NormalizeCode(code)).
			Float64("order_value", orderValue).
			Str("reason", err.Error()).
			Msg("coupons.validate.rejected")
		return Result{}, err
	}
	e.metrics.ObserveCouponValidation("valid")
	log.Debug().
		Str("coupon_code", result.Coupon.Code).
		Float64("discount_amount", result.DiscountAmount).
		Msg("coupons.validate.accepted")
	return result, nil
}

func (e *Engine) validate(ctx context.Context, code string, orderValue float64, userID string) (Result, error) {
	coupon, err := e.repo.GetCoupon(ctx, NormalizeCode(code))
	if err != nil {
		return Result{}, err
	}
	if !coupon.IsActive {
		return Result{}, ErrCouponNotFound
	}

	if err := CheckWindow(coupon, e.now()); err != nil {
		return Result{}, err
	}

	if orderValue < coupon.MinOrderValue {
		return Result{}, &MinimumOrderError{Minimum: coupon.MinOrderValue}
	}

	if coupon.UsageLimit != nil && coupon.UsageCount >= *coupon.UsageLimit {
		return Result{}, ErrCouponUsageLimitReached
	}

	if userID == "" {
		return Result{}, ErrCouponRequiresUser
	}
	used, err := e.repo.CountUserUsage(ctx, coupon.ID, userID)
	if err != nil {
		return Result{}, fmt.Errorf("count coupon usage: %w", err)
	}
	if used >= userLimit(coupon) {
		return Result{}, ErrCouponAlreadyUsed
	}

	discount := Discount(coupon, orderValue, e.clampFixed)
	return Result{
		Coupon:         coupon,
		DiscountAmount: money.Round(discount),
		FinalAmount:    money.Round(orderValue - discount),
	}, nil
}

func userLimit(c Coupon) int {
	if c.UserUsageLimit <= 0 {
		return 1
	}
	return c.UserUsageLimit
}

// CheckWindow enforces the half-open validity window [valid_from, valid_until).
// A zero bound is open.
func CheckWindow(c Coupon, now time.Time) error {
	if !c.ValidFrom.IsZero() && now.Before(c.ValidFrom) {
		return ErrCouponNotStarted
	}
	if !c.ValidUntil.IsZero() && !now.Before(c.ValidUntil) {
		return ErrCouponExpired
	}
	return nil
}

// Discount computes the unrounded discount of c on orderValue.
// Percentage discounts are capped at a positive max_discount; fixed discounts are capped
// at orderValue only when clampFixed is set; free shipping discounts nothing here.
func Discount(c Coupon, orderValue float64, clampFixed bool) float64 {
	switch c.Type {
	case DiscountTypePercentage:
		d := orderValue * (c.Value / 100)
		if c.MaxDiscount != nil && *c.MaxDiscount > 0 {
			d = math.Min(d, *c.MaxDiscount)
		}
		return d
	case DiscountTypeFixed:
		if clampFixed && c.Value > orderValue {
			return math.Max(orderValue, 0)
		}
		return c.Value
	default:
		return 0
	}
}

// Reserve consumes one global use and one use of userID's allowance, each with the
// store's conditional increment. The global use is returned when the per-user one is lost.
func (e *Engine) Reserve(ctx context.Context, coupon Coupon, userID string) error {
	if userID == "" {
		return ErrCouponRequiresUser
	}
	if err := e.repo.IncrementUsage(ctx, coupon.ID); err != nil {
		return err
	}
	if err := e.repo.ReserveUserUsage(ctx, coupon.ID, userID, userLimit(coupon)); err != nil {
		e.releaseGlobal(ctx, coupon.ID)
		return err
	}
	return nil
}

// Release returns the uses taken by Reserve when the order could not be written.
func (e *Engine) Release(ctx context.Context, coupon Coupon, userID string) {
	e.releaseGlobal(ctx, coupon.ID)
	if err := e.repo.ReleaseUserUsage(ctx, coupon.ID, userID); err != nil {
		log := logger.FromContext(ctx)
		log.Error().
			Err(err).
			Str("coupon_id", coupon.ID).
			Msg("coupons.release_user_failed")
	}
}

func (e *Engine) releaseGlobal(ctx context.Context, couponID string) {
	if err := e.repo.ReleaseUsage(ctx, couponID); err != nil {
		log := logger.FromContext(ctx)
		log.Error().
			Err(err).
			Str("coupon_id", couponID).
			Msg("coupons.release_failed")
	}
}

// Commit appends the usage record of an order whose use was already reserved.
func (e *Engine) Commit(ctx context.Context, coupon Coupon, userID, orderID string, discount float64) error {
	usage := Usage{
		ID:             uuid.NewString(),
		CouponID:       coupon.ID,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: money.Round(discount),
		CreatedAt:      e.now(),
	}
	if err := e.repo.RecordUsage(ctx, usage); err != nil {
		return fmt.Errorf("record coupon usage: %w", err)
	}
	e.metrics.ObserveCouponRedemption(coupon.Code)
	log := logger.FromContext(ctx)
	log.Info().
		Str("coupon_code", coupon.Code).
		Str("order_id", orderID).
		Float64("discount_amount", usage.DiscountAmount).
		Msg("coupons.usage_recorded")
	return nil
}

// RecordUsage consumes one use of coupon for an order: the conditional increments followed
// by the usage record. The increments are released if the record cannot be written. An
// order that already has its usage record is left as is.
func (e *Engine) RecordUsage(ctx context.Context, coupon Coupon, userID, orderID string, discount float64) error {
	recorded, err := e.repo.HasOrderUsage(ctx, coupon.ID, orderID)
	if err != nil {
		return err
	}
	if recorded {
		return nil
	}
	// Callers may only hold the id and code; the allowance comes from the stored coupon.
	if coupon.UserUsageLimit <= 0 {
		if stored, err := e.repo.GetCouponByID(ctx, coupon.ID); err == nil {
			coupon.UserUsageLimit = stored.UserUsageLimit
		}
	}
	if err := e.Reserve(ctx, coupon, userID); err != nil {
		return err
	}
	if err := e.Commit(ctx, coupon, userID, orderID, discount); err != nil {
		e.Release(ctx, coupon, userID)
		if errors.Is(err, ErrUsageRecorded) {
			// A concurrent finaliser recorded this order first.
			return nil
		}
		return err
	}
	return nil
}

// ListActive returns the public view of coupons usable now.
func (e *Engine) ListActive(ctx context.Context) ([]PublicCoupon, error) {
	now := e.now()
	coupons, err := e.repo.ListActive(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]PublicCoupon, 0, len(coupons))
	for _, c := range coupons {
		if !c.IsActive || CheckWindow(c, now) != nil {
			continue
		}
		out = append(out, PublicCoupon{
			Code:          c.Code,
			Type:          c.Type,
			Value:         c.Value,
			MinOrderValue: c.MinOrderValue,
			ValidUntil:    c.ValidUntil,
		})
	}
	return out, nil
}

func outcome(err error) string {
	var minErr *MinimumOrderError
	switch {
	case errors.Is(err, ErrCouponNotFound):
		return "not_found"
	case errors.Is(err, ErrCouponNotStarted):
		return "not_started"
	case errors.Is(err, ErrCouponExpired):
		return "expired"
	case errors.As(err, &minErr):
		return "below_minimum"
	case errors.Is(err, ErrCouponUsageLimitReached):
		return "usage_limit"
	case errors.Is(err, ErrCouponAlreadyUsed):
		return "already_used"
	case errors.Is(err, ErrCouponRequiresUser):
		return "requires_user"
	default:
		return "error"
	}
}
