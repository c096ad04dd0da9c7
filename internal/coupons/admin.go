package coupons

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lilgiftcorner/server/internal/logger"
)

// ErrInvalidCoupon is returned when coupon input fails validation.
var ErrInvalidCoupon = errors.New("invalid coupon")

// ErrNothingToUpdate is returned for an empty update.
var ErrNothingToUpdate = errors.New("no fields to update")

// NewCoupon is the admin input for a coupon.
type NewCoupon struct {
	Code           string       `json:"code"`
	Type           DiscountType `json:"type"`
	Value          float64      `json:"value"`
	MinOrderValue  float64      `json:"min_order_value"`
	MaxDiscount    *float64     `json:"max_discount"`
	UsageLimit     *int         `json:"usage_limit"`
	UserUsageLimit *int         `json:"user_usage_limit"`
	ValidFrom      Timestamp    `json:"valid_from"`
	ValidUntil     Timestamp    `json:"valid_until"`
}

func validateCoupon(c Coupon) error {
	switch {
	case c.Code == "":
		return fmt.Errorf("%w: code is required", ErrInvalidCoupon)
	case !c.Type.Valid():
		return fmt.Errorf("%w: type must be percentage, fixed or free_shipping", ErrInvalidCoupon)
	case c.Value < 0:
		return fmt.Errorf("%w: value must be non-negative", ErrInvalidCoupon)
	case c.Type == DiscountTypePercentage && c.Value > 100:
		return fmt.Errorf("%w: percentage must be at most 100", ErrInvalidCoupon)
	case c.UsageLimit != nil && *c.UsageLimit < 0:
		return fmt.Errorf("%w: usage_limit must be non-negative", ErrInvalidCoupon)
	case !c.ValidFrom.IsZero() && !c.ValidUntil.IsZero() && !c.ValidFrom.Before(c.ValidUntil):
		return fmt.Errorf("%w: valid_from must be before valid_until", ErrInvalidCoupon)
	}
	return nil
}

// CreateCoupon stores a new coupon with an upper-cased code.
func (e *Engine) CreateCoupon(ctx context.Context, in NewCoupon) (Coupon, error) {
	c := Coupon{
		ID:             uuid.NewString(),
		Code:           NormalizeCode(in.Code),
		Type:           in.Type,
		Value:          in.Value,
		MinOrderValue:  in.MinOrderValue,
		MaxDiscount:    in.MaxDiscount,
		UsageLimit:     in.UsageLimit,
		UserUsageLimit: 1,
		ValidFrom:      in.ValidFrom.Time,
		ValidUntil:     in.ValidUntil.Time,
		IsActive:       true,
		CreatedAt:      e.now(),
	}
	if in.UserUsageLimit != nil {
		c.UserUsageLimit = *in.UserUsageLimit
	}
	if err := validateCoupon(c); err != nil {
		return Coupon{}, err
	}

	if err := e.repo.CreateCoupon(ctx, c); err != nil {
		return Coupon{}, err
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("coupon_id", c.ID).
		Str("coupon_code", c.Code).
		Str("type", string(c.Type)).
		Msg("coupons.created")
	return c, nil
}

// ListCoupons returns up to 100 coupons, newest first.
func (e *Engine) ListCoupons(ctx context.Context) ([]Coupon, error) {
	return e.repo.ListCoupons(ctx, 100)
}

// UpdateCoupon applies a partial update after validating the result.
func (e *Engine) UpdateCoupon(ctx context.Context, id string, update Update) (Coupon, error) {
	if update.Empty() {
		return Coupon{}, ErrNothingToUpdate
	}
	current, err := e.repo.GetCouponByID(ctx, id)
	if err != nil {
		return Coupon{}, err
	}
	if err := validateCoupon(update.Apply(current)); err != nil {
		return Coupon{}, err
	}
	return e.repo.UpdateCoupon(ctx, id, update)
}

// DeleteCoupon deactivates a coupon. Usage history is kept.
func (e *Engine) DeleteCoupon(ctx context.Context, id string) error {
	if err := e.repo.DeleteCoupon(ctx, id); err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("coupon_id", id).Msg("coupons.deactivated")
	return nil
}
