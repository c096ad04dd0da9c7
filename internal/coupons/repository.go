package coupons

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/lilgiftcorner/server/internal/config"
)

// ErrCouponNotFound is returned when a coupon doesn't exist or is inactive.
var ErrCouponNotFound = errors.New("coupon not found")

// ErrDuplicateCode is returned when creating a coupon whose code is taken.
var ErrDuplicateCode = errors.New("coupon code already exists")

// ErrUsageRecorded is returned when the order already has a usage record for the coupon.
var ErrUsageRecorded = errors.New("coupon usage already recorded for order")

// DiscountType represents how the discount is applied.
type DiscountType string

const (
	DiscountTypePercentage   DiscountType = "percentage"    // Percentage of the order value
	DiscountTypeFixed        DiscountType = "fixed"         // Flat rupee amount
	DiscountTypeFreeShipping DiscountType = "free_shipping" // No price discount; shipping waived elsewhere
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	switch t {
	case DiscountTypePercentage, DiscountTypeFixed, DiscountTypeFreeShipping:
		return true
	default:
		return false
	}
}

// Coupon is a discount code. Codes are stored upper-cased.
type Coupon struct {
	ID             string       `json:"id"`
	Code           string       `json:"code"`
	Type           DiscountType `json:"type"`
	Value          float64      `json:"value"`
	MinOrderValue  float64      `json:"min_order_value"`
	MaxDiscount    *float64     `json:"max_discount"`
	UsageLimit     *int         `json:"usage_limit"` // nil = unlimited
	UsageCount     int          `json:"usage_count"`
	UserUsageLimit int          `json:"user_usage_limit"`
	ValidFrom      time.Time    `json:"valid_from"`
	ValidUntil     time.Time    `json:"valid_until"` // exclusive
	IsActive       bool         `json:"is_active"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at,omitempty"`
}

// Usage is the append-only record of a coupon applied to an order.
type Usage struct {
	ID             string    `json:"id" bson:"id"`
	CouponID       string    `json:"coupon_id" bson:"coupon_id"`
	UserID         string    `json:"user_id" bson:"user_id"`
	OrderID        string    `json:"order_id" bson:"order_id"`
	DiscountAmount float64   `json:"discount_amount" bson:"discount_amount"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}

// Update carries a partial coupon update; nil means unchanged.
type Update struct {
	Type           *DiscountType `json:"type,omitempty"`
	Value          *float64      `json:"value,omitempty"`
	MinOrderValue  *float64      `json:"min_order_value,omitempty"`
	MaxDiscount    *float64      `json:"max_discount,omitempty"`
	UsageLimit     *int          `json:"usage_limit,omitempty"`
	UserUsageLimit *int          `json:"user_usage_limit,omitempty"`
	ValidFrom      *time.Time    `json:"valid_from,omitempty"`
	ValidUntil     *time.Time    `json:"valid_until,omitempty"`
	IsActive       *bool         `json:"is_active,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Type == nil && u.Value == nil && u.MinOrderValue == nil && u.MaxDiscount == nil &&
		u.UsageLimit == nil && u.UserUsageLimit == nil && u.ValidFrom == nil && u.ValidUntil == nil &&
		u.IsActive == nil
}

// Apply returns c with u applied.
func (u Update) Apply(c Coupon) Coupon {
	if u.Type != nil {
		c.Type = *u.Type
	}
	if u.Value != nil {
		c.Value = *u.Value
	}
	if u.MinOrderValue != nil {
		c.MinOrderValue = *u.MinOrderValue
	}
	if u.MaxDiscount != nil {
		c.MaxDiscount = u.MaxDiscount
	}
	if u.UsageLimit != nil {
		c.UsageLimit = u.UsageLimit
	}
	if u.UserUsageLimit != nil {
		c.UserUsageLimit = *u.UserUsageLimit
	}
	if u.ValidFrom != nil {
		c.ValidFrom = *u.ValidFrom
	}
	if u.ValidUntil != nil {
		c.ValidUntil = *u.ValidUntil
	}
	if u.IsActive != nil {
		c.IsActive = *u.IsActive
	}
	return c
}

// NormalizeCode upper-cases and trims a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository defines the interface for coupon storage.
type Repository interface {
	// GetCoupon retrieves an active coupon by normalised code.
	GetCoupon(ctx context.Context, code string) (Coupon, error)

	// GetCouponByID retrieves a coupon by ID, active or not.
	GetCouponByID(ctx context.Context, id string) (Coupon, error)

	// ListCoupons returns up to limit coupons, newest first.
	ListCoupons(ctx context.Context, limit int) ([]Coupon, error)

	// ListActive returns active coupons whose window contains now.
	ListActive(ctx context.Context, now time.Time) ([]Coupon, error)

	// CreateCoupon creates a new coupon. A taken code yields ErrDuplicateCode.
	CreateCoupon(ctx context.Context, coupon Coupon) error

	// UpdateCoupon applies a partial update.
	UpdateCoupon(ctx context.Context, id string, update Update) (Coupon, error)

	// IncrementUsage atomically increments usage_count only while it is below usage_limit
	// (unconditionally when there is no limit). A lost increment yields
	// ErrCouponUsageLimitReached.
	IncrementUsage(ctx context.Context, id string) error

	// ReleaseUsage undoes one IncrementUsage, never going below zero.
	ReleaseUsage(ctx context.Context, id string) error

	// ReserveUserUsage atomically increments the per-user counter of a coupon only while
	// it is below limit. A lost increment yields ErrCouponAlreadyUsed.
	ReserveUserUsage(ctx context.Context, couponID, userID string, limit int) error

	// ReleaseUserUsage undoes one ReserveUserUsage, never going below zero.
	ReleaseUserUsage(ctx context.Context, couponID, userID string) error

	// HasOrderUsage reports whether a usage record exists for the coupon and order.
	HasOrderUsage(ctx context.Context, couponID, orderID string) (bool, error)

	// CountUserUsage counts usage records of a coupon by a user.
	CountUserUsage(ctx context.Context, couponID, userID string) (int, error)

	// RecordUsage appends a usage record. A second record for the same coupon and order
	// yields ErrUsageRecorded.
	RecordUsage(ctx context.Context, usage Usage) error

	// DeleteCoupon soft-deletes a coupon (sets is_active = false).
	DeleteCoupon(ctx context.Context, id string) error

	// Close closes any open connections.
	Close() error
}

// Sources accepted by NewRepository.
const (
	SourceMemory   = "memory"
	SourceMongoDB  = "mongodb"
	SourcePostgres = "postgres"
)

// NewRepository creates a coupon repository based on config, wrapped with a cache when a
// TTL is configured. mongoDB is used for the mongodb source; sharedDB, when non-nil, is
// used for the postgres source instead of opening a new pool.
func NewRepository(cfg config.CouponConfig, mongoDB *mongo.Database, queryTimeout time.Duration, sharedDB *sql.DB) (Repository, error) {
	var underlying Repository

	switch cfg.CouponSource {
	case SourceMemory:
		underlying = NewMemoryRepository()
	case SourceMongoDB:
		if mongoDB == nil {
			return nil, errors.New("mongodb storage required when coupon_source is 'mongodb'")
		}
		underlying = NewMongoDBRepository(mongoDB, queryTimeout)
	case SourcePostgres:
		if cfg.PostgresURL == "" && sharedDB == nil {
			return nil, errors.New("postgres_url required when coupon_source is 'postgres'")
		}
		var pgRepo *PostgresRepository
		var err error
		if sharedDB != nil {
			pgRepo = NewPostgresRepositoryWithDB(sharedDB)
		} else {
			pgRepo, err = NewPostgresRepository(cfg.PostgresURL, cfg.PostgresPool)
			if err != nil {
				return nil, err
			}
		}
		underlying = pgRepo
	default:
		return nil, errors.New("invalid coupon_source: must be 'memory', 'mongodb' or 'postgres'")
	}

	if ttl := cfg.CacheTTL.Duration; ttl > 0 {
		return NewCachedRepository(underlying, ttl), nil
	}
	return underlying, nil
}
