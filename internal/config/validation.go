package config

import (
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8001"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "mongodb"
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	if c.Storage.QueryTimeout.Duration <= 0 {
		c.Storage.QueryTimeout = Duration{Duration: 5 * time.Second}
	}
	if c.Stripe.Currency == "" {
		c.Stripe.Currency = "inr"
	}
	c.Stripe.Currency = strings.ToLower(c.Stripe.Currency)
	if c.Auth.TokenTTL.Duration <= 0 {
		c.Auth.TokenTTL = Duration{Duration: 7 * 24 * time.Hour}
	}

	// Coupons live next to everything else unless a source is chosen explicitly.
	if c.Coupons.CouponSource == "" {
		c.Coupons.CouponSource = c.Storage.Backend
	}
	c.Coupons.CouponSource = strings.ToLower(c.Coupons.CouponSource)

	if c.Catalog.DefaultPageSize <= 0 {
		c.Catalog.DefaultPageSize = 20
	}
	if c.Catalog.MaxPageSize < c.Catalog.DefaultPageSize {
		c.Catalog.MaxPageSize = c.Catalog.DefaultPageSize
	}
	if c.Catalog.DefaultStockQuantity < 0 {
		c.Catalog.DefaultStockQuantity = 0
	}
	if c.Checkout.LinkWait.Duration < 0 {
		c.Checkout.LinkWait = Duration{}
	}
	if c.Checkout.RepairAfter.Duration <= 0 {
		c.Checkout.RepairAfter = Duration{Duration: 2 * time.Minute}
	}

	return c.validate()
}

// validate checks required fields and cross-field constraints.
func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "mongodb":
		if c.Storage.MongoURL == "" {
			return errors.New("storage.mongo_url required when storage.backend is 'mongodb'")
		}
		if c.Storage.Database == "" {
			return errors.New("storage.database required when storage.backend is 'mongodb'")
		}
	default:
		return fmt.Errorf("invalid storage.backend %q: must be 'mongodb' or 'memory'", c.Storage.Backend)
	}

	switch c.Coupons.CouponSource {
	case "memory":
	case "mongodb":
		if c.Storage.Backend != "mongodb" {
			return errors.New("coupons.coupon_source 'mongodb' requires storage.backend 'mongodb'")
		}
	case "postgres":
		if c.Coupons.PostgresURL == "" {
			return errors.New("coupons.postgres_url required when coupon_source is 'postgres'")
		}
	default:
		return fmt.Errorf("invalid coupons.coupon_source %q: must be 'mongodb', 'postgres' or 'memory'", c.Coupons.CouponSource)
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret required (set JWT_SECRET)")
	}
	if c.Auth.AdminEmail != "" {
		if _, err := mail.ParseAddress(c.Auth.AdminEmail); err != nil {
			return fmt.Errorf("auth.admin_email invalid: %w", err)
		}
		if c.Auth.AdminPassword == "" {
			return errors.New("auth.admin_password required when auth.admin_email is set")
		}
	}

	if c.RateLimit.GlobalEnabled && c.RateLimit.GlobalLimit <= 0 {
		return errors.New("rate_limit.global_limit must be positive when enabled")
	}
	if c.RateLimit.PerUserEnabled && c.RateLimit.PerUserLimit <= 0 {
		return errors.New("rate_limit.per_user_limit must be positive when enabled")
	}
	if c.RateLimit.PerIPEnabled && c.RateLimit.PerIPLimit <= 0 {
		return errors.New("rate_limit.per_ip_limit must be positive when enabled")
	}

	return nil
}

// ApplyPostgresPoolSettings applies connection pool settings to a database connection.
// If pool config is not specified, applies sensible defaults.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	maxLifetime := pool.ConnMaxLifetime.Duration
	if maxLifetime <= 0 {
		maxLifetime = 5 * time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
}
