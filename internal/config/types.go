package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err == nil {
		d.Duration = parsed
		return nil
	}
	if secs, convErr := time.ParseDuration(raw + "s"); convErr == nil {
		d.Duration = secs
		return nil
	}
	return fmt.Errorf("invalid duration value %q: %w", raw, err)
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Storage        StorageConfig        `yaml:"storage"`
	Stripe         StripeConfig         `yaml:"stripe"`
	Auth           AuthConfig           `yaml:"auth"`
	Coupons        CouponConfig         `yaml:"coupons"`
	Catalog        CatalogConfig        `yaml:"catalog"`
	Checkout       CheckoutConfig       `yaml:"checkout"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	RoutePrefix        string   `yaml:"route_prefix"`          // default "/api"
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`  // "*" allows any origin
	AdminMetricsAPIKey string   `yaml:"admin_metrics_api_key"` // protects /metrics when set
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Environment string `yaml:"environment"`
}

// StorageConfig selects the document store backend.
type StorageConfig struct {
	Backend        string   `yaml:"backend"` // "mongodb" or "memory"
	MongoURL       string   `yaml:"mongo_url"`
	Database       string   `yaml:"database"`
	QueryTimeout   Duration `yaml:"query_timeout"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	Currency      string `yaml:"currency"`
}

// AuthConfig configures token issuing and the bootstrap admin account.
type AuthConfig struct {
	JWTSecret     string   `yaml:"jwt_secret"`
	TokenTTL      Duration `yaml:"token_ttl"`
	AdminEmail    string   `yaml:"admin_email"`
	AdminPassword string   `yaml:"admin_password"`
	AdminName     string   `yaml:"admin_name"`
}

// CouponConfig selects the coupon source and engine behaviour.
type CouponConfig struct {
	CouponSource       string             `yaml:"coupon_source"` // "mongodb", "postgres" or "memory"
	PostgresURL        string             `yaml:"postgres_url"`
	PostgresPool       PostgresPoolConfig `yaml:"postgres_pool"`
	CacheTTL           Duration           `yaml:"cache_ttl"`
	ClampFixedDiscount bool               `yaml:"clamp_fixed_discount"`
}

// PostgresPoolConfig configures the lib/pq connection pool.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// CatalogConfig holds product defaults and paging limits.
type CatalogConfig struct {
	DefaultStockQuantity     int      `yaml:"default_stock_quantity"`
	DefaultLowStockThreshold int      `yaml:"default_low_stock_threshold"`
	DefaultPageSize          int      `yaml:"default_page_size"`
	MaxPageSize              int      `yaml:"max_page_size"`
	CacheTTL                 Duration `yaml:"cache_ttl"`
}

// CheckoutConfig tunes payment reconciliation.
type CheckoutConfig struct {
	// LinkWait bounds how long a poll that lost the paid transition waits for the order id.
	LinkWait Duration `yaml:"link_wait"`
	// RepairAfter is the age after which a paid transaction without an order is finalised again.
	RepairAfter Duration `yaml:"repair_after"`
	// IdempotencyTTL is how long Idempotency-Key responses are replayed.
	IdempotencyTTL Duration `yaml:"idempotency_ttl"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	GlobalEnabled  bool     `yaml:"global_enabled"`
	GlobalLimit    int      `yaml:"global_limit"`
	GlobalWindow   Duration `yaml:"global_window"`
	PerUserEnabled bool     `yaml:"per_user_enabled"`
	PerUserLimit   int      `yaml:"per_user_limit"`
	PerUserWindow  Duration `yaml:"per_user_window"`
	PerIPEnabled   bool     `yaml:"per_ip_enabled"`
	PerIPLimit     int      `yaml:"per_ip_limit"`
	PerIPWindow    Duration `yaml:"per_ip_window"`
}

// CircuitBreakerConfig configures breakers for upstream services.
type CircuitBreakerConfig struct {
	Enabled   bool                 `yaml:"enabled"`
	StripeAPI BreakerServiceConfig `yaml:"stripe_api"`
}

// BreakerServiceConfig configures a single breaker.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`
	Interval            Duration `yaml:"interval"`
	Timeout             Duration `yaml:"timeout"`
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"`
	FailureRatio        float64  `yaml:"failure_ratio"`
	MinRequests         uint32   `yaml:"min_requests"`
}
