package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration. The unprefixed names
// used by the storefront deployment (MONGO_URL, JWT_SECRET, ...) are read first and the
// LILGIFT_ prefixed names win when both are present.
func (c *Config) applyEnvOverrides() {
	// Server config
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Address = ":" + strings.TrimPrefix(port, ":")
	}
	setIfEnv(&c.Server.Address, "LILGIFT_SERVER_ADDRESS")
	setIfEnv(&c.Server.RoutePrefix, "LILGIFT_ROUTE_PREFIX")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "LILGIFT_ADMIN_METRICS_API_KEY")
	setListIfEnv(&c.Server.CORSAllowedOrigins, "CORS_ORIGINS")
	setListIfEnv(&c.Server.CORSAllowedOrigins, "LILGIFT_CORS_ORIGINS")

	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}

	// Logging config
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	setIfEnv(&c.Logging.Level, "LILGIFT_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "LILGIFT_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "LILGIFT_ENVIRONMENT")

	// Storage config
	setIfEnv(&c.Storage.MongoURL, "MONGO_URL")
	setIfEnv(&c.Storage.Database, "DB_NAME")
	setIfEnv(&c.Storage.Backend, "LILGIFT_STORAGE_BACKEND")
	setIfEnv(&c.Storage.MongoURL, "LILGIFT_MONGO_URL")
	setIfEnv(&c.Storage.Database, "LILGIFT_MONGO_DATABASE")
	setDurationIfEnv(&c.Storage.QueryTimeout, "LILGIFT_QUERY_TIMEOUT")

	// Stripe config
	setIfEnv(&c.Stripe.SecretKey, "STRIPE_API_KEY")
	setIfEnv(&c.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setIfEnv(&c.Stripe.SecretKey, "LILGIFT_STRIPE_SECRET_KEY")
	setIfEnv(&c.Stripe.WebhookSecret, "LILGIFT_STRIPE_WEBHOOK_SECRET")
	setIfEnv(&c.Stripe.Currency, "LILGIFT_STRIPE_CURRENCY")

	// Auth config
	setIfEnv(&c.Auth.JWTSecret, "JWT_SECRET")
	if v := os.Getenv("JWT_EXPIRATION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			c.Auth.TokenTTL = Duration{Duration: time.Duration(days) * 24 * time.Hour}
		}
	}
	setIfEnv(&c.Auth.AdminEmail, "ADMIN_EMAIL")
	setIfEnv(&c.Auth.AdminPassword, "ADMIN_PASSWORD")
	setIfEnv(&c.Auth.JWTSecret, "LILGIFT_JWT_SECRET")
	setDurationIfEnv(&c.Auth.TokenTTL, "LILGIFT_TOKEN_TTL")

	// Coupon config
	setIfEnv(&c.Coupons.CouponSource, "COUPON_SOURCE")
	setIfEnv(&c.Coupons.PostgresURL, "COUPON_POSTGRES_URL")
	setDurationIfEnv(&c.Coupons.CacheTTL, "COUPON_CACHE_TTL")
	setBoolIfEnv(&c.Coupons.ClampFixedDiscount, "COUPON_CLAMP_FIXED_DISCOUNT")

	// Catalog config
	setIntIfEnv(&c.Catalog.DefaultStockQuantity, "DEFAULT_STOCK_QUANTITY")
	setIntIfEnv(&c.Catalog.DefaultLowStockThreshold, "DEFAULT_LOW_STOCK_THRESHOLD")
	setIntIfEnv(&c.Catalog.DefaultPageSize, "DEFAULT_PAGE_SIZE")
	setIntIfEnv(&c.Catalog.MaxPageSize, "MAX_PAGE_SIZE")
	setDurationIfEnv(&c.Catalog.CacheTTL, "LILGIFT_PRODUCT_CACHE_TTL")

	// Checkout config
	setDurationIfEnv(&c.Checkout.LinkWait, "LILGIFT_CHECKOUT_LINK_WAIT")
	setDurationIfEnv(&c.Checkout.RepairAfter, "LILGIFT_CHECKOUT_REPAIR_AFTER")
	setDurationIfEnv(&c.Checkout.IdempotencyTTL, "LILGIFT_IDEMPOTENCY_TTL")

	// Rate limit config
	setBoolIfEnv(&c.RateLimit.GlobalEnabled, "LILGIFT_RATE_LIMIT_GLOBAL_ENABLED")
	setIntIfEnv(&c.RateLimit.GlobalLimit, "LILGIFT_RATE_LIMIT_GLOBAL_LIMIT")
	setBoolIfEnv(&c.RateLimit.PerUserEnabled, "LILGIFT_RATE_LIMIT_PER_USER_ENABLED")
	setIntIfEnv(&c.RateLimit.PerUserLimit, "LILGIFT_RATE_LIMIT_PER_USER_LIMIT")
	setBoolIfEnv(&c.RateLimit.PerIPEnabled, "LILGIFT_RATE_LIMIT_PER_IP_ENABLED")
	setIntIfEnv(&c.RateLimit.PerIPLimit, "LILGIFT_RATE_LIMIT_PER_IP_LIMIT")

	setBoolIfEnv(&c.CircuitBreaker.Enabled, "LILGIFT_CIRCUIT_BREAKER_ENABLED")
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1" and any casing of "true" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*target = n
		}
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// setListIfEnv splits a comma separated variable, dropping blanks.
func setListIfEnv(target *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) > 0 {
		*target = out
	}
}

// normalizeRoutePrefix ensures the prefix starts with / and doesn't end with /.
// Examples: "api" -> "/api", "/api/" -> "/api"
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimSuffix(prefix, "/")
}
