package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable the loader reads so host settings don't leak into tests.
func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"PORT", "CORS_ORIGINS", "LOG_LEVEL", "MONGO_URL", "DB_NAME", "STRIPE_API_KEY",
		"STRIPE_WEBHOOK_SECRET", "JWT_SECRET", "JWT_EXPIRATION_DAYS", "ADMIN_EMAIL", "ADMIN_PASSWORD",
		"COUPON_SOURCE", "COUPON_POSTGRES_URL", "COUPON_CACHE_TTL", "COUPON_CLAMP_FIXED_DISCOUNT",
		"DEFAULT_STOCK_QUANTITY", "DEFAULT_LOW_STOCK_THRESHOLD", "DEFAULT_PAGE_SIZE", "MAX_PAGE_SIZE",
		"LILGIFT_SERVER_ADDRESS", "LILGIFT_ROUTE_PREFIX", "LILGIFT_STORAGE_BACKEND", "LILGIFT_MONGO_URL",
		"LILGIFT_MONGO_DATABASE", "LILGIFT_JWT_SECRET", "LILGIFT_TOKEN_TTL", "LILGIFT_CORS_ORIGINS",
		"LILGIFT_STRIPE_SECRET_KEY", "LILGIFT_CHECKOUT_LINK_WAIT",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_RequiresJWTSecret(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err == nil {
		t.Fatal("expected error when jwt secret is missing, got nil")
	}
	if cfg != nil {
		t.Fatal("expected nil config when validation fails")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("expected error about jwt_secret, got %q", err.Error())
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error with valid config, got: %v", err)
	}

	if cfg.Server.Address != ":8001" {
		t.Errorf("expected default address :8001, got %s", cfg.Server.Address)
	}
	if cfg.Server.RoutePrefix != "/api" {
		t.Errorf("expected default route prefix /api, got %s", cfg.Server.RoutePrefix)
	}
	if cfg.Auth.TokenTTL.Duration != 7*24*time.Hour {
		t.Errorf("expected 7 day token ttl, got %v", cfg.Auth.TokenTTL.Duration)
	}
	if cfg.Coupons.CouponSource != "mongodb" {
		t.Errorf("expected coupon source to follow storage backend, got %s", cfg.Coupons.CouponSource)
	}
	if !cfg.Coupons.ClampFixedDiscount {
		t.Error("expected fixed discounts to be clamped by default")
	}
	if cfg.Catalog.DefaultStockQuantity != 100 || cfg.Catalog.DefaultLowStockThreshold != 10 {
		t.Errorf("unexpected catalog defaults: %+v", cfg.Catalog)
	}
	if cfg.Stripe.Currency != "inr" {
		t.Errorf("expected currency inr, got %s", cfg.Stripe.Currency)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr string
	}{
		{
			name:    "unknown storage backend",
			envVars: map[string]string{"LILGIFT_STORAGE_BACKEND": "redis"},
			wantErr: "invalid storage.backend",
		},
		{
			name:    "postgres coupons without url",
			envVars: map[string]string{"COUPON_SOURCE": "postgres"},
			wantErr: "coupons.postgres_url required",
		},
		{
			name:    "mongo coupons on memory storage",
			envVars: map[string]string{"LILGIFT_STORAGE_BACKEND": "memory", "COUPON_SOURCE": "mongodb"},
			wantErr: "requires storage.backend 'mongodb'",
		},
		{
			name:    "admin email without password",
			envVars: map[string]string{"ADMIN_EMAIL": "admin@example.com"},
			wantErr: "admin_password required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("JWT_SECRET", "test-secret")
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			_, err := Load("")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	clearEnv(t)

	content := `
server:
  address: ":9000"
  route_prefix: "shop/"
storage:
  backend: memory
auth:
  jwt_secret: file-secret
  token_ttl: 48h
coupons:
  cache_ttl: 30
  clamp_fixed_discount: false
checkout:
  link_wait: 500ms
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Errorf("Address = %s, want :9000", cfg.Server.Address)
	}
	if cfg.Server.RoutePrefix != "/shop" {
		t.Errorf("RoutePrefix = %s, want /shop", cfg.Server.RoutePrefix)
	}
	if cfg.Coupons.CouponSource != "memory" {
		t.Errorf("CouponSource = %s, want memory", cfg.Coupons.CouponSource)
	}
	if cfg.Coupons.CacheTTL.Duration != 30*time.Second {
		t.Errorf("CacheTTL = %v, want 30s (bare number is seconds)", cfg.Coupons.CacheTTL.Duration)
	}
	if cfg.Coupons.ClampFixedDiscount {
		t.Error("ClampFixedDiscount = true, want false from file")
	}
	if cfg.Auth.TokenTTL.Duration != 48*time.Hour {
		t.Errorf("TokenTTL = %v, want 48h", cfg.Auth.TokenTTL.Duration)
	}
	if cfg.Checkout.LinkWait.Duration != 500*time.Millisecond {
		t.Errorf("LinkWait = %v, want 500ms", cfg.Checkout.LinkWait.Duration)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
