package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:            ":8001",
			ReadTimeout:        Duration{Duration: 15 * time.Second},
			WriteTimeout:       Duration{Duration: 30 * time.Second},
			IdleTimeout:        Duration{Duration: 60 * time.Second},
			RoutePrefix:        "/api",
			CORSAllowedOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Backend:        "mongodb",
			MongoURL:       "mongodb://localhost:27017",
			Database:       "lilgiftcorner_db",
			QueryTimeout:   Duration{Duration: 5 * time.Second},
			ConnectTimeout: Duration{Duration: 10 * time.Second},
		},
		Stripe: StripeConfig{
			Currency: "inr",
		},
		Auth: AuthConfig{
			TokenTTL:  Duration{Duration: 7 * 24 * time.Hour},
			AdminName: "Admin",
		},
		Coupons: CouponConfig{
			ClampFixedDiscount: true,
		},
		Catalog: CatalogConfig{
			DefaultStockQuantity:     100,
			DefaultLowStockThreshold: 10,
			DefaultPageSize:          20,
			MaxPageSize:              100,
		},
		Checkout: CheckoutConfig{
			LinkWait:       Duration{Duration: 2 * time.Second},
			RepairAfter:    Duration{Duration: 2 * time.Minute},
			IdempotencyTTL: Duration{Duration: 24 * time.Hour},
		},
		RateLimit: RateLimitConfig{
			// Generous limits - designed to prevent spam, not restrict shoppers
			GlobalEnabled:  true,
			GlobalLimit:    1000,
			GlobalWindow:   Duration{Duration: 1 * time.Minute},
			PerUserEnabled: true,
			PerUserLimit:   120,
			PerUserWindow:  Duration{Duration: 1 * time.Minute},
			PerIPEnabled:   true,
			PerIPLimit:     240,
			PerIPWindow:    Duration{Duration: 1 * time.Minute},
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled: true,
			StripeAPI: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}
