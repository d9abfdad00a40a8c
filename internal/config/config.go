package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Env         string `env:"ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"./data/workconnect.db"`
	RedisURL    string `env:"REDIS_URL"`

	// Rate limiting
	RateLimitWhitelist []string `env:"RATE_LIMIT_WHITELIST" envSeparator:","` // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     `env:"AUTO_BLOCK_ENABLED" envDefault:"false"`

	PaymentWebhookSecret string   `env:"PAYMENT_WEBHOOK_SECRET"`
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// Notification housekeeping
	SweepInterval             time.Duration `env:"NOTIFICATION_SWEEP_INTERVAL" envDefault:"10m"`
	ReadNotificationRetention time.Duration `env:"READ_NOTIFICATION_RETENTION" envDefault:"720h"`
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.RateLimitWhitelist = compact(cfg.RateLimitWhitelist)
	cfg.CORSAllowedOrigins = compact(cfg.CORSAllowedOrigins)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SweepInterval <= 0 {
		return errors.New("NOTIFICATION_SWEEP_INTERVAL must be positive")
	}
	if c.ReadNotificationRetention <= 0 {
		return errors.New("READ_NOTIFICATION_RETENTION must be positive")
	}
	// In production, require database, redis and the payment secret
	if c.Env == "production" {
		var missing []string
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
		if c.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
		if c.PaymentWebhookSecret == "" {
			missing = append(missing, "PAYMENT_WEBHOOK_SECRET")
		}
		if len(missing) > 0 {
			return fmt.Errorf("required in production: %s", strings.Join(missing, ", "))
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// UsePostgres reports whether a PostgreSQL URL is configured; otherwise the
// embedded SQLite store is used.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

func compact(entries []string) []string {
	out := entries[:0]
	for _, e := range entries {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
