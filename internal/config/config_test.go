package config

import (
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseEnv(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func TestDefaults(t *testing.T) {
	cfg, err := parseEnv(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.UsePostgres())
	assert.Equal(t, "./data/workconnect.db", cfg.SQLitePath)
	assert.Equal(t, 10*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 30*24*time.Hour, cfg.ReadNotificationRetention)
	assert.Nil(t, cfg.RateLimitWhitelist)
	assert.False(t, cfg.AutoBlockEnabled)
}

func TestListsAreTrimmed(t *testing.T) {
	cfg, err := parseEnv(map[string]string{
		"RATE_LIMIT_WHITELIST": " 10.0.0.1 , 192.168.0.0/16,,",
		"CORS_ALLOWED_ORIGINS": "https://app.example.com",
		"AUTO_BLOCK_ENABLED":   "true",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.1", "192.168.0.0/16"}, cfg.RateLimitWhitelist)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.AutoBlockEnabled)
}

func TestProductionRequiresInfrastructure(t *testing.T) {
	_, err := parseEnv(map[string]string{"ENV": "production"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "REDIS_URL")
	assert.Contains(t, err.Error(), "PAYMENT_WEBHOOK_SECRET")

	cfg, err := parseEnv(map[string]string{
		"ENV":                    "production",
		"DATABASE_URL":           "postgres://localhost/workconnect",
		"REDIS_URL":              "redis://localhost:6379",
		"PAYMENT_WEBHOOK_SECRET": "s3cret",
	})
	require.NoError(t, err)
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.UsePostgres())
}

func TestInvalidDurations(t *testing.T) {
	_, err := parseEnv(map[string]string{"NOTIFICATION_SWEEP_INTERVAL": "soon"})
	require.Error(t, err)

	_, err = parseEnv(map[string]string{"READ_NOTIFICATION_RETENTION": "0s"})
	require.Error(t, err)
}
