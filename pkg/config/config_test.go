package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("LOW_STOCK_THRESHOLD", "")
	t.Setenv("EXPIRY_WINDOW_DAYS", "")

	cfg := LoadConfig()
	assert.Equal(t, BackendFile, cfg.StorageBackend)
	assert.Equal(t, 5, cfg.LowStockThreshold)
	assert.Equal(t, 7*24*time.Hour, cfg.ExpiryWindow)
	assert.Equal(t, "sevaconnect", cfg.KeyPrefix)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("STORAGE_BACKEND", "Badger")
	t.Setenv("LOW_STOCK_THRESHOLD", "10")
	t.Setenv("EXPIRY_WINDOW_DAYS", "3")
	t.Setenv("ALLOWED_ORIGINS", "https://a.org, https://b.org")

	cfg := LoadConfig()
	assert.Equal(t, BackendBadger, cfg.StorageBackend)
	assert.Equal(t, 10, cfg.LowStockThreshold)
	assert.Equal(t, 3*24*time.Hour, cfg.ExpiryWindow)
	assert.Equal(t, []string{"https://a.org", "https://b.org"}, cfg.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment:       "development",
			Port:              "3000",
			StorageBackend:    BackendFile,
			DataDir:           "./data",
			JWTSecret:         "secret",
			LowStockThreshold: 5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"missing port", func(c *Config) { c.Port = "" }, "PORT"},
		{"default secret in production", func(c *Config) {
			c.Environment = "production"
			c.JWTSecret = "your-secret-key-change-in-production"
		}, "JWT_SECRET"},
		{"postgres without dsn", func(c *Config) { c.StorageBackend = BackendPostgres }, "POSTGRES_DSN"},
		{"supabase without key", func(c *Config) {
			c.StorageBackend = BackendSupabase
			c.SupabaseURL = "https://x.supabase.co"
		}, "SUPABASE"},
		{"remote sync without supabase", func(c *Config) { c.RemoteSync = true }, "REMOTE_SYNC"},
		{"unknown backend", func(c *Config) { c.StorageBackend = "mongo" }, "unknown"},
		{"bad threshold", func(c *Config) { c.LowStockThreshold = 0 }, "LOW_STOCK_THRESHOLD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
