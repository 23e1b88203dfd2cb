package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, FetchModeHTTP, cfg.Fetcher.Mode)
	assert.Equal(t, "https://www.1688.com/", cfg.Fetcher.Referer)
	assert.Equal(t, 10*time.Second, cfg.Fetcher.DescriptionTimeout)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.MinDelay)
	assert.Equal(t, 5*time.Second, cfg.RateLimit.MaxDelay)
	assert.Equal(t, 7, cfg.Sheet.StartRow)
	assert.Equal(t, "stream:offer_records", cfg.Redis.Stream)
	assert.NotEmpty(t, cfg.Fetcher.UserAgents)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FETCHER_MODE", "browser")
	t.Setenv("RATE_LIMIT_MIN_DELAY", "500ms")
	t.Setenv("RATE_LIMIT_MAX_DELAY", "1s")
	t.Setenv("FETCHER_USER_AGENTS", "agent/1 (X11, Linux) | agent/2")
	t.Setenv("SHEET_START_ROW", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, FetchModeBrowser, cfg.Fetcher.Mode)
	assert.Equal(t, 500*time.Millisecond, cfg.RateLimit.MinDelay)
	assert.Equal(t, time.Second, cfg.RateLimit.MaxDelay)
	assert.Equal(t, []string{"agent/1 (X11, Linux)", "agent/2"}, cfg.Fetcher.UserAgents)
	assert.Equal(t, 7, cfg.Sheet.StartRow, "unparsable values fall back to the default")
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("RATE_LIMIT_BUCKET_SIZE=9\nREDIS_CONSUMER_GROUP=from-file\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("RATE_LIMIT_BUCKET_SIZE")
		os.Unsetenv("REDIS_CONSUMER_GROUP")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.RateLimit.BucketSize)
	assert.Equal(t, "from-file", cfg.Redis.ConsumerGroup)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown fetch mode", func(c *Config) { c.Fetcher.Mode = "curl" }, true},
		{"no retries", func(c *Config) { c.Fetcher.MaxRetries = 0 }, true},
		{"no user agents", func(c *Config) { c.Fetcher.UserAgents = nil }, true},
		{"inverted delays", func(c *Config) { c.RateLimit.MinDelay = 10 * time.Second }, true},
		{"start row zero", func(c *Config) { c.Sheet.StartRow = 0 }, true},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			require.NoError(t, err)

			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "offers", SSLMode: "disable", MaxConns: 4}
	assert.Equal(t, "postgres://u:p@db:5433/offers?sslmode=disable&pool_max_conns=4", db.DSN())
}
