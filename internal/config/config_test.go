package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LANGDON_DB_PATH", "")
	t.Setenv("LANGDON_PAGE_SIZE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, 2*time.Second, cfg.ScanTimeout)
	assert.False(t, cfg.MockData)
	assert.Equal(t, "langdon.db", filepath.Base(cfg.DBPath))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LANGDON_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("LANGDON_PAGE_SIZE", "50")
	t.Setenv("LANGDON_MOCK_DATA", "true")
	t.Setenv("LANGDON_SCAN_TIMEOUT", "750ms")
	t.Setenv("LANGDON_DB_PATH", "/tmp/x.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, 50, cfg.PageSize)
	assert.True(t, cfg.MockData)
	assert.Equal(t, 750*time.Millisecond, cfg.ScanTimeout)
	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("LANGDON_PAGE_SIZE", "many")
	t.Setenv("LANGDON_MOCK_DATA", "perhaps")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.False(t, cfg.MockData)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short session key", func(c *Config) { c.SessionKey = []byte("short") }},
		{"short csrf key", func(c *Config) { c.CSRFKey = []byte("short") }},
		{"empty admin", func(c *Config) { c.AdminUser = "" }},
		{"zero page size", func(c *Config) { c.PageSize = 0 }},
		{"negative concurrency", func(c *Config) { c.ScanConcurrency = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, validConfig().Validate())
}

func validConfig() *Config {
	return &Config{
		AdminUser:       "admin",
		AdminPassword:   "secret",
		SessionKey:      []byte("0123456789abcdef0123456789abcdef"),
		CSRFKey:         []byte("abcdef0123456789abcdef0123456789"),
		PageSize:        10,
		ScanConcurrency: 1,
	}
}
