package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := Load()
	cfg.SecretName = "racing-oauth-credentials"
	cfg.OAuthTokenURL = "https://oauth.example.com/token"
	cfg.APIBaseURL = "https://members.example.com"
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "localhost:6379", cfg.RedisAddress)
	assert.Equal(t, 600*time.Second, cfg.AccessTokenLifetime)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenLifetime)
	assert.Equal(t, time.Hour, cfg.ProfileCacheTTL)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.BaseBackoffDelay)
	assert.Equal(t, "@every 5m", cfg.RefreshSchedule)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PROFILE_CACHE_TTL", "120")
	t.Setenv("ACCESS_TOKEN_LIFETIME", "5m")
	t.Setenv("MAX_RETRIES", "5")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 120*time.Second, cfg.ProfileCacheTTL, "bare numbers read as seconds")
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenLifetime, "duration strings accepted")
	assert.Equal(t, 5, cfg.MaxRetries)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Port = "none" }, "PORT"},
		{"port out of range", func(c *Config) { c.Port = "70000" }, "PORT"},
		{"missing secret name", func(c *Config) { c.SecretName = "" }, "SECRET_NAME"},
		{"missing token url", func(c *Config) { c.OAuthTokenURL = "" }, "OAUTH_TOKEN_URL"},
		{"bad token url", func(c *Config) { c.OAuthTokenURL = "not a url" }, "OAUTH_TOKEN_URL"},
		{"missing api base", func(c *Config) { c.APIBaseURL = "" }, "API_BASE_URL"},
		{"bad redis db", func(c *Config) { c.RedisDB = "16" }, "REDIS_DB"},
		{"bad pool size", func(c *Config) { c.RedisPoolSize = "0" }, "REDIS_POOL_SIZE"},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, "MAX_RETRIES"},
		{"zero backoff", func(c *Config) { c.BaseBackoffDelay = 0 }, "BASE_BACKOFF_DELAY"},
		{"zero cache ttl", func(c *Config) { c.ProfileCacheTTL = 0 }, "PROFILE_CACHE_TTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
