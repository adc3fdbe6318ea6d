// Package config provides configuration management for the racing gateway.
// It loads configuration from environment variables with sensible defaults
// and validates it so the application starts safely.
//
// Environment Variables:
//
// Application settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Redis configuration:
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//
// Credential store:
//   - SECRET_NAME: AWS Secrets Manager secret holding the OAuth
//     credential blob (required)
//   - AWS_REGION: Region of the secret (optional, falls back to the
//     ambient AWS configuration)
//   - AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY: Static credentials
//     (optional, the default AWS credential chain is used otherwise)
//
// Upstream API:
//   - OAUTH_TOKEN_URL: Authorization server token endpoint (required)
//   - OAUTH_SCOPE: Scope requested on the password grant (default: racing.auth)
//   - API_BASE_URL: Data API base URL (required)
//   - USER_AGENT: User-Agent sent upstream (default: racing-gateway/1.0)
//   - ACCESS_TOKEN_LIFETIME: Assumed access token lifetime when the
//     server omits one (default: 600s)
//   - REFRESH_TOKEN_LIFETIME: Assumed refresh token lifetime when the
//     server omits one (default: 168h)
//
// Caching and retry:
//   - PROFILE_CACHE_TTL: Profile cache TTL (default: 3600s)
//   - MAX_RETRIES: Upstream retry ceiling (default: 3)
//   - BASE_BACKOFF_DELAY: Initial backoff delay (default: 1s)
//   - REFRESH_SCHEDULE: Cron expression for proactive token refresh
//     (default: "@every 5m", empty disables it)
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the gateway. All fields
// correspond to environment variables that can be set to override the
// defaults. Load the configuration with Load() and check it with
// Validate() before use.
type Config struct {
	// Application settings
	Port     string
	LogLevel string

	// Redis configuration
	RedisAddress  string
	RedisPassword string
	RedisDB       string
	RedisPoolSize string

	// Credential store
	SecretName         string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Upstream API
	OAuthTokenURL        string
	OAuthScope           string
	APIBaseURL           string
	UserAgent            string
	AccessTokenLifetime  time.Duration
	RefreshTokenLifetime time.Duration

	// Caching and retry
	ProfileCacheTTL  time.Duration
	MaxRetries       int
	BaseBackoffDelay time.Duration
	RefreshSchedule  string
}

// Load creates a Config with values from the environment. It does not
// validate; call Validate() on the result.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		SecretName:         getEnv("SECRET_NAME", ""),
		AWSRegion:          getEnv("AWS_REGION", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		OAuthTokenURL:        getEnv("OAUTH_TOKEN_URL", ""),
		OAuthScope:           getEnv("OAUTH_SCOPE", "racing.auth"),
		APIBaseURL:           getEnv("API_BASE_URL", ""),
		UserAgent:            getEnv("USER_AGENT", "racing-gateway/1.0"),
		AccessTokenLifetime:  getDurationEnv("ACCESS_TOKEN_LIFETIME", 600*time.Second),
		RefreshTokenLifetime: getDurationEnv("REFRESH_TOKEN_LIFETIME", 7*24*time.Hour),

		ProfileCacheTTL:  getDurationEnv("PROFILE_CACHE_TTL", 3600*time.Second),
		MaxRetries:       getIntEnv("MAX_RETRIES", 3),
		BaseBackoffDelay: getDurationEnv("BASE_BACKOFF_DELAY", time.Second),
		RefreshSchedule:  getEnv("REFRESH_SCHEDULE", "@every 5m"),
	}
}

// Validate checks required fields and value ranges. The application
// should call this after Load and before starting.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if c.SecretName == "" {
		return fmt.Errorf("SECRET_NAME environment variable is required")
	}

	if c.OAuthTokenURL == "" {
		return fmt.Errorf("OAUTH_TOKEN_URL environment variable is required")
	}
	if _, err := url.ParseRequestURI(c.OAuthTokenURL); err != nil {
		return fmt.Errorf("OAUTH_TOKEN_URL must be a valid URL: %w", err)
	}

	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL environment variable is required")
	}
	if _, err := url.ParseRequestURI(c.APIBaseURL); err != nil {
		return fmt.Errorf("API_BASE_URL must be a valid URL: %w", err)
	}

	if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
		return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
	}
	if size, err := strconv.Atoi(c.RedisPoolSize); err != nil || size < 1 {
		return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
	}

	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}
	if c.BaseBackoffDelay <= 0 {
		return fmt.Errorf("BASE_BACKOFF_DELAY must be positive")
	}
	if c.ProfileCacheTTL <= 0 {
		return fmt.Errorf("PROFILE_CACHE_TTL must be positive")
	}
	if c.AccessTokenLifetime <= 0 || c.RefreshTokenLifetime <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}

	return nil
}

// getEnv retrieves an environment variable value or returns defaultValue
// when unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves an integer environment variable, falling back to
// defaultValue on absence or parse failure.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable. Bare numbers
// are read as seconds, so both "600" and "10m" work.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return defaultValue
}
