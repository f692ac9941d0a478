// Package config handles loading application configuration from environment variables.
// All settings have sensible defaults for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application settings loaded from environment variables.
type Config struct {
	Port         string
	Production   bool
	DatabasePath string
	RedisURL     string

	JWTSecret          string
	AdminTokenDuration time.Duration
	AdminUsername      string
	AdminID            string

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRefreshToken string
	SpotifyRedirectURI  string
	SpotifyAccountsURL  string
	SpotifyAPIURL       string
	UpstreamTimeout     time.Duration

	// Broadcast hub and stream lifecycle.
	MaxConnections    int
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	StaleThreshold    time.Duration
	SweepInterval     time.Duration
	WriteTimeout      time.Duration
	StreamBuffer      int

	StreamAllowedOrigin string
	CORSAllowedOrigins  []string
	TrustedProxies      []string

	GlobalRateLimit  int
	GlobalRateWindow time.Duration
	AdminRateLimit   int
	AdminRateWindow  time.Duration

	SentryDSN         string
	SentryEnvironment string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables, using defaults where not set.
// A .env file in the working directory is loaded first if present; it never
// overrides variables that are already set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:         getEnv("PORT", "4000"),
		Production:   getBoolEnv("PRODUCTION", false),
		DatabasePath: getEnv("DATABASE_PATH", "./nowplaying.db"),
		RedisURL:     getEnv("REDIS_URL", ""),

		JWTSecret:          getEnv("JWT_SECRET", "change-me-in-production"), // #nosec G101 -- intentional dev default
		AdminTokenDuration: getDurationEnv("ADMIN_TOKEN_DURATION", 3*time.Minute),
		AdminUsername:      getEnv("ADMIN_USERNAME", ""),
		AdminID:            getEnv("ADMIN_ID", ""),

		SpotifyClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret: getEnv("SPOTIFY_CLIENT_SECRET", ""),
		SpotifyRefreshToken: getEnv("SPOTIFY_REFRESH_TOKEN", ""),
		SpotifyRedirectURI:  getEnv("SPOTIFY_REDIRECT_URI", ""),
		SpotifyAccountsURL:  getEnv("SPOTIFY_ACCOUNTS_URL", "https://accounts.spotify.com"),
		SpotifyAPIURL:       getEnv("SPOTIFY_API_URL", "https://api.spotify.com"),
		UpstreamTimeout:     getDurationEnv("UPSTREAM_TIMEOUT", 10*time.Second),

		MaxConnections:    getIntEnv("MAX_SSE_CONNECTIONS", 300),
		PollInterval:      getDurationEnv("POLL_INTERVAL", 30*time.Second),
		HeartbeatInterval: getDurationEnv("HEARTBEAT_INTERVAL", 15*time.Second),
		StaleThreshold:    getDurationEnv("STALE_THRESHOLD", 10*time.Minute),
		SweepInterval:     getDurationEnv("SWEEP_INTERVAL", 5*time.Minute),
		WriteTimeout:      getDurationEnv("STREAM_WRITE_TIMEOUT", 10*time.Second),
		StreamBuffer:      getIntEnv("STREAM_BUFFER", 8),

		StreamAllowedOrigin: getEnv("STREAM_ALLOWED_ORIGIN", "https://rudyy.tech"),
		CORSAllowedOrigins: getStringSliceEnvDefault("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"https://rudyy.vercel.app",
			"https://rudyy.tech",
			"https://www.rudyy.tech",
		}),
		TrustedProxies: getStringSliceEnv("TRUSTED_PROXIES"),

		GlobalRateLimit:  getIntEnv("RATE_LIMIT", 5000),
		GlobalRateWindow: getDurationEnv("RATE_LIMIT_WINDOW", 10*time.Minute),
		AdminRateLimit:   getIntEnv("ADMIN_RATE_LIMIT", 20),
		AdminRateWindow:  getDurationEnv("ADMIN_RATE_LIMIT_WINDOW", 15*time.Minute),

		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "production"),

		LogLevel:  getEnv("LOGGING_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

// Environment returns the human-readable execution mode.
func (c *Config) Environment() string {
	if c.Production {
		return "Production"
	}
	return "Development"
}

// Validate reports settings that would break the stream lifecycle.
func (c *Config) Validate() error {
	var errs []error

	if c.MaxConnections <= 0 {
		errs = append(errs, fmt.Errorf("MAX_SSE_CONNECTIONS must be positive, got %d", c.MaxConnections))
	}
	if c.StreamBuffer <= 0 {
		errs = append(errs, fmt.Errorf("STREAM_BUFFER must be positive, got %d", c.StreamBuffer))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"POLL_INTERVAL", c.PollInterval},
		{"HEARTBEAT_INTERVAL", c.HeartbeatInterval},
		{"STALE_THRESHOLD", c.StaleThreshold},
		{"SWEEP_INTERVAL", c.SweepInterval},
		{"STREAM_WRITE_TIMEOUT", c.WriteTimeout},
		{"UPSTREAM_TIMEOUT", c.UpstreamTimeout},
		{"ADMIN_TOKEN_DURATION", c.AdminTokenDuration},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, d.value))
		}
	}

	// A heartbeat slower than the stale threshold would get every idle stream evicted.
	if c.HeartbeatInterval > 0 && c.StaleThreshold > 0 && c.HeartbeatInterval >= c.StaleThreshold {
		errs = append(errs, fmt.Errorf("HEARTBEAT_INTERVAL (%s) must be shorter than STALE_THRESHOLD (%s)",
			c.HeartbeatInterval, c.StaleThreshold))
	}

	if c.Production && c.JWTSecret == "change-me-in-production" {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}

	return errors.Join(errs...)
}

func getStringSliceEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var result []string
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}

func getStringSliceEnvDefault(key string, defaultValue []string) []string {
	if values := getStringSliceEnv(key); len(values) > 0 {
		return values
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
