// Package config loads the proxy's configuration from the environment, in
// the teacher's flat-struct-plus-helper-function style.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// TierConfig is the {enabled, max_size, default_ttl, policy} triple for one
// cache tier.
type TierConfig struct {
	Enabled    bool
	MaxSize    int
	DefaultTTL time.Duration
	Policy     string // lru, fifo, lfu
}

// RateLimitConfig is the per-endpoint sliding-window rule.
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
	Min    int
	Max    int
}

// BreakerConfig is the per-endpoint circuit breaker threshold set.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	MaxTrials        uint32
	ResetThreshold   uint32
}

// Config is the proxy's full runtime configuration.
type Config struct {
	Port        string
	Environment string

	// Session envelope
	SessionMasterKey string
	SessionTimeout   time.Duration
	SessionMaxAge    time.Duration

	// Upstream vendor
	UpstreamBaseURL string
	UpstreamAPIKey  string
	MaxRetries      int
	BaseDelay       time.Duration
	AttemptTimeout  time.Duration

	// Cache tiers
	TierL1 TierConfig
	TierL2 TierConfig
	TierL3 TierConfig

	// Optional durable L3 backing store
	CacheL3RedisURL string

	// Rate limiting
	RateLimitDefault RateLimitConfig
	RateLimitByEndpoint map[string]RateLimitConfig
	AdaptiveEnabled     bool
	AdaptiveInterval    time.Duration

	// Circuit breaker
	BreakerDefault BreakerConfig

	// Metrics
	MetricsWindow time.Duration

	// CORS
	AllowedOrigins []string
}

// Load reads configuration from the environment. It returns an error (the
// caller's responsibility to treat as a fatal startup failure, exit code 1)
// if SessionMasterKey is empty outside development.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),

		SessionMasterKey: getEnv("SESSION_MASTER_KEY", ""),
		SessionTimeout:   getEnvDuration("SESSION_TIMEOUT", 30*time.Minute),
		SessionMaxAge:    getEnvDuration("SESSION_MAX_AGE", 7*24*time.Hour),

		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", ""),
		UpstreamAPIKey:  getEnv("UPSTREAM_API_KEY", ""),
		MaxRetries:      getEnvInt("UPSTREAM_MAX_RETRIES", 3),
		BaseDelay:       getEnvDuration("UPSTREAM_BASE_DELAY", 200*time.Millisecond),
		AttemptTimeout:  getEnvDuration("UPSTREAM_ATTEMPT_TIMEOUT", 30*time.Second),

		TierL1: TierConfig{
			Enabled:    getEnvBool("CACHE_L1_ENABLED", true),
			MaxSize:    getEnvInt("CACHE_L1_MAX_SIZE", 10_000),
			DefaultTTL: getEnvDuration("CACHE_L1_TTL", 5*time.Minute),
			Policy:     getEnv("CACHE_L1_POLICY", "lru"),
		},
		TierL2: TierConfig{
			Enabled:    getEnvBool("CACHE_L2_ENABLED", true),
			MaxSize:    getEnvInt("CACHE_L2_MAX_SIZE", 50_000),
			DefaultTTL: getEnvDuration("CACHE_L2_TTL", 30*time.Minute),
			Policy:     getEnv("CACHE_L2_POLICY", "fifo"),
		},
		TierL3: TierConfig{
			Enabled:    getEnvBool("CACHE_L3_ENABLED", true),
			MaxSize:    getEnvInt("CACHE_L3_MAX_SIZE", 200_000),
			DefaultTTL: getEnvDuration("CACHE_L3_TTL", 24*time.Hour),
			Policy:     getEnv("CACHE_L3_POLICY", "lfu"),
		},
		CacheL3RedisURL: getEnv("CACHE_L3_REDIS_URL", ""),

		RateLimitDefault: RateLimitConfig{
			Limit:  getEnvInt("RATE_LIMIT_DEFAULT_LIMIT", 100),
			Window: getEnvDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
			Min:    getEnvInt("RATE_LIMIT_DEFAULT_MIN", 10),
			Max:    getEnvInt("RATE_LIMIT_DEFAULT_MAX", 500),
		},
		RateLimitByEndpoint: parseEndpointRateLimits(getEnv("RATE_LIMIT_OVERRIDES", "")),
		AdaptiveEnabled:     getEnvBool("ADAPTIVE_RATE_LIMIT_ENABLED", false),
		AdaptiveInterval:    getEnvDuration("ADAPTIVE_INTERVAL", time.Minute),

		BreakerDefault: BreakerConfig{
			FailureThreshold: uint32(getEnvInt("BREAKER_FAILURE_THRESHOLD", 5)),
			OpenTimeout:      getEnvDuration("BREAKER_OPEN_TIMEOUT", 60*time.Second),
			MaxTrials:        uint32(getEnvInt("BREAKER_MAX_TRIALS", 5)),
			ResetThreshold:   uint32(getEnvInt("BREAKER_RESET_THRESHOLD", 3)),
		},

		MetricsWindow: getEnvDuration("METRICS_WINDOW", 5*time.Minute),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),
	}

	if cfg.SessionMasterKey == "" && !cfg.IsDevelopment() {
		return nil, fmt.Errorf("config: SESSION_MASTER_KEY is required outside development")
	}
	if cfg.SessionMasterKey == "" {
		cfg.SessionMasterKey = "dev-only-insecure-master-key-do-not-use-in-prod"
	}

	return cfg, nil
}

// parseEndpointRateLimits parses "endpoint:limit:window_seconds,..." pairs.
func parseEndpointRateLimits(raw string) map[string]RateLimitConfig {
	out := make(map[string]RateLimitConfig)
	if raw == "" {
		return out
	}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			continue
		}
		limit, err1 := strconv.Atoi(parts[1])
		seconds, err2 := strconv.Atoi(parts[2])
		if err1 != nil || err2 != nil {
			continue
		}
		out[parts[0]] = RateLimitConfig{Limit: limit, Window: time.Duration(seconds) * time.Second}
	}
	return out
}

func (c *Config) IsDevelopment() bool { return c.Environment == "development" }
func (c *Config) IsProduction() bool  { return c.Environment == "production" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
