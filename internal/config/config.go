// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend drivers.
const (
	DriverSupabase = "supabase"
	DriverMemory   = "memory"
)

// Rate limit stores.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment ("development" switches to console logging)
	Env string

	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	AllowedOrigins     []string

	// Hosted backend
	BackendDriver string
	SupabaseURL   string
	SupabaseKey   string

	// NATS settings. An empty URL keeps chat events in process.
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string
	AdminRole string

	// Rate limiting
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	RateLimitStore     string
	RedisURL           string
	ChatStartLimit     int
	ChatStartWindow    time.Duration
	ChatMessageLimit   int
	ChatMessageWindow  time.Duration
	RateLimitSweepTick time.Duration

	// Query optimizer
	CacheSweepInterval time.Duration
	RetryAttempts      int
	RetryDelay         time.Duration
	BatchWindow        time.Duration
	BatchMaxSize       int

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Env: getEnv("ENV", "production"),

		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
		AllowedOrigins:     getListEnv("CORS_ALLOWED_ORIGINS"),

		// Backend
		BackendDriver: getEnv("BACKEND_DRIVER", DriverSupabase),
		SupabaseURL:   getEnv("SUPABASE_URL", ""),
		SupabaseKey:   getEnv("SUPABASE_KEY", ""),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),
		AdminRole: getEnv("ADMIN_ROLE", "admin"),

		// Rate limiting
		RateLimitRequests:  getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitStore:     getEnv("RATE_LIMIT_STORE", StoreMemory),
		RedisURL:           getEnv("REDIS_URL", ""),
		ChatStartLimit:     getIntEnv("CHAT_START_LIMIT", 5),
		ChatStartWindow:    getDurationEnv("CHAT_START_WINDOW", 10*time.Minute),
		ChatMessageLimit:   getIntEnv("CHAT_MESSAGE_LIMIT", 30),
		ChatMessageWindow:  getDurationEnv("CHAT_MESSAGE_WINDOW", time.Minute),
		RateLimitSweepTick: getDurationEnv("RATE_LIMIT_SWEEP_INTERVAL", time.Minute),

		// Query optimizer
		CacheSweepInterval: getDurationEnv("CACHE_SWEEP_INTERVAL", time.Minute),
		RetryAttempts:      getIntEnv("RETRY_ATTEMPTS", 3),
		RetryDelay:         getDurationEnv("RETRY_DELAY", time.Second),
		BatchWindow:        getDurationEnv("BATCH_WINDOW", 10*time.Millisecond),
		BatchMaxSize:       getIntEnv("BATCH_MAX_SIZE", 100),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports settings that would stop the server from starting.
func (c *Config) Validate() error {
	switch c.BackendDriver {
	case DriverMemory:
	case DriverSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY are required for the %s driver", DriverSupabase)
		}
	default:
		return fmt.Errorf("unknown BACKEND_DRIVER %q", c.BackendDriver)
	}

	switch c.RateLimitStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the %s rate limit store", StoreRedis)
		}
	default:
		return fmt.Errorf("unknown RATE_LIMIT_STORE %q", c.RateLimitStore)
	}

	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1")
	}
	if c.CacheSweepInterval <= 0 || c.RateLimitSweepTick <= 0 {
		return fmt.Errorf("sweep intervals must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
