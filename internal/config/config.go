package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the backend server.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Access tokens
	JWTSecret string
	TokenTTL  time.Duration

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlock          bool     // ban IPs that keep hitting auth limits
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         getEnv("SQLITE_PATH", "./data/abxy.db"),
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		TokenTTL:           getDuration("TOKEN_TTL", 24*time.Hour),
		RateLimitWhitelist: getList("RATE_LIMIT_WHITELIST"),
		AutoBlock:          getBool("RATE_LIMIT_AUTOBLOCK", true),
	}

	// In production, require database, redis and a signing secret
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if cfg.JWTSecret == "" {
			panic("JWT_SECRET is required in production")
		}
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "development-only-secret"
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Auth backends understood by the chat client.
const (
	AuthEndpoints = "endpoints"
	AuthNhost     = "nhost"
)

// ClientConfig holds configuration for the terminal chat client.
type ClientConfig struct {
	Env string

	// AuthMode selects the authentication provider: "endpoints" or "nhost".
	AuthMode string
	BaseURL  string

	NhostSubdomain string
	NhostRegion    string

	PollInterval time.Duration
	MessageLimit int

	LogFile string
}

// LoadClient reads client configuration from environment variables and .env.
func LoadClient() *ClientConfig {
	_ = godotenv.Load()

	cfg := &ClientConfig{
		Env:            getEnv("ENV", "development"),
		AuthMode:       strings.ToLower(getEnv("ABXY_AUTH_MODE", AuthEndpoints)),
		BaseURL:        strings.TrimRight(getEnv("ABXY_URL", "http://localhost:8080"), "/"),
		NhostSubdomain: os.Getenv("ABXY_NHOST_SUBDOMAIN"),
		NhostRegion:    getEnv("ABXY_NHOST_REGION", "ap-south-1"),
		PollInterval:   getDuration("ABXY_POLL_INTERVAL", 2*time.Second),
		MessageLimit:   getInt("ABXY_MESSAGE_LIMIT", 200),
		LogFile:        getEnv("ABXY_LOG_FILE", "abxy.log"),
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = 200
	}

	return cfg
}

// GraphQLURL returns the GraphQL endpoint for the configured backend.
func (c *ClientConfig) GraphQLURL() string {
	if c.AuthMode == AuthNhost {
		return "https://" + c.NhostSubdomain + ".graphql." + c.NhostRegion + ".nhost.run/v1"
	}
	return c.BaseURL + "/v1/graphql"
}

// AuthURL returns the base URL of the authentication provider.
func (c *ClientConfig) AuthURL() string {
	if c.AuthMode == AuthNhost {
		return "https://" + c.NhostSubdomain + ".auth." + c.NhostRegion + ".nhost.run"
	}
	return c.BaseURL
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getList parses a comma-separated variable, dropping empty entries.
func getList(key string) []string {
	var out []string
	for _, entry := range strings.Split(os.Getenv(key), ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
