package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	App struct {
		Port        string
		Debug       bool
		FrontendURL string
	}
	Store struct {
		Backend string // "file" or "redis", fixed at startup
		DataDir string
	}
	Redis struct {
		Host     string
		Port     string
		Password string
		DB       int
	}
	Auth struct {
		JWTSecret       string
		AdminKey        string
		TokenTTL        time.Duration
		TimestampWindow time.Duration
		NonceTTL        time.Duration
	}
	Ledger struct {
		ExportDir string
	}
	RateLimit struct {
		RequestsPerSecond int
		Burst             int
	}
}

func Load() *Config {
	cfg := &Config{}

	// App
	cfg.App.Port = getEnv("PORT", "8081")
	cfg.App.Debug = getEnvAsBool("DEBUG", false)
	cfg.App.FrontendURL = getEnv("FRONTEND_URL", "http://localhost:3000")

	// Store
	cfg.Store.Backend = getEnv("STORE_BACKEND", "file")
	cfg.Store.DataDir = getEnv("DATA_DIR", "./data")

	// Redis
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnv("REDIS_PORT", "6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)

	// Auth
	cfg.Auth.JWTSecret = mustEnv("JWT_SECRET")
	cfg.Auth.AdminKey = mustEnv("ADMIN_KEY")
	cfg.Auth.TokenTTL = getEnvAsDuration("TOKEN_TTL", 7*24*time.Hour)
	cfg.Auth.TimestampWindow = getEnvAsDuration("TIMESTAMP_WINDOW", 5*time.Minute)
	// Deliberately longer than the timestamp window; a nonce outlives the
	// window it was accepted in.
	cfg.Auth.NonceTTL = getEnvAsDuration("NONCE_TTL", 15*time.Minute)

	// Ledger
	cfg.Ledger.ExportDir = getEnv("EXPORT_DIR", "./data/export")

	// Rate limit
	cfg.RateLimit.RequestsPerSecond = getEnvAsInt("RATE_LIMIT_RPS", 10)
	cfg.RateLimit.Burst = getEnvAsInt("RATE_LIMIT_BURST", 20)

	return cfg
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("Missing env var: %s", key)
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
	}
	return defaultValue
}
