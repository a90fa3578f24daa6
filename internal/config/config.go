package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// OverLimitPolicy controls what happens when a purchase would drive a card's
// available limit negative.
type OverLimitPolicy string

const (
	// OverLimitWarn lets the write through and surfaces the negative figure.
	OverLimitWarn OverLimitPolicy = "warn"
	// OverLimitBlock rejects the write.
	OverLimitBlock OverLimitPolicy = "block"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort        string
	ServiceApiPort string

	// Billing engine
	OverLimitPolicy     OverLimitPolicy
	RolloverCronSpec    string // asynq scheduler spec for invoice rollover
	OverdueCronSpec     string // asynq scheduler spec for the overdue sweep
	MaxInstallments     int
	StatementCacheTTL   time.Duration
	DefaultCurrencyCode string

	// App Defaults
	AppName string

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "erp")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.AppName = getEnv("APP_NAME", "ERP")
	cfg.DefaultCurrencyCode = getEnv("DEFAULT_CURRENCY_CODE", "BRL")

	cfg.RolloverCronSpec = getEnv("INVOICE_ROLLOVER_CRON", "@every 1h")
	cfg.OverdueCronSpec = getEnv("INVOICE_OVERDUE_CRON", "@every 1h")

	switch policy := OverLimitPolicy(getEnv("CARD_OVER_LIMIT_POLICY", string(OverLimitWarn))); policy {
	case OverLimitWarn, OverLimitBlock:
		cfg.OverLimitPolicy = policy
	default:
		return nil, fmt.Errorf("invalid CARD_OVER_LIMIT_POLICY: %s", policy)
	}

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "3600"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	cfg.MaxInstallments, err = strconv.Atoi(getEnv("MAX_INSTALLMENTS", "48"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_INSTALLMENTS: %w", err)
	}

	statementCacheTTLSeconds, err := strconv.ParseInt(getEnv("STATEMENT_CACHE_TTL_SECONDS", "30"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid STATEMENT_CACHE_TTL_SECONDS: %w", err)
	}
	cfg.StatementCacheTTL = time.Duration(statementCacheTTLSeconds) * time.Second

	// Rate Limiting
	cfg.RateLimitSoftBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_BUCKET_SIZE", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitSoftRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_REFILL_RATE", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_REFILL_RATE: %w", err)
	}
	cfg.RateLimitHardBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitHardRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_REFILL_RATE: %w", err)
	}

	return cfg, nil
}
