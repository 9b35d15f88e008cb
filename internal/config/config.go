package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const PROD_STRING = "prod"

// Config holds all application configuration loaded from environment.
type Config struct {
	IsProduction bool
	ProdOrigins  string
	HTTPAddr     string
	DBDSN        string

	JWTSecret         string
	JWTAccessTokenTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers       []string
	BookingEventsTopic string

	AircraftRegistryURL string
	OrgRegistryURL      string
	UserDirectoryURL    string
	RegistryTimeout     time.Duration

	// CalendarLockWait bounds how long a create/update/cancel waits for a
	// resource calendar lock before failing with a retryable conflict.
	CalendarLockWait time.Duration
	CalendarLockTTL  time.Duration
	CalendarCacheTTL time.Duration
	PolicyCacheTTL   time.Duration

	OfferTTL                 time.Duration
	WaitlistCascadeOnDecline bool
}

// Load loads configuration from .env (optional) and environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("failed to load .env file: %v", err)
	}

	cfg := &Config{}

	cfg.ProdOrigins = getEnv("PROD_ORIGINS", "")

	appEnvStr := getEnv("APP_ENV", "dev")
	cfg.IsProduction = appEnvStr == PROD_STRING

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	// Database DSN is required
	cfg.DBDSN = os.Getenv("DB_DSN")
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required")
	}

	// JWT secret is required for validating caller identity tokens
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	var err error
	cfg.JWTAccessTokenTTL, err = getEnvAsDuration("JWT_ACCESS_TOKEN_TTL", "15m")
	if err != nil {
		return nil, err
	}

	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvAsInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg.KafkaBrokers = splitList(getEnv("KAFKA_BROKERS", "localhost:9092"))
	cfg.BookingEventsTopic = getEnv("BOOKING_EVENTS_TOPIC", "scheduling.events")

	cfg.AircraftRegistryURL = getEnv("AIRCRAFT_REGISTRY_URL", "http://localhost:8081")
	cfg.OrgRegistryURL = getEnv("ORG_REGISTRY_URL", "http://localhost:8082")
	cfg.UserDirectoryURL = getEnv("USER_DIRECTORY_URL", "http://localhost:8083")
	cfg.RegistryTimeout, err = getEnvAsDuration("REGISTRY_TIMEOUT", "3s")
	if err != nil {
		return nil, err
	}

	cfg.CalendarLockWait, err = getEnvAsDuration("CALENDAR_LOCK_WAIT", "2s")
	if err != nil {
		return nil, err
	}
	cfg.CalendarLockTTL, err = getEnvAsDuration("CALENDAR_LOCK_TTL", "10s")
	if err != nil {
		return nil, err
	}
	cfg.CalendarCacheTTL, err = getEnvAsDuration("CALENDAR_CACHE_TTL", "60s")
	if err != nil {
		return nil, err
	}
	cfg.PolicyCacheTTL, err = getEnvAsDuration("POLICY_CACHE_TTL", "5m")
	if err != nil {
		return nil, err
	}

	cfg.OfferTTL, err = getEnvAsDuration("WAITLIST_OFFER_TTL", "4h")
	if err != nil {
		return nil, err
	}
	cfg.WaitlistCascadeOnDecline = getEnv("WAITLIST_CASCADE_ON_DECLINE", "false") == "true"

	return cfg, nil
}

// getEnv returns the value of the environment variable if set,
// otherwise returns the provided default value.
func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer.
// It returns the default value if the variable is not set.
func getEnvAsInt(key string, defaultValue int) (int, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("env %s value %q is not a valid integer: %w", key, valStr, err)
	}

	return val, nil
}

// getEnvAsDuration retrieves an environment variable as a time.Duration
// (e.g. "15m", "1h"), falling back to the default when unset.
func getEnvAsDuration(key, defaultValue string) (time.Duration, error) {
	valStr := getEnv(key, defaultValue)
	d, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
