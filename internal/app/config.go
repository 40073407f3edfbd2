package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	IssuerDID string // Required: DID the service issues credentials under
	SchemaRef string // Optional: credential schema URL (default: built-in degree schema)
	BaseURL   string // Optional: public base URL used in QR payloads and callbacks (default: http://localhost:8080)

	LedgerURL     string // Optional: ledger node base URL; empty selects the in-process ledger
	ContentSecret string // Required in prod: secret for per-holder content encryption keys
	JWTSecret     string // Required in prod: HS256 secret for portal tokens

	DatabaseFile         string        // Optional: path to SQLite database file (default: ./unicred.db)
	PepperFile           string        // Optional: path to password pepper file (default: ./pepper)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 15m)

	AuthSessionTTL   time.Duration // Wallet auth session ttl (default: 5m)
	VerifySessionTTL time.Duration // Verification session ttl (default: 10m)
	PortalTokenTTL   time.Duration // Employer portal token ttl (default: 24h)
	CredentialTTL    time.Duration // Optional credential expiry; 0 issues non-expiring credentials
}

func LoadConfig() Config {
	cfg := Config{
		IssuerDID:            os.Getenv("UNICRED_ISSUER_DID"),
		SchemaRef:            getEnvOrDefault("UNICRED_SCHEMA_URL", "https://schemas.example.edu/degree-v1.json"),
		BaseURL:              getEnvOrDefault("UNICRED_BASE_URL", "http://localhost:8080"),
		LedgerURL:            os.Getenv("UNICRED_LEDGER_URL"),
		ContentSecret:        os.Getenv("UNICRED_CONTENT_SECRET"),
		JWTSecret:            os.Getenv("UNICRED_JWT_SECRET"),
		DatabaseFile:         getEnvOrDefault("UNICRED_DATABASE_FILE", "unicred.db"),
		PepperFile:           getEnvOrDefault("UNICRED_PEPPER_FILE", "pepper"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 15*time.Minute),
		AuthSessionTTL:       getEnvDurationOrDefault("UNICRED_AUTH_SESSION_TTL", 5*time.Minute),
		VerifySessionTTL:     getEnvDurationOrDefault("UNICRED_VERIFY_SESSION_TTL", 10*time.Minute),
		PortalTokenTTL:       getEnvDurationOrDefault("UNICRED_PORTAL_TOKEN_TTL", 24*time.Hour),
		CredentialTTL:        getEnvDurationOrDefault("UNICRED_CREDENTIAL_TTL", 0),
	}

	if cfg.IssuerDID == "" {
		cfg.IssuerDID = "did:iden3:polygon:amoy:dev-issuer"
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
