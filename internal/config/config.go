// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string of the custody store. Required.
	DatabaseURL string

	// LegacyDatabaseURL is the read-only point-of-sale database that holds
	// slaughter confirmations. Required.
	LegacyDatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"] (Vite dev server).
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// JWTSecret is the HMAC key bearer tokens are signed with. Required.
	JWTSecret string

	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64

	// CodeMaxAttempts bounds how many random codes are drawn before a mint
	// gives up with code_space_exhausted. Defaults to 16.
	CodeMaxAttempts int

	// TxMaxRetries is how often a serialization failure is retried. Defaults to 5.
	TxMaxRetries uint64

	// ShutdownTimeout is how long in-flight requests may run after a
	// termination signal. Defaults to 15s.
	ShutdownTimeout time.Duration

	// MigrateOnStart applies pending migrations before serving. Defaults to false.
	MigrateOnStart bool
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set and any
// values that do not parse.
func Load() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
	}

	var missing []string
	for _, req := range []struct {
		key string
		dst *string
	}{
		{"DATABASE_URL", &cfg.DatabaseURL},
		{"LEGACY_DATABASE_URL", &cfg.LegacyDatabaseURL},
		{"JWT_SECRET", &cfg.JWTSecret},
	} {
		*req.dst = os.Getenv(req.key)
		if *req.dst == "" {
			missing = append(missing, req.key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	var errs []error
	cfg.MaxBodyBytes = parse(&errs, "MAX_BODY_BYTES", 1<<20, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
	cfg.CodeMaxAttempts = parse(&errs, "CODE_MAX_ATTEMPTS", 16, strconv.Atoi)
	cfg.TxMaxRetries = parse(&errs, "TX_MAX_RETRIES", 5, func(s string) (uint64, error) { return strconv.ParseUint(s, 10, 64) })
	cfg.ShutdownTimeout = parse(&errs, "SHUTDOWN_TIMEOUT", 15*time.Second, time.ParseDuration)
	cfg.MigrateOnStart = parse(&errs, "MIGRATE_ON_START", false, strconv.ParseBool)

	if cfg.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", cfg.MaxBodyBytes))
	}
	if cfg.CodeMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("CODE_MAX_ATTEMPTS must be positive, got %d", cfg.CodeMaxAttempts))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// parse reads key with fn, returning fallback when the variable is unset.
// Parse failures are appended to errs.
func parse[T any](errs *[]error, key string, fallback T, fn func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := fn(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
