// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Credential store backends selected by DatabaseDriver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	RedisURL           string
	DatabaseURL        string
	FitbitClientID     string
	FitbitClientSecret string

	LogLevel       slog.Level
	QueueKey       string
	PopTimeout     time.Duration
	FitbitAPIURL   string
	FitbitTokenURL string
	QueryLimit     int
	HTTPTimeout    time.Duration
	HTTPCacheBytes int64
	SQLiteReaders  int
}

// DatabaseDriver returns the credential store backend and the DSN or file
// path to open it with. postgres:// and postgresql:// URLs select Postgres;
// sqlite://path, file:path and bare paths select SQLite.
func (c *Config) DatabaseDriver() (driver, dsn string) {
	u := c.DatabaseURL
	switch {
	case strings.HasPrefix(u, "postgres://"), strings.HasPrefix(u, "postgresql://"):
		return DriverPostgres, u
	case strings.HasPrefix(u, "sqlite://"):
		return DriverSQLite, strings.TrimPrefix(u, "sqlite://")
	case strings.HasPrefix(u, "file:"):
		return DriverSQLite, strings.TrimPrefix(u, "file:")
	default:
		return DriverSQLite, u
	}
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is loaded first when present; it never
// overrides variables already set.
// Required: REDIS_URL, DATABASE_URL, FITBIT_CLIENT_ID, FITBIT_CLIENT_SECRET.
// Optional variables with defaults: LOG_LEVEL (info), STEPSYNC_QUEUE_KEY (requests),
// STEPSYNC_POP_TIMEOUT (5s), STEPSYNC_FITBIT_API_URL, STEPSYNC_FITBIT_TOKEN_URL,
// STEPSYNC_QUERY_LIMIT (145), STEPSYNC_HTTP_TIMEOUT (30s),
// STEPSYNC_HTTP_CACHE_BYTES (32 MiB), STEPSYNC_SQLITE_READERS (0).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		LogLevel:       slog.LevelInfo,
		QueueKey:       "requests",
		PopTimeout:     5 * time.Second,
		FitbitAPIURL:   "https://api.fitbit.com",
		FitbitTokenURL: "https://api.fitbit.com/oauth2/token",
		QueryLimit:     145,
		HTTPTimeout:    30 * time.Second,
		HTTPCacheBytes: 32 << 20,
	}

	var missing []string
	for key, dst := range map[string]*string{
		"REDIS_URL":            &cfg.RedisURL,
		"DATABASE_URL":         &cfg.DatabaseURL,
		"FITBIT_CLIENT_ID":     &cfg.FitbitClientID,
		"FITBIT_CLIENT_SECRET": &cfg.FitbitClientSecret,
	} {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
			continue
		}
		*dst = v
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	if v, ok := os.LookupEnv("STEPSYNC_QUEUE_KEY"); ok && v != "" {
		cfg.QueueKey = v
	}
	if v, ok := os.LookupEnv("STEPSYNC_FITBIT_API_URL"); ok && v != "" {
		cfg.FitbitAPIURL = v
	}
	if v, ok := os.LookupEnv("STEPSYNC_FITBIT_TOKEN_URL"); ok && v != "" {
		cfg.FitbitTokenURL = v
	}

	var err error
	if cfg.PopTimeout, err = durationEnv("STEPSYNC_POP_TIMEOUT", cfg.PopTimeout); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = durationEnv("STEPSYNC_HTTP_TIMEOUT", cfg.HTTPTimeout); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("STEPSYNC_QUERY_LIMIT"); ok && v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("STEPSYNC_QUERY_LIMIT must be a positive integer, got %q", v)
		}
		cfg.QueryLimit = limit
	}

	if v, ok := os.LookupEnv("STEPSYNC_HTTP_CACHE_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("STEPSYNC_HTTP_CACHE_BYTES must be a positive integer, got %q", v)
		}
		cfg.HTTPCacheBytes = n
	}

	if v, ok := os.LookupEnv("STEPSYNC_SQLITE_READERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("STEPSYNC_SQLITE_READERS must be a non-negative integer, got %q", v)
		}
		cfg.SQLiteReaders = n
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, parsed)
	}
	return parsed, nil
}
