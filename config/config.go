// Package config loads the tradestore runtime configuration from the
// environment, with an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

// Environment variables read by Load.
const (
	EnvDatabaseURL    = "DATABASE_URL"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
	EnvOTLPEndpoint   = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvConnectTimeout = "TRADESTORE_CONNECT_TIMEOUT"
)

// ErrMissingDatabaseURL is returned when DATABASE_URL is unset or empty.
var ErrMissingDatabaseURL = errors.New(EnvDatabaseURL + " is not set")

// ErrInvalidDatabaseURL is returned for a URL that cannot be used to
// connect to PostgreSQL.
var ErrInvalidDatabaseURL = errors.New("invalid " + EnvDatabaseURL)

// Config is the runtime configuration.
type Config struct {
	DatabaseURL    string
	LogLevel       slog.Level
	LogFormat      string
	OTLPEndpoint   string
	ConnectTimeout time.Duration
}

// Load reads files (".env" when none are given) into the process
// environment without overriding variables that are already set, then
// builds a Config from the environment. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	raw := strings.TrimSpace(getenv(EnvDatabaseURL))
	if raw == "" {
		return nil, ErrMissingDatabaseURL
	}
	dbURL, err := NormalizeDatabaseURL(raw)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:    dbURL,
		LogLevel:       slog.LevelInfo,
		LogFormat:      "text",
		OTLPEndpoint:   getenv(EnvOTLPEndpoint),
		ConnectTimeout: 30 * time.Second,
	}

	if v := getenv(EnvLogLevel); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", EnvLogLevel, v, err)
		}
	}
	if v := strings.ToLower(getenv(EnvLogFormat)); v != "" {
		if v != "text" && v != "json" {
			return nil, fmt.Errorf("invalid %s %q: want text or json", EnvLogFormat, v)
		}
		cfg.LogFormat = v
	}
	if v := getenv(EnvConnectTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid %s %q: want a positive duration", EnvConnectTimeout, v)
		}
		cfg.ConnectTimeout = d
	}
	return cfg, nil
}

// driverSchemes are accepted in DATABASE_URL and rewritten to postgres://.
// The qualified forms come from SQLAlchemy-style URLs shared with other
// services.
var driverSchemes = []string{
	"postgresql+psycopg2",
	"postgresql+psycopg",
	"postgresql+asyncpg",
	"postgresql+pgx",
	"postgresql",
	"postgres",
}

// NormalizeDatabaseURL rewrites driver-qualified schemes to postgres:// and
// checks that pgx can parse the result.
func NormalizeDatabaseURL(raw string) (string, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return "", fmt.Errorf("%w: missing scheme", ErrInvalidDatabaseURL)
	}
	known := false
	for _, s := range driverSchemes {
		if strings.EqualFold(scheme, s) {
			known = true
			break
		}
	}
	if !known {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDatabaseURL, scheme)
	}

	normalized := "postgres://" + rest
	if _, err := pgx.ParseConfig(normalized); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDatabaseURL, err)
	}
	return normalized, nil
}

// Logger returns a slog logger writing to w in the configured format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
