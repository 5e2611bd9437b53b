package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/GoCodeAlone/tradestore/config"
	"github.com/GoCodeAlone/tradestore/migration"
	"github.com/GoCodeAlone/tradestore/observability/tracing"
	"github.com/GoCodeAlone/tradestore/schema"
)

// loadConfig is replaced in tests.
var loadConfig = func() (*config.Config, error) { return config.Load() }

// env is what every command needs: configuration, a logger and the
// tracer provider. close flushes spans.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	tracing *tracing.Provider
}

func newEnv(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	tp, err := tracing.Setup(ctx, cfg.OTLPEndpoint, "tradestore")
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	return &env{cfg: cfg, logger: logger, tracing: tp}, nil
}

func (e *env) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.tracing.Shutdown(ctx); err != nil {
		e.logger.Warn("flush traces", "error", err)
	}
}

// openDB opens a database/sql handle over pgx for the migration runner.
// Each CLI run gets its own handle, so no connection outlives a schema
// change.
func (e *env) openDB() (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(e.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", config.EnvDatabaseURL, err)
	}
	connCfg.ConnectTimeout = e.cfg.ConnectTimeout
	return stdlib.OpenDB(*connCfg), nil
}

// newRunner builds a runner over db with the schema's version set.
func (e *env) newRunner(db *sql.DB, opts ...migration.Option) (*migration.Runner, error) {
	versions, err := schema.Versions()
	if err != nil {
		return nil, err
	}
	opts = append([]migration.Option{migration.WithLogger(e.logger)}, opts...)
	if e.tracing.Enabled() {
		opts = append(opts, migration.WithTracerProvider(e.tracing.TracerProvider()))
	}
	return migration.NewRunner(db, versions, opts...)
}
