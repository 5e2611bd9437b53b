// Command verify-schema migrates the database named by DATABASE_URL to
// head, checks the catalog and the audit_event guard, then migrates it back
// to base and checks nothing is left. Point it at a scratch database: the
// final downgrade drops every table.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/GoCodeAlone/tradestore/config"
	"github.com/GoCodeAlone/tradestore/migration"
	"github.com/GoCodeAlone/tradestore/observability/tracing"
	"github.com/GoCodeAlone/tradestore/schema"
	"github.com/GoCodeAlone/tradestore/verify"
)

func main() {
	if len(os.Args) > 1 {
		fmt.Fprintln(os.Stderr, "verify-schema takes no arguments; set DATABASE_URL")
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err) //nolint:gosec // G705: CLI error output
		os.Exit(1)
	}
	os.Exit(run(context.Background(), cfg, os.Stdout, os.Stderr))
}

func run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	logger := cfg.Logger(stderr)
	tp, err := tracing.Setup(ctx, cfg.OTLPEndpoint, "verify-schema")
	if err != nil {
		fmt.Fprintf(stderr, "error: setup tracing: %v\n", err)
		return 1
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		_ = tp.Shutdown(flushCtx)
	}()

	connCfg, err := pgx.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	connCfg.ConnectTimeout = cfg.ConnectTimeout
	db := stdlib.OpenDB(*connCfg)
	defer db.Close()

	versions, err := schema.Versions()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	runner, err := migration.NewRunner(db, versions, migration.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	v := &verify.Verifier{
		Runner:       runner,
		Connect:      func(ctx context.Context) (*sql.Conn, error) { return db.Conn(ctx) },
		Expectations: verify.DefaultExpectations(),
		Logger:       logger,
		Tracer:       tracing.NewStageTracer(tp.Tracer()),
	}
	report, err := v.Run(ctx)
	for _, st := range report.States {
		fmt.Fprintln(stdout, st)
	}
	if err != nil {
		var ae *verify.AssertionError
		if errors.As(err, &ae) {
			fmt.Fprintln(stderr, ae.Error())
		} else {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return 1
	}
	fmt.Fprintln(stdout, "schema verified")
	return 0
}
