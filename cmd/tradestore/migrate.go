package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/GoCodeAlone/tradestore/migration"
)

// stdout is replaced in tests.
var stdout io.Writer = os.Stdout

type migrateFlags struct {
	lock            bool
	metricsTextfile string
	timeout         time.Duration
}

func newMigrateFlagSet(name, usage string) (*flag.FlagSet, *migrateFlags) {
	f := &migrateFlags{}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.BoolVar(&f.lock, "lock", false, "Hold a PostgreSQL advisory lock while migrating")
	fs.StringVar(&f.metricsTextfile, "metrics-textfile", "", "Write migration metrics to this node-exporter textfile")
	fs.DurationVar(&f.timeout, "timeout", 10*time.Minute, "Give up after this long")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	return fs, f
}

func runUpgrade(args []string) error {
	fs, f := newMigrateFlagSet("upgrade", `Usage: tradestore upgrade [options] [target]

Apply every version after the current one up to target. target is a
version ID or "head" (the default).

Options:
`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	target := migration.Head
	if fs.NArg() > 0 {
		target = fs.Arg(0)
	}
	return migrate(f, func(ctx context.Context, r *migration.Runner) error {
		return r.Upgrade(ctx, target)
	})
}

func runDowngrade(args []string) error {
	fs, f := newMigrateFlagSet("downgrade", `Usage: tradestore downgrade [options] <target>

Revert applied versions, newest first, until target is current. target
is "base" (empty schema), a version ID, or a relative step such as -1.

Options:
`)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("downgrade target required")
	}
	target := fs.Arg(0)
	return migrate(f, func(ctx context.Context, r *migration.Runner) error {
		return r.Downgrade(ctx, target)
	})
}

func migrate(f *migrateFlags, run func(ctx context.Context, r *migration.Runner) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	db, err := e.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	var opts []migration.Option
	if f.lock {
		opts = append(opts, migration.WithLock(migration.NewPostgresLock(db)))
	}
	var metrics *migration.Metrics
	if f.metricsTextfile != "" {
		metrics = migration.NewMetrics()
		opts = append(opts, migration.WithMetrics(metrics))
	}
	r, err := e.newRunner(db, opts...)
	if err != nil {
		return err
	}

	runErr := run(ctx, r)
	// Failed steps are worth exporting too.
	if metrics != nil {
		if err := metrics.WriteTextfile(f.metricsTextfile); err != nil {
			e.logger.Warn("metrics textfile not written", "path", f.metricsTextfile, "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	cur, err := r.Current(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, cur)
	return nil
}

func runCurrent(args []string) error {
	fs := flag.NewFlagSet("current", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withRunner(func(ctx context.Context, r *migration.Runner) error {
		cur, err := r.Current(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, cur)
		return nil
	})
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withRunner(func(ctx context.Context, r *migration.Runner) error {
		history, err := r.History(ctx)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Fprintln(stdout, "No migrations recorded.")
			return nil
		}
		for _, h := range history {
			fmt.Fprintf(stdout, "%s  %-4s  %s\n", h.AppliedAt.UTC().Format(time.RFC3339), h.Direction, h.Version)
		}
		return nil
	})
}

func runSQL(args []string) error {
	fs := flag.NewFlagSet("sql", flag.ContinueOnError)
	down := fs.Bool("down", false, "Print the downgrade to target instead of the upgrade")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), `Usage: tradestore sql [options] [target]

Print the statements an upgrade (or, with -down, a downgrade) to target
would run, one transaction per version. Nothing is applied.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	direction, target := migration.DirectionUp, migration.Head
	if *down {
		direction, target = migration.DirectionDown, ""
	}
	if fs.NArg() > 0 {
		target = fs.Arg(0)
	}
	if target == "" {
		fs.Usage()
		return fmt.Errorf("downgrade target required")
	}

	return withRunner(func(ctx context.Context, r *migration.Runner) error {
		steps, err := r.Plan(ctx, direction, target)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			fmt.Fprintln(stdout, "-- nothing to do")
			return nil
		}
		printPlan(stdout, steps)
		return nil
	})
}

func printPlan(w io.Writer, steps []migration.Step) {
	for _, st := range steps {
		fmt.Fprintf(w, "-- %sgrade %s: %s\n", st.Direction, st.Version.ID, st.Version.Description)
		fmt.Fprintln(w, "BEGIN;")
		for _, stmt := range st.Statements {
			fmt.Fprintf(w, "%s;\n", strings.TrimSpace(stmt))
		}
		fmt.Fprintln(w, "COMMIT;")
		fmt.Fprintln(w)
	}
}

func withRunner(fn func(ctx context.Context, r *migration.Runner) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	e, err := newEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	var db *sql.DB
	if db, err = e.openDB(); err != nil {
		return err
	}
	defer db.Close()

	r, err := e.newRunner(db)
	if err != nil {
		return err
	}
	return fn(ctx, r)
}
