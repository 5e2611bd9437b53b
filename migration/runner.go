package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const lockKey = "tradestore_migrations"

// Runner moves a database between versions of an ordered version list.
type Runner struct {
	db       *sql.DB
	versions []Version
	store    VersionStore
	locker   DistributedLock
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithVersionStore replaces the default Postgres version store.
func WithVersionStore(s VersionStore) Option { return func(r *Runner) { r.store = s } }

// WithLock serialises runs through l. The default is NoopLock.
func WithLock(l DistributedLock) Option { return func(r *Runner) { r.locker = l } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(r *Runner) { r.logger = l } }

// WithMetrics records step counts, durations and the current version.
func WithMetrics(m *Metrics) Option { return func(r *Runner) { r.metrics = m } }

// WithTracerProvider sets where step spans go. The default is the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Runner) { r.tracer = tp.Tracer("github.com/GoCodeAlone/tradestore/migration") }
}

// NewRunner validates versions and returns a Runner over db.
func NewRunner(db *sql.DB, versions []Version, opts ...Option) (*Runner, error) {
	if err := validateVersions(versions); err != nil {
		return nil, err
	}
	r := &Runner{
		db:       db,
		versions: versions,
		store:    NewSQLVersionStore(Postgres),
		locker:   NoopLock{},
		logger:   slog.Default(),
		tracer:   otel.GetTracerProvider().Tracer("github.com/GoCodeAlone/tradestore/migration"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Versions returns the version list the runner was built with.
func (r *Runner) Versions() []Version {
	return r.versions
}

// Current returns the applied version ID, or Base.
func (r *Runner) Current(ctx context.Context) (string, error) {
	if err := r.store.Ensure(ctx, r.db); err != nil {
		return "", err
	}
	cur, err := r.store.Current(ctx, r.db)
	if err != nil {
		return "", err
	}
	if cur == "" {
		return Base, nil
	}
	return cur, nil
}

// History returns every upgrade and downgrade step recorded so far.
func (r *Runner) History(ctx context.Context) ([]Applied, error) {
	if err := r.store.Ensure(ctx, r.db); err != nil {
		return nil, err
	}
	return r.store.History(ctx, r.db)
}

// Upgrade applies every version after the current one up to and including
// target (Head when empty).
func (r *Runner) Upgrade(ctx context.Context, target string) error {
	return r.migrate(ctx, DirectionUp, target)
}

// Downgrade reverts applied versions, newest first, until target is the
// current version. target is Base, a version ID, or a relative step such
// as "-1".
func (r *Runner) Downgrade(ctx context.Context, target string) error {
	return r.migrate(ctx, DirectionDown, target)
}

// Step is one planned version change.
type Step struct {
	Version    Version
	Direction  string
	Statements []string
	// Next is the version recorded once the step commits; "" is base.
	Next string
}

// Plan returns the steps Upgrade (DirectionUp) or Downgrade (DirectionDown)
// would run to reach target, without running them. An empty plan means
// the database is already at target.
func (r *Runner) Plan(ctx context.Context, direction, target string) ([]Step, error) {
	if err := r.store.Ensure(ctx, r.db); err != nil {
		return nil, err
	}
	return r.plan(ctx, direction, target)
}

func (r *Runner) plan(ctx context.Context, direction, target string) ([]Step, error) {
	recorded, err := r.store.Current(ctx, r.db)
	if err != nil {
		return nil, err
	}
	cur, err := position(r.versions, recorded)
	if err != nil {
		return nil, fmt.Errorf("database is at a version this build does not know: %w", err)
	}
	to, err := resolveTarget(r.versions, target, cur)
	if err != nil {
		return nil, err
	}
	if to == cur {
		return nil, nil
	}
	if (direction == DirectionUp) != (to > cur) {
		return nil, fmt.Errorf("%w: cannot %sgrade from %s to %s",
			ErrWrongDirection, direction, idAt(r.versions, cur), idAt(r.versions, to))
	}

	var steps []Step
	if direction == DirectionUp {
		for i := cur + 1; i <= to; i++ {
			v := r.versions[i]
			steps = append(steps, Step{Version: v, Direction: direction, Statements: v.Up, Next: v.ID})
		}
		return steps, nil
	}
	for i := cur; i > to; i-- {
		v := r.versions[i]
		prev := ""
		if i > 0 {
			prev = r.versions[i-1].ID
		}
		steps = append(steps, Step{Version: v, Direction: direction, Statements: v.Down, Next: prev})
	}
	return steps, nil
}

func (r *Runner) migrate(ctx context.Context, direction, target string) error {
	release, err := r.locker.Acquire(ctx, lockKey)
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer release()

	if err := r.store.Ensure(ctx, r.db); err != nil {
		return err
	}
	steps, err := r.plan(ctx, direction, target)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		cur, err := r.store.Current(ctx, r.db)
		if err != nil {
			return err
		}
		if cur == "" {
			cur = Base
		}
		r.logger.Info("schema already at target", "version", cur, "direction", direction)
		r.setVersionMetric(cur)
		return nil
	}
	for _, st := range steps {
		if err := r.step(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// step runs one version's statements and the version-state update in a
// single transaction.
func (r *Runner) step(ctx context.Context, st Step) (err error) {
	v, direction, stmts, next := st.Version, st.Direction, st.Statements, st.Next
	ctx, span := r.tracer.Start(ctx, "migration."+direction+"grade",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("migration.version", v.ID),
			attribute.String("migration.direction", direction),
			attribute.Int("migration.statements", len(stmts)),
		),
	)
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		if r.metrics != nil {
			r.metrics.observeStep(direction, v.ID, status, time.Since(start))
		}
	}()

	r.logger.Info("applying migration", "version", v.ID, "direction", direction, "description", v.Description)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for %s %s: %w", direction, v.ID, err)
	}
	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%s %s statement %d: %w", direction, v.ID, i+1, err)
		}
	}
	if err := r.store.SetCurrent(ctx, tx, next); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := r.store.Record(ctx, tx, Applied{Version: v.ID, Direction: direction, AppliedAt: time.Now().UTC()}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s %s: %w", direction, v.ID, err)
	}

	cur := next
	if cur == "" {
		cur = Base
	}
	r.logger.Info("migration applied", "version", v.ID, "direction", direction, "current", cur,
		"elapsed", time.Since(start).Round(time.Millisecond))
	r.setVersionMetric(cur)
	return nil
}

func (r *Runner) setVersionMetric(version string) {
	if r.metrics != nil {
		r.metrics.setVersion(version)
	}
}
