// Package verify is an operator smoke test for the schema. It migrates a
// database to head, checks the live catalog and the audit_event guard,
// then migrates back to base and checks that nothing is left behind.
package verify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/GoCodeAlone/tradestore/migration"
	"github.com/GoCodeAlone/tradestore/observability/tracing"
	"github.com/GoCodeAlone/tradestore/schema"
)

// State is a step of a verification run.
type State string

// States in the order a run reaches them.
const (
	StateUpgraded             State = "UPGRADED"
	StateStructurallyVerified State = "STRUCTURALLY_VERIFIED"
	StateBehaviorallyVerified State = "BEHAVIORALLY_VERIFIED"
	StateDowngraded           State = "DOWNGRADED"
	StateEmptyVerified        State = "EMPTY_VERIFIED"
)

const (
	codeUniqueViolation = "23505"
	codeRaiseException  = "P0001"
	probeActor          = "schema-verifier"
	runSpanName         = "verify"
)

// AssertionError is the first failed check of a run. State is the state
// the run was trying to reach.
type AssertionError struct {
	State     State
	Invariant string
	Detail    string
	err       error
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("invariant failed [%s] %s: %s", e.State, e.Invariant, e.Detail)
}

func (e *AssertionError) Unwrap() error { return e.err }

// Report lists the states a run reached.
type Report struct {
	States []State
}

// Verifier runs the full check sequence against one database.
type Verifier struct {
	Runner *migration.Runner
	// Connect returns a dedicated session. It is called once per stage
	// that reads the catalog or writes probe rows.
	Connect      func(ctx context.Context) (*sql.Conn, error)
	Expectations Expectations
	Logger       *slog.Logger
	Tracer       *tracing.StageTracer
}

type stage struct {
	state State
	run   func(ctx context.Context) error
}

// Run executes upgrade, structural check, behavioral probe, downgrade and
// empty check in order. It stops at the first failure, which is an
// *AssertionError for every failed invariant. The report lists the states
// reached before the failure.
func (v *Verifier) Run(ctx context.Context) (*Report, error) {
	logger := v.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tr := v.Tracer
	if tr == nil {
		tr = tracing.NewStageTracer(nil)
	}

	stages := []stage{
		{StateUpgraded, v.upgrade},
		{StateStructurallyVerified, v.checkStructure},
		{StateBehaviorallyVerified, v.probeAudit},
		{StateDowngraded, v.downgrade},
		{StateEmptyVerified, v.checkEmpty},
	}

	ctx, runSpan := tr.StartRun(ctx, runSpanName)
	report := &Report{}
	for _, st := range stages {
		stageCtx, span := tr.StartStage(ctx, runSpanName, string(st.state))
		err := st.run(stageCtx)
		tr.End(span, err)
		if err != nil {
			tr.End(runSpan, err)
			logger.Error("schema verification failed", "state", st.state, "error", err)
			return report, err
		}
		report.States = append(report.States, st.state)
		logger.Info("schema verification state reached", "state", st.state)
	}
	tr.End(runSpan, nil)
	return report, nil
}

func (v *Verifier) upgrade(ctx context.Context) error {
	if err := v.Runner.Upgrade(ctx, migration.Head); err != nil {
		return &AssertionError{State: StateUpgraded, Invariant: "upgrade to head", Detail: err.Error(), err: err}
	}
	versions := v.Runner.Versions()
	head := versions[len(versions)-1].ID
	cur, err := v.Runner.Current(ctx)
	if err != nil {
		return &AssertionError{State: StateUpgraded, Invariant: "current version readable", Detail: err.Error(), err: err}
	}
	if cur != head {
		return &AssertionError{State: StateUpgraded, Invariant: "current version is head",
			Detail: fmt.Sprintf("recorded %q, head is %q", cur, head)}
	}
	return nil
}

func (v *Verifier) downgrade(ctx context.Context) error {
	if err := v.Runner.Downgrade(ctx, migration.Base); err != nil {
		return &AssertionError{State: StateDowngraded, Invariant: "downgrade to base", Detail: err.Error(), err: err}
	}
	cur, err := v.Runner.Current(ctx)
	if err != nil {
		return &AssertionError{State: StateDowngraded, Invariant: "current version readable", Detail: err.Error(), err: err}
	}
	if cur != migration.Base {
		return &AssertionError{State: StateDowngraded, Invariant: "current version is base",
			Detail: fmt.Sprintf("recorded %q", cur)}
	}
	return nil
}

func (v *Verifier) readCatalog(ctx context.Context, state State) (*migration.Catalog, error) {
	conn, err := v.Connect(ctx)
	if err != nil {
		return nil, &AssertionError{State: state, Invariant: "database reachable", Detail: err.Error(), err: err}
	}
	defer conn.Close()
	c, err := migration.ReadCatalog(ctx, conn)
	if err != nil {
		return nil, &AssertionError{State: state, Invariant: "catalog readable", Detail: err.Error(), err: err}
	}
	return c, nil
}

func (v *Verifier) checkStructure(ctx context.Context) error {
	c, err := v.readCatalog(ctx, StateStructurallyVerified)
	if err != nil {
		return err
	}
	return CheckStructure(c, v.Expectations)
}

func (v *Verifier) checkEmpty(ctx context.Context) error {
	c, err := v.readCatalog(ctx, StateEmptyVerified)
	if err != nil {
		return err
	}
	return CheckEmpty(c, v.Expectations)
}

// CheckStructure asserts that c holds every expected object.
func CheckStructure(c *migration.Catalog, e Expectations) error {
	fail := func(invariant, format string, args ...any) error {
		return &AssertionError{State: StateStructurallyVerified, Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
	}
	for _, t := range e.Tables {
		if !c.HasTable(t) {
			return fail("table "+t+" exists", "table %q not found", t)
		}
	}
	for _, want := range e.Constraints {
		invariant := fmt.Sprintf("%s %s on %s exists", strings.ToLower(want.Type), want.Name, want.Table)
		got := c.Constraint(want.Table, want.Name)
		if got == nil {
			return fail(invariant, "constraint %q not found on %q", want.Name, want.Table)
		}
		if got.Type != want.Type {
			return fail(invariant, "constraint %q is %s", want.Name, got.Type)
		}
	}
	for _, want := range e.Indexes {
		invariant := fmt.Sprintf("index %s on %s exists", want.Name, want.Table)
		got := c.Index(want.Name)
		if got == nil {
			return fail(invariant, "index %q not found", want.Name)
		}
		if got.Table != want.Table {
			return fail(invariant, "index %q is on %q", want.Name, got.Table)
		}
		for _, frag := range want.Fragments {
			if !strings.Contains(got.Definition, frag) {
				return fail(fmt.Sprintf("index %s predicate contains %s", want.Name, frag),
					"definition is %q", got.Definition)
			}
		}
	}
	for _, want := range e.Enums {
		got := c.Enum(want.Name)
		if got == nil {
			return fail("enum "+want.Name+" exists", "type %q not found", want.Name)
		}
		if strings.Join(got.Values, ",") != strings.Join(want.Values, ",") {
			return fail("enum "+want.Name+" members", "have %v, want %v", got.Values, want.Values)
		}
	}
	for _, fn := range e.Functions {
		if c.Function(fn) == nil {
			return fail("function "+fn+" exists", "function %q not found", fn)
		}
	}
	for _, want := range e.Triggers {
		if c.Trigger(want.Table, want.Name) == nil {
			return fail(fmt.Sprintf("trigger %s on %s exists", want.Name, want.Table),
				"trigger %q not found on %q", want.Name, want.Table)
		}
	}
	return nil
}

// CheckEmpty asserts that none of the expected tables, enum types or
// functions remain in c.
func CheckEmpty(c *migration.Catalog, e Expectations) error {
	var left []string
	for _, t := range e.Tables {
		if c.HasTable(t) {
			left = append(left, "table "+t)
		}
	}
	for _, en := range e.Enums {
		if c.Enum(en.Name) != nil {
			left = append(left, "type "+en.Name)
		}
	}
	for _, fn := range e.Functions {
		if c.Function(fn) != nil {
			left = append(left, "function "+fn)
		}
	}
	if len(left) > 0 {
		return &AssertionError{State: StateEmptyVerified, Invariant: "no schema objects remain at base",
			Detail: strings.Join(left, ", ")}
	}
	return nil
}

// probeAudit writes an audit row in a transaction that is always rolled
// back, and checks that the database fills in the hash, rejects an
// identical row, and refuses UPDATE and DELETE of the row.
func (v *Verifier) probeAudit(ctx context.Context) error {
	fail := func(invariant, detail string, err error) error {
		return &AssertionError{State: StateBehaviorallyVerified, Invariant: invariant, Detail: detail, err: err}
	}

	conn, err := v.Connect(ctx)
	if err != nil {
		return fail("database reachable", err.Error(), err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fail("probe transaction starts", err.Error(), err)
	}
	defer func() { _ = tx.Rollback() }()

	insert := `INSERT INTO audit_event (actor_type, action, entity_type, entity_id, reason)
		VALUES ($1, 'probe', 'schema', $2, 'verification probe')
		RETURNING id, hash`
	entityID := uuid.NewString()

	var id int64
	var hash sql.NullString
	if err := tx.QueryRowContext(ctx, insert, probeActor, entityID).Scan(&id, &hash); err != nil {
		return fail("audit_event accepts inserts", err.Error(), err)
	}
	if !hash.Valid || hash.String == "" {
		return fail("audit_event hash is assigned on insert", "hash is empty", nil)
	}

	before, err := snapshot(ctx, tx, id)
	if err != nil {
		return fail("audit_event row readable", err.Error(), err)
	}

	// now() is fixed for the transaction, so the second row has the same
	// logical content and must hash the same.
	if err := inSavepoint(ctx, tx, func() error {
		_, err := tx.ExecContext(ctx, insert, probeActor, entityID)
		return err
	}); !isUniqueViolation(err, "uq_audit_event__hash") {
		return fail("audit_event hash is deterministic", describe("identical insert", err), err)
	}

	for _, probe := range []struct{ op, query string }{
		{"UPDATE", `UPDATE audit_event SET reason = 'tampered' WHERE id = $1`},
		{"DELETE", `DELETE FROM audit_event WHERE id = $1`},
	} {
		err := inSavepoint(ctx, tx, func() error {
			_, err := tx.ExecContext(ctx, probe.query, id)
			return err
		})
		if !isImmutable(err) {
			return fail("audit_event rejects "+probe.op, describe(probe.op, err), err)
		}
	}

	after, err := snapshot(ctx, tx, id)
	if err != nil {
		return fail("audit_event row readable", err.Error(), err)
	}
	if after != before {
		return fail("audit_event row unchanged after rejected changes", fmt.Sprintf("before %s, after %s", before, after), nil)
	}
	return nil
}

func snapshot(ctx context.Context, tx *sql.Tx, id int64) (string, error) {
	var row string
	err := tx.QueryRowContext(ctx, `SELECT row_to_json(a)::text FROM audit_event a WHERE id = $1`, id).Scan(&row)
	return row, err
}

// inSavepoint runs fn so that a failure leaves the transaction usable.
func inSavepoint(ctx context.Context, tx *sql.Tx, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT verify_probe"); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT verify_probe"); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT verify_probe")
	return err
}

func isImmutable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeRaiseException && pgErr.Message == schema.ImmutableMessage
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraint
}

func describe(op string, err error) string {
	if err == nil {
		return op + " succeeded"
	}
	return fmt.Sprintf("%s failed with %v", op, err)
}
