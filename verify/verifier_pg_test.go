package verify

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/GoCodeAlone/tradestore/internal/pgtest"
	"github.com/GoCodeAlone/tradestore/observability/tracing"
)

func newVerifier(t *testing.T, d *pgtest.DB) *Verifier {
	t.Helper()
	return &Verifier{
		Runner:       d.Runner(t),
		Connect:      func(ctx context.Context) (*sql.Conn, error) { return d.SQL.Conn(ctx) },
		Expectations: DefaultExpectations(),
	}
}

func TestVerifier_Run(t *testing.T) {
	d := pgtest.New(t)
	v := newVerifier(t, d)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	v.Tracer = tracing.NewStageTracer(tp.Tracer("verify-test"))

	report, err := v.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []State{
		StateUpgraded,
		StateStructurallyVerified,
		StateBehaviorallyVerified,
		StateDowngraded,
		StateEmptyVerified,
	}, report.States)

	// The probe rolled back and the schema is gone, so a second run starts
	// from scratch and passes again.
	report, err = v.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.States, 5)

	var names []string
	for _, s := range exp.GetSpans() {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "verify")
	assert.Contains(t, names, "verify.BEHAVIORALLY_VERIFIED")
	assert.Contains(t, names, "verify.EMPTY_VERIFIED")
}

func TestVerifier_DetectsLostPredicate(t *testing.T) {
	d := pgtest.Migrated(t)
	ctx := context.Background()

	_, err := d.SQL.ExecContext(ctx, `DROP INDEX uq_config__key_active`)
	require.NoError(t, err)
	_, err = d.SQL.ExecContext(ctx, `CREATE UNIQUE INDEX uq_config__key_active ON config (key)`)
	require.NoError(t, err)

	report, err := newVerifier(t, d).Run(ctx)
	requireAssertion(t, err, StateStructurallyVerified, "index uq_config__key_active predicate contains is_active")
	assert.Equal(t, []State{StateUpgraded}, report.States)
}

func TestVerifier_DetectsMutableAuditLog(t *testing.T) {
	d := pgtest.Migrated(t)
	ctx := context.Background()

	_, err := d.SQL.ExecContext(ctx, `DROP TRIGGER trg_audit_event_no_change ON audit_event`)
	require.NoError(t, err)

	v := newVerifier(t, d)
	// Without the trigger expectation the catalog check passes and the
	// probe is what has to notice.
	v.Expectations.Triggers = nil

	report, err := v.Run(ctx)
	ae := requireAssertion(t, err, StateBehaviorallyVerified, "audit_event rejects UPDATE")
	assert.Equal(t, "UPDATE succeeded", ae.Detail)
	assert.Equal(t, []State{StateUpgraded, StateStructurallyVerified}, report.States)

	var n int
	require.NoError(t, d.SQL.QueryRowContext(ctx, `SELECT count(*) FROM audit_event`).Scan(&n))
	assert.Zero(t, n, "probe rows must not persist")
}

func TestVerifier_EmptyCheckSeesLeftoverType(t *testing.T) {
	d := pgtest.New(t)
	ctx := context.Background()

	_, err := d.SQL.ExecContext(ctx, `CREATE TYPE order_side_enum AS ENUM ('BUY', 'SELL')`)
	require.NoError(t, err)

	ae := requireAssertion(t, newVerifier(t, d).checkEmpty(ctx), StateEmptyVerified, "no schema objects remain")
	assert.Equal(t, "type order_side_enum", ae.Detail)
}
