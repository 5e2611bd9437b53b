package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseline_Validates(t *testing.T) {
	require.NoError(t, Baseline().Validate())
	require.NoError(t, TouchTimestamps().Validate(Baseline()))
}

func TestBaseline_Tables(t *testing.T) {
	assert.Equal(t, []string{
		TableAccount, TableInstrument, TableModelArtifact, TableConfig, TableSignal, TableOrder,
		TableExecution, TablePosition, TablePnLMinute, TableAlert, TableBacktestRun, TableAuditEvent,
	}, Baseline().TableNames())
}

func TestBaseline_OnlyExecutionCascades(t *testing.T) {
	for _, tbl := range Baseline().Tables {
		for _, fk := range tbl.ForeignKeys() {
			if fk.Name == "fk_execution__order" {
				assert.Equal(t, "CASCADE", fk.OnDelete)
				continue
			}
			assert.Empty(t, fk.OnDelete, "foreign key %s must not cascade", fk.Name)
		}
	}
}

func TestBaseline_OrderSelfReference(t *testing.T) {
	order := Baseline().Table(TableOrder)
	require.NotNil(t, order)
	parent := order.Column("parent_id")
	require.NotNil(t, parent)
	require.NotNil(t, parent.References)
	assert.Equal(t, TableOrder, parent.References.Table)
	assert.False(t, parent.NotNull)
	assert.Equal(t, "id", order.PrimaryKey())
}

func TestOpenOrderPredicate(t *testing.T) {
	assert.Equal(t, "status IN ('OPEN','PENDING','TRIGGER_PENDING','PARTIALLY_FILLED')", OpenOrderPredicate())
}

func TestCreateStatements_Order(t *testing.T) {
	stmts := Baseline().CreateStatements()
	require.NotEmpty(t, stmts)
	assert.Equal(t, `CREATE EXTENSION IF NOT EXISTS "pgcrypto"`, stmts[0])

	kinds := []string{"CREATE EXTENSION", "CREATE TYPE", "CREATE TABLE", "CREATE INDEX", "CREATE FUNCTION", "CREATE TRIGGER"}
	rank := func(stmt string) int {
		stmt = strings.Replace(stmt, "CREATE UNIQUE INDEX", "CREATE INDEX", 1)
		for i, k := range kinds {
			if strings.HasPrefix(stmt, k) {
				return i
			}
		}
		t.Fatalf("unexpected statement: %s", stmt)
		return -1
	}
	prev := 0
	for _, stmt := range stmts {
		r := rank(stmt)
		assert.GreaterOrEqual(t, r, prev, "statement out of order: %s", stmt)
		prev = r
	}
}

func TestCreateStatements_Content(t *testing.T) {
	joined := strings.Join(Baseline().CreateStatements(), ";\n")

	for _, want := range []string{
		`CREATE TYPE "order_status_enum" AS ENUM ('NEW', 'PENDING', 'OPEN', 'PARTIALLY_FILLED', 'FILLED', 'CANCELLED', 'REJECTED', 'EXPIRED', 'TRIGGER_PENDING')`,
		`CONSTRAINT "fk_execution__order" FOREIGN KEY ("order_id") REFERENCES "order" ("id") ON DELETE CASCADE`,
		`CONSTRAINT "fk_order__parent" FOREIGN KEY ("parent_id") REFERENCES "order" ("id")`,
		`CONSTRAINT "ck_order__qty_gt_zero" CHECK (qty > 0)`,
		`CONSTRAINT "uq_instrument__symbol_exchange" UNIQUE ("symbol", "exchange")`,
		`CREATE UNIQUE INDEX "uq_order__broker_order_id" ON "order" (broker_order_id) WHERE broker_order_id IS NOT NULL`,
		`CREATE UNIQUE INDEX "uq_config__key_active" ON "config" (key) WHERE is_active`,
		`"id" UUID PRIMARY KEY DEFAULT gen_random_uuid()`,
		`"hash" TEXT NOT NULL`,
		"RAISE EXCEPTION '" + ImmutableMessage + "'",
		`CREATE TRIGGER "trg_audit_event_no_change" BEFORE UPDATE OR DELETE ON "audit_event" FOR EACH ROW EXECUTE FUNCTION "audit_raise_on_change"()`,
		`CREATE TRIGGER "trg_audit_event_compute_hash" BEFORE INSERT ON "audit_event" FOR EACH ROW EXECUTE FUNCTION "audit_compute_hash"()`,
	} {
		assert.Contains(t, joined, want)
	}
}

func TestDropStatements_Inverse(t *testing.T) {
	s := Baseline()
	drops := s.DropStatements()
	require.NotEmpty(t, drops)

	assert.True(t, strings.HasPrefix(drops[0], "DROP TRIGGER"), "triggers go first, got %s", drops[0])
	assert.True(t, strings.HasPrefix(drops[len(drops)-1], "DROP TYPE"), "enum types go last, got %s", drops[len(drops)-1])
	for _, d := range drops {
		assert.NotContains(t, d, "EXTENSION")
		assert.NotContains(t, d, "IF EXISTS")
	}

	// One drop per created object, extensions excepted.
	creates := s.CreateStatements()
	assert.Len(t, drops, len(creates)-len(s.Extensions))

	var tableDrops []string
	for _, d := range drops {
		if strings.HasPrefix(d, "DROP TABLE ") {
			tableDrops = append(tableDrops, strings.Trim(strings.TrimPrefix(d, "DROP TABLE "), `"`))
		}
	}
	names := s.TableNames()
	require.Len(t, tableDrops, len(names))
	for i := range names {
		assert.Equal(t, names[len(names)-1-i], tableDrops[i])
	}
}

func TestTouchTimestamps_Statements(t *testing.T) {
	s := TouchTimestamps()
	assert.Equal(t, []string{
		`DROP TRIGGER "trg_position_touch_last_updated" ON "position"`,
		`DROP TRIGGER "trg_order_touch_updated_at" ON "order"`,
		`DROP FUNCTION "touch_last_updated"()`,
		`DROP FUNCTION "touch_updated_at"()`,
	}, s.DropStatements())

	creates := s.CreateStatements()
	require.Len(t, creates, 4)
	assert.Contains(t, creates[0], "NEW.updated_at := now();")
}

func TestVersions(t *testing.T) {
	versions, err := Versions()
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, VersionBaseline, versions[0].ID)
	assert.Equal(t, VersionTouchTimestamp, versions[1].ID)
	for _, v := range versions {
		assert.NotEmpty(t, v.Up, v.ID)
		assert.NotEmpty(t, v.Down, v.ID)
		assert.NotEmpty(t, v.Description, v.ID)
	}
}

func TestMerged(t *testing.T) {
	m := Merged(Definitions()...)
	assert.Len(t, m.Tables, 12)
	assert.Len(t, m.Functions, 4)
	assert.Len(t, m.Triggers, 4)
	assert.Equal(t, []string{"pgcrypto"}, m.Extensions)
}
