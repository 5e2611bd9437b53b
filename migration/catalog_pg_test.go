package migration_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/tradestore/internal/pgtest"
	"github.com/GoCodeAlone/tradestore/migration"
	"github.com/GoCodeAlone/tradestore/schema"
)

func TestCatalog_RoundTripIsIdempotent(t *testing.T) {
	d := pgtest.New(t)
	ctx := context.Background()
	r := d.Runner(t)

	require.NoError(t, r.Upgrade(ctx, migration.Head))
	first, err := migration.ReadCatalog(ctx, d.SQL)
	require.NoError(t, err)
	assert.True(t, first.HasTable(schema.TableAuditEvent))
	require.NotNil(t, first.Index("uq_order__broker_order_id"))
	assert.Contains(t, first.Index("uq_order__broker_order_id").Definition, "WHERE (broker_order_id IS NOT NULL)")

	require.NoError(t, r.Downgrade(ctx, migration.Base))
	require.NoError(t, r.Upgrade(ctx, migration.Head))
	second, err := migration.ReadCatalog(ctx, d.SQL)
	require.NoError(t, err)

	assert.Empty(t, migration.DiffCatalogs(first, second))
}

func TestCatalog_StepwiseMatchesDirect(t *testing.T) {
	direct := pgtest.Migrated(t)
	stepped := pgtest.New(t)
	ctx := context.Background()
	r := stepped.Runner(t)

	require.NoError(t, r.Upgrade(ctx, schema.VersionBaseline))
	require.NoError(t, r.Downgrade(ctx, "-1"))
	require.NoError(t, r.Upgrade(ctx, schema.VersionBaseline))
	require.NoError(t, r.Upgrade(ctx, migration.Head))

	a, err := migration.ReadCatalog(ctx, direct.SQL)
	require.NoError(t, err)
	b, err := migration.ReadCatalog(ctx, stepped.SQL)
	require.NoError(t, err)
	// Catalog text can carry the schema name, which differs per test.
	assert.Empty(t, migration.DiffCatalogs(normalise(a, direct.Schema), normalise(b, stepped.Schema)))
}

func TestCatalog_FullDowngradeLeavesNothing(t *testing.T) {
	d := pgtest.Migrated(t)
	ctx := context.Background()

	require.NoError(t, d.Runner(t).Downgrade(ctx, migration.Base))
	c, err := migration.ReadCatalog(ctx, d.SQL)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{migration.VersionTable, migration.HistoryTable}, c.Tables)
	assert.Empty(t, c.Enums)
	assert.Empty(t, c.Functions)
	assert.Empty(t, c.Triggers)
}

func normalise(c *migration.Catalog, schemaName string) *migration.Catalog {
	out := *c
	out.Columns = make([]migration.CatalogColumn, len(c.Columns))
	for i, col := range c.Columns {
		col.Default = replaceSchema(col.Default, schemaName)
		out.Columns[i] = col
	}
	out.Constraints = make([]migration.CatalogConstraint, len(c.Constraints))
	for i, con := range c.Constraints {
		con.Definition = replaceSchema(con.Definition, schemaName)
		out.Constraints[i] = con
	}
	out.Indexes = make([]migration.CatalogIndex, len(c.Indexes))
	for i, idx := range c.Indexes {
		idx.Definition = replaceSchema(idx.Definition, schemaName)
		out.Indexes[i] = idx
	}
	out.Triggers = make([]migration.CatalogTrigger, len(c.Triggers))
	for i, tr := range c.Triggers {
		tr.Definition = replaceSchema(tr.Definition, schemaName)
		out.Triggers[i] = tr
	}
	out.Functions = make([]migration.CatalogFunction, len(c.Functions))
	for i, fn := range c.Functions {
		fn.Definition = replaceSchema(fn.Definition, schemaName)
		out.Functions[i] = fn
	}
	return &out
}

func replaceSchema(def, schemaName string) string {
	return strings.ReplaceAll(def, schemaName+".", "")
}
