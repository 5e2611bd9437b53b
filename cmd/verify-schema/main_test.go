package main

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/tradestore/config"
	"github.com/GoCodeAlone/tradestore/internal/pgtest"
)

func testConfig(t *testing.T, d *pgtest.DB) *config.Config {
	t.Helper()
	u, err := url.Parse(os.Getenv("PG_URL"))
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", d.Schema+",public")
	u.RawQuery = q.Encode()
	cfg, err := config.FromEnv(func(k string) string {
		if k == config.EnvDatabaseURL {
			return u.String()
		}
		return ""
	})
	require.NoError(t, err)
	return cfg
}

func TestRun_Passes(t *testing.T) {
	d := pgtest.New(t)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), testConfig(t, d), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, strings.Join([]string{
		"UPGRADED",
		"STRUCTURALLY_VERIFIED",
		"BEHAVIORALLY_VERIFIED",
		"DOWNGRADED",
		"EMPTY_VERIFIED",
		"schema verified",
	}, "\n")+"\n", stdout.String())
}

func TestRun_ReportsFailedInvariant(t *testing.T) {
	d := pgtest.Migrated(t)
	_, err := d.SQL.Exec(`DROP INDEX uq_order__broker_order_id`)
	require.NoError(t, err)
	_, err = d.SQL.Exec(`CREATE UNIQUE INDEX uq_order__broker_order_id ON "order" (broker_order_id)`)
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), testConfig(t, d), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Equal(t, "UPGRADED\n", stdout.String())
	assert.Contains(t, stderr.String(),
		"invariant failed [STRUCTURALLY_VERIFIED] index uq_order__broker_order_id predicate contains broker_order_id IS NOT NULL: ")
}
