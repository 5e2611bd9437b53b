// Package pgtest gives integration tests an isolated PostgreSQL schema.
// Tests are skipped when PG_URL is not set.
package pgtest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/GoCodeAlone/tradestore/migration"
	"github.com/GoCodeAlone/tradestore/schema"
)

// DB is a throwaway schema reachable through both driver interfaces.
type DB struct {
	Schema string
	Pool   *pgxpool.Pool
	SQL    *sql.DB
	// ConnConfig connects new sessions into the schema.
	ConnConfig *pgx.ConnConfig
}

// New creates an empty schema named after a random UUID and drops it when
// the test ends.
func New(t testing.TB) *DB {
	t.Helper()
	pgURL := os.Getenv("PG_URL")
	if pgURL == "" {
		t.Skip("PG_URL not set")
	}
	ctx := context.Background()

	name := "tradestore_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	admin, err := pgx.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	defer admin.Close(ctx)
	// Installed once in public so dropping a test schema never takes the
	// extension with it.
	if _, err := admin.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS pgcrypto SCHEMA public"); err != nil {
		t.Fatalf("create pgcrypto: %v", err)
	}
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{name}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		conn, err := pgx.Connect(context.Background(), pgURL)
		if err != nil {
			t.Logf("drop schema %s: %v", name, err)
			return
		}
		defer conn.Close(context.Background())
		_, _ = conn.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{name}.Sanitize()+" CASCADE")
	})

	searchPath := fmt.Sprintf("%s, public", pgx.Identifier{name}.Sanitize())

	poolCfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		t.Fatalf("parse PG_URL: %v", err)
	}
	poolCfg.ConnConfig.RuntimeParams["search_path"] = searchPath
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	connCfg, err := pgx.ParseConfig(pgURL)
	if err != nil {
		t.Fatalf("parse PG_URL: %v", err)
	}
	connCfg.RuntimeParams["search_path"] = searchPath
	db := stdlib.OpenDB(*connCfg)
	t.Cleanup(func() { _ = db.Close() })

	return &DB{Schema: name, Pool: pool, SQL: db, ConnConfig: connCfg}
}

// Runner returns a migration runner over the schema.
func (d *DB) Runner(t testing.TB) *migration.Runner {
	t.Helper()
	versions, err := schema.Versions()
	if err != nil {
		t.Fatalf("schema versions: %v", err)
	}
	r, err := migration.NewRunner(d.SQL, versions)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return r
}

// Migrated is New followed by an upgrade to head.
func Migrated(t testing.TB) *DB {
	t.Helper()
	d := New(t)
	if err := d.Runner(t).Upgrade(context.Background(), migration.Head); err != nil {
		t.Fatalf("upgrade to head: %v", err)
	}
	return d
}
