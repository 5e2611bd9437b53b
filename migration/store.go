package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// VersionStore persists the current schema version. SetCurrent and Record
// run on the transaction that applies the step, so the recorded state
// commits together with the DDL.
type VersionStore interface {
	// Ensure creates the bookkeeping tables if they are missing.
	Ensure(ctx context.Context, q Querier) error
	// Current returns the applied version ID, or "" at base.
	Current(ctx context.Context, q Querier) (string, error)
	// SetCurrent replaces the applied version; "" clears it.
	SetCurrent(ctx context.Context, q Querier, version string) error
	// Record appends a step to the history.
	Record(ctx context.Context, q Querier, step Applied) error
	// History returns every recorded step, oldest first.
	History(ctx context.Context, q Querier) ([]Applied, error)
}

// Dialect holds the SQL differences between the databases SQLVersionStore
// supports.
type Dialect struct {
	Name          string
	TimestampType string
	SerialKey     string
	Placeholder   func(n int) string
}

var (
	// Postgres is the production dialect.
	Postgres = Dialect{
		Name:          "postgres",
		TimestampType: "TIMESTAMPTZ",
		SerialKey:     "BIGSERIAL PRIMARY KEY",
		Placeholder:   func(n int) string { return fmt.Sprintf("$%d", n) },
	}
	// SQLite is used to exercise the runner without a server.
	SQLite = Dialect{
		Name:          "sqlite",
		TimestampType: "TIMESTAMP",
		SerialKey:     "INTEGER PRIMARY KEY AUTOINCREMENT",
		Placeholder:   func(int) string { return "?" },
	}
)

// Bookkeeping table names.
const (
	VersionTable = "schema_version"
	HistoryTable = "schema_version_history"
)

// SQLVersionStore keeps one row in schema_version while a version is
// applied and none at base, plus an append-only step history.
type SQLVersionStore struct {
	dialect Dialect
}

// NewSQLVersionStore creates a SQLVersionStore for the given dialect.
func NewSQLVersionStore(d Dialect) *SQLVersionStore {
	return &SQLVersionStore{dialect: d}
}

// Ensure creates schema_version and schema_version_history.
func (s *SQLVersionStore) Ensure(ctx context.Context, q Querier) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	version_num TEXT PRIMARY KEY,
	applied_at  %s NOT NULL
)`, VersionTable, s.dialect.TimestampType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          %s,
	version_num TEXT NOT NULL,
	direction   TEXT NOT NULL,
	applied_at  %s NOT NULL
)`, HistoryTable, s.dialect.SerialKey, s.dialect.TimestampType),
	}
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create version tables: %w", err)
		}
	}
	return nil
}

// Current returns the recorded version. More than one row means the table
// was edited by hand and is reported as an error.
func (s *SQLVersionStore) Current(ctx context.Context, q Querier) (string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT version_num FROM %s`, VersionTable))
	if err != nil {
		return "", fmt.Errorf("query %s: %w", VersionTable, err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return "", fmt.Errorf("scan %s: %w", VersionTable, err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(versions) {
	case 0:
		return "", nil
	case 1:
		return versions[0], nil
	default:
		return "", fmt.Errorf("%s holds %d rows, expected at most one: %v", VersionTable, len(versions), versions)
	}
}

// SetCurrent replaces the recorded version.
func (s *SQLVersionStore) SetCurrent(ctx context.Context, q Querier, version string) error {
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, VersionTable)); err != nil {
		return fmt.Errorf("clear %s: %w", VersionTable, err)
	}
	if version == "" {
		return nil
	}
	ph := s.dialect.Placeholder
	_, err := q.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (version_num, applied_at) VALUES (%s, %s)`, VersionTable, ph(1), ph(2)),
		version, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert %s: %w", VersionTable, err)
	}
	return nil
}

// Record appends a step to the history table.
func (s *SQLVersionStore) Record(ctx context.Context, q Querier, step Applied) error {
	ph := s.dialect.Placeholder
	_, err := q.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (version_num, direction, applied_at) VALUES (%s, %s, %s)`,
			HistoryTable, ph(1), ph(2), ph(3)),
		step.Version, step.Direction, step.AppliedAt)
	if err != nil {
		return fmt.Errorf("insert %s: %w", HistoryTable, err)
	}
	return nil
}

// History returns the recorded steps in the order they ran.
func (s *SQLVersionStore) History(ctx context.Context, q Querier) ([]Applied, error) {
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf(`SELECT version_num, direction, applied_at FROM %s ORDER BY id`, HistoryTable))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", HistoryTable, err)
	}
	defer rows.Close()

	var result []Applied
	for rows.Next() {
		var a Applied
		if err := rows.Scan(&a.Version, &a.Direction, &a.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", HistoryTable, err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
