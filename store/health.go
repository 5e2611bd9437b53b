package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/GoCodeAlone/tradestore/migration"
	"github.com/GoCodeAlone/tradestore/schema"
)

// RequiredTables are the tables a service needs before it can start.
var RequiredTables = []string{
	schema.TableAccount,
	schema.TableInstrument,
	schema.TableOrder,
	schema.TableExecution,
	schema.TablePosition,
	schema.TableSignal,
	schema.TableConfig,
}

// HealthCheck is the outcome of one probe.
type HealthCheck struct {
	Name   string
	OK     bool
	Detail string
}

// Health is the result of CheckDB. OK is true when every check passed.
type Health struct {
	OK     bool
	Checks []HealthCheck
}

// CheckDB probes connectivity, the recorded schema version and the
// required tables. Probe failures are reported in the result, not as an
// error.
func CheckDB(ctx context.Context, db DBTX) Health {
	var checks []HealthCheck

	var one int
	if err := db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		checks = append(checks, HealthCheck{Name: "connect", Detail: err.Error()})
	} else {
		checks = append(checks, HealthCheck{Name: "connect", OK: true, Detail: "ok"})
	}

	var version string
	err := db.QueryRow(ctx, fmt.Sprintf(`SELECT version_num FROM %s`, migration.VersionTable)).Scan(&version)
	switch {
	case err != nil:
		checks = append(checks, HealthCheck{Name: "schema_version", Detail: classify(err).Error()})
	default:
		checks = append(checks, HealthCheck{Name: "schema_version", OK: true, Detail: version})
	}

	checks = append(checks, checkTables(ctx, db))

	h := Health{OK: true, Checks: checks}
	for _, c := range checks {
		h.OK = h.OK && c.OK
	}
	return h
}

func checkTables(ctx context.Context, db DBTX) HealthCheck {
	rows, err := db.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema()`)
	if err != nil {
		return HealthCheck{Name: "tables", Detail: err.Error()}
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return HealthCheck{Name: "tables", Detail: err.Error()}
		}
		have[name] = true
	}
	if err := rows.Err(); err != nil {
		return HealthCheck{Name: "tables", Detail: err.Error()}
	}

	var missing []string
	for _, t := range RequiredTables {
		if !have[t] {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return HealthCheck{Name: "tables", Detail: "missing: " + strings.Join(missing, ",")}
	}
	return HealthCheck{Name: "tables", OK: true, Detail: "ok"}
}
