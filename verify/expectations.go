package verify

import (
	"sort"

	"github.com/GoCodeAlone/tradestore/schema"
)

// ConstraintExpectation names a constraint that must exist on a table.
type ConstraintExpectation struct {
	Table string
	Name  string
	// Type is the catalog constraint type, e.g. FOREIGN KEY or UNIQUE.
	Type string
}

// IndexExpectation names an index and the text its catalog definition must
// contain, typically the partial-index predicate.
type IndexExpectation struct {
	Name      string
	Table     string
	Fragments []string
}

// TriggerExpectation names a trigger that must exist on a table.
type TriggerExpectation struct {
	Table string
	Name  string
}

// Expectations is what the live catalog must contain at head and must no
// longer contain at base.
type Expectations struct {
	Tables      []string
	Constraints []ConstraintExpectation
	Indexes     []IndexExpectation
	Enums       []schema.Enum
	Functions   []string
	Triggers    []TriggerExpectation
}

// predicates are the fragments the partial indexes must keep. A migration
// that silently loses a WHERE clause fails here.
func predicates() map[string][]string {
	open := make([]string, len(schema.OpenOrderStatuses))
	for i, s := range schema.OpenOrderStatuses {
		open[i] = "'" + s + "'"
	}
	return map[string][]string{
		"uq_order__broker_order_id": {"broker_order_id IS NOT NULL"},
		"uq_config__key_active":     {"is_active"},
		"ix_order__open":            open,
		"uq_execution__trade_id":    {"trade_id IS NOT NULL"},
		"uq_alert__dedup_key":       {"dedup_key IS NOT NULL"},
		"uq_backtest_run__tag":      {"tag IS NOT NULL"},
	}
}

// DefaultExpectations derives the expectations from every schema version.
func DefaultExpectations() Expectations {
	return ExpectationsFor(schema.Merged(schema.Definitions()...))
}

// ExpectationsFor derives expectations from s. Every index is expected;
// the known partial indexes also carry their predicate fragments.
func ExpectationsFor(s *schema.Schema) Expectations {
	var e Expectations
	e.Tables = s.TableNames()
	sort.Strings(e.Tables)

	for _, t := range s.Tables {
		for _, fk := range t.ForeignKeys() {
			e.Constraints = append(e.Constraints, ConstraintExpectation{Table: t.Name, Name: fk.Name, Type: "FOREIGN KEY"})
		}
		for _, u := range t.Uniques {
			e.Constraints = append(e.Constraints, ConstraintExpectation{Table: t.Name, Name: u.Name, Type: "UNIQUE"})
		}
		for _, ck := range t.Checks {
			e.Constraints = append(e.Constraints, ConstraintExpectation{Table: t.Name, Name: ck.Name, Type: "CHECK"})
		}
	}

	preds := predicates()
	for _, idx := range s.Indexes {
		e.Indexes = append(e.Indexes, IndexExpectation{Name: idx.Name, Table: idx.Table, Fragments: preds[idx.Name]})
	}

	e.Enums = append(e.Enums, s.Enums...)
	for _, fn := range s.Functions {
		e.Functions = append(e.Functions, fn.Name)
	}
	for _, tr := range s.Triggers {
		e.Triggers = append(e.Triggers, TriggerExpectation{Table: tr.Table, Name: tr.Name})
	}
	return e
}
