package migration

import (
	"strings"
	"testing"
)

func sampleCatalog() *Catalog {
	return &Catalog{
		Tables: []string{"account", "order"},
		Columns: []CatalogColumn{
			{Table: "account", Name: "id", Type: "uuid", Default: "gen_random_uuid()"},
			{Table: "order", Name: "qty", Type: "int4"},
		},
		Constraints: []CatalogConstraint{
			{Name: "ck_order__qty_gt_zero", Table: "order", Type: "CHECK", Definition: "CHECK ((qty > 0))"},
		},
		Indexes: []CatalogIndex{
			{Name: "ix_order__open", Table: "order", Definition: "CREATE INDEX ix_order__open ON public.\"order\" USING btree (instrument_id) WHERE (status = 'OPEN'::order_status_enum)"},
		},
		Enums:     []CatalogEnum{{Name: "order_side_enum", Values: []string{"BUY", "SELL"}}},
		Functions: []CatalogFunction{{Name: "audit_raise_on_change", Definition: "CREATE FUNCTION ..."}},
		Triggers:  []CatalogTrigger{{Name: "trg_audit_event_no_change", Table: "audit_event", Definition: "CREATE TRIGGER ..."}},
	}
}

func TestDiffCatalogs_Identical(t *testing.T) {
	if diffs := DiffCatalogs(sampleCatalog(), sampleCatalog()); len(diffs) != 0 {
		t.Errorf("expected no differences, got %v", diffs)
	}
}

func TestDiffCatalogs_MissingObjects(t *testing.T) {
	a := sampleCatalog()
	b := sampleCatalog()
	b.Tables = b.Tables[:1]
	b.Triggers = nil

	diffs := DiffCatalogs(a, b)
	joined := strings.Join(diffs, "\n")
	if !strings.Contains(joined, "table order: only in first") {
		t.Errorf("expected missing table to be reported, got:\n%s", joined)
	}
	if !strings.Contains(joined, "trigger audit_event.trg_audit_event_no_change: only in first") {
		t.Errorf("expected missing trigger to be reported, got:\n%s", joined)
	}
}

func TestDiffCatalogs_ChangedDefinitions(t *testing.T) {
	a := sampleCatalog()
	b := sampleCatalog()
	b.Enums[0].Values = []string{"BUY", "SELL", "SHORT"}
	b.Columns[1].Nullable = true
	b.Indexes = append(b.Indexes, CatalogIndex{Name: "ix_extra", Table: "order", Definition: "CREATE INDEX ix_extra"})

	diffs := DiffCatalogs(a, b)
	if len(diffs) != 3 {
		t.Fatalf("expected 3 differences, got %d: %v", len(diffs), diffs)
	}
	joined := strings.Join(diffs, "\n")
	for _, want := range []string{"enum order_side_enum", "column order.qty", "index ix_extra: only in second"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in diff, got:\n%s", want, joined)
		}
	}
}

func TestCatalog_Lookups(t *testing.T) {
	c := sampleCatalog()
	if !c.HasTable("order") || c.HasTable("missing") {
		t.Error("HasTable gave the wrong answer")
	}
	if c.Constraint("order", "ck_order__qty_gt_zero") == nil {
		t.Error("constraint lookup failed")
	}
	if c.Constraint("account", "ck_order__qty_gt_zero") != nil {
		t.Error("constraint lookup must be scoped to its table")
	}
	if c.Index("ix_order__open") == nil || c.Enum("order_side_enum") == nil {
		t.Error("index or enum lookup failed")
	}
	if c.Function("audit_raise_on_change") == nil || c.Trigger("audit_event", "trg_audit_event_no_change") == nil {
		t.Error("function or trigger lookup failed")
	}
}
