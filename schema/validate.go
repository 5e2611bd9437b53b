package schema

import (
	"errors"
	"fmt"
)

// ErrDefinition is wrapped by every error Validate reports.
var ErrDefinition = errors.New("invalid schema definition")

// Validate checks that s is internally consistent. Objects declared by the
// prior schemas (earlier migration versions) are visible to s. Validate
// reports every problem it finds, joined into one error.
func (s *Schema) Validate(prior ...*Schema) error {
	v := newValidator(prior)
	v.check(s)
	return errors.Join(v.errs...)
}

type validator struct {
	enums  map[string]bool
	tables map[string]*Table
	funcs  map[string]bool
	names  map[string]string
	errs   []error
}

func newValidator(prior []*Schema) *validator {
	v := &validator{
		enums:  make(map[string]bool),
		tables: make(map[string]*Table),
		funcs:  make(map[string]bool),
		names:  make(map[string]string),
	}
	for _, p := range prior {
		for _, e := range p.Enums {
			v.enums[e.Name] = true
		}
		for i := range p.Tables {
			v.tables[p.Tables[i].Name] = &p.Tables[i]
		}
		for _, f := range p.Functions {
			v.funcs[f.Name] = true
		}
	}
	return v
}

func (v *validator) fail(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf("%w: %s", ErrDefinition, fmt.Sprintf(format, args...)))
}

// claim registers a relation-level name; PostgreSQL shares one namespace
// between tables, indexes and constraints backed by indexes.
func (v *validator) claim(name, kind string) {
	if name == "" {
		v.fail("%s with empty name", kind)
		return
	}
	if prev, ok := v.names[name]; ok {
		v.fail("%s %q clashes with %s of the same name", kind, name, prev)
		return
	}
	v.names[name] = kind
}

func (v *validator) check(s *Schema) {
	for _, e := range s.Enums {
		if v.enums[e.Name] {
			v.fail("enum %q declared twice", e.Name)
		}
		if len(e.Values) == 0 {
			v.fail("enum %q has no values", e.Name)
		}
		seen := make(map[string]bool, len(e.Values))
		for _, val := range e.Values {
			if seen[val] {
				v.fail("enum %q repeats value %q", e.Name, val)
			}
			seen[val] = true
		}
		v.enums[e.Name] = true
	}

	for i := range s.Tables {
		t := &s.Tables[i]
		if _, dup := v.tables[t.Name]; dup {
			v.fail("table %q declared twice", t.Name)
		}
		v.claim(t.Name, "table")
		// Register before columns so self references resolve.
		v.tables[t.Name] = t
		v.checkTable(t)
	}

	for _, idx := range s.Indexes {
		v.claim(idx.Name, "index")
		if _, ok := v.tables[idx.Table]; !ok {
			v.fail("index %q on unknown table %q", idx.Name, idx.Table)
		}
		if len(idx.Columns) == 0 {
			v.fail("index %q has no columns", idx.Name)
		}
	}

	for _, fn := range s.Functions {
		if v.funcs[fn.Name] {
			v.fail("function %q declared twice", fn.Name)
		}
		v.funcs[fn.Name] = true
	}

	triggers := make(map[string]bool)
	for _, tr := range s.Triggers {
		key := tr.Table + "." + tr.Name
		if triggers[key] {
			v.fail("trigger %q declared twice on %q", tr.Name, tr.Table)
		}
		triggers[key] = true
		if _, ok := v.tables[tr.Table]; !ok {
			v.fail("trigger %q on unknown table %q", tr.Name, tr.Table)
		}
		if !v.funcs[tr.Function] {
			v.fail("trigger %q calls undeclared function %q", tr.Name, tr.Function)
		}
		if tr.Timing != "BEFORE" && tr.Timing != "AFTER" {
			v.fail("trigger %q has timing %q", tr.Name, tr.Timing)
		}
		if len(tr.Events) == 0 {
			v.fail("trigger %q has no events", tr.Name)
		}
	}
}

func (v *validator) checkTable(t *Table) {
	cols := make(map[string]bool, len(t.Columns))
	pks := 0
	for _, c := range t.Columns {
		if cols[c.Name] {
			v.fail("table %q repeats column %q", t.Name, c.Name)
		}
		cols[c.Name] = true
		if c.PrimaryKey {
			pks++
		}
		if (c.Type == "") == (c.Enum == "") {
			v.fail("column %s.%s must set exactly one of type or enum", t.Name, c.Name)
		}
		if c.Enum != "" && !v.enums[c.Enum] {
			v.fail("column %s.%s uses undeclared enum %q", t.Name, c.Name, c.Enum)
		}
		if fk := c.References; fk != nil {
			v.claimConstraint(t.Name, fk.Name, "foreign key")
			target, ok := v.tables[fk.Table]
			if !ok {
				v.fail("foreign key %q references %q, which is not declared before %q", fk.Name, fk.Table, t.Name)
				continue
			}
			if target.Column(fk.Column) == nil {
				v.fail("foreign key %q references unknown column %s.%s", fk.Name, fk.Table, fk.Column)
			}
		}
	}
	if pks != 1 {
		v.fail("table %q must have exactly one primary key column, has %d", t.Name, pks)
	}
	for _, u := range t.Uniques {
		v.claim(u.Name, "unique constraint")
		for _, col := range u.Columns {
			if !cols[col] {
				v.fail("unique constraint %q uses unknown column %s.%s", u.Name, t.Name, col)
			}
		}
	}
	for _, ck := range t.Checks {
		v.claimConstraint(t.Name, ck.Name, "check constraint")
	}
}

// claimConstraint registers a constraint name that is not backed by an
// index; those only need to be unique per table.
func (v *validator) claimConstraint(table, name, kind string) {
	v.claim(table+"/"+name, kind)
}
