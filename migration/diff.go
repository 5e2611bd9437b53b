package migration

import (
	"fmt"
	"sort"
	"strings"
)

// DiffCatalogs lists the differences between two snapshots, one line per
// object, sorted. An empty result means the schemas are identical.
func DiffCatalogs(a, b *Catalog) []string {
	var diffs []string
	diffs = append(diffs, diffKeyed("table", keyTables(a), keyTables(b))...)
	diffs = append(diffs, diffKeyed("column", keyColumns(a), keyColumns(b))...)
	diffs = append(diffs, diffKeyed("constraint", keyConstraints(a), keyConstraints(b))...)
	diffs = append(diffs, diffKeyed("index", keyIndexes(a), keyIndexes(b))...)
	diffs = append(diffs, diffKeyed("enum", keyEnums(a), keyEnums(b))...)
	diffs = append(diffs, diffKeyed("function", keyFunctions(a), keyFunctions(b))...)
	diffs = append(diffs, diffKeyed("trigger", keyTriggers(a), keyTriggers(b))...)
	sort.Strings(diffs)
	return diffs
}

func diffKeyed(kind string, a, b map[string]string) []string {
	var out []string
	for k, va := range a {
		vb, ok := b[k]
		switch {
		case !ok:
			out = append(out, fmt.Sprintf("%s %s: only in first", kind, k))
		case va != vb:
			out = append(out, fmt.Sprintf("%s %s: %q != %q", kind, k, va, vb))
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			out = append(out, fmt.Sprintf("%s %s: only in second", kind, k))
		}
	}
	return out
}

func keyTables(c *Catalog) map[string]string {
	m := make(map[string]string, len(c.Tables))
	for _, t := range c.Tables {
		m[t] = ""
	}
	return m
}

func keyColumns(c *Catalog) map[string]string {
	m := make(map[string]string, len(c.Columns))
	for _, col := range c.Columns {
		m[col.Table+"."+col.Name] = fmt.Sprintf("%s nullable=%t default=%s", col.Type, col.Nullable, col.Default)
	}
	return m
}

func keyConstraints(c *Catalog) map[string]string {
	m := make(map[string]string, len(c.Constraints))
	for _, con := range c.Constraints {
		m[con.Table+"."+con.Name] = con.Type + " " + con.Definition
	}
	return m
}

func keyIndexes(c *Catalog) map[string]string {
	m := make(map[string]string, len(c.Indexes))
	for _, idx := range c.Indexes {
		m[idx.Name] = idx.Definition
	}
	return m
}

func keyEnums(c *Catalog) map[string]string {
	m := make(map[string]string, len(c.Enums))
	for _, e := range c.Enums {
		m[e.Name] = strings.Join(e.Values, ",")
	}
	return m
}

func keyFunctions(c *Catalog) map[string]string {
	m := make(map[string]string, len(c.Functions))
	for _, fn := range c.Functions {
		m[fn.Name] = fn.Definition
	}
	return m
}

func keyTriggers(c *Catalog) map[string]string {
	m := make(map[string]string, len(c.Triggers))
	for _, tr := range c.Triggers {
		m[tr.Table+"."+tr.Name] = tr.Definition
	}
	return m
}
