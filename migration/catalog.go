package migration

import (
	"context"
	"fmt"
)

// Catalog is a snapshot of the objects in the current PostgreSQL schema,
// read from the system catalogs. Every slice is sorted so two snapshots of
// the same schema compare equal.
type Catalog struct {
	Tables      []string
	Columns     []CatalogColumn
	Constraints []CatalogConstraint
	Indexes     []CatalogIndex
	Enums       []CatalogEnum
	Functions   []CatalogFunction
	Triggers    []CatalogTrigger
}

// CatalogColumn is one column as information_schema reports it.
type CatalogColumn struct {
	Table    string
	Name     string
	Type     string
	Nullable bool
	Default  string
}

// CatalogConstraint is a named table constraint. Type is one of
// PRIMARY KEY, UNIQUE, FOREIGN KEY, CHECK or EXCLUDE.
type CatalogConstraint struct {
	Name       string
	Table      string
	Type       string
	Definition string
}

// CatalogIndex is an index with its pg_indexes definition text.
type CatalogIndex struct {
	Name       string
	Table      string
	Definition string
}

// CatalogEnum is an ENUM type with its labels in sort order.
type CatalogEnum struct {
	Name   string
	Values []string
}

// CatalogFunction is a plpgsql function.
type CatalogFunction struct {
	Name       string
	Definition string
}

// CatalogTrigger is a user-defined trigger.
type CatalogTrigger struct {
	Name       string
	Table      string
	Definition string
}

// HasTable reports whether the snapshot contains the table.
func (c *Catalog) HasTable(name string) bool {
	for _, t := range c.Tables {
		if t == name {
			return true
		}
	}
	return false
}

// Constraint returns the named constraint on table, or nil.
func (c *Catalog) Constraint(table, name string) *CatalogConstraint {
	for i := range c.Constraints {
		if c.Constraints[i].Table == table && c.Constraints[i].Name == name {
			return &c.Constraints[i]
		}
	}
	return nil
}

// Index returns the named index, or nil.
func (c *Catalog) Index(name string) *CatalogIndex {
	for i := range c.Indexes {
		if c.Indexes[i].Name == name {
			return &c.Indexes[i]
		}
	}
	return nil
}

// Enum returns the named enum type, or nil.
func (c *Catalog) Enum(name string) *CatalogEnum {
	for i := range c.Enums {
		if c.Enums[i].Name == name {
			return &c.Enums[i]
		}
	}
	return nil
}

// Function returns the named function, or nil.
func (c *Catalog) Function(name string) *CatalogFunction {
	for i := range c.Functions {
		if c.Functions[i].Name == name {
			return &c.Functions[i]
		}
	}
	return nil
}

// Trigger returns the named trigger on table, or nil.
func (c *Catalog) Trigger(table, name string) *CatalogTrigger {
	for i := range c.Triggers {
		if c.Triggers[i].Table == table && c.Triggers[i].Name == name {
			return &c.Triggers[i]
		}
	}
	return nil
}

const (
	catalogTablesSQL = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`

	catalogColumnsSQL = `
SELECT table_name, column_name, udt_name, is_nullable = 'YES', COALESCE(column_default, '')
FROM information_schema.columns
WHERE table_schema = current_schema()
ORDER BY table_name, ordinal_position`

	// Not-null constraints are left out: before PostgreSQL 18 their names
	// embed OIDs, so they differ between otherwise identical schemas.
	catalogConstraintsSQL = `
SELECT con.conname, rel.relname, con.contype::text, pg_get_constraintdef(con.oid)
FROM pg_constraint con
JOIN pg_class rel ON rel.oid = con.conrelid
JOIN pg_namespace ns ON ns.oid = rel.relnamespace
WHERE ns.nspname = current_schema() AND con.contype IN ('c', 'f', 'p', 'u', 'x')
ORDER BY rel.relname, con.conname`

	catalogIndexesSQL = `
SELECT indexname, tablename, indexdef
FROM pg_indexes
WHERE schemaname = current_schema()
ORDER BY indexname`

	catalogEnumsSQL = `
SELECT t.typname, e.enumlabel
FROM pg_type t
JOIN pg_enum e ON e.enumtypid = t.oid
JOIN pg_namespace ns ON ns.oid = t.typnamespace
WHERE ns.nspname = current_schema()
ORDER BY t.typname, e.enumsortorder`

	catalogFunctionsSQL = `
SELECT p.proname, pg_get_functiondef(p.oid)
FROM pg_proc p
JOIN pg_namespace ns ON ns.oid = p.pronamespace
JOIN pg_language l ON l.oid = p.prolang
WHERE ns.nspname = current_schema() AND l.lanname = 'plpgsql'
ORDER BY p.proname`

	catalogTriggersSQL = `
SELECT t.tgname, c.relname, pg_get_triggerdef(t.oid)
FROM pg_trigger t
JOIN pg_class c ON c.oid = t.tgrelid
JOIN pg_namespace ns ON ns.oid = c.relnamespace
WHERE ns.nspname = current_schema() AND NOT t.tgisinternal
ORDER BY c.relname, t.tgname`
)

var constraintTypes = map[string]string{
	"c": "CHECK",
	"f": "FOREIGN KEY",
	"p": "PRIMARY KEY",
	"u": "UNIQUE",
	"x": "EXCLUDE",
}

// ReadCatalog snapshots the current schema of the database behind q.
func ReadCatalog(ctx context.Context, q Querier) (*Catalog, error) {
	c := &Catalog{}

	if err := scanAll(ctx, q, catalogTablesSQL, func(scan func(...any) error) error {
		var name string
		if err := scan(&name); err != nil {
			return err
		}
		c.Tables = append(c.Tables, name)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}

	if err := scanAll(ctx, q, catalogColumnsSQL, func(scan func(...any) error) error {
		var col CatalogColumn
		if err := scan(&col.Table, &col.Name, &col.Type, &col.Nullable, &col.Default); err != nil {
			return err
		}
		c.Columns = append(c.Columns, col)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	if err := scanAll(ctx, q, catalogConstraintsSQL, func(scan func(...any) error) error {
		var con CatalogConstraint
		var code string
		if err := scan(&con.Name, &con.Table, &code, &con.Definition); err != nil {
			return err
		}
		con.Type = constraintTypes[code]
		c.Constraints = append(c.Constraints, con)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read constraints: %w", err)
	}

	if err := scanAll(ctx, q, catalogIndexesSQL, func(scan func(...any) error) error {
		var idx CatalogIndex
		if err := scan(&idx.Name, &idx.Table, &idx.Definition); err != nil {
			return err
		}
		c.Indexes = append(c.Indexes, idx)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read indexes: %w", err)
	}

	if err := scanAll(ctx, q, catalogEnumsSQL, func(scan func(...any) error) error {
		var name, label string
		if err := scan(&name, &label); err != nil {
			return err
		}
		if n := len(c.Enums); n > 0 && c.Enums[n-1].Name == name {
			c.Enums[n-1].Values = append(c.Enums[n-1].Values, label)
		} else {
			c.Enums = append(c.Enums, CatalogEnum{Name: name, Values: []string{label}})
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read enums: %w", err)
	}

	if err := scanAll(ctx, q, catalogFunctionsSQL, func(scan func(...any) error) error {
		var fn CatalogFunction
		if err := scan(&fn.Name, &fn.Definition); err != nil {
			return err
		}
		c.Functions = append(c.Functions, fn)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read functions: %w", err)
	}

	if err := scanAll(ctx, q, catalogTriggersSQL, func(scan func(...any) error) error {
		var tr CatalogTrigger
		if err := scan(&tr.Name, &tr.Table, &tr.Definition); err != nil {
			return err
		}
		c.Triggers = append(c.Triggers, tr)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("read triggers: %w", err)
	}

	return c, nil
}

func scanAll(ctx context.Context, q Querier, query string, each func(scan func(...any) error) error) error {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := each(rows.Scan); err != nil {
			return err
		}
	}
	return rows.Err()
}
