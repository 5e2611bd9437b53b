// Package schema declares the trading store's relational schema: enumerated
// domains, tables, constraints, partial indexes and trigger functions. Each
// migration version owns one Schema value and derives both its forward DDL
// and its exact inverse from it.
package schema

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Schema is an ordered declaration of database objects. Tables must be
// declared after every table they reference.
type Schema struct {
	Extensions []string
	Enums      []Enum
	Tables     []Table
	Indexes    []Index
	Functions  []Function
	Triggers   []Trigger
}

// Enum is a closed set of values backed by a PostgreSQL ENUM type.
type Enum struct {
	Name   string
	Values []string
}

// Table declares one table with its inline constraints.
type Table struct {
	Name    string
	Columns []Column
	Uniques []Unique
	Checks  []Check
}

// Column declares a column. Exactly one of Type or Enum is set.
type Column struct {
	Name       string
	Type       string
	Enum       string
	NotNull    bool
	Default    string
	PrimaryKey bool
	References *ForeignKey
}

// ForeignKey is a named reference from a column to another table's column.
// OnDelete is empty for the default (restricting) behaviour.
type ForeignKey struct {
	Name     string
	Table    string
	Column   string
	OnDelete string
}

// Unique is a named table-level uniqueness constraint.
type Unique struct {
	Name    string
	Columns []string
}

// Check is a named CHECK constraint.
type Check struct {
	Name string
	Expr string
}

// Index declares an index. Columns are SQL expressions ("ts DESC" is
// allowed); Where turns it into a partial index.
type Index struct {
	Name    string
	Table   string
	Columns []string
	Unique  bool
	Where   string
}

// Function is a plpgsql trigger function. Body is everything between
// BEGIN and END.
type Function struct {
	Name string
	Body string
}

// Trigger binds a row-level trigger function to a table.
type Trigger struct {
	Name     string
	Table    string
	Timing   string
	Events   []string
	Function string
}

// Table returns the table with the given name, or nil.
func (s *Schema) Table(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// TableNames returns table names in declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// PrimaryKey returns the name of the primary key column.
func (t *Table) PrimaryKey() string {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c.Name
		}
	}
	return ""
}

// ForeignKeys returns the table's foreign keys in column order.
func (t *Table) ForeignKeys() []ForeignKey {
	var fks []ForeignKey
	for _, c := range t.Columns {
		if c.References != nil {
			fks = append(fks, *c.References)
		}
	}
	return fks
}

// CreateStatements returns the DDL that builds s from nothing: extensions,
// enum types, tables, indexes, functions, then triggers.
func (s *Schema) CreateStatements() []string {
	var stmts []string
	for _, ext := range s.Extensions {
		stmts = append(stmts, fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s", ident(ext)))
	}
	for _, e := range s.Enums {
		stmts = append(stmts, createEnumSQL(e))
	}
	for _, t := range s.Tables {
		stmts = append(stmts, createTableSQL(t))
	}
	for _, idx := range s.Indexes {
		stmts = append(stmts, createIndexSQL(idx))
	}
	for _, fn := range s.Functions {
		stmts = append(stmts, createFunctionSQL(fn))
	}
	for _, tr := range s.Triggers {
		stmts = append(stmts, createTriggerSQL(tr))
	}
	return stmts
}

// DropStatements returns the exact inverse of CreateStatements: triggers
// before their functions, indexes before their tables, tables in reverse
// dependency order and enum types last. Extensions are database-wide and
// are left in place.
func (s *Schema) DropStatements() []string {
	var stmts []string
	for i := len(s.Triggers) - 1; i >= 0; i-- {
		tr := s.Triggers[i]
		stmts = append(stmts, fmt.Sprintf("DROP TRIGGER %s ON %s", ident(tr.Name), ident(tr.Table)))
	}
	for i := len(s.Functions) - 1; i >= 0; i-- {
		stmts = append(stmts, fmt.Sprintf("DROP FUNCTION %s()", ident(s.Functions[i].Name)))
	}
	for i := len(s.Indexes) - 1; i >= 0; i-- {
		stmts = append(stmts, fmt.Sprintf("DROP INDEX %s", ident(s.Indexes[i].Name)))
	}
	for i := len(s.Tables) - 1; i >= 0; i-- {
		stmts = append(stmts, fmt.Sprintf("DROP TABLE %s", ident(s.Tables[i].Name)))
	}
	for i := len(s.Enums) - 1; i >= 0; i-- {
		stmts = append(stmts, fmt.Sprintf("DROP TYPE %s", ident(s.Enums[i].Name)))
	}
	return stmts
}

func createEnumSQL(e Enum) string {
	values := make([]string, len(e.Values))
	for i, v := range e.Values {
		values[i] = literal(v)
	}
	return fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", ident(e.Name), strings.Join(values, ", "))
}

func createTableSQL(t Table) string {
	var parts []string
	for _, c := range t.Columns {
		parts = append(parts, "    "+columnSQL(c))
	}
	for _, c := range t.Columns {
		if fk := c.References; fk != nil {
			clause := fmt.Sprintf("    CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
				ident(fk.Name), ident(c.Name), ident(fk.Table), ident(fk.Column))
			if fk.OnDelete != "" {
				clause += " ON DELETE " + fk.OnDelete
			}
			parts = append(parts, clause)
		}
	}
	for _, u := range t.Uniques {
		parts = append(parts, fmt.Sprintf("    CONSTRAINT %s UNIQUE (%s)", ident(u.Name), identList(u.Columns)))
	}
	for _, ck := range t.Checks {
		parts = append(parts, fmt.Sprintf("    CONSTRAINT %s CHECK (%s)", ident(ck.Name), ck.Expr))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)", ident(t.Name), strings.Join(parts, ",\n"))
}

func columnSQL(c Column) string {
	typ := c.Type
	if c.Enum != "" {
		typ = ident(c.Enum)
	}
	def := ident(c.Name) + " " + typ
	if c.PrimaryKey {
		def += " PRIMARY KEY"
	} else if c.NotNull {
		def += " NOT NULL"
	}
	if c.Default != "" {
		def += " DEFAULT " + c.Default
	}
	return def
}

func createIndexSQL(idx Index) string {
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	stmt := fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, ident(idx.Name), ident(idx.Table), strings.Join(idx.Columns, ", "))
	if idx.Where != "" {
		stmt += " WHERE " + idx.Where
	}
	return stmt
}

func createFunctionSQL(fn Function) string {
	return fmt.Sprintf("CREATE FUNCTION %s() RETURNS trigger AS $$\nBEGIN\n%s\nEND;\n$$ LANGUAGE plpgsql",
		ident(fn.Name), strings.TrimRight(fn.Body, "\n"))
}

func createTriggerSQL(tr Trigger) string {
	return fmt.Sprintf("CREATE TRIGGER %s %s %s ON %s FOR EACH ROW EXECUTE FUNCTION %s()",
		ident(tr.Name), tr.Timing, strings.Join(tr.Events, " OR "), ident(tr.Table), ident(tr.Function))
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = ident(n)
	}
	return strings.Join(quoted, ", ")
}

func literal(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}
