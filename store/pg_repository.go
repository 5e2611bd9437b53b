package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/GoCodeAlone/tradestore/schema"
)

// Row is one table row keyed by column name.
type Row map[string]any

// Page bounds a listing. OrderBy defaults to the primary key.
type Page struct {
	Limit   int
	Offset  int
	OrderBy string
	Desc    bool
}

const defaultPageLimit = 100

var errEmptyChanges = errors.New("no columns to update")

// Repository is generic CRUD bound to exactly one table definition.
// Column names are checked against the definition before any SQL is built.
type Repository struct {
	db    DBTX
	table *schema.Table
}

// NewRepository creates a Repository for table over db.
func NewRepository(db DBTX, table *schema.Table) *Repository {
	return &Repository{db: db, table: table}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx, table: r.table}
}

// Table returns the table definition.
func (r *Repository) Table() *schema.Table { return r.table }

// Create inserts row and returns the stored row, defaults included.
func (r *Repository) Create(ctx context.Context, row Row) (Row, error) {
	cols, args, err := r.columns(row)
	if err != nil {
		return nil, err
	}
	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf(`INSERT INTO %s DEFAULT VALUES RETURNING *`, quote(r.table.Name))
	} else {
		query = fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING *`,
			quote(r.table.Name), quoteList(cols), placeholders(1, len(cols)))
	}
	return r.one(ctx, "insert into "+r.table.Name, query, args...)
}

// Get returns the row with the given primary key.
func (r *Repository) Get(ctx context.Context, id any) (Row, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s = $1`, quote(r.table.Name), quote(r.table.PrimaryKey()))
	return r.one(ctx, "get "+r.table.Name, query, id)
}

// List returns one page of rows.
func (r *Repository) List(ctx context.Context, page Page) ([]Row, error) {
	return r.Find(ctx, nil, page)
}

// Find returns rows whose columns equal the values in filter. A nil value
// matches NULL.
func (r *Repository) Find(ctx context.Context, filter Row, page Page) ([]Row, error) {
	cols, args, err := r.columns(filter)
	if err != nil {
		return nil, err
	}
	var conds []string
	var bound []any
	for i, col := range cols {
		if args[i] == nil {
			conds = append(conds, quote(col)+" IS NULL")
			continue
		}
		bound = append(bound, args[i])
		conds = append(conds, fmt.Sprintf("%s = $%d", quote(col), len(bound)))
	}

	orderBy := page.OrderBy
	if orderBy == "" {
		orderBy = r.table.PrimaryKey()
	}
	if r.table.Column(orderBy) == nil {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, r.table.Name, orderBy)
	}
	limit := page.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}

	var b strings.Builder
	fmt.Fprintf(&b, `SELECT * FROM %s`, quote(r.table.Name))
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(" ORDER BY " + quote(orderBy))
	if page.Desc {
		b.WriteString(" DESC")
	}
	fmt.Fprintf(&b, " LIMIT $%d OFFSET $%d", len(bound)+1, len(bound)+2)
	bound = append(bound, limit, page.Offset)

	rows, err := r.db.Query(ctx, b.String(), bound...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table.Name, classify(err))
	}
	result, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table.Name, classify(err))
	}
	out := make([]Row, len(result))
	for i, m := range result {
		out[i] = m
	}
	return out, nil
}

// Update sets the given columns on the row with primary key id and returns
// the updated row.
func (r *Repository) Update(ctx context.Context, id any, changes Row) (Row, error) {
	cols, args, err := r.columns(changes)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("update %s: %w", r.table.Name, errEmptyChanges)
	}
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", quote(col), i+1)
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s = $%d RETURNING *`,
		quote(r.table.Name), strings.Join(sets, ", "), quote(r.table.PrimaryKey()), len(cols)+1)
	return r.one(ctx, "update "+r.table.Name, query, append(args, id)...)
}

// Delete removes the row with primary key id and returns the number of
// rows removed.
func (r *Repository) Delete(ctx context.Context, id any) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, quote(r.table.Name), quote(r.table.PrimaryKey()))
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", r.table.Name, classify(err))
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) one(ctx context.Context, op, query string, args ...any) (Row, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return m, nil
}

// columns validates the keys of row and returns them sorted with their
// values.
func (r *Repository) columns(row Row) ([]string, []any, error) {
	cols := make([]string, 0, len(row))
	for col := range row {
		if r.table.Column(col) == nil {
			return nil, nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, r.table.Name, col)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	args := make([]any, len(cols))
	for i, col := range cols {
		args[i] = row[col]
	}
	return cols, args, nil
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ph, ", ")
}

// queryOne scans exactly one row into a T by column name.
func queryOne[T any](ctx context.Context, db DBTX, op, query string, args ...any) (*T, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return v, nil
}

// queryAll scans every row into a T by column name.
func queryAll[T any](ctx context.Context, db DBTX, op, query string, args ...any) ([]*T, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	vs, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	return vs, nil
}
