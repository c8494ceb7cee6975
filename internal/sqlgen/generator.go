// Package sqlgen builds INSERT, UPDATE, DELETE and CREATE TABLE statements
// from table metadata and grid rows.
//
// Rows are located by their original values: the primary key when every key
// value is known, otherwise every column of the row.
package sqlgen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joacominatel/dataview/internal/database"
)

// ErrNothingToUpdate is returned by Update when no column is assigned.
var ErrNothingToUpdate = errors.New("no changed columns")

// Statement is SQL text with its bind parameters in placeholder order.
type Statement struct {
	SQL  string
	Args []any
}

// Assignment sets a grid column to a value in an UPDATE.
type Assignment struct {
	Column int
	Value  any
}

// ValidationError reports a value the target column cannot accept.
type ValidationError struct {
	Table  string
	Column string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Reason)
}

// Generator writes statements in the dialect of one backend.
type Generator struct {
	backend database.Backend
}

// New returns a generator for backend b.
func New(b database.Backend) *Generator {
	return &Generator{backend: b}
}

// Backend returns the dialect the generator writes.
func (g *Generator) Backend() database.Backend {
	return g.backend
}

// binder turns a value into statement text, either a placeholder with a
// recorded argument or an inline literal.
type binder interface {
	bind(col database.Column, v any) string
}

type paramBinder struct {
	backend database.Backend
	args    []any
}

func (b *paramBinder) bind(_ database.Column, v any) string {
	if m, ok := v.(Marker); ok {
		return m.SQL()
	}
	b.args = append(b.args, v)
	return b.backend.Placeholder(len(b.args))
}

type literalBinder struct {
	g *Generator
}

func (b literalBinder) bind(col database.Column, v any) string {
	return b.g.Literal(col, v)
}

// Insert builds an INSERT of values, one per column of cols. Generated and
// identity columns are skipped. A NULL (nil or the Null marker) for a NOT
// NULL column is a validation error.
func (g *Generator) Insert(t *database.Table, cols []database.Column, values []any) (Statement, error) {
	b := &paramBinder{backend: g.backend}
	sql, err := g.insert(t, cols, values, b)
	return Statement{SQL: sql, Args: b.args}, err
}

// RawInsert is Insert with literals inlined, for display.
func (g *Generator) RawInsert(t *database.Table, cols []database.Column, values []any) (string, error) {
	return g.insert(t, cols, values, literalBinder{g})
}

func (g *Generator) insert(t *database.Table, cols []database.Column, values []any, b binder) (string, error) {
	if len(values) != len(cols) {
		return "", fmt.Errorf("insert into %s: %d values for %d columns", t.QualifiedName(), len(values), len(cols))
	}

	var names, exprs []string
	for i, col := range cols {
		if !col.Writable() {
			continue
		}
		v := values[i]
		if IsNull(v) && !col.IsNullable {
			return "", &ValidationError{Table: t.Name, Column: col.Name, Reason: "null value in NOT NULL column"}
		}
		if v == Default && !g.backend.DefaultKeyword() {
			continue
		}
		names = append(names, g.backend.QuoteIdent(col.Name))
		exprs = append(exprs, b.bind(col, v))
	}

	table := g.backend.QuoteQualified(t.QualifiedName())
	if len(names) == 0 {
		if g.backend == database.MySQL {
			return fmt.Sprintf("INSERT INTO %s () VALUES ()", table), nil
		}
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", table), nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(names, ", "), strings.Join(exprs, ", ")), nil
}

// Update builds an UPDATE that applies set to the row whose original values
// are original.
func (g *Generator) Update(t *database.Table, cols []database.Column, original []any, set []Assignment) (Statement, error) {
	b := &paramBinder{backend: g.backend}
	sql, err := g.update(t, cols, original, set, b)
	return Statement{SQL: sql, Args: b.args}, err
}

// RawUpdate is Update with literals inlined, for display.
func (g *Generator) RawUpdate(t *database.Table, cols []database.Column, original []any, set []Assignment) (string, error) {
	return g.update(t, cols, original, set, literalBinder{g})
}

func (g *Generator) update(t *database.Table, cols []database.Column, original []any, set []Assignment, b binder) (string, error) {
	if len(set) == 0 {
		return "", fmt.Errorf("update %s: %w", t.QualifiedName(), ErrNothingToUpdate)
	}

	assignments := make([]string, 0, len(set))
	for _, a := range set {
		col := cols[a.Column]
		if !col.Writable() {
			return "", &ValidationError{Table: t.Name, Column: col.Name, Reason: "column is generated"}
		}
		v := a.Value
		if v == Default && !g.backend.DefaultKeyword() {
			if !col.HasDefault {
				v = Null
			} else {
				assignments = append(assignments, g.backend.QuoteIdent(col.Name)+"="+col.Default)
				continue
			}
		}
		if IsNull(v) && !col.IsNullable {
			return "", &ValidationError{Table: t.Name, Column: col.Name, Reason: "null value in NOT NULL column"}
		}
		assignments = append(assignments, g.backend.QuoteIdent(col.Name)+"="+b.bind(col, v))
	}

	where := g.where(t, cols, original, b)
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		g.backend.QuoteQualified(t.QualifiedName()), strings.Join(assignments, ", "), where), nil
}

// Delete builds a DELETE of the row whose original values are original.
func (g *Generator) Delete(t *database.Table, cols []database.Column, original []any) Statement {
	b := &paramBinder{backend: g.backend}
	sql := g.delete(t, cols, original, b)
	return Statement{SQL: sql, Args: b.args}
}

// RawDelete is Delete with literals inlined, for display.
func (g *Generator) RawDelete(t *database.Table, cols []database.Column, original []any) string {
	return g.delete(t, cols, original, literalBinder{g})
}

func (g *Generator) delete(t *database.Table, cols []database.Column, original []any, b binder) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s",
		g.backend.QuoteQualified(t.QualifiedName()), g.where(t, cols, original, b))
}

// Where builds the predicate locating a row. Placeholders are numbered from
// startPos, for backends with positional parameters; positions below 1 count
// as 1.
func (g *Generator) Where(t *database.Table, cols []database.Column, original []any, startPos int) (string, []any) {
	startPos = max(startPos, 1)
	b := &paramBinder{backend: g.backend, args: make([]any, startPos-1, startPos-1+len(cols))}
	clause := g.where(t, cols, original, b)
	return clause, b.args[startPos-1:]
}

// KeyColumns returns the grid columns the WHERE clause of a row will use:
// the primary key when the table has one and every key value of the row is
// non-null, all columns otherwise.
func KeyColumns(t *database.Table, cols []database.Column, original []any) []int {
	if t != nil && t.HasPrimaryKey() {
		idx := make([]int, 0, len(t.PrimaryKey))
		for _, name := range t.PrimaryKey {
			i := columnIndex(cols, name)
			if i < 0 || IsNull(original[i]) {
				idx = nil
				break
			}
			idx = append(idx, i)
		}
		if idx != nil {
			return idx
		}
	}
	all := make([]int, len(cols))
	for i := range cols {
		all[i] = i
	}
	return all
}

func (g *Generator) where(t *database.Table, cols []database.Column, original []any, b binder) string {
	keys := KeyColumns(t, cols, original)
	conds := make([]string, 0, len(keys))
	for _, i := range keys {
		name := g.backend.QuoteIdent(cols[i].Name)
		if IsNull(original[i]) {
			conds = append(conds, name+" IS NULL")
			continue
		}
		conds = append(conds, name+"="+b.bind(cols[i], original[i]))
	}
	return strings.Join(conds, " AND ")
}

// Truncate returns the statement removing every row of t.
func (g *Generator) Truncate(t *database.Table) string {
	return g.backend.TruncateSQL(t.QualifiedName())
}

func columnIndex(cols []database.Column, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}
