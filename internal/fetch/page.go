package fetch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/sqlinspect"
)

// cursorName is the server-side cursor used by Absolute. One job runs on the
// connection at a time, so a fixed name never collides.
const cursorName = "dv_cursor"

// ColumnInfo describes one column of a result set.
type ColumnInfo struct {
	Name         string
	DatabaseType string
	Kind         database.Kind
}

// Stats records how long a page took and how many rows were read for it.
type Stats struct {
	Execute time.Duration
	Fetch   time.Duration
	Rows    int
	Skipped int
}

// PerRow is the average fetch time per kept row.
func (s Stats) PerRow() time.Duration {
	if s.Rows == 0 {
		return 0
	}
	return s.Fetch / time.Duration(s.Rows)
}

// Page is one filled page of a result set.
type Page struct {
	Statement sqlinspect.Statement
	ResultSet int
	Columns   []ColumnInfo
	Rows      [][]any
	Strategy  Strategy
	Stats     Stats
}

// rowSource is the part of *sql.Rows the fill loop needs.
type rowSource interface {
	ColumnTypes() ([]*sql.ColumnType, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	NextResultSet() bool
}

// withRows runs sql and hands its rows to fn. prefix is the number of bytes
// sql adds in front of st.Text; error positions are shifted back by it so
// they point into the statement the user wrote. A negative prefix means sql
// does not contain st.Text and positions are dropped.
func (p *Planner) withRows(ctx context.Context, q database.Querier, st sqlinspect.Statement, sql string, prefix int, fn func(rowSource, time.Duration) error) error {
	start := time.Now()
	rows, err := q.QueryContext(ctx, sql)
	if err != nil {
		return p.statementError(st, sql, prefix, err)
	}
	defer rows.Close()
	executed := time.Since(start)

	if err := fn(rows, executed); err != nil {
		return p.statementError(st, sql, prefix, err)
	}
	if err := rows.Err(); err != nil {
		return p.statementError(st, sql, prefix, err)
	}
	return nil
}

func (p *Planner) statementError(st sqlinspect.Statement, sql string, prefix int, err error) error {
	var se *database.StatementError
	if errors.As(err, &se) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	pos := -1
	if prefix >= 0 {
		pos = database.ErrorPosition(p.backend, sql, err)
	}
	if pos >= 0 {
		pos -= prefix
		if pos < 0 || pos > len(st.Text) {
			pos = -1
		}
	}
	return &database.StatementError{SQL: st.Text, Position: pos, Cause: err}
}

// fill reads the current result set of rows into a page, discarding rows
// before the requested window. The context is checked before every row so a
// cancelled job stops reading promptly.
func (p *Planner) fill(ctx context.Context, rows rowSource, st sqlinspect.Statement, resultSet int, req Request, strategy Strategy, executed time.Duration) (*Page, error) {
	observe := instrument(strategy, p.backend.String())
	defer observe()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	page := &Page{
		Statement: st,
		ResultSet: resultSet,
		Columns:   make([]ColumnInfo, len(types)),
		Strategy:  strategy,
	}
	for i, ct := range types {
		page.Columns[i] = ColumnInfo{
			Name:         ct.Name(),
			DatabaseType: ct.DatabaseTypeName(),
			Kind:         database.KindOf(ct.DatabaseTypeName()),
		}
	}

	skip, take, all := req.window()
	start := time.Now()
	for page.Stats.Skipped < skip {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !rows.Next() {
			break
		}
		page.Stats.Skipped++
	}

	dest := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for all || len(page.Rows) < take {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !rows.Next() {
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		page.Rows = append(page.Rows, convertRow(page.Columns, dest))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page.Stats.Execute = executed
	page.Stats.Fetch = time.Since(start)
	page.Stats.Rows = len(page.Rows)
	countRows(strategy, page.Stats.Rows, page.Stats.Skipped)

	p.log.WithFields(logrus.Fields{
		"strategy": strategy.String(),
		"rows":     page.Stats.Rows,
		"skipped":  page.Stats.Skipped,
		"execute":  page.Stats.Execute,
		"fetch":    page.Stats.Fetch,
	}).Debug("page filled")
	return page, nil
}

// convertRow copies scanned values. Drivers reuse byte buffers between rows
// and return text as []byte, so bytes are copied, and turned into strings
// unless the column holds binary data.
func convertRow(cols []ColumnInfo, dest []any) []any {
	row := make([]any, len(dest))
	for i, v := range dest {
		b, ok := v.([]byte)
		if !ok {
			row[i] = v
			continue
		}
		if cols[i].Kind == database.KindBinary {
			row[i] = append([]byte(nil), b...)
		} else {
			row[i] = string(b)
		}
	}
	return row
}

// fetchAbsolute declares a scrollable cursor over the statement and moves it
// straight to the first row of the page. It must run inside a transaction.
func (p *Planner) fetchAbsolute(ctx context.Context, q database.Querier, st sqlinspect.Statement, req Request) (*Page, error) {
	prefix := "DECLARE " + cursorName + " SCROLL CURSOR FOR "
	declare := prefix + st.Text

	start := time.Now()
	if _, err := q.ExecContext(ctx, declare); err != nil {
		return nil, p.statementError(st, declare, len(prefix), err)
	}
	defer func() {
		// the cursor dies with the transaction anyway; closing it early
		// lets the same transaction fetch another page
		if _, err := q.ExecContext(context.WithoutCancel(ctx), "CLOSE "+cursorName); err != nil {
			p.log.WithError(err).Debug("close cursor")
		}
	}()

	skip, take, all := req.window()
	if skip > 0 {
		if _, err := q.ExecContext(ctx, fmt.Sprintf("MOVE ABSOLUTE %d IN %s", skip, cursorName)); err != nil {
			return nil, p.statementError(st, st.Text, -1, err)
		}
	}
	fetchSQL := fmt.Sprintf("FETCH FORWARD %d FROM %s", take, cursorName)
	if all {
		fetchSQL = "FETCH ALL FROM " + cursorName
	}
	executed := time.Since(start)

	var page *Page
	err := p.withRows(ctx, q, st, fetchSQL, -1, func(rows rowSource, fetchExec time.Duration) error {
		var err error
		page, err = p.fill(ctx, rows, st, 0, Request{Offset: 1, PageSize: req.PageSize}, Absolute, executed+fetchExec)
		return err
	})
	if page != nil {
		page.Stats.Skipped = skip
	}
	return page, err
}

// CountRows returns the total number of rows st produces.
func (p *Planner) CountRows(ctx context.Context, q database.Querier, st sqlinspect.Statement) (int, error) {
	if !st.Select {
		return 0, fmt.Errorf("cannot count rows of a non-SELECT statement")
	}
	if p.backend == database.MySQL {
		// no derived table: it would reject duplicate column names
		return p.countByReading(ctx, q, st)
	}
	prefix := "SELECT COUNT(*) FROM (\n"
	sql := prefix + st.Text + "\n) AS dv_count"
	var n int
	if err := queryRow(ctx, q, sql, &n); err != nil {
		return 0, p.statementError(st, sql, len(prefix), err)
	}
	return n, nil
}

func (p *Planner) countByReading(ctx context.Context, q database.Querier, st sqlinspect.Statement) (int, error) {
	n := 0
	err := p.withRows(ctx, q, st, st.Text, 0, func(rows rowSource, _ time.Duration) error {
		for rows.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func queryRow(ctx context.Context, q database.Querier, sql string, dest ...any) error {
	rows, err := q.QueryContext(ctx, sql)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return errors.New("no rows returned")
	}
	if err := rows.Scan(dest...); err != nil {
		return err
	}
	return rows.Err()
}
