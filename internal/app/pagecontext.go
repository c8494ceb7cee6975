package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/executor"
	"github.com/joacominatel/dataview/internal/fetch"
	"github.com/joacominatel/dataview/internal/grid"
	"github.com/joacominatel/dataview/internal/page"
	"github.com/joacominatel/dataview/internal/sqlgen"
	"github.com/joacominatel/dataview/internal/sqlinspect"
	"github.com/joacominatel/dataview/internal/uiloop"
)

// PageEvent reports a finished job of a page context.
type PageEvent struct {
	Result executor.Result
}

// PageContext owns the cursor and grid of one result set. Except where
// noted, its methods belong to the UI loop: call them from the goroutine
// the service's dispatcher runs on. Jobs it submits deliver their results
// there too.
type PageContext struct {
	svc       *Service
	stmt      sqlinspect.Statement
	resultSet int
	table     *database.Table
	columns   []database.Column

	cursor *page.Cursor
	grid   *grid.Grid

	strategy fetch.Strategy
	stats    fetch.Stats
	last     executor.Result
	hasLast  bool

	listeners uiloop.Listeners[PageEvent]
}

// newPageContext builds a page context from a freshly fetched page. It runs
// inside the execute job, before the context is visible to the UI.
func (s *Service) newPageContext(ctx context.Context, q database.Querier, p *fetch.Page, pageSize int) *PageContext {
	pc := &PageContext{
		svc:       s,
		stmt:      p.Statement,
		resultSet: p.ResultSet,
		cursor:    page.New(pageSize),
		strategy:  p.Strategy,
		stats:     p.Stats,
	}

	table := s.editableTable(ctx, q, p)
	pc.columns = make([]database.Column, len(p.Columns))
	for i, c := range p.Columns {
		if table != nil {
			col, _ := table.Column(c.Name)
			pc.columns[i] = col
			continue
		}
		pc.columns[i] = database.Column{
			Name:       c.Name,
			DataType:   c.DatabaseType,
			Kind:       c.Kind,
			OrdinalPos: i + 1,
			IsNullable: true,
		}
	}
	pc.table = table
	pc.grid = grid.New(pc.columns, table != nil)
	pc.grid.SetRows(p.Rows)
	pc.cursor.SetRowCount(len(p.Rows))
	return pc
}

// editableTable returns the table a page can be written back to, or nil.
// A page is editable when its statement reads exactly one table and selects
// plain columns of it, unrenamed, and at least one of them is writable.
// Computed values aliased to a column name do not qualify.
func (s *Service) editableTable(ctx context.Context, q database.Querier, p *fetch.Page) *database.Table {
	name, ok := p.Statement.SingleTable()
	if !ok || !p.Statement.Select || !p.Statement.ColumnsOnly || len(p.Columns) == 0 {
		return nil
	}
	t, err := s.describe(ctx, q, name)
	if err != nil {
		s.log.WithError(err).WithField("table", name).Debug("result is read-only")
		return nil
	}
	writable := false
	seen := make(map[string]bool, len(p.Columns))
	for _, c := range p.Columns {
		col, ok := t.Column(c.Name)
		key := strings.ToLower(c.Name)
		if !ok || seen[key] {
			return nil
		}
		seen[key] = true
		if col.Writable() {
			writable = true
		}
	}
	if !writable {
		return nil
	}
	return t
}

// Statement returns the statement the page was produced by.
func (pc *PageContext) Statement() sqlinspect.Statement { return pc.stmt }

// ResultSet is the index of the result set within the statement.
func (pc *PageContext) ResultSet() int { return pc.resultSet }

// Table returns the table edits are written to, or nil for a read-only page.
func (pc *PageContext) Table() *database.Table { return pc.table }

func (pc *PageContext) Cursor() *page.Cursor { return pc.cursor }
func (pc *PageContext) Grid() *grid.Grid     { return pc.grid }

// Editable reports whether edits can be committed.
func (pc *PageContext) Editable() bool { return pc.table != nil }

// Strategy is how the last page was reached.
func (pc *PageContext) Strategy() fetch.Strategy { return pc.strategy }

// Stats are the timings of the last page fetch.
func (pc *PageContext) Stats() fetch.Stats { return pc.stats }

// LastResult returns the result of the last finished job.
func (pc *PageContext) LastResult() (executor.Result, bool) { return pc.last, pc.hasLast }

// LastErr returns the error of the last finished job.
func (pc *PageContext) LastErr() error {
	if !pc.hasLast {
		return nil
	}
	return pc.last.Err
}

// Subscribe registers fn to be called on the UI loop after every job the
// page context submitted has finished.
func (pc *PageContext) Subscribe(fn func(PageEvent)) (unsubscribe func()) {
	return pc.listeners.Add(fn)
}

func (pc *PageContext) HasNext() bool     { return pc.cursor.HasNext() }
func (pc *PageContext) HasPrevious() bool { return pc.cursor.HasPrevious() }
func (pc *PageContext) IsLastPage() bool  { return pc.cursor.IsLastPage() }

// First moves to the first page and fetches it.
func (pc *PageContext) First(ctx context.Context) (*executor.Handle, error) {
	pc.cursor.First()
	return pc.Refresh(ctx)
}

// Next moves forward one page and fetches it.
func (pc *PageContext) Next(ctx context.Context) (*executor.Handle, error) {
	if !pc.cursor.HasNext() {
		return nil, ErrNoPage
	}
	pc.cursor.Next()
	return pc.Refresh(ctx)
}

// Previous moves back one page and fetches it.
func (pc *PageContext) Previous(ctx context.Context) (*executor.Handle, error) {
	if !pc.cursor.HasPrevious() {
		return nil, ErrNoPage
	}
	pc.cursor.Previous()
	return pc.Refresh(ctx)
}

// SetPageSize changes the page size, keeping the offset, and refetches.
func (pc *PageContext) SetPageSize(ctx context.Context, n int) (*executor.Handle, error) {
	pc.cursor.SetPageSize(n)
	return pc.Refresh(ctx)
}

// Refresh refetches the current page. The grid is replaced, discarding
// edits, when the job finishes.
func (pc *PageContext) Refresh(ctx context.Context) (*executor.Handle, error) {
	req := fetch.Request{Offset: pc.cursor.Offset(), PageSize: pc.cursor.PageSize()}
	planner := pc.svc.planner
	if planner == nil {
		return nil, ErrNotConnected
	}
	inTx := planner.Choose(pc.stmt) == fetch.Absolute

	var fetched *fetch.Page
	job := executor.NewJob(executor.KindQuery, fmt.Sprintf("page %d", pc.cursor.PageNumber()), inTx,
		func(ctx context.Context, q database.Querier) (int64, error) {
			p, err := planner.FetchPage(ctx, q, pc.stmt, pc.resultSet, req)
			if err != nil {
				return 0, err
			}
			fetched = p
			return int64(len(p.Rows)), nil
		})
	job.Done = func(r executor.Result) {
		if r.Succeeded() && fetched != nil {
			pc.strategy = fetched.Strategy
			pc.stats = fetched.Stats
			pc.grid.SetRows(fetched.Rows)
			pc.cursor.SetRowCount(len(fetched.Rows))
		}
		pc.finished(r)
	}
	return pc.svc.submit(ctx, job)
}

// CountRows returns the total number of rows of the result set. It blocks
// and may be called from any goroutine.
func (pc *PageContext) CountRows(ctx context.Context) (int, error) {
	var n int
	_, err := pc.svc.call(ctx, executor.KindQuery, "count rows", false, func(ctx context.Context, q database.Querier) (int64, error) {
		var err error
		n, err = pc.svc.planner.CountRows(ctx, q, pc.stmt)
		return int64(n), err
	})
	return n, err
}

// SetValue edits a cell of an editable page.
func (pc *PageContext) SetValue(row, col int, v any) error {
	if pc.table == nil {
		return ErrReadOnly
	}
	if row < 0 || row >= pc.grid.RowCount() || col < 0 || col >= pc.grid.ColumnCount() {
		return fmt.Errorf("cell (%d, %d) out of range", row, col)
	}
	if !pc.columns[col].Writable() {
		return &sqlgen.ValidationError{Table: pc.table.QualifiedName(), Column: pc.columns[col].Name, Reason: "column is generated"}
	}
	pc.grid.SetValue(row, col, v)
	return nil
}

func (pc *PageContext) RevertCell(row, col int, discard bool) { pc.grid.RevertCell(row, col, discard) }
func (pc *PageContext) RevertRow(row int, discard bool)       { pc.grid.RevertRow(row, discard) }
func (pc *PageContext) RevertAll(discard bool)                { pc.grid.RevertAll(discard) }

// updateStatements builds one UPDATE per dirty row in first-edit order.
func (pc *PageContext) updateStatements() ([]sqlgen.Statement, []int, error) {
	if pc.table == nil {
		return nil, nil, ErrReadOnly
	}
	rows := pc.grid.DirtyRows()
	if len(rows) == 0 {
		return nil, nil, ErrNoChanges
	}
	stmts := make([]sqlgen.Statement, 0, len(rows))
	for _, row := range rows {
		var set []sqlgen.Assignment
		for _, c := range pc.grid.ChangedColumns(row) {
			set = append(set, sqlgen.Assignment{Column: c.Col, Value: c.Value})
		}
		st, err := pc.svc.gen.Update(pc.table, pc.columns, pc.grid.OriginalRow(row), set)
		if err != nil {
			return nil, nil, err
		}
		stmts = append(stmts, st)
	}
	return stmts, rows, nil
}

// PreviewUpdates renders the pending updates with values inlined.
func (pc *PageContext) PreviewUpdates() ([]string, error) {
	if pc.table == nil {
		return nil, ErrReadOnly
	}
	var out []string
	for _, row := range pc.grid.DirtyRows() {
		var set []sqlgen.Assignment
		for _, c := range pc.grid.ChangedColumns(row) {
			set = append(set, sqlgen.Assignment{Column: c.Col, Value: c.Value})
		}
		sql, err := pc.svc.gen.RawUpdate(pc.table, pc.columns, pc.grid.OriginalRow(row), set)
		if err != nil {
			return nil, err
		}
		out = append(out, sql)
	}
	return out, nil
}

// written is a cell value sent to the database by a commit.
type written struct {
	row, col int
	value    any
}

// CommitUpdates writes every dirty row back in one transaction. Each UPDATE
// must match exactly one row or the batch is rolled back. On success the
// written values become the new originals; cells edited again while the
// commit ran stay dirty.
func (pc *PageContext) CommitUpdates(ctx context.Context) (*executor.Handle, error) {
	stmts, rows, err := pc.updateStatements()
	if err != nil {
		return nil, err
	}
	var cells []written
	for _, row := range rows {
		for _, c := range pc.grid.ChangedColumns(row) {
			cells = append(cells, written{row: row, col: c.Col, value: c.Value})
		}
	}
	job := executor.BatchJob(pc.svc.Backend(), executor.KindUpdate, fmt.Sprintf("update %d row(s)", len(stmts)), stmts, true)
	job.Done = func(r executor.Result) {
		if r.Succeeded() {
			for _, c := range cells {
				pc.grid.MarkWritten(c.row, c.col, c.value)
			}
		}
		pc.finished(r)
	}
	return pc.svc.submit(ctx, job)
}

// PreviewInsert renders the INSERT for values, one per result column.
func (pc *PageContext) PreviewInsert(values []any) (string, error) {
	if pc.table == nil {
		return "", ErrReadOnly
	}
	return pc.svc.gen.RawInsert(pc.table, pc.columns, values)
}

// Insert adds a row built from values, one per result column, and refetches
// the page once it is committed.
func (pc *PageContext) Insert(ctx context.Context, values []any) (*executor.Handle, error) {
	if pc.table == nil {
		return nil, ErrReadOnly
	}
	st, err := pc.svc.gen.Insert(pc.table, pc.columns, values)
	if err != nil {
		return nil, err
	}
	return pc.mutate(ctx, executor.KindInsert, "insert row", []sqlgen.Statement{st}, true)
}

// PreviewDelete renders the DELETE statements for rows.
func (pc *PageContext) PreviewDelete(rows []int) ([]string, error) {
	if pc.table == nil {
		return nil, ErrReadOnly
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, pc.svc.gen.RawDelete(pc.table, pc.columns, pc.grid.OriginalRow(row)))
	}
	return out, nil
}

// DeleteRows deletes the database rows behind grid rows in one transaction,
// matching them by their original values.
func (pc *PageContext) DeleteRows(ctx context.Context, rows []int) (*executor.Handle, error) {
	if pc.table == nil {
		return nil, ErrReadOnly
	}
	if len(rows) == 0 {
		return nil, ErrNoChanges
	}
	stmts := make([]sqlgen.Statement, 0, len(rows))
	for _, row := range rows {
		if row < 0 || row >= pc.grid.RowCount() {
			return nil, fmt.Errorf("row %d out of range", row)
		}
		stmts = append(stmts, pc.svc.gen.Delete(pc.table, pc.columns, pc.grid.OriginalRow(row)))
	}
	return pc.mutate(ctx, executor.KindDelete, fmt.Sprintf("delete %d row(s)", len(rows)), stmts, true)
}

// Truncate removes every row of the table.
func (pc *PageContext) Truncate(ctx context.Context) (*executor.Handle, error) {
	if pc.table == nil {
		return nil, ErrReadOnly
	}
	st := sqlgen.Statement{SQL: pc.svc.gen.Truncate(pc.table)}
	return pc.mutate(ctx, executor.KindTruncate, "truncate "+pc.table.QualifiedName(), []sqlgen.Statement{st}, false)
}

// FilterQuery returns a query for the rows of the result whose column col
// holds v. Editable results select from their table; others are wrapped.
func (pc *PageContext) FilterQuery(col int, v any) (string, error) {
	if col < 0 || col >= len(pc.columns) {
		return "", fmt.Errorf("column %d out of range", col)
	}
	c := pc.columns[col]
	b := pc.svc.Backend()
	cond := b.QuoteIdent(c.Name) + " IS NULL"
	if !sqlgen.IsNull(v) {
		cond = b.QuoteIdent(c.Name) + " = " + pc.svc.gen.Literal(c, v)
	}
	if pc.table != nil {
		return "SELECT * FROM " + b.QuoteQualified(pc.table.QualifiedName()) + " WHERE " + cond, nil
	}
	return "SELECT * FROM (\n" + pc.stmt.Text + "\n) AS dv_filter WHERE " + cond, nil
}

// mutate runs stmts as a batch and refetches the current page after a
// successful commit.
func (pc *PageContext) mutate(ctx context.Context, kind executor.Kind, name string, stmts []sqlgen.Statement, checkRows bool) (*executor.Handle, error) {
	job := executor.BatchJob(pc.svc.Backend(), kind, name, stmts, checkRows)
	job.Done = func(r executor.Result) {
		pc.finished(r)
		if !r.Succeeded() {
			return
		}
		if _, err := pc.Refresh(context.WithoutCancel(ctx)); err != nil {
			pc.svc.log.WithError(err).Warn("refresh after " + kind.String())
		}
	}
	return pc.svc.submit(ctx, job)
}

func (pc *PageContext) finished(r executor.Result) {
	pc.last = r
	pc.hasLast = true
	pc.svc.log.WithFields(logrus.Fields{
		"job":   r.Name,
		"state": r.State.String(),
	}).Debug("page job finished")
	pc.listeners.Emit(PageEvent{Result: r})
}
