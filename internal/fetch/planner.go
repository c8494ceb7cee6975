// Package fetch fills pages of rows from statements. It picks, per backend
// and per statement, between positioning a scrollable cursor, letting the
// server cap the result, and reading and discarding rows up to the page.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/sqlinspect"
)

// Strategy is a way of reaching the first row of a page.
type Strategy int

const (
	// Skip reads and discards rows from the start of the result.
	Skip Strategy = iota
	// Limit caps the statement at the last row of the page and skips within
	// the capped result.
	Limit
	// Absolute positions a scrollable cursor directly on the first row.
	Absolute
)

func (s Strategy) String() string {
	switch s {
	case Skip:
		return "skip"
	case Limit:
		return "limit"
	case Absolute:
		return "absolute"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Options are the per-session fetch preferences.
type Options struct {
	// UseScrollableCursors allows Absolute where the backend supports it.
	UseScrollableCursors bool
}

// Request selects a page: rows Offset .. Offset+PageSize-1 (1-based). A
// PageSize of 0 asks for every row from Offset on.
type Request struct {
	Offset   int
	PageSize int
}

// window returns how many rows to discard and how many to keep. all means
// keep everything after the discarded rows.
func (r Request) window() (skip, take int, all bool) {
	if r.PageSize <= 0 {
		return max(r.Offset-1, 0), 0, true
	}
	start, end := r.Offset, r.Offset+r.PageSize-1
	if start < 1 {
		start = 1
	}
	return start - 1, max(end-start+1, 0), false
}

// Planner chooses and runs fetch strategies for one connection.
type Planner struct {
	backend database.Backend
	caps    database.Capabilities
	opts    Options
	log     logrus.FieldLogger
}

// NewPlanner returns a planner for a backend.
func NewPlanner(b database.Backend, opts Options, log logrus.FieldLogger) *Planner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Planner{backend: b, caps: b.Capabilities(), opts: opts, log: log}
}

// Backend returns the backend the planner was built for.
func (p *Planner) Backend() database.Backend {
	return p.backend
}

// Choose picks the strategy for a statement.
func (p *Planner) Choose(st sqlinspect.Statement) Strategy {
	if p.opts.UseScrollableCursors && p.caps.ScrollableCursors && (st.Select || !p.caps.AbsoluteSelectOnly) {
		return Absolute
	}
	if p.caps.ServerSideLimit && st.Select && !st.HasLimit {
		return Limit
	}
	return Skip
}

// NeedsTransaction reports whether fetching script requires an open
// transaction, which cursors declared on the server do.
func (p *Planner) NeedsTransaction(script string) bool {
	for _, st := range sqlinspect.Parse(script) {
		if st.Query && p.Choose(st) == Absolute {
			return true
		}
	}
	return false
}

// Execute runs every statement of script in order. Each result set of a
// query statement becomes a page filled according to req; every other
// statement contributes its affected-row count.
func (p *Planner) Execute(ctx context.Context, q database.Querier, script string, req Request) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{}

	stmts := sqlinspect.Parse(script)
	if len(stmts) == 0 {
		return nil, fmt.Errorf("no statement to execute")
	}
	for _, st := range stmts {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if !st.Query {
			n, err := p.exec(ctx, q, st)
			if err != nil {
				return out, err
			}
			out.UpdateCounts = append(out.UpdateCounts, n)
			continue
		}
		pages, err := p.fetchAll(ctx, q, st, req)
		out.Pages = append(out.Pages, pages...)
		if err != nil {
			return out, err
		}
	}
	out.Elapsed = time.Since(start)
	return out, nil
}

func (p *Planner) exec(ctx context.Context, q database.Querier, st sqlinspect.Statement) (int64, error) {
	res, err := q.ExecContext(ctx, st.Text)
	if err != nil {
		return 0, database.NewStatementError(p.backend, st.Text, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// some statements (DDL) have no count
		return 0, nil
	}
	return n, nil
}

// fetchAll fills a page from every result set of st.
func (p *Planner) fetchAll(ctx context.Context, q database.Querier, st sqlinspect.Statement, req Request) ([]*Page, error) {
	strategy := p.Choose(st)
	if strategy != Skip {
		page, err := p.fetch(ctx, q, st, 0, req, strategy)
		if err != nil {
			return nil, err
		}
		return []*Page{page}, nil
	}

	var pages []*Page
	err := p.withRows(ctx, q, st, st.Text, 0, func(rows rowSource, executed time.Duration) error {
		for set := 0; ; set++ {
			page, err := p.fill(ctx, rows, st, set, req, Skip, executed)
			if err != nil {
				return err
			}
			pages = append(pages, page)
			if !p.caps.MultipleResultSets || !rows.NextResultSet() {
				return nil
			}
			executed = 0
		}
	})
	return pages, err
}

// FetchPage re-executes st and fills the page req of its result set number
// resultSet.
func (p *Planner) FetchPage(ctx context.Context, q database.Querier, st sqlinspect.Statement, resultSet int, req Request) (*Page, error) {
	strategy := p.Choose(st)
	if resultSet > 0 {
		strategy = Skip
	}
	return p.fetch(ctx, q, st, resultSet, req, strategy)
}

func (p *Planner) fetch(ctx context.Context, q database.Querier, st sqlinspect.Statement, resultSet int, req Request, strategy Strategy) (*Page, error) {
	p.log.WithFields(logrus.Fields{
		"strategy":  strategy.String(),
		"offset":    req.Offset,
		"page_size": req.PageSize,
		"resultset": resultSet,
	}).Debug("fetching page")

	switch strategy {
	case Absolute:
		return p.fetchAbsolute(ctx, q, st, req)
	case Limit:
		return p.fetchLimit(ctx, q, st, req)
	default:
		var page *Page
		err := p.withRows(ctx, q, st, st.Text, 0, func(rows rowSource, executed time.Duration) error {
			for set := 0; set < resultSet; set++ {
				if !rows.NextResultSet() {
					return fmt.Errorf("statement has no result set %d", resultSet+1)
				}
			}
			var err error
			page, err = p.fill(ctx, rows, st, resultSet, req, Skip, executed)
			return err
		})
		return page, err
	}
}

func (p *Planner) fetchLimit(ctx context.Context, q database.Querier, st sqlinspect.Statement, req Request) (*Page, error) {
	_, take, all := req.window()
	if all {
		var page *Page
		err := p.withRows(ctx, q, st, st.Text, 0, func(rows rowSource, executed time.Duration) error {
			var err error
			page, err = p.fill(ctx, rows, st, 0, req, Limit, executed)
			return err
		})
		return page, err
	}

	skip, _, _ := req.window()
	sql, prefix := p.limitSQL(st, skip+take)
	if sql == "" {
		return p.fetch(ctx, q, st, 0, req, Skip)
	}

	var page *Page
	err := p.withRows(ctx, q, st, sql, prefix, func(rows rowSource, executed time.Duration) error {
		var err error
		page, err = p.fill(ctx, rows, st, 0, req, Limit, executed)
		return err
	})
	return page, err
}

// limitSQL caps st at n rows. It returns the statement to run and the
// number of bytes in front of st.Text, or -1 when the text was rewritten.
// An empty statement means st cannot be capped and must be skipped through.
//
// MySQL rejects derived tables with duplicate column names, which any
// SELECT * over a join produces, so there the limit goes into the statement
// itself. Elsewhere the statement is wrapped; the line breaks keep a trailing
// line comment from swallowing the closing parenthesis.
func (p *Planner) limitSQL(st sqlinspect.Statement, n int) (string, int) {
	if p.backend == database.MySQL {
		sql, err := sqlinspect.WithLimit(st.Text, n)
		if err != nil {
			p.log.WithError(err).Debug("cannot add limit, skipping rows instead")
			return "", -1
		}
		return sql, -1
	}
	prefix := "SELECT * FROM (\n"
	return fmt.Sprintf("%s%s\n) AS dv_page LIMIT %d", prefix, st.Text, n), len(prefix)
}

// Outcome is the result of running a script.
type Outcome struct {
	Pages        []*Page
	UpdateCounts []int64
	Elapsed      time.Duration
}
