package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/executor"
	"github.com/joacominatel/dataview/internal/fetch"
	"github.com/joacominatel/dataview/internal/page"
	"github.com/joacominatel/dataview/internal/sqlgen"
	"github.com/joacominatel/dataview/internal/sqlinspect"
	"github.com/joacominatel/dataview/internal/uiloop"
)

// SchemaTree represents the loaded schema hierarchy for the explorer.
type SchemaTree struct {
	Database string
	Schemas  []SchemaNode
}

// SchemaNode holds a schema name and its tables.
type SchemaNode struct {
	Name   string
	Tables []string
}

// Options configure a Service.
type Options struct {
	// PageSize is the initial page size of new page contexts; 0 shows all
	// rows and a negative value selects page.DefaultSize.
	PageSize             int
	UseScrollableCursors bool
	Logger               logrus.FieldLogger
	// Pool is shared between services; nil gives each its own.
	Pool *executor.Pool
}

// Execution is the result of running a script: one page context per result
// set and the update counts of the other statements, in script order.
type Execution struct {
	Query        string
	Pages        []*PageContext
	UpdateCounts []int64
	Elapsed      time.Duration
}

// Service coordinates application-level operations between the UI and the
// database. Every database call goes through one executor, so the shared
// connection never runs two statements at once.
type Service struct {
	driver database.Driver
	ui     uiloop.Dispatcher
	opts   Options
	log    logrus.FieldLogger

	planner *fetch.Planner
	gen     *sqlgen.Generator
	exec    *executor.Executor

	mu       sync.Mutex
	pageSize int
	tables   map[string]*database.Table
}

// NewService creates a new application service. Results of asynchronous
// work are delivered through ui.
func NewService(driver database.Driver, ui uiloop.Dispatcher, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.PageSize < 0 {
		opts.PageSize = page.DefaultSize
	}
	if ui == nil {
		ui = uiloop.Inline{}
	}
	return &Service{
		driver:   driver,
		ui:       ui,
		opts:     opts,
		log:      opts.Logger,
		pageSize: opts.PageSize,
		tables:   make(map[string]*database.Table),
	}
}

// Connect establishes a database connection.
func (s *Service) Connect(ctx context.Context, dsn string) error {
	if err := s.driver.Connect(ctx, dsn); err != nil {
		return &ErrConnection{Cause: err}
	}
	b := s.driver.Backend()
	s.planner = fetch.NewPlanner(b, fetch.Options{UseScrollableCursors: s.opts.UseScrollableCursors}, s.log)
	s.gen = sqlgen.New(b)
	s.exec = executor.New(s.driver.Conn(), s.opts.Pool, s.ui, s.log)

	s.log.WithFields(logrus.Fields{
		"backend":  b.String(),
		"database": s.driver.DatabaseName(),
	}).Info("connected")
	return nil
}

// Disconnect cancels outstanding jobs and closes the database connection.
func (s *Service) Disconnect() error {
	if s.exec != nil {
		s.exec.Close()
		s.exec = nil
	}
	return s.driver.Close()
}

// DatabaseName returns the current database name.
func (s *Service) DatabaseName() string {
	return s.driver.DatabaseName()
}

// Backend returns the backend of the connection.
func (s *Service) Backend() database.Backend {
	return s.driver.Backend()
}

// PageSize returns the page size for new page contexts.
func (s *Service) PageSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageSize
}

// SetPageSize changes the page size for new page contexts.
func (s *Service) SetPageSize(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	s.pageSize = n
	s.mu.Unlock()
}

// State reports what the executor is doing.
func (s *Service) State() executor.State {
	if s.exec == nil {
		return executor.StateIdle
	}
	return s.exec.State()
}

// Cancel cancels the running job.
func (s *Service) Cancel() {
	if s.exec != nil {
		s.exec.Cancel()
	}
}

// submit queues a job on the connection.
func (s *Service) submit(ctx context.Context, job *executor.Job) (*executor.Handle, error) {
	if s.exec == nil {
		return nil, ErrNotConnected
	}
	return s.exec.Submit(ctx, job)
}

// call runs fn as a job and waits for it. Cancelling ctx cancels the job.
func (s *Service) call(ctx context.Context, kind executor.Kind, name string, transactional bool, fn executor.RunFunc) (executor.Result, error) {
	h, err := s.submit(ctx, executor.NewJob(kind, name, transactional, fn))
	if err != nil {
		return executor.Result{}, err
	}
	r, err := h.Wait(ctx)
	if err != nil {
		h.Cancel()
		return r, err
	}
	return r, r.Err
}

// ListTables returns the tables of the connected database.
func (s *Service) ListTables(ctx context.Context) ([]string, error) {
	var tables []string
	_, err := s.call(ctx, executor.KindQuery, "list tables", false, func(ctx context.Context, q database.Querier) (int64, error) {
		var err error
		tables, err = s.driver.ListTables(ctx, q)
		return int64(len(tables)), err
	})
	return tables, err
}

// LoadSchemaTree groups the tables of the connected database by schema.
func (s *Service) LoadSchemaTree(ctx context.Context) (*SchemaTree, error) {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	tree := &SchemaTree{Database: s.driver.DatabaseName()}
	bySchema := make(map[string][]string)
	for _, t := range tables {
		schema, name := "", t
		if i := strings.LastIndexByte(t, '.'); i >= 0 {
			schema, name = t[:i], t[i+1:]
		}
		bySchema[schema] = append(bySchema[schema], name)
	}
	names := make([]string, 0, len(bySchema))
	for name := range bySchema {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tree.Schemas = append(tree.Schemas, SchemaNode{Name: name, Tables: bySchema[name]})
	}
	return tree, nil
}

// DescribeTable returns the metadata of a table.
func (s *Service) DescribeTable(ctx context.Context, name string) (*database.Table, error) {
	var table *database.Table
	_, err := s.call(ctx, executor.KindQuery, "describe "+name, false, func(ctx context.Context, q database.Querier) (int64, error) {
		var err error
		table, err = s.describe(ctx, q, name)
		return 0, err
	})
	return table, err
}

// describe loads table metadata on q, caching it per table name.
func (s *Service) describe(ctx context.Context, q database.Querier, name string) (*database.Table, error) {
	key := strings.ToLower(name)
	s.mu.Lock()
	t, ok := s.tables[key]
	s.mu.Unlock()
	if ok {
		return t, nil
	}

	t, err := s.driver.DescribeTable(ctx, q, name)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.tables[key] = t
	s.mu.Unlock()
	return t, nil
}

// ForgetTables drops cached table metadata, after DDL for instance.
func (s *Service) ForgetTables() {
	s.mu.Lock()
	s.tables = make(map[string]*database.Table)
	s.mu.Unlock()
}

// CreateTableStatement reconstructs the CREATE TABLE statement of a table.
func (s *Service) CreateTableStatement(ctx context.Context, name string) (string, error) {
	t, err := s.DescribeTable(ctx, name)
	if err != nil {
		return "", err
	}
	return s.gen.CreateTable(t), nil
}

// Execute runs a script and blocks until the first page of every result
// set is loaded. Later navigation and edits on the returned page contexts
// are asynchronous. On failure the statements that completed are still
// reported alongside the error.
func (s *Service) Execute(ctx context.Context, query string) (*Execution, error) {
	if s.exec == nil {
		return nil, ErrNotConnected
	}
	pageSize := s.PageSize()
	ex := &Execution{Query: query}

	var runErr error
	r, err := s.call(ctx, executor.KindQuery, "execute", s.planner.NeedsTransaction(query), func(ctx context.Context, q database.Querier) (int64, error) {
		out, err := s.planner.Execute(ctx, q, query, fetch.Request{Offset: 1, PageSize: pageSize})
		if out != nil {
			ex.UpdateCounts = out.UpdateCounts
			for _, p := range out.Pages {
				ex.Pages = append(ex.Pages, s.newPageContext(ctx, q, p, pageSize))
			}
		}
		if err != nil {
			runErr = err
			return 0, err
		}
		var rows int64
		for _, pc := range ex.Pages {
			rows += int64(pc.grid.RowCount())
		}
		return rows, nil
	})
	ex.Elapsed = r.Elapsed

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ex, err
		}
		if runErr == nil {
			runErr = err
		}
		return ex, newQueryError(query, runErr)
	}
	if hasMutation(query) {
		s.ForgetTables()
	}
	return ex, nil
}

// hasMutation reports whether a script may have changed table definitions.
func hasMutation(script string) bool {
	for _, st := range sqlinspect.Parse(script) {
		fields := strings.Fields(st.Text)
		if len(fields) == 0 {
			continue
		}
		switch strings.ToUpper(fields[0]) {
		case "CREATE", "ALTER", "DROP", "RENAME":
			return true
		}
	}
	return false
}
