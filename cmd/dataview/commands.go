package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/joacominatel/dataview/internal/app"
	"github.com/joacominatel/dataview/internal/config"
	"github.com/joacominatel/dataview/internal/executor"
	"github.com/joacominatel/dataview/internal/logging"
	"github.com/joacominatel/dataview/internal/tui/results"
	"github.com/joacominatel/dataview/internal/uiloop"
)

// openSession connects with the global flags, or the default saved
// connection. Page jobs complete inline since there is no UI loop.
func openSession(cmd *cobra.Command, opts *options) (*app.Service, func(), error) {
	cfg := loadConfig()

	level := opts.logLevel
	if level == "" {
		level = "warn"
	}
	log, closeLog, err := logging.New(logging.Options{Level: level, Output: cmd.ErrOrStderr()})
	if err != nil {
		return nil, nil, err
	}

	conn, err := resolveConnection(cfg, opts)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	if conn == nil {
		conn = config.DefaultConnection(cfg)
	}
	if conn == nil {
		closeLog()
		return nil, nil, errors.New("no connection: pass --dsn or --connection, or save one from the UI")
	}
	if err := config.ResolvePassword(conn); err != nil {
		log.WithError(err).WithField("connection", conn.Name).Warn("keyring lookup failed")
	}

	stopMetrics := serveMetrics(opts.metricsAddr, log)
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	svc, err := connector(cfg, uiloop.Inline{}, log)(ctx, *conn)
	if err != nil {
		stopMetrics()
		closeLog()
		return nil, nil, err
	}

	closeAll := func() {
		_ = svc.Disconnect()
		stopMetrics()
		closeLog()
	}
	return svc, closeAll, nil
}

func newQueryCmd(opts *options) *cobra.Command {
	var (
		pageNumber int
		pageSize   int
	)
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a script and print one page of each result set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeSession, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer closeSession()

			if cmd.Flags().Changed("page-size") {
				svc.SetPageSize(pageSize)
			}
			return runQuery(cmd.Context(), cmd.OutOrStdout(), svc, args[0], pageNumber)
		},
	}
	cmd.Flags().IntVar(&pageNumber, "page", 1, "page to print, counting from 1")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "rows per page, 0 for all (default: saved page size)")
	return cmd
}

func runQuery(ctx context.Context, out io.Writer, svc *app.Service, query string, pageNumber int) error {
	ex, err := svc.Execute(ctx, query)
	if ex != nil {
		for i, pc := range ex.Pages {
			if len(ex.Pages) > 1 {
				fmt.Fprintf(out, "-- result %d\n", i+1)
			}
			if err := seekPage(ctx, pc, pageNumber); err != nil {
				return err
			}
			renderPage(out, pc)
		}
		for _, n := range ex.UpdateCounts {
			fmt.Fprintf(out, "%d row(s) affected\n", n)
		}
		fmt.Fprintf(out, "(%s)\n", ex.Elapsed.Round(time.Millisecond))
	}
	return err
}

// seekPage moves pc forward to page n, stopping at the last page. A full
// last page still reports more rows, so an empty page means one step too far.
func seekPage(ctx context.Context, pc *app.PageContext, n int) error {
	for pc.Cursor().PageNumber() < n {
		err := waitFor(ctx)(pc.Next(ctx))
		if errors.Is(err, app.ErrNoPage) {
			return nil
		}
		if err != nil {
			return err
		}
		if pc.Grid().RowCount() == 0 && pc.HasPrevious() {
			return waitFor(ctx)(pc.Previous(ctx))
		}
	}
	return nil
}

// waitFor returns a function that waits for a submitted page job.
func waitFor(ctx context.Context) func(*executor.Handle, error) error {
	return func(h *executor.Handle, err error) error {
		if err != nil {
			return err
		}
		r, err := h.Wait(ctx)
		if err != nil {
			return err
		}
		return r.Err
	}
}

func renderPage(out io.Writer, pc *app.PageContext) {
	g := pc.Grid()

	table := tablewriter.NewWriter(out)
	headers := make([]string, 0, g.ColumnCount())
	for _, c := range g.Columns() {
		headers = append(headers, c.Name)
	}
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	for r := 0; r < g.RowCount(); r++ {
		row := make([]string, g.ColumnCount())
		for c := range row {
			row[c] = results.FormatValue(g.Value(r, c))
		}
		table.Append(row)
	}
	table.Render()

	c := pc.Cursor()
	n := g.RowCount()
	if n == 0 {
		fmt.Fprintf(out, "page %d, no rows\n", c.PageNumber())
		return
	}
	more := ""
	if pc.HasNext() {
		more = ", more available"
	}
	fmt.Fprintf(out, "page %d, rows %d-%d%s\n", c.PageNumber(), c.Offset(), c.Offset()+n-1, more)
}

func newTablesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeSession, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer closeSession()

			tables, err := svc.ListTables(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func newDDLCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ddl <table>",
		Short: "Print the CREATE TABLE statement of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeSession, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer closeSession()

			ddl, err := svc.CreateTableStatement(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ddl)
			return nil
		},
	}
}

func newPageSizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pagesize [n]",
		Short: "Show or store the page size, 0 for all rows",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cfg.PageSize(config.AppID))
				return nil
			}
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid page size %q", args[0])
			}
			cfg.SetPageSize(config.AppID, n)
			return config.Save(cfg)
		},
	}
}
