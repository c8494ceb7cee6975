package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joacominatel/dataview/internal/app"
	"github.com/joacominatel/dataview/internal/config"
	"github.com/joacominatel/dataview/internal/executor"
	"github.com/joacominatel/dataview/internal/logging"
	"github.com/joacominatel/dataview/internal/tui"
	"github.com/joacominatel/dataview/internal/uiloop"
)

// maxConcurrentJobs bounds the jobs running at once across connections.
const maxConcurrentJobs = 4

// options holds the global flags.
type options struct {
	driver      string
	client      string
	dsn         string
	connection  string
	logLevel    string
	metricsAddr string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "dataview",
		Short: "dataview browses and edits SQL query results page by page",
		Long: `dataview runs SQL against PostgreSQL, MySQL or SQLite and shows the results
one page at a time. Rows of single-table results can be edited, inserted and
deleted; every change is written back in a transaction.

Without a subcommand it starts the terminal UI.

Examples:
  dataview --dsn postgresql://app@localhost/shop
  dataview query --dsn shop.db --page 2 "SELECT * FROM orders"
  dataview ddl --connection prod orders`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.driver, "driver", "", "backend of --dsn when it cannot be inferred (postgres, mysql, sqlite)")
	f.StringVar(&opts.client, "client", "", "PostgreSQL client library (pgx or pq)")
	f.StringVar(&opts.dsn, "dsn", "", "connection string, e.g. postgresql://user@localhost/db or a SQLite file")
	f.StringVarP(&opts.connection, "connection", "c", "", "name of a saved connection")
	f.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Start the terminal UI (the default)",
		Args:  cobra.NoArgs,
		RunE:  root.RunE,
	}
	root.AddCommand(tuiCmd, newQueryCmd(opts), newTablesCmd(opts), newDDLCmd(opts), newPageSizeCmd())
	return root
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = &config.Config{}
	}
	return cfg
}

// resolveConnection picks the profile named by the flags. It returns nil
// when neither --dsn nor --connection is given.
func resolveConnection(cfg *config.Config, opts *options) (*config.Connection, error) {
	var conn config.Connection
	switch {
	case opts.dsn != "":
		parsed, err := config.ParseDSN(opts.dsn)
		if err != nil {
			if opts.driver != "sqlite" {
				return nil, err
			}
			// any path is fine once the backend is explicit
			parsed = config.Connection{Name: "sqlite-" + filepath.Base(opts.dsn), Driver: "sqlite", Path: opts.dsn}
		}
		conn = parsed
	case opts.connection != "":
		saved := cfg.FindConnection(opts.connection)
		if saved == nil {
			return nil, fmt.Errorf("no saved connection named %q", opts.connection)
		}
		conn = *saved
	default:
		return nil, nil
	}

	if opts.driver != "" {
		conn.Driver = opts.driver
	}
	if opts.client != "" {
		conn.Client = opts.client
	}
	return &conn, nil
}

// connector opens services sharing one job pool.
func connector(cfg *config.Config, ui uiloop.Dispatcher, log logrus.FieldLogger) tui.Connector {
	pool := executor.NewPool(maxConcurrentJobs)
	return func(ctx context.Context, conn config.Connection) (*app.Service, error) {
		b, err := conn.Backend()
		if err != nil {
			return nil, &app.ErrConfig{Cause: err}
		}
		return app.Open(ctx, b, conn.Client, conn.DSN(), ui, app.Options{
			PageSize:             cfg.PageSize(config.AppID),
			UseScrollableCursors: cfg.Preferences.UseScrollableCursors,
			Logger:               log.WithField("connection", conn.Name),
			Pool:                 pool,
		})
	}
}

// serveMetrics exposes the Prometheus registry until the returned function
// is called.
func serveMetrics(addr string, log logrus.FieldLogger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).WithField("addr", addr).Error("metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func runTUI(ctx context.Context, opts *options) error {
	cfg := loadConfig()

	level := opts.logLevel
	if level == "" {
		level = cfg.Preferences.LogLevel
	}
	dir, err := config.Dir()
	if err != nil {
		return fmt.Errorf("config dir: %w", err)
	}
	// the screen belongs to the UI, so the log goes to a file
	log, closeLog, err := logging.New(logging.Options{Level: level, File: filepath.Join(dir, logging.FileName)})
	if err != nil {
		return err
	}
	defer closeLog()

	stopMetrics := serveMetrics(opts.metricsAddr, log)
	defer stopMetrics()

	initial, err := resolveConnection(cfg, opts)
	if err != nil {
		return err
	}

	dispatcher := tui.NewDispatcher()
	defer dispatcher.Close()

	model := tui.NewModel(cfg, connector(cfg, dispatcher, log), initial, log)
	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	dispatcher.Attach(p)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("running program: %w", err)
	}

	if m, ok := finalModel.(tui.Model); ok && m.Service() != nil {
		_ = m.Service().Disconnect()
	}
	return nil
}
