package database

import (
	"context"
	"database/sql"
)

// Querier is the part of a connection a job talks to. Both *sql.Conn and
// *sql.Tx satisfy it, so a job does not care whether it runs in a transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Driver defines the interface for database operations.
// The shared connection returned by Conn is used by one job at a time;
// serializing access is the executor's responsibility.
type Driver interface {
	// Backend identifies the database product behind the driver.
	Backend() Backend

	// Connect establishes the long-lived connection.
	Connect(ctx context.Context, dsn string) error

	// Close closes the database connection.
	Close() error

	// Ping checks if the connection is alive.
	Ping(ctx context.Context) error

	// Conn returns the single connection all statements run on.
	Conn() *sql.Conn

	// ListTables returns the user tables visible on the connection.
	ListTables(ctx context.Context, q Querier) ([]string, error)

	// DescribeTable returns column and primary-key metadata for a table.
	DescribeTable(ctx context.Context, q Querier, name string) (*Table, error)

	// DatabaseName returns the name of the connected database.
	DatabaseName() string
}
