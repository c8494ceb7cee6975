package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/joacominatel/dataview/internal/database"
)

// Client names the database/sql driver used to talk to PostgreSQL.
const (
	ClientPgx = "pgx"
	ClientPq  = "postgres"
)

const defaultSchema = "public"

// Driver implements the database.Driver interface for PostgreSQL.
type Driver struct {
	client string
	conn   *database.Connection
	dbName string
}

// New creates a new PostgreSQL driver. An empty client selects pgx.
func New(client string) *Driver {
	switch client {
	case "pq", ClientPq:
		client = ClientPq
	default:
		client = ClientPgx
	}
	return &Driver{client: client}
}

// Backend reports database.PostgreSQL.
func (d *Driver) Backend() database.Backend {
	return database.PostgreSQL
}

// Connect opens the session connection.
func (d *Driver) Connect(ctx context.Context, dsn string) error {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}

	conn, err := database.Open(ctx, d.client, dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	d.conn = conn
	d.dbName = cfg.Database
	return nil
}

// Close closes the connection.
func (d *Driver) Close() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}

// Ping checks if the connection is alive.
func (d *Driver) Ping(ctx context.Context) error {
	return d.conn.Ping(ctx)
}

// Conn returns the session connection, or nil before Connect.
func (d *Driver) Conn() *sql.Conn {
	if d.conn == nil {
		return nil
	}
	return d.conn.Conn
}

// ListTables returns all user tables. Tables outside the public schema are
// schema-qualified.
func (d *Driver) ListTables(ctx context.Context, q database.Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, queryListTables)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		if schema != defaultSchema {
			name = schema + "." + name
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// DescribeTable returns column metadata and the primary key of a table.
func (d *Driver) DescribeTable(ctx context.Context, q database.Querier, name string) (*database.Table, error) {
	schema, table := splitName(name)

	rows, err := q.QueryContext(ctx, queryGetColumns, schema, table)
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	defer rows.Close()

	t := &database.Table{Schema: schema, Name: table}
	for rows.Next() {
		col := database.Column{Table: table}
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &col.Default, &col.OrdinalPos,
			&col.IsPrimary, &col.IsIdentity, &col.IsGenerated, &col.Precision, &col.Scale); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.IsNullable = nullable == "YES"
		col.HasDefault = col.Default != ""
		col.Kind = database.KindOf(col.DataType)
		// serial columns are identities in all but name
		if strings.HasPrefix(col.Default, "nextval(") {
			col.IsIdentity = true
		}
		t.Columns = append(t.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("table %s not found", t.QualifiedName())
	}

	pk, err := q.QueryContext(ctx, queryPrimaryKey, schema, table)
	if err != nil {
		return nil, fmt.Errorf("primary key: %w", err)
	}
	defer pk.Close()
	for pk.Next() {
		var col string
		if err := pk.Scan(&col); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		t.PrimaryKey = append(t.PrimaryKey, col)
	}
	return t, pk.Err()
}

// DatabaseName returns the name of the connected database.
func (d *Driver) DatabaseName() string {
	return d.dbName
}

func splitName(name string) (schema, table string) {
	name = strings.ReplaceAll(name, `"`, "")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return defaultSchema, name
}
