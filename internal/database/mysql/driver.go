package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/joacominatel/dataview/internal/database"
)

// Driver implements the database.Driver interface for MySQL and MariaDB.
type Driver struct {
	conn   *database.Connection
	dbName string
}

// New creates a new MySQL driver.
func New() *Driver {
	return &Driver{}
}

// Backend reports database.MySQL.
func (d *Driver) Backend() database.Backend {
	return database.MySQL
}

// Connect opens the session connection. Multi-statement scripts and
// time parsing are always enabled.
func (d *Driver) Connect(ctx context.Context, dsn string) error {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MultiStatements = true
	cfg.ParseTime = true

	conn, err := database.Open(ctx, "mysql", cfg.FormatDSN())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	d.conn = conn
	d.dbName = cfg.DBName
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

// ListTables returns the base tables of the current database.
func (d *Driver) ListTables(ctx context.Context, q database.Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, queryListTables)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
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

	t := &database.Table{Name: table}
	if schema.Valid {
		t.Schema = schema.String
	}
	for rows.Next() {
		col := database.Column{Table: table}
		var nullable, extra string
		var dflt sql.NullString
		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &dflt, &col.OrdinalPos,
			&col.IsPrimary, &extra, &col.Precision, &col.Scale); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.IsNullable = nullable == "YES"
		col.HasDefault = dflt.Valid
		col.Default = dflt.String
		col.Kind = database.KindOf(col.DataType)
		extra = strings.ToLower(extra)
		col.IsIdentity = strings.Contains(extra, "auto_increment")
		col.IsGenerated = strings.Contains(extra, "generated")
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

func splitName(name string) (sql.NullString, string) {
	name = strings.ReplaceAll(name, "`", "")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return sql.NullString{String: name[:i], Valid: true}, name[i+1:]
	}
	return sql.NullString{}, name
}
