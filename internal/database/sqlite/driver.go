package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/joacominatel/dataview/internal/database"
)

const (
	queryListTables = `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name`

	queryTableSQL = `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`
)

// hidden values reported by PRAGMA table_xinfo
const (
	hiddenVirtualTable     = 1
	hiddenGeneratedVirtual = 2
	hiddenGeneratedStored  = 3
)

var typeArgs = regexp.MustCompile(`\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)`)

// Driver implements the database.Driver interface for SQLite files.
type Driver struct {
	conn   *database.Connection
	dbName string
}

// New creates a new SQLite driver.
func New() *Driver {
	return &Driver{}
}

// Backend reports database.SQLite.
func (d *Driver) Backend() database.Backend {
	return database.SQLite
}

// Connect opens the database file named by dsn. ":memory:" is accepted.
func (d *Driver) Connect(ctx context.Context, dsn string) error {
	conn, err := database.Open(ctx, "sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	d.conn = conn
	d.dbName = databaseName(dsn)
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

// ListTables returns the user tables of the main database.
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
	name = strings.Trim(name, "\"`[]")

	autoincrement, err := hasAutoincrement(ctx, q, name)
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_xinfo(%s)", database.SQLite.QuoteIdent(name)))
	if err != nil {
		return nil, fmt.Errorf("get columns: %w", err)
	}
	defer rows.Close()

	type pkEntry struct {
		ord  int
		name string
	}
	var pkEntries []pkEntry

	t := &database.Table{Name: name}
	for rows.Next() {
		var cid, notNull, pk, hidden int
		var cname, ctype string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &cname, &ctype, &notNull, &dflt, &pk, &hidden); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		if hidden == hiddenVirtualTable {
			continue
		}
		col := database.Column{
			Name:        cname,
			Table:       name,
			DataType:    baseType(ctype),
			Kind:        database.KindOf(ctype),
			OrdinalPos:  cid + 1,
			IsNullable:  notNull == 0 && pk == 0,
			IsPrimary:   pk > 0,
			IsGenerated: hidden == hiddenGeneratedVirtual || hidden == hiddenGeneratedStored,
			HasDefault:  dflt.Valid,
			Default:     dflt.String,
		}
		col.Precision, col.Scale = typePrecision(ctype)
		if pk > 0 {
			pkEntries = append(pkEntries, pkEntry{ord: pk, name: cname})
		}
		t.Columns = append(t.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("table %s not found", name)
	}

	sort.Slice(pkEntries, func(i, j int) bool { return pkEntries[i].ord < pkEntries[j].ord })
	for _, e := range pkEntries {
		t.PrimaryKey = append(t.PrimaryKey, e.name)
	}
	// AUTOINCREMENT is only legal on a single INTEGER PRIMARY KEY
	if autoincrement && len(t.PrimaryKey) == 1 {
		for i := range t.Columns {
			if t.Columns[i].IsPrimary {
				t.Columns[i].IsIdentity = true
			}
		}
	}
	return t, nil
}

// DatabaseName returns the file name of the database.
func (d *Driver) DatabaseName() string {
	return d.dbName
}

func hasAutoincrement(ctx context.Context, q database.Querier, name string) (bool, error) {
	rows, err := q.QueryContext(ctx, queryTableSQL, name)
	if err != nil {
		return false, fmt.Errorf("table sql: %w", err)
	}
	defer rows.Close()

	var ddl sql.NullString
	if rows.Next() {
		if err := rows.Scan(&ddl); err != nil {
			return false, fmt.Errorf("scan table sql: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return strings.Contains(strings.ToUpper(ddl.String), "AUTOINCREMENT"), nil
}

func baseType(declared string) string {
	if i := strings.IndexByte(declared, '('); i >= 0 {
		return strings.TrimSpace(declared[:i])
	}
	return strings.TrimSpace(declared)
}

func typePrecision(declared string) (precision, scale int) {
	m := typeArgs.FindStringSubmatch(declared)
	if m == nil {
		return 0, 0
	}
	precision, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		scale, _ = strconv.Atoi(m[2])
	}
	return precision, scale
}

func databaseName(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == ":memory:" || path == "" {
		return "memory"
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
