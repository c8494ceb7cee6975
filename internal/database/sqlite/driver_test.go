package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/dataview/internal/database"
)

func setupDriver(t *testing.T) *Driver {
	t.Helper()
	d := New()
	require.NoError(t, d.Connect(context.Background(), ":memory:"))
	t.Cleanup(func() { d.Close() })

	_, err := d.Conn().ExecContext(context.Background(), `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name VARCHAR(40) NOT NULL,
			balance DECIMAL(10,2) DEFAULT 0,
			avatar BLOB,
			upper_name TEXT GENERATED ALWAYS AS (upper(name)) VIRTUAL
		);
		CREATE TABLE memberships (
			user_id INTEGER NOT NULL,
			group_id INTEGER NOT NULL,
			role TEXT,
			PRIMARY KEY (group_id, user_id)
		);
		CREATE TABLE notes (body TEXT);`)
	require.NoError(t, err)
	return d
}

func TestListTables(t *testing.T) {
	d := setupDriver(t)

	tables, err := d.ListTables(context.Background(), d.Conn())
	require.NoError(t, err)
	// sqlite_sequence is internal
	assert.Equal(t, []string{"memberships", "notes", "users"}, tables)
}

func TestDescribeTable(t *testing.T) {
	d := setupDriver(t)

	table, err := d.DescribeTable(context.Background(), d.Conn(), "users")
	require.NoError(t, err)

	assert.Equal(t, "users", table.QualifiedName())
	assert.Equal(t, []string{"id"}, table.PrimaryKey)
	require.Len(t, table.Columns, 5)

	id := table.Columns[0]
	assert.True(t, id.IsPrimary)
	assert.True(t, id.IsIdentity)
	assert.False(t, id.IsNullable)
	assert.Equal(t, database.KindNumeric, id.Kind)

	name := table.Columns[1]
	assert.Equal(t, "VARCHAR", name.DataType)
	assert.Equal(t, 40, name.Precision)
	assert.Equal(t, database.KindCharacter, name.Kind)
	assert.False(t, name.IsNullable)

	balance := table.Columns[2]
	assert.Equal(t, 10, balance.Precision)
	assert.Equal(t, 2, balance.Scale)
	assert.True(t, balance.HasDefault)
	assert.Equal(t, "0", balance.Default)

	assert.Equal(t, database.KindBinary, table.Columns[3].Kind)

	upper, ok := table.Column("UPPER_NAME")
	require.True(t, ok)
	assert.True(t, upper.IsGenerated)
	assert.False(t, upper.Writable())
}

func TestDescribeTableCompositeKey(t *testing.T) {
	d := setupDriver(t)

	table, err := d.DescribeTable(context.Background(), d.Conn(), "memberships")
	require.NoError(t, err)
	assert.Equal(t, []string{"group_id", "user_id"}, table.PrimaryKey)
	for _, c := range table.Columns {
		assert.False(t, c.IsIdentity, c.Name)
	}

	notes, err := d.DescribeTable(context.Background(), d.Conn(), "notes")
	require.NoError(t, err)
	assert.False(t, notes.HasPrimaryKey())
}

func TestDescribeMissingTable(t *testing.T) {
	d := setupDriver(t)

	_, err := d.DescribeTable(context.Background(), d.Conn(), "nope")
	assert.Error(t, err)
}

func TestDatabaseName(t *testing.T) {
	assert.Equal(t, "memory", databaseName(":memory:"))
	assert.Equal(t, "shop", databaseName("/var/data/shop.db"))
	assert.Equal(t, "shop", databaseName("file:shop.sqlite?cache=shared"))
}
