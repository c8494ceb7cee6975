package fetch

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/sqlinspect"
)

func newMock(t *testing.T, matcher sqlmock.QueryMatcher) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(matcher))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func peopleRows(mock sqlmock.Sqlmock, from, to int64) *sqlmock.Rows {
	rows := mock.NewRowsWithColumnDefinition(
		mock.NewColumn("id").OfType("INT4", int64(0)),
		mock.NewColumn("name").OfType("TEXT", ""),
	)
	for i := from; i <= to; i++ {
		rows.AddRow(i, "person")
	}
	return rows
}

func TestAbsolutePositionsCursor(t *testing.T) {
	db, mock := newMock(t, sqlmock.QueryMatcherEqual)
	p := newPlanner(database.PostgreSQL, Options{UseScrollableCursors: true})
	st := sqlinspect.Inspect("SELECT id, name FROM people ORDER BY id")

	mock.ExpectExec("DECLARE dv_cursor SCROLL CURSOR FOR SELECT id, name FROM people ORDER BY id").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("MOVE ABSOLUTE 20 IN dv_cursor").WillReturnResult(sqlmock.NewResult(0, 20))
	mock.ExpectQuery("FETCH FORWARD 10 FROM dv_cursor").WillReturnRows(peopleRows(mock, 21, 25))
	mock.ExpectExec("CLOSE dv_cursor").WillReturnResult(sqlmock.NewResult(0, 0))

	page, err := p.FetchPage(context.Background(), db, st, 0, Request{Offset: 21, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, Absolute, page.Strategy)
	assert.Equal(t, seq(21, 25), ids(page))
	assert.Equal(t, 20, page.Stats.Skipped)
	assert.Equal(t, 5, page.Stats.Rows)
}

func TestAbsoluteFirstPageFetchesAll(t *testing.T) {
	db, mock := newMock(t, sqlmock.QueryMatcherEqual)
	p := newPlanner(database.PostgreSQL, Options{UseScrollableCursors: true})
	st := sqlinspect.Inspect("SELECT id, name FROM people")

	// no MOVE for the first row
	mock.ExpectExec("DECLARE dv_cursor SCROLL CURSOR FOR SELECT id, name FROM people").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FETCH ALL FROM dv_cursor").WillReturnRows(peopleRows(mock, 1, 3))
	mock.ExpectExec("CLOSE dv_cursor").WillReturnResult(sqlmock.NewResult(0, 0))

	page, err := p.FetchPage(context.Background(), db, st, 0, Request{Offset: 1, PageSize: 0})
	require.NoError(t, err)
	assert.Equal(t, seq(1, 3), ids(page))
}

func TestAbsoluteClosesCursorOnError(t *testing.T) {
	db, mock := newMock(t, sqlmock.QueryMatcherEqual)
	p := newPlanner(database.PostgreSQL, Options{UseScrollableCursors: true})
	st := sqlinspect.Inspect("SELECT id, name FROM people")

	mock.ExpectExec("DECLARE dv_cursor SCROLL CURSOR FOR SELECT id, name FROM people").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("MOVE ABSOLUTE 10 IN dv_cursor").WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectQuery("FETCH FORWARD 10 FROM dv_cursor").WillReturnError(errors.New("connection reset"))
	mock.ExpectExec("CLOSE dv_cursor").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := p.FetchPage(context.Background(), db, st, 0, Request{Offset: 11, PageSize: 10})
	var se *database.StatementError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, st.Text, se.SQL)
	assert.Equal(t, -1, se.Position)
}

func TestAbsoluteDeclareError(t *testing.T) {
	db, mock := newMock(t, sqlmock.QueryMatcherEqual)
	p := newPlanner(database.PostgreSQL, Options{UseScrollableCursors: true})
	st := sqlinspect.Inspect("SELECT id FROM missing")

	mock.ExpectExec("DECLARE dv_cursor SCROLL CURSOR FOR SELECT id FROM missing").
		WillReturnError(errors.New(`relation "missing" does not exist`))

	_, err := p.FetchPage(context.Background(), db, st, 0, Request{Offset: 1, PageSize: 10})
	var se *database.StatementError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "missing")
}

func TestExecuteMultipleResultSets(t *testing.T) {
	db, mock := newMock(t, sqlmock.QueryMatcherEqual)
	p := newPlanner(database.MySQL, Options{})

	mock.ExpectQuery("CALL report()").WillReturnRows(peopleRows(mock, 1, 12), peopleRows(mock, 100, 101))
	mock.ExpectExec("UPDATE people SET name = 'x' WHERE id = 1").WillReturnResult(sqlmock.NewResult(0, 1))

	out, err := p.Execute(context.Background(), db, "CALL report(); UPDATE people SET name = 'x' WHERE id = 1", Request{Offset: 1, PageSize: 10})
	require.NoError(t, err)

	require.Len(t, out.Pages, 2)
	assert.Equal(t, 0, out.Pages[0].ResultSet)
	assert.Equal(t, seq(1, 10), ids(out.Pages[0]))
	assert.Equal(t, 1, out.Pages[1].ResultSet)
	assert.Equal(t, seq(100, 101), ids(out.Pages[1]))
	for _, page := range out.Pages {
		assert.Equal(t, Skip, page.Strategy)
	}
	assert.Equal(t, []int64{1}, out.UpdateCounts)
}

func TestFetchPageOfLaterResultSet(t *testing.T) {
	db, mock := newMock(t, sqlmock.QueryMatcherEqual)
	p := newPlanner(database.MySQL, Options{})
	st := sqlinspect.Inspect("CALL report()")

	mock.ExpectQuery("CALL report()").WillReturnRows(peopleRows(mock, 1, 2), peopleRows(mock, 100, 130))

	page, err := p.FetchPage(context.Background(), db, st, 1, Request{Offset: 11, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.ResultSet)
	assert.Equal(t, seq(110, 119), ids(page))
}

func TestMySQLLimitGoesIntoStatement(t *testing.T) {
	db, mock := newMock(t, sqlmock.QueryMatcherRegexp)
	p := newPlanner(database.MySQL, Options{})
	st := sqlinspect.Inspect("SELECT * FROM a JOIN b ON a.id = b.a_id")
	require.Equal(t, Limit, p.Choose(st))

	// a derived table would fail on the two id columns
	mock.ExpectQuery(`^SELECT \* FROM [^(]*JOIN[^(]* LIMIT 20$`).
		WillReturnRows(peopleRows(mock, 1, 20))

	page, err := p.FetchPage(context.Background(), db, st, 0, Request{Offset: 11, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, Limit, page.Strategy)
	assert.Equal(t, seq(11, 20), ids(page))
}

func TestMySQLUnparsedStatementSkips(t *testing.T) {
	db, mock := newMock(t, sqlmock.QueryMatcherEqual)
	p := newPlanner(database.MySQL, Options{})
	st := sqlinspect.Inspect(`SELECT * FROM "people"`)
	require.False(t, st.Parsed)

	mock.ExpectQuery(`SELECT * FROM "people"`).WillReturnRows(peopleRows(mock, 1, 15))

	page, err := p.FetchPage(context.Background(), db, st, 0, Request{Offset: 11, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, Skip, page.Strategy)
	assert.Equal(t, seq(11, 15), ids(page))
}

func TestMySQLCountRowsReadsThrough(t *testing.T) {
	db, mock := newMock(t, sqlmock.QueryMatcherEqual)
	p := newPlanner(database.MySQL, Options{})
	st := sqlinspect.Inspect("SELECT * FROM a JOIN b ON a.id = b.a_id")

	mock.ExpectQuery("SELECT * FROM a JOIN b ON a.id = b.a_id").WillReturnRows(peopleRows(mock, 1, 7))

	n, err := p.CountRows(context.Background(), db, st)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
