package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/database/sqlite"
	"github.com/joacominatel/dataview/internal/executor"
	"github.com/joacominatel/dataview/internal/sqlgen"
	"github.com/joacominatel/dataview/internal/uiloop"
)

type harness struct {
	t    *testing.T
	loop *uiloop.Loop
	svc  *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	loop := uiloop.New()
	log, _ := test.NewNullLogger()

	driver := sqlite.New()
	svc := NewService(driver, loop, Options{PageSize: 10, Logger: log})
	require.NoError(t, svc.Connect(ctx, ":memory:"))
	t.Cleanup(func() {
		svc.Disconnect()
		loop.Close()
	})

	_, err := driver.Conn().ExecContext(ctx, `
		CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT);
		INSERT INTO people (id, name, email)
		WITH RECURSIVE seq(n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM seq WHERE n < 25)
		SELECT n, 'person ' || n, NULL FROM seq;
		UPDATE people SET name = 'Alice' WHERE id = 3;`)
	require.NoError(t, err)
	return &harness{t: t, loop: loop, svc: svc}
}

// onLoop runs fn on the UI loop and waits for it.
func (h *harness) onLoop(fn func()) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(h.t, h.loop.Call(ctx, fn))
}

// wait blocks until the job is done and its continuation has run.
func (h *harness) wait(handle *executor.Handle, err error) executor.Result {
	h.t.Helper()
	require.NoError(h.t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := handle.Wait(ctx)
	require.NoError(h.t, err)
	h.onLoop(func() {})
	return r
}

func (h *harness) query(sql string) *PageContext {
	h.t.Helper()
	ex, err := h.svc.Execute(context.Background(), sql)
	require.NoError(h.t, err)
	require.Len(h.t, ex.Pages, 1)
	return ex.Pages[0]
}

func (h *harness) scalar(sql string) any {
	h.t.Helper()
	pc := h.query(sql)
	var v any
	h.onLoop(func() {
		require.Equal(h.t, 1, pc.Grid().RowCount())
		v = pc.Grid().Value(0, 0)
	})
	return v
}

func pageIDs(pc *PageContext) []int64 {
	var out []int64
	for i := 0; i < pc.Grid().RowCount(); i++ {
		out = append(out, pc.Grid().Value(i, 0).(int64))
	}
	return out
}

func idRange(from, to int64) []int64 {
	var out []int64
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func TestNavigateTwentyFiveRows(t *testing.T) {
	h := newHarness(t)
	pc := h.query("SELECT id, name, email FROM people ORDER BY id")

	events := 0
	h.onLoop(func() {
		pc.Subscribe(func(PageEvent) { events++ })
		assert.Equal(t, idRange(1, 10), pageIDs(pc))
		assert.True(t, pc.HasNext())
		assert.False(t, pc.HasPrevious())
	})

	var handle *executor.Handle
	var err error
	h.onLoop(func() { handle, err = pc.Next(context.Background()) })
	h.wait(handle, err)
	h.onLoop(func() {
		assert.Equal(t, idRange(11, 20), pageIDs(pc))
		assert.True(t, pc.HasNext())
		assert.True(t, pc.HasPrevious())
	})

	h.onLoop(func() { handle, err = pc.Next(context.Background()) })
	h.wait(handle, err)
	h.onLoop(func() {
		assert.Equal(t, idRange(21, 25), pageIDs(pc))
		assert.False(t, pc.HasNext())
		assert.True(t, pc.IsLastPage())
		assert.Equal(t, 3, pc.Cursor().PageNumber())

		_, err := pc.Next(context.Background())
		assert.ErrorIs(t, err, ErrNoPage)
	})

	h.onLoop(func() { handle, err = pc.Previous(context.Background()) })
	h.wait(handle, err)
	h.onLoop(func() {
		assert.Equal(t, idRange(11, 20), pageIDs(pc))
		assert.Equal(t, 3, events)
	})

	h.onLoop(func() { handle, err = pc.First(context.Background()) })
	h.wait(handle, err)
	h.onLoop(func() {
		assert.Equal(t, idRange(1, 10), pageIDs(pc))
		assert.Equal(t, 1, pc.Cursor().Offset())
	})
}

func TestCommitEditedCell(t *testing.T) {
	h := newHarness(t)
	pc := h.query("SELECT id, name FROM people ORDER BY id")

	var preview []string
	h.onLoop(func() {
		require.True(t, pc.Editable())
		assert.Equal(t, "Alice", pc.Grid().Value(2, 1))
		require.NoError(t, pc.SetValue(2, 1, "Alicia"))

		var err error
		preview, err = pc.PreviewUpdates()
		require.NoError(t, err)
	})
	assert.Equal(t, []string{"UPDATE people SET name='Alicia' WHERE id=3"}, preview)

	var handle *executor.Handle
	var err error
	h.onLoop(func() { handle, err = pc.CommitUpdates(context.Background()) })
	r := h.wait(handle, err)

	require.NoError(t, r.Err)
	assert.Equal(t, int64(1), r.Count)
	h.onLoop(func() {
		assert.False(t, pc.Grid().IsRowDirty(2))
		assert.Equal(t, "Alicia", pc.Grid().Value(2, 1))
		assert.NoError(t, pc.LastErr())
	})
	assert.Equal(t, "Alicia", h.scalar("SELECT name FROM people WHERE id = 3"))
}

func TestCommitKeepsEditsMadeWhileRunning(t *testing.T) {
	h := newHarness(t)
	pc := h.query("SELECT id, name, email FROM people ORDER BY id")

	var handle *executor.Handle
	var err error
	h.onLoop(func() {
		require.NoError(t, pc.SetValue(0, 1, "Ann"))
		handle, err = pc.CommitUpdates(context.Background())
		// the commit cannot finish before this closure returns
		require.NoError(t, pc.SetValue(0, 2, "late@example.com"))
	})
	r := h.wait(handle, err)
	require.NoError(t, r.Err)

	h.onLoop(func() {
		assert.Equal(t, []int{0}, pc.Grid().DirtyRows())
		assert.False(t, pc.Grid().IsDirty(0, 1))
		assert.True(t, pc.Grid().IsDirty(0, 2))
		handle, err = pc.CommitUpdates(context.Background())
	})
	r = h.wait(handle, err)
	require.NoError(t, r.Err)

	assert.Equal(t, "Ann", h.scalar("SELECT name FROM people WHERE id = 1"))
	assert.Equal(t, "late@example.com", h.scalar("SELECT email FROM people WHERE id = 1"))
}

func TestAliasedColumnsStayEditable(t *testing.T) {
	h := newHarness(t)
	pc := h.query("SELECT p.id, p.name AS name FROM people p WHERE p.id = 3")

	var handle *executor.Handle
	var err error
	h.onLoop(func() {
		require.True(t, pc.Editable())
		require.NoError(t, pc.SetValue(0, 1, "Alicia"))
		handle, err = pc.CommitUpdates(context.Background())
	})
	r := h.wait(handle, err)
	require.NoError(t, r.Err)
	assert.Equal(t, "Alicia", h.scalar("SELECT name FROM people WHERE id = 3"))
}

func TestQueryEndingInLineComment(t *testing.T) {
	h := newHarness(t)
	pc := h.query("SELECT id, name FROM people ORDER BY id -- oldest first")

	h.onLoop(func() {
		assert.Equal(t, idRange(1, 10), pageIDs(pc))
	})
	n, err := pc.CountRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	h.onLoop(func() {
		q, err := pc.FilterQuery(1, "Alice")
		require.NoError(t, err)
		assert.Contains(t, q, "WHERE name = 'Alice'")
	})
}

func TestCommitRollsBackWhenRowIsGone(t *testing.T) {
	h := newHarness(t)
	pc := h.query("SELECT id, name FROM people ORDER BY id")

	h.onLoop(func() {
		require.NoError(t, pc.SetValue(1, 1, "Bea"))
		require.NoError(t, pc.SetValue(0, 1, "Ann"))
	})
	_, err := h.svc.Execute(context.Background(), "DELETE FROM people WHERE id = 1")
	require.NoError(t, err)

	var handle *executor.Handle
	h.onLoop(func() { handle, err = pc.CommitUpdates(context.Background()) })
	r := h.wait(handle, err)

	assert.ErrorIs(t, r.Err, executor.ErrNoMatch)
	assert.Equal(t, executor.StateRolledBack, r.State)
	h.onLoop(func() {
		assert.Equal(t, []int{1, 0}, pc.Grid().DirtyRows())
		assert.ErrorIs(t, pc.LastErr(), executor.ErrNoMatch)
	})
	// the update of row 2 ran first and was rolled back with the batch
	assert.Equal(t, "person 2", h.scalar("SELECT name FROM people WHERE id = 2"))
}

func TestCommitWithoutChanges(t *testing.T) {
	h := newHarness(t)
	pc := h.query("SELECT id, name FROM people ORDER BY id")
	h.onLoop(func() {
		_, err := pc.CommitUpdates(context.Background())
		assert.ErrorIs(t, err, ErrNoChanges)
	})
}

func TestReadOnlyResults(t *testing.T) {
	h := newHarness(t)

	for _, sql := range []string{
		"SELECT id, upper(name) AS shout FROM people",
		"SELECT 1 AS id",
		"SELECT COUNT(*) FROM people",
		// computed values under a column's own name
		"SELECT id + 1 AS id, name FROM people ORDER BY id",
		"SELECT id, upper(name) AS name FROM people",
		"SELECT id, name AS email FROM people",
	} {
		pc := h.query(sql)
		h.onLoop(func() {
			assert.False(t, pc.Editable(), sql)
			assert.ErrorIs(t, pc.SetValue(0, 0, int64(1)), ErrReadOnly, sql)
			_, err := pc.DeleteRows(context.Background(), []int{0})
			assert.ErrorIs(t, err, ErrReadOnly, sql)
		})
	}
}

func TestInsertAndDeleteRefreshPage(t *testing.T) {
	h := newHarness(t)
	pc := h.query("SELECT id, name, email FROM people ORDER BY id DESC")

	refreshed := make(chan executor.Result, 4)
	h.onLoop(func() {
		pc.Subscribe(func(e PageEvent) { refreshed <- e.Result })
	})
	next := func() executor.Result {
		select {
		case r := <-refreshed:
			return r
		case <-time.After(5 * time.Second):
			t.Fatal("no page event")
			return executor.Result{}
		}
	}

	var err error
	h.onLoop(func() {
		_, err = pc.Insert(context.Background(), []any{int64(100), "Zed", sqlgen.Null})
	})
	require.NoError(t, err)
	assert.Equal(t, executor.KindInsert, next().Kind)
	assert.Equal(t, executor.KindQuery, next().Kind)

	h.onLoop(func() {
		assert.Equal(t, int64(100), pc.Grid().Value(0, 0))
		assert.Nil(t, pc.Grid().Value(0, 2))
	})
	n, err := pc.CountRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 26, n)

	h.onLoop(func() {
		_, err = pc.DeleteRows(context.Background(), []int{0, 1})
	})
	require.NoError(t, err)
	r := next()
	require.NoError(t, r.Err)
	assert.Equal(t, int64(2), r.Count)
	next()

	h.onLoop(func() {
		assert.Equal(t, int64(24), pc.Grid().Value(0, 0))
	})
}

func TestInsertValidation(t *testing.T) {
	h := newHarness(t)
	pc := h.query("SELECT id, name FROM people")

	h.onLoop(func() {
		_, err := pc.Insert(context.Background(), []any{int64(200), nil})
		var ve *sqlgen.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "name", ve.Column)

		sql, err := pc.PreviewInsert([]any{int64(200), "O'Neil"})
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO people (id, name) VALUES (200, 'O''Neil')", sql)
	})
}

func TestTruncate(t *testing.T) {
	h := newHarness(t)
	pc := h.query("SELECT id, name FROM people")

	var handle *executor.Handle
	var err error
	h.onLoop(func() { handle, err = pc.Truncate(context.Background()) })
	r := h.wait(handle, err)
	require.NoError(t, r.Err)
	assert.Equal(t, int64(25), r.Count)
	assert.Equal(t, int64(0), h.scalar("SELECT COUNT(*) FROM people"))
}

func TestScriptResults(t *testing.T) {
	h := newHarness(t)

	ex, err := h.svc.Execute(context.Background(), `
		UPDATE people SET email = 'x@example.com' WHERE id <= 2;
		SELECT id FROM people WHERE id <= 3 ORDER BY id;
		SELECT name FROM people WHERE id = 3;`)
	require.NoError(t, err)

	assert.Equal(t, []int64{2}, ex.UpdateCounts)
	require.Len(t, ex.Pages, 2)
	h.onLoop(func() {
		assert.Equal(t, []int64{1, 2, 3}, pageIDs(ex.Pages[0]))
		assert.Equal(t, "Alice", ex.Pages[1].Grid().Value(0, 0))
	})
}

func TestExecuteError(t *testing.T) {
	h := newHarness(t)

	ex, err := h.svc.Execute(context.Background(), "UPDATE people SET email = NULL; SELECT nope FROM people")
	var qe *ErrQuery
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "SELECT nope FROM people", qe.Query)
	assert.Equal(t, -1, qe.Position)
	assert.Equal(t, []int64{25}, ex.UpdateCounts)
}

func TestPageSizeForNewResults(t *testing.T) {
	h := newHarness(t)
	h.svc.SetPageSize(0)
	pc := h.query("SELECT id FROM people")
	h.onLoop(func() {
		assert.Equal(t, 25, pc.Grid().RowCount())
		assert.True(t, pc.IsLastPage())
	})

	h.svc.SetPageSize(7)
	pc = h.query("SELECT id FROM people ORDER BY id")
	var handle *executor.Handle
	var err error
	h.onLoop(func() {
		assert.Equal(t, 7, pc.Grid().RowCount())
		handle, err = pc.SetPageSize(context.Background(), 3)
	})
	h.wait(handle, err)
	h.onLoop(func() {
		assert.Equal(t, idRange(1, 3), pageIDs(pc))
	})
}

func TestMetadata(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tree, err := h.svc.LoadSchemaTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree.Schemas, 1)
	assert.Equal(t, []string{"people"}, tree.Schemas[0].Tables)
	assert.Equal(t, "memory", tree.Database)

	ddl, err := h.svc.CreateTableStatement(ctx, "people")
	require.NoError(t, err)
	assert.Contains(t, ddl, "CREATE TABLE people (")
	assert.Contains(t, ddl, "name TEXT NOT NULL")

	_, err = h.svc.DescribeTable(ctx, "missing")
	assert.Error(t, err)
}

func TestNotConnected(t *testing.T) {
	svc := NewService(sqlite.New(), nil, Options{PageSize: -1})
	assert.Equal(t, 10, svc.PageSize())

	_, err := svc.Execute(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = svc.ListTables(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectError(t *testing.T) {
	svc := NewService(sqlite.New(), nil, Options{})
	err := svc.Connect(context.Background(), "/nonexistent/dir/db.sqlite")
	var ce *ErrConnection
	assert.True(t, errors.As(err, &ce))
}

func TestFilterQuery(t *testing.T) {
	h := newHarness(t)

	pc := h.query("SELECT id, name FROM people ORDER BY id")
	h.onLoop(func() {
		q, err := pc.FilterQuery(1, pc.Grid().Value(2, 1))
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM people WHERE name = 'Alice'", q)

		q, err = pc.FilterQuery(1, nil)
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM people WHERE name IS NULL", q)

		_, err = pc.FilterQuery(5, nil)
		assert.Error(t, err)
	})

	ro := h.query("SELECT upper(name) AS n FROM people")
	h.onLoop(func() {
		q, err := ro.FilterQuery(0, "ALICE")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM (\nSELECT upper(name) AS n FROM people\n) AS dv_filter WHERE n = 'ALICE'", q)
	})

	ex, err := h.svc.Execute(context.Background(), "SELECT * FROM people WHERE name = 'Alice'")
	require.NoError(t, err)
	h.onLoop(func() {
		assert.Equal(t, 1, ex.Pages[0].Grid().RowCount())
	})
}

func TestOpen(t *testing.T) {
	log, _ := test.NewNullLogger()
	svc, err := Open(context.Background(), database.SQLite, "", ":memory:", nil, Options{Logger: log})
	require.NoError(t, err)
	defer svc.Disconnect()
	assert.Equal(t, database.SQLite, svc.Backend())

	_, err = Open(context.Background(), database.Generic, "", "", nil, Options{})
	var ce *ErrConfig
	assert.True(t, errors.As(err, &ce))

	d, err := NewDriver(database.PostgreSQL, "pq")
	require.NoError(t, err)
	assert.Equal(t, database.PostgreSQL, d.Backend())
	d, err = NewDriver(database.MySQL, "")
	require.NoError(t, err)
	assert.Equal(t, database.MySQL, d.Backend())
}
