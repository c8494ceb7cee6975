package executor

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/sqlgen"
	"github.com/joacominatel/dataview/internal/uiloop"
)

func setupExecutor(t *testing.T, ui uiloop.Dispatcher) (*Executor, *sql.Conn) {
	t.Helper()
	ctx := context.Background()
	c, err := database.Open(ctx, "sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, err = c.Conn.ExecContext(ctx, `
		CREATE TABLE accounts (id INTEGER PRIMARY KEY, owner TEXT, balance INTEGER);
		INSERT INTO accounts VALUES (1, 'ann', 10), (2, 'bob', 20), (3, 'bob', 30);`)
	require.NoError(t, err)

	log, _ := test.NewNullLogger()
	e := New(c.Conn, NewPool(2), ui, log)
	t.Cleanup(e.Close)
	return e, c.Conn
}

func balances(t *testing.T, conn *sql.Conn) []int64 {
	t.Helper()
	rows, err := conn.QueryContext(context.Background(), "SELECT balance FROM accounts ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var b int64
		require.NoError(t, rows.Scan(&b))
		out = append(out, b)
	}
	require.NoError(t, rows.Err())
	return out
}

func update(sql string, args ...any) sqlgen.Statement {
	return sqlgen.Statement{SQL: sql, Args: args}
}

func submitAndWait(t *testing.T, e *Executor, job *Job) Result {
	t.Helper()
	h, err := e.Submit(context.Background(), job)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := h.Wait(ctx)
	require.NoError(t, err)
	return r
}

func TestBatchCommits(t *testing.T) {
	e, conn := setupExecutor(t, nil)

	job := BatchJob(database.SQLite, KindUpdate, "update accounts", []sqlgen.Statement{
		update("UPDATE accounts SET balance = ? WHERE id = ?", 11, 1),
		update("UPDATE accounts SET balance = ? WHERE id = ?", 21, 2),
	}, true)
	r := submitAndWait(t, e, job)

	require.NoError(t, r.Err)
	assert.True(t, r.Succeeded())
	assert.Equal(t, StateCommitted, r.State)
	assert.Equal(t, int64(2), r.Count)
	assert.Equal(t, job.ID, r.JobID)
	assert.Equal(t, []int64{11, 21, 30}, balances(t, conn))
}

func TestBatchRowCountPolicy(t *testing.T) {
	tests := []struct {
		name    string
		last    sqlgen.Statement
		wantErr error
	}{
		{"no match", update("UPDATE accounts SET balance = 0 WHERE id = ?", 99), ErrNoMatch},
		{"non-unique", update("UPDATE accounts SET balance = 0 WHERE owner = ?", "bob"), ErrNonUnique},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, conn := setupExecutor(t, nil)

			job := BatchJob(database.SQLite, KindUpdate, "update accounts", []sqlgen.Statement{
				update("UPDATE accounts SET balance = 99 WHERE id = ?", 1),
				tt.last,
			}, true)
			r := submitAndWait(t, e, job)

			assert.False(t, r.Succeeded())
			assert.Equal(t, StateRolledBack, r.State)
			assert.ErrorIs(t, r.Err, tt.wantErr)

			var rc *RowCountError
			require.True(t, errors.As(r.Err, &rc))
			assert.Equal(t, 1, rc.Index)

			// the first statement is rolled back with the rest
			assert.Equal(t, []int64{10, 20, 30}, balances(t, conn))
		})
	}
}

func TestBatchWithoutRowCheck(t *testing.T) {
	e, conn := setupExecutor(t, nil)

	r := submitAndWait(t, e, BatchJob(database.SQLite, KindDelete, "truncate accounts", []sqlgen.Statement{
		update("DELETE FROM accounts"),
	}, false))
	require.NoError(t, r.Err)
	assert.Equal(t, int64(3), r.Count)
	assert.Empty(t, balances(t, conn))
}

func TestStatementErrorRollsBack(t *testing.T) {
	e, conn := setupExecutor(t, nil)

	r := submitAndWait(t, e, BatchJob(database.SQLite, KindUpdate, "update", []sqlgen.Statement{
		update("UPDATE accounts SET balance = 0 WHERE id = 1"),
		update("UPDATE acounts SET balance = 0 WHERE id = 2"),
	}, true))

	assert.Equal(t, StateRolledBack, r.State)
	var se *database.StatementError
	require.True(t, errors.As(r.Err, &se))
	assert.Equal(t, "UPDATE acounts SET balance = 0 WHERE id = 2", se.SQL)
	assert.Equal(t, []int64{10, 20, 30}, balances(t, conn))
	assert.Contains(t, r.Message(), "rolled back")
}

func TestCancelRollsBackPartialWork(t *testing.T) {
	e, conn := setupExecutor(t, nil)

	started := make(chan struct{})
	job := NewJob(KindUpdate, "slow update", true, func(ctx context.Context, q database.Querier) (int64, error) {
		if _, err := q.ExecContext(ctx, "UPDATE accounts SET balance = 0 WHERE id = 1"); err != nil {
			return 0, err
		}
		close(started)
		<-ctx.Done()
		return 1, ctx.Err()
	})
	h, err := e.Submit(context.Background(), job)
	require.NoError(t, err)

	<-started
	assert.Equal(t, StateRunning, e.State())
	e.Cancel()

	r, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, r.State)
	assert.ErrorIs(t, r.Err, context.Canceled)
	assert.Equal(t, "slow update cancelled, changes rolled back", r.Message())
	assert.Equal(t, []int64{10, 20, 30}, balances(t, conn))
}

func TestJobIgnoringCancelDoesNotCommit(t *testing.T) {
	e, conn := setupExecutor(t, nil)

	var h *Handle
	ready := make(chan struct{})
	job := NewJob(KindUpdate, "stubborn", true, func(ctx context.Context, q database.Querier) (int64, error) {
		res, err := q.ExecContext(ctx, "UPDATE accounts SET balance = 0 WHERE id = 1")
		if err != nil {
			return 0, err
		}
		<-ready
		h.Cancel()
		return res.RowsAffected()
	})
	var err error
	h, err = e.Submit(context.Background(), job)
	require.NoError(t, err)
	close(ready)

	r, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, r.State)
	assert.Equal(t, []int64{10, 20, 30}, balances(t, conn))
}

func TestCancelQueuedJob(t *testing.T) {
	e, _ := setupExecutor(t, nil)

	release := make(chan struct{})
	blocker := NewJob(KindQuery, "blocker", false, func(ctx context.Context, q database.Querier) (int64, error) {
		<-release
		return 0, nil
	})
	ran := false
	queued := NewJob(KindQuery, "queued", false, func(ctx context.Context, q database.Querier) (int64, error) {
		ran = true
		return 0, nil
	})

	_, err := e.Submit(context.Background(), blocker)
	require.NoError(t, err)
	h, err := e.Submit(context.Background(), queued)
	require.NoError(t, err)
	h.Cancel()
	close(release)

	r, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, r.State)
	assert.False(t, ran)
}

func TestJobsRunInSubmissionOrderOneAtATime(t *testing.T) {
	e, _ := setupExecutor(t, nil)

	var (
		mu      sync.Mutex
		order   []int
		running int
		maxSeen int
	)
	var handles []*Handle
	for i := 0; i < 5; i++ {
		i := i
		h, err := e.Submit(context.Background(), NewJob(KindQuery, "q", false, func(ctx context.Context, q database.Querier) (int64, error) {
			mu.Lock()
			running++
			maxSeen = max(maxSeen, running)
			order = append(order, i)
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
			return 0, nil
		}))
		require.NoError(t, err)
		handles = append(handles, h)
	}
	for _, h := range handles {
		_, err := h.Wait(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, 1, maxSeen)
}

func TestResubmitRejected(t *testing.T) {
	e, _ := setupExecutor(t, nil)
	job := NewJob(KindQuery, "once", false, func(context.Context, database.Querier) (int64, error) { return 0, nil })

	_, err := e.Submit(context.Background(), job)
	require.NoError(t, err)
	_, err = e.Submit(context.Background(), job)
	assert.ErrorIs(t, err, ErrResubmitted)
}

func TestSubmitAfterClose(t *testing.T) {
	e, _ := setupExecutor(t, nil)
	e.Close()

	_, err := e.Submit(context.Background(), NewJob(KindQuery, "late", false, func(context.Context, database.Querier) (int64, error) { return 0, nil }))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDoneIsPostedToDispatcher(t *testing.T) {
	loop := uiloop.New()
	defer loop.Close()
	e, _ := setupExecutor(t, loop)

	got := make(chan Result, 1)
	job := NewJob(KindQuery, "count", false, func(ctx context.Context, q database.Querier) (int64, error) {
		return 3, nil
	})
	job.Done = func(r Result) { got <- r }

	_, err := e.Submit(context.Background(), job)
	require.NoError(t, err)

	select {
	case r := <-got:
		assert.Equal(t, int64(3), r.Count)
		assert.Contains(t, r.Message(), "count: 3 row(s) in ")
	case <-time.After(5 * time.Second):
		t.Fatal("continuation never ran")
	}
}

func TestCheckAffected(t *testing.T) {
	assert.NoError(t, CheckAffected(0, "x", 1))
	assert.ErrorIs(t, CheckAffected(0, "x", 0), ErrNoMatch)
	assert.ErrorIs(t, CheckAffected(2, "x", 4), ErrNonUnique)
	assert.EqualError(t, CheckAffected(2, "x", 4), "statement 3 affected 4 rows: statement matched more than one row")
}

func TestResultMessage(t *testing.T) {
	tests := []struct {
		r    Result
		want string
	}{
		{Result{Name: "update", Kind: KindUpdate, State: StateCommitted, Count: 2, Elapsed: 1500 * time.Microsecond}, "update: 2 row(s) affected in 2ms"},
		{Result{Name: "query", Kind: KindQuery, State: StateCancelled}, "query cancelled"},
		{Result{Name: "delete", Kind: KindDelete, Transactional: true, State: StateRolledBack, Err: ErrNoMatch}, "delete failed, changes rolled back: no matching row"},
		{Result{Name: "query", Kind: KindQuery, State: StateRolledBack, Err: errors.New("boom")}, "query failed: boom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.r.Message())
	}
}

func TestKindAndStateNames(t *testing.T) {
	assert.Equal(t, "truncate", KindTruncate.String())
	assert.Equal(t, "rolled back", StateRolledBack.String())
	assert.Equal(t, "state(42)", State(42).String())
}
