// Package executor runs statement jobs against one shared connection. Jobs
// are queued and run one at a time; a transactional job commits when it
// succeeds and rolls back on error or cancellation. Results are posted to a
// UI dispatcher.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/uiloop"
)

const (
	// QueueSize is how many jobs may wait for a connection.
	QueueSize = 64
	// DefaultWorkers caps concurrently running jobs across executors.
	DefaultWorkers = 4
)

// Conn is the shared connection jobs run on. *sql.Conn satisfies it.
type Conn interface {
	database.Querier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Pool bounds the number of jobs running at once. One pool is shared by
// the executors of all open connections.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool returns a pool allowing n concurrent jobs.
func NewPool(n int64) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{sem: semaphore.NewWeighted(n)}
}

func (p *Pool) acquire(ctx context.Context) error { return p.sem.Acquire(ctx, 1) }
func (p *Pool) release()                          { p.sem.Release(1) }

type task struct {
	job    *Job
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// Handle tracks a submitted job.
type Handle struct {
	t *task
}

// ID returns the job ID.
func (h *Handle) ID() uuid.UUID { return h.t.job.ID }

// Cancel cancels the job. A queued job never starts; a running one has its
// statement cancelled and its transaction rolled back.
func (h *Handle) Cancel() { h.t.cancel() }

// Done is closed when the job has finished.
func (h *Handle) Done() <-chan struct{} { return h.t.done }

// Wait blocks until the job finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.t.done:
		return h.t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Executor serializes jobs on one connection.
type Executor struct {
	conn Conn
	pool *Pool
	ui   uiloop.Dispatcher
	log  logrus.FieldLogger

	queue chan *task
	quit  chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	state   State
	current *task
	closed  bool
}

// New starts an executor for conn. A nil pool gets a private one with
// DefaultWorkers slots; a nil dispatcher delivers results on the worker.
func New(conn Conn, pool *Pool, ui uiloop.Dispatcher, log logrus.FieldLogger) *Executor {
	if pool == nil {
		pool = NewPool(DefaultWorkers)
	}
	if ui == nil {
		ui = uiloop.Inline{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := &Executor{
		conn:  conn,
		pool:  pool,
		ui:    ui,
		log:   log,
		queue: make(chan *task, QueueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go e.loop()
	return e
}

// Submit queues job. The job runs under a context derived from ctx.
func (e *Executor) Submit(ctx context.Context, job *Job) (*Handle, error) {
	if job == nil || job.Run == nil {
		return nil, errors.New("job has nothing to run")
	}
	if !job.submitted.CompareAndSwap(false, true) {
		return nil, ErrResubmitted
	}

	t := &task{job: job, done: make(chan struct{})}
	t.ctx, t.cancel = context.WithCancel(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		t.cancel()
		return nil, ErrClosed
	}
	select {
	case e.queue <- t:
		queueGauge.Inc()
	default:
		t.cancel()
		return nil, ErrQueueFull
	}
	e.log.WithFields(logrus.Fields{
		"job":  job.ID.String(),
		"kind": job.Kind.String(),
		"name": job.Name,
	}).Debug("job queued")
	return &Handle{t: t}, nil
}

// State returns the state of the executor.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Cancel cancels the running job, if any.
func (e *Executor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.current.cancel()
	}
}

// Close cancels the running job and every queued one, then waits for the
// worker to stop. The connection itself stays open.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	if e.current != nil {
		e.current.cancel()
	}
	close(e.quit)
	e.mu.Unlock()
	<-e.done
}

func (e *Executor) loop() {
	defer close(e.done)
	for {
		select {
		case t := <-e.queue:
			queueGauge.Dec()
			e.run(t)
		case <-e.quit:
			for {
				select {
				case t := <-e.queue:
					queueGauge.Dec()
					t.cancel()
					e.finish(t, Result{State: StateCancelled, Err: context.Canceled})
				default:
					return
				}
			}
		}
	}
}

func (e *Executor) run(t *task) {
	if err := t.ctx.Err(); err != nil {
		e.finish(t, Result{State: StateCancelled, Err: err})
		return
	}
	if err := e.pool.acquire(t.ctx); err != nil {
		e.finish(t, Result{State: StateCancelled, Err: err})
		return
	}
	defer e.pool.release()

	e.mu.Lock()
	e.state = StateRunning
	e.current = t
	e.mu.Unlock()

	log := e.log.WithFields(logrus.Fields{
		"job":           t.job.ID.String(),
		"kind":          t.job.Kind.String(),
		"name":          t.job.Name,
		"transactional": t.job.Transactional,
	})
	log.Debug("job started")

	observe := instrument(t.job.Kind)
	count, state, err := e.execute(t)
	elapsed := observe()

	e.mu.Lock()
	e.state = state
	e.current = nil
	e.mu.Unlock()

	entry := log.WithFields(logrus.Fields{
		"state":   state.String(),
		"count":   count,
		"elapsed": elapsed,
	})
	switch state {
	case StateRolledBack:
		entry.WithError(err).Warn("job failed")
	case StateCancelled:
		entry.Info("job cancelled")
	default:
		entry.Debug("job finished")
	}

	e.finish(t, Result{State: state, Count: count, Err: err, Elapsed: elapsed})

	e.mu.Lock()
	e.state = StateIdle
	e.mu.Unlock()
	t.cancel()
}

// execute runs the job and decides between commit and rollback.
func (e *Executor) execute(t *task) (int64, State, error) {
	ctx := t.ctx
	if !t.job.Transactional {
		n, err := t.job.Run(ctx, e.conn)
		if err != nil {
			return n, failedState(ctx), err
		}
		return n, StateCommitted, nil
	}

	tx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, failedState(ctx), err
	}
	n, err := t.job.Run(ctx, tx)
	if err == nil {
		// a job ignoring its context must not commit after a cancel
		err = ctx.Err()
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			e.log.WithError(rbErr).Warn("rollback")
		}
		return n, failedState(ctx), err
	}
	if err := tx.Commit(); err != nil {
		return n, failedState(ctx), err
	}
	return n, StateCommitted, nil
}

func failedState(ctx context.Context) State {
	if ctx.Err() != nil {
		return StateCancelled
	}
	return StateRolledBack
}

// finish records the result, posts the continuation and releases waiters.
// The continuation is queued before Wait returns, so anything a waiter posts
// afterwards runs after it.
func (e *Executor) finish(t *task, r Result) {
	r.JobID = t.job.ID
	r.Kind = t.job.Kind
	r.Name = t.job.Name
	r.Transactional = t.job.Transactional
	t.result = r
	jobsCounter.WithLabelValues(r.Kind.String(), r.State.String()).Inc()

	if t.job.Done != nil {
		done := t.job.Done
		e.ui.Post(func() { done(r) })
	}
	close(t.done)
}
