package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/sqlgen"
)

// Kind names the user action a job performs.
type Kind int

const (
	KindQuery Kind = iota
	KindInsert
	KindUpdate
	KindDelete
	KindTruncate
)

func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	case KindTruncate:
		return "truncate"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is where the executor is in running a job.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCommitted
	StateRolledBack
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled back"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RunFunc does the work of a job on q, which is a transaction when the job
// is transactional and the bare connection otherwise. It returns the number
// of rows the job affected or produced.
type RunFunc func(ctx context.Context, q database.Querier) (int64, error)

// Job is one unit of database work. A job can be submitted once.
type Job struct {
	ID            uuid.UUID
	Kind          Kind
	Name          string
	Transactional bool
	Run           RunFunc
	// Done, when set, receives the result on the UI dispatcher.
	Done func(Result)

	submitted atomic.Bool
}

// NewJob returns a job with a fresh ID.
func NewJob(kind Kind, name string, transactional bool, run RunFunc) *Job {
	return &Job{
		ID:            uuid.New(),
		Kind:          kind,
		Name:          name,
		Transactional: transactional,
		Run:           run,
	}
}

// Result is the outcome of a finished job.
type Result struct {
	JobID         uuid.UUID
	Kind          Kind
	Name          string
	Transactional bool
	State         State
	Count         int64
	Err           error
	Elapsed       time.Duration
}

// Succeeded reports whether the job ran to completion and, if
// transactional, committed.
func (r Result) Succeeded() bool {
	return r.Err == nil && r.State == StateCommitted
}

// Message is the line shown to the user for the result.
func (r Result) Message() string {
	elapsed := r.Elapsed.Round(time.Millisecond)
	switch r.State {
	case StateCommitted:
		if r.Kind == KindQuery {
			return fmt.Sprintf("%s: %d row(s) in %s", r.Name, r.Count, elapsed)
		}
		return fmt.Sprintf("%s: %d row(s) affected in %s", r.Name, r.Count, elapsed)
	case StateCancelled:
		if r.Transactional {
			return fmt.Sprintf("%s cancelled, changes rolled back", r.Name)
		}
		return fmt.Sprintf("%s cancelled", r.Name)
	case StateRolledBack:
		if r.Transactional {
			return fmt.Sprintf("%s failed, changes rolled back: %v", r.Name, r.Err)
		}
		return fmt.Sprintf("%s failed: %v", r.Name, r.Err)
	default:
		return fmt.Sprintf("%s: %s", r.Name, r.State)
	}
}

// BatchJob returns a transactional job that executes stmts in order. With
// checkRows every statement must affect exactly one row; anything else fails
// the job and rolls the whole batch back.
func BatchJob(b database.Backend, kind Kind, name string, stmts []sqlgen.Statement, checkRows bool) *Job {
	return NewJob(kind, name, true, func(ctx context.Context, q database.Querier) (int64, error) {
		var total int64
		for i, st := range stmts {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			res, err := q.ExecContext(ctx, st.SQL, st.Args...)
			if err != nil {
				return total, database.NewStatementError(b, st.SQL, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return total, fmt.Errorf("rows affected: %w", err)
			}
			if checkRows {
				if err := CheckAffected(i, st.SQL, n); err != nil {
					return total, err
				}
			}
			total += n
		}
		return total, nil
	})
}
