package executor

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMatch means a row-level statement affected no row: the row was
	// changed or deleted since it was fetched.
	ErrNoMatch = errors.New("no matching row")
	// ErrNonUnique means a row-level statement affected more than one row
	// because its WHERE clause does not identify a single row.
	ErrNonUnique = errors.New("statement matched more than one row")

	ErrClosed      = errors.New("executor closed")
	ErrQueueFull   = errors.New("executor queue full")
	ErrResubmitted = errors.New("job already submitted")
)

// RowCountError reports a statement of a batch whose affected-row count was
// not exactly one.
type RowCountError struct {
	Index    int
	SQL      string
	Affected int64
}

func (e *RowCountError) Error() string {
	return fmt.Sprintf("statement %d affected %d rows: %v", e.Index+1, e.Affected, e.Unwrap())
}

func (e *RowCountError) Unwrap() error {
	if e.Affected == 0 {
		return ErrNoMatch
	}
	return ErrNonUnique
}

// CheckAffected enforces the one-row-per-statement policy.
func CheckAffected(index int, sql string, affected int64) error {
	if affected == 1 {
		return nil
	}
	return &RowCountError{Index: index, SQL: sql, Affected: affected}
}
