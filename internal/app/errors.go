package app

import (
	"errors"
	"fmt"

	"github.com/joacominatel/dataview/internal/database"
)

var (
	// ErrNotConnected is returned by operations that need a connection.
	ErrNotConnected = errors.New("not connected")
	// ErrReadOnly is returned when editing a page that is not backed by
	// exactly one table.
	ErrReadOnly = errors.New("result is read-only")
	// ErrNoPage is returned when navigating past either end of a result.
	ErrNoPage = errors.New("no such page")
	// ErrNoChanges is returned when committing a page without edits.
	ErrNoChanges = errors.New("no pending changes")
)

// ErrConnection represents a database connection error.
type ErrConnection struct {
	Cause error
}

func (e *ErrConnection) Error() string {
	return fmt.Sprintf("connection error: %v", e.Cause)
}

func (e *ErrConnection) Unwrap() error {
	return e.Cause
}

// ErrQuery represents a query execution error. Position is the offset of
// the error inside Query, or -1.
type ErrQuery struct {
	Query    string
	Position int
	Cause    error
}

func (e *ErrQuery) Error() string {
	return fmt.Sprintf("query error: %v", e.Cause)
}

func (e *ErrQuery) Unwrap() error {
	return e.Cause
}

// newQueryError wraps err, taking the statement and position from a
// database.StatementError when there is one.
func newQueryError(query string, err error) error {
	if err == nil {
		return nil
	}
	qe := &ErrQuery{Query: query, Position: -1, Cause: err}
	var se *database.StatementError
	if errors.As(err, &se) {
		qe.Query = se.SQL
		qe.Position = se.Position
	}
	return qe
}

// ErrConfig represents a configuration error.
type ErrConfig struct {
	Cause error
}

func (e *ErrConfig) Error() string {
	return fmt.Sprintf("config error: %v", e.Cause)
}

func (e *ErrConfig) Unwrap() error {
	return e.Cause
}
