package database

import (
	"fmt"
	"sync"
)

// StatementError annotates a failed statement with the character offset of
// the error inside the SQL text. Position is -1 when the backend did not
// report one.
type StatementError struct {
	SQL      string
	Position int
	Cause    error
}

func (e *StatementError) Error() string {
	if e.Position < 0 {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%v (at position %d)", e.Cause, e.Position)
}

func (e *StatementError) Unwrap() error {
	return e.Cause
}

// ErrorLocator extracts a 0-based error offset into sql from a driver error.
type ErrorLocator func(sql string, err error) (int, bool)

var (
	locatorsMu sync.RWMutex
	locators   = map[Backend]ErrorLocator{}
)

// RegisterErrorLocator installs the position strategy for a backend. Backend
// packages call it from init.
func RegisterErrorLocator(b Backend, fn ErrorLocator) {
	locatorsMu.Lock()
	defer locatorsMu.Unlock()
	locators[b] = fn
}

// ErrorPosition returns the 0-based offset of err inside sql, or -1.
func ErrorPosition(b Backend, sql string, err error) int {
	locatorsMu.RLock()
	fn := locators[b]
	locatorsMu.RUnlock()
	if fn == nil {
		return -1
	}
	pos, ok := fn(sql, err)
	if !ok || pos < 0 || pos > len(sql) {
		return -1
	}
	return pos
}

// NewStatementError wraps err with the statement and its error position.
// A nil err yields nil.
func NewStatementError(b Backend, sql string, err error) error {
	if err == nil {
		return nil
	}
	return &StatementError{SQL: sql, Position: ErrorPosition(b, sql, err), Cause: err}
}
