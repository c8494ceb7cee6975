// Package grid stores the rows of one result page and tracks in-place edits
// against the values last read from the database.
//
// A Grid belongs to the UI loop: it takes no locks, and every method must be
// called from the goroutine that owns it.
package grid

import (
	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/uiloop"
)

// EventKind tells subscribers what changed.
type EventKind int

const (
	RowsReplaced EventKind = iota
	CellChanged
	Reverted
)

func (k EventKind) String() string {
	switch k {
	case RowsReplaced:
		return "rows-replaced"
	case CellChanged:
		return "cell-changed"
	case Reverted:
		return "reverted"
	default:
		return "unknown"
	}
}

// Event describes a change. Row and Col are -1 when the change is not
// about a single row or cell.
type Event struct {
	Kind EventKind
	Row  int
	Col  int
}

// Change is a dirty column of a row with its current value.
type Change struct {
	Col   int
	Value any
}

// rowEdits holds the original values of the edited cells of one row, in
// first-edit order.
type rowEdits struct {
	cols      []int
	originals map[int]any
}

// Grid is a row store with lazily captured original values.
type Grid struct {
	columns  []database.Column
	editable bool
	rows     [][]any

	edits map[int]*rowEdits
	dirty []int // rows in first-edit order

	listeners uiloop.Listeners[Event]
}

// New returns an empty grid over columns.
func New(columns []database.Column, editable bool) *Grid {
	return &Grid{
		columns:  columns,
		editable: editable,
		edits:    make(map[int]*rowEdits),
	}
}

// Columns returns the column descriptors. The slice must not be modified.
func (g *Grid) Columns() []database.Column { return g.columns }

// Editable reports whether edits can be written back to a single table.
func (g *Grid) Editable() bool { return g.editable }

func (g *Grid) RowCount() int    { return len(g.rows) }
func (g *Grid) ColumnCount() int { return len(g.columns) }

// SetRows replaces every row and forgets all edits.
func (g *Grid) SetRows(rows [][]any) {
	g.rows = rows
	g.edits = make(map[int]*rowEdits)
	g.dirty = nil
	g.listeners.Emit(Event{Kind: RowsReplaced, Row: -1, Col: -1})
}

// Value returns the current value of a cell.
func (g *Grid) Value(row, col int) any {
	return g.rows[row][col]
}

// Row returns a copy of the current values of a row.
func (g *Grid) Row(row int) []any {
	return append([]any(nil), g.rows[row]...)
}

// SetValue stores v in a cell. The first edit of a cell captures the value it
// replaces; later edits keep that capture, even when they restore it.
func (g *Grid) SetValue(row, col int, v any) {
	current := g.rows[row][col]
	if Equal(current, v) {
		return
	}

	e := g.edits[row]
	if e == nil {
		e = &rowEdits{originals: make(map[int]any)}
		g.edits[row] = e
		g.dirty = append(g.dirty, row)
	}
	if _, captured := e.originals[col]; !captured {
		e.originals[col] = current
		e.cols = append(e.cols, col)
	}

	g.rows[row][col] = v
	g.listeners.Emit(Event{Kind: CellChanged, Row: row, Col: col})
}

// OriginalValue returns the value a cell had before its first edit, or its
// current value when it was never edited.
func (g *Grid) OriginalValue(row, col int) any {
	if e := g.edits[row]; e != nil {
		if v, ok := e.originals[col]; ok {
			return v
		}
	}
	return g.rows[row][col]
}

// OriginalRow returns the original values of a whole row.
func (g *Grid) OriginalRow(row int) []any {
	out := make([]any, len(g.columns))
	for col := range out {
		out[col] = g.OriginalValue(row, col)
	}
	return out
}

// IsDirty reports whether a cell has been edited since the last reload or revert.
func (g *Grid) IsDirty(row, col int) bool {
	if e := g.edits[row]; e != nil {
		_, ok := e.originals[col]
		return ok
	}
	return false
}

// IsRowDirty reports whether any cell of a row has been edited.
func (g *Grid) IsRowDirty(row int) bool {
	return g.edits[row] != nil
}

// DirtyRows returns the edited rows in the order they were first edited.
func (g *Grid) DirtyRows() []int {
	return append([]int(nil), g.dirty...)
}

// ChangedColumns returns the edited columns of a row, in first-edit order,
// with their current values.
func (g *Grid) ChangedColumns(row int) []Change {
	e := g.edits[row]
	if e == nil {
		return nil
	}
	out := make([]Change, 0, len(e.cols))
	for _, col := range e.cols {
		out = append(out, Change{Col: col, Value: g.rows[row][col]})
	}
	return out
}

// RevertCell forgets the edit of a cell. With discard the original value is
// restored; without it the current value is accepted as the new original.
func (g *Grid) RevertCell(row, col int, discard bool) {
	e := g.edits[row]
	if e == nil {
		return
	}
	orig, ok := e.originals[col]
	if !ok {
		return
	}
	if discard {
		g.rows[row][col] = orig
	}
	delete(e.originals, col)
	for i, c := range e.cols {
		if c == col {
			e.cols = append(e.cols[:i], e.cols[i+1:]...)
			break
		}
	}
	if len(e.cols) == 0 {
		g.dropRow(row)
	}
	g.listeners.Emit(Event{Kind: Reverted, Row: row, Col: col})
}

// RevertRow forgets every edit of a row.
func (g *Grid) RevertRow(row int, discard bool) {
	e := g.edits[row]
	if e == nil {
		return
	}
	if discard {
		for _, col := range e.cols {
			g.rows[row][col] = e.originals[col]
		}
	}
	g.dropRow(row)
	g.listeners.Emit(Event{Kind: Reverted, Row: row, Col: -1})
}

// RevertAll forgets every edit in the grid.
func (g *Grid) RevertAll(discard bool) {
	if discard {
		for row, e := range g.edits {
			for _, col := range e.cols {
				g.rows[row][col] = e.originals[col]
			}
		}
	}
	g.edits = make(map[int]*rowEdits)
	g.dirty = nil
	g.listeners.Emit(Event{Kind: Reverted, Row: -1, Col: -1})
}

// MarkWritten records that the database now holds v for a cell. A cell still
// showing v is no longer dirty. A cell that changed again since v was read
// from it stays dirty, with v as its original.
func (g *Grid) MarkWritten(row, col int, v any) {
	if Equal(g.rows[row][col], v) {
		g.RevertCell(row, col, false)
		return
	}
	e := g.edits[row]
	if e == nil {
		e = &rowEdits{originals: make(map[int]any)}
		g.edits[row] = e
		g.dirty = append(g.dirty, row)
	}
	if _, captured := e.originals[col]; !captured {
		e.cols = append(e.cols, col)
	}
	e.originals[col] = v
	g.listeners.Emit(Event{Kind: CellChanged, Row: row, Col: col})
}

// Subscribe registers fn for change notifications.
func (g *Grid) Subscribe(fn func(Event)) (unsubscribe func()) {
	return g.listeners.Add(fn)
}

func (g *Grid) dropRow(row int) {
	delete(g.edits, row)
	for i, r := range g.dirty {
		if r == row {
			g.dirty = append(g.dirty[:i], g.dirty[i+1:]...)
			return
		}
	}
}
