// Package page holds the paging state of one result set: how many rows a page
// has and where the current page starts. It does no I/O; callers re-fetch
// after moving.
package page

import "github.com/joacominatel/dataview/internal/uiloop"

// DefaultSize is the page size used when none is stored.
const DefaultSize = 10

// Event reports the cursor state after a change.
type Event struct {
	Offset   int
	PageSize int
	RowCount int
}

// Cursor tracks page size and the 1-based offset of the first row of the
// current page. A page size of 0 means all rows on one page.
type Cursor struct {
	pageSize  int
	offset    int
	rowCount  int
	listeners uiloop.Listeners[Event]
}

// New returns a cursor positioned at the first page.
func New(pageSize int) *Cursor {
	if pageSize < 0 {
		pageSize = 0
	}
	return &Cursor{pageSize: pageSize, offset: 1}
}

func (c *Cursor) PageSize() int { return c.pageSize }
func (c *Cursor) Offset() int   { return c.offset }

// RowCount is the number of rows the last fetch returned.
func (c *Cursor) RowCount() int { return c.rowCount }

// First moves to the first page.
func (c *Cursor) First() {
	c.offset = 1
	c.changed()
}

// Next moves forward one page.
func (c *Cursor) Next() {
	c.offset += c.pageSize
	c.changed()
}

// Previous moves back one page. It does not clamp; check HasPrevious first.
func (c *Cursor) Previous() {
	c.offset -= c.pageSize
	c.changed()
}

// SetPageSize changes the page size and keeps the offset.
func (c *Cursor) SetPageSize(n int) {
	if n < 0 {
		n = 0
	}
	c.pageSize = n
	c.changed()
}

// SetRowCount records how many rows the current page holds.
func (c *Cursor) SetRowCount(n int) {
	c.rowCount = n
	c.changed()
}

// HasPrevious reports whether a page exists before the current one.
func (c *Cursor) HasPrevious() bool {
	return c.pageSize > 0 && c.offset-c.pageSize > 0 && c.rowCount > 0
}

// IsLastPage reports whether the current page is the last. A short page
// signals the end of the data; a full final page is only recognised as last
// after moving past it.
func (c *Cursor) IsLastPage() bool {
	return c.pageSize == 0 || c.rowCount < c.pageSize
}

// HasNext reports whether moving forward may yield rows.
func (c *Cursor) HasNext() bool {
	return !c.IsLastPage()
}

// PageNumber is the 1-based number of the current page.
func (c *Cursor) PageNumber() int {
	if c.pageSize == 0 || c.offset < 1 {
		return 1
	}
	return (c.offset-1)/c.pageSize + 1
}

// Subscribe registers fn for change notifications.
func (c *Cursor) Subscribe(fn func(Event)) (unsubscribe func()) {
	return c.listeners.Add(fn)
}

func (c *Cursor) changed() {
	c.listeners.Emit(Event{Offset: c.offset, PageSize: c.pageSize, RowCount: c.rowCount})
}
