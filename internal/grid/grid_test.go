package grid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/dataview/internal/database"
)

func newTestGrid() *Grid {
	g := New([]database.Column{
		{Name: "id", Kind: database.KindNumeric, IsPrimary: true},
		{Name: "name", Kind: database.KindCharacter, IsNullable: true},
		{Name: "email", Kind: database.KindCharacter, IsNullable: true},
	}, true)
	g.SetRows([][]any{
		{int64(1), "Ann", "ann@example.com"},
		{int64(2), "Alice", nil},
		{int64(3), "Bob", "bob@example.com"},
	})
	return g
}

func TestSetValueCapturesOriginalOnce(t *testing.T) {
	g := newTestGrid()

	// same value: no edit
	g.SetValue(1, 1, "Alice")
	assert.Empty(t, g.DirtyRows())

	g.SetValue(1, 1, "Alicia")
	g.SetValue(1, 1, "Ali")
	g.SetValue(1, 1, "Alice")

	assert.Equal(t, []int{1}, g.DirtyRows())
	assert.Equal(t, "Alice", g.OriginalValue(1, 1))
	assert.Equal(t, "Alice", g.Value(1, 1))
	// restoring the original by editing keeps the cell dirty
	assert.True(t, g.IsDirty(1, 1))
	assert.Equal(t, []Change{{Col: 1, Value: "Alice"}}, g.ChangedColumns(1))
}

func TestDirtyRowsFirstEditOrder(t *testing.T) {
	g := newTestGrid()

	g.SetValue(2, 1, "Robert")
	g.SetValue(0, 2, nil)
	g.SetValue(2, 2, "rob@example.com")
	g.SetValue(0, 1, "Anna")

	assert.Equal(t, []int{2, 0}, g.DirtyRows())
	assert.Equal(t, []Change{{Col: 2, Value: nil}, {Col: 1, Value: "Anna"}}, g.ChangedColumns(0))
	assert.Nil(t, g.ChangedColumns(1))
}

func TestOriginalValueOfUneditedCell(t *testing.T) {
	g := newTestGrid()
	g.SetValue(0, 1, "Anna")

	assert.Equal(t, int64(1), g.OriginalValue(0, 0))
	assert.Equal(t, []any{int64(1), "Ann", "ann@example.com"}, g.OriginalRow(0))
	assert.Nil(t, g.OriginalValue(1, 2))
}

func TestRevertAllDiscard(t *testing.T) {
	g := newTestGrid()
	before := [][]any{g.Row(0), g.Row(1), g.Row(2)}

	g.SetValue(0, 1, "Anna")
	g.SetValue(1, 2, "alice@example.com")
	g.SetValue(2, 0, int64(30))
	g.RevertAll(true)

	assert.Empty(t, g.DirtyRows())
	for row := range before {
		assert.Equal(t, before[row], g.Row(row))
	}
}

func TestRevertAllKeep(t *testing.T) {
	g := newTestGrid()
	g.SetValue(0, 1, "Anna")
	g.RevertAll(false)

	assert.Empty(t, g.DirtyRows())
	assert.Equal(t, "Anna", g.Value(0, 1))
	assert.Equal(t, "Anna", g.OriginalValue(0, 1))
}

func TestRevertCell(t *testing.T) {
	g := newTestGrid()
	g.SetValue(0, 1, "Anna")
	g.SetValue(0, 2, "anna@example.com")

	g.RevertCell(0, 1, true)
	assert.Equal(t, "Ann", g.Value(0, 1))
	assert.False(t, g.IsDirty(0, 1))
	assert.Equal(t, []int{0}, g.DirtyRows())

	g.RevertCell(0, 2, false)
	assert.Equal(t, "anna@example.com", g.Value(0, 2))
	assert.Empty(t, g.DirtyRows())
	assert.False(t, g.IsRowDirty(0))

	// reverting a clean cell is a no-op
	g.RevertCell(1, 1, true)
	assert.Equal(t, "Alice", g.Value(1, 1))
}

func TestRevertRow(t *testing.T) {
	g := newTestGrid()
	g.SetValue(0, 1, "Anna")
	g.SetValue(1, 1, "Alicia")
	g.SetValue(1, 2, "a@example.com")

	g.RevertRow(1, true)
	assert.Equal(t, []any{int64(2), "Alice", nil}, g.Row(1))
	assert.Equal(t, []int{0}, g.DirtyRows())

	// a reverted cell can be captured again
	g.SetValue(1, 1, "Al")
	assert.Equal(t, []int{0, 1}, g.DirtyRows())
	assert.Equal(t, "Alice", g.OriginalValue(1, 1))
}

func TestMarkWritten(t *testing.T) {
	g := newTestGrid()
	g.SetValue(0, 1, "Anna")
	g.SetValue(0, 2, "anna@example.com")

	// name was written as is; email changed again before the write finished
	g.SetValue(0, 2, "late@example.com")
	g.MarkWritten(0, 1, "Anna")
	g.MarkWritten(0, 2, "anna@example.com")

	assert.False(t, g.IsDirty(0, 1))
	assert.Equal(t, "Anna", g.OriginalValue(0, 1))
	require.True(t, g.IsDirty(0, 2))
	assert.Equal(t, "anna@example.com", g.OriginalValue(0, 2))
	assert.Equal(t, []Change{{Col: 2, Value: "late@example.com"}}, g.ChangedColumns(0))

	// a discarded edit diverges from what was written
	g.SetValue(2, 1, "Rob")
	g.RevertCell(2, 1, true)
	g.MarkWritten(2, 1, "Rob")
	assert.True(t, g.IsDirty(2, 1))
	assert.Equal(t, "Rob", g.OriginalValue(2, 1))
	assert.Equal(t, []int{0, 2}, g.DirtyRows())
}

func TestSetRowsClearsTracking(t *testing.T) {
	g := newTestGrid()
	g.SetValue(0, 1, "Anna")

	g.SetRows([][]any{{int64(9), "Zed", nil}})
	assert.Empty(t, g.DirtyRows())
	assert.Equal(t, 1, g.RowCount())
	assert.Equal(t, 3, g.ColumnCount())
	assert.False(t, g.IsDirty(0, 1))
}

func TestRowReturnsCopy(t *testing.T) {
	g := newTestGrid()
	row := g.Row(0)
	row[1] = "changed"
	assert.Equal(t, "Ann", g.Value(0, 1))
}

func TestSubscribe(t *testing.T) {
	g := newTestGrid()
	var events []Event
	unsubscribe := g.Subscribe(func(e Event) { events = append(events, e) })

	g.SetValue(0, 1, "Ann") // unchanged, no event
	g.SetValue(0, 1, "Anna")
	g.RevertCell(0, 1, true)
	g.RevertAll(true)
	unsubscribe()
	g.SetValue(0, 1, "x")

	require.Len(t, events, 3)
	assert.Equal(t, Event{Kind: CellChanged, Row: 0, Col: 1}, events[0])
	assert.Equal(t, Event{Kind: Reverted, Row: 0, Col: 1}, events[1])
	assert.Equal(t, Event{Kind: Reverted, Row: -1, Col: -1}, events[2])
}

func TestEqual(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"nil nil", nil, nil, true},
		{"nil value", nil, "", false},
		{"value nil", int64(0), nil, false},
		{"strings", "a", "a", true},
		{"bytes", []byte{1, 2}, []byte{1, 2}, true},
		{"bytes differ", []byte{1, 2}, []byte{1}, false},
		{"bytes and string", []byte("abc"), "abc", true},
		{"string and bytes", "abc", []byte("abc"), true},
		{"times", now, now.In(time.UTC), true},
		{"ints across types", int64(5), 5, true},
		{"int and float", int64(5), 5.0, true},
		{"float differs", 5.5, int64(5), false},
		{"number and string", int64(5), "5", false},
		{"bools", true, true, true},
		{"slices", []int{1}, []int{1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
		})
	}
}
