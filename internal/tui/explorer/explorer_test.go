package explorer

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joacominatel/dataview/internal/app"
	"github.com/joacominatel/dataview/internal/database"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newExplorer() Model {
	m := New()
	m.SetSize(40, 20)
	m.SetFocused(true)
	m.SetTree(&app.SchemaTree{
		Database: "shop",
		Schemas: []app.SchemaNode{
			{Name: "", Tables: []string{"notes"}},
			{Name: "public", Tables: []string{"orders", "people"}},
		},
	})
	return m
}

func TestTableNames(t *testing.T) {
	m := newExplorer()
	assert.Equal(t, []string{"notes", "public.orders", "public.people"}, m.TableNames())
}

func TestExpandRequestsColumns(t *testing.T) {
	m := newExplorer()

	// shop, default, public
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	// public > orders
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	schema, table, ok := IsRequestColumnsMsg(cmd())
	require.True(t, ok)
	assert.Equal(t, "public", schema)
	assert.Equal(t, "orders", table)

	m.SetColumns("public", "orders", []database.Column{
		{Name: "id", DataType: "integer", IsPrimary: true},
		{Name: "total", DataType: "numeric", IsGenerated: true},
	})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	got, ok := m.SelectedTable()
	require.True(t, ok)
	assert.Equal(t, "public.orders", got)
	assert.Contains(t, m.View(), "*id")
	assert.Contains(t, m.View(), "(generated)")
}

func TestQuickActions(t *testing.T) {
	m := newExplorer()
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})

	_, cmd := m.Update(runes("s"))
	require.NotNil(t, cmd)
	assert.Equal(t, QuickQueryMsg{Query: "SELECT * FROM notes"}, cmd())

	_, cmd = m.Update(runes("d"))
	require.NotNil(t, cmd)
	assert.Equal(t, ShowDDLMsg{Table: "notes"}, cmd())

	_, cmd = m.Update(runes("r"))
	require.NotNil(t, cmd)
	assert.Equal(t, ReloadMsg{}, cmd())
}

func TestNoTableSelected(t *testing.T) {
	m := newExplorer()
	_, cmd := m.Update(runes("s"))
	assert.Nil(t, cmd)
}

func TestReloadKeepsSchemasOpen(t *testing.T) {
	m := newExplorer()
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, m.View(), "orders")

	m.SetTree(&app.SchemaTree{
		Database: "shop",
		Schemas:  []app.SchemaNode{{Name: "public", Tables: []string{"orders", "people", "refunds"}}},
	})
	assert.Contains(t, m.View(), "refunds")
}

func TestLeftMovesToParent(t *testing.T) {
	m := newExplorer()
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(runes("l"))
	m, _ = m.Update(runes("j"))

	table, ok := m.SelectedTable()
	require.True(t, ok)
	assert.Equal(t, "public.orders", table)

	// a closed table goes up to its schema, and the schema closes
	m, _ = m.Update(runes("h"))
	_, ok = m.SelectedTable()
	assert.False(t, ok)
	m, _ = m.Update(runes("h"))
	assert.NotContains(t, m.View(), "orders")
}

func TestScrollFollowsCursor(t *testing.T) {
	m := newExplorer()
	m.SetSize(40, 4) // two visible rows
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})

	view := m.View()
	assert.Contains(t, view, "public")
	assert.NotContains(t, view, "shop")
}
