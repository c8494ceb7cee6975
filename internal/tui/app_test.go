package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/joacominatel/dataview/internal/app"
	"github.com/joacominatel/dataview/internal/config"
	"github.com/joacominatel/dataview/internal/tui/editor"
	"github.com/joacominatel/dataview/internal/tui/explorer"
	"github.com/joacominatel/dataview/internal/uiloop"
)

func sqliteConnector(t *testing.T) Connector {
	log, _ := test.NewNullLogger()
	return func(ctx context.Context, conn config.Connection) (*app.Service, error) {
		b, err := conn.Backend()
		if err != nil {
			return nil, err
		}
		svc, err := app.Open(ctx, b, conn.Client, conn.DSN(), uiloop.Inline{}, app.Options{PageSize: 2, Logger: log})
		if err != nil {
			return nil, err
		}
		t.Cleanup(func() { svc.Disconnect() })
		for _, q := range []string{
			"CREATE TABLE fruit (id INTEGER PRIMARY KEY, name TEXT NOT NULL)",
			"INSERT INTO fruit (id, name) VALUES (1, 'apple'), (2, 'pear'), (3, 'plum')",
		} {
			if _, err := svc.Execute(ctx, q); err != nil {
				return nil, err
			}
		}
		return svc, nil
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func connected(t *testing.T) Model {
	t.Helper()
	keyring.MockInit()
	log, _ := test.NewNullLogger()
	cfg := &config.Config{
		Connections: []config.Connection{{Name: "sqlite-memory", Driver: "sqlite", Path: ":memory:"}},
		Paging:      map[string]int{config.AppID: 2},
	}

	m := NewModel(cfg, sqliteConnector(t), nil, log)
	require.Equal(t, ModeSelectConnection, m.mode)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, connectedMsg{}, msg)
	require.NoError(t, msg.(connectedMsg).err)

	m, _ = update(t, m, msg)
	require.Equal(t, ModeMain, m.mode)
	require.NotNil(t, m.Service())
	return m
}

func TestConnectLoadsSchema(t *testing.T) {
	m := connected(t)
	assert.Equal(t, 2, m.Service().PageSize(), "page size comes from the config")

	m, _ = update(t, m, m.loadSchemaCmd()())
	assert.Equal(t, []string{"fruit"}, m.explorer.TableNames())

	msg := m.loadColumnsCmd("", "fruit")()
	require.IsType(t, columnsLoadedMsg{}, msg)
	cols := msg.(columnsLoadedMsg)
	require.NoError(t, cols.err)
	assert.Len(t, cols.desc.Columns, 2)
	assert.Equal(t, []string{"id"}, cols.desc.PrimaryKey)
	m, _ = update(t, m, msg)

	m, _ = update(t, m, m.loadDDLCmd("fruit")())
	assert.Equal(t, PaneEditor, m.activePane)
	assert.Contains(t, m.editor.Value(), "CREATE TABLE fruit")
}

func TestExecuteShowsFirstPage(t *testing.T) {
	m := connected(t)

	m, cmd := update(t, m, editor.ExecuteQueryMsg{Query: "SELECT id, name FROM fruit ORDER BY id"})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())

	pc := m.results.Current()
	require.NotNil(t, pc)
	assert.Equal(t, "rows 1-2+", m.results.Position())
	assert.Equal(t, "apple", pc.Grid().Value(0, 1))
	assert.True(t, pc.Editable())
}

func TestStaleExecutionIsDropped(t *testing.T) {
	m := connected(t)

	m, first := update(t, m, explorer.QuickQueryMsg{Query: "SELECT * FROM fruit"})
	m, second := update(t, m, editor.ExecuteQueryMsg{Query: "SELECT name FROM fruit WHERE id = 3"})

	m, _ = update(t, m, second())
	m, _ = update(t, m, first())

	pc := m.results.Current()
	require.NotNil(t, pc)
	assert.Equal(t, "plum", pc.Grid().Value(0, 0))
}

func TestResultsCaptureKeysWhileEditing(t *testing.T) {
	m := connected(t)
	m, cmd := update(t, m, editor.ExecuteQueryMsg{Query: "SELECT id, name FROM fruit ORDER BY id"})
	m, _ = update(t, m, cmd())

	m.setFocus(PaneResults)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("e")})
	require.True(t, m.results.Capturing())

	// q and tab go to the cell editor instead of quitting or switching pane
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, PaneResults, m.activePane)
	assert.True(t, m.results.Capturing())

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.results.Capturing())
}
