package results

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joacominatel/dataview/internal/executor"
	"github.com/joacominatel/dataview/internal/tui/theme"
)

func (m *Model) startEditing() {
	pc := m.Current()
	if pc == nil || pc.Grid().RowCount() == 0 {
		return
	}
	if !pc.Editable() {
		m.statusMessage = "Result is read-only"
		return
	}
	col, _ := m.columnAt(m.cursorX)
	if !col.Writable() {
		m.statusMessage = col.Name + " is generated and cannot be edited"
		return
	}
	m.editing = true
	m.input.SetValue(EditText(pc.Grid().Value(m.cursorY, m.cursorX)))
	m.input.CursorEnd()
	m.input.Focus()
}

func (m Model) updateEditing(key tea.KeyMsg) (Model, tea.Cmd) {
	switch key.String() {
	case "esc":
		m.stopEditing()
		return m, nil
	case "enter":
		pc := m.Current()
		col, ok := m.columnAt(m.cursorX)
		if pc == nil || !ok {
			m.stopEditing()
			return m, nil
		}
		v, err := ParseInput(m.input.Value(), col)
		if err == nil {
			err = pc.SetValue(m.cursorY, m.cursorX, v)
		}
		if err != nil {
			m.statusMessage = describe(err)
			return m, nil
		}
		m.stopEditing()
		if pc.Grid().IsDirty(m.cursorY, m.cursorX) {
			m.statusMessage = "Modified; ctrl+s commits, u reverts"
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

func (m *Model) stopEditing() {
	m.editing = false
	m.input.Blur()
	m.input.Reset()
}

// showPreview lists the statements ctrl+s would run.
func (m *Model) showPreview() {
	pc := m.Current()
	lines, err := pc.PreviewUpdates()
	if err != nil {
		m.statusMessage = describe(err)
		return
	}
	if len(lines) == 0 {
		m.statusMessage = "No pending changes"
		return
	}
	m.preview = lines
}

func (m *Model) confirmInsert() {
	pc := m.Current()
	if pc.Grid().RowCount() == 0 {
		return
	}
	values := pc.Grid().Row(m.cursorY)
	sql, err := pc.PreviewInsert(values)
	if err != nil {
		m.statusMessage = describe(err)
		return
	}
	ctx := m.ctx
	m.confirm = &confirmation{
		title: "Insert a row with these values?",
		lines: []string{sql},
		run: func() (*executor.Handle, error) {
			return pc.Insert(ctx, values)
		},
	}
}

func (m *Model) confirmDelete() {
	pc := m.Current()
	if pc.Grid().RowCount() == 0 {
		return
	}
	rows := []int{m.cursorY}
	lines, err := pc.PreviewDelete(rows)
	if err != nil {
		m.statusMessage = describe(err)
		return
	}
	ctx := m.ctx
	m.confirm = &confirmation{
		title: "Delete this row?",
		lines: lines,
		run: func() (*executor.Handle, error) {
			return pc.DeleteRows(ctx, rows)
		},
	}
}

func (m *Model) confirmTruncate() {
	pc := m.Current()
	t := pc.Table()
	if t == nil {
		m.statusMessage = "Result is read-only"
		return
	}
	ctx := m.ctx
	m.confirm = &confirmation{
		title: fmt.Sprintf("Remove every row of %s?", t.QualifiedName()),
		run: func() (*executor.Handle, error) {
			return pc.Truncate(ctx)
		},
	}
}

func (m Model) updateConfirm(key tea.KeyMsg) (Model, tea.Cmd) {
	c := m.confirm
	m.confirm = nil
	if key.String() != "y" {
		m.statusMessage = "Cancelled"
		return m, nil
	}
	m.submit(c.run())
	return m, nil
}

func (m Model) viewConfirm() string {
	var b strings.Builder
	b.WriteString("\n  " + theme.StyleDirty.Render(m.confirm.title))
	for _, l := range m.confirm.lines {
		b.WriteString("\n  " + l)
	}
	b.WriteString("\n\n  " + theme.StyleMuted.Render("y: confirm  any other key: cancel"))
	return b.String()
}

func (m Model) viewPreview() string {
	var b strings.Builder
	b.WriteString("\n  " + theme.StyleTitle.Render("Pending changes"))
	for _, l := range m.preview {
		b.WriteString("\n  " + l + ";")
	}
	b.WriteString("\n\n  " + theme.StyleMuted.Render("ctrl+s commits after closing  any key: close"))
	return b.String()
}
