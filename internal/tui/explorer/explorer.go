// Package explorer renders the schema tree: databases, schemas, tables and,
// once a table is opened, its columns.
package explorer

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joacominatel/dataview/internal/app"
	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/tui/theme"
)

// NodeKind identifies the type of a tree node.
type NodeKind int

const (
	NodeDatabase NodeKind = iota
	NodeSchema
	NodeTable
	NodeColumn
)

// TreeNode is one entry of the schema tree.
type TreeNode struct {
	Kind     NodeKind
	Name     string
	Schema   string
	Column   *database.Column // column nodes only
	Parent   *TreeNode
	Children []*TreeNode
	Expanded bool
	Loaded   bool
}

// QualifiedTable returns schema.table for table and column nodes.
func (n *TreeNode) QualifiedTable() string {
	t := n
	if n.Kind == NodeColumn {
		t = n.Parent
	}
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

func (n *TreeNode) path() string {
	if n.Parent == nil {
		return n.Name
	}
	return n.Parent.path() + "/" + n.Name
}

// QuickQueryMsg asks the app to run a query built from the selected table.
type QuickQueryMsg struct {
	Query string
}

// ShowDDLMsg asks the app to show the CREATE TABLE statement of a table.
type ShowDDLMsg struct {
	Table string
}

// ReloadMsg asks the app to reload the schema tree.
type ReloadMsg struct{}

type requestColumnsMsg struct {
	schema, table string
}

// IsRequestColumnsMsg reports whether msg asks for the columns of a table
// that was just opened.
func IsRequestColumnsMsg(msg tea.Msg) (schema, table string, ok bool) {
	if r, ok := msg.(requestColumnsMsg); ok {
		return r.schema, r.table, true
	}
	return "", "", false
}

type keyMap struct {
	Up, Down, Toggle, Open, Close key.Binding
	Select, DDL, Reload           key.Binding
}

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Toggle: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open/close")),
	Open:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "open")),
	Close:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "close or go to parent")),
	Select: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "select rows")),
	DDL:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "show DDL")),
	Reload: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
}

// line is a visible node and its depth.
type line struct {
	node  *TreeNode
	depth int
}

// Model is the explorer component.
type Model struct {
	root    *TreeNode
	lines   []line
	cursor  int
	offset  int
	width   int
	height  int
	focused bool
	loading bool
}

func New() Model {
	return Model{}
}

func (m *Model) SetSize(w, h int) {
	m.width, m.height = w, h
	m.scroll()
}

func (m *Model) SetFocused(f bool) { m.focused = f }
func (m Model) Focused() bool      { return m.focused }
func (m *Model) SetLoading(l bool) { m.loading = l }

// SetTree replaces the tree. Schemas open in the old tree stay open.
func (m *Model) SetTree(schema *app.SchemaTree) {
	open := map[string]bool{}
	if m.root != nil {
		walk(m.root, 0, func(n *TreeNode, _ int) bool {
			if n.Expanded && n.Kind != NodeTable {
				open[n.path()] = true
			}
			return true
		})
	}

	root := &TreeNode{Kind: NodeDatabase, Name: schema.Database, Expanded: true, Loaded: true}
	for _, s := range schema.Schemas {
		label := s.Name
		if label == "" {
			label = "default"
		}
		sn := &TreeNode{Kind: NodeSchema, Name: label, Schema: s.Name, Parent: root, Loaded: true}
		sn.Expanded = open[sn.path()]
		for _, t := range s.Tables {
			sn.Children = append(sn.Children, &TreeNode{Kind: NodeTable, Name: t, Schema: s.Name, Parent: sn})
		}
		root.Children = append(root.Children, sn)
	}

	m.root = root
	m.loading = false
	m.relayout()
}

// TableNames returns every table in the tree, qualified when the table
// belongs to a named schema.
func (m Model) TableNames() []string {
	var names []string
	m.eachTable(func(t *TreeNode) bool {
		names = append(names, t.QualifiedTable())
		return true
	})
	return names
}

// SetColumns fills in the columns of a table.
func (m *Model) SetColumns(schema, table string, columns []database.Column) {
	m.eachTable(func(t *TreeNode) bool {
		if t.Schema != schema || t.Name != table {
			return true
		}
		t.Children = nil
		for i := range columns {
			t.Children = append(t.Children, &TreeNode{
				Kind:   NodeColumn,
				Name:   columns[i].Name,
				Schema: schema,
				Column: &columns[i],
				Parent: t,
			})
		}
		t.Loaded = true
		return false
	})
	m.relayout()
}

func (m Model) eachTable(fn func(*TreeNode) bool) {
	if m.root == nil {
		return
	}
	for _, s := range m.root.Children {
		for _, t := range s.Children {
			if !fn(t) {
				return
			}
		}
	}
}

// SelectedTable returns the qualified name of the table under the cursor,
// or of the table owning the selected column.
func (m Model) SelectedTable() (string, bool) {
	n := m.selected()
	if n == nil || (n.Kind != NodeTable && n.Kind != NodeColumn) {
		return "", false
	}
	return n.QualifiedTable(), true
}

func (m Model) selected() *TreeNode {
	if m.cursor < 0 || m.cursor >= len(m.lines) {
		return nil
	}
	return m.lines[m.cursor].node
}

// walk visits n and, while fn returns true, its children.
func walk(n *TreeNode, depth int, fn func(*TreeNode, int) bool) {
	if !fn(n, depth) {
		return
	}
	for _, c := range n.Children {
		walk(c, depth+1, fn)
	}
}

func (m *Model) relayout() {
	m.lines = nil
	if m.root != nil {
		walk(m.root, 0, func(n *TreeNode, depth int) bool {
			m.lines = append(m.lines, line{node: n, depth: depth})
			return n.Expanded
		})
	}
	m.cursor = min(m.cursor, max(len(m.lines)-1, 0))
	m.scroll()
}

func (m *Model) moveTo(n *TreeNode) {
	for i, l := range m.lines {
		if l.node == n {
			m.cursor = i
			break
		}
	}
	m.scroll()
}

func (m *Model) rows() int {
	return max(m.height-2, 1)
}

// scroll moves the window only as far as needed to show the cursor.
func (m *Model) scroll() {
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+m.rows() {
		m.offset = m.cursor - m.rows() + 1
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	k, ok := msg.(tea.KeyMsg)
	if !ok || !m.focused {
		return m, nil
	}

	switch {
	case key.Matches(k, keys.Up):
		if m.cursor > 0 {
			m.cursor--
			m.scroll()
		}
	case key.Matches(k, keys.Down):
		if m.cursor < len(m.lines)-1 {
			m.cursor++
			m.scroll()
		}
	case key.Matches(k, keys.Toggle):
		if n := m.selected(); n != nil && n.Expanded {
			m.setOpen(n, false)
			return m, nil
		}
		cmd := m.open()
		return m, cmd
	case key.Matches(k, keys.Open):
		cmd := m.open()
		return m, cmd
	case key.Matches(k, keys.Close):
		n := m.selected()
		switch {
		case n == nil:
		case n.Expanded:
			m.setOpen(n, false)
		case n.Parent != nil:
			m.moveTo(n.Parent)
		}
	case key.Matches(k, keys.Select):
		if table, ok := m.SelectedTable(); ok {
			q := QuickQueryMsg{Query: "SELECT * FROM " + table}
			return m, func() tea.Msg { return q }
		}
	case key.Matches(k, keys.DDL):
		if table, ok := m.SelectedTable(); ok {
			return m, func() tea.Msg { return ShowDDLMsg{Table: table} }
		}
	case key.Matches(k, keys.Reload):
		return m, func() tea.Msg { return ReloadMsg{} }
	}
	return m, nil
}

// open expands the selected node. Opening a table for the first time asks
// for its columns.
func (m *Model) open() tea.Cmd {
	n := m.selected()
	if n == nil || n.Kind == NodeColumn || n.Expanded {
		return nil
	}
	m.setOpen(n, true)
	if n.Kind != NodeTable || n.Loaded {
		return nil
	}
	req := requestColumnsMsg{schema: n.Schema, table: n.Name}
	return func() tea.Msg { return req }
}

func (m *Model) setOpen(n *TreeNode, open bool) {
	n.Expanded = open
	m.relayout()
}

func (m Model) View() string {
	title := lipgloss.NewStyle().Foreground(theme.ColorPrimary).Bold(true).Padding(0, 1).Render("Schema")
	switch {
	case m.loading:
		return title + "\n" + theme.StyleMuted.Render("  Loading...")
	case m.root == nil:
		return title + "\n" + theme.StyleMuted.Render("  No connection")
	}

	out := []string{title}
	end := min(m.offset+m.rows(), len(m.lines))
	for i := m.offset; i < end; i++ {
		out = append(out, m.renderLine(m.lines[i], i == m.cursor))
	}
	return strings.Join(out, "\n")
}

func (m Model) renderLine(l line, selected bool) string {
	n := l.node
	marker := "▸ "
	switch {
	case n.Kind == NodeColumn:
		marker = "  "
	case n.Expanded:
		marker = "▾ "
	}

	label, detail := n.Name, ""
	if c := n.Column; c != nil {
		if c.IsPrimary {
			label = "*" + label
		}
		detail = c.DataType
		if !c.Writable() {
			detail += " (generated)"
		}
	}

	text := clip(strings.Repeat("  ", l.depth)+marker+label, detail, m.width-2)
	if selected {
		return lipgloss.NewStyle().Foreground(theme.ColorHighlight).Bold(true).Render(text)
	}
	if i := strings.LastIndex(text, detail); detail != "" && i > 0 {
		return text[:i] + theme.StyleMuted.Render(text[i:])
	}
	return text
}

// clip joins label and detail and cuts the result to width runes, marking
// the cut with "..".
func clip(label, detail string, width int) string {
	s := label
	if detail != "" {
		s += " " + detail
	}
	r := []rune(s)
	if width < 4 || len(r) <= width {
		return s
	}
	return string(r[:width-2]) + ".."
}
