package results

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/joacominatel/dataview/internal/app"
	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/executor"
	"github.com/joacominatel/dataview/internal/tui/theme"
)

// maxColumnWidth caps the display width of a column.
const maxColumnWidth = 40

// confirmation is a destructive action waiting for a yes.
type confirmation struct {
	title string
	lines []string
	run   func() (*executor.Handle, error)
}

// Model is the query results component. It shows the current page of one
// result set at a time. The page contexts it holds belong to the bubbletea
// event loop, so Model is only used from Update and View.
type Model struct {
	ctx     context.Context
	exec    *app.Execution
	current int
	err     error
	width   int
	height  int
	focused bool
	loading bool

	cursorY int
	cursorX int
	scrollX int

	editing bool
	input   textinput.Model
	confirm *confirmation
	preview []string

	totals        map[*app.PageContext]int
	seenJob       uuid.UUID
	statusMessage string
}

// New creates a new results model.
func New() Model {
	ti := textinput.New()
	ti.Prompt = "= "
	ti.CharLimit = 0
	return Model{
		ctx:    context.Background(),
		input:  ti,
		totals: make(map[*app.PageContext]int),
	}
}

// SetContext sets the context page jobs are submitted with.
func (m *Model) SetContext(ctx context.Context) {
	m.ctx = ctx
}

// SetSize updates the component dimensions.
func (m *Model) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.input.Width = w - 6
}

// SetFocused sets the focus state.
func (m *Model) SetFocused(f bool) {
	m.focused = f
}

// Focused returns whether the results pane has focus.
func (m Model) Focused() bool {
	return m.focused
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(l bool) {
	m.loading = l
}

// Capturing reports whether the pane wants every key, while a cell is being
// edited or a confirmation is pending.
func (m Model) Capturing() bool {
	return m.editing || m.confirm != nil
}

// StatusMessage returns the last message produced by the pane.
func (m Model) StatusMessage() string {
	return m.statusMessage
}

// SetExecution shows the results of a script. err may accompany the
// results of the statements that completed before the failure.
func (m *Model) SetExecution(ex *app.Execution, err error) {
	m.exec = ex
	m.err = err
	m.current = 0
	m.loading = false
	m.editing = false
	m.confirm = nil
	m.preview = nil
	m.totals = make(map[*app.PageContext]int)
	m.resetCursor()
	if ex != nil {
		m.statusMessage = summary(ex)
	}
}

// SetError sets an error to display.
func (m *Model) SetError(err error) {
	m.SetExecution(nil, err)
}

// Current returns the page context on display, or nil.
func (m Model) Current() *app.PageContext {
	if m.exec == nil || m.current >= len(m.exec.Pages) {
		return nil
	}
	return m.exec.Pages[m.current]
}

// Sync picks up the results of finished page jobs. The app calls it after
// running work posted by the executor.
func (m *Model) Sync() {
	pc := m.Current()
	if pc == nil {
		return
	}
	m.clampCursor()
	if r, ok := pc.LastResult(); ok && r.JobID != m.seenJob {
		m.seenJob = r.JobID
		m.statusMessage = r.Message()
		if r.Kind != executor.KindQuery && r.Succeeded() {
			delete(m.totals, pc)
		}
	}
}

// Position describes the rows on display, e.g. "rows 11-20 of 25".
func (m Model) Position() string {
	pc := m.Current()
	if pc == nil {
		return ""
	}
	c := pc.Cursor()
	n := pc.Grid().RowCount()
	var s string
	if n == 0 {
		s = fmt.Sprintf("page %d, no rows", c.PageNumber())
	} else {
		s = fmt.Sprintf("rows %d-%d", c.Offset(), c.Offset()+n-1)
	}
	if total, ok := m.totals[pc]; ok {
		s += fmt.Sprintf(" of %d", total)
	} else if pc.HasNext() {
		s += "+"
	}
	if len(m.exec.Pages) > 1 {
		s = fmt.Sprintf("[%d/%d] %s", m.current+1, len(m.exec.Pages), s)
	}
	return s
}

func summary(ex *app.Execution) string {
	var parts []string
	if len(ex.Pages) > 0 {
		parts = append(parts, fmt.Sprintf("%d result set(s)", len(ex.Pages)))
	}
	var affected int64
	for _, n := range ex.UpdateCounts {
		affected += n
	}
	if len(ex.UpdateCounts) > 0 {
		parts = append(parts, fmt.Sprintf("%d row(s) affected", affected))
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ")
}

func (m *Model) resetCursor() {
	m.cursorY, m.cursorX, m.scrollX = 0, 0, 0
}

func (m *Model) clampCursor() {
	pc := m.Current()
	if pc == nil {
		m.resetCursor()
		return
	}
	rows, cols := pc.Grid().RowCount(), pc.Grid().ColumnCount()
	m.cursorY = min(m.cursorY, rows-1)
	m.cursorY = max(m.cursorY, 0)
	m.cursorX = min(m.cursorX, cols-1)
	m.cursorX = max(m.cursorX, 0)
	m.scrollX = min(m.scrollX, m.cursorX)
}

// Init returns the initial command (none).
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the results pane.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(rowsCountedMsg); ok {
		if msg.err != nil {
			m.statusMessage = "Count failed: " + msg.err.Error()
		} else {
			m.totals[msg.page] = msg.n
			m.statusMessage = fmt.Sprintf("%d row(s) in result", msg.n)
		}
		return m, nil
	}

	if !m.focused {
		return m, nil
	}

	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.editing {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	switch {
	case m.editing:
		return m.updateEditing(key)
	case m.confirm != nil:
		return m.updateConfirm(key)
	case m.preview != nil:
		m.preview = nil
		return m, nil
	}
	return m.updateKey(key)
}

func (m Model) updateKey(key tea.KeyMsg) (Model, tea.Cmd) {
	pc := m.Current()
	if pc == nil {
		return m, nil
	}

	switch key.String() {
	case "up", "k":
		if m.cursorY > 0 {
			m.cursorY--
		}
	case "down", "j":
		if m.cursorY < pc.Grid().RowCount()-1 {
			m.cursorY++
		}
	case "left", "h":
		if m.cursorX > 0 {
			m.cursorX--
		}
		m.scrollX = min(m.scrollX, m.cursorX)
	case "right", "l":
		if m.cursorX < pc.Grid().ColumnCount()-1 {
			m.cursorX++
		}
		m.ensureVisible()
	case "home", "0":
		m.cursorX, m.scrollX = 0, 0
	case "end", "$":
		m.cursorX = pc.Grid().ColumnCount() - 1
		m.ensureVisible()

	case "n", "pgdown":
		m.submit(pc.Next(m.ctx))
	case "p", "pgup":
		m.submit(pc.Previous(m.ctx))
	case "g":
		m.submit(pc.First(m.ctx))
	case "r":
		m.submit(pc.Refresh(m.ctx))
	case "c":
		return m, countCmd(m.ctx, pc)
	case "[":
		m.switchResultSet(-1)
	case "]":
		m.switchResultSet(1)

	case "e", "enter":
		m.startEditing()
	case "u":
		if pc.Grid().RowCount() > 0 {
			pc.RevertCell(m.cursorY, m.cursorX, true)
		}
	case "U":
		pc.RevertAll(true)
		m.statusMessage = "Changes discarded"
	case "ctrl+s":
		m.submit(pc.CommitUpdates(m.ctx))
	case "v":
		m.showPreview()
	case "i":
		m.confirmInsert()
	case "D":
		m.confirmDelete()
	case "T":
		m.confirmTruncate()

	case "y":
		m.doCopyCell()
	case "Y":
		m.doCopyRowJSON()
	case "C":
		m.doCopyRowCSV()
	case "f":
		return m, m.doFilterByValue()
	case "X":
		return m, m.doGenerateDelete()
	case "E":
		return m, m.exportCSVCmd()
	case "J":
		return m, m.exportJSONCmd()
	}
	return m, nil
}

// submit reports the outcome of queuing a page job. The job's own result
// arrives later through Sync.
func (m *Model) submit(_ *executor.Handle, err error) {
	if err != nil {
		m.statusMessage = describe(err)
		return
	}
	m.statusMessage = "Working..."
}

func describe(err error) string {
	switch {
	case errors.Is(err, app.ErrNoPage):
		return "No more pages"
	case errors.Is(err, app.ErrReadOnly):
		return "Result is read-only"
	case errors.Is(err, app.ErrNoChanges):
		return "No pending changes"
	case errors.Is(err, app.ErrNotConnected):
		return "Not connected"
	}
	return "Error: " + err.Error()
}

func countCmd(ctx context.Context, pc *app.PageContext) tea.Cmd {
	return func() tea.Msg {
		n, err := pc.CountRows(ctx)
		return rowsCountedMsg{page: pc, n: n, err: err}
	}
}

func (m *Model) switchResultSet(step int) {
	if m.exec == nil || len(m.exec.Pages) < 2 {
		return
	}
	n := len(m.exec.Pages)
	m.current = (m.current + step + n) % n
	m.resetCursor()
}

// ensureVisible scrolls right until the cursor column fits.
func (m *Model) ensureVisible() {
	widths := m.columnWidths()
	avail := m.width - 2
	for m.scrollX < m.cursorX {
		used := 0
		for i := m.scrollX; i <= m.cursorX; i++ {
			used += widths[i] + 3
		}
		if used <= avail {
			break
		}
		m.scrollX++
	}
}

func (m Model) columnWidths() []int {
	pc := m.Current()
	if pc == nil {
		return nil
	}
	g := pc.Grid()
	widths := make([]int, g.ColumnCount())
	for i, col := range g.Columns() {
		widths[i] = lipgloss.Width(col.Name)
	}
	for r := 0; r < g.RowCount(); r++ {
		for c := range widths {
			widths[c] = max(widths[c], lipgloss.Width(FormatValue(g.Value(r, c))))
		}
	}
	for i := range widths {
		widths[i] = min(max(widths[i], 1), maxColumnWidth)
	}
	return widths
}

// View renders the results pane.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Foreground(theme.ColorPrimary).
		Bold(true).
		Padding(0, 1)

	if m.loading {
		return titleStyle.Render("Results") + "\n" + theme.StyleMuted.Render("  Executing query...")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Results"))

	if m.err != nil {
		b.WriteString("\n" + theme.StyleError.Render("  Error: "+m.err.Error()))
		var qerr *app.ErrQuery
		if errors.As(m.err, &qerr) && qerr.Position >= 0 {
			b.WriteString("\n" + theme.StyleMuted.Render(fmt.Sprintf("  at character %d", qerr.Position+1)))
		}
	}

	pc := m.Current()
	if pc == nil {
		switch {
		case m.exec != nil && len(m.exec.UpdateCounts) > 0:
			for i, n := range m.exec.UpdateCounts {
				b.WriteString("\n" + theme.StyleSuccess.Render(fmt.Sprintf("  statement %d: %d row(s) affected", i+1, n)))
			}
			b.WriteString("\n" + theme.StyleMuted.Render("  "+m.exec.Elapsed.Round(1000).String()))
		case m.exec != nil:
			b.WriteString("\n" + theme.StyleSuccess.Render("  Query executed successfully"))
		case m.err == nil:
			b.WriteString("\n" + theme.StyleMuted.Render("  Execute a query to see results"))
		}
		return b.String()
	}

	b.WriteString("  " + theme.StyleMuted.Render(m.header(pc)))

	if m.confirm != nil {
		b.WriteString("\n" + m.viewConfirm())
		return b.String()
	}
	if m.preview != nil {
		b.WriteString("\n" + m.viewPreview())
		return b.String()
	}

	widths := m.columnWidths()
	g := pc.Grid()
	names := make([]string, g.ColumnCount())
	for i, col := range g.Columns() {
		names[i] = col.Name
	}
	b.WriteString("\n" + m.renderHeader(names, widths))
	b.WriteString("\n" + m.renderSeparator(widths))

	visibleRows := m.height - 4
	if m.editing {
		visibleRows -= 2
	}
	visibleRows = max(visibleRows, 1)
	scrollY := 0
	if m.cursorY >= visibleRows {
		scrollY = m.cursorY - visibleRows + 1
	}
	for r := scrollY; r < g.RowCount() && r < scrollY+visibleRows; r++ {
		b.WriteString("\n" + m.renderRow(pc, r, widths))
	}

	if m.editing {
		col := g.Columns()[m.cursorX]
		b.WriteString("\n\n  " + theme.StyleMuted.Render(col.Name+" ("+col.DataType+")  \\N null  \\D default  Esc cancel") +
			"\n  " + m.input.View())
	}
	return b.String()
}

func (m Model) header(pc *app.PageContext) string {
	parts := []string{m.Position()}
	if t := pc.Table(); t != nil {
		parts = append(parts, "editing "+t.QualifiedName())
	} else {
		parts = append(parts, "read-only")
	}
	st := pc.Stats()
	parts = append(parts, fmt.Sprintf("%s %s", pc.Strategy(), (st.Execute + st.Fetch).Round(1000)))
	if n := len(pc.Grid().DirtyRows()); n > 0 {
		parts = append(parts, theme.StyleDirty.Render(fmt.Sprintf("%d row(s) modified", n)))
	}
	return strings.Join(parts, " │ ")
}

// visibleColumns returns the column range that fits from scrollX.
func (m Model) visibleColumns(widths []int) (from, to int) {
	avail := m.width - 2
	used := 0
	to = m.scrollX
	for to < len(widths) {
		used += widths[to] + 3
		if used > avail && to > m.scrollX {
			break
		}
		to++
	}
	return m.scrollX, to
}

func fit(s string, width int) string {
	if lipgloss.Width(s) > width {
		runes := []rune(s)
		for len(runes) > 0 && lipgloss.Width(string(runes)) >= width {
			runes = runes[:len(runes)-1]
		}
		s = string(runes) + "…"
	}
	if pad := width - lipgloss.Width(s); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}

func (m Model) renderHeader(names []string, widths []int) string {
	from, to := m.visibleColumns(widths)
	style := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorPrimary)
	parts := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		parts = append(parts, style.Render(fit(names[i], widths[i])))
	}
	return "  " + strings.Join(parts, " │ ")
}

func (m Model) renderRow(pc *app.PageContext, row int, widths []int) string {
	from, to := m.visibleColumns(widths)
	g := pc.Grid()
	parts := make([]string, 0, to-from)
	for c := from; c < to; c++ {
		v := g.Value(row, c)
		cell := fit(FormatValue(v), widths[c])
		switch {
		case m.focused && row == m.cursorY && c == m.cursorX:
			cell = theme.StyleSelected.Render(cell)
		case g.IsDirty(row, c):
			cell = theme.StyleDirty.Render(cell)
		case isMarker(v):
			cell = theme.StyleMarker.Render(cell)
		}
		parts = append(parts, cell)
	}
	mark := "  "
	if g.IsRowDirty(row) {
		mark = theme.StyleDirty.Render("* ")
	}
	return mark + strings.Join(parts, " │ ")
}

func (m Model) renderSeparator(widths []int) string {
	from, to := m.visibleColumns(widths)
	parts := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		parts = append(parts, strings.Repeat("─", widths[i]))
	}
	return "  " + lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(strings.Join(parts, "─┼─"))
}

// columnAt returns the descriptor of column c of the current page.
func (m Model) columnAt(c int) (database.Column, bool) {
	pc := m.Current()
	if pc == nil || c < 0 || c >= pc.Grid().ColumnCount() {
		return database.Column{}, false
	}
	return pc.Grid().Columns()[c], true
}
