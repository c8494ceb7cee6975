package results

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
)

// writeClipboard is swapped out by tests.
var writeClipboard = clipboard.WriteAll

// pageData is a snapshot of the current page taken on the event loop, so
// export commands can run off it.
type pageData struct {
	columns []string
	rows    [][]*string
}

func (m Model) snapshot() *pageData {
	pc := m.Current()
	if pc == nil {
		return nil
	}
	g := pc.Grid()
	d := &pageData{}
	for _, col := range g.Columns() {
		d.columns = append(d.columns, col.Name)
	}
	for r := 0; r < g.RowCount(); r++ {
		row := make([]*string, g.ColumnCount())
		for c := range row {
			row[c] = exportValue(g.Value(r, c))
		}
		d.rows = append(d.rows, row)
	}
	return d
}

func (m Model) currentRow() ([]string, []*string, bool) {
	d := m.snapshot()
	if d == nil || m.cursorY < 0 || m.cursorY >= len(d.rows) {
		return nil, nil, false
	}
	return d.columns, d.rows[m.cursorY], true
}

// --- Copy ---

func (m *Model) doCopyCell() {
	pc := m.Current()
	if pc == nil || m.cursorY >= pc.Grid().RowCount() {
		m.statusMessage = "Nothing to copy"
		return
	}
	val := FormatValue(pc.Grid().Value(m.cursorY, m.cursorX))
	if err := writeClipboard(val); err != nil {
		m.statusMessage = "Copy failed: " + err.Error()
		return
	}
	m.statusMessage = "Copied: " + truncateStatus(val, 40)
}

func (m *Model) doCopyRowJSON() {
	cols, row, ok := m.currentRow()
	if !ok {
		m.statusMessage = "No row to copy"
		return
	}
	if err := writeClipboard(rowToJSON(cols, row)); err != nil {
		m.statusMessage = "Copy failed: " + err.Error()
		return
	}
	m.statusMessage = "Copied row as JSON"
}

func (m *Model) doCopyRowCSV() {
	cols, row, ok := m.currentRow()
	if !ok {
		m.statusMessage = "No row to copy"
		return
	}
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write(cols)
	_ = w.Write(csvRecord(row))
	w.Flush()
	if err := writeClipboard(b.String()); err != nil {
		m.statusMessage = "Copy failed: " + err.Error()
		return
	}
	m.statusMessage = "Copied row as CSV"
}

// --- Filter ---

func (m *Model) doFilterByValue() tea.Cmd {
	pc := m.Current()
	if pc == nil || m.cursorY >= pc.Grid().RowCount() {
		m.statusMessage = "Cannot filter: no cell selected"
		return nil
	}
	query, err := pc.FilterQuery(m.cursorX, pc.Grid().OriginalValue(m.cursorY, m.cursorX))
	if err != nil {
		m.statusMessage = "Cannot filter: " + err.Error()
		return nil
	}
	return func() tea.Msg {
		return SetEditorQueryMsg{Query: query}
	}
}

// --- Delete ---

// doGenerateDelete puts the DELETE for the current row in the editor.
func (m *Model) doGenerateDelete() tea.Cmd {
	pc := m.Current()
	if pc == nil || m.cursorY >= pc.Grid().RowCount() {
		return nil
	}
	lines, err := pc.PreviewDelete([]int{m.cursorY})
	if err != nil {
		m.statusMessage = describe(err)
		return nil
	}

	// send to editor for review, never auto-execute deletes
	query := "-- review before executing!\n" + lines[0]

	return func() tea.Msg {
		return SetEditorQueryMsg{Query: query}
	}
}

// --- Export ---

func (m Model) exportJSONCmd() tea.Cmd {
	d := m.snapshot()
	if d == nil {
		return nil
	}
	return func() tea.Msg {
		ts := time.Now().Format("20060102_150405")
		filename := fmt.Sprintf("dataview_export_%s.json", ts)

		var b strings.Builder
		b.WriteString("[\n")
		for ri, row := range d.rows {
			if ri > 0 {
				b.WriteString(",\n")
			}
			b.WriteString("  ")
			b.WriteString(rowToJSON(d.columns, row))
		}
		b.WriteString("\n]")

		if err := os.WriteFile(filename, []byte(b.String()), 0644); err != nil {
			return StatusNotifyMsg{Message: "Export failed: " + err.Error()}
		}
		return StatusNotifyMsg{Message: fmt.Sprintf("Exported %d rows to %s", len(d.rows), filename)}
	}
}

func (m Model) exportCSVCmd() tea.Cmd {
	d := m.snapshot()
	if d == nil {
		return nil
	}
	return func() tea.Msg {
		ts := time.Now().Format("20060102_150405")
		filename := fmt.Sprintf("dataview_export_%s.csv", ts)

		f, err := os.Create(filename)
		if err != nil {
			return StatusNotifyMsg{Message: "Export failed: " + err.Error()}
		}
		defer f.Close()

		w := csv.NewWriter(f)
		_ = w.Write(d.columns)
		for _, row := range d.rows {
			_ = w.Write(csvRecord(row))
		}
		w.Flush()

		if err := w.Error(); err != nil {
			return StatusNotifyMsg{Message: "Export failed: " + err.Error()}
		}
		return StatusNotifyMsg{Message: fmt.Sprintf("Exported %d rows to %s", len(d.rows), filename)}
	}
}

// --- Helpers ---

// csvRecord writes NULL as an empty field.
func csvRecord(row []*string) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if v != nil {
			out[i] = *v
		}
	}
	return out
}

// rowToJSON preserves column order unlike map marshaling
func rowToJSON(columns []string, row []*string) string {
	var b strings.Builder
	b.WriteString("{")
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		key, _ := json.Marshal(col)
		b.WriteString(string(key))
		b.WriteString(": ")
		if i < len(row) && row[i] != nil {
			val, _ := json.Marshal(*row[i])
			b.WriteString(string(val))
		} else {
			b.WriteString("null")
		}
	}
	b.WriteString("}")
	return b.String()
}

func truncateStatus(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
