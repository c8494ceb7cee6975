package statusbar

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joacominatel/dataview/internal/executor"
	"github.com/joacominatel/dataview/internal/tui/theme"
)

// Model is the status bar component.
type Model struct {
	width      int
	connected  bool
	connName   string
	activePane string
	message    string

	state   executor.State
	page    string
	elapsed time.Duration
}

// New creates a new status bar model.
func New() Model {
	return Model{
		activePane: "explorer",
	}
}

// SetWidth updates the component width.
func (m *Model) SetWidth(w int) {
	m.width = w
}

// SetConnected updates the connection status display.
func (m *Model) SetConnected(connected bool, name string) {
	m.connected = connected
	m.connName = name
}

// SetActivePane updates the displayed active pane name.
func (m *Model) SetActivePane(pane string) {
	m.activePane = pane
}

// SetMessage sets a temporary status message.
func (m *Model) SetMessage(msg string) {
	m.message = msg
}

// SetJob shows the executor state and the duration of the last job.
func (m *Model) SetJob(state executor.State, elapsed time.Duration) {
	m.state = state
	if elapsed > 0 {
		m.elapsed = elapsed
	}
}

// SetPage shows the position of the current result page, e.g. "rows 11-20".
func (m *Model) SetPage(pos string) {
	m.page = pos
}

// Init returns the initial command (none).
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages (status bar has no interactive behavior).
func (m Model) Update(_ tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

func (m Model) jobIndicator() string {
	switch m.state {
	case executor.StateRunning:
		return lipgloss.NewStyle().Foreground(theme.ColorHighlight).Render("running") + " (ctrl+x cancels)"
	case executor.StateIdle:
		if m.elapsed > 0 {
			return theme.StyleMuted.Render(m.elapsed.Round(time.Millisecond).String())
		}
		return ""
	}
	return m.state.String()
}

// View renders the status bar.
func (m Model) View() string {
	style := theme.StyleStatusBar.Width(m.width)

	// Connection indicator
	var connIndicator string
	if m.connected {
		connIndicator = lipgloss.NewStyle().
			Foreground(theme.ColorSuccess).
			Render("●") + " " + m.connName
	} else {
		connIndicator = lipgloss.NewStyle().
			Foreground(theme.ColorError).
			Render("●") + " disconnected"
	}

	left := []string{connIndicator}
	if m.page != "" {
		left = append(left, m.page)
	}
	if job := m.jobIndicator(); job != "" {
		left = append(left, job)
	}
	leftText := strings.Join(left, " │ ")

	hints := fmt.Sprintf("Ctrl+E: Execute │ Tab: %s │ ?: Help │ q: Quit", m.activePane)

	// Message or hints
	right := hints
	if m.message != "" {
		right = m.message
	}

	leftLen := lipgloss.Width(leftText)
	rightLen := lipgloss.Width(right)
	padding := m.width - leftLen - rightLen - 4 // borders + spacing
	if padding < 1 {
		padding = 1
	}

	bar := leftText + strings.Repeat(" ", padding) + right

	return style.Render(bar)
}
