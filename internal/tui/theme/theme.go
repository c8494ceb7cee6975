package theme

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	ColorPrimary   = lipgloss.Color("63")  // Purple
	ColorSecondary = lipgloss.Color("241") // Gray
	ColorSuccess   = lipgloss.Color("42")  // Green
	ColorError     = lipgloss.Color("196") // Red
	ColorBorder    = lipgloss.Color("238") // Dark gray
	ColorMuted     = lipgloss.Color("245") // Light gray
	ColorHighlight = lipgloss.Color("229") // Yellow
	ColorDirty     = lipgloss.Color("214") // Orange
)

// Shared styles used across TUI components.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleActiveBorder = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(ColorPrimary)

	StyleTitle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleStatusBar = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	// StyleDirty marks edited cells that are not committed yet.
	StyleDirty = lipgloss.NewStyle().
			Foreground(ColorDirty).
			Bold(true)

	// StyleSelected marks the cell under the results cursor.
	StyleSelected = lipgloss.NewStyle().
			Reverse(true)

	// StyleMarker renders NULL and other constant markers.
	StyleMarker = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Italic(true)
)

// Named returns the accent color of a named theme. Unknown names fall back
// to the default palette.
func Named(name string) lipgloss.Color {
	switch name {
	case "ocean":
		return lipgloss.Color("39")
	case "forest":
		return lipgloss.Color("35")
	default:
		return lipgloss.Color("63")
	}
}

// Apply switches the accent color of the shared styles.
func Apply(name string) {
	ColorPrimary = Named(name)
	StyleActiveBorder = StyleActiveBorder.BorderForeground(ColorPrimary)
	StyleTitle = StyleTitle.Foreground(ColorPrimary)
}
