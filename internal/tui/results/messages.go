package results

import "github.com/joacominatel/dataview/internal/app"

// SetEditorQueryMsg tells the app to put a query in the editor pane
type SetEditorQueryMsg struct {
	Query string
}

// StatusNotifyMsg tells the app to show a message in the status bar
type StatusNotifyMsg struct {
	Message string
}

// rowsCountedMsg carries the result of a background row count.
type rowsCountedMsg struct {
	page *app.PageContext
	n    int
	err  error
}
