package sqlgen

import "strings"

// Marker is a constant written into a statement as a SQL keyword instead of
// being bound as a parameter. Markers are stored in grid cells like any other
// value; the string "DEFAULT" is data, Default is the keyword.
type Marker int

const (
	Null Marker = iota + 1
	Default
	CurrentTimestamp
	CurrentDate
	CurrentTime
)

// SQL returns the keyword the marker stands for.
func (m Marker) SQL() string {
	switch m {
	case Null:
		return "NULL"
	case Default:
		return "DEFAULT"
	case CurrentTimestamp:
		return "CURRENT_TIMESTAMP"
	case CurrentDate:
		return "CURRENT_DATE"
	case CurrentTime:
		return "CURRENT_TIME"
	default:
		return ""
	}
}

// String renders the marker for display, distinct from any text value.
func (m Marker) String() string {
	if s := m.SQL(); s != "" {
		return "<" + s + ">"
	}
	return "<?>"
}

// ParseMarker maps a keyword (case-insensitive) to its marker.
func ParseMarker(s string) (Marker, bool) {
	for _, m := range []Marker{Null, Default, CurrentTimestamp, CurrentDate, CurrentTime} {
		if strings.EqualFold(strings.TrimSpace(s), m.SQL()) {
			return m, true
		}
	}
	return 0, false
}

// IsNull reports whether v writes SQL NULL.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	m, ok := v.(Marker)
	return ok && m == Null
}
