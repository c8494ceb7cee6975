package results

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joacominatel/dataview/internal/database"
	"github.com/joacominatel/dataview/internal/sqlgen"
)

// Escapes typed into the cell editor for values text cannot express.
const (
	inputNull      = `\N`
	inputDefault   = `\D`
	inputTimestamp = `\T`
)

// maxInlineBytes is the longest binary value shown as hex.
const maxInlineBytes = 32

// FormatValue renders a cell for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case sqlgen.Marker:
		return x.String()
	case []byte:
		if len(x) > maxInlineBytes {
			return fmt.Sprintf("<%d bytes>", len(x))
		}
		return `\x` + hex.EncodeToString(x)
	case string:
		return x
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05.999999")
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}

// EditText is the initial text of the cell editor for v. It round-trips
// through ParseInput.
func EditText(v any) string {
	switch x := v.(type) {
	case nil:
		return inputNull
	case sqlgen.Marker:
		switch x {
		case sqlgen.Null:
			return inputNull
		case sqlgen.Default:
			return inputDefault
		case sqlgen.CurrentTimestamp:
			return inputTimestamp
		}
	case []byte:
		return `\x` + hex.EncodeToString(x)
	}
	return FormatValue(v)
}

// ParseInput converts editor text into a cell value for col.
func ParseInput(text string, col database.Column) (any, error) {
	switch text {
	case inputNull:
		return sqlgen.Null, nil
	case inputDefault:
		return sqlgen.Default, nil
	case inputTimestamp:
		return sqlgen.CurrentTimestamp, nil
	}

	switch col.Kind {
	case database.KindNumeric:
		s := strings.TrimSpace(text)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
		return nil, fmt.Errorf("%s: %q is not a number", col.Name, text)
	case database.KindBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(text))
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a boolean", col.Name, text)
		}
		return b, nil
	case database.KindBinary:
		if strings.HasPrefix(text, `\x`) {
			b, err := hex.DecodeString(text[2:])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", col.Name, err)
			}
			return b, nil
		}
		return []byte(text), nil
	}
	return text, nil
}

func isMarker(v any) bool {
	_, ok := v.(sqlgen.Marker)
	return v == nil || ok
}

// exportValue is the text written for v by copy and export; NULL is nil.
func exportValue(v any) *string {
	if sqlgen.IsNull(v) {
		return nil
	}
	s := FormatValue(v)
	return &s
}
