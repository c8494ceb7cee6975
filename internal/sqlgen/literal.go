package sqlgen

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joacominatel/dataview/internal/database"
)

// Literal renders v as SQL text for col: numbers bare, binary data as a hex
// literal, everything else single-quoted with quotes doubled.
func (g *Generator) Literal(col database.Column, v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case Marker:
		return x.SQL()
	case bool:
		return g.backend.BoolLiteral(x)
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []byte:
		if col.Kind == database.KindBinary || !utf8.Valid(x) {
			return g.backend.BinaryLiteral(x)
		}
		return quote(string(x))
	case time.Time:
		return quote(formatTime(col, x))
	case string:
		if col.Kind == database.KindNumeric && isNumber(x) {
			return x
		}
		if col.Kind == database.KindCLOB {
			return quoteCLOB(x)
		}
		return quote(x)
	default:
		return quote(fmt.Sprint(x))
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteCLOB quotes large text. NUL bytes cannot appear in a SQL string
// literal on any supported backend and are dropped.
func quoteCLOB(s string) string {
	return quote(strings.ReplaceAll(s, "\x00", ""))
}

func isNumber(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func formatTime(col database.Column, t time.Time) string {
	typ := strings.ToLower(col.DataType)
	switch {
	case typ == "date":
		return t.Format("2006-01-02")
	case strings.HasPrefix(typ, "time") && !strings.HasPrefix(typ, "timestamp"):
		return t.Format("15:04:05.999999999")
	case strings.Contains(typ, "with time zone") || strings.HasSuffix(typ, "tz"):
		return t.Format("2006-01-02 15:04:05.999999999Z07:00")
	default:
		return t.Format("2006-01-02 15:04:05.999999999")
	}
}
