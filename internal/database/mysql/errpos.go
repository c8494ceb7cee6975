package mysql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/joacominatel/dataview/internal/database"
)

// ER_PARSE_ERROR
const errParse = 1064

func init() {
	database.RegisterErrorLocator(database.MySQL, errorPosition)
}

// errorPosition finds the fragment quoted after "near" in a parse error
// inside the statement text. MySQL reports no numeric offset.
func errorPosition(sql string, err error) (int, bool) {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != errParse {
		return 0, false
	}
	msg := myErr.Message
	i := strings.Index(msg, "near '")
	if i < 0 {
		return 0, false
	}
	rest := msg[i+len("near '"):]
	// the fragment ends at "' at line N"
	j := strings.LastIndex(rest, "' at line")
	if j < 0 {
		return 0, false
	}
	fragment := rest[:j]
	if fragment == "" {
		// error at end of input
		return len(strings.TrimRight(sql, " \t\r\n;")), true
	}
	pos := strings.Index(sql, fragment)
	if pos < 0 {
		return 0, false
	}
	return pos, true
}
