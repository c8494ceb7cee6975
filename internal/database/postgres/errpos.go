package postgres

import (
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/joacominatel/dataview/internal/database"
)

func init() {
	database.RegisterErrorLocator(database.PostgreSQL, errorPosition)
}

// errorPosition reads the 1-based character position the server reports
// with syntax errors and converts it to a byte offset into sql.
func errorPosition(sql string, err error) (int, bool) {
	var chars int
	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		chars = int(pgErr.Position)
	case errors.As(err, &pqErr):
		n, convErr := strconv.Atoi(pqErr.Position)
		if convErr != nil {
			return 0, false
		}
		chars = n
	default:
		return 0, false
	}
	if chars <= 0 {
		return 0, false
	}
	return runeOffset(sql, chars-1)
}

func runeOffset(s string, n int) (int, bool) {
	i := 0
	for off := range s {
		if i == n {
			return off, true
		}
		i++
	}
	if i == n {
		return len(s), true
	}
	return 0, false
}
