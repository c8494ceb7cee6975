package database

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Backend identifies a database product. Everything that differs between
// products (quoting, placeholders, cursor support) hangs off this value.
type Backend int

const (
	Generic Backend = iota
	PostgreSQL
	MySQL
	SQLite
)

func (b Backend) String() string {
	switch b {
	case PostgreSQL:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite"
	default:
		return "generic"
	}
}

// ParseBackend maps a driver name from configuration to a Backend.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx", "pq":
		return PostgreSQL, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Generic, fmt.Errorf("unsupported driver %q", name)
	}
}

// Capabilities are the backend features the fetch planner chooses between.
type Capabilities struct {
	// ServerSideLimit means a statement can be capped so the server only
	// produces rows up to a high-water mark.
	ServerSideLimit bool
	// ScrollableCursors means a cursor can be positioned at an absolute row.
	ScrollableCursors bool
	// AbsoluteSelectOnly disables absolute positioning for anything but
	// plain SELECT statements.
	AbsoluteSelectOnly bool
	// MultipleResultSets means one statement may return several result sets.
	MultipleResultSets bool
}

type backendFeature struct {
	caps                  Capabilities
	positionalPlaceholder bool
	quote                 byte
	truncate              bool
	identity              string
	boolKeywords          bool
	defaultKeyword        bool
}

var backendFeatures = map[Backend]backendFeature{
	Generic: {
		quote: '"',
	},
	PostgreSQL: {
		caps: Capabilities{
			ServerSideLimit:    true,
			ScrollableCursors:  true,
			AbsoluteSelectOnly: true,
		},
		positionalPlaceholder: true,
		quote:                 '"',
		truncate:              true,
		identity:              "GENERATED BY DEFAULT AS IDENTITY",
		boolKeywords:          true,
		defaultKeyword:        true,
	},
	MySQL: {
		caps: Capabilities{
			ServerSideLimit:    true,
			MultipleResultSets: true,
		},
		quote:          '`',
		truncate:       true,
		identity:       "AUTO_INCREMENT",
		defaultKeyword: true,
	},
	SQLite: {
		caps: Capabilities{
			ServerSideLimit: true,
		},
		quote:        '"',
		identity:     "AUTOINCREMENT",
		boolKeywords: true,
	},
}

// Capabilities returns the feature flags of the backend.
func (b Backend) Capabilities() Capabilities {
	return backendFeatures[b].caps
}

// Placeholder returns the bind parameter marker for position pos (1-based).
func (b Backend) Placeholder(pos int) string {
	if backendFeatures[b].positionalPlaceholder {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

// QuoteIdent quotes an identifier, leaving it bare when it is obviously safe.
func (b Backend) QuoteIdent(ident string) string {
	if isSafeUnquotedIdent(ident) {
		return ident
	}
	q := string(backendFeatures[b].quote)
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// QuoteQualified quotes each dot-separated part of a qualified name.
func (b Backend) QuoteQualified(qualified string) string {
	parts := strings.Split(qualified, ".")
	for i, p := range parts {
		parts[i] = b.QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// BinaryLiteral renders bytes as a hex literal the backend accepts.
func (b Backend) BinaryLiteral(v []byte) string {
	if b == PostgreSQL {
		return `'\x` + hex.EncodeToString(v) + `'::bytea`
	}
	return "X'" + strings.ToUpper(hex.EncodeToString(v)) + "'"
}

// BoolLiteral renders a boolean literal.
func (b Backend) BoolLiteral(v bool) string {
	if backendFeatures[b].boolKeywords {
		if v {
			return "TRUE"
		}
		return "FALSE"
	}
	if v {
		return "1"
	}
	return "0"
}

// IdentityClause is the column clause that marks an auto-generated key.
func (b Backend) IdentityClause() string {
	return backendFeatures[b].identity
}

// DefaultKeyword reports whether DEFAULT may appear in an INSERT value list.
// Where it may not, the column is left out of the statement instead.
func (b Backend) DefaultKeyword() bool {
	return backendFeatures[b].defaultKeyword
}

// TruncateSQL returns the statement that removes every row of a table.
func (b Backend) TruncateSQL(qualifiedTable string) string {
	if backendFeatures[b].truncate {
		return "TRUNCATE TABLE " + b.QuoteQualified(qualifiedTable)
	}
	return "DELETE FROM " + b.QuoteQualified(qualifiedTable)
}

// isSafeUnquotedIdent returns true if ident can be used without quotes in a
// portable way across supported databases (lowercase [a-z_][a-z0-9_]* and not a
// common reserved keyword).
func isSafeUnquotedIdent(ident string) bool {
	if ident == "" {
		return false
	}
	c0 := ident[0]
	if !((c0 >= 'a' && c0 <= 'z') || c0 == '_') {
		return false
	}
	for i := 1; i < len(ident); i++ {
		c := ident[i]
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	_, reserved := commonReservedIdents[ident]
	return !reserved
}

// Small, conservative set of common SQL reserved keywords to avoid unquoted.
var commonReservedIdents = map[string]struct{}{
	// DML/DDL
	"select": {}, "insert": {}, "update": {}, "delete": {}, "into": {}, "values": {},
	"create": {}, "alter": {}, "drop": {}, "table": {}, "index": {}, "view": {},
	// Clauses
	"from": {}, "where": {}, "group": {}, "order": {}, "by": {}, "having": {},
	"limit": {}, "offset": {}, "join": {}, "inner": {}, "left": {}, "right": {}, "full": {}, "outer": {},
	// Operators/Predicates
	"and": {}, "or": {}, "not": {}, "in": {}, "is": {}, "like": {}, "between": {}, "exists": {},
	// Literals
	"null": {}, "true": {}, "false": {}, "default": {},
	// Misc
	"as": {}, "on": {}, "user": {}, "key": {},
}
