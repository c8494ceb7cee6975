package sqlinspect

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	"github.com/pingcap/tidb/parser/format"
)

var (
	identPattern = `(?:"(?:[^"]|"")+"|` + "`[^`]+`" + `|[A-Za-z_][A-Za-z0-9_$]*)`
	// table.column, schema.table.column or a wildcard, then an optional alias
	selectItem = regexp.MustCompile(`(?is)^((?:` + identPattern + `\.){0,2}(` + identPattern + `|\*))(?:\s+(?:as\s+)?(` + identPattern + `))?$`)

	// bare words that are values rather than column names
	valueWords = map[string]bool{
		"NULL": true, "TRUE": true, "FALSE": true, "DEFAULT": true,
		"CURRENT_DATE": true, "CURRENT_TIME": true, "CURRENT_TIMESTAMP": true,
		"CURRENT_USER": true, "SESSION_USER": true, "USER": true,
		"LOCALTIME": true, "LOCALTIMESTAMP": true,
	}
)

// plainSelectList is plainFields for statements the parser cannot read. It
// accepts SELECT [DISTINCT] followed by column references, each optionally
// aliased to its own name, up to the first top-level FROM.
func plainSelectList(text string) bool {
	s := stripComments(text)
	if firstWord(s) != "SELECT" {
		return false
	}
	s = strings.TrimSpace(s[len("SELECT"):])
	if firstWord(s) == "DISTINCT" {
		s = strings.TrimSpace(s[len("DISTINCT"):])
		if firstWord(s) == "ON" {
			return false
		}
	}

	items, ok := selectList(s)
	if !ok || len(items) == 0 {
		return false
	}
	for _, item := range items {
		m := selectItem.FindStringSubmatch(strings.TrimSpace(item))
		if m == nil {
			return false
		}
		name, alias := m[2], m[3]
		if valueWords[strings.ToUpper(name)] && !strings.Contains(m[1], ".") {
			return false
		}
		if alias != "" && !strings.EqualFold(unquote(name), unquote(alias)) {
			return false
		}
	}
	return true
}

// selectList splits s at top-level commas up to the FROM that ends the
// select list. It fails when there is no such FROM.
func selectList(s string) ([]string, bool) {
	var items []string
	depth, start := 0, 0
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(s, i, c)
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			items = append(items, s[start:i])
			start = i + 1
		case depth == 0 && wordAt(s, i, "FROM"):
			return append(items, s[start:i]), true
		}
		i++
	}
	return nil, false
}

func wordAt(s string, i int, word string) bool {
	end := i + len(word)
	if end > len(s) || !strings.EqualFold(s[i:end], word) {
		return false
	}
	if i > 0 && identByte(s[i-1]) {
		return false
	}
	return end == len(s) || !identByte(s[end])
}

func identByte(c byte) bool {
	return c == '_' || c == '$' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// WithLimit returns text, a MySQL SELECT, with its outermost row limit set
// to n. The statement is rendered back from its syntax tree, so comments and
// formatting are not preserved.
func WithLimit(text string, n int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("negative limit %d", n)
	}
	nodes, _, err := parser.New().Parse(text, "", "")
	if err != nil {
		return "", err
	}
	if len(nodes) != 1 {
		return "", fmt.Errorf("expected one statement, got %d", len(nodes))
	}

	limit := &ast.Limit{Count: ast.NewValueExpr(uint64(n), "", "")}
	switch stmt := nodes[0].(type) {
	case *ast.SelectStmt:
		stmt.Limit = limit
	case *ast.SetOprStmt:
		stmt.Limit = limit
	default:
		return "", errors.New("not a SELECT statement")
	}

	var b strings.Builder
	if err := nodes[0].Restore(format.NewRestoreCtx(format.DefaultRestoreFlags, &b)); err != nil {
		return "", fmt.Errorf("restore statement: %w", err)
	}
	return b.String(), nil
}
