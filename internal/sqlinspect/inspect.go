// Package sqlinspect classifies SQL statements: whether they return rows,
// whether they are plain SELECTs that already limit their output, and which
// tables they read. MySQL-compatible text goes through the TiDB parser; other
// dialects fall back to keyword heuristics.
package sqlinspect

import (
	"regexp"
	"strings"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	_ "github.com/pingcap/tidb/parser/test_driver"
)

// Statement describes one statement of a script.
type Statement struct {
	Text string
	// Query means the statement produces a result set.
	Query bool
	// Select means the statement is a SELECT (or set operation, or WITH ...
	// SELECT) that may be wrapped as a subquery.
	Select bool
	// HasLimit means the statement already caps its own row count.
	HasLimit bool
	// Tables lists the base tables the statement reads, in order of first
	// appearance, without CTE names.
	Tables []string
	// ColumnsOnly means every result column is a wildcard or a bare column
	// reference keeping its own name, so values map back to table cells.
	ColumnsOnly bool
	// Parsed is false when the heuristics were used.
	Parsed bool
}

// SingleTable returns the only table the statement reads.
func (s Statement) SingleTable() (string, bool) {
	if len(s.Tables) != 1 {
		return "", false
	}
	return s.Tables[0], true
}

var (
	limitClause = regexp.MustCompile(`(?i)\b(limit\s+(\d+|all|\?|\$\d+)|fetch\s+(first|next)\s|offset\s+\d+\s+rows?)`)
	queryWords  = map[string]bool{
		"SELECT": true, "WITH": true, "VALUES": true, "TABLE": true, "SHOW": true,
		"EXPLAIN": true, "DESCRIBE": true, "DESC": true, "PRAGMA": true, "CALL": true, "(": true,
	}
	selectWords = map[string]bool{"SELECT": true, "WITH": true, "(": true}
	clauseWords = map[string]bool{
		"WHERE": true, "JOIN": true, "ON": true, "GROUP": true, "ORDER": true,
		"LIMIT": true, "HAVING": true, "LEFT": true, "RIGHT": true, "INNER": true,
	}
)

// Parse splits a script and inspects every statement in it.
func Parse(script string) []Statement {
	texts := Split(script)
	stmts := make([]Statement, 0, len(texts))
	for _, t := range texts {
		stmts = append(stmts, Inspect(t))
	}
	return stmts
}

// Inspect classifies a single statement.
func Inspect(text string) Statement {
	text = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(text), ";"))
	if st, ok := inspectParsed(text); ok {
		return st
	}
	return inspectHeuristic(text)
}

func inspectParsed(text string) (Statement, bool) {
	p := parser.New()
	nodes, _, err := p.Parse(text, "", "")
	if err != nil || len(nodes) != 1 {
		return Statement{}, false
	}

	st := Statement{Text: text, Parsed: true}
	switch n := nodes[0].(type) {
	case *ast.SelectStmt:
		st.Query, st.Select = true, true
		st.HasLimit = n.Limit != nil
		st.Tables = collectTables(n, n.With)
		st.ColumnsOnly = plainFields(n.Fields)
	case *ast.SetOprStmt:
		st.Query, st.Select = true, true
		st.HasLimit = n.Limit != nil
		st.Tables = collectTables(n, n.With)
	case *ast.ShowStmt, *ast.ExplainStmt:
		st.Query = true
	default:
		// CALL may return rows; keep the first keyword as the judge
		st.Query = queryWords[firstWord(text)]
	}
	return st, true
}

func inspectHeuristic(text string) Statement {
	word := firstWord(text)
	st := Statement{
		Text:   text,
		Query:  queryWords[word],
		Select: selectWords[word],
	}
	if st.Select {
		st.HasLimit = limitClause.MatchString(stripLiterals(text))
		st.Tables = fromTables(text)
		st.ColumnsOnly = plainSelectList(text)
	}
	return st
}

// plainFields reports whether a parsed select list holds only wildcards and
// column names aliased to themselves.
func plainFields(fields *ast.FieldList) bool {
	if fields == nil || len(fields.Fields) == 0 {
		return false
	}
	for _, f := range fields.Fields {
		if f.WildCard != nil {
			continue
		}
		col, ok := f.Expr.(*ast.ColumnNameExpr)
		if !ok {
			return false
		}
		if f.AsName.L != "" && f.AsName.L != col.Name.Name.L {
			return false
		}
	}
	return true
}

func firstWord(text string) string {
	s := stripComments(text)
	if strings.HasPrefix(s, "(") {
		return "("
	}
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
	})
	if end >= 0 {
		s = s[:end]
	}
	return strings.ToUpper(s)
}

// tableCollector gathers table names from a parsed statement.
type tableCollector struct {
	ctes   map[string]bool
	seen   map[string]bool
	tables []string
}

func (c *tableCollector) Enter(n ast.Node) (ast.Node, bool) {
	tn, ok := n.(*ast.TableName)
	if !ok {
		return n, false
	}
	name := tn.Name.O
	if tn.Schema.O != "" {
		name = tn.Schema.O + "." + name
	} else if c.ctes[strings.ToLower(name)] {
		return n, true
	}
	key := strings.ToLower(name)
	if !c.seen[key] {
		c.seen[key] = true
		c.tables = append(c.tables, name)
	}
	return n, true
}

func (c *tableCollector) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}

func collectTables(n ast.Node, with *ast.WithClause) []string {
	c := &tableCollector{ctes: map[string]bool{}, seen: map[string]bool{}}
	if with != nil {
		for _, cte := range with.CTEs {
			c.ctes[strings.ToLower(cte.Name.O)] = true
		}
	}
	n.Accept(c)
	return c.tables
}

// fromTables is the heuristic used when the statement does not parse: every
// identifier following FROM or JOIN, plus comma-joined lists after FROM.
func fromTables(query string) []string {
	tokens := strings.Fields(stripLiterals(query))
	var tables []string
	seen := map[string]bool{}
	add := func(tok string) {
		name := strings.Trim(tok, ";,()")
		if name == "" || strings.HasPrefix(tok, "(") {
			return
		}
		name = unquote(name)
		if key := strings.ToLower(name); !seen[key] {
			seen[key] = true
			tables = append(tables, name)
		}
	}
	for i := 0; i < len(tokens); i++ {
		tok := strings.ToUpper(tokens[i])
		if (tok != "FROM" && tok != "JOIN") || i+1 >= len(tokens) {
			continue
		}
		if tok == "JOIN" {
			add(tokens[i+1])
			continue
		}
		// FROM a, b  /  FROM a x, b AS y
		for j := i + 1; j < len(tokens); {
			add(tokens[j])
			k := j
			for k < len(tokens) && k <= j+2 && !strings.HasSuffix(tokens[k], ",") {
				if k > j && clauseWords[strings.ToUpper(tokens[k])] {
					break
				}
				k++
			}
			if k >= len(tokens) || k > j+2 || !strings.HasSuffix(tokens[k], ",") {
				break
			}
			j = k + 1
		}
	}
	return tables
}

func unquote(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if len(p) >= 2 && (p[0] == '"' || p[0] == '`' || p[0] == '[') {
			p = p[1 : len(p)-1]
		}
		parts[i] = p
	}
	return strings.Join(parts, ".")
}

// stripLiterals blanks out string literals so keywords inside them are not
// matched.
func stripLiterals(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '\'' {
			end := skipQuoted(s, i, '\'')
			b.WriteString("''")
			i = end
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
