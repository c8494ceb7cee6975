package sqlgen

import (
	"fmt"
	"strings"

	"github.com/joacominatel/dataview/internal/database"
)

const ddlIndent = "    "

// CreateTable reconstructs a CREATE TABLE statement from column metadata.
// Indexes, foreign keys, checks and generated-column expressions are not
// reproduced.
func (g *Generator) CreateTable(t *database.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", g.backend.QuoteQualified(t.QualifiedName()))

	inlineKey := g.backend == database.SQLite && len(t.PrimaryKey) == 1
	lines := make([]string, 0, len(t.Columns)+1)
	for _, col := range t.Columns {
		lines = append(lines, ddlIndent+g.columnDefinition(col, inlineKey))
	}
	if t.HasPrimaryKey() && !(inlineKey && identityKey(t)) {
		keys := make([]string, len(t.PrimaryKey))
		for i, k := range t.PrimaryKey {
			keys[i] = g.backend.QuoteIdent(k)
		}
		lines = append(lines, ddlIndent+"PRIMARY KEY ("+strings.Join(keys, ", ")+")")
	}
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n)")
	return b.String()
}

func (g *Generator) columnDefinition(col database.Column, inlineKey bool) string {
	parts := []string{g.backend.QuoteIdent(col.Name), typeSpec(col)}
	if col.HasDefault && !col.IsIdentity {
		parts = append(parts, "DEFAULT "+col.Default)
	}
	if !col.IsNullable {
		parts = append(parts, "NOT NULL")
	}
	if col.IsIdentity {
		if g.backend == database.SQLite {
			// AUTOINCREMENT is part of the primary key clause
			if inlineKey && col.IsPrimary {
				parts = append(parts, "PRIMARY KEY AUTOINCREMENT")
			}
		} else if clause := g.backend.IdentityClause(); clause != "" {
			parts = append(parts, clause)
		}
	}
	return strings.Join(parts, " ")
}

func identityKey(t *database.Table) bool {
	for _, c := range t.Columns {
		if c.IsPrimary && c.IsIdentity {
			return true
		}
	}
	return false
}

// typeSpec renders the column type with its length or precision when the
// type takes one.
func typeSpec(col database.Column) string {
	typ := col.DataType
	if typ == "" {
		return "TEXT"
	}
	if strings.Contains(typ, "(") || col.Precision <= 0 {
		return typ
	}
	lower := strings.ToLower(typ)
	switch {
	case col.Kind == database.KindCharacter && strings.Contains(lower, "char"):
		return fmt.Sprintf("%s(%d)", typ, col.Precision)
	case lower == "decimal" || lower == "numeric":
		if col.Scale > 0 {
			return fmt.Sprintf("%s(%d,%d)", typ, col.Precision, col.Scale)
		}
		return fmt.Sprintf("%s(%d)", typ, col.Precision)
	default:
		return typ
	}
}
