package database

import "strings"

// Kind is a coarse classification of a column's SQL type, used wherever
// behavior depends on the type family rather than the exact type name.
type Kind int

const (
	KindOther Kind = iota
	KindNumeric
	KindCharacter
	KindCLOB
	KindBinary
	KindBoolean
	KindTemporal
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindCharacter:
		return "character"
	case KindCLOB:
		return "clob"
	case KindBinary:
		return "binary"
	case KindBoolean:
		return "boolean"
	case KindTemporal:
		return "temporal"
	default:
		return "other"
	}
}

// KindOf classifies a backend type name such as "varchar(20)", "INT4" or "bytea".
func KindOf(dataType string) Kind {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimSuffix(t, " unsigned")

	switch {
	case t == "":
		return KindOther
	case t == "bool" || t == "boolean":
		return KindBoolean
	case t == "bytea" || t == "blob" || t == "binary" || t == "varbinary" ||
		strings.HasSuffix(t, "blob") || t == "bit varying":
		return KindBinary
	case t == "text" || t == "clob" || strings.HasSuffix(t, "text") || t == "json" || t == "jsonb" || t == "xml":
		return KindCLOB
	case strings.Contains(t, "char") || t == "uuid" || t == "enum" || t == "set" || t == "name" || t == "citext":
		return KindCharacter
	case strings.Contains(t, "int") || t == "real" || strings.HasPrefix(t, "double") ||
		t == "float" || strings.HasPrefix(t, "float") || t == "numeric" || t == "decimal" ||
		t == "money" || t == "serial" || t == "bigserial" || t == "smallserial" || t == "number":
		return KindNumeric
	case strings.HasPrefix(t, "date") || strings.HasPrefix(t, "time") || t == "year" || t == "interval":
		return KindTemporal
	default:
		return KindOther
	}
}

// Column represents a table column with its metadata.
type Column struct {
	Name        string
	Table       string
	DataType    string
	Kind        Kind
	OrdinalPos  int
	IsNullable  bool
	IsPrimary   bool
	IsGenerated bool
	IsIdentity  bool
	HasDefault  bool
	Default     string
	Precision   int
	Scale       int
}

// QualifiedName returns table.column, or just the column name when the
// column does not come from a table.
func (c Column) QualifiedName() string {
	if c.Table == "" {
		return c.Name
	}
	return c.Table + "." + c.Name
}

// Writable reports whether generated statements may assign to the column.
func (c Column) Writable() bool {
	return !c.IsGenerated && !c.IsIdentity
}

// Table describes a base table: its columns in ordinal order and the
// primary key, if one is declared.
type Table struct {
	Schema     string
	Name       string
	Columns    []Column
	PrimaryKey []string
}

// QualifiedName returns schema.name, or name when no schema is known.
func (t *Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// HasPrimaryKey reports whether the table declares a primary key.
func (t *Table) HasPrimaryKey() bool {
	return len(t.PrimaryKey) > 0
}

// Column looks a column up by name, case-insensitively.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// IsPrimaryKey reports whether name is one of the primary-key columns.
func (t *Table) IsPrimaryKey(name string) bool {
	for _, k := range t.PrimaryKey {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}
