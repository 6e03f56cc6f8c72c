// Package dbcatalog reads the live PostgreSQL catalog into the plain
// value types TableDiffer, EnumMigrator and IndexMigrator diff against.
//
// Grounded directly on ptah's dbschema/types.DBSchema and
// dbschema/postgres.Reader, which read the same information_schema /
// pg_catalog views for the same purpose (a live-schema snapshot to diff
// a declared schema against).
package dbcatalog

// Column is a single live column, as read from information_schema.columns.
type Column struct {
	Name             string
	DataType         string
	UDTName          string
	IsNullable       bool
	ColumnDefault    *string
	IsPrimaryKey     bool
	IsUnique         bool
	IsAutoIncrement  bool
}

// Table is a live table plus its columns.
type Table struct {
	Name    string
	Columns []Column
}

// ColumnByName finds a column case-insensitively.
func (t Table) ColumnByName(name string) (Column, bool) {
	for _, c := range t.Columns {
		if equalFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Enum is a live enum type and its ordered values.
type Enum struct {
	Name   string
	Values []string
}

// Index is a live index.
type Index struct {
	Name      string
	TableName string
	Columns   []string
	IsUnique  bool
	IsPrimary bool
}

// Constraint is a live table constraint (PK, UNIQUE, FK or CHECK).
type Constraint struct {
	Name          string
	TableName     string
	Type          string // "PRIMARY KEY" | "UNIQUE" | "FOREIGN KEY" | "CHECK"
	ColumnName    string
	ForeignTable  *string
	ForeignColumn *string
	OnDelete      *string
	OnUpdate      *string
	CheckClause   *string
}

// Schema is the full live-catalog snapshot for one schema (always
// "public" for this engine; multi-schema support is out of scope).
type Schema struct {
	Tables      map[string]Table
	Enums       map[string]Enum
	Indexes     []Index
	Constraints []Constraint
	Extensions  map[string]bool
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
