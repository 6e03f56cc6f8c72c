// Package columnsql implements the ColumnSqlBuilder (spec §4.4): it
// takes an already-normalized column description and emits the single
// column fragment used both in CREATE TABLE and, piecewise, by the
// AlterPhases.
//
// It is deliberately a thin translation into ast.ColumnNode's fluent
// builder rather than a from-scratch string builder, the way ptah's
// core/convert/fromschema.FromField translates a declared goschema.Field
// into an ast.ColumnNode before rendering.
package columnsql

import "github.com/inedumozey/morm/ast"

// Column is a fully normalized, already-validated column ready for SQL
// emission. Every field has already passed through canon, checkparser
// and defaultvalidator by the time it reaches this package.
type Column struct {
	Name       string
	TypeSQL    string // canon.EmissionSQL output, e.g. `INTEGER` or `"USER_ROLE"[]`
	Primary    bool
	NotNull    bool
	Unique     bool
	Identity   bool
	Virtual    bool
	DefaultSQL string
	CheckSQL   string
	ForeignKey *ast.ForeignKeyRef
}

// Build renders Column into an *ast.ColumnNode per the rules in spec
// §4.4: virtual columns emit nothing; identity columns emit
// GENERATED ALWAYS AS IDENTITY and suppress DEFAULT; primary keys
// suppress explicit UNIQUE/NOT NULL; ONE-TO-ONE references are expected
// to have already set NotNull/Unique on the Column by the caller
// (RelationGraph / ModelRuntime).
func Build(col Column) *ast.ColumnNode {
	n := ast.NewColumn(col.Name, col.TypeSQL)

	if col.Virtual {
		return n.SetVirtual()
	}

	if col.Primary {
		n.SetPrimary()
	} else {
		if col.NotNull {
			n.SetNotNull()
		}
		if col.Unique {
			n.SetUnique()
		}
	}

	if col.Identity {
		n.SetIdentity()
	} else if col.DefaultSQL != "" {
		n.SetDefault(col.DefaultSQL)
	}

	if col.CheckSQL != "" {
		n.SetCheck(col.CheckSQL)
	}

	if col.ForeignKey != nil {
		n.SetForeignKey(col.ForeignKey)
	}

	return n
}

// Render is a convenience wrapper around Build(col).Render().
func Render(col Column) string {
	return Build(col).Render()
}
