// Package ast models the small slice of PostgreSQL DDL this engine emits
// as data before it is rendered to SQL text, the way ptah's core/ast
// package represents CREATE TABLE/ALTER TABLE/CREATE TYPE statements as
// node trees with fluent builder methods.
//
// Unlike ptah, which renders through a dialect Visitor because it targets
// both MySQL and PostgreSQL, this package has exactly one target dialect
// (multi-dialect support is a named non-goal), so each node renders
// itself directly with a single Render method instead of dispatching
// through a Visitor interface.
package ast

import "strings"

// ForeignKeyRef describes a REFERENCES clause attached to a column.
type ForeignKeyRef struct {
	Table      string
	Column     string
	Name       string
	OnDelete   string
	OnUpdate   string
}

// ColumnNode is a single column definition, built fluently and rendered
// with Render. It mirrors the shape of ptah's ast.ColumnNode builder API
// (SetPrimary, SetNotNull, SetUnique, ...) narrowed to what §4.4 of the
// spec needs.
type ColumnNode struct {
	Name       string
	Type       string // canonical type, already including any [] suffix handling done by the caller
	Primary    bool
	NotNull    bool
	Unique     bool
	Identity   bool // GENERATED ALWAYS AS IDENTITY, suppresses Default
	Virtual    bool // many-to-many marker column: renders to ""
	Default    string
	Check      string
	ForeignKey *ForeignKeyRef
}

func NewColumn(name, sqlType string) *ColumnNode {
	return &ColumnNode{Name: name, Type: sqlType}
}

func (c *ColumnNode) SetPrimary() *ColumnNode {
	c.Primary = true
	c.NotNull = true
	c.Unique = false
	return c
}

func (c *ColumnNode) SetNotNull() *ColumnNode {
	c.NotNull = true
	return c
}

func (c *ColumnNode) SetUnique() *ColumnNode {
	c.Unique = true
	return c
}

func (c *ColumnNode) SetIdentity() *ColumnNode {
	c.Identity = true
	return c
}

func (c *ColumnNode) SetVirtual() *ColumnNode {
	c.Virtual = true
	return c
}

func (c *ColumnNode) SetDefault(expr string) *ColumnNode {
	c.Default = expr
	return c
}

func (c *ColumnNode) SetCheck(sql string) *ColumnNode {
	c.Check = sql
	return c
}

func (c *ColumnNode) SetForeignKey(ref *ForeignKeyRef) *ColumnNode {
	c.ForeignKey = ref
	return c
}

// Render produces the column fragment used inside a CREATE TABLE's
// column list, per spec §4.4.
func (c *ColumnNode) Render() string {
	if c.Virtual {
		return ""
	}

	var b strings.Builder
	b.WriteString(QuoteIdent(c.Name))
	b.WriteByte(' ')
	b.WriteString(c.Type)

	if c.Identity {
		b.WriteString(" GENERATED ALWAYS AS IDENTITY")
	}

	if c.Primary {
		b.WriteString(" PRIMARY KEY")
	} else {
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		if c.Unique {
			b.WriteString(" UNIQUE")
		}
	}

	if !c.Identity && c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}

	if c.Check != "" {
		b.WriteString(" CHECK (")
		b.WriteString(c.Check)
		b.WriteByte(')')
	}

	if c.ForeignKey != nil {
		b.WriteString(" REFERENCES ")
		b.WriteString(QuoteIdent(c.ForeignKey.Table))
		b.WriteByte('(')
		b.WriteString(QuoteIdent(c.ForeignKey.Column))
		b.WriteByte(')')
		if c.ForeignKey.OnDelete != "" {
			b.WriteString(" ON DELETE ")
			b.WriteString(c.ForeignKey.OnDelete)
		}
		if c.ForeignKey.OnUpdate != "" {
			b.WriteString(" ON UPDATE ")
			b.WriteString(c.ForeignKey.OnUpdate)
		}
	}

	return b.String()
}

// QuoteIdent double-quotes a SQL identifier, doubling any embedded quote,
// per spec §6.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral single-quotes a SQL string literal, doubling any embedded
// quote, per spec §6.
func QuoteLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
