package ast

import "strings"

// CreateTableNode renders a CREATE TABLE statement from a pre-built list
// of ColumnNode fragments, the way ptah's ast.CreateTableNode carries a
// []*ColumnNode plus table-level constraints.
type CreateTableNode struct {
	Name    string
	Columns []*ColumnNode
}

func NewCreateTable(name string) *CreateTableNode {
	return &CreateTableNode{Name: name}
}

func (t *CreateTableNode) AddColumn(c *ColumnNode) *CreateTableNode {
	t.Columns = append(t.Columns, c)
	return t
}

func (t *CreateTableNode) Render() string {
	var frags []string
	for _, c := range t.Columns {
		if f := c.Render(); f != "" {
			frags = append(frags, f)
		}
	}
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(QuoteIdent(t.Name))
	b.WriteString(" (\n  ")
	b.WriteString(strings.Join(frags, ",\n  "))
	b.WriteString("\n)")
	return b.String()
}

// EnumNode renders a CREATE TYPE ... AS ENUM statement.
type EnumNode struct {
	Name   string
	Values []string
}

func (e *EnumNode) Render() string {
	quoted := make([]string, len(e.Values))
	for i, v := range e.Values {
		quoted[i] = QuoteLiteral(v)
	}
	return "CREATE TYPE " + QuoteIdent(e.Name) + " AS ENUM (" + strings.Join(quoted, ", ") + ")"
}

// ExtensionNode renders a CREATE EXTENSION IF NOT EXISTS statement.
type ExtensionNode struct {
	Name string
}

func (e *ExtensionNode) Render() string {
	return "CREATE EXTENSION IF NOT EXISTS " + QuoteIdent(e.Name)
}

// CreateFunctionNode renders the fixed updated_at trigger function body,
// repurposing ptah's ast.CreateFunctionNode shape (spec §6).
type CreateFunctionNode struct {
	Name string
	Body string
}

func (f *CreateFunctionNode) Render() string {
	return "CREATE OR REPLACE FUNCTION " + QuoteIdent(f.Name) + "() RETURNS TRIGGER AS $$\nBEGIN\n  " + f.Body + "\nEND;\n$$ LANGUAGE plpgsql"
}

// CreateTriggerNode renders the per-table BEFORE UPDATE trigger that
// invokes the updated_at function, a node not present in ptah's AST
// (ptah has no ambient updated_at convention) added here to ground
// spec §6's trigger naming rule in the same node-based style.
type CreateTriggerNode struct {
	Name     string
	Table    string
	Function string
}

func (t *CreateTriggerNode) DropRender() string {
	return "DROP TRIGGER IF EXISTS " + QuoteIdent(t.Name) + " ON " + QuoteIdent(t.Table)
}

func (t *CreateTriggerNode) Render() string {
	return "CREATE TRIGGER " + QuoteIdent(t.Name) + " BEFORE UPDATE ON " + QuoteIdent(t.Table) +
		" FOR EACH ROW EXECUTE FUNCTION " + QuoteIdent(t.Function) + "()"
}
