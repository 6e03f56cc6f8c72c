package columnsql_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/inedumozey/morm/ast"
	"github.com/inedumozey/morm/schema/columnsql"
)

func TestRenderPrimaryKey(t *testing.T) {
	c := qt.New(t)
	got := columnsql.Render(columnsql.Column{
		Name: "id", TypeSQL: "UUID", Primary: true, DefaultSQL: "gen_random_uuid()",
	})
	c.Assert(got, qt.Equals, `"id" UUID PRIMARY KEY DEFAULT gen_random_uuid()`)
}

func TestRenderIdentitySuppressesDefault(t *testing.T) {
	c := qt.New(t)
	got := columnsql.Render(columnsql.Column{
		Name: "seq", TypeSQL: "BIGINT", Identity: true, DefaultSQL: "123",
	})
	c.Assert(got, qt.Equals, `"seq" BIGINT GENERATED ALWAYS AS IDENTITY`)
}

func TestRenderVirtualColumnIsEmpty(t *testing.T) {
	c := qt.New(t)
	got := columnsql.Render(columnsql.Column{Name: "position_id", TypeSQL: "UUID[]", Virtual: true})
	c.Assert(got, qt.Equals, "")
}

func TestRenderForeignKey(t *testing.T) {
	c := qt.New(t)
	got := columnsql.Render(columnsql.Column{
		Name: "user_id", TypeSQL: "UUID", NotNull: true,
		ForeignKey: &ast.ForeignKeyRef{Table: "users", Column: "id", OnDelete: "CASCADE", OnUpdate: "CASCADE"},
	})
	c.Assert(got, qt.Equals, `"user_id" UUID NOT NULL REFERENCES "users"("id") ON DELETE CASCADE ON UPDATE CASCADE`)
}
