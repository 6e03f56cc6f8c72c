package model_test

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/inedumozey/morm/schema/defaultvalidator"
	"github.com/inedumozey/morm/schema/enumregistry"
	"github.com/inedumozey/morm/schema/model"
)

func TestNormalizeAppendsTimestamps(t *testing.T) {
	c := qt.New(t)
	enums := enumregistry.New()

	m := model.Normalize(model.ModelDecl{Table: "widgets"}, enums)
	c.Assert(m.Errors, qt.HasLen, 0)

	created, ok := m.Column("created_at")
	c.Assert(ok, qt.IsTrue)
	c.Assert(created.Canon.Base, qt.Equals, "TIMESTAMPTZ")
	c.Assert(created.NotNull, qt.IsTrue)
	c.Assert(created.DefaultResult.Emit, qt.Equals, "now()")

	_, ok = m.Column("updated_at")
	c.Assert(ok, qt.IsTrue)
}

func TestNormalizeScenarioS1(t *testing.T) {
	c := qt.New(t)
	enums := enumregistry.New()
	enums.Register("USER_ROLE", []string{"ADMIN", "STUDENT"})

	users := model.Normalize(model.ModelDecl{
		Table: "users",
		Columns: []model.ColumnDecl{
			{Name: "id", Type: "uuid", Primary: true, Default: defaultvalidator.Default{Scalar: "uuid()"}},
			{Name: "role", Type: "USER_ROLE", Default: defaultvalidator.Default{Scalar: "ADMIN"}},
		},
	}, enums)
	c.Assert(users.Errors, qt.HasLen, 0)

	sql := users.CreateTableSQL()
	c.Assert(strings.Contains(sql, `"id" UUID PRIMARY KEY DEFAULT gen_random_uuid()`), qt.IsTrue, qt.Commentf("%s", sql))
	c.Assert(strings.Contains(sql, `"role" "USER_ROLE" DEFAULT 'ADMIN'`), qt.IsTrue, qt.Commentf("%s", sql))

	post := model.Normalize(model.ModelDecl{
		Table: "post",
		Columns: []model.ColumnDecl{
			{Name: "id", Type: "uuid", Primary: true, Default: defaultvalidator.Default{Scalar: "uuid()"}},
			{Name: "user_id", Type: "uuid", References: &model.ReferenceDecl{Table: "users", Column: "id", Kind: "one-to-many"}},
		},
	}, enums)
	c.Assert(post.Errors, qt.HasLen, 0)

	userID, ok := post.Column("user_id")
	c.Assert(ok, qt.IsTrue)
	c.Assert(userID.Reference.Kind, qt.Equals, model.OneToMany)
	c.Assert(userID.Reference.OnDelete, qt.Equals, model.Cascade)

	postSQL := post.CreateTableSQL()
	c.Assert(strings.Contains(postSQL, `REFERENCES "users"("id") ON DELETE CASCADE ON UPDATE CASCADE`), qt.IsTrue, qt.Commentf("%s", postSQL))
}

func TestNormalizeOneToOneImpliesUniqueNotNull(t *testing.T) {
	c := qt.New(t)
	enums := enumregistry.New()
	m := model.Normalize(model.ModelDecl{
		Table: "profile",
		Columns: []model.ColumnDecl{
			{Name: "user_id", Type: "uuid", References: &model.ReferenceDecl{Table: "users", Column: "id", Kind: "1:1"}},
		},
	}, enums)
	c.Assert(m.Errors, qt.HasLen, 0)
	col, _ := m.Column("user_id")
	c.Assert(col.Unique, qt.IsTrue)
	c.Assert(col.NotNull, qt.IsTrue)
}

func TestNormalizeManyToManyIsVirtual(t *testing.T) {
	c := qt.New(t)
	enums := enumregistry.New()
	m := model.Normalize(model.ModelDecl{
		Table: "users",
		Columns: []model.ColumnDecl{
			{Name: "position_id", Type: "uuid[]", References: &model.ReferenceDecl{Table: "position", Column: "id", Kind: "many-to-many"}},
		},
	}, enums)
	c.Assert(m.Errors, qt.HasLen, 0)
	col, _ := m.Column("position_id")
	c.Assert(col.Virtual, qt.IsTrue)
	c.Assert(col.ToColumnSQL().Virtual, qt.IsTrue)
	c.Assert(m.CreateTableSQL(), qt.Not(qt.Contains), "position_id")
}

func TestNormalizeDuplicateColumnName(t *testing.T) {
	c := qt.New(t)
	enums := enumregistry.New()
	m := model.Normalize(model.ModelDecl{
		Table: "widgets",
		Columns: []model.ColumnDecl{
			{Name: "name", Type: "text"},
			{Name: "NAME", Type: "text"},
		},
	}, enums)
	c.Assert(m.Errors, qt.Not(qt.HasLen), 0)
	c.Assert(m.CreateTableSQL(), qt.Equals, "")
}

func TestNormalizeMultiplePrimaryKeys(t *testing.T) {
	c := qt.New(t)
	enums := enumregistry.New()
	m := model.Normalize(model.ModelDecl{
		Table: "widgets",
		Columns: []model.ColumnDecl{
			{Name: "id", Type: "uuid", Primary: true},
			{Name: "other_id", Type: "uuid", Primary: true},
		},
	}, enums)
	c.Assert(m.Errors, qt.Not(qt.HasLen), 0)
}
