package relgraph_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/inedumozey/morm/schema/enumregistry"
	"github.com/inedumozey/morm/schema/model"
	"github.com/inedumozey/morm/schema/relgraph"
)

func buildModels(t *testing.T, decls ...model.ModelDecl) []*model.Model {
	t.Helper()
	enums := enumregistry.New()
	var models []*model.Model
	for _, d := range decls {
		m := model.Normalize(d, enums)
		if m.Aborted() {
			t.Fatalf("model %s failed to normalize: %v", d.Table, m.Errors)
		}
		models = append(models, m)
	}
	return models
}

func TestBuildScenarioS1Ordering(t *testing.T) {
	c := qt.New(t)
	models := buildModels(t,
		model.ModelDecl{Table: "post", Columns: []model.ColumnDecl{
			{Name: "id", Type: "uuid", Primary: true},
			{Name: "user_id", Type: "uuid", References: &model.ReferenceDecl{Table: "users", Column: "id", Kind: "one-to-many"}},
		}},
		model.ModelDecl{Table: "users", Columns: []model.ColumnDecl{
			{Name: "id", Type: "uuid", Primary: true},
		}},
	)

	g, errs := relgraph.Build(models)
	c.Assert(errs, qt.HasLen, 0)

	usersIdx, postIdx := -1, -1
	for i, t := range g.Sorted {
		if t == "users" {
			usersIdx = i
		}
		if t == "post" {
			postIdx = i
		}
	}
	c.Assert(usersIdx, qt.Not(qt.Equals), -1)
	c.Assert(postIdx, qt.Not(qt.Equals), -1)
	c.Assert(usersIdx < postIdx, qt.IsTrue)
}

func TestBuildSelfReferenceNoCycle(t *testing.T) {
	c := qt.New(t)
	models := buildModels(t, model.ModelDecl{Table: "category", Columns: []model.ColumnDecl{
		{Name: "id", Type: "uuid", Primary: true},
		{Name: "parent_id", Type: "uuid", References: &model.ReferenceDecl{Table: "category", Column: "id", Kind: "one-to-many"}},
	}})

	_, errs := relgraph.Build(models)
	c.Assert(errs, qt.HasLen, 0)
}

func TestBuildScenarioS6Cyclic(t *testing.T) {
	c := qt.New(t)
	models := buildModels(t,
		model.ModelDecl{Table: "a", Columns: []model.ColumnDecl{
			{Name: "id", Type: "uuid", Primary: true},
			{Name: "b_id", Type: "uuid", References: &model.ReferenceDecl{Table: "b", Column: "id", Kind: "one-to-many"}},
		}},
		model.ModelDecl{Table: "b", Columns: []model.ColumnDecl{
			{Name: "id", Type: "uuid", Primary: true},
			{Name: "a_id", Type: "uuid", References: &model.ReferenceDecl{Table: "a", Column: "id", Kind: "one-to-many"}},
		}},
	)

	_, errs := relgraph.Build(models)
	c.Assert(errs, qt.HasLen, 1)
}

func TestBuildRelationTargetMissing(t *testing.T) {
	c := qt.New(t)
	models := buildModels(t, model.ModelDecl{Table: "post", Columns: []model.ColumnDecl{
		{Name: "id", Type: "uuid", Primary: true},
		{Name: "user_id", Type: "uuid", References: &model.ReferenceDecl{Table: "users", Column: "id", Kind: "one-to-many"}},
	}})

	_, errs := relgraph.Build(models)
	c.Assert(errs, qt.HasLen, 1)
}
