package junction

import (
	"context"
	"io"
	"log/slog"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/inedumozey/morm/dbcatalog"
	"github.com/inedumozey/morm/dbsession"
	"github.com/inedumozey/morm/schema/defaultvalidator"
	"github.com/inedumozey/morm/schema/enumregistry"
	"github.com/inedumozey/morm/schema/model"
)

type fakeSession struct {
	executed []string
}

var _ dbsession.Session = (*fakeSession)(nil)

func (f *fakeSession) Execute(_ context.Context, sqlText string, _ ...any) error {
	f.executed = append(f.executed, sqlText)
	return nil
}
func (f *fakeSession) QueryRow(context.Context, string, ...any) dbsession.Row        { return nil }
func (f *fakeSession) Query(context.Context, string, ...any) (dbsession.Rows, error) { return nil, nil }
func (f *fakeSession) Begin(context.Context) (dbsession.Tx, error)                   { return nil, nil }

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func buildModels(t *testing.T) []*model.Model {
	t.Helper()
	reg := enumregistry.New()

	student := model.Normalize(model.ModelDecl{
		Table: "student",
		Columns: []model.ColumnDecl{
			{Name: "id", Type: "INTEGER", Primary: true, Default: defaultvalidator.Default{Scalar: "int()"}},
		},
	}, reg)

	course := model.Normalize(model.ModelDecl{
		Table: "course",
		Columns: []model.ColumnDecl{
			{Name: "id", Type: "INTEGER", Primary: true, Default: defaultvalidator.Default{Scalar: "int()"}},
			{Name: "student_ids", Type: "INTEGER[]", References: &model.ReferenceDecl{Table: "student", Column: "id", Kind: "mm"}},
		},
	}, reg)

	for _, m := range []*model.Model{student, course} {
		if m.Aborted() {
			t.Fatalf("model %s aborted: %v", m.Table, m.Errors)
		}
	}
	return []*model.Model{student, course}
}

func TestComputeNamesAndOrdersLexicographically(t *testing.T) {
	c := qt.New(t)
	models := buildModels(t)

	plans := Compute(models)
	c.Assert(plans, qt.HasLen, 1)
	c.Assert(plans[0].Name, qt.Equals, "course_student_junction")
	c.Assert(plans[0].Col1, qt.Equals, "course_id")
	c.Assert(plans[0].Col2, qt.Equals, "student_id")
}

func TestMigrateCreatesJunctionTable(t *testing.T) {
	c := qt.New(t)
	models := buildModels(t)
	plans := Compute(models)

	catalog := &dbcatalog.Schema{Tables: map[string]dbcatalog.Table{}}
	sess := &fakeSession{}

	err := Migrate(context.Background(), sess, catalog, plans, silentLogger())
	c.Assert(err, qt.IsNil)
	c.Assert(len(sess.executed) >= 1, qt.IsTrue)
	c.Assert(sess.executed[0], qt.Contains, `CREATE TABLE "course_student_junction"`)
	c.Assert(sess.executed[0], qt.Contains, `PRIMARY KEY ("course_id", "student_id")`)
}

func TestMigrateSkipsExistingJunctionTable(t *testing.T) {
	c := qt.New(t)
	models := buildModels(t)
	plans := Compute(models)

	catalog := &dbcatalog.Schema{Tables: map[string]dbcatalog.Table{
		"course_student_junction": {Name: "course_student_junction"},
	}}
	sess := &fakeSession{}

	err := Migrate(context.Background(), sess, catalog, plans, silentLogger())
	c.Assert(err, qt.IsNil)
	c.Assert(sess.executed, qt.HasLen, 0)
}
