package indexmigrator

import (
	"context"
	"io"
	"log/slog"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/inedumozey/morm/dbcatalog"
	"github.com/inedumozey/morm/dbsession"
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

func TestMigrateCreatesMissingIndex(t *testing.T) {
	c := qt.New(t)

	reg := enumregistry.New()
	m := model.Normalize(model.ModelDecl{
		Table:   "post",
		Columns: []model.ColumnDecl{{Name: "title", Type: "TEXT"}},
		Indexes: []string{"title"},
	}, reg)
	c.Assert(m.Aborted(), qt.IsFalse)

	catalog := &dbcatalog.Schema{}
	sess := &fakeSession{}

	err := Migrate(context.Background(), sess, catalog, m, silentLogger())
	c.Assert(err, qt.IsNil)
	c.Assert(sess.executed, qt.HasLen, 1)
	c.Assert(sess.executed[0], qt.Equals, `CREATE INDEX "post_title_idx" ON "post" ("title")`)
}

func TestMigrateDropsStaleIndex(t *testing.T) {
	c := qt.New(t)

	reg := enumregistry.New()
	m := model.Normalize(model.ModelDecl{
		Table:   "post",
		Columns: []model.ColumnDecl{{Name: "title", Type: "TEXT"}},
	}, reg)
	c.Assert(m.Aborted(), qt.IsFalse)

	catalog := &dbcatalog.Schema{Indexes: []dbcatalog.Index{
		{Name: "post_title_idx", TableName: "post", Columns: []string{"title"}},
		{Name: "post_pkey", TableName: "post", IsPrimary: true},
	}}
	sess := &fakeSession{}

	err := Migrate(context.Background(), sess, catalog, m, silentLogger())
	c.Assert(err, qt.IsNil)
	c.Assert(sess.executed, qt.HasLen, 1)
	c.Assert(sess.executed[0], qt.Equals, `DROP INDEX "post_title_idx"`)
}

func TestMigrateFailsOnMissingColumn(t *testing.T) {
	c := qt.New(t)

	reg := enumregistry.New()
	m := model.Normalize(model.ModelDecl{
		Table:   "post",
		Columns: []model.ColumnDecl{{Name: "title", Type: "TEXT"}},
		Indexes: []string{"nonexistent"},
	}, reg)
	c.Assert(m.Aborted(), qt.IsFalse)

	catalog := &dbcatalog.Schema{}
	sess := &fakeSession{}

	err := Migrate(context.Background(), sess, catalog, m, silentLogger())
	c.Assert(err, qt.ErrorMatches, ".*IndexColumnMissing.*")
}
