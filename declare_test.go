package morm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/inedumozey/morm/dbsession"
	"github.com/inedumozey/morm/migrate/reconciler"
	"github.com/inedumozey/morm/schema/defaultvalidator"
	"github.com/inedumozey/morm/schema/enumregistry"
	"github.com/inedumozey/morm/schema/model"
)

type fakeRows struct {
	rows [][]any
	idx  int
}

func (r *fakeRows) Next() bool { return r.idx < len(r.rows) }
func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx]
	r.idx++
	for i, d := range dest {
		switch v := d.(type) {
		case *string:
			*v = row[i].(string)
		case *bool:
			*v = row[i].(bool)
		}
	}
	return nil
}
func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }

type fakeSession struct {
	executed   []string
	committed  bool
	rolledBack bool
}

var _ dbsession.Session = (*fakeSession)(nil)

func (f *fakeSession) Execute(_ context.Context, sqlText string, _ ...any) error {
	f.executed = append(f.executed, sqlText)
	return nil
}
func (f *fakeSession) QueryRow(context.Context, string, ...any) dbsession.Row { return nil }
func (f *fakeSession) Query(_ context.Context, sqlText string, _ ...any) (dbsession.Rows, error) {
	return &fakeRows{}, nil
}
func (f *fakeSession) Begin(context.Context) (dbsession.Tx, error) {
	return &fakeTx{f}, nil
}

type fakeTx struct{ *fakeSession }

func (t *fakeTx) Commit(context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.rolledBack = true; return nil }

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(sess *fakeSession) *Engine {
	return &Engine{
		sess:       sess,
		registry:   enumregistry.New(),
		reconciler: reconciler.New(),
	}
}

func TestEnumsAndModelThenMigrateDryRun(t *testing.T) {
	c := qt.New(t)
	sess := &fakeSession{}
	e := newTestEngine(sess)

	e.Enums([]EnumDef{{Name: "user_role", Values: []string{"ADMIN", "STUDENT"}}})
	e.Model(ModelConfig{Decl: model.ModelDecl{
		Table: "users",
		Columns: []model.ColumnDecl{
			{Name: "id", Type: "INTEGER", Primary: true, Default: defaultvalidator.Default{Scalar: "int()"}},
			{Name: "role", Type: "user_role", Default: defaultvalidator.Default{Scalar: "ADMIN"}},
		},
	}})

	ok, err := e.Migrate(context.Background(), MigrateOptions{Clean: true})
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(sess.executed, qt.HasLen, 0)
}

func TestMigrateSurfacesEnumConflict(t *testing.T) {
	c := qt.New(t)
	sess := &fakeSession{}
	e := newTestEngine(sess)

	e.Enums([]EnumDef{
		{Name: "user_role", Values: []string{"ADMIN", "STUDENT"}},
		{Name: "user_role", Values: []string{"ADMIN", "TEACHER"}},
	})

	ok, err := e.Migrate(context.Background(), MigrateOptions{})
	c.Assert(ok, qt.IsFalse)
	c.Assert(err, qt.ErrorMatches, ".*EnumRedefined.*")
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	c := qt.New(t)
	sess := &fakeSession{}
	e := newTestEngine(sess)

	called := false
	err := e.Transaction(context.Background(), func(ctx context.Context, tx dbsession.Tx) error {
		called = true
		return tx.Execute(ctx, `SELECT 1`)
	}, TxOptions{})
	c.Assert(err, qt.IsNil)
	c.Assert(called, qt.IsTrue)

	found := false
	for _, stmt := range sess.executed {
		if strings.Contains(stmt, "SELECT 1") {
			found = true
		}
	}
	c.Assert(found, qt.IsTrue)
	c.Assert(sess.committed, qt.IsTrue)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	c := qt.New(t)
	sess := &fakeSession{}
	e := newTestEngine(sess)

	wantErr := errors.New("boom")
	err := e.Transaction(context.Background(), func(ctx context.Context, tx dbsession.Tx) error {
		return wantErr
	}, TxOptions{})
	c.Assert(err, qt.Equals, wantErr)
	c.Assert(sess.rolledBack, qt.IsTrue)
	c.Assert(sess.committed, qt.IsFalse)
}
