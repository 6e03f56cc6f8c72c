package enummigrator

import (
	"context"
	"io"
	"log/slog"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/inedumozey/morm/dbcatalog"
	"github.com/inedumozey/morm/dbsession"
	"github.com/inedumozey/morm/schema/enumregistry"
)

// fakeSession is a minimal in-memory dbsession.Session recording every
// Execute call, enough to drive EnumMigrator without a live database.
// Query/QueryRow/Begin are unused by EnumMigrator and only exist to
// satisfy the interface.
type fakeSession struct {
	executed []string
}

var _ dbsession.Session = (*fakeSession)(nil)

func (f *fakeSession) Execute(_ context.Context, sqlText string, _ ...any) error {
	f.executed = append(f.executed, sqlText)
	return nil
}

func (f *fakeSession) QueryRow(context.Context, string, ...any) dbsession.Row {
	return nil
}

func (f *fakeSession) Query(context.Context, string, ...any) (dbsession.Rows, error) {
	return nil, nil
}

func (f *fakeSession) Begin(context.Context) (dbsession.Tx, error) {
	return nil, nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMigrateCreatesMissingEnum(t *testing.T) {
	c := qt.New(t)

	reg := enumregistry.New()
	reg.Register("USER_ROLE", []string{"ADMIN", "STUDENT"})

	catalog := &dbcatalog.Schema{Enums: map[string]dbcatalog.Enum{}}
	sess := &fakeSession{}

	err := Migrate(context.Background(), sess, reg, catalog, nil, false, silentLogger())
	c.Assert(err, qt.IsNil)
	c.Assert(sess.executed, qt.HasLen, 1)
	c.Assert(sess.executed[0], qt.Contains, `CREATE TYPE "USER_ROLE" AS ENUM`)
}

func TestMigrateAddsValue(t *testing.T) {
	c := qt.New(t)

	reg := enumregistry.New()
	reg.Register("USER_ROLE", []string{"ADMIN", "STUDENT", "TEACHER"})

	catalog := &dbcatalog.Schema{Enums: map[string]dbcatalog.Enum{
		"USER_ROLE": {Name: "USER_ROLE", Values: []string{"ADMIN", "STUDENT"}},
	}}
	sess := &fakeSession{}

	err := Migrate(context.Background(), sess, reg, catalog, nil, false, silentLogger())
	c.Assert(err, qt.IsNil)
	c.Assert(sess.executed, qt.HasLen, 1)
	c.Assert(sess.executed[0], qt.Contains, `ADD VALUE 'TEACHER'`)
}

func TestMigrateAddsConsecutiveMidListValues(t *testing.T) {
	c := qt.New(t)

	reg := enumregistry.New()
	reg.Register("USER_ROLE", []string{"ADMIN", "NEW1", "NEW2", "STUDENT"})

	catalog := &dbcatalog.Schema{Enums: map[string]dbcatalog.Enum{
		"USER_ROLE": {Name: "USER_ROLE", Values: []string{"ADMIN", "STUDENT"}},
	}}
	sess := &fakeSession{}

	err := Migrate(context.Background(), sess, reg, catalog, nil, false, silentLogger())
	c.Assert(err, qt.IsNil)
	c.Assert(sess.executed, qt.HasLen, 2)
	// Reverse order: NEW2's BEFORE target (STUDENT) already exists; once
	// NEW2 is added, NEW1's BEFORE target (NEW2) exists too.
	c.Assert(sess.executed[0], qt.Equals, `ALTER TYPE "USER_ROLE" ADD VALUE 'NEW2' BEFORE 'STUDENT'`)
	c.Assert(sess.executed[1], qt.Equals, `ALTER TYPE "USER_ROLE" ADD VALUE 'NEW1' BEFORE 'NEW2'`)
}

func TestMigrateDropsUnusedEnum(t *testing.T) {
	c := qt.New(t)

	reg := enumregistry.New()

	catalog := &dbcatalog.Schema{Enums: map[string]dbcatalog.Enum{
		"OLD_ENUM": {Name: "OLD_ENUM", Values: []string{"A", "B"}},
	}}
	sess := &fakeSession{}

	err := Migrate(context.Background(), sess, reg, catalog, nil, false, silentLogger())
	c.Assert(err, qt.IsNil)
	c.Assert(sess.executed, qt.HasLen, 1)
	c.Assert(sess.executed[0], qt.Equals, `DROP TYPE "OLD_ENUM"`)
}

func TestMigrateNoOpWhenIdentical(t *testing.T) {
	c := qt.New(t)

	reg := enumregistry.New()
	reg.Register("USER_ROLE", []string{"ADMIN", "STUDENT"})

	catalog := &dbcatalog.Schema{Enums: map[string]dbcatalog.Enum{
		"USER_ROLE": {Name: "USER_ROLE", Values: []string{"ADMIN", "STUDENT"}},
	}}
	sess := &fakeSession{}

	err := Migrate(context.Background(), sess, reg, catalog, nil, false, silentLogger())
	c.Assert(err, qt.IsNil)
	c.Assert(sess.executed, qt.HasLen, 0)
}

func TestMigrateDetectsRename(t *testing.T) {
	c := qt.New(t)

	reg := enumregistry.New()
	reg.Register("ACCOUNT_ROLE", []string{"ADMIN", "STUDENT"})

	catalog := &dbcatalog.Schema{Enums: map[string]dbcatalog.Enum{
		"USER_ROLE": {Name: "USER_ROLE", Values: []string{"ADMIN", "STUDENT"}},
	}}
	sess := &fakeSession{}

	err := Migrate(context.Background(), sess, reg, catalog, nil, false, silentLogger())
	c.Assert(err, qt.IsNil)
	c.Assert(sess.executed, qt.HasLen, 1)
	c.Assert(sess.executed[0], qt.Equals, `ALTER TYPE "USER_ROLE" RENAME TO "ACCOUNT_ROLE"`)
}
