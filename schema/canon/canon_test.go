package canon_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/inedumozey/morm/schema/canon"
)

func TestCanonicalizeAliases(t *testing.T) {
	c := qt.New(t)

	cases := []struct {
		surface string
		want    canon.Type
	}{
		{"int", canon.Type{Base: "INTEGER"}},
		{"INT4", canon.Type{Base: "INTEGER"}},
		{"int2", canon.Type{Base: "SMALLINT"}},
		{"int8[]", canon.Type{Base: "BIGINT", IsArray: true}},
		{"bool", canon.Type{Base: "BOOLEAN"}},
		{"decimal", canon.Type{Base: "NUMERIC"}},
		{"timestamp with time zone", canon.Type{Base: "TIMESTAMPTZ"}},
		{"time without time zone", canon.Type{Base: "TIME"}},
		{"USER_ROLE", canon.Type{Base: "USER_ROLE", IsEnum: true}},
		{" text ", canon.Type{Base: "TEXT"}},
	}

	for _, tc := range cases {
		got := canon.Canonicalize(tc.surface)
		c.Assert(got, qt.Equals, tc.want, qt.Commentf("surface=%q", tc.surface))
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	c := qt.New(t)
	inputs := []string{"int", "bigint[]", "user_role", "timestamptz"}
	for _, in := range inputs {
		once := canon.EmissionSQL(canon.Canonicalize(in))
		twice := canon.EmissionSQL(canon.Canonicalize(once))
		c.Assert(twice, qt.Equals, once)
	}
}

func TestEmissionSQL(t *testing.T) {
	c := qt.New(t)
	c.Assert(canon.EmissionSQL(canon.Canonicalize("int")), qt.Equals, "INTEGER")
	c.Assert(canon.EmissionSQL(canon.Canonicalize("user_role")), qt.Equals, `"USER_ROLE"`)
	c.Assert(canon.EmissionSQL(canon.Canonicalize("user_role[]")), qt.Equals, `"USER_ROLE"[]`)
}
