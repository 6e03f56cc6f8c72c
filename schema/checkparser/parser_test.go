package checkparser_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/inedumozey/morm/schema/checkparser"
)

func TestParseScenarioS5(t *testing.T) {
	c := qt.New(t)

	got, err := checkparser.Parse(`age >= 18 && (role === 'ADMIN' || role === 'STUDENT')`)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, `((age >= 18) AND ((role = 'ADMIN') OR (role = 'STUDENT')))`)
}

func TestParseOperatorsAndLiterals(t *testing.T) {
	c := qt.New(t)

	cases := []struct {
		src  string
		want string
	}{
		{"a != b", "(a <> b)"},
		{"a !== b", "(a <> b)"},
		{"a == b", "(a = b)"},
		{"!active", "NOT (active)"},
		{"true OR false", "(TRUE OR FALSE)"},
		{"x AND y", "(x AND y)"},
		{"price + 1 * 2", "(price + (1 * 2))"},
		{"-1", "-1"},
		{`'it\'s'`, `'it''s'`},
		{"[1, 2, 3]", "ARRAY[1, 2, 3]"},
		{"len(name) > 0", "(len(name) > 0)"},
		{"status === null", "(status = NULL)"},
	}
	for _, tc := range cases {
		got, err := checkparser.Parse(tc.src)
		c.Assert(err, qt.IsNil, qt.Commentf("src=%q", tc.src))
		c.Assert(got, qt.Equals, tc.want, qt.Commentf("src=%q", tc.src))
	}
}

func TestParseErrors(t *testing.T) {
	c := qt.New(t)

	cases := []string{
		`"unterminated`,
		`(a && b`,
		`a &&`,
		`a b`,
		`a @ b`,
	}
	for _, src := range cases {
		_, err := checkparser.Parse(src)
		c.Assert(err, qt.IsNotNil, qt.Commentf("src=%q", src))
	}
}
