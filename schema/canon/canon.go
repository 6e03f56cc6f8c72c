// Package canon implements the TypeCanonicalizer (spec §4.1): mapping an
// arbitrary surface type string to a closed set of canonical scalar
// names, or to an opaque case-folded enum identifier when the base isn't
// a recognized scalar.
//
// The alias table and trim/upper/strip-array pipeline is grounded on
// ptah's core/platform.NormalizeDialect, which resolves surface dialect
// aliases ("pgx", "postgresql", "postgres") to a single canonical name
// the same way this package resolves surface type aliases.
package canon

import "strings"

// Scalar is one of the closed set of canonical scalar names from spec §3.
type Scalar string

const (
	Text        Scalar = "TEXT"
	Integer     Scalar = "INTEGER"
	SmallInt    Scalar = "SMALLINT"
	BigInt      Scalar = "BIGINT"
	Numeric     Scalar = "NUMERIC"
	Boolean     Scalar = "BOOLEAN"
	UUID        Scalar = "UUID"
	JSON        Scalar = "JSON"
	JSONB       Scalar = "JSONB"
	Date        Scalar = "DATE"
	Time        Scalar = "TIME"
	TimeTZ      Scalar = "TIMETZ"
	Timestamp   Scalar = "TIMESTAMP"
	TimestampTZ Scalar = "TIMESTAMPTZ"
)

var scalars = map[Scalar]bool{
	Text: true, Integer: true, SmallInt: true, BigInt: true, Numeric: true,
	Boolean: true, UUID: true, JSON: true, JSONB: true, Date: true,
	Time: true, TimeTZ: true, Timestamp: true, TimestampTZ: true,
}

// IsScalar reports whether name is one of the closed scalar set.
func IsScalar(name string) bool {
	return scalars[Scalar(strings.ToUpper(name))]
}

// IntegerFamily reports whether the scalar is one of the auto-increment
// / identity-eligible integer types.
func IntegerFamily(s Scalar) bool {
	return s == Integer || s == SmallInt || s == BigInt
}

// IntegerFamilyName is IntegerFamily for a raw canonical base string.
func IntegerFamilyName(base string) bool {
	return IntegerFamily(Scalar(base))
}

// TemporalFamilyName reports whether base is one of the date/time
// canonical scalars.
func TemporalFamilyName(base string) bool {
	switch Scalar(base) {
	case Date, Time, TimeTZ, Timestamp, TimestampTZ:
		return true
	}
	return false
}

var aliases = map[string]Scalar{
	"INT":    Integer,
	"INT4":   Integer,
	"INTEGER": Integer,
	"INT2":   SmallInt,
	"SMALLINT": SmallInt,
	"INT8":   BigInt,
	"BIGINT": BigInt,
	"BOOL":   Boolean,
	"BOOLEAN": Boolean,
	"DECIMAL": Numeric,
	"NUMERIC": Numeric,
	"TEXT":   Text,
	"VARCHAR": Text,
	"CHAR":   Text,
	"UUID":   UUID,
	"JSON":   JSON,
	"JSONB":  JSONB,
	"DATE":   Date,
}

// Type is the result of canonicalizing a surface type string: a scalar
// base (or, if Enum is true, an opaque case-folded identifier in Base),
// plus whether the surface string carried an array suffix.
type Type struct {
	Base    string // canonical scalar name, or case-folded-upper enum identifier
	IsArray bool
	IsEnum  bool
}

// Canonicalize implements spec §4.1: trim, upper-case, strip a trailing
// "[]" to recover the base, strip the double quotes EmissionSQL puts
// around an enum identifier, map aliases (including "with/without time
// zone" phrasings), and treat any unmapped base as an enum reference.
func Canonicalize(surface string) Type {
	s := strings.ToUpper(strings.TrimSpace(surface))

	isArray := false
	if strings.HasSuffix(s, "[]") {
		isArray = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "[]"))
	}

	s = collapseSpaces(s)

	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}

	if base, ok := temporalAlias(s); ok {
		return Type{Base: string(base), IsArray: isArray}
	}

	if base, ok := aliases[s]; ok {
		return Type{Base: string(base), IsArray: isArray}
	}

	if scalars[Scalar(s)] {
		return Type{Base: s, IsArray: isArray}
	}

	return Type{Base: s, IsArray: isArray, IsEnum: true}
}

func collapseSpaces(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func temporalAlias(s string) (Scalar, bool) {
	switch {
	case s == "TIMESTAMPTZ", s == "TIMESTAMP WITH TIME ZONE":
		return TimestampTZ, true
	case s == "TIMESTAMP", s == "TIMESTAMP WITHOUT TIME ZONE":
		return Timestamp, true
	case s == "TIMETZ", s == "TIME WITH TIME ZONE":
		return TimeTZ, true
	case s == "TIME", s == "TIME WITHOUT TIME ZONE":
		return Time, true
	}
	return "", false
}

// EmissionSQL renders the canonical type for use in DDL: builtin
// scalars unquoted, enum identifiers double-quoted, with the array
// suffix preserved, per spec §4.1.
func EmissionSQL(t Type) string {
	out := t.Base
	if t.IsEnum {
		out = `"` + t.Base + `"`
	}
	if t.IsArray {
		out += "[]"
	}
	return out
}
