// Package defaultvalidator implements the DefaultValidator (spec §4.3):
// validating a declared column default against its canonical type and
// array-ness, and producing the SQL expression (or identity marker) the
// ColumnSqlBuilder should emit.
//
// The literal-escaping and digit/boolean/ISO-date recognition rules here
// are grounded on ptah's migration/schemadiff/internal/normalize package
// (exercised by its postgresql_typecast_test.go), which strips
// PostgreSQL `::type` casts and quoting from catalog-read defaults so
// they compare equal to the Go-side declared default — the same
// normalization problem this package solves from the declaration side.
package defaultvalidator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/inedumozey/morm/schema/canon"
)

// Default is a declared column default: either Scalar (a surface string)
// or, when the column type is an array, Array (one surface string per
// element, evaluated in order).
type Default struct {
	Scalar string
	Array  []string
}

func (d Default) isZero() bool {
	return d.Scalar == "" && d.Array == nil
}

// Result is the validated, emission-ready default.
type Result struct {
	Emit     string // SQL default expression; empty when Identity is true
	Identity bool   // true for int()/smallint()/bigint() sentinels
}

var identitySentinel = map[string]canon.Scalar{
	"int()":      canon.Integer,
	"smallint()": canon.SmallInt,
	"bigint()":   canon.BigInt,
}

// Validate implements spec §4.3 against a canonicalized type and, for
// enum columns, the ordered set of declared enum values.
func Validate(d Default, t canon.Type, enumValues []string) (Result, error) {
	if d.isZero() {
		return Result{}, nil
	}

	if t.IsArray {
		return validateArray(d.Array, t, enumValues)
	}

	return validateScalar(d.Scalar, t, enumValues)
}

func validateArray(elems []string, t canon.Type, enumValues []string) (Result, error) {
	base := canon.Type{Base: t.Base, IsEnum: t.IsEnum}
	rendered := make([]string, 0, len(elems))
	for _, e := range elems {
		r, err := validateScalar(e, base, enumValues)
		if err != nil {
			return Result{}, fmt.Errorf("array element %q: %w", e, err)
		}
		if r.Identity {
			return Result{}, fmt.Errorf("array element %q: identity sentinels are not valid inside array defaults", e)
		}
		rendered = append(rendered, arrayElementLiteral(r.Emit, base))
	}
	return Result{Emit: "'{" + strings.Join(rendered, ",") + "}'"}, nil
}

// arrayElementLiteral strips the outer SQL quoting/cast a scalar emits
// and renders it the way PostgreSQL expects inside a '{...}' array
// literal: booleans as t/f, strings double-quoted, everything else bare.
func arrayElementLiteral(emit string, base canon.Type) string {
	switch {
	case base.Base == string(canon.Boolean):
		if emit == "TRUE" {
			return "t"
		}
		return "f"
	case base.IsEnum, base.Base == string(canon.Text), canon.TemporalFamilyName(base.Base):
		inner := strings.TrimSuffix(emit, "::"+strings.ToLower(base.Base))
		inner = strings.Trim(inner, "'")
		return `"` + strings.ReplaceAll(inner, `"`, `\"`) + `"`
	default:
		return emit
	}
}

func validateScalar(raw string, t canon.Type, enumValues []string) (Result, error) {
	if sentinelScalar, ok := identitySentinel[strings.ToLower(strings.TrimSpace(raw))]; ok {
		if t.IsEnum || canon.Scalar(t.Base) != sentinelScalar {
			return Result{}, fmt.Errorf("identity sentinel %q is not valid for type %s", raw, t.Base)
		}
		return Result{Identity: true}, nil
	}

	if strings.EqualFold(strings.TrimSpace(raw), "uuid()") {
		if t.Base != string(canon.UUID) {
			return Result{}, fmt.Errorf("uuid() default is only valid on UUID columns, got %s", t.Base)
		}
		return Result{Emit: "gen_random_uuid()"}, nil
	}

	if strings.EqualFold(strings.TrimSpace(raw), "now()") {
		if !canon.TemporalFamilyName(t.Base) {
			return Result{}, fmt.Errorf("now() default is only valid on temporal columns, got %s", t.Base)
		}
		return Result{Emit: nowExpr(t.Base)}, nil
	}

	if t.IsEnum {
		for _, v := range enumValues {
			if strings.EqualFold(v, raw) {
				return Result{Emit: "'" + strings.ToUpper(v) + "'"}, nil
			}
		}
		return Result{}, fmt.Errorf("default %q does not match any declared value for enum %s", raw, t.Base)
	}

	switch canon.Scalar(t.Base) {
	case canon.Integer, canon.SmallInt, canon.BigInt:
		if !isIntegerLiteral(raw) {
			return Result{}, fmt.Errorf("default %q is not a valid integer literal for %s", raw, t.Base)
		}
		return Result{Emit: raw}, nil
	case canon.Numeric:
		if !isNumericLiteral(raw) {
			return Result{}, fmt.Errorf("default %q is not a valid numeric literal", raw)
		}
		return Result{Emit: raw}, nil
	case canon.Boolean:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true":
			return Result{Emit: "TRUE"}, nil
		case "false":
			return Result{Emit: "FALSE"}, nil
		}
		return Result{}, fmt.Errorf("default %q is not a valid boolean literal", raw)
	case canon.Text, canon.JSON, canon.JSONB:
		return Result{Emit: "'" + strings.ReplaceAll(raw, "'", "''") + "'"}, nil
	case canon.Date, canon.Time, canon.TimeTZ, canon.Timestamp, canon.TimestampTZ:
		if !isISOParsable(raw, t.Base) {
			return Result{}, fmt.Errorf("default %q is not an ISO-parsable %s literal", raw, t.Base)
		}
		return Result{Emit: "'" + raw + "'::" + strings.ToLower(t.Base)}, nil
	}

	return Result{}, fmt.Errorf("unknown canonical type %s", t.Base)
}

func nowExpr(base string) string {
	switch canon.Scalar(base) {
	case canon.TimestampTZ:
		return "now()"
	default:
		return "now()::" + strings.ToLower(base)
	}
}

func isIntegerLiteral(s string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return err == nil
}

func isNumericLiteral(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

var isoLayouts = map[string][]string{
	"DATE":        {"2006-01-02"},
	"TIME":        {"15:04:05", "15:04:05.999999"},
	"TIMETZ":      {"15:04:05Z07:00", "15:04:05.999999Z07:00"},
	"TIMESTAMP":   {"2006-01-02 15:04:05", "2006-01-02T15:04:05"},
	"TIMESTAMPTZ": {"2006-01-02 15:04:05Z07:00", "2006-01-02T15:04:05Z07:00"},
}

func isISOParsable(s, base string) bool {
	for _, layout := range isoLayouts[base] {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
