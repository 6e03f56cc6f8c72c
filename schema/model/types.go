// Package model implements the ModelRuntime (spec §4.7): normalizing a
// declared model config into validated columns ready for
// CREATE TABLE emission and table diffing.
//
// The clone-then-validate-then-expose-normalized-view shape is grounded
// on ptah's core/goschema.ParseDir / ParseFile pipeline, which parses
// raw declarations into goschema.Field/Table values before the rest of
// the toolchain (diffing, rendering) ever sees them.
package model

import (
	"strings"

	"github.com/inedumozey/morm/schema/canon"
	"github.com/inedumozey/morm/schema/defaultvalidator"
)

// RelationKind is one of the three relation kinds from spec §3.
type RelationKind string

const (
	OneToOne   RelationKind = "ONE-TO-ONE"
	OneToMany  RelationKind = "ONE-TO-MANY"
	ManyToMany RelationKind = "MANY-TO-MANY"
)

// ParseRelationKind accepts the case-insensitive surface aliases spec §3
// defines for each relation kind.
func ParseRelationKind(surface string) (RelationKind, bool) {
	switch strings.ToLower(strings.TrimSpace(surface)) {
	case "nn", "1:1", "o2o", "one-to-one":
		return OneToOne, true
	case "nm", "1:m", "one-to-many":
		return OneToMany, true
	case "mm", "m:m", "many-to-many":
		return ManyToMany, true
	}
	return "", false
}

// FKAction is one of the five FK actions from spec §3 invariant 6.
type FKAction string

const (
	Cascade    FKAction = "CASCADE"
	SetNull    FKAction = "SET NULL"
	SetDefault FKAction = "SET DEFAULT"
	Restrict   FKAction = "RESTRICT"
	NoAction   FKAction = "NO ACTION"
)

var validActions = map[FKAction]bool{
	Cascade: true, SetNull: true, SetDefault: true, Restrict: true, NoAction: true,
}

// ParseFKAction normalizes a surface FK action string; an empty string
// defaults to CASCADE per spec §3 invariant 6.
func ParseFKAction(surface string) (FKAction, bool) {
	if strings.TrimSpace(surface) == "" {
		return Cascade, true
	}
	a := FKAction(strings.ToUpper(strings.TrimSpace(surface)))
	return a, validActions[a]
}

// ReferenceDecl is the declared shape of a column's `references` clause.
type ReferenceDecl struct {
	Table    string
	Column   string
	Kind     string // surface relation-kind alias
	OnDelete string
	OnUpdate string
}

// ColumnDecl is a declared column (spec §3 "Column (declared)").
type ColumnDecl struct {
	Name       string
	Type       string // surface type string
	Primary    bool
	Unique     bool
	NotNull    *bool // nil = default per-kind behavior; non-nil = explicit opt-in/out
	Default    defaultvalidator.Default
	Check      string // raw CheckParser-language expression, "" if none
	References *ReferenceDecl
}

// ModelDecl is a declared model config (spec §6 `model({...})`).
type ModelDecl struct {
	Table   string
	Columns []ColumnDecl
	Indexes []string // column names to index, per spec §4.10
}

// Reference is a normalized, validated reference (spec §3 "Column
// (normalized)"), attached to a Column by Normalize and validated
// against its target model by RelationGraph.
type Reference struct {
	ToTable  string
	ToColumn string
	Kind     RelationKind
	OnDelete FKAction
	OnUpdate FKAction
	IsSelf   bool
}

// Column is a normalized column (spec §3 "Column (normalized)").
type Column struct {
	Name      string
	Canon     canon.Type
	Primary   bool
	Unique    bool
	NotNull   bool
	Default   defaultvalidator.Default
	Check     string
	Reference *Reference

	Identity bool // derived: default is an integer-family identity sentinel
	Virtual  bool // derived: true iff relation is MANY-TO-MANY

	DefaultResult defaultvalidator.Result
	CheckSQL      string

	Renamed bool // __renamed marker (spec §4.9 phase 1), consumed by the FK alter phase
}
