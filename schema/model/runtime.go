package model

import (
	"fmt"
	"strings"

	"github.com/go-extras/go-kit/ptr"

	"github.com/inedumozey/morm/ast"
	"github.com/inedumozey/morm/schema/canon"
	"github.com/inedumozey/morm/schema/checkparser"
	"github.com/inedumozey/morm/schema/columnsql"
	"github.com/inedumozey/morm/schema/defaultvalidator"
	"github.com/inedumozey/morm/schema/enumregistry"
)

// Model is the normalized, validated runtime view of a declared model
// (spec §4.7 ModelRuntime). If Errors is non-empty the model is
// "aborted": CreateTableSQL returns "" and the Reconciler must not
// migrate it.
type Model struct {
	Table      string
	PrimaryKey string
	Columns    []*Column
	Indexes    []string
	Errors     []error
}

// Aborted reports whether validation failed for this model.
func (m *Model) Aborted() bool {
	return len(m.Errors) > 0
}

// Column looks up a normalized column by case-insensitive name.
func (m *Model) Column(name string) (*Column, bool) {
	for _, c := range m.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return nil, false
}

// Normalize implements ModelRuntime (spec §4.7): clone columns, append
// created_at/updated_at if absent, normalize each column (lowercase
// name, array-ness, identity, enum-reference, many-to-many virtuality),
// validate defaults and CHECK expressions, and detect model-local
// invariant violations (duplicate names, multiple primary keys).
// Cross-model reference validation (target existence, type match) is
// RelationGraph's job (schema/relgraph), not this function's.
func Normalize(decl ModelDecl, enums *enumregistry.Registry) *Model {
	m := &Model{Table: decl.Table, PrimaryKey: "id"}

	cols := append([]ColumnDecl(nil), decl.Columns...)
	cols = appendTimestampsIfAbsent(cols)

	seen := make(map[string]bool, len(cols))
	primaryCount := 0

	for _, cd := range cols {
		name := strings.ToLower(strings.TrimSpace(cd.Name))
		if seen[name] {
			m.Errors = append(m.Errors, fmt.Errorf("model %s: duplicate column name %q", decl.Table, name))
			continue
		}
		seen[name] = true

		col, errs := normalizeColumn(decl.Table, name, cd, enums)
		m.Errors = append(m.Errors, errs...)
		if col.Primary {
			primaryCount++
			m.PrimaryKey = col.Name
		}
		m.Columns = append(m.Columns, col)
	}

	if primaryCount > 1 {
		m.Errors = append(m.Errors, fmt.Errorf("model %s: multiple primary key columns declared", decl.Table))
	}

	m.Indexes = append([]string(nil), decl.Indexes...)

	return m
}

func appendTimestampsIfAbsent(cols []ColumnDecl) []ColumnDecl {
	hasCreated, hasUpdated := false, false
	for _, c := range cols {
		switch strings.ToLower(c.Name) {
		case "created_at":
			hasCreated = true
		case "updated_at":
			hasUpdated = true
		}
	}
	// spec §3 invariant 8: both TIMESTAMPTZ NOT NULL DEFAULT now().
	if !hasCreated {
		cols = append(cols, ColumnDecl{
			Name: "created_at", Type: "TIMESTAMPTZ", NotNull: ptr.To(true),
			Default: defaultvalidator.Default{Scalar: "now()"},
		})
	}
	if !hasUpdated {
		cols = append(cols, ColumnDecl{
			Name: "updated_at", Type: "TIMESTAMPTZ", NotNull: ptr.To(true),
			Default: defaultvalidator.Default{Scalar: "now()"},
		})
	}
	return cols
}

func normalizeColumn(table, name string, cd ColumnDecl, enums *enumregistry.Registry) (*Column, []error) {
	var errs []error

	canonType := canon.Canonicalize(cd.Type)

	col := &Column{
		Name:    name,
		Canon:   canonType,
		Primary: cd.Primary,
		Unique:  cd.Unique,
		Check:   cd.Check,
	}

	if cd.Primary && cd.Unique {
		errs = append(errs, fmt.Errorf("model %s: column %q is primary and cannot also be explicitly unique", table, name))
	}

	notNull := cd.Primary // primary implies NOT NULL
	if cd.NotNull != nil {
		notNull = *cd.NotNull
	}

	if cd.References != nil {
		kind, ok := ParseRelationKind(cd.References.Kind)
		if !ok {
			errs = append(errs, fmt.Errorf("model %s: column %q has invalid relation kind %q", table, name, cd.References.Kind))
		} else {
			onDelete, ok1 := ParseFKAction(cd.References.OnDelete)
			onUpdate, ok2 := ParseFKAction(cd.References.OnUpdate)
			if !ok1 {
				errs = append(errs, fmt.Errorf("model %s: column %q has invalid onDelete action %q", table, name, cd.References.OnDelete))
			}
			if !ok2 {
				errs = append(errs, fmt.Errorf("model %s: column %q has invalid onUpdate action %q", table, name, cd.References.OnUpdate))
			}

			col.Reference = &Reference{
				ToTable: cd.References.Table, ToColumn: cd.References.Column,
				Kind: kind, OnDelete: onDelete, OnUpdate: onUpdate,
				IsSelf: strings.EqualFold(cd.References.Table, table),
			}

			switch kind {
			case ManyToMany:
				col.Virtual = true
				if !canonType.IsArray {
					errs = append(errs, fmt.Errorf("model %s: column %q is MANY-TO-MANY and must declare an array type", table, name))
				}
			case OneToOne:
				if canonType.IsArray {
					errs = append(errs, fmt.Errorf("model %s: column %q is ONE-TO-ONE and must not declare an array type", table, name))
				}
				col.Unique = true
				notNull = true
				if cd.NotNull != nil {
					notNull = *cd.NotNull
				}
			case OneToMany:
				if canonType.IsArray {
					errs = append(errs, fmt.Errorf("model %s: column %q is ONE-TO-MANY and must not declare an array type", table, name))
				}
			}
		}
	}

	col.NotNull = notNull && !col.Virtual

	if !col.Virtual {
		var enumValues []string
		if canonType.IsEnum {
			if v, ok := enums.Get(canonType.Base); ok {
				enumValues = v
			} else {
				errs = append(errs, fmt.Errorf("model %s: column %q references unregistered enum %q", table, name, canonType.Base))
			}
		}

		result, err := defaultvalidator.Validate(cd.Default, canonType, enumValues)
		if err != nil {
			errs = append(errs, fmt.Errorf("model %s: column %q: %w", table, name, err))
		}
		col.DefaultResult = result
		col.Identity = result.Identity

		if col.Check != "" {
			sql, err := checkparser.Parse(col.Check)
			if err != nil {
				errs = append(errs, fmt.Errorf("model %s: column %q: %w", table, name, err))
			}
			col.CheckSQL = sql
		}
	}

	return col, errs
}

// CreateTableSQL builds the full CREATE TABLE statement, per spec §4.7.
// Returns "" for an aborted (validation-failed) model.
func (m *Model) CreateTableSQL() string {
	if m.Aborted() {
		return ""
	}
	t := ast.NewCreateTable(m.Table)
	for _, c := range m.Columns {
		t.AddColumn(columnsql.Build(c.ToColumnSQL()))
	}
	return t.Render()
}

// ToColumnSQL converts a normalized Column into the columnsql package's
// emission-ready shape.
func (c *Column) ToColumnSQL() columnsql.Column {
	var fk *ast.ForeignKeyRef
	if c.Reference != nil && !c.Virtual {
		fk = &ast.ForeignKeyRef{
			Table: c.Reference.ToTable, Column: c.Reference.ToColumn,
			OnDelete: string(c.Reference.OnDelete), OnUpdate: string(c.Reference.OnUpdate),
		}
	}
	return columnsql.Column{
		Name: c.Name, TypeSQL: canon.EmissionSQL(c.Canon),
		Primary: c.Primary, NotNull: c.NotNull, Unique: c.Unique,
		Identity: c.Identity, Virtual: c.Virtual,
		DefaultSQL: c.DefaultResult.Emit, CheckSQL: c.CheckSQL,
		ForeignKey: fk,
	}
}
