// Package junction implements the JunctionBuilder (spec §4.11):
// computing deterministic many-to-many junction tables from the
// MANY-TO-MANY relations declared across all models, and reconciling
// them the same create-missing way TableDiffer does for base tables.
//
// Grounded on ptah's core/ast CreateTableNode construction (the same
// node types `ast.CreateTableNode`/`ast.ColumnNode` this package reuses
// to build the junction table's DDL), generalized to the computed,
// not-declared, table shape a many-to-many relation implies.
package junction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/inedumozey/morm/ast"
	"github.com/inedumozey/morm/dbcatalog"
	"github.com/inedumozey/morm/dbsession"
	"github.com/inedumozey/morm/reconcile"
	"github.com/inedumozey/morm/schema/model"
)

// Plan is one computed junction table, ready for emission.
type Plan struct {
	Name    string
	T1, T2  string
	Col1    string
	Col2    string
	PK1     string
	PK2     string
	PKType1 string
	PKType2 string
}

// Compute derives the deduplicated set of junction tables implied by
// every MANY-TO-MANY outgoing relation across models, per spec §4.11's
// naming/column rules.
func Compute(models []*model.Model) []Plan {
	byTable := map[string]*model.Model{}
	for _, m := range models {
		byTable[strings.ToLower(m.Table)] = m
	}

	seen := map[string]bool{}
	var plans []Plan

	for _, m := range models {
		for _, col := range m.Columns {
			if col.Reference == nil || col.Reference.Kind != model.ManyToMany {
				continue
			}
			a, b := m.Table, col.Reference.ToTable
			t1, t2 := a, b
			if strings.Compare(strings.ToLower(t2), strings.ToLower(t1)) < 0 {
				t1, t2 = t2, t1
			}
			name := t1 + "_" + t2 + "_junction"
			if seen[name] {
				continue
			}
			seen[name] = true

			col1, col2 := t1+"_id", t2+"_id"
			if col.Reference.IsSelf {
				col1, col2 = col.Name+"_source_id", col.Name+"_target_id"
			}

			m1 := byTable[strings.ToLower(t1)]
			m2 := byTable[strings.ToLower(t2)]
			pk1name, pk2name := "id", "id"
			pk1, pk2 := "INTEGER", "INTEGER"
			if m1 != nil {
				pk1name = m1.PrimaryKey
				if pc, ok := m1.Column(m1.PrimaryKey); ok {
					pk1 = canonEmission(pc)
				}
			}
			if m2 != nil {
				pk2name = m2.PrimaryKey
				if pc, ok := m2.Column(m2.PrimaryKey); ok {
					pk2 = canonEmission(pc)
				}
			}

			plans = append(plans, Plan{
				Name: name, T1: t1, T2: t2, Col1: col1, Col2: col2,
				PK1: pk1name, PK2: pk2name, PKType1: pk1, PKType2: pk2,
			})
		}
	}

	sort.Slice(plans, func(i, j int) bool { return plans[i].Name < plans[j].Name })
	return plans
}

// canonEmission renders a primary-key column's canonical type the way
// canon.EmissionSQL does (enum identifiers double-quoted) but without the
// "[]" array suffix, since model.Column already carries the canonical
// type; kept local to avoid a needless cross-package call for one line.
func canonEmission(c *model.Column) string {
	if c.Canon.IsEnum {
		return `"` + c.Canon.Base + `"`
	}
	return c.Canon.Base
}

// Migrate creates any junction table from plans absent in catalog. A
// junction table, once created, is never altered or dropped by this
// engine — its shape is fully determined by the relation declarations
// that produced it.
func Migrate(ctx context.Context, sess dbsession.Session, catalog *dbcatalog.Schema, plans []Plan, logger *slog.Logger) error {
	for _, p := range plans {
		if _, exists := catalog.Tables[strings.ToLower(p.Name)]; exists {
			continue
		}

		t := ast.NewCreateTable(p.Name)
		t.AddColumn(ast.NewColumn(p.Col1, p.PKType1).SetNotNull().
			SetForeignKey(&ast.ForeignKeyRef{Table: p.T1, Column: p.PK1, OnDelete: "CASCADE", OnUpdate: "CASCADE"}))
		t.AddColumn(ast.NewColumn(p.Col2, p.PKType2).SetNotNull().
			SetForeignKey(&ast.ForeignKeyRef{Table: p.T2, Column: p.PK2, OnDelete: "CASCADE", OnUpdate: "CASCADE"}))

		stmt := fmt.Sprintf("%s,\n  PRIMARY KEY (%s, %s)\n)", strings.TrimSuffix(t.Render(), "\n)"), ast.QuoteIdent(p.Col1), ast.QuoteIdent(p.Col2))
		if err := sess.Execute(ctx, stmt); err != nil {
			return reconcile.New(reconcile.DatabaseError, p.Name, "", err)
		}
		logger.Info("created junction table", "section", "JunctionBuilder", "action", "create", "table", p.Name)

		for _, col := range []string{p.Col1, p.Col2} {
			idxName := p.Name + "_" + col + "_idx"
			idxStmt := fmt.Sprintf(`CREATE INDEX %s ON %s (%s)`, ast.QuoteIdent(idxName), ast.QuoteIdent(p.Name), ast.QuoteIdent(col))
			if err := sess.Execute(ctx, idxStmt); err != nil {
				return reconcile.New(reconcile.DatabaseError, p.Name, col, err)
			}
		}
	}
	return nil
}
