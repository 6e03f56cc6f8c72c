// Package indexmigrator implements the IndexMigrator (spec §4.10):
// single-column index reconciliation named `<table>_<col>_idx`.
//
// Grounded on ptah's migration/schemadiff internal index comparison,
// which performs the same create-missing/drop-stale diff against a
// live index list, narrowed here to this engine's single-column,
// fixed-naming-convention index model (no multi-column indexes).
package indexmigrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inedumozey/morm/ast"
	"github.com/inedumozey/morm/dbcatalog"
	"github.com/inedumozey/morm/dbsession"
	"github.com/inedumozey/morm/reconcile"
	"github.com/inedumozey/morm/schema/model"
)

func indexName(table, col string) string { return table + "_" + col + "_idx" }

// Migrate reconciles the single-column indexes declared on m.Indexes
// against catalog's live index list for m.Table.
func Migrate(ctx context.Context, sess dbsession.Session, catalog *dbcatalog.Schema, m *model.Model, logger *slog.Logger) error {
	desired := map[string]string{} // index name -> column
	for _, col := range m.Indexes {
		if _, ok := m.Column(col); !ok {
			return reconcile.New(reconcile.IndexColumnMissing, m.Table, col, fmt.Errorf("indexed column %q does not exist on model", col))
		}
		desired[indexName(m.Table, col)] = col
	}

	var pkIndex string
	for _, idx := range catalog.Indexes {
		if !strings.EqualFold(idx.TableName, m.Table) {
			continue
		}
		if idx.IsPrimary {
			pkIndex = idx.Name
		}
	}

	existing := map[string]bool{}
	for _, idx := range catalog.Indexes {
		if !strings.EqualFold(idx.TableName, m.Table) {
			continue
		}
		existing[idx.Name] = true
	}

	for name, col := range desired {
		if existing[name] {
			continue
		}
		stmt := fmt.Sprintf(`CREATE INDEX %s ON %s (%s)`, ast.QuoteIdent(name), ast.QuoteIdent(m.Table), ast.QuoteIdent(col))
		if err := sess.Execute(ctx, stmt); err != nil {
			return reconcile.New(reconcile.DatabaseError, m.Table, col, err)
		}
		logger.Info("created index", "section", "IndexMigrator", "action", "create", "table", m.Table, "index", name)
	}

	for _, idx := range catalog.Indexes {
		if !strings.EqualFold(idx.TableName, m.Table) {
			continue
		}
		if idx.Name == pkIndex {
			continue
		}
		if !strings.HasSuffix(idx.Name, "_idx") {
			continue
		}
		if desired[idx.Name] != "" {
			continue
		}
		stmt := fmt.Sprintf(`DROP INDEX %s`, ast.QuoteIdent(idx.Name))
		if err := sess.Execute(ctx, stmt); err != nil {
			return reconcile.New(reconcile.DatabaseError, m.Table, "", err)
		}
		logger.Info("dropped index", "section", "IndexMigrator", "action", "drop", "table", m.Table, "index", idx.Name)
	}

	return nil
}
