// Package tablediffer implements the TableDiffer and its AlterPhases
// (spec §4.9): given one normalized model, it reads the live catalog for
// its table itself and either emits the table's full CREATE TABLE (plus
// its updated_at trigger) when the table doesn't exist yet, or runs the
// fixed eight-phase alter sequence (name, primary key, type, nullity,
// unique, foreign key, check, default) against an existing table.
//
// The phase-pipeline-over-a-live-vs-desired-diff shape is grounded on
// ptah's migration/schemadiff package, which computes the same kind of
// per-dimension add/drop/change decisions between a generated schema and
// a live one; this package generalizes it to the spec's data-loss guard
// rules (empty-table-only type/drop changes, safe-default-only unique
// additions) that ptah's own comparator doesn't need to enforce.
package tablediffer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inedumozey/morm/ast"
	"github.com/inedumozey/morm/dbcatalog"
	"github.com/inedumozey/morm/dbsession"
	"github.com/inedumozey/morm/reconcile"
	"github.com/inedumozey/morm/schema/canon"
	"github.com/inedumozey/morm/schema/checkparser"
	"github.com/inedumozey/morm/schema/columnsql"
	"github.com/inedumozey/morm/schema/model"
)

const triggerFunctionName = "morm_set_updated_at"

func triggerName(table string) string { return "morm_trigger_" + table + "_updated_at" }
func fkName(table, col string) string { return table + "_" + col + "_fkey" }
func checkName(table, col string) string { return table + "_" + col + "_check" }

// Diff runs the TableDiffer for one model, issuing DDL through sess
// (expected to be the Reconciler's single outer transaction). Per
// spec.md's "All live DB state is read fresh at the start of each
// table's diff", Diff reads its own catalog snapshot rather than
// accepting one from the caller.
//
// That same freshness requirement applies WITHIN one table's diff, not
// just at its start: a phase's own DDL can change what the next phase
// needs to see — alterName's RENAME COLUMN changes which live column a
// later phase's by-name lookup finds, and alterTypes' constraint drop
// ahead of a type change changes what alterCheck later finds for that
// column. refresh() re-reads the catalog and this table's live row
// immediately before each phase that consults either, so no phase ever
// diffs against a snapshot a previous phase has since invalidated.
func Diff(ctx context.Context, sess dbsession.Session, m *model.Model, logger *slog.Logger) error {
	var catalog *dbcatalog.Schema
	var live dbcatalog.Table

	// refresh re-reads the catalog and this table's live row, failing if
	// the table has disappeared mid-diff (it must exist by the time
	// refresh is first called, since the initial read below already
	// routed a missing table to createTable instead).
	refresh := func() error {
		var err error
		catalog, err = dbcatalog.Read(ctx, sess)
		if err != nil {
			return reconcile.New(reconcile.DatabaseError, m.Table, "", err)
		}
		t, ok := catalog.Tables[strings.ToLower(m.Table)]
		if !ok {
			return reconcile.New(reconcile.DatabaseError, m.Table, "", fmt.Errorf("table %q disappeared mid-diff", m.Table))
		}
		live = t
		return nil
	}

	catalog, err := dbcatalog.Read(ctx, sess)
	if err != nil {
		return reconcile.New(reconcile.DatabaseError, m.Table, "", err)
	}
	var exists bool
	live, exists = catalog.Tables[strings.ToLower(m.Table)]
	if !exists {
		return createTable(ctx, sess, m, logger)
	}

	rowCount, countOK := countRows(ctx, sess, m.Table)
	hasData := !countOK || rowCount > 0 // unknown counts → assume has data, per spec §4.9 phase 0

	renamed, err := alterName(ctx, sess, live, m, hasData, logger)
	if err != nil {
		return err
	}

	if err := refresh(); err != nil {
		return err
	}
	if err := alterPrimaryKey(ctx, sess, live, m, hasData, logger); err != nil {
		return err
	}

	if err := refresh(); err != nil {
		return err
	}
	if err := alterTypes(ctx, sess, live, m, hasData, logger); err != nil {
		return err
	}

	if err := refresh(); err != nil {
		return err
	}
	if err := alterNullity(ctx, sess, live, m, hasData, logger); err != nil {
		return err
	}

	if err := refresh(); err != nil {
		return err
	}
	if err := alterUnique(ctx, sess, live, m, hasData, logger); err != nil {
		return err
	}

	if err := alterForeignKeys(ctx, sess, m, renamed, logger); err != nil {
		return err
	}

	if err := refresh(); err != nil {
		return err
	}
	if err := alterCheck(ctx, sess, catalog, m, logger); err != nil {
		return err
	}

	if err := refresh(); err != nil {
		return err
	}
	if err := alterDefault(ctx, sess, live, m, logger); err != nil {
		return err
	}

	return nil
}

func createTable(ctx context.Context, sess dbsession.Session, m *model.Model, logger *slog.Logger) error {
	stmt := m.CreateTableSQL()
	if stmt == "" {
		return reconcile.New(reconcile.DatabaseError, m.Table, "", fmt.Errorf("model is aborted, refusing to create table"))
	}
	if err := sess.Execute(ctx, stmt); err != nil {
		return reconcile.New(reconcile.DatabaseError, m.Table, "", err)
	}
	logger.Info("created table", "section", "TableDiffer", "action", "create", "table", m.Table)

	fn := &ast.CreateFunctionNode{Name: triggerFunctionName, Body: `NEW.updated_at = NOW(); RETURN NEW;`}
	if err := sess.Execute(ctx, fn.Render()); err != nil {
		return reconcile.New(reconcile.DatabaseError, m.Table, "", err)
	}

	trig := &ast.CreateTriggerNode{Name: triggerName(m.Table), Table: m.Table, Function: triggerFunctionName}
	if err := sess.Execute(ctx, trig.DropRender()); err != nil {
		return reconcile.New(reconcile.DatabaseError, m.Table, "", err)
	}
	if err := sess.Execute(ctx, trig.Render()); err != nil {
		return reconcile.New(reconcile.DatabaseError, m.Table, "", err)
	}
	logger.Info("installed updated_at trigger", "section", "TableDiffer", "action", "trigger", "table", m.Table)
	return nil
}

func countRows(ctx context.Context, sess dbsession.Session, table string) (int64, bool) {
	var n int64
	row := sess.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, ast.QuoteIdent(table)))
	if row == nil {
		return 0, false
	}
	if err := row.Scan(&n); err != nil {
		return 0, false
	}
	return n, true
}

// dbColumnCanon recovers the canonical type of a live column from
// information_schema's data_type/udt_name pair: array columns carry
// data_type "ARRAY" and a udt_name prefixed with "_".
func dbColumnCanon(c dbcatalog.Column) canon.Type {
	base := c.UDTName
	isArray := c.DataType == "ARRAY" || strings.HasPrefix(base, "_")
	base = strings.TrimPrefix(base, "_")
	t := canon.Canonicalize(base)
	t.IsArray = isArray
	return t
}

func sameCanon(a, b canon.Type) bool {
	return strings.EqualFold(a.Base, b.Base) && a.IsArray == b.IsArray
}

// alterName implements phase 1: rename heuristic, ADD COLUMN for new
// columns, DROP COLUMN for DB-only columns (only on an empty table).
// Returns the set of model column names marked __renamed, consumed by
// the foreign-key phase.
func alterName(ctx context.Context, sess dbsession.Session, live dbcatalog.Table, m *model.Model, hasData bool, logger *slog.Logger) (map[string]bool, error) {
	renamed := map[string]bool{}

	var missingInModel []dbcatalog.Column // DB-only
	for _, c := range live.Columns {
		if _, ok := m.Column(c.Name); !ok {
			missingInModel = append(missingInModel, c)
		}
	}

	var missingInDB []*model.Column // model-only
	for _, c := range m.Columns {
		if _, ok := live.ColumnByName(c.Name); !ok {
			missingInDB = append(missingInDB, c)
		}
	}

	consumedModel := map[string]bool{}
	consumedDB := map[string]bool{}

	for _, dbCol := range missingInModel {
		dbCanon := dbColumnCanon(dbCol)
		var candidates []*model.Column
		for _, mc := range missingInDB {
			if consumedModel[mc.Name] {
				continue
			}
			if sameCanon(mc.Canon, dbCanon) {
				candidates = append(candidates, mc)
			}
		}
		if len(candidates) == 1 {
			mc := candidates[0]
			stmt := fmt.Sprintf(`ALTER TABLE %s RENAME COLUMN %s TO %s`,
				ast.QuoteIdent(m.Table), ast.QuoteIdent(dbCol.Name), ast.QuoteIdent(mc.Name))
			if err := sess.Execute(ctx, stmt); err != nil {
				return nil, reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
			}
			mc.Renamed = true
			renamed[mc.Name] = true
			consumedModel[mc.Name] = true
			consumedDB[dbCol.Name] = true
			logger.Info("renamed column", "section", "TableDiffer", "action", "rename", "table", m.Table, "from", dbCol.Name, "to", mc.Name)
		}
	}

	for _, mc := range missingInDB {
		if consumedModel[mc.Name] {
			continue
		}
		if hasData && mc.NotNull && mc.DefaultResult.Emit == "" && !mc.Identity {
			return nil, reconcile.New(reconcile.AddNotNullBlocked, m.Table, mc.Name, fmt.Errorf("cannot add NOT NULL column without default to a non-empty table"))
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s`, ast.QuoteIdent(m.Table), columnFragment(mc))
		if err := sess.Execute(ctx, stmt); err != nil {
			return nil, reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
		}
		logger.Info("added column", "section", "TableDiffer", "action", "add", "table", m.Table, "column", mc.Name)
	}

	for _, dbCol := range missingInModel {
		if consumedDB[dbCol.Name] {
			continue
		}
		if hasData {
			return nil, reconcile.New(reconcile.DropColumnBlocked, m.Table, dbCol.Name, fmt.Errorf("cannot drop column from a non-empty table"))
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s DROP COLUMN %s`, ast.QuoteIdent(m.Table), ast.QuoteIdent(dbCol.Name))
		if err := sess.Execute(ctx, stmt); err != nil {
			return nil, reconcile.New(reconcile.DatabaseError, m.Table, dbCol.Name, err)
		}
		logger.Info("dropped column", "section", "TableDiffer", "action", "drop", "table", m.Table, "column", dbCol.Name)
	}

	return renamed, nil
}

// columnFragment renders the full column fragment for ADD COLUMN, using
// the same columnsql emission path CreateTableSQL uses.
func columnFragment(c *model.Column) string {
	return columnsql.Render(c.ToColumnSQL())
}

func alterPrimaryKey(ctx context.Context, sess dbsession.Session, live dbcatalog.Table, m *model.Model, hasData bool, logger *slog.Logger) error {
	var liveDPK string
	for _, c := range live.Columns {
		if c.IsPrimaryKey {
			liveDPK = c.Name
			break
		}
	}

	desired := m.PrimaryKey
	if strings.EqualFold(liveDPK, desired) {
		return nil
	}

	if liveDPK != "" && hasData {
		return reconcile.New(reconcile.PrimaryKeyMoveBlocked, m.Table, desired, fmt.Errorf("cannot move primary key on a non-empty table"))
	}

	if liveDPK != "" {
		stmt := fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT %s`, ast.QuoteIdent(m.Table), ast.QuoteIdent(m.Table+"_pkey"))
		if err := sess.Execute(ctx, stmt); err != nil {
			return reconcile.New(reconcile.DatabaseError, m.Table, liveDPK, err)
		}
	}

	stmt := fmt.Sprintf(`ALTER TABLE %s ADD PRIMARY KEY (%s)`, ast.QuoteIdent(m.Table), ast.QuoteIdent(desired))
	if err := sess.Execute(ctx, stmt); err != nil {
		return reconcile.New(reconcile.DatabaseError, m.Table, desired, err)
	}
	logger.Info("set primary key", "section", "TableDiffer", "action", "pk", "table", m.Table, "column", desired)
	return nil
}

// alterTypes implements phase 3: empty-table-only type changes.
func alterTypes(ctx context.Context, sess dbsession.Session, live dbcatalog.Table, m *model.Model, hasData bool, logger *slog.Logger) error {
	for _, mc := range m.Columns {
		if mc.Virtual {
			continue
		}
		dbCol, ok := live.ColumnByName(mc.Name)
		if !ok {
			continue // handled by alterName (new column already has its final type)
		}
		dbCanon := dbColumnCanon(dbCol)
		if sameCanon(mc.Canon, dbCanon) {
			continue
		}
		if hasData {
			return reconcile.New(reconcile.TypeChangeBlocked, m.Table, mc.Name, fmt.Errorf("cannot change column type on a non-empty table"))
		}

		if err := sess.Execute(ctx, fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT`, ast.QuoteIdent(m.Table), ast.QuoteIdent(mc.Name))); err != nil {
			return reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
		}
		if err := sess.Execute(ctx, fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s`, ast.QuoteIdent(m.Table), ast.QuoteIdent(checkName(m.Table, mc.Name)))); err != nil {
			return reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
		}

		newType := canon.EmissionSQL(mc.Canon)
		stmt := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE %s USING NULL::%s`,
			ast.QuoteIdent(m.Table), ast.QuoteIdent(mc.Name), newType, newType)
		if err := sess.Execute(ctx, stmt); err != nil {
			return reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
		}
		logger.Info("changed column type", "section", "TableDiffer", "action", "type", "table", m.Table, "column", mc.Name)
	}
	return nil
}

// alterNullity implements phase 4.
func alterNullity(ctx context.Context, sess dbsession.Session, live dbcatalog.Table, m *model.Model, hasData bool, logger *slog.Logger) error {
	for _, mc := range m.Columns {
		if mc.Virtual || mc.Primary {
			continue
		}
		dbCol, ok := live.ColumnByName(mc.Name)
		if !ok {
			continue
		}
		dbNotNull := !dbCol.IsNullable
		if dbNotNull == mc.NotNull {
			continue
		}

		if mc.NotNull {
			if hasData && mc.DefaultResult.Emit == "" && !mc.Identity {
				return reconcile.New(reconcile.AddNotNullBlocked, m.Table, mc.Name, fmt.Errorf("cannot set NOT NULL without default on a non-empty table"))
			}
			stmt := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s SET NOT NULL`, ast.QuoteIdent(m.Table), ast.QuoteIdent(mc.Name))
			if err := sess.Execute(ctx, stmt); err != nil {
				return reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
			}
		} else {
			stmt := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL`, ast.QuoteIdent(m.Table), ast.QuoteIdent(mc.Name))
			if err := sess.Execute(ctx, stmt); err != nil {
				return reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
			}
		}
		logger.Info("changed column nullity", "section", "TableDiffer", "action", "nullity", "table", m.Table, "column", mc.Name)
	}
	return nil
}

// isSafeUniqueDefault reports whether a default is guaranteed-unique
// (uuid() or an integer-identity sentinel), per spec §4.9 phase 5.
func isSafeUniqueDefault(mc *model.Column) bool {
	return mc.Identity || mc.DefaultResult.Emit == "gen_random_uuid()"
}

// alterUnique implements phase 5.
func alterUnique(ctx context.Context, sess dbsession.Session, live dbcatalog.Table, m *model.Model, hasData bool, logger *slog.Logger) error {
	for _, mc := range m.Columns {
		if mc.Virtual || mc.Primary {
			continue
		}
		dbCol, ok := live.ColumnByName(mc.Name)
		if !ok {
			continue
		}
		if dbCol.IsUnique == mc.Unique {
			continue
		}

		name := mc.Name + "_key"
		if mc.Unique {
			if hasData && !isSafeUniqueDefault(mc) {
				return reconcile.New(reconcile.AddUniqueBlocked, m.Table, mc.Name, fmt.Errorf("cannot add UNIQUE on a non-empty table without a guaranteed-unique default"))
			}
			stmt := fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)`,
				ast.QuoteIdent(m.Table), ast.QuoteIdent(name), ast.QuoteIdent(mc.Name))
			if err := sess.Execute(ctx, stmt); err != nil {
				return reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
			}
		} else {
			stmt := fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s`, ast.QuoteIdent(m.Table), ast.QuoteIdent(name))
			if err := sess.Execute(ctx, stmt); err != nil {
				return reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
			}
		}
		logger.Info("changed column uniqueness", "section", "TableDiffer", "action", "unique", "table", m.Table, "column", mc.Name)
	}
	return nil
}

// alterForeignKeys implements phase 6: only columns marked __renamed.
func alterForeignKeys(ctx context.Context, sess dbsession.Session, m *model.Model, renamed map[string]bool, logger *slog.Logger) error {
	for _, mc := range m.Columns {
		if !renamed[mc.Name] || mc.Reference == nil || mc.Virtual {
			continue
		}
		name := fkName(m.Table, mc.Name)
		if err := sess.Execute(ctx, fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s`, ast.QuoteIdent(m.Table), ast.QuoteIdent(name))); err != nil {
			return reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s) ON DELETE %s ON UPDATE %s`,
			ast.QuoteIdent(m.Table), ast.QuoteIdent(name), ast.QuoteIdent(mc.Name),
			ast.QuoteIdent(mc.Reference.ToTable), ast.QuoteIdent(mc.Reference.ToColumn),
			string(mc.Reference.OnDelete), string(mc.Reference.OnUpdate))
		if err := sess.Execute(ctx, stmt); err != nil {
			return reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
		}
		logger.Info("recreated foreign key", "section", "TableDiffer", "action", "fk", "table", m.Table, "column", mc.Name)
	}
	return nil
}

func normalizeCheckText(s string) string {
	fields := strings.Fields(strings.ToUpper(s))
	return strings.Join(fields, " ")
}

// alterCheck implements phase 7.
func alterCheck(ctx context.Context, sess dbsession.Session, catalog *dbcatalog.Schema, m *model.Model, logger *slog.Logger) error {
	for _, mc := range m.Columns {
		if mc.Virtual {
			continue
		}
		name := checkName(m.Table, mc.Name)
		desired := ""
		if mc.Check != "" {
			sql, err := checkparser.Parse(mc.Check)
			if err != nil {
				return reconcile.New(reconcile.CheckSyntax, m.Table, mc.Name, err)
			}
			desired = normalizeCheckText(sql)
		}
		existing, hasExisting := findCheckConstraint(catalog, m.Table, name)
		existingNorm := ""
		if hasExisting && existing.CheckClause != nil {
			existingNorm = normalizeCheckText(*existing.CheckClause)
		}

		switch {
		case desired == "" && hasExisting:
			if err := sess.Execute(ctx, fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s`, ast.QuoteIdent(m.Table), ast.QuoteIdent(name))); err != nil {
				return reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
			}
			logger.Info("dropped check constraint", "section", "TableDiffer", "action", "check", "table", m.Table, "column", mc.Name)
		case desired != "" && !hasExisting:
			if err := addCheck(ctx, sess, m.Table, name, mc.CheckSQL); err != nil {
				return err
			}
			logger.Info("added check constraint", "section", "TableDiffer", "action", "check", "table", m.Table, "column", mc.Name)
		case desired != "" && hasExisting && desired != existingNorm:
			if err := sess.Execute(ctx, fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s`, ast.QuoteIdent(m.Table), ast.QuoteIdent(name))); err != nil {
				return reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
			}
			if err := addCheck(ctx, sess, m.Table, name, mc.CheckSQL); err != nil {
				return err
			}
			logger.Info("replaced check constraint", "section", "TableDiffer", "action", "check", "table", m.Table, "column", mc.Name)
		}
	}
	return nil
}

func addCheck(ctx context.Context, sess dbsession.Session, table, name, checkSQL string) error {
	stmt := fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)`, ast.QuoteIdent(table), ast.QuoteIdent(name), checkSQL)
	if err := sess.Execute(ctx, stmt); err != nil {
		return reconcile.New(reconcile.DatabaseError, table, "", err)
	}
	return nil
}

func findCheckConstraint(catalog *dbcatalog.Schema, table, name string) (dbcatalog.Constraint, bool) {
	for _, c := range catalog.Constraints {
		if c.Type == "CHECK" && strings.EqualFold(c.TableName, table) && strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return dbcatalog.Constraint{}, false
}

// alterDefault implements phase 8: identity sentinels never ALTER a
// default here (they were emitted as GENERATED ALWAYS AS IDENTITY at
// creation time and are immutable afterward).
func alterDefault(ctx context.Context, sess dbsession.Session, live dbcatalog.Table, m *model.Model, logger *slog.Logger) error {
	for _, mc := range m.Columns {
		if mc.Virtual || mc.Identity {
			continue
		}
		dbCol, ok := live.ColumnByName(mc.Name)
		if !ok {
			continue
		}
		liveDefault := ""
		if dbCol.ColumnDefault != nil {
			liveDefault = *dbCol.ColumnDefault
		}
		desired := mc.DefaultResult.Emit
		if strings.EqualFold(strings.TrimSpace(liveDefault), strings.TrimSpace(desired)) {
			continue
		}
		if desired == "" {
			stmt := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT`, ast.QuoteIdent(m.Table), ast.QuoteIdent(mc.Name))
			if err := sess.Execute(ctx, stmt); err != nil {
				return reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
			}
		} else {
			stmt := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s`, ast.QuoteIdent(m.Table), ast.QuoteIdent(mc.Name), desired)
			if err := sess.Execute(ctx, stmt); err != nil {
				return reconcile.New(reconcile.DatabaseError, m.Table, mc.Name, err)
			}
		}
		logger.Info("changed column default", "section", "TableDiffer", "action", "default", "table", m.Table, "column", mc.Name)
	}
	return nil
}
