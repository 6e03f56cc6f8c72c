// Package enummigrator implements the EnumMigrator (spec §4.8):
// reconciling live PostgreSQL enum types against the EnumRegistry
// inside the outer transaction, including safe rename detection,
// add-value, and destructive recreate-with-USING-cast.
//
// The read-live-then-diff-by-name shape is grounded on ptah's
// migration/schemadiff/internal/compare.Enums / EnumValues, which
// performs the same "added" / "removed" value-list diff between a
// generated schema and a live one (albeit without ptah's rename
// detection, which this package adds per spec §4.8 step 2).
package enummigrator

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
	"github.com/inedumozey/morm/schema/enumregistry"
	"github.com/inedumozey/morm/schema/model"
)

// usageRef is one table/column pair declaring an enum; buildUsage maps
// each enum name (upper) to its usageRefs.
type usageRef struct {
	Table  string
	Column string
}

// Migrate reconciles catalog's enum types against registry, issuing DDL
// through sess (expected to be the Reconciler's single outer
// transaction). models is used only to compute which columns currently
// declare each enum: for the EnumInUse checks in steps 4b and 5, and as
// the columns a destructive recreate re-types.
func Migrate(ctx context.Context, sess dbsession.Session, registry *enumregistry.Registry, catalog *dbcatalog.Schema, models []*model.Model, reset bool, logger *slog.Logger) error {
	wanted := registry.All()
	live := catalog.Enums // keyed upper already

	usage := buildUsage(models)

	renameFrom, renameTo := detectRenames(wanted, live)

	for newName, oldName := range renameTo {
		_ = oldName
		logger.Info("enum renamed", "section", "EnumMigrator", "action", "rename", "to", newName)
	}

	// Step 3: create registry entries with no DB counterpart (not a rename target).
	var toCreate []string
	for name := range wanted {
		if _, renamed := renameTo[name]; renamed {
			continue
		}
		if _, ok := live[name]; !ok {
			toCreate = append(toCreate, name)
		}
	}
	sort.Strings(toCreate)

	for oldName, newName := range renameFrom {
		if err := sess.Execute(ctx, fmt.Sprintf(`ALTER TYPE %s RENAME TO %s`, ast.QuoteIdent(oldName), ast.QuoteIdent(newName))); err != nil {
			return reconcile.New(reconcile.DatabaseError, newName, "", err)
		}
		live[newName] = dbcatalog.Enum{Name: newName, Values: live[oldName].Values}
		delete(live, oldName)
		logger.Info("renamed enum type", "section", "EnumMigrator", "from", oldName, "to", newName)
	}

	for _, name := range toCreate {
		node := &ast.EnumNode{Name: name, Values: wanted[name]}
		if err := sess.Execute(ctx, node.Render()); err != nil {
			return reconcile.New(reconcile.DatabaseError, name, "", err)
		}
		logger.Info("created enum type", "section", "EnumMigrator", "action", "create", "name", name)
	}

	// Step 4/5: surviving pairs and drops.
	for name, liveEnum := range live {
		wantedValues, inRegistry := wanted[name]
		if !inRegistry {
			if len(usage[name]) > 0 {
				return reconcile.New(reconcile.EnumInUse, "", "", fmt.Errorf("enum %s is in use and not in registry", name))
			}
			if err := sess.Execute(ctx, fmt.Sprintf(`DROP TYPE %s`, ast.QuoteIdent(name))); err != nil {
				return reconcile.New(reconcile.DatabaseError, name, "", err)
			}
			logger.Info("dropped enum type", "section", "EnumMigrator", "action", "drop", "name", name)
			continue
		}

		added, removed := diffValues(liveEnum.Values, wantedValues)

		if len(added) > 0 {
			if err := addValues(ctx, sess, name, liveEnum.Values, wantedValues); err != nil {
				return err
			}
			logger.Info("added enum values", "section", "EnumMigrator", "name", name, "values", added)
		}

		if len(removed) > 0 {
			if len(usage[name]) > 0 && !reset {
				return reconcile.New(reconcile.EnumInUse, name, "", fmt.Errorf("removing values %v requires reset", removed))
			}
			if err := recreate(ctx, sess, name, wantedValues, usage[name], logger); err != nil {
				return err
			}
		}
	}

	return nil
}

func buildUsage(models []*model.Model) map[string][]usageRef {
	usage := map[string][]usageRef{}
	for _, m := range models {
		for _, c := range m.Columns {
			if c.Canon.IsEnum {
				name := strings.ToUpper(c.Canon.Base)
				usage[name] = append(usage[name], usageRef{Table: m.Table, Column: c.Name})
			}
		}
	}
	return usage
}

// detectRenames finds registry entries absent from live whose ordered
// value list matches some live-only entry (spec §4.8 step 2).
func detectRenames(wanted map[string][]string, live map[string]dbcatalog.Enum) (byOldName map[string]string, byNewName map[string]string) {
	byOldName = map[string]string{}
	byNewName = map[string]string{}

	var liveOnly []string
	for name := range live {
		if _, ok := wanted[name]; !ok {
			liveOnly = append(liveOnly, name)
		}
	}
	sort.Strings(liveOnly)

	var wantedOnly []string
	for name := range wanted {
		if _, ok := live[name]; !ok {
			wantedOnly = append(wantedOnly, name)
		}
	}
	sort.Strings(wantedOnly)

	for _, newName := range wantedOnly {
		for _, oldName := range liveOnly {
			if _, taken := byOldName[oldName]; taken {
				continue
			}
			if sameOrder(live[oldName].Values, wanted[newName]) {
				byOldName[oldName] = newName
				byNewName[newName] = oldName
				break
			}
		}
	}
	return byOldName, byNewName
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

func diffValues(live, wanted []string) (added, removed []string) {
	liveSet := map[string]bool{}
	for _, v := range live {
		liveSet[strings.ToUpper(v)] = true
	}
	wantedSet := map[string]bool{}
	for _, v := range wanted {
		wantedSet[strings.ToUpper(v)] = true
	}
	for _, v := range wanted {
		if !liveSet[strings.ToUpper(v)] {
			added = append(added, v)
		}
	}
	for _, v := range live {
		if !wantedSet[strings.ToUpper(v)] {
			removed = append(removed, v)
		}
	}
	return added, removed
}

// addValues appends new enum values via ALTER TYPE ... ADD VALUE,
// inserting BEFORE the right neighbor when the desired position isn't
// at the end, so the final ordered list matches wanted exactly.
//
// wanted is walked in reverse so that by the time a value's BEFORE
// target is referenced, that target already exists in the type —
// either it was already live, or this same loop added it on a prior
// (later-index) iteration. Walking forward would reference
// not-yet-added labels whenever two or more new values are adjacent.
func addValues(ctx context.Context, sess dbsession.Session, name string, live, wanted []string) error {
	for i := len(wanted) - 1; i >= 0; i-- {
		v := wanted[i]
		if containsFold(live, v) {
			continue
		}
		stmt := fmt.Sprintf(`ALTER TYPE %s ADD VALUE %s`, ast.QuoteIdent(name), ast.QuoteLiteral(v))
		if i+1 < len(wanted) {
			stmt += fmt.Sprintf(` BEFORE %s`, ast.QuoteLiteral(wanted[i+1]))
		}
		if err := sess.Execute(ctx, stmt); err != nil {
			return reconcile.New(reconcile.DatabaseError, name, "", err)
		}
	}
	return nil
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

// recreate implements spec §4.8 step 4b's destructive path: create a
// temp enum with the desired list, delete rows and cast every owning
// column to it, drop the old type, rename the temp type into place.
func recreate(ctx context.Context, sess dbsession.Session, name string, wanted []string, refs []usageRef, logger *slog.Logger) error {
	tempName := name + "_morm_tmp"

	node := &ast.EnumNode{Name: tempName, Values: wanted}
	if err := sess.Execute(ctx, node.Render()); err != nil {
		return reconcile.New(reconcile.DatabaseError, name, "", err)
	}

	for _, ref := range refs {
		if err := sess.Execute(ctx, fmt.Sprintf(`DELETE FROM %s`, ast.QuoteIdent(ref.Table))); err != nil {
			return reconcile.New(reconcile.DatabaseError, ref.Table, ref.Column, err)
		}
		stmt := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::text::%s`,
			ast.QuoteIdent(ref.Table), ast.QuoteIdent(ref.Column), ast.QuoteIdent(tempName),
			ast.QuoteIdent(ref.Column), ast.QuoteIdent(tempName))
		if err := sess.Execute(ctx, stmt); err != nil {
			return reconcile.New(reconcile.DatabaseError, ref.Table, ref.Column, err)
		}
	}

	if err := sess.Execute(ctx, fmt.Sprintf(`DROP TYPE %s`, ast.QuoteIdent(name))); err != nil {
		return reconcile.New(reconcile.DatabaseError, name, "", err)
	}
	if err := sess.Execute(ctx, fmt.Sprintf(`ALTER TYPE %s RENAME TO %s`, ast.QuoteIdent(tempName), ast.QuoteIdent(name))); err != nil {
		return reconcile.New(reconcile.DatabaseError, name, "", err)
	}

	logger.Warn("recreated enum type destructively", "section", "EnumMigrator", "action", "recreate", "name", name)
	return nil
}
