// Package relgraph implements RelationGraph (spec §4.6): cross-model
// reference validation, dependency-edge construction, and topological
// sort by Kahn's algorithm with an alphabetical tiebreak.
//
// The Kahn's-algorithm-with-queue-of-zero-indegree-nodes shape is
// grounded on ptah's core/goschema.sortTablesByDependencies /
// buildDependencyGraph (core/goschema/utils.go), which performs the
// same dependent-table topological sort for its own generated CREATE
// TABLE ordering.
package relgraph

import (
	"fmt"
	"sort"

	"github.com/inedumozey/morm/reconcile"
	"github.com/inedumozey/morm/schema/model"
)

// Descriptor is a single resolved reference, attached to a model as
// either an outgoing or incoming edge (spec §4.6).
type Descriptor struct {
	Table    string
	Column   string
	ToTable  string
	ToColumn string
	Kind     model.RelationKind
	IsSelf   bool
}

// Graph holds, per table, the resolved outgoing/incoming descriptors
// and the dependency-sorted table order.
type Graph struct {
	Outgoing map[string][]Descriptor
	Incoming map[string][]Descriptor
	Sorted   []string
}

// Build validates every declared reference across models, records
// incoming/outgoing descriptors, and computes a dependency-ordered
// table list. It returns the first batch of validation errors found (as
// a joined slice) rather than failing on the first one, so the caller
// can report every problem in one pass.
func Build(models []*model.Model) (*Graph, []error) {
	byTable := make(map[string]*model.Model, len(models))
	for _, m := range models {
		byTable[lower(m.Table)] = m
	}

	g := &Graph{Outgoing: map[string][]Descriptor{}, Incoming: map[string][]Descriptor{}}
	dependents := map[string]map[string]bool{} // target -> set of sources that must come after it
	allTables := map[string]bool{}

	var errs []error

	for _, m := range models {
		allTables[lower(m.Table)] = true
		for _, col := range m.Columns {
			if col.Reference == nil {
				continue
			}

			target, ok := byTable[lower(col.Reference.ToTable)]
			if !ok {
				errs = append(errs, reconcile.New(reconcile.RelationTargetMissing, m.Table, col.Name,
					errf("referenced table %q does not exist", col.Reference.ToTable)))
				continue
			}

			targetCol, ok := target.Column(col.Reference.ToColumn)
			if !ok {
				errs = append(errs, reconcile.New(reconcile.RelationColumnMissing, m.Table, col.Name,
					errf("referenced column %q does not exist on %q", col.Reference.ToColumn, target.Table)))
				continue
			}

			if targetCol.Canon.Base != col.Canon.Base {
				errs = append(errs, reconcile.New(reconcile.RelationTypeMismatch, m.Table, col.Name,
					errf("base type %s does not match referenced column's base type %s", col.Canon.Base, targetCol.Canon.Base)))
				continue
			}

			desc := Descriptor{
				Table: m.Table, Column: col.Name,
				ToTable: target.Table, ToColumn: targetCol.Name,
				Kind: col.Reference.Kind, IsSelf: col.Reference.IsSelf,
			}
			g.Outgoing[m.Table] = append(g.Outgoing[m.Table], desc)
			g.Incoming[target.Table] = append(g.Incoming[target.Table], desc)

			if col.Reference.Kind != model.ManyToMany && !col.Reference.IsSelf {
				t := lower(target.Table)
				if dependents[t] == nil {
					dependents[t] = map[string]bool{}
				}
				dependents[t][lower(m.Table)] = true
			}
		}
	}

	if len(errs) > 0 {
		return g, errs
	}

	sorted, err := topoSort(allTables, dependents)
	if err != nil {
		return g, []error{err}
	}
	g.Sorted = sorted

	return g, nil
}

// topoSort implements Kahn's algorithm: `dependents[target]` is the set
// of source tables that must be created after `target`. Ties among
// simultaneously-ready nodes break alphabetically (spec §5).
func topoSort(allTables map[string]bool, dependents map[string]map[string]bool) ([]string, error) {
	inDegree := map[string]int{}
	for t := range allTables {
		inDegree[t] = 0
	}
	// edge target -> source means source has an incoming dependency on target;
	// we need in-degree counted from the perspective of "must come after".
	edges := map[string][]string{} // target -> sources that depend on it
	for target, sources := range dependents {
		for source := range sources {
			edges[target] = append(edges[target], source)
			inDegree[source]++
		}
	}

	var queue []string
	for t := range allTables {
		if inDegree[t] == 0 {
			queue = append(queue, t)
		}
	}
	sort.Strings(queue)

	var sorted []string
	for len(queue) > 0 {
		sort.Strings(queue)
		next := queue[0]
		queue = queue[1:]
		sorted = append(sorted, next)

		for _, dependent := range edges[next] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(allTables) {
		return nil, reconcile.New(reconcile.CyclicRelations, "", "", errf("cyclic relations detected among tables"))
	}

	return sorted, nil
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func errf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
