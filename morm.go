// Package morm is the Declaration API (spec §6): a small,
// language-neutral facade — init/enums/model/transaction/migrate —
// composing the dbsession, schema and migrate/* layers underneath it.
//
// ptah itself exposes no single root facade of this shape — its
// subpackages (dbschema, migration, core/goschema) are composed
// directly by a caller, typically a CLI command under cmd/. This
// package is new composition grounded on that same
// compose-the-subpackages idea, plus golang.org/x/sync/singleflight
// for the idempotent-construction-by-connection-string instance cache
// spec §5/§6 require (neither the standard library nor go-extras/go-kit
// offers an equivalent single-flight/memoized-constructor primitive).
package morm

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/inedumozey/morm/dbsession"
	"github.com/inedumozey/morm/dbsession/pgxsession"
	"github.com/inedumozey/morm/migrate/reconciler"
	"github.com/inedumozey/morm/schema/enumregistry"
	"github.com/inedumozey/morm/schema/model"
)

// Engine is one initialized connection instance: a session, the
// accumulated enum registry and model declarations, and its own
// Reconciler, so two Engines on different connection strings never
// share a re-entrancy lock.
type Engine struct {
	mu         sync.Mutex
	sess       dbsession.Session
	pool       *pgxsession.Session
	registry   *enumregistry.Registry
	decls      []model.ModelDecl
	reconciler *reconciler.Reconciler
}

var (
	instancesMu sync.Mutex
	instances   = map[string]*Engine{}
	initGroup   singleflight.Group
)

// Init implements the Declaration API's `init` (spec §6): idempotent,
// ensures the target database exists, opens a pool, and caches the
// resulting Engine by connection string so repeated Init calls for the
// same target return the same instance. onReady, if non-nil, is called
// once with the result (matching the callback-style surface spec §6
// names alongside the returned value, for callers in a style that
// prefers a callback over an error return).
func Init(ctx context.Context, connectionString string, onReady func(*Engine, error)) (*Engine, error) {
	v, err, _ := initGroup.Do(connectionString, func() (any, error) {
		instancesMu.Lock()
		if e, ok := instances[connectionString]; ok {
			instancesMu.Unlock()
			return e, nil
		}
		instancesMu.Unlock()

		if err := ensureDatabase(ctx, connectionString); err != nil {
			return nil, err
		}

		pool, err := pgxsession.Open(ctx, connectionString)
		if err != nil {
			return nil, err
		}

		e := &Engine{
			sess:       pool,
			pool:       pool,
			registry:   enumregistry.New(),
			reconciler: reconciler.New(),
		}

		instancesMu.Lock()
		instances[connectionString] = e
		instancesMu.Unlock()

		return e, nil
	})

	if onReady != nil {
		if err != nil {
			onReady(nil, err)
		} else {
			onReady(v.(*Engine), nil)
		}
	}

	if err != nil {
		return nil, err
	}
	return v.(*Engine), nil
}

// Close releases the Engine's underlying pool and drops it from the
// instance cache, so a subsequent Init for the same connection string
// constructs a fresh Engine rather than reusing a closed one.
func (e *Engine) Close(connectionString string) {
	instancesMu.Lock()
	delete(instances, connectionString)
	instancesMu.Unlock()
	e.pool.Close()
}
