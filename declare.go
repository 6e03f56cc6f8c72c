package morm

import (
	"context"
	"fmt"
	"time"

	"github.com/inedumozey/morm/dbsession"
	"github.com/inedumozey/morm/reconcile"
	"github.com/inedumozey/morm/schema/model"
)

// EnumDef is one declared enum (spec §6 `enums([{name, values}])`).
type EnumDef struct {
	Name   string
	Values []string
}

// Enums registers every declared enum into this Engine's registry.
// Conflicting or duplicate registrations are accumulated and surfaced
// at Migrate time (spec §4.12 step 1), matching EnumRegistry's own
// accumulate-rather-than-fail-fast behavior.
func (e *Engine) Enums(defs []EnumDef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range defs {
		e.registry.Register(d.Name, d.Values)
	}
}

// ModelConfig is the Declaration API's model({...}) argument (spec §6).
// Sanitize is accepted for API-surface completeness but has no effect
// on schema reconciliation: it configures the runtime query/CRUD
// layer's value-sanitization behavior, which spec §1 explicitly places
// out of scope ("a runtime query/CRUD layer sketched only in auxiliary
// files").
type ModelConfig struct {
	Decl     model.ModelDecl
	Sanitize any // bool or "strict"; inert here, see doc comment above
}

// Model registers a declared model. It is normalized against the
// accumulated enum registry at Migrate time, not immediately, since
// enum registration order relative to model declaration is not
// guaranteed by the Declaration API's shape.
func (e *Engine) Model(cfg ModelConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decls = append(e.decls, cfg.Decl)
}

// TxOptions configures Transaction (spec §6 `transaction(fn, {maxWait,
// timeout})`). A zero value for either falls back to
// reconcile.DefaultOptions' lock_timeout/statement_timeout.
type TxOptions struct {
	MaxWait time.Duration
	Timeout time.Duration
}

// Transaction runs fn inside a transaction with the given lock_timeout
// (MaxWait) and statement_timeout (Timeout), rolling back if fn returns
// an error or any statement fails.
func (e *Engine) Transaction(ctx context.Context, fn func(ctx context.Context, tx dbsession.Tx) error, opts TxOptions) error {
	defaults := reconcile.DefaultOptions()
	lockTimeout := defaults.LockTimeout
	if opts.MaxWait > 0 {
		lockTimeout = opts.MaxWait
	}
	stmtTimeout := defaults.StatementTimeout
	if opts.Timeout > 0 {
		stmtTimeout = opts.Timeout
	}

	tx, err := e.sess.Begin(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := tx.Execute(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockTimeout.Milliseconds())); err != nil {
		return err
	}
	if err := tx.Execute(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", stmtTimeout.Milliseconds())); err != nil {
		return err
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

// MigrateOptions configures Migrate (spec §6 `migrate({clean, reset})`).
type MigrateOptions struct {
	// Clean validates every declaration and builds the relation graph
	// without executing any DDL (a dry run).
	Clean bool
	// Reset drops every extension/table/enum before reconciling from a
	// clean slate (spec §4.12).
	Reset bool
}

// Migrate normalizes every declared model against the accumulated enum
// registry and runs the full Reconciler pass (spec §6 `migrate`).
func (e *Engine) Migrate(ctx context.Context, opts MigrateOptions) (bool, error) {
	e.mu.Lock()
	decls := append([]model.ModelDecl(nil), e.decls...)
	registry := e.registry
	e.mu.Unlock()

	models := make([]*model.Model, 0, len(decls))
	for _, decl := range decls {
		models = append(models, model.Normalize(decl, registry))
	}

	var reconcileOpts []reconcile.Option
	if opts.Reset {
		reconcileOpts = append(reconcileOpts, reconcile.WithReset())
	}
	if opts.Clean {
		reconcileOpts = append(reconcileOpts, reconcile.WithDryRun())
	}
	ro := reconcile.Apply(reconcileOpts...)

	return e.reconciler.Reconcile(ctx, e.sess, registry, models, ro)
}
