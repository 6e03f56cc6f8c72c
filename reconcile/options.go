// Package reconcile holds the ambient types shared across every layer
// of the engine: the functional-options Options type and the
// enumerated ErrorKind taxonomy from spec §7.
//
// Options is grounded directly on ptah's config.CompareOptions
// (config/config.go), which uses the same `With...(opts ...Option)
// Option`-closure shape for its own IgnoredExtensions setting.
package reconcile

import (
	"log/slog"
	"time"
)

// Options configures a single Reconciler run (spec §5, §6 `migrate`).
type Options struct {
	LockTimeout      time.Duration
	StatementTimeout time.Duration
	Reset            bool
	DryRun           bool
	Logger           *slog.Logger
}

// DefaultOptions returns the spec §5 defaults: 2s lock_timeout, 5s
// statement_timeout, reset disabled, logging to slog.Default().
func DefaultOptions() Options {
	return Options{
		LockTimeout:      2 * time.Second,
		StatementTimeout: 5 * time.Second,
		Logger:           slog.Default(),
	}
}

// Option mutates an Options value.
type Option func(*Options)

// Apply folds a list of Options over DefaultOptions.
func Apply(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithLockTimeout(d time.Duration) Option {
	return func(o *Options) { o.LockTimeout = d }
}

func WithStatementTimeout(d time.Duration) Option {
	return func(o *Options) { o.StatementTimeout = d }
}

func WithReset() Option {
	return func(o *Options) { o.Reset = true }
}

func WithDryRun() Option {
	return func(o *Options) { o.DryRun = true }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}
