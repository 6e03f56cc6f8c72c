// Package dbsession defines the database session abstraction the
// engine consumes as an external collaborator (spec §1, §6): something
// exposing `execute(sql, params) -> rows` and `begin/commit/rollback`.
//
// Two concrete implementations are provided, grounded on the two real
// PostgreSQL drivers the pack exercises: dbsession/pgxsession wraps
// jackc/pgx/v5's pool, and dbsession/pqsession wraps lib/pq through
// database/sql — mirroring ptah's dbschema/types.SchemaReader /
// SchemaWriter split, which is itself driver-agnostic over *sql.DB.
package dbsession

import "context"

// Row is a single-row query result, satisfied by both pgx.Row and the
// database/sql *sql.Row.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a multi-row query result.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}

// Session is the database collaborator the engine consumes. A Session
// value is also usable as the outer transaction handle returned by
// Begin.
type Session interface {
	Execute(ctx context.Context, sql string, args ...any) error
	QueryRow(ctx context.Context, sql string, args ...any) Row
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a Session bound to an open transaction.
type Tx interface {
	Session
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
