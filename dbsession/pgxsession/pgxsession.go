// Package pgxsession implements dbsession.Session on top of
// jackc/pgx/v5's connection pool, the primary driver this engine uses.
package pgxsession

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inedumozey/morm/dbsession"
)

// Session wraps a *pgxpool.Pool.
type Session struct {
	pool *pgxpool.Pool
}

// Open constructs a pool for connString and wraps it in a Session,
// caching nothing itself — the instance cache keyed by connection
// string lives one layer up, in the declaration API (spec §6, §9).
func Open(ctx context.Context, connString string) (*Session, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	return &Session{pool: pool}, nil
}

func New(pool *pgxpool.Pool) *Session {
	return &Session{pool: pool}
}

func (s *Session) Execute(ctx context.Context, sql string, args ...any) error {
	_, err := s.pool.Exec(ctx, sql, args...)
	return err
}

func (s *Session) QueryRow(ctx context.Context, sql string, args ...any) dbsession.Row {
	return s.pool.QueryRow(ctx, sql, args...)
}

func (s *Session) Query(ctx context.Context, sql string, args ...any) (dbsession.Rows, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &rowsAdapter{rows}, nil
}

func (s *Session) Begin(ctx context.Context) (dbsession.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txSession{tx: tx}, nil
}

// Close releases the underlying pool.
func (s *Session) Close() {
	s.pool.Close()
}

type rowsAdapter struct {
	pgx.Rows
}

func (r *rowsAdapter) Scan(dest ...any) error {
	return r.Rows.Scan(dest...)
}

func (r *rowsAdapter) Close() {
	r.Rows.Close()
}

type txSession struct {
	tx pgx.Tx
}

func (s *txSession) Execute(ctx context.Context, sql string, args ...any) error {
	_, err := s.tx.Exec(ctx, sql, args...)
	return err
}

func (s *txSession) QueryRow(ctx context.Context, sql string, args ...any) dbsession.Row {
	return s.tx.QueryRow(ctx, sql, args...)
}

func (s *txSession) Query(ctx context.Context, sql string, args ...any) (dbsession.Rows, error) {
	rows, err := s.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &rowsAdapter{rows}, nil
}

func (s *txSession) Begin(ctx context.Context) (dbsession.Tx, error) {
	inner, err := s.tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txSession{tx: inner}, nil
}

func (s *txSession) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

func (s *txSession) Rollback(ctx context.Context) error {
	return s.tx.Rollback(ctx)
}
