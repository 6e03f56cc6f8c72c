// Package pqsession implements dbsession.Session on top of lib/pq
// through database/sql, the alternate database/sql-compatible driver
// this engine wires for the live-catalog reads (spec SPEC_FULL.md
// DOMAIN STACK), grounded on ptah's dbschema/postgres.Reader which also
// consumes a plain *sql.DB.
package pqsession

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/inedumozey/morm/dbsession"
)

// Session wraps a *sql.DB opened with the "postgres" (lib/pq) driver.
type Session struct {
	db *sql.DB
}

func Open(connString string) (*Session, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}
	return &Session{db: db}, nil
}

func New(db *sql.DB) *Session {
	return &Session{db: db}
}

func (s *Session) Execute(ctx context.Context, sqlText string, args ...any) error {
	_, err := s.db.ExecContext(ctx, sqlText, args...)
	return err
}

func (s *Session) QueryRow(ctx context.Context, sqlText string, args ...any) dbsession.Row {
	return s.db.QueryRowContext(ctx, sqlText, args...)
}

func (s *Session) Query(ctx context.Context, sqlText string, args ...any) (dbsession.Rows, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	return &rowsAdapter{rows}, nil
}

func (s *Session) Begin(ctx context.Context) (dbsession.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txSession{tx: tx}, nil
}

// Close releases the underlying *sql.DB.
func (s *Session) Close() error {
	return s.db.Close()
}

type rowsAdapter struct {
	*sql.Rows
}

func (r *rowsAdapter) Close() {
	_ = r.Rows.Close()
}

type txSession struct {
	tx *sql.Tx
}

func (s *txSession) Execute(ctx context.Context, sqlText string, args ...any) error {
	_, err := s.tx.ExecContext(ctx, sqlText, args...)
	return err
}

func (s *txSession) QueryRow(ctx context.Context, sqlText string, args ...any) dbsession.Row {
	return s.tx.QueryRowContext(ctx, sqlText, args...)
}

func (s *txSession) Query(ctx context.Context, sqlText string, args ...any) (dbsession.Rows, error) {
	rows, err := s.tx.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	return &rowsAdapter{rows}, nil
}

func (s *txSession) Begin(context.Context) (dbsession.Tx, error) {
	return nil, sql.ErrTxDone // nested transactions are not supported by database/sql
}

func (s *txSession) Commit(context.Context) error {
	return s.tx.Commit()
}

func (s *txSession) Rollback(context.Context) error {
	return s.tx.Rollback()
}
