// Package postgres is the PostgreSQL-backed record.Store, grounded on the
// teacher's pkg/storage/postgres.BaseStore: a transaction-in-context helper
// embedded by the concrete store. Column sets are dynamic per component
// table, so unlike the teacher's per-domain stores this package builds SQL
// against a caller-declared column list rather than fixed struct fields.
// The connection itself is a jmoiron/sqlx.DB, as the teacher's storage
// layer uses throughout pkg/storage/postgres.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// BaseStore carries the shared connection and transaction-in-context
// plumbing used by Store.
type BaseStore struct {
	db *sqlx.DB
}

// NewBaseStore wraps an already-opened *sqlx.DB.
func NewBaseStore(db *sqlx.DB) *BaseStore {
	return &BaseStore{db: db}
}

func (s *BaseStore) DB() *sqlx.DB { return s.db }

type txKey struct{}

// TxFromContext extracts a transaction from context, if one is active.
func TxFromContext(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

// ContextWithTx attaches tx to ctx.
func ContextWithTx(ctx context.Context, tx *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *BaseStore) querier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// WithTx runs fn inside a transaction, rolling back on error.
func (s *BaseStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	txCtx := ContextWithTx(ctx, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *BaseStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.querier(ctx).ExecContext(ctx, query, args...)
}

func (s *BaseStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.querier(ctx).QueryContext(ctx, query, args...)
}

func (s *BaseStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.querier(ctx).QueryRowContext(ctx, query, args...)
}
