// Package repository persists the request aggregate in PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"

	"repairdesk_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errRequestNotFound   = "request not found"
	errQuotationNotFound = "quotation not found"
	errPaymentNotFound   = "payment not found"
	errStaleRequest      = "request status changed concurrently"
	errStalePayment      = "payment status changed concurrently"

	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InTx runs fn inside a read-committed transaction. Row locks taken by
// LockRequest serialise concurrent actors on the same request.
func (r *Repository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&txStore{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore implements Tx over a single pgx transaction.
type txStore struct {
	db DBTX
}

var _ Store = (*Repository)(nil)
var _ Tx = (*txStore)(nil)

// mapConstraintError turns constraint violations that can only be caused by
// a concurrent writer into stale state errors.
func mapConstraintError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return apperr.Wrap(apperr.KindStaleState, errStaleRequest, err).WithOp(op)
		case pgForeignKeyViolation:
			return apperr.Wrap(apperr.KindNotFound, errRequestNotFound, err).WithOp(op)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
