// Package repo contains all database access logic for the custody store.
// Each resource has its own file with an interface and a Postgres implementation.
// No business logic lives here, only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pkordes/hidetrace/backend/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Every custody write runs against a pgx.Tx handed out by TxRunner; tests pass
// a transaction that is rolled back when the test ends.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Postgres SQLSTATE codes the store reacts to.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// constraintReasons maps unique constraints to the rejection they signal.
var constraintReasons = map[string]domain.Reason{
	"tags_stamp_code_key":   domain.ReasonStampCodeConflict,
	"tags_pkey":             domain.ReasonDuplicateCode,
	"garment_products_pkey": domain.ReasonDuplicateCode,
}

// mapError turns driver errors into domain kinds. pgx.ErrNoRows becomes
// ErrNotFound, unique and foreign-key violations become typed rejections.
// Serialization failures pass through untouched so TxRunner can retry them.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		reason, ok := constraintReasons[pgErr.ConstraintName]
		if !ok {
			reason = domain.ReasonDuplicateCode
		}
		return &domain.Rejection{
			Kind:    domain.ErrConflict,
			Reason:  reason,
			Message: strings.TrimSpace(pgErr.Detail),
			Cause:   err,
		}
	case pgForeignKeyViolation:
		return &domain.Rejection{
			Kind:    domain.ErrPreconditionFailed,
			Reason:  domain.ReasonUnknownReference,
			Message: strings.TrimSpace(pgErr.Detail),
			Cause:   err,
		}
	}
	return err
}

// IsRetryable reports whether err is a transient concurrency failure that a
// fresh transaction may not hit again.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
}

// likePattern escapes LIKE metacharacters so user text matches literally.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// nullIfEmpty maps "" to SQL NULL for nullable text columns.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SQLState returns the Postgres error code carried by err, or "".
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
