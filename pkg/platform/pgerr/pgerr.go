// Package pgerr recognizes PostgreSQL error conditions regardless of driver.
//
// The account store is the final authority on email and username uniqueness;
// the reconciler keys its single retry on seeing a unique violation. The
// stores currently connect through lib/pq; the pgconn branch keeps detection
// working if a caller connects through pgx instead.
package pgerr

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505) from either the lib/pq or pgx driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolationCode
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	return false
}

// ConstraintName returns the violated constraint's name when available.
// Useful for telling an email collision apart from a username collision.
func ConstraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
