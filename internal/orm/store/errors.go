package store

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Store error classes shared by every supported driver
var (
	// ErrNotFound is returned when a row is not found
	ErrNotFound = errors.New("record not found")

	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrUndefinedColumn is returned when a statement names a missing column
	ErrUndefinedColumn = errors.New("undefined column")

	// ErrUndefinedTable is returned when a statement names a missing table
	ErrUndefinedTable = errors.New("undefined table")

	// ErrDuplicateColumn is returned when adding a column that already exists
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrRetryable marks deadlocks, serialization failures and busy databases
	ErrRetryable = errors.New("retryable store error")
)

// DBError is a driver error classified under one of the store error classes
type DBError struct {
	Class error
	Err   error
}

func (e *DBError) Error() string {
	return e.Class.Error() + ": " + e.Err.Error()
}

// Unwrap returns the driver error
func (e *DBError) Unwrap() error {
	return e.Err
}

// Is matches the error class
func (e *DBError) Is(target error) bool {
	return target == e.Class
}

// PostgreSQL SQLSTATE codes
const (
	pgUniqueViolation      = "23505"
	pgUndefinedColumn      = "42703"
	pgUndefinedTable       = "42P01"
	pgDuplicateColumn      = "42701"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
)

// ConvertDBError classifies a driver error. Errors that match no class are
// returned unchanged.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	var dbErr *DBError
	if errors.As(err, &dbErr) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &DBError{Class: ErrNotFound, Err: err}
	}

	if class := classify(err); class != nil {
		return &DBError{Class: class, Err: err}
	}
	return err
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifySQLState(string(pqErr.Code))
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return ErrUniqueViolation
		case liteErr.Code == sqlite3.ErrBusy, liteErr.Code == sqlite3.ErrLocked:
			return ErrRetryable
		}
		// SQLite reports schema errors as generic errors
		msg := liteErr.Error()
		switch {
		case strings.Contains(msg, "no such column"):
			return ErrUndefinedColumn
		case strings.Contains(msg, "no such table"):
			return ErrUndefinedTable
		case strings.Contains(msg, "duplicate column name"):
			return ErrDuplicateColumn
		}
	}
	return nil
}

func classifySQLState(code string) error {
	switch code {
	case pgUniqueViolation:
		return ErrUniqueViolation
	case pgUndefinedColumn:
		return ErrUndefinedColumn
	case pgUndefinedTable:
		return ErrUndefinedTable
	case pgDuplicateColumn:
		return ErrDuplicateColumn
	case pgDeadlockDetected, pgSerializationFailure:
		return ErrRetryable
	}
	return nil
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(ConvertDBError(err), ErrNotFound)
}

// IsUniqueViolation returns true if the error is a unique constraint violation
func IsUniqueViolation(err error) bool {
	return errors.Is(ConvertDBError(err), ErrUniqueViolation)
}

// IsRetryable returns true if repeating the transaction may succeed
func IsRetryable(err error) bool {
	return errors.Is(ConvertDBError(err), ErrRetryable)
}
