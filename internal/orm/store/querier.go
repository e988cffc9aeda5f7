// Package store is the relational store handle the schema engine drives:
// parameterized statements through a Querier, catalog introspection per
// dialect, and the column cache that remembers the physical shape of tables.
package store

import (
	"context"
	"database/sql"
)

// Querier runs parameterized statements. It is satisfied by *sql.DB,
// *sql.Tx and *transaction.Transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CommitHooker is implemented by queriers that can defer work until their
// transaction commits
type CommitHooker interface {
	OnCommit(fn func())
}

// AfterCommit runs fn when q commits, or immediately when q has no
// transaction to wait for
func AfterCommit(q Querier, fn func()) {
	if h, ok := q.(CommitHooker); ok {
		h.OnCommit(fn)
		return
	}
	fn()
}

// RollbackHooker is implemented by queriers whose work can be undone by a
// rollback
type RollbackHooker interface {
	OnRollback(fn func())
}

// AfterRollback runs fn if the work done on q is rolled back. Work on a
// querier without a transaction cannot be, so fn is dropped.
func AfterRollback(q Querier, fn func()) {
	if h, ok := q.(RollbackHooker); ok {
		h.OnRollback(fn)
	}
}

// QueryStrings runs a query returning one string column and collects the
// rows before returning, so the caller may issue the next statement on the
// same connection.
func QueryStrings(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, ConvertDBError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s sql.NullString
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		if s.Valid {
			out = append(out, s.String)
		}
	}
	return out, ConvertDBError(rows.Err())
}

// Savepointer is implemented by queriers that can isolate a group of
// statements in a savepoint
type Savepointer interface {
	Savepoint(ctx context.Context, fn func(q Querier) error) error
}

// Isolated runs fn in a savepoint when q supports one, so a failed statement
// leaves the enclosing transaction usable. Otherwise fn runs on q directly.
func Isolated(ctx context.Context, q Querier, fn func(q Querier) error) error {
	if sp, ok := q.(Savepointer); ok {
		return sp.Savepoint(ctx, fn)
	}
	return fn(q)
}
