// Package ormtest provides in-memory SQLite stores and row fixtures for the
// schema engine's tests.
package ormtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/contentschema/internal/orm/codegen"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

// NewSQLite opens a private in-memory database with the base tables, and
// the history tables when withHistory is set
func NewSQLite(t testing.TB, withHistory bool, opts ...store.Option) (*sql.DB, *store.Store) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range codegen.NewDDLGenerator(codegen.SQLite, 0).BaseTables(withHistory) {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	s, err := store.New("SQLite", opts...)
	require.NoError(t, err)
	return db, s
}

// InsertType inserts an object type row
func InsertType(t testing.TB, db *sql.DB, typeID int, name string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO object_type (type_id, name, exclude_from_versioning) VALUES (?, ?, ?)`, typeID, name, false)
	require.NoError(t, err)
}

// InsertNode inserts an instance row
func InsertNode(t testing.TB, db *sql.DB, id string, typeID int) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO node (id, type_id) VALUES (?, ?)`, id, typeID)
	require.NoError(t, err)
}

// InsertValue inserts a single-valued attribute value into column
func InsertValue(t testing.TB, db *sql.DB, nodeID, name, column string, value any) {
	t.Helper()
	_, err := db.Exec(fmt.Sprintf(`INSERT INTO attribute (node_id, name, %s) VALUES (?, ?, ?)`, column), nodeID, name, value)
	require.NoError(t, err)
}

// InsertOrdinalValue inserts one value of a multivalue attribute
func InsertOrdinalValue(t testing.TB, db *sql.DB, nodeID, name string, ordinal int, column string, value any) {
	t.Helper()
	_, err := db.Exec(fmt.Sprintf(`INSERT INTO attribute (node_id, name, ordinal, %s) VALUES (?, ?, ?, ?)`, column), nodeID, name, ordinal, value)
	require.NoError(t, err)
}

// Count returns the result of a COUNT(*) query
func Count(t testing.TB, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

// Strings returns the single string column of a query, NULLs as ""
func Strings(t testing.TB, db *sql.DB, query string, args ...any) []string {
	t.Helper()
	rows, err := db.Query(query, args...)
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s sql.NullString
		require.NoError(t, rows.Scan(&s))
		out = append(out, s.String)
	}
	require.NoError(t, rows.Err())
	return out
}

// CountingQuerier counts the statements issued through it
type CountingQuerier struct {
	store.Querier
	Execs   atomic.Int64
	Queries atomic.Int64
}

// Counting wraps q
func Counting(q store.Querier) *CountingQuerier {
	return &CountingQuerier{Querier: q}
}

func (c *CountingQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.Execs.Add(1)
	return c.Querier.ExecContext(ctx, query, args...)
}

func (c *CountingQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.Queries.Add(1)
	return c.Querier.QueryContext(ctx, query, args...)
}

func (c *CountingQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	c.Queries.Add(1)
	return c.Querier.QueryRowContext(ctx, query, args...)
}
