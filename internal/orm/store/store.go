package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/logging"
	"github.com/conduit-lang/contentschema/internal/metrics"
	"github.com/conduit-lang/contentschema/internal/orm/codegen"
)

// Store describes one relational store: its product, the DDL generator of
// its dialect, and the column cache of its tables
type Store struct {
	product string
	dialect codegen.Dialect
	ddl     *codegen.DDLGenerator
	columns *ColumnCache
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Store
type Option func(*Store)

// WithColumnCache sets the column cache
func WithColumnCache(c *ColumnCache) Option {
	return func(s *Store) { s.columns = c }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics sets the metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithIndexKeyLength sets the key prefix length of long text and binary indexes
func WithIndexKeyLength(n int) Option {
	return func(s *Store) { s.ddl = codegen.NewDDLGenerator(s.dialect, n) }
}

// New creates a store handle for the named product
func New(product string, opts ...Option) (*Store, error) {
	dialect, err := codegen.DialectForProduct(product)
	if err != nil {
		return nil, err
	}

	s := &Store{
		product: product,
		dialect: dialect,
		ddl:     codegen.NewDDLGenerator(dialect, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger)
	if s.columns == nil {
		s.columns = NewColumnCache(nil, s.logger, s.metrics)
	}
	return s, nil
}

// DetectProduct asks the database for its product name
func DetectProduct(ctx context.Context, db *sql.DB) (string, error) {
	var v string
	if err := db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&v); err == nil {
		return "SQLite " + v, nil
	}

	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&v); err != nil {
		return "", fmt.Errorf("detect database product: %w", err)
	}
	return productFromVersion(v), nil
}

// productFromVersion names the product of a version() string. PostgreSQL
// and CockroachDB lead with their name, MariaDB appends it and MySQL
// reports a bare version.
func productFromVersion(v string) string {
	lower := strings.ToLower(v)
	switch {
	case strings.HasPrefix(lower, "postgresql"), strings.HasPrefix(lower, "cockroachdb"):
		return v
	case strings.Contains(lower, "mariadb"):
		return "MariaDB " + v
	default:
		return "MySQL " + v
	}
}

// ProductName returns the name of the backing product
func (s *Store) ProductName() string {
	return s.product
}

// Dialect returns the SQL dialect of the product
func (s *Store) Dialect() codegen.Dialect {
	return s.dialect
}

// DDL returns the DDL generator for the dialect
func (s *Store) DDL() *codegen.DDLGenerator {
	return s.ddl
}

// Cache returns the column cache
func (s *Store) Cache() *ColumnCache {
	return s.columns
}

// Logger returns the store's logger
func (s *Store) Logger() *zap.Logger {
	return s.logger
}

// Metrics returns the store's metrics, which may be nil
func (s *Store) Metrics() *metrics.Metrics {
	return s.metrics
}

// Rebind rewrites ? placeholders for the dialect
func (s *Store) Rebind(query string) string {
	return s.dialect.Rebind(query)
}

// Quote quotes an identifier for the dialect
func (s *Store) Quote(identifier string) string {
	return s.dialect.QuoteIdentifier(identifier)
}

// Exec runs a statement written with ? placeholders
func (s *Store) Exec(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, s.Rebind(query), args...)
	if err != nil {
		return 0, ConvertDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// ColumnType returns the type the catalog reports for a column, and whether
// the column exists
func (s *Store) ColumnType(ctx context.Context, q Querier, table, column string) (string, bool, error) {
	key := "column:" + table + "." + column
	if v, exists, hit := s.columns.lookup(ctx, key); hit {
		return v, exists, nil
	}
	generation := s.columns.Generation()

	var (
		reported string
		err      error
	)
	switch s.dialect {
	case codegen.Postgres:
		var dataType string
		var length sql.NullInt64
		err = q.QueryRowContext(ctx,
			`SELECT data_type, character_maximum_length FROM information_schema.columns
			 WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`,
			table, column).Scan(&dataType, &length)
		reported = dataType
		if length.Valid {
			reported = fmt.Sprintf("%s(%d)", dataType, length.Int64)
		}
	case codegen.MySQL:
		err = q.QueryRowContext(ctx,
			`SELECT column_type FROM information_schema.columns
			 WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?`,
			table, column).Scan(&reported)
	default:
		err = q.QueryRowContext(ctx,
			`SELECT type FROM pragma_table_info(?) WHERE name = ?`,
			table, column).Scan(&reported)
	}

	if errors.Is(err, sql.ErrNoRows) {
		s.columns.remember(ctx, key, generation, "", false)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("inspect column %s.%s: %w", table, column, ConvertDBError(err))
	}

	s.columns.remember(ctx, key, generation, reported, true)
	return reported, true, nil
}

// ColumnExists reports whether a column exists
func (s *Store) ColumnExists(ctx context.Context, q Querier, table, column string) (bool, error) {
	_, exists, err := s.ColumnType(ctx, q, table, column)
	return exists, err
}

// TableExists reports whether a table exists
func (s *Store) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	key := "table:" + table
	if _, exists, hit := s.columns.lookup(ctx, key); hit {
		return exists, nil
	}
	generation := s.columns.Generation()

	var query string
	switch s.dialect {
	case codegen.Postgres:
		query = `SELECT table_name FROM information_schema.tables
		         WHERE table_schema = current_schema() AND table_name = $1`
	case codegen.MySQL:
		query = `SELECT table_name FROM information_schema.tables
		         WHERE table_schema = DATABASE() AND table_name = ?`
	default:
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`
	}

	var name string
	err := q.QueryRowContext(ctx, query, table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		s.columns.remember(ctx, key, generation, "", false)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inspect table %s: %w", table, ConvertDBError(err))
	}

	s.columns.remember(ctx, key, generation, name, true)
	return true, nil
}

// HasHistory reports whether the history tables are installed
func (s *Store) HasHistory(ctx context.Context, q Querier) (bool, error) {
	return s.TableExists(ctx, q, codegen.HistoryTable(codegen.AttributeTable))
}

// InvalidateColumns clears the column cache after a structural change
func (s *Store) InvalidateColumns(ctx context.Context) {
	s.columns.Invalidate(ctx)
}
