package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect selects the DDL syntax for the backing database product
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
	MySQL
)

// String returns the dialect name
func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	case MySQL:
		return "mysql"
	default:
		return "unknown"
	}
}

// ProductName returns the canonical product name of the dialect
func (d Dialect) ProductName() string {
	switch d {
	case Postgres:
		return "PostgreSQL"
	case SQLite:
		return "SQLite"
	case MySQL:
		return "MySQL"
	default:
		return "unknown"
	}
}

// DialectForProduct maps a product name, as reported by the store, to a dialect.
// Version suffixes such as "PostgreSQL 16.2 on x86_64" are accepted.
func DialectForProduct(product string) (Dialect, error) {
	p := strings.ToLower(strings.TrimSpace(product))
	switch {
	case strings.HasPrefix(p, "postgres"), strings.HasPrefix(p, "cockroachdb"):
		return Postgres, nil
	case strings.HasPrefix(p, "sqlite"):
		return SQLite, nil
	case strings.HasPrefix(p, "mysql"), strings.HasPrefix(p, "mariadb"):
		return MySQL, nil
	default:
		return 0, fmt.Errorf("unsupported database product: %q", product)
	}
}

// QuoteIdentifier quotes a table, column or index name for the dialect
func (d Dialect) QuoteIdentifier(identifier string) string {
	switch d {
	case Postgres:
		return pq.QuoteIdentifier(identifier)
	case MySQL:
		return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
	default:
		return QuoteIdentifier(identifier)
	}
}

// Rebind rewrites '?' placeholders into the dialect's positional form
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// QuoteIdentifier wraps a SQL identifier in double quotes and escapes internal quotes
func QuoteIdentifier(identifier string) string {
	escaped := strings.ReplaceAll(identifier, `"`, `""`)
	return fmt.Sprintf(`"%s"`, escaped)
}
