package codegen

import (
	"fmt"
	"hash/fnv"

	"github.com/conduit-lang/contentschema/internal/orm/schema"
)

// maxIdentifierLength is the shortest identifier limit of the supported dialects
const maxIdentifierLength = 63

// IndexName returns the name of the index on a table column. Names that would
// exceed the identifier limit are truncated and suffixed with a hash.
func IndexName(table, column string) string {
	name := fmt.Sprintf("idx_%s_%s", table, column)
	if len(name) <= maxIdentifierLength {
		return name
	}
	h := fnv.New32a()
	h.Write([]byte(name))
	suffix := fmt.Sprintf("_%08x", h.Sum32())
	return name[:maxIdentifierLength-len(suffix)] + suffix
}

// CreateIndex generates the statement indexing a quick column. Long text and
// binary columns are indexed on a key prefix only.
func (g *DDLGenerator) CreateIndex(table, column string, kind schema.DataKind) string {
	q := g.dialect.QuoteIdentifier
	name := q(IndexName(table, column))
	key := q(column)

	if kind.IsLarge() {
		switch g.dialect {
		case MySQL:
			key = fmt.Sprintf("%s(%d)", q(column), g.indexKeyLength)
		case Postgres:
			key = fmt.Sprintf("(substr(%s, 1, %d))", q(column), g.indexKeyLength)
		}
	}

	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", name, q(table), key)
}

// DropIndex generates the statement dropping the index on a quick column
func (g *DDLGenerator) DropIndex(table, column string) string {
	q := g.dialect.QuoteIdentifier
	name := q(IndexName(table, column))
	if g.dialect == MySQL {
		return fmt.Sprintf("DROP INDEX %s ON %s", name, q(table))
	}
	return fmt.Sprintf("DROP INDEX %s", name)
}
