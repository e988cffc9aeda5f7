package codegen

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/contentschema/internal/orm/schema"
)

// Table names of the store
const (
	ObjectTypeTable    = "object_type"
	AttributeTypeTable = "attribute_type"
	NodeTable          = "node"
	AttributeTable     = "attribute"
)

// HistorySuffix names the shadow table holding prior versions of a primary table
const HistorySuffix = "_nodeversion"

// HistoryTable returns the shadow history table of a primary table
func HistoryTable(table string) string {
	return table + HistorySuffix
}

// DDLGenerator generates the structural statements for quick columns and base tables
type DDLGenerator struct {
	dialect        Dialect
	typeMapper     *TypeMapper
	indexKeyLength int
}

// DefaultIndexKeyLength is the key prefix length used to index long text and binary columns
const DefaultIndexKeyLength = 255

// NewDDLGenerator creates a new DDL generator. A non-positive key length selects the default.
func NewDDLGenerator(dialect Dialect, indexKeyLength int) *DDLGenerator {
	if indexKeyLength <= 0 {
		indexKeyLength = DefaultIndexKeyLength
	}
	return &DDLGenerator{
		dialect:        dialect,
		typeMapper:     NewTypeMapper(dialect),
		indexKeyLength: indexKeyLength,
	}
}

// Dialect returns the generator's dialect
func (g *DDLGenerator) Dialect() Dialect {
	return g.dialect
}

// TypeMapper returns the generator's type mapper
func (g *DDLGenerator) TypeMapper() *TypeMapper {
	return g.typeMapper
}

// AddColumn generates the statement adding a nullable quick column
func (g *DDLGenerator) AddColumn(table, column string, kind schema.DataKind) (string, error) {
	columnType, err := g.typeMapper.MapKind(kind)
	if err != nil {
		return "", fmt.Errorf("column %s: %w", column, err)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s NULL",
		g.dialect.QuoteIdentifier(table), g.dialect.QuoteIdentifier(column), columnType), nil
}

// DropColumn generates the statement dropping a column
func (g *DDLGenerator) DropColumn(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
		g.dialect.QuoteIdentifier(table), g.dialect.QuoteIdentifier(column))
}

// BaseTables generates the CREATE TABLE statements of the store. History
// tables are only generated when withHistory is set.
func (g *DDLGenerator) BaseTables(withHistory bool) []string {
	stmts := append(g.MetadataTables(), g.ContentTables()...)
	if withHistory {
		stmts = append(stmts, g.HistoryTables()...)
	}
	return stmts
}

// MetadataTables generates the object type and attribute type tables
func (g *DDLGenerator) MetadataTables() []string {
	q := g.dialect.QuoteIdentifier
	short := fmt.Sprintf("VARCHAR(%d)", ShortTextLength)
	boolType := "BOOLEAN"

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  type_id INTEGER NOT NULL PRIMARY KEY,
  name %s NOT NULL,
  exclude_from_versioning %s NOT NULL DEFAULT FALSE
)`, q(ObjectTypeTable), short, boolType),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  object_type_id INTEGER NOT NULL,
  name %s NOT NULL,
  data_kind VARCHAR(32) NOT NULL,
  multivalue %s NOT NULL DEFAULT FALSE,
  optimized %s NOT NULL DEFAULT FALSE,
  quick_column_name %s NULL,
  linked_object_type_id INTEGER NULL,
  foreign_link_attribute_name %s NULL,
  foreign_link_rule %s NULL,
  exclude_from_versioning %s NOT NULL DEFAULT FALSE,
  external_storage %s NOT NULL DEFAULT FALSE,
  PRIMARY KEY (object_type_id, name)
)`, q(AttributeTypeTable), short, boolType, boolType, short, short, short, boolType, boolType),
	}
}

// ContentTables generates the instance and value tables with their indexes
func (g *DDLGenerator) ContentTables() []string {
	q := g.dialect.QuoteIdentifier
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s,\n  PRIMARY KEY (id)\n)", q(NodeTable), nodeColumns),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", q(AttributeTable), g.attributeColumns()),
		g.plainIndex(AttributeTable, "node_id", "name"),
		g.plainIndex(AttributeTable, "name"),
		g.plainIndex(NodeTable, "type_id"),
	}
}

// HistoryTables generates the shadow history tables
func (g *DDLGenerator) HistoryTables() []string {
	q := g.dialect.QuoteIdentifier
	long, _ := g.typeMapper.MapKind(schema.KindLongInteger)
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s,\n  version_time %s NOT NULL,\n  PRIMARY KEY (id, version_time)\n)",
			q(HistoryTable(NodeTable)), nodeColumns, long),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s,\n  version_time %s NOT NULL\n)",
			q(HistoryTable(AttributeTable)), g.attributeColumns(), long),
		g.plainIndex(HistoryTable(AttributeTable), "node_id", "name"),
	}
}

// DropTables generates the statements dropping tables, in the given order
func (g *DDLGenerator) DropTables(tables ...string) []string {
	stmts := make([]string, len(tables))
	for i, table := range tables {
		stmts[i] = "DROP TABLE IF EXISTS " + g.dialect.QuoteIdentifier(table)
	}
	return stmts
}

const nodeColumns = "  id VARCHAR(64) NOT NULL,\n  type_id INTEGER NOT NULL"

func (g *DDLGenerator) attributeColumns() string {
	text, _ := g.typeMapper.MapKind(schema.KindLongText)
	long, _ := g.typeMapper.MapKind(schema.KindLongInteger)
	double, _ := g.typeMapper.MapKind(schema.KindDouble)
	date, _ := g.typeMapper.MapKind(schema.KindDate)
	binary, _ := g.typeMapper.MapKind(schema.KindBinary)
	short := fmt.Sprintf("VARCHAR(%d)", ShortTextLength)

	return fmt.Sprintf(`  node_id VARCHAR(64) NOT NULL,
  name %s NOT NULL,
  ordinal INTEGER NULL,
  value_string %s NULL,
  value_text %s NULL,
  value_long %s NULL,
  value_double %s NULL,
  value_date %s NULL,
  value_binary %s NULL,
  storage_path %s NULL,
  content_hash VARCHAR(64) NULL,
  content_length %s NULL`, short, short, text, long, double, date, binary, short, long)
}

func (g *DDLGenerator) plainIndex(table string, columns ...string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = g.dialect.QuoteIdentifier(c)
	}
	name := IndexName(table, strings.Join(columns, "_"))
	if g.dialect == MySQL {
		return fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			g.dialect.QuoteIdentifier(name), g.dialect.QuoteIdentifier(table), strings.Join(quoted, ", "))
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		g.dialect.QuoteIdentifier(name), g.dialect.QuoteIdentifier(table), strings.Join(quoted, ", "))
}
