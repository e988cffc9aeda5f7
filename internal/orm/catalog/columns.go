// Package catalog reads and writes the metadata rows of object types and
// attribute types. Statements are built from a declarative column list, so
// a write that must leave the optimization columns alone simply filters
// them out.
package catalog

import (
	"database/sql"
	"strings"

	"github.com/conduit-lang/contentschema/internal/orm/schema"
)

// Capabilities selects the optional column groups a statement includes
type Capabilities struct {
	// IncludeOptimizedColumns includes the optimized flag and the quick column name
	IncludeOptimizedColumns bool
}

// AllColumns includes every column
var AllColumns = Capabilities{IncludeOptimizedColumns: true}

type attributeColumn struct {
	name      string
	optimized bool
	value     func(a *schema.AttributeType) any
}

// attributeColumns lists the writable columns of attribute_type besides its key
var attributeColumns = []attributeColumn{
	{name: "data_kind", value: func(a *schema.AttributeType) any { return a.Kind.String() }},
	{name: "multivalue", value: func(a *schema.AttributeType) any { return a.Multivalue }},
	{name: "optimized", optimized: true, value: func(a *schema.AttributeType) any { return a.Optimized }},
	{name: "quick_column_name", optimized: true, value: func(a *schema.AttributeType) any { return nullString(a.QuickColumnName) }},
	{name: "linked_object_type_id", value: func(a *schema.AttributeType) any { return nullInt(a.LinkedObjectTypeID) }},
	{name: "foreign_link_attribute_name", value: func(a *schema.AttributeType) any { return nullString(a.ForeignLinkAttributeName) }},
	{name: "foreign_link_rule", value: func(a *schema.AttributeType) any { return nullString(a.ForeignLinkRule) }},
	{name: "exclude_from_versioning", value: func(a *schema.AttributeType) any { return a.ExcludeFromVersioning }},
	{name: "external_storage", value: func(a *schema.AttributeType) any { return a.ExternalStorage }},
}

// selectAttributeColumns is the column list every attribute read scans
const selectAttributeColumns = `object_type_id, name, data_kind, multivalue, optimized, quick_column_name,
	linked_object_type_id, foreign_link_attribute_name, foreign_link_rule,
	exclude_from_versioning, external_storage`

func (c Capabilities) columns() []attributeColumn {
	cols := make([]attributeColumn, 0, len(attributeColumns))
	for _, col := range attributeColumns {
		if col.optimized && !c.IncludeOptimizedColumns {
			continue
		}
		cols = append(cols, col)
	}
	return cols
}

// insertAttribute builds the INSERT of an attribute row
func (c Capabilities) insertAttribute(a *schema.AttributeType) (string, []any) {
	cols := c.columns()
	names := []string{"object_type_id", "name"}
	args := []any{a.ObjectTypeID, a.Name}
	for _, col := range cols {
		names = append(names, col.name)
		args = append(args, col.value(a))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return "INSERT INTO attribute_type (" + strings.Join(names, ", ") + ") VALUES (" + placeholders + ")", args
}

// updateAttribute builds the UPDATE of the row keyed by the attribute's
// lookup name. The name column is rewritten too, which is how a rename lands.
func (c Capabilities) updateAttribute(a *schema.AttributeType) (string, []any) {
	cols := c.columns()
	sets := []string{"name = ?"}
	args := []any{a.Name}
	for _, col := range cols {
		sets = append(sets, col.name+" = ?")
		args = append(args, col.value(a))
	}
	args = append(args, a.ObjectTypeID, a.LookupName())
	return "UPDATE attribute_type SET " + strings.Join(sets, ", ") + " WHERE object_type_id = ? AND name = ?", args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
