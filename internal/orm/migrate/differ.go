package migrate

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/conduit-lang/contentschema/internal/orm/schema"
)

// ChangeType represents the type of schema change
type ChangeType int

const (
	ChangeAddType ChangeType = iota
	ChangeDropType
	ChangeModifyType
	ChangeAddAttribute
	ChangeDropAttribute
	ChangeModifyAttribute
)

// String returns the string representation of the change type
func (c ChangeType) String() string {
	switch c {
	case ChangeAddType:
		return "add_type"
	case ChangeDropType:
		return "drop_type"
	case ChangeModifyType:
		return "modify_type"
	case ChangeAddAttribute:
		return "add_attribute"
	case ChangeDropAttribute:
		return "drop_attribute"
	case ChangeModifyAttribute:
		return "modify_attribute"
	default:
		return "unknown"
	}
}

// SchemaChange represents a detected change between schemas
type SchemaChange struct {
	Type      ChangeType
	TypeID    int
	TypeName  string
	Attribute string
	OldValue  interface{}
	NewValue  interface{}
	Breaking  bool
	DataLoss  bool
}

// String renders the change on one line, e.g. "modify_attribute 12.title"
func (c SchemaChange) String() string {
	subject := fmt.Sprintf("%d", c.TypeID)
	if c.TypeName != "" {
		subject = fmt.Sprintf("%d (%s)", c.TypeID, c.TypeName)
	}
	if c.Attribute != "" {
		subject = fmt.Sprintf("%d.%s", c.TypeID, c.Attribute)
	}
	return c.Type.String() + " " + subject
}

// DiffOptions controls how attributes are compared
type DiffOptions struct {
	// IgnoreOptimized skips the optimized flag and the quick column name
	IgnoreOptimized bool
}

// AttributeChange pairs the two versions of a modified attribute
type AttributeChange struct {
	Original *schema.AttributeType
	Updated  *schema.AttributeType
}

// TypeDiff describes how one object type differs between two schemas
type TypeDiff struct {
	Original *schema.ObjectType
	Updated  *schema.ObjectType

	Added    []*schema.AttributeType
	Removed  []*schema.AttributeType
	Modified []AttributeChange
}

// ScalarChanged reports whether the type's own fields differ
func (d *TypeDiff) ScalarChanged() bool {
	return !d.Original.ScalarEqual(d.Updated)
}

// SchemaDiff describes the differences between two schemas. Types are
// matched by TypeID.
type SchemaDiff struct {
	Added    []*schema.ObjectType
	Removed  []*schema.ObjectType
	Modified []*TypeDiff
}

// Empty reports whether both schemas are equal
func (d *SchemaDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// DiffSchemas computes the differences between an original and an updated schema
func DiffSchemas(original, updated []*schema.ObjectType, opts DiffOptions) *SchemaDiff {
	oldTypes := indexTypes(original)
	newTypes := indexTypes(updated)
	oldIDs := sortedKeys(oldTypes)
	newIDs := sortedKeys(newTypes)

	diff := &SchemaDiff{}

	for _, id := range setDifference(newIDs, oldIDs) {
		diff.Added = append(diff.Added, newTypes[id])
	}

	for _, id := range setDifference(oldIDs, newIDs) {
		diff.Removed = append(diff.Removed, oldTypes[id])
	}

	for _, id := range setIntersection(oldIDs, newIDs) {
		if td := DiffType(oldTypes[id], newTypes[id], opts); td != nil {
			diff.Modified = append(diff.Modified, td)
		}
	}

	return diff
}

// DiffType compares two versions of an object type. It returns nil when
// nothing differs.
func DiffType(original, updated *schema.ObjectType, opts DiffOptions) *TypeDiff {
	td := &TypeDiff{Original: original, Updated: updated}

	oldAttrs := indexAttributes(original)
	newAttrs := indexAttributes(updated)
	oldKeys := sortedAttributeKeys(oldAttrs)
	newKeys := sortedAttributeKeys(newAttrs)

	for _, key := range setDifferenceFunc(newKeys, oldKeys, compareKeys) {
		td.Added = append(td.Added, newAttrs[key])
	}

	for _, key := range setDifferenceFunc(oldKeys, newKeys, compareKeys) {
		td.Removed = append(td.Removed, oldAttrs[key])
	}

	for _, key := range setIntersectionFunc(oldKeys, newKeys, compareKeys) {
		oldAttr, newAttr := oldAttrs[key], newAttrs[key]
		if !attributesEqual(oldAttr, newAttr, opts) {
			td.Modified = append(td.Modified, AttributeChange{Original: oldAttr, Updated: newAttr})
		}
	}

	if !td.ScalarChanged() && len(td.Added) == 0 && len(td.Removed) == 0 && len(td.Modified) == 0 {
		return nil
	}
	return td
}

func attributesEqual(a, b *schema.AttributeType, opts DiffOptions) bool {
	if opts.IgnoreOptimized {
		return a.EqualIgnoreOptimized(b)
	}
	return a.Equal(b)
}

// Changes flattens the diff into individual changes, types first
func (d *SchemaDiff) Changes() []SchemaChange {
	var changes []SchemaChange

	for _, t := range d.Added {
		changes = append(changes, SchemaChange{
			Type:     ChangeAddType,
			TypeID:   t.TypeID,
			TypeName: t.Name,
			NewValue: t,
		})
	}

	for _, t := range d.Removed {
		changes = append(changes, SchemaChange{
			Type:     ChangeDropType,
			TypeID:   t.TypeID,
			TypeName: t.Name,
			OldValue: t,
			Breaking: true,
			DataLoss: true,
		})
	}

	for _, td := range d.Modified {
		changes = append(changes, td.Changes()...)
	}

	return changes
}

// Changes flattens the type diff into individual changes
func (d *TypeDiff) Changes() []SchemaChange {
	var changes []SchemaChange
	id, name := d.Updated.TypeID, d.Updated.Name

	if d.ScalarChanged() {
		changes = append(changes, SchemaChange{
			Type:     ChangeModifyType,
			TypeID:   id,
			TypeName: name,
			OldValue: d.Original,
			NewValue: d.Updated,
			// excluding a type from versioning discards its history
			DataLoss: !d.Original.ExcludeFromVersioning && d.Updated.ExcludeFromVersioning,
		})
	}

	for _, a := range d.Added {
		changes = append(changes, SchemaChange{
			Type:      ChangeAddAttribute,
			TypeID:    id,
			TypeName:  name,
			Attribute: a.Name,
			NewValue:  a,
		})
	}

	for _, a := range d.Removed {
		changes = append(changes, SchemaChange{
			Type:      ChangeDropAttribute,
			TypeID:    id,
			TypeName:  name,
			Attribute: a.Name,
			OldValue:  a,
			Breaking:  true,
			DataLoss:  true,
		})
	}

	for _, m := range d.Modified {
		changes = append(changes, SchemaChange{
			Type:      ChangeModifyAttribute,
			TypeID:    id,
			TypeName:  name,
			Attribute: m.Updated.Name,
			OldValue:  m.Original,
			NewValue:  m.Updated,
			Breaking:  isBreakingAttributeChange(m.Original, m.Updated),
			DataLoss:  causesDataLoss(m.Original, m.Updated),
		})
	}

	return changes
}

// isBreakingAttributeChange reports changes readers of stored values must adapt to
func isBreakingAttributeChange(old, new *schema.AttributeType) bool {
	if old.Kind != new.Kind {
		return true
	}
	if old.Multivalue && !new.Multivalue {
		return true
	}
	if old.LinkedObjectTypeID != new.LinkedObjectTypeID {
		return true
	}
	return old.ForeignLinkAttributeName != new.ForeignLinkAttributeName
}

func causesDataLoss(old, new *schema.AttributeType) bool {
	if old.Kind != new.Kind {
		// values stay in the column of the old kind
		return true
	}
	return !old.ExcludeFromVersioning && new.ExcludeFromVersioning
}

// Summary returns a short human-readable description of the diff
func (d *SchemaDiff) Summary() string {
	if d.Empty() {
		return "no changes"
	}

	var parts []string
	if len(d.Added) > 0 {
		parts = append(parts, fmt.Sprintf("%d added", len(d.Added)))
	}
	if len(d.Removed) > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", len(d.Removed)))
	}
	if len(d.Modified) > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", len(d.Modified)))
	}
	return strings.Join(parts, ", ")
}

// GenerateMigrationName creates a descriptive name for a set of changes
func GenerateMigrationName(changes []SchemaChange) string {
	if len(changes) == 0 {
		return "no_changes"
	}

	var added, dropped, modified []string
	for _, change := range changes {
		item := fmt.Sprintf("type_%d", change.TypeID)
		if change.Attribute != "" {
			item = fmt.Sprintf("%d.%s", change.TypeID, change.Attribute)
		}
		switch change.Type {
		case ChangeAddType, ChangeAddAttribute:
			added = append(added, item)
		case ChangeDropType, ChangeDropAttribute:
			dropped = append(dropped, item)
		case ChangeModifyType, ChangeModifyAttribute:
			modified = append(modified, item)
		}
	}

	var parts []string
	for _, group := range []struct {
		verb  string
		items []string
	}{{"add", added}, {"drop", dropped}, {"modify", modified}} {
		switch {
		case len(group.items) == 0:
		case len(group.items) <= 3:
			parts = append(parts, group.verb+"_"+strings.Join(group.items, "_"))
		default:
			parts = append(parts, fmt.Sprintf("%s_%d_items", group.verb, len(group.items)))
		}
	}

	name := strings.Join(parts, "_and_")
	if len(name) > 200 {
		return fmt.Sprintf("schema_changes_%d", len(changes))
	}
	return name
}

func indexTypes(types []*schema.ObjectType) map[int]*schema.ObjectType {
	m := make(map[int]*schema.ObjectType, len(types))
	for _, t := range types {
		m[t.TypeID] = t
	}
	return m
}

func indexAttributes(t *schema.ObjectType) map[schema.AttributeKey]*schema.AttributeType {
	m := make(map[schema.AttributeKey]*schema.AttributeType, t.AttributeCount())
	for _, a := range t.Attributes() {
		m[a.Key()] = a
	}
	return m
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func sortedAttributeKeys(m map[schema.AttributeKey]*schema.AttributeType) []schema.AttributeKey {
	keys := make([]schema.AttributeKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

func compareKeys(a, b schema.AttributeKey) int {
	if c := cmp.Compare(a.ObjectTypeID, b.ObjectTypeID); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

// setDifference returns elements in a that are not in b. Both must be sorted.
func setDifference[T cmp.Ordered](a, b []T) []T {
	return setDifferenceFunc(a, b, cmp.Compare[T])
}

// setIntersection returns elements in both a and b. Both must be sorted.
func setIntersection[T cmp.Ordered](a, b []T) []T {
	return setIntersectionFunc(a, b, cmp.Compare[T])
}

func setDifferenceFunc[T any](a, b []T, compare func(T, T) int) []T {
	var result []T
	for _, x := range a {
		if _, found := slices.BinarySearchFunc(b, x, compare); !found {
			result = append(result, x)
		}
	}
	return result
}

func setIntersectionFunc[T any](a, b []T, compare func(T, T) int) []T {
	var result []T
	for _, x := range a {
		if _, found := slices.BinarySearchFunc(b, x, compare); found {
			result = append(result, x)
		}
	}
	return result
}
