package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

// Catalog reads and writes metadata rows through a store handle
type Catalog struct {
	store *store.Store
}

// New creates a catalog over s
func New(s *store.Store) *Catalog {
	return &Catalog{store: s}
}

// Store returns the underlying store handle
func (c *Catalog) Store() *store.Store {
	return c.store
}

// InsertType inserts an object type row
func (c *Catalog) InsertType(ctx context.Context, q store.Querier, t *schema.ObjectType) error {
	_, err := c.store.Exec(ctx, q,
		`INSERT INTO object_type (type_id, name, exclude_from_versioning) VALUES (?, ?, ?)`,
		t.TypeID, t.Name, t.ExcludeFromVersioning)
	if err != nil {
		return fmt.Errorf("insert object type %d: %w", t.TypeID, err)
	}
	return nil
}

// UpdateType updates the row keyed by the type's previous id
func (c *Catalog) UpdateType(ctx context.Context, q store.Querier, t *schema.ObjectType) (int64, error) {
	n, err := c.store.Exec(ctx, q,
		`UPDATE object_type SET type_id = ?, name = ?, exclude_from_versioning = ? WHERE type_id = ?`,
		t.TypeID, t.Name, t.ExcludeFromVersioning, t.PreviousTypeID)
	if err != nil {
		return 0, fmt.Errorf("update object type %d: %w", t.PreviousTypeID, err)
	}
	return n, nil
}

// MoveAttributes rewrites the owner of every attribute row of a renumbered type
func (c *Catalog) MoveAttributes(ctx context.Context, q store.Querier, from, to int) error {
	_, err := c.store.Exec(ctx, q,
		`UPDATE attribute_type SET object_type_id = ? WHERE object_type_id = ?`, to, from)
	if err != nil {
		return fmt.Errorf("move attributes of object type %d: %w", from, err)
	}
	return nil
}

// DeleteType deletes an object type row
func (c *Catalog) DeleteType(ctx context.Context, q store.Querier, typeID int) (int64, error) {
	n, err := c.store.Exec(ctx, q, `DELETE FROM object_type WHERE type_id = ?`, typeID)
	if err != nil {
		return 0, fmt.Errorf("delete object type %d: %w", typeID, err)
	}
	return n, nil
}

// LoadType reads an object type without its attributes. A missing row
// returns an error matching store.ErrNotFound.
func (c *Catalog) LoadType(ctx context.Context, q store.Querier, typeID int) (*schema.ObjectType, error) {
	types, err := c.queryTypes(ctx, q, `SELECT type_id, name, exclude_from_versioning FROM object_type WHERE type_id = ?`, typeID)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("object type %d: %w", typeID, store.ErrNotFound)
	}
	return types[0], nil
}

// LoadTypes reads every object type without attributes, ordered by id
func (c *Catalog) LoadTypes(ctx context.Context, q store.Querier) ([]*schema.ObjectType, error) {
	return c.queryTypes(ctx, q, `SELECT type_id, name, exclude_from_versioning FROM object_type ORDER BY type_id`)
}

// MaxTypeID returns the largest stored type id, or zero for an empty store
func (c *Catalog) MaxTypeID(ctx context.Context, q store.Querier) (int, error) {
	var maxID sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(type_id) FROM object_type`).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("read max type id: %w", store.ConvertDBError(err))
	}
	return int(maxID.Int64), nil
}

func (c *Catalog) queryTypes(ctx context.Context, q store.Querier, query string, args ...any) ([]*schema.ObjectType, error) {
	rows, err := q.QueryContext(ctx, c.store.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query object types: %w", store.ConvertDBError(err))
	}
	defer rows.Close()

	var types []*schema.ObjectType
	for rows.Next() {
		var (
			id      int
			name    string
			exclude bool
		)
		if err := rows.Scan(&id, &name, &exclude); err != nil {
			return nil, fmt.Errorf("scan object type: %w", err)
		}
		t := schema.NewObjectType(id, name)
		t.PreviousTypeID = id
		t.ExcludeFromVersioning = exclude
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query object types: %w", store.ConvertDBError(err))
	}
	return types, nil
}

// InsertAttribute inserts an attribute row
func (c *Catalog) InsertAttribute(ctx context.Context, q store.Querier, a *schema.AttributeType, caps Capabilities) error {
	query, args := caps.insertAttribute(a)
	if _, err := c.store.Exec(ctx, q, query, args...); err != nil {
		return fmt.Errorf("insert attribute %s: %w", a.Name, err)
	}
	return nil
}

// UpdateAttribute updates the row keyed by the attribute's lookup name
func (c *Catalog) UpdateAttribute(ctx context.Context, q store.Querier, a *schema.AttributeType, caps Capabilities) error {
	query, args := caps.updateAttribute(a)
	if _, err := c.store.Exec(ctx, q, query, args...); err != nil {
		return fmt.Errorf("update attribute %s: %w", a.LookupName(), err)
	}
	return nil
}

// DeleteAttribute deletes one attribute row
func (c *Catalog) DeleteAttribute(ctx context.Context, q store.Querier, typeID int, name string) (int64, error) {
	n, err := c.store.Exec(ctx, q, `DELETE FROM attribute_type WHERE object_type_id = ? AND name = ?`, typeID, name)
	if err != nil {
		return 0, fmt.Errorf("delete attribute %s: %w", name, err)
	}
	return n, nil
}

// DeleteAttributesOfType deletes every attribute row of a type
func (c *Catalog) DeleteAttributesOfType(ctx context.Context, q store.Querier, typeID int) error {
	if _, err := c.store.Exec(ctx, q, `DELETE FROM attribute_type WHERE object_type_id = ?`, typeID); err != nil {
		return fmt.Errorf("delete attributes of object type %d: %w", typeID, err)
	}
	return nil
}

// LoadAttribute reads one attribute. A missing row returns an error matching
// store.ErrNotFound.
func (c *Catalog) LoadAttribute(ctx context.Context, q store.Querier, typeID int, name string) (*schema.AttributeType, error) {
	attrs, err := c.queryAttributes(ctx, q,
		`SELECT `+selectAttributeColumns+` FROM attribute_type WHERE object_type_id = ? AND name = ?`, typeID, name)
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, fmt.Errorf("attribute %s of object type %d: %w", name, typeID, store.ErrNotFound)
	}
	return attrs[0], nil
}

// LoadAttributes reads the attributes of one type ordered by name
func (c *Catalog) LoadAttributes(ctx context.Context, q store.Querier, typeID int) ([]*schema.AttributeType, error) {
	return c.queryAttributes(ctx, q,
		`SELECT `+selectAttributeColumns+` FROM attribute_type WHERE object_type_id = ? ORDER BY name`, typeID)
}

// AttributesNamed reads the attributes of every type sharing a name
func (c *Catalog) AttributesNamed(ctx context.Context, q store.Querier, name string) ([]*schema.AttributeType, error) {
	return c.queryAttributes(ctx, q,
		`SELECT `+selectAttributeColumns+` FROM attribute_type WHERE name = ? ORDER BY object_type_id`, name)
}

// AttributesLinkingTo reads the object-link attributes targeting a type
func (c *Catalog) AttributesLinkingTo(ctx context.Context, q store.Querier, typeID int) ([]*schema.AttributeType, error) {
	return c.queryAttributes(ctx, q,
		`SELECT `+selectAttributeColumns+` FROM attribute_type WHERE linked_object_type_id = ? ORDER BY object_type_id, name`, typeID)
}

// AllAttributes reads every attribute row ordered by type and name
func (c *Catalog) AllAttributes(ctx context.Context, q store.Querier) ([]*schema.AttributeType, error) {
	return c.queryAttributes(ctx, q,
		`SELECT `+selectAttributeColumns+` FROM attribute_type ORDER BY object_type_id, name`)
}

func (c *Catalog) queryAttributes(ctx context.Context, q store.Querier, query string, args ...any) ([]*schema.AttributeType, error) {
	rows, err := q.QueryContext(ctx, c.store.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", store.ConvertDBError(err))
	}
	defer rows.Close()

	var attrs []*schema.AttributeType
	for rows.Next() {
		a, err := scanAttribute(rows)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query attributes: %w", store.ConvertDBError(err))
	}
	return attrs, nil
}

func scanAttribute(rows *sql.Rows) (*schema.AttributeType, error) {
	var (
		a           schema.AttributeType
		kind        string
		quickColumn sql.NullString
		linked      sql.NullInt64
		foreignName sql.NullString
		foreignRule sql.NullString
	)
	err := rows.Scan(&a.ObjectTypeID, &a.Name, &kind, &a.Multivalue, &a.Optimized, &quickColumn,
		&linked, &foreignName, &foreignRule, &a.ExcludeFromVersioning, &a.ExternalStorage)
	if err != nil {
		return nil, fmt.Errorf("scan attribute: %w", err)
	}
	if a.Kind, err = schema.ParseDataKind(kind); err != nil {
		return nil, fmt.Errorf("attribute %s: %w", a.Name, err)
	}
	a.QuickColumnName = quickColumn.String
	a.LinkedObjectTypeID = int(linked.Int64)
	a.ForeignLinkAttributeName = foreignName.String
	a.ForeignLinkRule = foreignRule.String
	a.PreviousName = a.Name
	return &a, nil
}

// LoadSchema reads every object type with its attributes, ordered by id
func (c *Catalog) LoadSchema(ctx context.Context, q store.Querier) ([]*schema.ObjectType, error) {
	types, err := c.LoadTypes(ctx, q)
	if err != nil {
		return nil, err
	}
	attrs, err := c.AllAttributes(ctx, q)
	if err != nil {
		return nil, err
	}

	byID := make(map[int]*schema.ObjectType, len(types))
	for _, t := range types {
		byID[t.TypeID] = t
	}
	for _, a := range attrs {
		t, ok := byID[a.ObjectTypeID]
		if !ok {
			continue
		}
		if err := t.AddAttribute(a); err != nil {
			return nil, err
		}
	}
	return types, nil
}
