package schema

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// MaxTypeID is the largest type id the store can allocate
const MaxTypeID = math.MaxInt32

// ObjectType describes a content type and owns its attribute types
type ObjectType struct {
	// TypeID is positive; zero means "not specified yet"
	TypeID int
	// PreviousTypeID is zero for a type that was never stored. Otherwise it is
	// the id the type was loaded with, so a renumbered type keeps its key.
	PreviousTypeID        int
	Name                  string
	ExcludeFromVersioning bool

	attributes map[string]*AttributeType
}

// NewObjectType creates a new, never stored object type
func NewObjectType(typeID int, name string) *ObjectType {
	return &ObjectType{
		TypeID:     typeID,
		Name:       name,
		attributes: make(map[string]*AttributeType),
	}
}

// IsNew reports whether the type has never been stored
func (t *ObjectType) IsNew() bool {
	return t.PreviousTypeID == 0
}

// Renumbered reports whether an existing type is being moved to another id
func (t *ObjectType) Renumbered() bool {
	return !t.IsNew() && t.TypeID != 0 && t.TypeID != t.PreviousTypeID
}

// InstancePrefix returns the id prefix addressing the instances of the type
func InstancePrefix(typeID int) string {
	return strconv.Itoa(typeID) + "."
}

// AddAttribute adds or replaces an attribute. The attribute must belong to this type.
func (t *ObjectType) AddAttribute(a *AttributeType) error {
	if a == nil {
		return fmt.Errorf("attribute cannot be nil")
	}
	if a.ObjectTypeID != t.TypeID {
		return fmt.Errorf("attribute %s belongs to object type %d, not %d", a.Name, a.ObjectTypeID, t.TypeID)
	}
	if t.attributes == nil {
		t.attributes = make(map[string]*AttributeType)
	}
	t.attributes[a.Name] = a
	return nil
}

// RemoveAttribute removes the attribute with the given name
func (t *ObjectType) RemoveAttribute(name string) {
	delete(t.attributes, name)
}

// Attribute returns the attribute with the given name
func (t *ObjectType) Attribute(name string) (*AttributeType, bool) {
	a, ok := t.attributes[name]
	return a, ok
}

// Attributes returns the attributes sorted by name
func (t *ObjectType) Attributes() []*AttributeType {
	attrs := make([]*AttributeType, 0, len(t.attributes))
	for _, a := range t.attributes {
		attrs = append(attrs, a)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].Name < attrs[j].Name
	})
	return attrs
}

// AttributeCount returns the number of owned attributes
func (t *ObjectType) AttributeCount() int {
	return len(t.attributes)
}

// SetTypeID moves the type and every owned attribute to a new id
func (t *ObjectType) SetTypeID(id int) {
	t.TypeID = id
	for _, a := range t.attributes {
		a.ObjectTypeID = id
	}
}

// Copy returns a mutable deep copy, including the attributes
func (t *ObjectType) Copy() *ObjectType {
	if t == nil {
		return nil
	}
	c := *t
	c.attributes = make(map[string]*AttributeType, len(t.attributes))
	for name, a := range t.attributes {
		c.attributes[name] = a.Copy()
	}
	return &c
}

// ReadOnly returns an immutable snapshot of the type and its attributes
func (t *ObjectType) ReadOnly() ObjectTypeView {
	return ObjectTypeView{t: t.Copy()}
}

// SameIdentity reports whether both values describe the same stored type
func (t *ObjectType) SameIdentity(other *ObjectType) bool {
	return t.TypeID == other.TypeID
}

// ScalarEqual compares the scalar fields of two types, ignoring attributes
func (t *ObjectType) ScalarEqual(other *ObjectType) bool {
	return t.TypeID == other.TypeID &&
		t.Name == other.Name &&
		t.ExcludeFromVersioning == other.ExcludeFromVersioning
}
