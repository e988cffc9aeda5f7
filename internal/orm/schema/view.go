package schema

// AttributeView is a read-only snapshot of an attribute type. It owns its copy,
// so later changes to the source are not visible through it.
type AttributeView struct {
	a AttributeType
}

func (v AttributeView) Name() string                     { return v.a.Name }
func (v AttributeView) ObjectTypeID() int                { return v.a.ObjectTypeID }
func (v AttributeView) Kind() DataKind                   { return v.a.Kind }
func (v AttributeView) Multivalue() bool                 { return v.a.Multivalue }
func (v AttributeView) Optimized() bool                  { return v.a.Optimized }
func (v AttributeView) QuickColumn() string              { return v.a.QuickColumn() }
func (v AttributeView) LinkedObjectTypeID() int          { return v.a.LinkedObjectTypeID }
func (v AttributeView) ForeignLinkAttributeName() string { return v.a.ForeignLinkAttributeName }
func (v AttributeView) ForeignLinkRule() string          { return v.a.ForeignLinkRule }
func (v AttributeView) ExcludeFromVersioning() bool      { return v.a.ExcludeFromVersioning }
func (v AttributeView) ExternalStorage() bool            { return v.a.ExternalStorage }
func (v AttributeView) Key() AttributeKey                { return v.a.Key() }

// Mutable returns a fresh mutable copy
func (v AttributeView) Mutable() *AttributeType {
	return v.a.Copy()
}

// ObjectTypeView is a read-only snapshot of an object type and its attributes
type ObjectTypeView struct {
	t *ObjectType
}

func (v ObjectTypeView) TypeID() int                 { return v.t.TypeID }
func (v ObjectTypeView) Name() string                { return v.t.Name }
func (v ObjectTypeView) ExcludeFromVersioning() bool { return v.t.ExcludeFromVersioning }

// Attribute returns a read-only view of the named attribute
func (v ObjectTypeView) Attribute(name string) (AttributeView, bool) {
	a, ok := v.t.Attribute(name)
	if !ok {
		return AttributeView{}, false
	}
	return a.ReadOnly(), true
}

// Attributes returns read-only views of all attributes sorted by name
func (v ObjectTypeView) Attributes() []AttributeView {
	attrs := v.t.Attributes()
	views := make([]AttributeView, len(attrs))
	for i, a := range attrs {
		views[i] = a.ReadOnly()
	}
	return views
}

// Mutable returns a fresh mutable deep copy
func (v ObjectTypeView) Mutable() *ObjectType {
	return v.t.Copy()
}
