package schema

import "strings"

// QuickColumnPrefix prefixes every derived quick column name
const QuickColumnPrefix = "quick_"

// AttributeKey identifies an attribute type within the whole schema
type AttributeKey struct {
	ObjectTypeID int
	Name         string
}

// AttributeType describes one field of an object type
type AttributeType struct {
	Name         string
	ObjectTypeID int
	Kind         DataKind

	Multivalue bool
	Optimized  bool
	// QuickColumnName overrides the derived quick column name. Normalize fills
	// it for optimized attributes and clears it otherwise.
	QuickColumnName string

	// Object-link kind only
	LinkedObjectTypeID int

	// Foreign-link kind only
	ForeignLinkAttributeName string
	ForeignLinkRule          string

	ExcludeFromVersioning bool
	// ExternalStorage keeps the value outside the generic attribute table.
	// Only long text and binary kinds support it.
	ExternalStorage bool

	// PreviousName is the name the attribute had when it was loaded. Updates
	// are keyed by it, so a rename is detected by comparing it to Name.
	PreviousName string
}

// DeriveQuickColumnName returns the default quick column name for an attribute name
func DeriveQuickColumnName(name string) string {
	return QuickColumnPrefix + strings.ReplaceAll(name, ".", "_")
}

// Key returns the identity of the attribute type
func (a *AttributeType) Key() AttributeKey {
	return AttributeKey{ObjectTypeID: a.ObjectTypeID, Name: a.Name}
}

// QuickColumn returns the effective quick column name, derived from the name
// unless explicitly overridden
func (a *AttributeType) QuickColumn() string {
	if a.QuickColumnName != "" {
		return a.QuickColumnName
	}
	return DeriveQuickColumnName(a.Name)
}

// LookupName returns the name an existing stored row is keyed by
func (a *AttributeType) LookupName() string {
	if a.PreviousName != "" {
		return a.PreviousName
	}
	return a.Name
}

// Renamed reports whether the name changed since the attribute was loaded
func (a *AttributeType) Renamed() bool {
	return a.PreviousName != "" && a.PreviousName != a.Name
}

// Normalize zeroes every field that does not apply to the current kind.
// It is idempotent.
func (a *AttributeType) Normalize() {
	if a.Kind != KindObjectLink {
		a.LinkedObjectTypeID = 0
	}
	if a.Kind != KindForeignLink {
		a.ForeignLinkAttributeName = ""
		a.ForeignLinkRule = ""
	} else {
		a.Multivalue = true
	}
	if !a.Kind.SupportsExternalStorage() {
		a.ExternalStorage = false
	}
	if a.Optimized {
		if a.QuickColumnName == "" {
			a.QuickColumnName = DeriveQuickColumnName(a.Name)
		}
	} else {
		a.QuickColumnName = ""
	}
}

// CheckConsistency fails when the attribute combines mutually exclusive flags
func (a *AttributeType) CheckConsistency() error {
	if a.Optimized && a.Multivalue {
		return &ConsistencyError{Attribute: a.Name, Reason: "an optimized attribute cannot be multivalue"}
	}
	if a.Optimized && a.ExternalStorage {
		return &ConsistencyError{Attribute: a.Name, Reason: "an optimized attribute cannot use external storage"}
	}
	return nil
}

// Copy returns a mutable deep copy
func (a *AttributeType) Copy() *AttributeType {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// ReadOnly returns an immutable snapshot of the attribute
func (a *AttributeType) ReadOnly() AttributeView {
	return AttributeView{a: *a}
}

// Equal compares every externally visible field
func (a *AttributeType) Equal(other *AttributeType) bool {
	return a.equal(other, false)
}

// EqualIgnoreOptimized compares every externally visible field except the
// optimized flag and the quick column name
func (a *AttributeType) EqualIgnoreOptimized(other *AttributeType) bool {
	return a.equal(other, true)
}

func (a *AttributeType) equal(other *AttributeType, ignoreOptimized bool) bool {
	if a == nil || other == nil {
		return a == other
	}
	if a.Name != other.Name || a.ObjectTypeID != other.ObjectTypeID || a.Kind != other.Kind {
		return false
	}
	if a.Multivalue != other.Multivalue {
		return false
	}
	if !ignoreOptimized {
		if a.Optimized != other.Optimized || a.QuickColumnName != other.QuickColumnName {
			return false
		}
	}
	if a.LinkedObjectTypeID != other.LinkedObjectTypeID {
		return false
	}
	if a.ForeignLinkAttributeName != other.ForeignLinkAttributeName || a.ForeignLinkRule != other.ForeignLinkRule {
		return false
	}
	return a.ExcludeFromVersioning == other.ExcludeFromVersioning &&
		a.ExternalStorage == other.ExternalStorage
}

// SameDefinition reports whether two same-named attributes can share one quick
// column and one meaning across object types
func (a *AttributeType) SameDefinition(other *AttributeType) bool {
	return a.Kind == other.Kind &&
		a.Optimized == other.Optimized &&
		a.QuickColumnName == other.QuickColumnName &&
		a.Multivalue == other.Multivalue &&
		a.LinkedObjectTypeID == other.LinkedObjectTypeID &&
		a.ForeignLinkAttributeName == other.ForeignLinkAttributeName &&
		a.ForeignLinkRule == other.ForeignLinkRule
}
