// Package conflict finds the stored definitions a proposed object type or
// attribute type would collide with. Every check is read-only.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/conduit-lang/contentschema/internal/orm/catalog"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

var (
	// ErrConflict is matched by every ConflictError
	ErrConflict = errors.New("schema conflict")

	// ErrNoTypeIDHeadroom is returned when no further type id can be allocated
	ErrNoTypeIDHeadroom = errors.New("no type id headroom")
)

// Mode selects the attribute checks to run
type Mode int

const (
	// CheckName finds stored attributes of the same type holding a new name
	CheckName Mode = 1 << iota
	// CheckDefinition finds same-named attributes of other types defined differently
	CheckDefinition

	// CheckAll runs both checks
	CheckAll = CheckName | CheckDefinition
)

// ConflictError lists the stored definitions a candidate collides with
type ConflictError struct {
	Types      []*schema.ObjectType
	Attributes []*schema.AttributeType
}

func (e *ConflictError) Error() string {
	var parts []string
	for _, t := range e.Types {
		parts = append(parts, fmt.Sprintf("object type %d (%s)", t.TypeID, t.Name))
	}
	for _, a := range e.Attributes {
		parts = append(parts, fmt.Sprintf("attribute %s of object type %d", a.Name, a.ObjectTypeID))
	}
	return "schema conflict with " + strings.Join(parts, ", ")
}

// Is matches ErrConflict
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Empty reports whether no conflict was found
func (e *ConflictError) Empty() bool {
	return len(e.Types) == 0 && len(e.Attributes) == 0
}

// Detector runs conflict checks against the catalog
type Detector struct {
	catalog *catalog.Catalog
}

// New creates a detector
func New(c *catalog.Catalog) *Detector {
	return &Detector{catalog: c}
}

// FindConflictingTypes returns the stored types holding the id a candidate
// wants. A new type without an id, or a stored type keeping its id, cannot
// conflict and issues no query.
func (d *Detector) FindConflictingTypes(ctx context.Context, q store.Querier, candidate *schema.ObjectType) ([]*schema.ObjectType, error) {
	if candidate.TypeID == 0 {
		return nil, nil
	}
	if !candidate.IsNew() && !candidate.Renumbered() {
		return nil, nil
	}

	t, err := d.catalog.LoadType(ctx, q, candidate.TypeID)
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find conflicting types: %w", err)
	}
	return []*schema.ObjectType{t}, nil
}

// FindConflictingAttributes returns the stored attributes a candidate
// collides with under the checks selected by mode
func (d *Detector) FindConflictingAttributes(ctx context.Context, q store.Querier, candidate *schema.AttributeType, mode Mode) ([]*schema.AttributeType, error) {
	var conflicts []*schema.AttributeType

	if mode&CheckName != 0 && candidate.Renamed() {
		existing, err := d.catalog.LoadAttribute(ctx, q, candidate.ObjectTypeID, candidate.Name)
		switch {
		case store.IsNotFound(err):
		case err != nil:
			return nil, fmt.Errorf("find conflicting attribute names: %w", err)
		default:
			conflicts = append(conflicts, existing)
		}
	}

	if mode&CheckDefinition != 0 {
		normalized := candidate.Copy()
		normalized.Normalize()

		named, err := d.catalog.AttributesNamed(ctx, q, candidate.Name)
		if err != nil {
			return nil, fmt.Errorf("find conflicting attribute definitions: %w", err)
		}
		for _, other := range named {
			if other.ObjectTypeID == candidate.ObjectTypeID {
				continue
			}
			if !normalized.SameDefinition(other) {
				conflicts = append(conflicts, other)
			}
		}
	}

	return conflicts, nil
}

// NextTypeID returns the successor of the largest stored type id
func (d *Detector) NextTypeID(ctx context.Context, q store.Querier) (int, error) {
	maxID, err := d.catalog.MaxTypeID(ctx, q)
	if err != nil {
		return 0, err
	}
	if maxID >= schema.MaxTypeID {
		return 0, ErrNoTypeIDHeadroom
	}
	return maxID + 1, nil
}

// CheckType runs the type check and every attribute check of a candidate
// type and its attributes, and returns a *ConflictError when any collides
func (d *Detector) CheckType(ctx context.Context, q store.Querier, candidate *schema.ObjectType) error {
	conflicts := &ConflictError{}

	types, err := d.FindConflictingTypes(ctx, q, candidate)
	if err != nil {
		return err
	}
	conflicts.Types = append(conflicts.Types, types...)

	for _, a := range candidate.Attributes() {
		attrs, err := d.FindConflictingAttributes(ctx, q, a, CheckAll)
		if err != nil {
			return err
		}
		conflicts.Attributes = append(conflicts.Attributes, attrs...)
	}

	if conflicts.Empty() {
		return nil
	}
	return conflicts
}
