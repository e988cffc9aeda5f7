package engine

import (
	"fmt"

	"github.com/zeebo/errs"

	"github.com/conduit-lang/contentschema/internal/orm/location"
	"github.com/conduit-lang/contentschema/internal/orm/quickcol"
	"github.com/conduit-lang/contentschema/internal/orm/versioning"
)

// Action is what a mutation did to one metadata row
type Action string

const (
	ActionInsert    Action = "insert"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionUnchanged Action = "unchanged"
)

// Unit is one committed metadata row. Attribute is empty for an object type.
type Unit struct {
	TypeID    int
	Attribute string
	Action    Action
}

// Side effects, as recorded in SideEffect.Effect and in metrics
const (
	EffectQuickColumn      = "quick_column"
	EffectQuickColumnClear = "quick_column_clear"
	EffectStorageMigration = "storage_migration"
	EffectVersionReset     = "version_reset"
	EffectOrdinalCount     = "ordinal_count"
)

// SideEffect is a best-effort step that failed without failing its mutation
type SideEffect struct {
	Effect    string
	TypeID    int
	Attribute string
	Err       error
}

func (s SideEffect) Error() string {
	if s.Attribute == "" {
		return fmt.Sprintf("%s of object type %d: %v", s.Effect, s.TypeID, s.Err)
	}
	return fmt.Sprintf("%s of attribute %s of object type %d: %v", s.Effect, s.Attribute, s.TypeID, s.Err)
}

func (s SideEffect) Unwrap() error {
	return s.Err
}

// Result lists what a mutation committed and which side effects failed
type Result struct {
	Saved       []Unit
	SideEffects []SideEffect

	QuickColumns []*quickcol.SyncReport
	Migrations   []*location.Report
	Resets       []*versioning.Report
}

// Failed reports whether any side effect failed
func (r *Result) Failed() bool {
	return len(r.SideEffects) > 0
}

// SideEffectErr combines the side-effect failures, or returns nil
func (r *Result) SideEffectErr() error {
	var group errs.Group
	for _, se := range r.SideEffects {
		group.Add(se)
	}
	return group.Err()
}

func (r *Result) saved(typeID int, attribute string, action Action) {
	r.Saved = append(r.Saved, Unit{TypeID: typeID, Attribute: attribute, Action: action})
}

func (r *Result) merge(other *Result) {
	if other == nil {
		return
	}
	r.Saved = append(r.Saved, other.Saved...)
	r.SideEffects = append(r.SideEffects, other.SideEffects...)
	r.QuickColumns = append(r.QuickColumns, other.QuickColumns...)
	r.Migrations = append(r.Migrations, other.Migrations...)
	r.Resets = append(r.Resets, other.Resets...)
}
