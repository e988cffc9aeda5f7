package payload

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/orm/conflict"
	"github.com/conduit-lang/contentschema/internal/orm/engine"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

// ImportOptions controls Import
type ImportOptions struct {
	ForceStructureChange bool
	IgnoreOptimized      bool
	// DryRun resolves and checks the payload without writing
	DryRun bool
}

// Resolution is the planned action for one payload type
type Resolution struct {
	Type   *schema.ObjectType
	Action engine.Action
}

// ImportReport describes an import
type ImportReport struct {
	Plan    []Resolution
	Results []*engine.Result
}

// SideEffects returns the best-effort failures of every saved type
func (r *ImportReport) SideEffects() []engine.SideEffect {
	var effects []engine.SideEffect
	for _, res := range r.Results {
		effects = append(effects, res.SideEffects...)
	}
	return effects
}

// Importer saves payload types through the engine
type Importer struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewImporter creates an importer
func NewImporter(e *engine.Engine) *Importer {
	return &Importer{engine: e, logger: e.Store().Logger().Named("import")}
}

// Import resolves every payload type against the store and runs the
// conflict checks of all of them before saving any. A conflict aborts the
// import with a *conflict.ConflictError and nothing written. Run it inside a
// transaction: a failing save leaves earlier saves to the caller's rollback.
func (i *Importer) Import(ctx context.Context, q store.Querier, types []*schema.ObjectType, opts ImportOptions) (*ImportReport, error) {
	plan, err := i.Resolve(ctx, q, types)
	if err != nil {
		return nil, err
	}
	report := &ImportReport{Plan: plan}

	if err := i.check(ctx, q, plan); err != nil {
		return report, err
	}
	if opts.DryRun {
		return report, nil
	}

	for _, r := range plan {
		res, err := i.engine.SaveObjectType(ctx, q, r.Type, engine.TypeOptions{
			SaveAttributes:       true,
			ForceStructureChange: opts.ForceStructureChange,
			IgnoreOptimized:      opts.IgnoreOptimized,
		})
		report.Results = append(report.Results, res)
		if err != nil {
			return report, fmt.Errorf("import object type %s: %w", r.Type.Name, err)
		}
		i.logger.Info("imported object type",
			zap.Int("type_id", r.Type.TypeID),
			zap.String("name", r.Type.Name),
			zap.Int("saved", len(res.Saved)),
			zap.Int("side_effects", len(res.SideEffects)))
	}
	return report, nil
}

// Resolve matches payload types to stored types. A type with a previous id
// renumbers that type; a type whose id is stored, or without id but with the
// name of a stored type, updates it; anything else is new. Attributes of
// updated types are matched by name unless they carry a previous name.
func (i *Importer) Resolve(ctx context.Context, q store.Querier, types []*schema.ObjectType) ([]Resolution, error) {
	stored, err := i.engine.LoadSchema(ctx, q)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]*schema.ObjectType, len(stored))
	byName := make(map[string]*schema.ObjectType, len(stored))
	for _, t := range stored {
		byID[t.TypeID] = t
		byName[t.Name] = t
	}

	plan := make([]Resolution, 0, len(types))
	for _, in := range types {
		t := in.Copy()

		var existing *schema.ObjectType
		switch {
		case t.PreviousTypeID != 0:
			existing = byID[t.PreviousTypeID]
			if existing == nil {
				return nil, fmt.Errorf("object type %s: previous type id %d is not stored", t.Name, t.PreviousTypeID)
			}
		case t.TypeID != 0:
			existing = byID[t.TypeID]
		default:
			existing = byName[t.Name]
		}

		if existing == nil {
			t.PreviousTypeID = 0
			plan = append(plan, Resolution{Type: t, Action: engine.ActionInsert})
			continue
		}

		t.PreviousTypeID = existing.TypeID
		if t.TypeID == 0 {
			t.SetTypeID(existing.TypeID)
		}
		for _, a := range t.Attributes() {
			if a.PreviousName != "" {
				continue
			}
			if _, ok := existing.Attribute(a.Name); ok {
				a.PreviousName = a.Name
			}
		}
		plan = append(plan, Resolution{Type: t, Action: engine.ActionUpdate})
	}
	return plan, nil
}

// check runs the conflict checks of every planned type, including clashes
// between types of the payload itself
func (i *Importer) check(ctx context.Context, q store.Querier, plan []Resolution) error {
	all := &conflict.ConflictError{}
	claimed := make(map[int]*schema.ObjectType)
	type owned struct {
		attr  *schema.AttributeType
		owner *schema.ObjectType
	}
	named := make(map[string]owned)

	for _, r := range plan {
		if id := r.Type.TypeID; id != 0 {
			if other, dup := claimed[id]; dup {
				all.Types = append(all.Types, other)
			}
			claimed[id] = r.Type
		}

		if err := i.engine.Conflicts().CheckType(ctx, q, r.Type); err != nil {
			var ce *conflict.ConflictError
			if !errors.As(err, &ce) {
				return err
			}
			all.Types = append(all.Types, ce.Types...)
			all.Attributes = append(all.Attributes, ce.Attributes...)
		}

		for _, a := range r.Type.Attributes() {
			normalized := a.Copy()
			normalized.Normalize()
			other, seen := named[a.Name]
			if !seen {
				named[a.Name] = owned{attr: normalized, owner: r.Type}
				continue
			}
			if other.owner != r.Type && !normalized.SameDefinition(other.attr) {
				all.Attributes = append(all.Attributes, other.attr)
			}
		}
	}

	if all.Empty() {
		return nil
	}
	i.logger.Warn("import aborted by conflicts",
		zap.Int("types", len(all.Types)),
		zap.Int("attributes", len(all.Attributes)))
	return all
}
