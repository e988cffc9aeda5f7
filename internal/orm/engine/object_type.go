package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/orm/conflict"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

// SaveObjectType inserts a new object type, allocating the next free id when
// it has none, or updates the stored type keyed by its previous id. With
// SaveAttributes every owned attribute is saved afterwards; the first
// failing attribute stops the loop and the result lists what was saved.
func (e *Engine) SaveObjectType(ctx context.Context, q store.Querier, t *schema.ObjectType, opts TypeOptions) (*Result, error) {
	result := &Result{}
	err := e.saveObjectType(ctx, q, t, opts, result)
	e.store.Metrics().Mutation("save_object_type", err)
	return result, err
}

func (e *Engine) saveObjectType(ctx context.Context, q store.Querier, t *schema.ObjectType, opts TypeOptions, result *Result) error {
	if t.Name == "" {
		return &MutationError{Op: "save", Subject: typeSubject(t.TypeID), Err: errors.New("name is required")}
	}

	var err error
	if t.IsNew() {
		err = e.insertType(ctx, q, t, result)
	} else {
		err = e.updateType(ctx, q, t, result)
	}
	if err != nil || !opts.SaveAttributes {
		return err
	}

	t.SetTypeID(t.TypeID)
	for _, a := range t.Attributes() {
		err := e.saveAttributeType(ctx, q, a, AttributeOptions{
			ForceStructureChange: opts.ForceStructureChange,
			IgnoreOptimized:      opts.IgnoreOptimized,
		}, result)
		if err != nil {
			e.store.Logger().Warn("stopped saving attributes",
				zap.Int("type_id", t.TypeID),
				zap.String("attribute", a.Name),
				zap.Int("saved", len(result.Saved)),
				zap.Error(err))
			return err
		}
	}
	return nil
}

func (e *Engine) insertType(ctx context.Context, q store.Querier, t *schema.ObjectType, result *Result) error {
	if t.TypeID == 0 {
		id, err := e.conflicts.NextTypeID(ctx, q)
		if err != nil {
			return &MutationError{Op: "insert", Subject: "object type " + t.Name, Err: err}
		}
		t.SetTypeID(id)
	} else if err := e.checkTypeID(ctx, q, t); err != nil {
		return err
	}

	if err := e.catalog.InsertType(ctx, q, t); err != nil {
		return &MutationError{Op: "insert", Subject: typeSubject(t.TypeID), Err: err}
	}
	t.PreviousTypeID = t.TypeID
	result.saved(t.TypeID, "", ActionInsert)

	e.store.Logger().Info("inserted object type", zap.Int("type_id", t.TypeID), zap.String("name", t.Name))
	return nil
}

func (e *Engine) checkTypeID(ctx context.Context, q store.Querier, t *schema.ObjectType) error {
	taken, err := e.conflicts.FindConflictingTypes(ctx, q, t)
	if err != nil {
		return &MutationError{Op: "save", Subject: typeSubject(t.TypeID), Err: err}
	}
	if len(taken) > 0 {
		return &conflict.ConflictError{Types: taken}
	}
	return nil
}

func (e *Engine) updateType(ctx context.Context, q store.Querier, t *schema.ObjectType, result *Result) error {
	subject := typeSubject(t.PreviousTypeID)

	stored, err := e.catalog.LoadType(ctx, q, t.PreviousTypeID)
	if err != nil {
		return &MutationError{Op: "update", Subject: subject, Err: err}
	}
	if t.TypeID == 0 {
		t.SetTypeID(t.PreviousTypeID)
	}

	if t.Renumbered() {
		if err := e.checkTypeID(ctx, q, t); err != nil {
			return err
		}
		// instance ids carry the type id, so only an empty type can move
		n, err := e.countInstances(ctx, q, t.PreviousTypeID)
		if err != nil {
			return &MutationError{Op: "renumber", Subject: subject, Err: err}
		}
		if n > 0 {
			return &MutationError{Op: "renumber", Subject: subject, Err: fmt.Errorf("%d instances: %w", n, ErrHasInstances)}
		}
	}

	if stored.ScalarEqual(t) {
		result.saved(t.TypeID, "", ActionUnchanged)
		return nil
	}

	if _, err := e.catalog.UpdateType(ctx, q, t); err != nil {
		return &MutationError{Op: "update", Subject: subject, Err: err}
	}
	if t.Renumbered() {
		if err := e.catalog.MoveAttributes(ctx, q, t.PreviousTypeID, t.TypeID); err != nil {
			return &MutationError{Op: "renumber", Subject: subject, Err: err}
		}
	}
	e.store.Logger().Info("updated object type",
		zap.Int("type_id", t.TypeID),
		zap.Int("previous_type_id", t.PreviousTypeID),
		zap.String("name", t.Name))

	t.PreviousTypeID = t.TypeID
	result.saved(t.TypeID, "", ActionUpdate)

	if !stored.ExcludeFromVersioning && t.ExcludeFromVersioning {
		e.resetTypeHistory(ctx, q, t.TypeID, result)
	}
	return nil
}

func (e *Engine) resetTypeHistory(ctx context.Context, q store.Querier, typeID int, result *Result) {
	err := store.Isolated(ctx, q, func(q store.Querier) error {
		history, err := e.store.HasHistory(ctx, q)
		if err != nil || !history {
			return err
		}
		columns, err := e.quickColumnsOf(ctx, q, typeID)
		if err != nil {
			return err
		}
		report, err := e.history.ResetType(ctx, q, typeID, columns)
		if err == nil {
			result.Resets = append(result.Resets, report)
		}
		return err
	})
	if err != nil {
		e.sideEffect(result, EffectVersionReset, typeID, "", err)
	}
}

// DeleteObjectType deletes an object type with its attribute types, its
// instances and their values, history included, then re-synchronizes the
// quick columns of the deleted attributes. Blobs of removed external values
// are deleted once q commits. With DeleteDependentAttributes, object-link
// attributes of other types targeting the type are deleted too.
func (e *Engine) DeleteObjectType(ctx context.Context, q store.Querier, t *schema.ObjectType, opts DeleteOptions) (*Result, error) {
	typeID := t.PreviousTypeID
	if typeID == 0 {
		typeID = t.TypeID
	}

	result := &Result{}
	err := e.deleteObjectType(ctx, q, typeID, opts, result)
	e.store.Metrics().Mutation("delete_object_type", err)
	return result, err
}

func (e *Engine) deleteObjectType(ctx context.Context, q store.Querier, typeID int, opts DeleteOptions, result *Result) error {
	subject := typeSubject(typeID)
	fail := func(err error) error {
		return &MutationError{Op: "delete", Subject: subject, Err: err}
	}

	if _, err := e.catalog.LoadType(ctx, q, typeID); err != nil {
		return fail(err)
	}
	attrs, err := e.catalog.LoadAttributes(ctx, q, typeID)
	if err != nil {
		return fail(err)
	}
	dependents, err := e.catalog.AttributesLinkingTo(ctx, q, typeID)
	if err != nil {
		return fail(err)
	}

	paths, err := e.externalPaths(ctx, q, typeID, "")
	if err != nil {
		return fail(err)
	}
	values, err := e.deleteValues(ctx, q, typeID, "")
	if err != nil {
		return fail(err)
	}
	instances, err := e.deleteInstances(ctx, q, typeID)
	if err != nil {
		return fail(err)
	}
	if err := e.catalog.DeleteAttributesOfType(ctx, q, typeID); err != nil {
		return fail(err)
	}
	if _, err := e.catalog.DeleteType(ctx, q, typeID); err != nil {
		return fail(err)
	}
	e.scheduleBlobRemoval(q, paths)

	result.saved(typeID, "", ActionDelete)
	for _, a := range attrs {
		result.saved(typeID, a.Name, ActionDelete)
	}

	e.store.Logger().Info("deleted object type",
		zap.Int("type_id", typeID),
		zap.Int("attributes", len(attrs)),
		zap.Int64("instances", instances),
		zap.Int64("values", values),
		zap.Int("blobs", len(paths)))

	for _, a := range attrs {
		var stale []string
		if a.Optimized {
			stale = append(stale, a.QuickColumn())
		}
		_ = e.syncQuickColumn(ctx, q, result, typeID, a.Name, opts.ForceStructureChange, false, stale...)
	}

	var linking []*schema.AttributeType
	for _, d := range dependents {
		if d.ObjectTypeID != typeID {
			linking = append(linking, d)
		}
	}
	if !opts.DeleteDependentAttributes {
		if len(linking) > 0 {
			e.store.Logger().Warn("object-link attributes still target the deleted type",
				zap.Int("type_id", typeID), zap.Int("attributes", len(linking)))
		}
		return nil
	}
	for _, d := range linking {
		if err := e.deleteAttributeType(ctx, q, d.ObjectTypeID, d.Name, opts, result); err != nil {
			return err
		}
	}
	return nil
}
