package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/orm/catalog"
	"github.com/conduit-lang/contentschema/internal/orm/conflict"
	"github.com/conduit-lang/contentschema/internal/orm/location"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

// SaveAttributeType inserts or updates one attribute type, keyed by its
// object type and previous name, then brings the physical store in line.
//
// A consistency violation is returned before anything is read or written.
// Renaming onto a stored name returns a *conflict.ConflictError. A needed
// quick column change that opts does not allow returns a
// *quickcol.StructureChangeError after the metadata row was written.
// Store failures of the metadata write return a *MutationError.
func (e *Engine) SaveAttributeType(ctx context.Context, q store.Querier, a *schema.AttributeType, opts AttributeOptions) (*Result, error) {
	result := &Result{}
	err := e.saveAttributeType(ctx, q, a, opts, result)
	e.store.Metrics().Mutation("save_attribute_type", err)
	return result, err
}

func (e *Engine) saveAttributeType(ctx context.Context, q store.Querier, a *schema.AttributeType, opts AttributeOptions, result *Result) error {
	if err := validateAttribute(a); err != nil {
		return err
	}

	existing, err := e.catalog.LoadAttribute(ctx, q, a.ObjectTypeID, a.LookupName())
	switch {
	case store.IsNotFound(err):
		return e.insertAttribute(ctx, q, a, opts, result)
	case err != nil:
		return &MutationError{Op: "save", Subject: attributeSubject(a.ObjectTypeID, a.LookupName()), Err: err}
	}

	if opts.IgnoreOptimized {
		a.Optimized = existing.Optimized
		a.QuickColumnName = existing.QuickColumnName
		if err := validateAttribute(a); err != nil {
			return err
		}
	}
	return e.updateAttribute(ctx, q, a, existing, opts, result)
}

func validateAttribute(a *schema.AttributeType) error {
	if a.Name == "" {
		return &schema.ConsistencyError{Attribute: a.Name, Reason: "name is required"}
	}
	if a.ObjectTypeID <= 0 {
		return &schema.ConsistencyError{Attribute: a.Name, Reason: "object type id is required"}
	}
	a.Normalize()
	return a.CheckConsistency()
}

func (e *Engine) insertAttribute(ctx context.Context, q store.Querier, a *schema.AttributeType, opts AttributeOptions, result *Result) error {
	subject := attributeSubject(a.ObjectTypeID, a.Name)

	if a.Renamed() {
		return &MutationError{Op: "save", Subject: subject,
			Err: fmt.Errorf("previous name %s: %w", a.PreviousName, store.ErrNotFound)}
	}
	if _, err := e.catalog.LoadType(ctx, q, a.ObjectTypeID); err != nil {
		return &MutationError{Op: "save", Subject: subject, Err: err}
	}

	if opts.IgnoreOptimized {
		a.Optimized = false
		a.Normalize()
	}
	if err := e.catalog.InsertAttribute(ctx, q, a, catalog.AllColumns); err != nil {
		return &MutationError{Op: "insert", Subject: subject, Err: err}
	}
	a.PreviousName = a.Name
	result.saved(a.ObjectTypeID, a.Name, ActionInsert)

	e.store.Logger().Info("inserted attribute type",
		zap.Int("type_id", a.ObjectTypeID),
		zap.String("attribute", a.Name),
		zap.String("kind", a.Kind.String()),
		zap.Bool("optimized", a.Optimized))

	if a.Optimized && !opts.IgnoreOptimized {
		return e.syncQuickColumn(ctx, q, result, a.ObjectTypeID, a.Name, opts.ForceStructureChange, true)
	}
	return nil
}

func (e *Engine) updateAttribute(ctx context.Context, q store.Querier, a, existing *schema.AttributeType, opts AttributeOptions, result *Result) error {
	subject := attributeSubject(a.ObjectTypeID, a.LookupName())
	renamed := a.Renamed()

	if renamed {
		taken, err := e.conflicts.FindConflictingAttributes(ctx, q, a, conflict.CheckName)
		if err != nil {
			return &MutationError{Op: "save", Subject: subject, Err: err}
		}
		if len(taken) > 0 {
			return &conflict.ConflictError{Attributes: taken}
		}
	}

	// a derived quick column name follows the attribute name
	if renamed && !opts.IgnoreOptimized && a.Optimized &&
		a.QuickColumnName == existing.QuickColumnName &&
		existing.QuickColumnName == schema.DeriveQuickColumnName(existing.Name) {
		a.QuickColumnName = schema.DeriveQuickColumnName(a.Name)
	}

	if a.Equal(existing) {
		result.saved(a.ObjectTypeID, a.Name, ActionUnchanged)
		return nil
	}

	caps := catalog.Capabilities{IncludeOptimizedColumns: !opts.IgnoreOptimized}
	if err := e.catalog.UpdateAttribute(ctx, q, a, caps); err != nil {
		return &MutationError{Op: "update", Subject: subject, Err: err}
	}
	if renamed {
		if err := e.renameValues(ctx, q, a.ObjectTypeID, existing.Name, a.Name); err != nil {
			return &MutationError{Op: "rename", Subject: subject, Err: err}
		}
	}

	logger := e.store.Logger().With(zap.Int("type_id", a.ObjectTypeID), zap.String("attribute", a.Name))

	switch {
	case !existing.Multivalue && a.Multivalue:
		n, err := e.assignOrdinals(ctx, q, a.ObjectTypeID, a.Name)
		if err != nil {
			return &MutationError{Op: "update", Subject: subject, Err: err}
		}
		logger.Info("attribute became multivalue", zap.Int64("values", n))
	case existing.Multivalue && !a.Multivalue:
		// extra ordinals are kept; readers see the first one
		extra, err := e.countExtraOrdinals(ctx, q, a.ObjectTypeID, a.Name)
		if err != nil {
			e.sideEffect(result, EffectOrdinalCount, a.ObjectTypeID, a.Name, err)
		} else if extra > 0 {
			logger.Warn("attribute became single-valued with extra values kept", zap.Int("extra_values", extra))
		}
	}

	a.PreviousName = a.Name
	result.saved(a.ObjectTypeID, a.Name, ActionUpdate)
	logger.Info("updated attribute type", zap.String("previous_name", existing.Name))

	if !existing.ExcludeFromVersioning && a.ExcludeFromVersioning {
		e.resetAttributeHistory(ctx, q, a, result)
	}
	if existing.ExternalStorage != a.ExternalStorage {
		e.migrateStorage(ctx, q, a, existing, result)
	}

	if opts.IgnoreOptimized {
		return nil
	}
	columnChanged := existing.QuickColumn() != a.QuickColumn() || existing.Kind != a.Kind
	if existing.Optimized == a.Optimized && !renamed && !(a.Optimized && columnChanged) {
		return nil
	}

	// the old column is settled under the new name first, so values held
	// only there are evacuated for the attribute that owns them now
	var stale []string
	if existing.Optimized {
		stale = append(stale, existing.QuickColumn())
	}
	if err := e.syncQuickColumn(ctx, q, result, a.ObjectTypeID, a.Name, opts.ForceStructureChange, true, stale...); err != nil {
		return err
	}
	if renamed {
		var old []string
		if existing.Optimized {
			old = append(old, existing.QuickColumn())
		}
		return e.syncQuickColumn(ctx, q, result, a.ObjectTypeID, existing.Name, opts.ForceStructureChange, true, old...)
	}
	return nil
}

func (e *Engine) resetAttributeHistory(ctx context.Context, q store.Querier, a *schema.AttributeType, result *Result) {
	err := store.Isolated(ctx, q, func(q store.Querier) error {
		report, err := e.history.ResetAttribute(ctx, q, a.ObjectTypeID, a.Name)
		if err == nil {
			result.Resets = append(result.Resets, report)
		}
		return err
	})
	if err != nil {
		e.sideEffect(result, EffectVersionReset, a.ObjectTypeID, a.Name, err)
	}
}

// migrateStorage moves the values of an attribute whose storage location
// flag flipped. The metadata is kept even when values could not be moved.
func (e *Engine) migrateStorage(ctx context.Context, q store.Querier, a, existing *schema.AttributeType, result *Result) {
	attr := a.Copy()
	if !attr.Kind.SupportsExternalStorage() {
		// the values still have the stored kind
		attr.Kind = existing.Kind
	}

	var report *location.Report
	err := store.Isolated(ctx, q, func(q store.Querier) error {
		var err error
		report, err = e.location.Migrate(ctx, q, attr, a.ExternalStorage)
		return err
	})
	if err != nil {
		e.sideEffect(result, EffectStorageMigration, a.ObjectTypeID, a.Name, err)
		return
	}
	result.Migrations = append(result.Migrations, report)
	if err := report.Err(); err != nil {
		// counted per value by the migrator
		result.SideEffects = append(result.SideEffects,
			SideEffect{Effect: EffectStorageMigration, TypeID: a.ObjectTypeID, Attribute: a.Name, Err: err})
	}
}

// DeleteAttributeType deletes an attribute type and every stored value of
// it, then drops or re-synchronizes its quick column. Blobs of removed
// external values are deleted once q commits.
func (e *Engine) DeleteAttributeType(ctx context.Context, q store.Querier, a *schema.AttributeType, opts DeleteOptions) (*Result, error) {
	result := &Result{}
	err := e.deleteAttributeType(ctx, q, a.ObjectTypeID, a.LookupName(), opts, result)
	e.store.Metrics().Mutation("delete_attribute_type", err)
	return result, err
}

func (e *Engine) deleteAttributeType(ctx context.Context, q store.Querier, typeID int, name string, opts DeleteOptions, result *Result) error {
	subject := attributeSubject(typeID, name)

	existing, err := e.catalog.LoadAttribute(ctx, q, typeID, name)
	if err != nil {
		return &MutationError{Op: "delete", Subject: subject, Err: err}
	}

	paths, err := e.externalPaths(ctx, q, typeID, name)
	if err != nil {
		return &MutationError{Op: "delete", Subject: subject, Err: err}
	}
	removed, err := e.deleteValues(ctx, q, typeID, name)
	if err != nil {
		return &MutationError{Op: "delete", Subject: subject, Err: err}
	}
	if _, err := e.catalog.DeleteAttribute(ctx, q, typeID, name); err != nil {
		return &MutationError{Op: "delete", Subject: subject, Err: err}
	}
	e.scheduleBlobRemoval(q, paths)
	result.saved(typeID, name, ActionDelete)

	e.store.Logger().Info("deleted attribute type",
		zap.Int("type_id", typeID),
		zap.String("attribute", name),
		zap.Int64("values", removed),
		zap.Int("blobs", len(paths)))

	if !existing.Optimized {
		return nil
	}
	if err := e.clearQuickColumn(ctx, q, typeID, existing.QuickColumn()); err != nil {
		e.sideEffect(result, EffectQuickColumnClear, typeID, name, err)
	}
	return e.syncQuickColumn(ctx, q, result, typeID, name, opts.ForceStructureChange, false, existing.QuickColumn())
}
