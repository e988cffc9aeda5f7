// Package engine saves and deletes object types and attribute types. Each
// call writes the metadata rows as its primary unit of work, then brings
// the physical store in line: quick columns, storage locations and version
// history. Those follow-up steps are best-effort; their failures are
// reported in the Result instead of failing the call.
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/blobstore"
	"github.com/conduit-lang/contentschema/internal/orm/catalog"
	"github.com/conduit-lang/contentschema/internal/orm/conflict"
	"github.com/conduit-lang/contentschema/internal/orm/location"
	"github.com/conduit-lang/contentschema/internal/orm/quickcol"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
	"github.com/conduit-lang/contentschema/internal/orm/versioning"
)

// TypeOptions controls SaveObjectType
type TypeOptions struct {
	// SaveAttributes also saves every attribute owned by the type
	SaveAttributes       bool
	ForceStructureChange bool
	IgnoreOptimized      bool
}

// AttributeOptions controls SaveAttributeType
type AttributeOptions struct {
	ForceStructureChange bool
	// IgnoreOptimized leaves the stored optimized flag and quick column
	// name untouched, and never synchronizes quick columns
	IgnoreOptimized bool
}

// DeleteOptions controls DeleteObjectType and DeleteAttributeType
type DeleteOptions struct {
	// DeleteDependentAttributes also deletes the object-link attributes of
	// other types that target a deleted type
	DeleteDependentAttributes bool
	ForceStructureChange      bool
}

// Engine performs schema mutations against one store
type Engine struct {
	store     *store.Store
	catalog   *catalog.Catalog
	conflicts *conflict.Detector
	quick     *quickcol.Synchronizer
	location  *location.Migrator
	history   *versioning.Resetter
	blobs     blobstore.Store

	genericAuthoritative bool
}

// Option configures an Engine
type Option func(*Engine)

// WithGenericTableAuthoritative sets whether quick column values are copied
// back into the generic attribute table before their column is dropped.
// It is on by default.
func WithGenericTableAuthoritative(on bool) Option {
	return func(e *Engine) {
		e.genericAuthoritative = on
	}
}

// New creates an engine. blobs holds the values of attributes using
// external storage.
func New(s *store.Store, blobs blobstore.Store, opts ...Option) *Engine {
	c := catalog.New(s)
	e := &Engine{
		store:                s,
		catalog:              c,
		conflicts:            conflict.New(c),
		quick:                quickcol.New(s, c),
		location:             location.New(s, blobs),
		history:              versioning.New(s),
		blobs:                blobs,
		genericAuthoritative: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the engine's store handle
func (e *Engine) Store() *store.Store {
	return e.store
}

// Catalog returns the engine's metadata catalog
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Conflicts returns the engine's conflict detector
func (e *Engine) Conflicts() *conflict.Detector {
	return e.conflicts
}

// LoadSchema reads mutable copies of every stored object type with its attributes
func (e *Engine) LoadSchema(ctx context.Context, q store.Querier) ([]*schema.ObjectType, error) {
	return e.catalog.LoadSchema(ctx, q)
}

// LoadObjectType reads a mutable copy of one object type with its attributes
func (e *Engine) LoadObjectType(ctx context.Context, q store.Querier, typeID int) (*schema.ObjectType, error) {
	t, err := e.catalog.LoadType(ctx, q, typeID)
	if err != nil {
		return nil, err
	}
	attrs, err := e.catalog.LoadAttributes(ctx, q, typeID)
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		if err := t.AddAttribute(a); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// SyncQuickColumn repairs the quick column of every attribute named name
// outside of a mutation. Stale values are evacuated according to the
// engine's generic table setting.
func (e *Engine) SyncQuickColumn(ctx context.Context, q store.Querier, name string, force bool) (*quickcol.SyncReport, error) {
	report, err := e.quick.Sync(ctx, q, name, quickcol.Options{
		ForceStructureChange: force,
		Evacuate:             e.genericAuthoritative,
	})
	if err == nil {
		err = report.Err()
	}
	e.store.Metrics().Mutation("sync_quick_column", err)
	return report, err
}

// sideEffect records a failed best-effort step
func (e *Engine) sideEffect(r *Result, effect string, typeID int, attribute string, err error) {
	e.store.Metrics().SideEffectFailed(effect)
	e.store.Logger().Warn("side effect failed",
		zap.String("effect", effect),
		zap.Int("type_id", typeID),
		zap.String("attribute", attribute),
		zap.Error(err))
	r.SideEffects = append(r.SideEffects, SideEffect{Effect: effect, TypeID: typeID, Attribute: attribute, Err: err})
}

// syncQuickColumn synchronizes the quick column of an attribute name. Failed
// statements become side effects. A forbidden structure change is returned
// when strict is set and recorded as a side effect otherwise.
func (e *Engine) syncQuickColumn(ctx context.Context, q store.Querier, r *Result, typeID int, name string,
	force, strict bool, stale ...string) error {

	report, err := e.quick.Sync(ctx, q, name, quickcol.Options{
		ForceStructureChange: force,
		Evacuate:             e.genericAuthoritative,
		StaleColumns:         stale,
	})
	if report != nil {
		r.QuickColumns = append(r.QuickColumns, report)
		for _, failure := range report.Failures() {
			// already counted and logged by the synchronizer
			r.SideEffects = append(r.SideEffects, SideEffect{Effect: EffectQuickColumn, TypeID: typeID, Attribute: name, Err: failure})
		}
	}
	if err == nil {
		return nil
	}
	if strict && quickcol.IsStructureChangeForbidden(err) {
		return err
	}
	e.sideEffect(r, EffectQuickColumn, typeID, name, err)
	return nil
}
