// Package versioning resets the version history of an object type or an
// attribute type to a single baseline snapshot.
package versioning

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/orm/codegen"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

// BaselineVersionTime is the version time of the synthesized snapshot
const BaselineVersionTime = 0

// attributeColumns are copied from attribute into attribute_nodeversion
var attributeColumns = []string{
	"node_id", "name", "ordinal",
	"value_string", "value_text", "value_long", "value_double", "value_date", "value_binary",
	"storage_path", "content_hash", "content_length",
}

// Report summarizes a reset
type Report struct {
	// Skipped is set when the store keeps no history
	Skipped bool
	// Removed counts the deleted history rows
	Removed int64
	// Snapshots counts the baseline rows written
	Snapshots int64
}

// Resetter purges and re-baselines history rows
type Resetter struct {
	store *store.Store
}

// New creates a resetter
func New(s *store.Store) *Resetter {
	return &Resetter{store: s}
}

// ResetType replaces the history of every instance of a type and of all its
// values with one snapshot per row at BaselineVersionTime. quickColumns
// names the quick columns to carry into the instance snapshots.
func (r *Resetter) ResetType(ctx context.Context, q store.Querier, typeID int, quickColumns []string) (*Report, error) {
	history, err := r.store.HasHistory(ctx, q)
	if err != nil {
		return nil, err
	}
	if !history {
		return &Report{Skipped: true}, nil
	}

	prefix := schema.InstancePrefix(typeID) + "%"
	nodeHistory := r.store.Quote(codegen.HistoryTable(codegen.NodeTable))
	attrHistory := r.store.Quote(codegen.HistoryTable(codegen.AttributeTable))
	report := &Report{}

	n, err := r.store.Exec(ctx, q, `DELETE FROM `+nodeHistory+` WHERE id LIKE ?`, prefix)
	if err != nil {
		return nil, fmt.Errorf("purge instance history of type %d: %w", typeID, err)
	}
	report.Removed += n

	n, err = r.store.Exec(ctx, q, `DELETE FROM `+attrHistory+` WHERE node_id LIKE ?`, prefix)
	if err != nil {
		return nil, fmt.Errorf("purge value history of type %d: %w", typeID, err)
	}
	report.Removed += n

	nodeColumns := []string{"id", "type_id"}
	for _, c := range quickColumns {
		nodeColumns = append(nodeColumns, r.store.Quote(c))
	}
	n, err = r.store.Exec(ctx, q, r.snapshot(nodeHistory, codegen.NodeTable, nodeColumns, "id LIKE ?"), prefix)
	if err != nil {
		return nil, fmt.Errorf("snapshot instances of type %d: %w", typeID, err)
	}
	report.Snapshots += n

	n, err = r.store.Exec(ctx, q, r.snapshot(attrHistory, codegen.AttributeTable, attributeColumns, "node_id LIKE ?"), prefix)
	if err != nil {
		return nil, fmt.Errorf("snapshot values of type %d: %w", typeID, err)
	}
	report.Snapshots += n

	r.store.Logger().Info("reset version history of object type",
		zap.Int("type_id", typeID),
		zap.Int64("removed", report.Removed),
		zap.Int64("snapshots", report.Snapshots))
	return report, nil
}

// ResetAttribute replaces the history of one attribute's values under a
// type with one snapshot per value at BaselineVersionTime
func (r *Resetter) ResetAttribute(ctx context.Context, q store.Querier, typeID int, name string) (*Report, error) {
	history, err := r.store.HasHistory(ctx, q)
	if err != nil {
		return nil, err
	}
	if !history {
		return &Report{Skipped: true}, nil
	}

	prefix := schema.InstancePrefix(typeID) + "%"
	attrHistory := r.store.Quote(codegen.HistoryTable(codegen.AttributeTable))
	report := &Report{}

	n, err := r.store.Exec(ctx, q, `DELETE FROM `+attrHistory+` WHERE node_id LIKE ? AND name = ?`, prefix, name)
	if err != nil {
		return nil, fmt.Errorf("purge history of attribute %s: %w", name, err)
	}
	report.Removed = n

	n, err = r.store.Exec(ctx, q,
		r.snapshot(attrHistory, codegen.AttributeTable, attributeColumns, "node_id LIKE ? AND name = ?"), prefix, name)
	if err != nil {
		return nil, fmt.Errorf("snapshot attribute %s: %w", name, err)
	}
	report.Snapshots = n

	r.store.Logger().Info("reset version history of attribute",
		zap.Int("type_id", typeID),
		zap.String("attribute", name),
		zap.Int64("removed", report.Removed),
		zap.Int64("snapshots", report.Snapshots))
	return report, nil
}

func (r *Resetter) snapshot(history, table string, columns []string, where string) string {
	list := strings.Join(columns, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s, version_time) SELECT %s, %d FROM %s WHERE %s",
		history, list, list, BaselineVersionTime, r.store.Quote(table), where)
}
