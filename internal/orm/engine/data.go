package engine

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/orm/codegen"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

// withHistory returns table followed by its history table when the store
// keeps history
func (e *Engine) withHistory(ctx context.Context, q store.Querier, table string) ([]string, error) {
	history, err := e.store.HasHistory(ctx, q)
	if err != nil {
		return nil, err
	}
	if history {
		return []string{table, codegen.HistoryTable(table)}, nil
	}
	return []string{table}, nil
}

func prefixOf(typeID int) string {
	return schema.InstancePrefix(typeID) + "%"
}

// renameValues moves the stored values of an attribute to its new name
func (e *Engine) renameValues(ctx context.Context, q store.Querier, typeID int, from, to string) error {
	tables, err := e.withHistory(ctx, q, codegen.AttributeTable)
	if err != nil {
		return err
	}
	for _, table := range tables {
		_, err := e.store.Exec(ctx, q,
			fmt.Sprintf(`UPDATE %s SET name = ? WHERE name = ? AND node_id LIKE ?`, e.store.Quote(table)),
			to, from, prefixOf(typeID))
		if err != nil {
			return fmt.Errorf("rename values in %s: %w", table, err)
		}
	}
	return nil
}

// assignOrdinals gives the single-valued rows of an attribute the first
// ordinal, in the history table too. It returns the current rows changed.
func (e *Engine) assignOrdinals(ctx context.Context, q store.Querier, typeID int, name string) (int64, error) {
	tables, err := e.withHistory(ctx, q, codegen.AttributeTable)
	if err != nil {
		return 0, err
	}
	var changed int64
	for i, table := range tables {
		n, err := e.store.Exec(ctx, q,
			fmt.Sprintf(`UPDATE %s SET ordinal = 0 WHERE name = ? AND node_id LIKE ? AND ordinal IS NULL`, e.store.Quote(table)),
			name, prefixOf(typeID))
		if err != nil {
			return 0, fmt.Errorf("assign ordinals in %s: %w", table, err)
		}
		if i == 0 {
			changed = n
		}
	}
	return changed, nil
}

// countExtraOrdinals counts the values beyond the first of a multivalue attribute
func (e *Engine) countExtraOrdinals(ctx context.Context, q store.Querier, typeID int, name string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		e.store.Rebind(`SELECT COUNT(*) FROM attribute WHERE name = ? AND node_id LIKE ? AND ordinal > 0`),
		name, prefixOf(typeID)).Scan(&n)
	if err != nil {
		return 0, store.ConvertDBError(err)
	}
	return n, nil
}

// countInstances counts the instances addressed under a type's prefix
func (e *Engine) countInstances(ctx context.Context, q store.Querier, typeID int) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		e.store.Rebind(`SELECT COUNT(*) FROM node WHERE id LIKE ?`), prefixOf(typeID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count instances: %w", store.ConvertDBError(err))
	}
	return n, nil
}

// externalPaths lists the distinct blob paths referenced by the values of a
// type, restricted to one attribute when name is set
func (e *Engine) externalPaths(ctx context.Context, q store.Querier, typeID int, name string) ([]string, error) {
	tables, err := e.withHistory(ctx, q, codegen.AttributeTable)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, table := range tables {
		query := fmt.Sprintf(`SELECT DISTINCT storage_path FROM %s WHERE node_id LIKE ? AND storage_path IS NOT NULL`,
			e.store.Quote(table))
		args := []any{prefixOf(typeID)}
		if name != "" {
			query += ` AND name = ?`
			args = append(args, name)
		}
		paths, err := store.QueryStrings(ctx, q, e.store.Rebind(query), args...)
		if err != nil {
			return nil, fmt.Errorf("list external values in %s: %w", table, err)
		}
		for _, p := range paths {
			seen[p] = true
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// deleteValues deletes the values of a type, restricted to one attribute
// when name is set
func (e *Engine) deleteValues(ctx context.Context, q store.Querier, typeID int, name string) (int64, error) {
	tables, err := e.withHistory(ctx, q, codegen.AttributeTable)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, table := range tables {
		query := fmt.Sprintf(`DELETE FROM %s WHERE node_id LIKE ?`, e.store.Quote(table))
		args := []any{prefixOf(typeID)}
		if name != "" {
			query += ` AND name = ?`
			args = append(args, name)
		}
		n, err := e.store.Exec(ctx, q, query, args...)
		if err != nil {
			return total, fmt.Errorf("delete values from %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// deleteInstances deletes the instance rows of a type
func (e *Engine) deleteInstances(ctx context.Context, q store.Querier, typeID int) (int64, error) {
	tables, err := e.withHistory(ctx, q, codegen.NodeTable)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, table := range tables {
		n, err := e.store.Exec(ctx, q,
			fmt.Sprintf(`DELETE FROM %s WHERE id LIKE ?`, e.store.Quote(table)), prefixOf(typeID))
		if err != nil {
			return total, fmt.Errorf("delete instances from %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// clearQuickColumn empties a quick column for the instances of one type
func (e *Engine) clearQuickColumn(ctx context.Context, q store.Querier, typeID int, column string) error {
	exists, err := e.store.ColumnExists(ctx, q, codegen.NodeTable, column)
	if err != nil || !exists {
		return err
	}
	return store.Isolated(ctx, q, func(q store.Querier) error {
		_, err := e.store.Exec(ctx, q,
			fmt.Sprintf(`UPDATE node SET %s = NULL WHERE id LIKE ?`, e.store.Quote(column)), prefixOf(typeID))
		return err
	})
}

// scheduleBlobRemoval deletes blobs once q commits
func (e *Engine) scheduleBlobRemoval(q store.Querier, paths []string) {
	if len(paths) == 0 || e.blobs == nil {
		return
	}
	store.AfterCommit(q, func() {
		for _, p := range paths {
			if err := e.blobs.Delete(context.Background(), p); err != nil {
				e.store.Metrics().SideEffectFailed("blob_delete")
				e.store.Logger().Warn("deferred blob removal failed", zap.String("path", p), zap.Error(err))
			}
		}
	})
}

// quickColumnsOf returns the quick columns of a type's optimized attributes
// that exist in both the node table and its history table
func (e *Engine) quickColumnsOf(ctx context.Context, q store.Querier, typeID int) ([]string, error) {
	attrs, err := e.catalog.LoadAttributes(ctx, q, typeID)
	if err != nil {
		return nil, err
	}
	var columns []string
	for _, a := range attrs {
		if !a.Optimized {
			continue
		}
		col := a.QuickColumn()
		exists, err := e.store.ColumnExists(ctx, q, codegen.NodeTable, col)
		if err != nil {
			return nil, err
		}
		mirrored, err := e.store.ColumnExists(ctx, q, codegen.HistoryTable(codegen.NodeTable), col)
		if err != nil {
			return nil, err
		}
		if exists && mirrored {
			columns = append(columns, col)
		}
	}
	return columns, nil
}
