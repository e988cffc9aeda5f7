// Package location moves attribute values between inline storage in the
// generic attribute table and external blob storage.
package location

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/conduit-lang/contentschema/internal/blobstore"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

// pathNamespace seeds the name-based UUIDs of external blob paths
var pathNamespace = uuid.MustParse("0b7c6e52-2f9d-4d38-9a57-3c1e8f4b6d21")

// Directions, as recorded in metrics
const (
	ToExternal = "to_external"
	ToInline   = "to_inline"
)

// DerivePath returns the external path of one attribute value. The same
// value always maps to the same path.
func DerivePath(typeID int, nodeID, name string, ordinal sql.NullInt64) string {
	pos := ""
	if ordinal.Valid {
		pos = strconv.FormatInt(ordinal.Int64, 10)
	}
	id := uuid.NewSHA1(pathNamespace, []byte(nodeID+"|"+name+"|"+pos))
	return strconv.Itoa(typeID) + "/" + id.String()
}

// Hash returns the content hash recorded for a value
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Report summarizes one migration
type Report struct {
	// Moved counts values now living at their target location
	Moved int
	// Cleared counts values whose external blob could not be read
	Cleared int
	// Failed counts values left where they were
	Failed int
	// Scheduled lists the blobs to remove once the transaction commits
	Scheduled []string

	errors errs.Group
}

// Err returns the combined error of every value that was cleared or failed
func (r *Report) Err() error {
	return r.errors.Err()
}

// Migrator moves the values of one attribute between locations
type Migrator struct {
	store *store.Store
	blobs blobstore.Store
}

// New creates a migrator
func New(s *store.Store, blobs blobstore.Store) *Migrator {
	return &Migrator{store: s, blobs: blobs}
}

type valueRow struct {
	nodeID  string
	ordinal sql.NullInt64
	value   []byte
	path    sql.NullString
}

// Migrate moves every value of attr under its type's instance prefix to
// external storage when toExternal is set, and inline otherwise. A value
// that cannot be moved is counted and logged without stopping the rest.
func (m *Migrator) Migrate(ctx context.Context, q store.Querier, attr *schema.AttributeType, toExternal bool) (*Report, error) {
	if !attr.Kind.SupportsExternalStorage() {
		return nil, fmt.Errorf("attribute %s: kind %s cannot use external storage", attr.Name, attr.Kind)
	}

	rows, err := m.loadValues(ctx, q, attr, toExternal)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, row := range rows {
		if toExternal {
			m.toExternal(ctx, q, attr, row, report)
		} else {
			m.toInline(ctx, q, attr, row, report)
		}
	}

	m.store.Logger().Info("migrated attribute storage location",
		zap.String("attribute", attr.Name),
		zap.Int("type_id", attr.ObjectTypeID),
		zap.Bool("external", toExternal),
		zap.Int("moved", report.Moved),
		zap.Int("cleared", report.Cleared),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (m *Migrator) loadValues(ctx context.Context, q store.Querier, attr *schema.AttributeType, toExternal bool) ([]valueRow, error) {
	column := m.store.Quote(attr.Kind.ValueColumn())
	filter := "storage_path IS NOT NULL"
	if toExternal {
		filter = "storage_path IS NULL AND " + column + " IS NOT NULL"
	}
	query := fmt.Sprintf(`SELECT node_id, ordinal, %s, storage_path FROM attribute
		WHERE name = ? AND node_id LIKE ? AND %s ORDER BY node_id, ordinal`, column, filter)

	rs, err := q.QueryContext(ctx, m.store.Rebind(query), attr.Name, schema.InstancePrefix(attr.ObjectTypeID)+"%")
	if err != nil {
		return nil, fmt.Errorf("load values of %s: %w", attr.Name, store.ConvertDBError(err))
	}
	defer rs.Close()

	var rows []valueRow
	for rs.Next() {
		var r valueRow
		if err := rs.Scan(&r.nodeID, &r.ordinal, &r.value, &r.path); err != nil {
			return nil, fmt.Errorf("scan value of %s: %w", attr.Name, err)
		}
		rows = append(rows, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("load values of %s: %w", attr.Name, store.ConvertDBError(err))
	}
	return rows, nil
}

func (m *Migrator) toExternal(ctx context.Context, q store.Querier, attr *schema.AttributeType, row valueRow, report *Report) {
	path := DerivePath(attr.ObjectTypeID, row.nodeID, attr.Name, row.ordinal)
	logger := m.store.Logger().With(zap.String("attribute", attr.Name), zap.String("node", row.nodeID))

	if err := m.blobs.Put(ctx, path, row.value); err != nil {
		m.fail(report, ToExternal, logger, fmt.Errorf("write blob of %s: %w", row.nodeID, err))
		return
	}

	err := m.update(ctx, q, attr, row, nil, sql.NullString{String: path, Valid: true},
		Hash(row.value), len(row.value))
	if err != nil {
		m.fail(report, ToExternal, logger, err)
		return
	}
	report.Moved++
	m.store.Metrics().ValueMigrated(ToExternal, "moved")
}

func (m *Migrator) toInline(ctx context.Context, q store.Querier, attr *schema.AttributeType, row valueRow, report *Report) {
	logger := m.store.Logger().With(zap.String("attribute", attr.Name), zap.String("node", row.nodeID))

	data, readErr := m.blobs.Get(ctx, row.path.String)
	if readErr != nil {
		// the value is cleared rather than left pointing at nothing
		if err := m.update(ctx, q, attr, row, nil, sql.NullString{}, "", -1); err != nil {
			m.fail(report, ToInline, logger, err)
			return
		}
		report.Cleared++
		report.errors.Add(fmt.Errorf("read blob %s of %s: %w", row.path.String, row.nodeID, readErr))
		m.store.Metrics().ValueMigrated(ToInline, "cleared")
		m.store.Metrics().SideEffectFailed("blob_read")
		logger.Warn("external value missing, cleared inline",
			zap.String("path", row.path.String),
			zap.Bool("not_found", errors.Is(readErr, blobstore.ErrNotFound)),
			zap.Error(readErr))
		return
	}

	if err := m.update(ctx, q, attr, row, data, sql.NullString{}, Hash(data), len(data)); err != nil {
		m.fail(report, ToInline, logger, err)
		return
	}
	report.Moved++
	m.store.Metrics().ValueMigrated(ToInline, "moved")

	path := row.path.String
	report.Scheduled = append(report.Scheduled, path)
	store.AfterCommit(q, func() {
		if err := m.blobs.Delete(context.Background(), path); err != nil {
			m.store.Metrics().SideEffectFailed("blob_delete")
			m.store.Logger().Warn("deferred blob removal failed", zap.String("path", path), zap.Error(err))
		}
	})
}

func (m *Migrator) fail(report *Report, direction string, logger *zap.Logger, err error) {
	report.Failed++
	report.errors.Add(err)
	m.store.Metrics().ValueMigrated(direction, "failed")
	m.store.Metrics().SideEffectFailed("storage_migration")
	logger.Warn("value storage migration failed", zap.Error(err))
}

// update rewrites one value row. A nil data clears the inline payload; a
// negative length clears the integrity columns.
func (m *Migrator) update(ctx context.Context, q store.Querier, attr *schema.AttributeType, row valueRow,
	data []byte, path sql.NullString, hash string, length int) error {

	var value any
	if data != nil {
		if attr.Kind == schema.KindLongText {
			value = string(data)
		} else {
			value = data
		}
	}

	var hashArg, lengthArg any
	if length >= 0 {
		hashArg, lengthArg = hash, length
	}

	where := "node_id = ? AND name = ? AND ordinal IS NULL"
	args := []any{value, path, hashArg, lengthArg, row.nodeID, attr.Name}
	if row.ordinal.Valid {
		where = "node_id = ? AND name = ? AND ordinal = ?"
		args = append(args, row.ordinal.Int64)
	}

	query := fmt.Sprintf(`UPDATE attribute SET %s = ?, storage_path = ?, content_hash = ?, content_length = ? WHERE %s`,
		m.store.Quote(attr.Kind.ValueColumn()), where)
	if _, err := m.store.Exec(ctx, q, query, args...); err != nil {
		return fmt.Errorf("update value of %s: %w", row.nodeID, err)
	}
	return nil
}
