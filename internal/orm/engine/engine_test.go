package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/contentschema/internal/blobstore"
	"github.com/conduit-lang/contentschema/internal/metrics"
	"github.com/conduit-lang/contentschema/internal/orm/conflict"
	"github.com/conduit-lang/contentschema/internal/orm/ormtest"
	"github.com/conduit-lang/contentschema/internal/orm/quickcol"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
	"github.com/conduit-lang/contentschema/internal/orm/transaction"
)

func newEngine(t *testing.T, withHistory bool, opts ...store.Option) (*sql.DB, *Engine, *blobstore.Memory) {
	t.Helper()
	db, s := ormtest.NewSQLite(t, withHistory, opts...)
	blobs := blobstore.NewMemory()
	return db, New(s, blobs), blobs
}

func attr(typeID int, name string, kind schema.DataKind) *schema.AttributeType {
	return &schema.AttributeType{ObjectTypeID: typeID, Name: name, Kind: kind}
}

func createType(t *testing.T, e *Engine, db *sql.DB, typeID int, name string, attrs ...*schema.AttributeType) *schema.ObjectType {
	t.Helper()
	ot := schema.NewObjectType(typeID, name)
	for _, a := range attrs {
		require.NoError(t, ot.AddAttribute(a))
	}
	_, err := e.SaveObjectType(context.Background(), db, ot, TypeOptions{SaveAttributes: true, ForceStructureChange: true})
	require.NoError(t, err)
	return ot
}

func loadAttribute(t *testing.T, e *Engine, q store.Querier, typeID int, name string) *schema.AttributeType {
	t.Helper()
	a, err := e.Catalog().LoadAttribute(context.Background(), q, typeID, name)
	require.NoError(t, err)
	return a
}

func hasColumn(t *testing.T, db *sql.DB, table, column string) bool {
	t.Helper()
	return ormtest.Count(t, db, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column) == 1
}

func TestSaveAttributeType_OptimizeCreatesQuickColumn(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, true)

	createType(t, e, db, 4, "article", attr(4, "title", schema.KindShortText))
	for i, title := range []string{"first", "second"} {
		id := fmt.Sprintf("4.%d", i+1)
		ormtest.InsertNode(t, db, id, 4)
		ormtest.InsertValue(t, db, id, "title", "value_string", title)
	}
	assert.False(t, hasColumn(t, db, "node", "quick_title"))

	title := loadAttribute(t, e, db, 4, "title")
	title.Optimized = true
	result, err := e.SaveAttributeType(ctx, db, title, AttributeOptions{ForceStructureChange: true})
	require.NoError(t, err)
	assert.False(t, result.Failed())
	assert.Equal(t, []Unit{{TypeID: 4, Attribute: "title", Action: ActionUpdate}}, result.Saved)
	require.Len(t, result.QuickColumns, 1)
	assert.Contains(t, result.QuickColumns[0].Created, "node.quick_title")
	assert.Equal(t, "quick_title", title.QuickColumnName)

	assert.Equal(t, []string{"first", "second"}, ormtest.Strings(t, db, `SELECT quick_title FROM node ORDER BY id`))
	assert.True(t, hasColumn(t, db, "node_nodeversion", "quick_title"))
	assert.Equal(t, 1, ormtest.Count(t, db,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_node_quick_title'`))
}

func TestSaveAttributeType_DeoptimizeEvacuatesAndDrops(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, true)

	title := attr(4, "title", schema.KindShortText)
	title.Optimized = true
	createType(t, e, db, 4, "article", title)
	require.True(t, hasColumn(t, db, "node", "quick_title"))

	_, err := db.Exec(`INSERT INTO node (id, type_id, quick_title) VALUES ('4.1', 4, 'first'), ('4.2', 4, 'quick-only')`)
	require.NoError(t, err)
	ormtest.InsertValue(t, db, "4.1", "title", "value_string", "first")

	loaded := loadAttribute(t, e, db, 4, "title")
	loaded.Optimized = false
	result, err := e.SaveAttributeType(ctx, db, loaded, AttributeOptions{ForceStructureChange: true})
	require.NoError(t, err)
	assert.False(t, result.Failed(), "%v", result.SideEffectErr())
	assert.Empty(t, loaded.QuickColumnName)

	assert.False(t, hasColumn(t, db, "node", "quick_title"))
	assert.False(t, hasColumn(t, db, "node_nodeversion", "quick_title"))
	assert.Equal(t, []string{"first", "quick-only"}, ormtest.Strings(t, db,
		`SELECT value_string FROM attribute WHERE name = 'title' ORDER BY node_id`))
}

func TestSaveAttributeType_StructureChangeForbidden(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, false)
	createType(t, e, db, 4, "article")

	title := attr(4, "title", schema.KindShortText)
	title.Optimized = true
	result, err := e.SaveAttributeType(ctx, db, title, AttributeOptions{})
	require.Error(t, err)
	assert.True(t, quickcol.IsStructureChangeForbidden(err))

	// the metadata row stays written
	assert.Equal(t, []Unit{{TypeID: 4, Attribute: "title", Action: ActionInsert}}, result.Saved)
	assert.Equal(t, 1, ormtest.Count(t, db, `SELECT COUNT(*) FROM attribute_type WHERE name = 'title'`))
	assert.False(t, hasColumn(t, db, "node", "quick_title"))
}

func TestSaveAttributeType_InconsistentWritesNothing(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m := metrics.New(nil)
	s, err := store.New("SQLite", store.WithMetrics(m))
	require.NoError(t, err)
	e := New(s, blobstore.NewMemory())

	tags := attr(4, "tags", schema.KindShortText)
	tags.Optimized = true
	tags.Multivalue = true

	result, err := e.SaveAttributeType(ctx, db, tags, AttributeOptions{ForceStructureChange: true})
	require.Error(t, err)
	assert.True(t, schema.IsInconsistent(err))
	assert.Empty(t, result.Saved)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MutationsTotal.WithLabelValues("save_attribute_type", "error")))
}

func TestSaveAttributeType_StoreFailure(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := store.New("SQLite")
	require.NoError(t, err)
	e := New(s, blobstore.NewMemory())

	boom := errors.New("connection reset")
	mock.ExpectQuery(`FROM attribute_type WHERE object_type_id = \? AND name = \?`).WillReturnError(boom)

	_, err = e.SaveAttributeType(ctx, db, attr(4, "title", schema.KindShortText), AttributeOptions{})
	require.Error(t, err)
	assert.True(t, IsMutationError(err))
	assert.ErrorIs(t, err, boom)

	var me *MutationError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "save", me.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAttributeType_ExternalToInline(t *testing.T) {
	ctx := context.Background()
	db, e, blobs := newEngine(t, false)

	body := attr(4, "body", schema.KindLongText)
	body.ExternalStorage = true
	createType(t, e, db, 4, "article", body)

	require.NoError(t, blobs.Put(ctx, "4/a", []byte("stored outside")))
	ormtest.InsertNode(t, db, "4.1", 4)
	ormtest.InsertNode(t, db, "4.2", 4)
	_, err := db.Exec(`INSERT INTO attribute (node_id, name, storage_path, content_hash, content_length)
		VALUES ('4.1', 'body', '4/a', 'x', 14), ('4.2', 'body', '4/missing', 'y', 3)`)
	require.NoError(t, err)

	var result *Result
	err = transaction.NewManager(db, nil).WithTransaction(ctx, func(tx *transaction.Transaction) error {
		a := loadAttribute(t, e, tx, 4, "body")
		a.ExternalStorage = false

		var err error
		result, err = e.SaveAttributeType(ctx, tx, a, AttributeOptions{})
		if err != nil {
			return err
		}
		assert.Contains(t, blobs.Paths(), "4/a", "removal waits for the commit")
		return nil
	})
	require.NoError(t, err)

	assert.NotContains(t, blobs.Paths(), "4/a")
	assert.Equal(t, []string{"stored outside", ""}, ormtest.Strings(t, db,
		`SELECT value_text FROM attribute WHERE name = 'body' ORDER BY node_id`))
	assert.Zero(t, ormtest.Count(t, db, `SELECT COUNT(*) FROM attribute WHERE storage_path IS NOT NULL`))

	require.Len(t, result.Migrations, 1)
	assert.Equal(t, 1, result.Migrations[0].Moved)
	assert.Equal(t, 1, result.Migrations[0].Cleared)
	require.Len(t, result.SideEffects, 1)
	assert.Equal(t, EffectStorageMigration, result.SideEffects[0].Effect)
	assert.Equal(t, []Unit{{TypeID: 4, Attribute: "body", Action: ActionUpdate}}, result.Saved)
}

func TestSaveAttributeType_Rename(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, true)

	title := attr(4, "title", schema.KindShortText)
	title.Optimized = true
	createType(t, e, db, 4, "article", title)

	_, err := db.Exec(`INSERT INTO node (id, type_id, quick_title) VALUES ('4.1', 4, 'hello')`)
	require.NoError(t, err)
	ormtest.InsertValue(t, db, "4.1", "title", "value_string", "hello")
	_, err = db.Exec(`INSERT INTO attribute_nodeversion (node_id, name, value_string, version_time) VALUES ('4.1', 'title', 'old', 100)`)
	require.NoError(t, err)

	a := loadAttribute(t, e, db, 4, "title")
	a.Name = "headline"
	result, err := e.SaveAttributeType(ctx, db, a, AttributeOptions{ForceStructureChange: true})
	require.NoError(t, err)
	assert.False(t, result.Failed(), "%v", result.SideEffectErr())

	assert.Equal(t, "headline", a.PreviousName)
	assert.Equal(t, "quick_headline", a.QuickColumnName)
	assert.Equal(t, []string{"headline"}, ormtest.Strings(t, db, `SELECT name FROM attribute_type`))
	assert.Equal(t, []string{"headline"}, ormtest.Strings(t, db, `SELECT name FROM attribute`))
	assert.Equal(t, []string{"headline"}, ormtest.Strings(t, db, `SELECT name FROM attribute_nodeversion`))

	assert.Equal(t, []string{"hello"}, ormtest.Strings(t, db, `SELECT quick_headline FROM node`))
	assert.False(t, hasColumn(t, db, "node", "quick_title"))
	assert.False(t, hasColumn(t, db, "node_nodeversion", "quick_title"))
}

func TestSaveAttributeType_RenameConflict(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, false)
	createType(t, e, db, 4, "article",
		attr(4, "title", schema.KindShortText),
		attr(4, "headline", schema.KindShortText))

	a := loadAttribute(t, e, db, 4, "title")
	a.Name = "headline"
	_, err := e.SaveAttributeType(ctx, db, a, AttributeOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, conflict.ErrConflict)

	var ce *conflict.ConflictError
	require.ErrorAs(t, err, &ce)
	require.Len(t, ce.Attributes, 1)
	assert.Equal(t, "headline", ce.Attributes[0].Name)
	assert.Equal(t, 1, ormtest.Count(t, db, `SELECT COUNT(*) FROM attribute_type WHERE name = 'title'`))
}

func TestSaveAttributeType_MultivalueTransitions(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	db, e, _ := newEngine(t, false, store.WithLogger(zap.New(core)))

	createType(t, e, db, 4, "article", attr(4, "tags", schema.KindShortText))
	ormtest.InsertValue(t, db, "4.1", "tags", "value_string", "go")

	a := loadAttribute(t, e, db, 4, "tags")
	a.Multivalue = true
	_, err := e.SaveAttributeType(ctx, db, a, AttributeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, ormtest.Count(t, db, `SELECT COUNT(*) FROM attribute WHERE name = 'tags' AND ordinal = 0`))

	ormtest.InsertOrdinalValue(t, db, "4.1", "tags", 1, "value_string", "sql")
	ormtest.InsertOrdinalValue(t, db, "4.1", "tags", 2, "value_string", "eav")

	a.Multivalue = false
	result, err := e.SaveAttributeType(ctx, db, a, AttributeOptions{})
	require.NoError(t, err)
	assert.False(t, result.Failed())

	// no compaction: every value is kept
	assert.Equal(t, 3, ormtest.Count(t, db, `SELECT COUNT(*) FROM attribute WHERE name = 'tags'`))
	entries := logs.FilterMessage("attribute became single-valued with extra values kept").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(2), entries[0].ContextMap()["extra_values"])
}

func TestSaveAttributeType_Unchanged(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, true)
	createType(t, e, db, 4, "article", attr(4, "title", schema.KindShortText))

	counting := ormtest.Counting(db)
	result, err := e.SaveAttributeType(ctx, counting, loadAttribute(t, e, db, 4, "title"), AttributeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Unit{{TypeID: 4, Attribute: "title", Action: ActionUnchanged}}, result.Saved)
	assert.Zero(t, counting.Execs.Load())
}

func TestSaveAttributeType_IgnoreOptimized(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, false)

	title := attr(4, "title", schema.KindShortText)
	title.Optimized = true
	createType(t, e, db, 4, "article", title)

	payload := attr(4, "title", schema.KindShortText)
	payload.PreviousName = "title"
	payload.ExcludeFromVersioning = true
	result, err := e.SaveAttributeType(ctx, db, payload, AttributeOptions{IgnoreOptimized: true})
	require.NoError(t, err)
	assert.Empty(t, result.QuickColumns)
	assert.True(t, payload.Optimized)

	stored := loadAttribute(t, e, db, 4, "title")
	assert.True(t, stored.Optimized)
	assert.True(t, stored.ExcludeFromVersioning)
	assert.True(t, hasColumn(t, db, "node", "quick_title"))
}

func TestSaveObjectType_ExcludeFromVersioningResetsHistory(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, true)

	ot := createType(t, e, db, 4, "article", attr(4, "title", schema.KindShortText))
	ormtest.InsertType(t, db, 5, "news")
	for _, id := range []string{"4.1", "4.2", "5.1"} {
		typeID := 4
		if id == "5.1" {
			typeID = 5
		}
		ormtest.InsertNode(t, db, id, typeID)
		ormtest.InsertValue(t, db, id, "title", "value_string", "now")
		for _, vt := range []int{100, 200} {
			_, err := db.Exec(`INSERT INTO node_nodeversion (id, type_id, version_time) VALUES (?, ?, ?)`, id, typeID, vt)
			require.NoError(t, err)
			_, err = db.Exec(`INSERT INTO attribute_nodeversion (node_id, name, value_string, version_time) VALUES (?, 'title', 'old', ?)`, id, vt)
			require.NoError(t, err)
		}
	}

	ot.ExcludeFromVersioning = true
	result, err := e.SaveObjectType(ctx, db, ot, TypeOptions{})
	require.NoError(t, err)
	assert.False(t, result.Failed(), "%v", result.SideEffectErr())
	assert.Equal(t, []Unit{{TypeID: 4, Action: ActionUpdate}}, result.Saved)
	require.Len(t, result.Resets, 1)

	assert.Equal(t, 2, ormtest.Count(t, db, `SELECT COUNT(*) FROM node_nodeversion WHERE id LIKE '4.%'`))
	assert.Equal(t, 2, ormtest.Count(t, db, `SELECT COUNT(*) FROM node_nodeversion WHERE id LIKE '4.%' AND version_time = 0`))
	assert.Equal(t, []string{"now", "now"}, ormtest.Strings(t, db,
		`SELECT value_string FROM attribute_nodeversion WHERE node_id LIKE '4.%'`))
	assert.Equal(t, 2, ormtest.Count(t, db, `SELECT COUNT(*) FROM node_nodeversion WHERE id = '5.1'`))

	// already excluded: saving again leaves history alone
	_, err = db.Exec(`INSERT INTO node_nodeversion (id, type_id, version_time) VALUES ('4.1', 4, 300)`)
	require.NoError(t, err)
	result, err = e.SaveObjectType(ctx, db, ot, TypeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Unit{{TypeID: 4, Action: ActionUnchanged}}, result.Saved)
	assert.Empty(t, result.Resets)
	assert.Equal(t, 3, ormtest.Count(t, db, `SELECT COUNT(*) FROM node_nodeversion WHERE id LIKE '4.%'`))
}

func TestSaveObjectType_AllocatesTypeID(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, false)
	ormtest.InsertType(t, db, 3, "a")
	ormtest.InsertType(t, db, 7, "b")

	ot := schema.NewObjectType(0, "page")
	require.NoError(t, ot.AddAttribute(attr(0, "title", schema.KindShortText)))

	result, err := e.SaveObjectType(ctx, db, ot, TypeOptions{SaveAttributes: true})
	require.NoError(t, err)
	assert.Equal(t, 8, ot.TypeID)
	assert.Equal(t, 8, ot.PreviousTypeID)
	a, ok := ot.Attribute("title")
	require.True(t, ok)
	assert.Equal(t, 8, a.ObjectTypeID)
	assert.Equal(t, []Unit{
		{TypeID: 8, Action: ActionInsert},
		{TypeID: 8, Attribute: "title", Action: ActionInsert},
	}, result.Saved)
}

func TestSaveObjectType_ConflictingTypeID(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, false)
	ormtest.InsertType(t, db, 3, "taken")

	_, err := e.SaveObjectType(ctx, db, schema.NewObjectType(3, "dup"), TypeOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, conflict.ErrConflict)
	assert.Equal(t, []string{"taken"}, ormtest.Strings(t, db, `SELECT name FROM object_type`))
}

func TestSaveObjectType_StopsAtFirstFailingAttribute(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, false)

	bad := attr(4, "b", schema.KindShortText)
	bad.Optimized = true
	bad.Multivalue = true

	ot := schema.NewObjectType(4, "article")
	require.NoError(t, ot.AddAttribute(attr(4, "a", schema.KindShortText)))
	require.NoError(t, ot.AddAttribute(bad))

	result, err := e.SaveObjectType(ctx, db, ot, TypeOptions{SaveAttributes: true, ForceStructureChange: true})
	require.Error(t, err)
	assert.True(t, schema.IsInconsistent(err))
	assert.Equal(t, []Unit{
		{TypeID: 4, Action: ActionInsert},
		{TypeID: 4, Attribute: "a", Action: ActionInsert},
	}, result.Saved)
	assert.Equal(t, []string{"a"}, ormtest.Strings(t, db, `SELECT name FROM attribute_type`))
}

func TestSaveObjectType_Renumber(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, false)

	ot := createType(t, e, db, 4, "article", attr(4, "title", schema.KindShortText))
	ot.SetTypeID(9)
	_, err := e.SaveObjectType(ctx, db, ot, TypeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 9, ot.PreviousTypeID)
	assert.Equal(t, []string{"9"}, ormtest.Strings(t, db, `SELECT type_id FROM object_type`))
	assert.Equal(t, 1, ormtest.Count(t, db, `SELECT COUNT(*) FROM attribute_type WHERE object_type_id = 9`))

	busy := createType(t, e, db, 5, "news")
	ormtest.InsertNode(t, db, "5.1", 5)
	busy.SetTypeID(10)
	_, err = e.SaveObjectType(ctx, db, busy, TypeOptions{})
	require.Error(t, err)
	assert.True(t, IsMutationError(err))
	assert.ErrorIs(t, err, ErrHasInstances)
	assert.Equal(t, 1, ormtest.Count(t, db, `SELECT COUNT(*) FROM object_type WHERE type_id = 5`))
}

func TestDeleteObjectType(t *testing.T) {
	ctx := context.Background()
	db, e, blobs := newEngine(t, true)

	title := attr(4, "title", schema.KindShortText)
	title.Optimized = true
	body := attr(4, "body", schema.KindLongText)
	body.ExternalStorage = true
	ot := createType(t, e, db, 4, "article", title, body)

	related := attr(5, "related", schema.KindObjectLink)
	related.LinkedObjectTypeID = 4
	createType(t, e, db, 5, "news", related, attr(5, "title", schema.KindShortText))

	ormtest.InsertNode(t, db, "4.1", 4)
	ormtest.InsertValue(t, db, "4.1", "title", "value_string", "hello")
	_, err := db.Exec(`INSERT INTO attribute (node_id, name, storage_path) VALUES ('4.1', 'body', '4/b')`)
	require.NoError(t, err)
	require.NoError(t, blobs.Put(ctx, "4/b", []byte("body")))
	_, err = db.Exec(`INSERT INTO node_nodeversion (id, type_id, version_time) VALUES ('4.1', 4, 100)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO attribute_nodeversion (node_id, name, value_string, version_time) VALUES ('4.1', 'title', 'old', 100)`)
	require.NoError(t, err)
	ormtest.InsertNode(t, db, "5.1", 5)
	ormtest.InsertValue(t, db, "5.1", "related", "value_string", "4.1")

	var result *Result
	err = transaction.NewManager(db, nil).WithTransaction(ctx, func(tx *transaction.Transaction) error {
		var err error
		result, err = e.DeleteObjectType(ctx, tx, ot, DeleteOptions{DeleteDependentAttributes: true, ForceStructureChange: true})
		return err
	})
	require.NoError(t, err)
	assert.False(t, result.Failed(), "%v", result.SideEffectErr())
	assert.Contains(t, result.Saved, Unit{TypeID: 4, Action: ActionDelete})
	assert.Contains(t, result.Saved, Unit{TypeID: 5, Attribute: "related", Action: ActionDelete})

	for _, query := range []string{
		`SELECT COUNT(*) FROM object_type WHERE type_id = 4`,
		`SELECT COUNT(*) FROM attribute_type WHERE object_type_id = 4`,
		`SELECT COUNT(*) FROM attribute_type WHERE name = 'related'`,
		`SELECT COUNT(*) FROM node WHERE id LIKE '4.%'`,
		`SELECT COUNT(*) FROM attribute WHERE node_id LIKE '4.%'`,
		`SELECT COUNT(*) FROM attribute WHERE name = 'related'`,
		`SELECT COUNT(*) FROM node_nodeversion WHERE id LIKE '4.%'`,
		`SELECT COUNT(*) FROM attribute_nodeversion WHERE node_id LIKE '4.%'`,
	} {
		assert.Zero(t, ormtest.Count(t, db, query), query)
	}
	assert.Equal(t, 1, ormtest.Count(t, db, `SELECT COUNT(*) FROM node WHERE id = '5.1'`))
	assert.Equal(t, 1, ormtest.Count(t, db, `SELECT COUNT(*) FROM attribute_type WHERE object_type_id = 5`))

	assert.False(t, hasColumn(t, db, "node", "quick_title"))
	assert.NotContains(t, blobs.Paths(), "4/b")
}

func TestDeleteAttributeType_SharedQuickColumn(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, false)

	for _, typeID := range []int{4, 5} {
		title := attr(typeID, "title", schema.KindShortText)
		title.Optimized = true
		createType(t, e, db, typeID, fmt.Sprintf("type%d", typeID), title)
	}
	_, err := db.Exec(`INSERT INTO node (id, type_id, quick_title) VALUES ('4.1', 4, 'four'), ('5.1', 5, 'five')`)
	require.NoError(t, err)
	ormtest.InsertValue(t, db, "4.1", "title", "value_string", "four")

	result, err := e.DeleteAttributeType(ctx, db, loadAttribute(t, e, db, 4, "title"), DeleteOptions{ForceStructureChange: true})
	require.NoError(t, err)
	assert.False(t, result.Failed(), "%v", result.SideEffectErr())
	assert.Equal(t, []Unit{{TypeID: 4, Attribute: "title", Action: ActionDelete}}, result.Saved)

	assert.True(t, hasColumn(t, db, "node", "quick_title"))
	assert.Equal(t, []string{"", "five"}, ormtest.Strings(t, db, `SELECT quick_title FROM node ORDER BY id`))
	assert.Zero(t, ormtest.Count(t, db, `SELECT COUNT(*) FROM attribute WHERE node_id = '4.1'`))
	assert.Equal(t, 1, ormtest.Count(t, db, `SELECT COUNT(*) FROM attribute_type WHERE name = 'title'`))
}

func TestLoadObjectType(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, false)
	createType(t, e, db, 4, "article", attr(4, "title", schema.KindShortText), attr(4, "body", schema.KindLongText))

	ot, err := e.LoadObjectType(ctx, db, 4)
	require.NoError(t, err)
	assert.Equal(t, "article", ot.Name)
	assert.Equal(t, 2, ot.AttributeCount())
	assert.False(t, ot.IsNew())

	types, err := e.LoadSchema(ctx, db)
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, 2, types[0].AttributeCount())

	_, err = e.LoadObjectType(ctx, db, 99)
	assert.True(t, store.IsNotFound(err))
}

func TestSyncQuickColumn(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, false)
	createType(t, e, db, 4, "article")
	ormtest.InsertNode(t, db, "4.1", 4)
	ormtest.InsertValue(t, db, "4.1", "title", "value_string", "first")

	title := attr(4, "title", schema.KindShortText)
	title.Optimized = true
	_, err := e.SaveAttributeType(ctx, db, title, AttributeOptions{})
	require.True(t, quickcol.IsStructureChangeForbidden(err))

	_, err = e.SyncQuickColumn(ctx, db, "title", false)
	assert.True(t, quickcol.IsStructureChangeForbidden(err))
	assert.False(t, hasColumn(t, db, "node", "quick_title"))

	report, err := e.SyncQuickColumn(ctx, db, "title", true)
	require.NoError(t, err)
	assert.Contains(t, report.Created, "node.quick_title")
	assert.Equal(t, int64(1), report.Backfilled)
	assert.Equal(t, []string{"first"}, ormtest.Strings(t, db, `SELECT quick_title FROM node`))

	report, err = e.SyncQuickColumn(ctx, db, "title", false)
	require.NoError(t, err, "an up to date column needs no structure change")
	assert.Zero(t, report.Statements)
}

func TestSaveAttributeType_RenameKeepsQuickOnlyValues(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, true)

	title := attr(4, "title", schema.KindShortText)
	title.Optimized = true
	createType(t, e, db, 4, "article", title)

	// the value lives only in the quick column
	_, err := db.Exec(`INSERT INTO node (id, type_id, quick_title) VALUES ('4.1', 4, 'quick-only')`)
	require.NoError(t, err)

	a := loadAttribute(t, e, db, 4, "title")
	a.Name = "headline"
	result, err := e.SaveAttributeType(ctx, db, a, AttributeOptions{ForceStructureChange: true})
	require.NoError(t, err)
	assert.False(t, result.Failed(), "%v", result.SideEffectErr())

	assert.False(t, hasColumn(t, db, "node", "quick_title"))
	assert.Equal(t, []string{"quick-only"}, ormtest.Strings(t, db, `SELECT quick_headline FROM node`))
	assert.Equal(t, []string{"quick-only"}, ormtest.Strings(t, db,
		`SELECT value_string FROM attribute WHERE node_id = '4.1' AND name = 'headline'`))
}

func TestSaveAttributeType_RenameLeavesSharedColumn(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, false)

	for _, typeID := range []int{4, 5} {
		title := attr(typeID, "title", schema.KindShortText)
		title.Optimized = true
		createType(t, e, db, typeID, fmt.Sprintf("type%d", typeID), title)
	}
	_, err := db.Exec(`INSERT INTO node (id, type_id, quick_title) VALUES ('4.1', 4, 'moved'), ('5.1', 5, 'stays')`)
	require.NoError(t, err)

	a := loadAttribute(t, e, db, 4, "title")
	a.Name = "headline"
	result, err := e.SaveAttributeType(ctx, db, a, AttributeOptions{ForceStructureChange: true})
	require.NoError(t, err)
	assert.False(t, result.Failed(), "%v", result.SideEffectErr())

	assert.True(t, hasColumn(t, db, "node", "quick_title"))
	assert.Equal(t, []string{"", "stays"}, ormtest.Strings(t, db, `SELECT quick_title FROM node ORDER BY id`))
	assert.Equal(t, []string{"moved", ""}, ormtest.Strings(t, db, `SELECT quick_headline FROM node ORDER BY id`))
	assert.Empty(t, ormtest.Strings(t, db, `SELECT value_string FROM attribute WHERE node_id = '5.1'`))
}

func TestSaveAttributeType_DeoptimizeOneOfSharedColumn(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, true)

	for _, typeID := range []int{4, 5} {
		title := attr(typeID, "title", schema.KindShortText)
		title.Optimized = true
		createType(t, e, db, typeID, fmt.Sprintf("type%d", typeID), title)
	}
	_, err := db.Exec(`INSERT INTO node (id, type_id, quick_title) VALUES ('4.1', 4, 'quick-only'), ('5.1', 5, 'kept')`)
	require.NoError(t, err)

	a := loadAttribute(t, e, db, 4, "title")
	a.Optimized = false
	result, err := e.SaveAttributeType(ctx, db, a, AttributeOptions{ForceStructureChange: true})
	require.NoError(t, err)
	assert.False(t, result.Failed(), "%v", result.SideEffectErr())

	assert.True(t, hasColumn(t, db, "node", "quick_title"), "type 5 still uses the column")
	assert.Equal(t, []string{"quick-only"}, ormtest.Strings(t, db,
		`SELECT value_string FROM attribute WHERE node_id = '4.1' AND name = 'title'`))
	assert.Equal(t, []string{"", "kept"}, ormtest.Strings(t, db, `SELECT quick_title FROM node ORDER BY id`))

	// the values were moved once
	report, err := e.SyncQuickColumn(ctx, db, "title", false)
	require.NoError(t, err)
	assert.Zero(t, report.Statements)
}

func TestSyncQuickColumn_RollbackForgetsColumn(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, false)
	createType(t, e, db, 4, "article")

	tx, err := transaction.NewManager(db, nil).Begin(ctx)
	require.NoError(t, err)
	title := attr(4, "title", schema.KindShortText)
	title.Optimized = true
	_, err = e.SaveAttributeType(ctx, tx, title, AttributeOptions{ForceStructureChange: true})
	require.NoError(t, err)

	// caches the column created inside the transaction
	report, err := e.SyncQuickColumn(ctx, tx, "title", false)
	require.NoError(t, err)
	assert.Zero(t, report.Statements)
	require.NoError(t, tx.Rollback())
	require.False(t, hasColumn(t, db, "node", "quick_title"))

	again := attr(4, "title", schema.KindShortText)
	again.Optimized = true
	result, err := e.SaveAttributeType(ctx, db, again, AttributeOptions{ForceStructureChange: true})
	require.NoError(t, err)
	assert.False(t, result.Failed(), "%v", result.SideEffectErr())
	assert.True(t, hasColumn(t, db, "node", "quick_title"))
}

func TestSaveAttributeType_MultivalueMirrorsHistory(t *testing.T) {
	ctx := context.Background()
	db, e, _ := newEngine(t, true)

	createType(t, e, db, 4, "article", attr(4, "tags", schema.KindShortText))
	ormtest.InsertValue(t, db, "4.1", "tags", "value_string", "go")
	_, err := db.Exec(`INSERT INTO attribute_nodeversion (node_id, name, value_string, version_time) VALUES ('4.1', 'tags', 'old', 100)`)
	require.NoError(t, err)

	a := loadAttribute(t, e, db, 4, "tags")
	a.Multivalue = true
	_, err = e.SaveAttributeType(ctx, db, a, AttributeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, ormtest.Count(t, db, `SELECT COUNT(*) FROM attribute WHERE name = 'tags' AND ordinal = 0`))
	assert.Equal(t, 1, ormtest.Count(t, db, `SELECT COUNT(*) FROM attribute_nodeversion WHERE name = 'tags' AND ordinal = 0`))
}
