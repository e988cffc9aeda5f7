package versioning

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/contentschema/internal/orm/ormtest"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

func TestResetType(t *testing.T) {
	ctx := context.Background()
	db, s := ormtest.NewSQLite(t, true)

	_, err := db.Exec(`ALTER TABLE node ADD COLUMN quick_title VARCHAR(255) NULL`)
	require.NoError(t, err)
	_, err = db.Exec(`ALTER TABLE node_nodeversion ADD COLUMN quick_title VARCHAR(255) NULL`)
	require.NoError(t, err)

	for _, id := range []string{"4.1", "4.2", "5.1"} {
		_, err := db.Exec(`INSERT INTO node (id, type_id, quick_title) VALUES (?, 4, 'hello')`, id)
		require.NoError(t, err)
		ormtest.InsertValue(t, db, id, "title", "value_string", "hello")
		for _, vt := range []int{100, 200} {
			_, err := db.Exec(`INSERT INTO node_nodeversion (id, type_id, version_time) VALUES (?, 4, ?)`, id, vt)
			require.NoError(t, err)
			_, err = db.Exec(`INSERT INTO attribute_nodeversion (node_id, name, value_string, version_time) VALUES (?, 'title', 'old', ?)`, id, vt)
			require.NoError(t, err)
		}
	}

	report, err := New(s).ResetType(ctx, db, 4, []string{"quick_title"})
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, int64(8), report.Removed)
	assert.Equal(t, int64(4), report.Snapshots)

	// exactly one baseline snapshot per instance
	assert.Equal(t, 1, ormtest.Count(t, db, `SELECT COUNT(*) FROM node_nodeversion WHERE id = '4.1'`))
	assert.Equal(t, 1, ormtest.Count(t, db, `SELECT COUNT(*) FROM node_nodeversion WHERE id = '4.2' AND version_time = 0`))
	assert.Equal(t, []string{"hello"}, ormtest.Strings(t, db, `SELECT quick_title FROM node_nodeversion WHERE id = '4.1'`))
	assert.Equal(t, []string{"hello"}, ormtest.Strings(t, db, `SELECT value_string FROM attribute_nodeversion WHERE node_id = '4.1'`))

	// other types keep their history
	assert.Equal(t, 2, ormtest.Count(t, db, `SELECT COUNT(*) FROM node_nodeversion WHERE id = '5.1'`))
}

func TestResetAttribute(t *testing.T) {
	ctx := context.Background()
	db, s := ormtest.NewSQLite(t, true)

	ormtest.InsertValue(t, db, "4.1", "title", "value_string", "now")
	ormtest.InsertValue(t, db, "4.1", "body", "value_text", "text")
	for _, name := range []string{"title", "body"} {
		_, err := db.Exec(`INSERT INTO attribute_nodeversion (node_id, name, value_string, version_time) VALUES ('4.1', ?, 'old', 100)`, name)
		require.NoError(t, err)
	}

	report, err := New(s).ResetAttribute(ctx, db, 4, "title")
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Removed)
	assert.Equal(t, int64(1), report.Snapshots)

	assert.Equal(t, []string{"now"}, ormtest.Strings(t, db,
		`SELECT value_string FROM attribute_nodeversion WHERE node_id = '4.1' AND name = 'title' AND version_time = 0`))
	assert.Equal(t, 1, ormtest.Count(t, db, `SELECT COUNT(*) FROM attribute_nodeversion WHERE name = 'body' AND version_time = 100`))
}

func TestReset_NoHistoryTables(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := store.New("SQLite")
	require.NoError(t, err)

	mock.ExpectQuery(`sqlite_master`).
		WithArgs("attribute_nodeversion").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	report, err := New(s).ResetType(ctx, db, 4, nil)
	require.NoError(t, err)
	assert.True(t, report.Skipped)

	// served from the column cache, no further statements
	report, err = New(s).ResetAttribute(ctx, db, 4, "title")
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	require.NoError(t, mock.ExpectationsWereMet())
}
