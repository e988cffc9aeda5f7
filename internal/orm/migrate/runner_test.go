package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/contentschema/internal/orm/codegen"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

func TestRunner_MigrateUp_BaseMigrations(t *testing.T) {
	ctx := context.Background()
	db, s := setupTestDB(t)
	runner := NewRunner(db, s)
	require.NoError(t, runner.Initialize(ctx))

	generation := s.Cache().Generation()
	n, err := runner.MigrateUp(ctx, BaseMigrations(codegen.SQLite, true))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Greater(t, s.Cache().Generation(), generation, "column cache must be invalidated")

	for _, table := range []string{"object_type", "attribute_type", "node", "attribute", "node_nodeversion", "attribute_nodeversion"} {
		assert.True(t, tableExists(t, db, s, table), table)
	}

	hasHistory, err := s.HasHistory(ctx, db)
	require.NoError(t, err)
	assert.True(t, hasHistory)

	n, err = runner.MigrateUp(ctx, BaseMigrations(codegen.SQLite, true))
	require.NoError(t, err)
	assert.Zero(t, n, "second run must apply nothing")
}

func TestRunner_MigrateUp_WithoutHistory(t *testing.T) {
	ctx := context.Background()
	db, s := setupTestDB(t)
	runner := NewRunner(db, s)
	require.NoError(t, runner.Initialize(ctx))

	n, err := runner.MigrateUp(ctx, BaseMigrations(codegen.SQLite, false))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hasHistory, err := s.HasHistory(ctx, db)
	require.NoError(t, err)
	assert.False(t, hasHistory)

	// history can be installed later
	n, err = runner.MigrateUp(ctx, BaseMigrations(codegen.SQLite, true))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunner_MigrateUp_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	db, s := setupTestDB(t)
	runner := NewRunner(db, s)
	require.NoError(t, runner.Initialize(ctx))

	migrations := []*Migration{
		{Version: 1, Name: "good", Up: []string{"CREATE TABLE good (id INTEGER)"}},
		{Version: 2, Name: "bad", Up: []string{"CREATE TABLE partial (id INTEGER)", "CREATE TABLE broken ("}},
	}

	n, err := runner.MigrateUp(ctx, migrations)
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, err.Error(), "bad")

	assert.True(t, tableExists(t, db, s, "good"))
	assert.False(t, tableExists(t, db, s, "partial"), "failed migration must be rolled back")

	count, err := runner.Tracker().GetCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunner_MigrateDown(t *testing.T) {
	ctx := context.Background()
	db, s := setupTestDB(t)
	runner := NewRunner(db, s)
	require.NoError(t, runner.Initialize(ctx))

	_, err := runner.MigrateUp(ctx, BaseMigrations(codegen.SQLite, true))
	require.NoError(t, err)

	require.NoError(t, runner.MigrateDown(ctx))
	assert.False(t, tableExists(t, db, s, "attribute_nodeversion"))
	assert.True(t, tableExists(t, db, s, "attribute"))

	require.NoError(t, runner.MigrateDownTo(ctx, 0))
	for _, table := range []string{"object_type", "attribute_type", "node", "attribute"} {
		assert.False(t, tableExists(t, db, s, table), table)
	}

	assert.Error(t, runner.MigrateDown(ctx), "nothing left to roll back")
	assert.NoError(t, runner.MigrateDownTo(ctx, 0))
}

func TestRunner_MigrateDown_NoDownSQL(t *testing.T) {
	ctx := context.Background()
	db, s := setupTestDB(t)
	runner := NewRunner(db, s)
	require.NoError(t, runner.Initialize(ctx))

	_, err := runner.MigrateUp(ctx, []*Migration{{Version: 1, Name: "oneway", Up: []string{"CREATE TABLE oneway (id INTEGER)"}}})
	require.NoError(t, err)

	err = runner.MigrateDown(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no down migration")
}

func TestRunner_Status(t *testing.T) {
	ctx := context.Background()
	db, s := setupTestDB(t)
	runner := NewRunner(db, s)
	require.NoError(t, runner.Initialize(ctx))

	all := BaseMigrations(codegen.SQLite, true)
	_, err := runner.MigrateUp(ctx, all[:1])
	require.NoError(t, err)

	status, err := runner.Status(ctx, all)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Total)
	assert.Len(t, status.Applied, 1)
	assert.Len(t, status.Pending, 2)
	assert.Equal(t, "create_metadata_tables", status.LastApplied.Name)
	assert.Equal(t, "Total: 3 migrations (1 applied, 2 pending)", status.Summary())
}

func TestRunner_Validate(t *testing.T) {
	db, s := setupTestDB(t)
	runner := NewRunner(db, s)

	assert.Error(t, runner.Validate(&Migration{Name: "unversioned", Up: []string{"SELECT 1"}}))
	assert.Error(t, runner.Validate(&Migration{Version: 1, Name: "empty"}))
	assert.Error(t, runner.Validate(&Migration{Version: 1, Name: "blank", Up: []string{""}}))
	assert.NoError(t, runner.Validate(&Migration{Version: 1, Name: "ok", Up: []string{"SELECT 1"}}))
}

func TestRunner_DataLossWarning(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)

	db, _ := setupTestDB(t)
	s, err := store.New("SQLite", store.WithLogger(zap.New(core)))
	require.NoError(t, err)

	runner := NewRunner(db, s)
	require.NoError(t, runner.Initialize(ctx))
	_, err = runner.MigrateUp(ctx, BaseMigrations(codegen.SQLite, false))
	require.NoError(t, err)

	warnings := logs.FilterMessage("migration may cause data loss").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "create_content_tables", warnings[0].ContextMap()["name"])
}

func TestBaseMigrations(t *testing.T) {
	without := BaseMigrations(codegen.Postgres, false)
	with := BaseMigrations(codegen.Postgres, true)
	require.Len(t, without, 2)
	require.Len(t, with, 3)

	for i, m := range with {
		assert.Equal(t, int64(i+1), m.Version)
		assert.NotEmpty(t, m.Up)
		assert.NotEmpty(t, m.Down)
	}
	assert.Equal(t, `DROP TABLE IF EXISTS "attribute_type"`, with[0].Down[0])
}
