package conflict

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/contentschema/internal/orm/catalog"
	"github.com/conduit-lang/contentschema/internal/orm/ormtest"
	"github.com/conduit-lang/contentschema/internal/orm/schema"
	"github.com/conduit-lang/contentschema/internal/orm/store"
)

func TestFindConflictingTypes_NewTypeWithoutIDIssuesNoQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := store.New("SQLite")
	require.NoError(t, err)
	d := New(catalog.New(s))

	conflicts, err := d.FindConflictingTypes(context.Background(), db, schema.NewObjectType(0, "article"))
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindConflictingTypes_CollidingID(t *testing.T) {
	ctx := context.Background()
	db, s := ormtest.NewSQLite(t, false)
	ormtest.InsertType(t, db, 4, "article")
	d := New(catalog.New(s))

	conflicts, err := d.FindConflictingTypes(ctx, db, schema.NewObjectType(4, "story"))
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "article", conflicts[0].Name)

	conflicts, err = d.FindConflictingTypes(ctx, db, schema.NewObjectType(5, "story"))
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	renumbered := schema.NewObjectType(4, "person")
	renumbered.PreviousTypeID = 9
	conflicts, err = d.FindConflictingTypes(ctx, db, renumbered)
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)

	kept := schema.NewObjectType(4, "article")
	kept.PreviousTypeID = 4
	conflicts, err = d.FindConflictingTypes(ctx, db, kept)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestFindConflictingTypes_QueryFailureIsAnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := store.New("SQLite")
	require.NoError(t, err)
	d := New(catalog.New(s))

	mock.ExpectQuery(`SELECT type_id`).WillReturnError(errors.New("connection refused"))

	conflicts, err := d.FindConflictingTypes(context.Background(), db, schema.NewObjectType(3, "x"))
	assert.Error(t, err)
	assert.Nil(t, conflicts)
}

func TestFindConflictingAttributes(t *testing.T) {
	ctx := context.Background()
	db, s := ormtest.NewSQLite(t, false)
	c := catalog.New(s)
	d := New(c)

	stored := []*schema.AttributeType{
		{Name: "title", ObjectTypeID: 1, Kind: schema.KindShortText},
		{Name: "headline", ObjectTypeID: 1, Kind: schema.KindShortText},
		{Name: "title", ObjectTypeID: 2, Kind: schema.KindLongText},
		{Name: "title", ObjectTypeID: 3, Kind: schema.KindShortText},
	}
	for _, a := range stored {
		require.NoError(t, c.InsertAttribute(ctx, db, a, catalog.AllColumns))
	}

	t.Run("unchanged name skips the name check", func(t *testing.T) {
		candidate := &schema.AttributeType{Name: "title", PreviousName: "title", ObjectTypeID: 1, Kind: schema.KindShortText}
		conflicts, err := d.FindConflictingAttributes(ctx, db, candidate, CheckName)
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("rename onto existing name", func(t *testing.T) {
		candidate := &schema.AttributeType{Name: "headline", PreviousName: "title", ObjectTypeID: 1, Kind: schema.KindShortText}
		conflicts, err := d.FindConflictingAttributes(ctx, db, candidate, CheckName)
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, 1, conflicts[0].ObjectTypeID)
	})

	t.Run("divergent definitions in other types", func(t *testing.T) {
		candidate := &schema.AttributeType{Name: "title", ObjectTypeID: 1, Kind: schema.KindShortText}
		conflicts, err := d.FindConflictingAttributes(ctx, db, candidate, CheckDefinition)
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, 2, conflicts[0].ObjectTypeID)
	})

	t.Run("optimized flag diverges", func(t *testing.T) {
		candidate := &schema.AttributeType{Name: "title", ObjectTypeID: 9, Kind: schema.KindShortText, Optimized: true}
		conflicts, err := d.FindConflictingAttributes(ctx, db, candidate, CheckAll)
		require.NoError(t, err)
		assert.Len(t, conflicts, 3)
	})
}

func TestNextTypeID(t *testing.T) {
	ctx := context.Background()
	db, s := ormtest.NewSQLite(t, false)
	d := New(catalog.New(s))

	id, err := d.NextTypeID(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	ormtest.InsertType(t, db, 41, "article")
	id, err = d.NextTypeID(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	ormtest.InsertType(t, db, schema.MaxTypeID, "last")
	_, err = d.NextTypeID(ctx, db)
	assert.ErrorIs(t, err, ErrNoTypeIDHeadroom)
}

func TestCheckType(t *testing.T) {
	ctx := context.Background()
	db, s := ormtest.NewSQLite(t, false)
	c := catalog.New(s)
	d := New(c)
	ormtest.InsertType(t, db, 1, "article")
	require.NoError(t, c.InsertAttribute(ctx, db,
		&schema.AttributeType{Name: "body", ObjectTypeID: 1, Kind: schema.KindLongText}, catalog.AllColumns))

	candidate := schema.NewObjectType(2, "page")
	require.NoError(t, candidate.AddAttribute(&schema.AttributeType{Name: "body", ObjectTypeID: 2, Kind: schema.KindShortText}))
	err := d.CheckType(ctx, db, candidate)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	var conflictErr *ConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.Empty(t, conflictErr.Types)
	assert.Len(t, conflictErr.Attributes, 1)

	ok := schema.NewObjectType(3, "page")
	require.NoError(t, ok.AddAttribute(&schema.AttributeType{Name: "body", ObjectTypeID: 3, Kind: schema.KindLongText}))
	assert.NoError(t, d.CheckType(ctx, db, ok))
}
