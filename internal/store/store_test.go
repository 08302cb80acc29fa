package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbernstein/sofie-playout-go/internal/database/models"
	"github.com/bbernstein/sofie-playout-go/internal/services/testutil"
	"github.com/bbernstein/sofie-playout-go/internal/store"
)

func seedParts(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	parts := []*models.Part{
		{ID: "p1", RundownID: "r1", SegmentID: "s1", Rank: 2, Title: "Two"},
		{ID: "p2", RundownID: "r1", SegmentID: "s1", Rank: 1, Title: "One"},
		{ID: "p3", RundownID: "r2", SegmentID: "s2", Rank: 0, Title: "Other", HoldMode: models.PartHoldFrom},
	}
	require.NoError(t, st.Parts.Insert(ctx, parts...))
}

func TestCollection_FindWithSortAndIn(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	st := testDB.Store
	seedParts(t, st)

	parts, err := st.Parts.Find(context.Background(),
		store.Where(store.In("rundown_id", []models.RundownID{"r1"})).OrderBy("rank ASC"))
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, models.PartID("p2"), parts[0].ID)
	assert.Equal(t, models.PartID("p1"), parts[1].ID)
}

func TestCollection_EmptyInMatchesNothing(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	seedParts(t, testDB.Store)

	parts, err := testDB.Store.Parts.Find(context.Background(), store.Where(store.In[models.RundownID]("rundown_id", nil)))
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestCollection_ExistsAndPagination(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	st := testDB.Store
	seedParts(t, st)
	ctx := context.Background()

	held, err := st.Parts.Find(ctx, store.Where(store.Exists("hold_mode")))
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, models.PartID("p3"), held[0].ID)

	page, err := st.Parts.Find(ctx, store.All().OrderBy("rank ASC").Paginate(1, 1))
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, models.PartID("p2"), page[0].ID)

	count, err := st.Parts.Count(ctx, store.Where(store.NotExists("hold_mode")))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCollection_FindByIDMissingReturnsNil(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	part, err := testDB.Store.Parts.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, part)
}

func TestCollection_UpdateAndRemove(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	st := testDB.Store
	seedParts(t, st)
	ctx := context.Background()

	n, err := st.Parts.Update(ctx, store.Where(store.Eq("segment_id", "s1")), map[string]any{"invalid": true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	p1, err := st.Parts.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, p1.Invalid)

	_, err = st.Parts.Update(ctx, store.All(), map[string]any{"invalid": false})
	assert.Error(t, err, "update without selector must be refused")

	n, err = st.Parts.Remove(ctx, store.Where(store.Eq("id", "p3")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCollection_SaveUpsertsJSONColumns(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	st := testDB.Store
	ctx := context.Background()

	part := &models.Part{ID: "p1", Timings: models.PartTimings{Take: []int64{10}}}
	require.NoError(t, st.Parts.Save(ctx, part))
	part.Timings.Take = append(part.Timings.Take, 20)
	require.NoError(t, st.Parts.Save(ctx, part))

	loaded, err := st.Parts.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, loaded.Timings.Take)
}

func TestStore_TransactionRollsBack(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	st := testDB.Store
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.Parts.Insert(ctx, &models.Part{ID: "p1"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	count, err := st.Parts.Count(ctx, store.All())
	require.NoError(t, err)
	assert.Zero(t, count)
}
