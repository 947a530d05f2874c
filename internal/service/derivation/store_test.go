package derivation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeolmae/hubcast/internal/models"
)

func TestRecordStore_GetNotFound(t *testing.T) {
	store := NewRecordStore(newTestDB(t))

	_, err := store.Get(context.Background(), 42, models.ChannelBlog)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordStore_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	store := NewRecordStore(db)
	hub := newTestHub(t, db, "launch post")

	rec := &models.ChannelDerivationRecord{HubID: hub.ID, Channel: models.ChannelSMS}
	require.NoError(t, store.Create(context.Background(), rec))
	assert.Equal(t, models.StatePending, rec.State)
	assert.EqualValues(t, 1, rec.Version)

	loaded, err := store.Get(context.Background(), hub.ID, models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, loaded.ID)
	assert.Equal(t, models.StatePending, loaded.State)
}

func TestRecordStore_CreateDuplicateConflicts(t *testing.T) {
	db := newTestDB(t)
	store := NewRecordStore(db)
	hub := newTestHub(t, db, "launch post")

	first := &models.ChannelDerivationRecord{HubID: hub.ID, Channel: models.ChannelBlog}
	require.NoError(t, store.Create(context.Background(), first))

	second := &models.ChannelDerivationRecord{HubID: hub.ID, Channel: models.ChannelBlog}
	err := store.Create(context.Background(), second)
	require.ErrorIs(t, err, ErrConflict)
}

func TestRecordStore_UpdateAdvancesVersion(t *testing.T) {
	db := newTestDB(t)
	store := NewRecordStore(db)
	hub := newTestHub(t, db, "launch post")

	rec := &models.ChannelDerivationRecord{HubID: hub.ID, Channel: models.ChannelBlog}
	require.NoError(t, store.Create(context.Background(), rec))

	rec.State = models.StateGenerating
	require.NoError(t, store.Update(context.Background(), rec))
	assert.EqualValues(t, 2, rec.Version)

	loaded, err := store.Get(context.Background(), hub.ID, models.ChannelBlog)
	require.NoError(t, err)
	assert.Equal(t, models.StateGenerating, loaded.State)
	assert.EqualValues(t, 2, loaded.Version)
}

func TestRecordStore_StaleWriteConflicts(t *testing.T) {
	db := newTestDB(t)
	store := NewRecordStore(db)
	hub := newTestHub(t, db, "launch post")

	rec := &models.ChannelDerivationRecord{HubID: hub.ID, Channel: models.ChannelBlog}
	require.NoError(t, store.Create(context.Background(), rec))

	// Two workers read the same version.
	stale, err := store.Get(context.Background(), hub.ID, models.ChannelBlog)
	require.NoError(t, err)

	rec.State = models.StateGenerating
	require.NoError(t, store.Update(context.Background(), rec))

	// The second writer loses instead of silently overwriting.
	stale.State = models.StateGenerating
	err = store.Update(context.Background(), stale)
	require.ErrorIs(t, err, ErrConflict)

	loaded, err := store.Get(context.Background(), hub.ID, models.ChannelBlog)
	require.NoError(t, err)
	assert.EqualValues(t, 2, loaded.Version)
}

func TestRecordStore_ListForHub(t *testing.T) {
	db := newTestDB(t)
	store := NewRecordStore(db)
	hub := newTestHub(t, db, "launch post")
	other := newTestHub(t, db, "other post")

	for _, channel := range []models.Channel{models.ChannelBlog, models.ChannelSMS} {
		require.NoError(t, store.Create(context.Background(), &models.ChannelDerivationRecord{
			HubID: hub.ID, Channel: channel,
		}))
	}
	require.NoError(t, store.Create(context.Background(), &models.ChannelDerivationRecord{
		HubID: other.ID, Channel: models.ChannelBlog,
	}))

	recs, err := store.ListForHub(context.Background(), hub.ID)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, hub.ID, rec.HubID)
	}
}
