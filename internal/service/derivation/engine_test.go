package derivation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeolmae/hubcast/internal/models"
)

func TestEngineDerive_Success(t *testing.T) {
	db := newTestDB(t)
	engine, store, registry := newTestEngine(t, db)
	hub := newTestHub(t, db, "launch post")

	require.NoError(t, engine.RegisterAdapter(staticAdapter(models.ChannelBlog, "post-1")))

	result, err := engine.Derive(context.Background(), hub.ID, models.ChannelBlog)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, result.State)
	assert.Equal(t, "post-1", result.ChannelContentID)
	assert.NoError(t, result.Err)

	rec, err := store.Get(context.Background(), hub.ID, models.ChannelBlog)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, rec.State)
	assert.Equal(t, "post-1", rec.ChannelContentID)
	assert.Empty(t, rec.LastError)

	// First attach for the channel wins primary.
	primary, err := registry.PrimaryOf(context.Background(), hub.ID, models.ChannelBlog)
	require.NoError(t, err)
	assert.Equal(t, "post-1", primary)
}

func TestEngineDerive_AdapterFailureThenRetry(t *testing.T) {
	db := newTestDB(t)
	engine, store, _ := newTestEngine(t, db)
	hub := newTestHub(t, db, "flash sale")

	calls := 0
	adapter := &fakeAdapter{
		channel: models.ChannelSMS,
		generateFn: func(context.Context, HubSnapshot) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("rate limited")
			}
			return "msg-77", nil
		},
	}
	require.NoError(t, engine.RegisterAdapter(adapter))

	result, err := engine.Derive(context.Background(), hub.ID, models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, result.State)

	var aerr *AdapterError
	require.ErrorAs(t, result.Err, &aerr)
	assert.Equal(t, models.ChannelSMS, aerr.Channel)

	rec, err := store.Get(context.Background(), hub.ID, models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, rec.State)
	assert.Equal(t, "rate limited", rec.LastError)

	// A failed record is retriable: the next Derive re-enters generating
	// and completes.
	result, err = engine.Derive(context.Background(), hub.ID, models.ChannelSMS)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, result.State)
	assert.Equal(t, "msg-77", result.ChannelContentID)

	rec, err = store.Get(context.Background(), hub.ID, models.ChannelSMS)
	require.NoError(t, err)
	assert.Empty(t, rec.LastError)
}

func TestEngineDerive_ConcurrentCallLosesWithAlreadyInProgress(t *testing.T) {
	db := newTestDB(t)
	engine, _, _ := newTestEngine(t, db)
	hub := newTestHub(t, db, "launch post")

	entered := make(chan struct{})
	release := make(chan struct{})
	adapter := &fakeAdapter{
		channel: models.ChannelBlog,
		generateFn: func(context.Context, HubSnapshot) (string, error) {
			close(entered)
			<-release
			return "post-1", nil
		},
	}
	require.NoError(t, engine.RegisterAdapter(adapter))

	type outcome struct {
		result *DerivationResult
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		result, err := engine.Derive(context.Background(), hub.ID, models.ChannelBlog)
		first <- outcome{result, err}
	}()

	// Wait until the first worker holds generating, then race it.
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first derivation never reached the adapter")
	}

	_, err := engine.Derive(context.Background(), hub.ID, models.ChannelBlog)
	require.ErrorIs(t, err, ErrAlreadyInProgress)

	close(release)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, models.StateCompleted, got.result.State)
}

func TestEngineDerive_CompletedRecordRejectsRederive(t *testing.T) {
	db := newTestDB(t)
	engine, _, _ := newTestEngine(t, db)
	hub := newTestHub(t, db, "launch post")

	require.NoError(t, engine.RegisterAdapter(staticAdapter(models.ChannelBlog, "post-1")))

	_, err := engine.Derive(context.Background(), hub.ID, models.ChannelBlog)
	require.NoError(t, err)

	_, err = engine.Derive(context.Background(), hub.ID, models.ChannelBlog)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEngineDerive_Preconditions(t *testing.T) {
	db := newTestDB(t)
	engine, _, _ := newTestEngine(t, db)
	hub := newTestHub(t, db, "launch post")
	require.NoError(t, engine.RegisterAdapter(staticAdapter(models.ChannelBlog, "post-1")))

	t.Run("hub must exist", func(t *testing.T) {
		_, err := engine.Derive(context.Background(), 9999, models.ChannelBlog)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("channel must be recognized", func(t *testing.T) {
		_, err := engine.Derive(context.Background(), hub.ID, models.Channel("pigeon"))
		require.ErrorIs(t, err, ErrUnknownChannel)
	})

	t.Run("channel must have an adapter", func(t *testing.T) {
		_, err := engine.Derive(context.Background(), hub.ID, models.ChannelKakao)
		require.ErrorIs(t, err, ErrNoAdapter)
	})

	t.Run("archived hub is rejected", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, db.Model(hub).Update("archived_at", &now).Error)

		_, err := engine.Derive(context.Background(), hub.ID, models.ChannelBlog)
		require.ErrorIs(t, err, ErrHubArchived)
	})
}

func TestEngineRegisterAdapter_DuplicateRejected(t *testing.T) {
	db := newTestDB(t)
	engine, _, _ := newTestEngine(t, db)

	require.NoError(t, engine.RegisterAdapter(staticAdapter(models.ChannelBlog, "post-1")))
	err := engine.RegisterAdapter(staticAdapter(models.ChannelBlog, "post-2"))
	require.Error(t, err)
}
