package derivation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeolmae/hubcast/internal/models"
)

func TestAggregatorSummarize(t *testing.T) {
	db := newTestDB(t)
	engine, store, registry := newTestEngine(t, db)
	aggregator := NewAggregator(store, registry)
	hub := newTestHub(t, db, "launch post")

	require.NoError(t, engine.RegisterAdapter(staticAdapter(models.ChannelBlog, "post-1")))
	require.NoError(t, engine.RegisterAdapter(failingAdapter(models.ChannelSMS, "rate limited")))

	_, err := engine.Derive(context.Background(), hub.ID, models.ChannelBlog)
	require.NoError(t, err)
	_, err = engine.Derive(context.Background(), hub.ID, models.ChannelSMS)
	require.NoError(t, err)

	summary, err := aggregator.Summarize(context.Background(), hub.ID)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	blog := summary[models.ChannelBlog]
	assert.Equal(t, models.StateCompleted, blog.State)
	assert.Equal(t, "post-1", blog.ChannelContentID)
	assert.Empty(t, blog.LastError)

	sms := summary[models.ChannelSMS]
	assert.Equal(t, models.StateFailed, sms.State)
	assert.Equal(t, "rate limited", sms.LastError)
}

func TestAggregatorSummarize_EmptyHub(t *testing.T) {
	db := newTestDB(t)
	_, store, registry := newTestEngine(t, db)
	aggregator := NewAggregator(store, registry)
	hub := newTestHub(t, db, "no derivations yet")

	summary, err := aggregator.Summarize(context.Background(), hub.ID)
	require.NoError(t, err)
	assert.Empty(t, summary)
}

func TestAggregatorSummarize_OrphanedCompletion(t *testing.T) {
	db := newTestDB(t)
	engine, store, registry := newTestEngine(t, db)
	aggregator := NewAggregator(store, registry)
	hub := newTestHub(t, db, "launch post")

	require.NoError(t, engine.RegisterAdapter(staticAdapter(models.ChannelBlog, "post-1")))
	_, err := engine.Derive(context.Background(), hub.ID, models.ChannelBlog)
	require.NoError(t, err)

	// Drop the ref out from under the completed record.
	require.NoError(t, db.Where("hub_id = ? AND channel = ?", hub.ID, models.ChannelBlog).
		Delete(&models.ChannelContentRef{}).Error)

	summary, err := aggregator.Summarize(context.Background(), hub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompletedOrphaned, summary[models.ChannelBlog].State)

	// The persisted record is untouched; orphaned is a read-time view.
	rec, err := store.Get(context.Background(), hub.ID, models.ChannelBlog)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, rec.State)
}
