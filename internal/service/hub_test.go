package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yeolmae/hubcast/internal/models"
	"github.com/yeolmae/hubcast/internal/service/derivation"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.HubContent{},
		&models.ChannelDerivationRecord{},
		&models.ChannelContentRef{},
		&models.BlogPost{},
		&models.ErrorLog{},
	))
	return db
}

func newTestHubService(t *testing.T, db *gorm.DB) (*HubService, *derivation.RecordStore, *derivation.LinkRegistry) {
	t.Helper()
	store := derivation.NewRecordStore(db)
	registry := derivation.NewLinkRegistry(db, zap.NewNop())
	aggregator := derivation.NewAggregator(store, registry)
	return NewHubService(db, aggregator, zap.NewNop()), store, registry
}

func TestHubServiceCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	svc, _, _ := newTestHubService(t, db)

	scheduled := time.Now().Add(24 * time.Hour)
	hub, err := svc.CreateHub(context.Background(), "launch post", "body text", &scheduled, "yeolmae")
	require.NoError(t, err)
	require.NotZero(t, hub.ID)

	got, err := svc.GetHub(context.Background(), hub.ID)
	require.NoError(t, err)
	assert.Equal(t, "launch post", got.Title)
	assert.Equal(t, "yeolmae", got.Owner)
	assert.False(t, got.Archived())
}

func TestHubServiceCreate_RequiresTitle(t *testing.T) {
	db := newTestDB(t)
	svc, _, _ := newTestHubService(t, db)

	_, err := svc.CreateHub(context.Background(), "", "body", nil, "")
	require.Error(t, err)
}

func TestHubServiceGet_NotFound(t *testing.T) {
	db := newTestDB(t)
	svc, _, _ := newTestHubService(t, db)

	_, err := svc.GetHub(context.Background(), 9999)
	require.ErrorIs(t, err, derivation.ErrNotFound)
}

func TestHubServiceUpdate(t *testing.T) {
	db := newTestDB(t)
	svc, _, _ := newTestHubService(t, db)

	hub, err := svc.CreateHub(context.Background(), "draft", "first cut", nil, "")
	require.NoError(t, err)

	updated, err := svc.UpdateHub(context.Background(), hub.ID, "launch post", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "launch post", updated.Title)

	got, err := svc.GetHub(context.Background(), hub.ID)
	require.NoError(t, err)
	assert.Equal(t, "launch post", got.Title)
	assert.Equal(t, "first cut", got.Body)
}

func TestHubServiceUpdate_ArchivedRejected(t *testing.T) {
	db := newTestDB(t)
	svc, _, _ := newTestHubService(t, db)

	hub, err := svc.CreateHub(context.Background(), "retired", "", nil, "")
	require.NoError(t, err)
	require.NoError(t, svc.ArchiveHub(context.Background(), hub.ID))

	_, err = svc.UpdateHub(context.Background(), hub.ID, "revived", "", nil)
	require.ErrorIs(t, err, derivation.ErrHubArchived)
}

func TestHubServiceArchive_Cascades(t *testing.T) {
	db := newTestDB(t)
	svc, store, registry := newTestHubService(t, db)

	hub, err := svc.CreateHub(context.Background(), "launch post", "", nil, "")
	require.NoError(t, err)

	rec := &models.ChannelDerivationRecord{
		HubID:            hub.ID,
		Channel:          models.ChannelBlog,
		State:            models.StateCompleted,
		ChannelContentID: "post-1",
	}
	require.NoError(t, store.Create(context.Background(), rec))
	_, err = registry.Attach(context.Background(), hub.ID, models.ChannelBlog, "post-1", true)
	require.NoError(t, err)

	require.NoError(t, svc.ArchiveHub(context.Background(), hub.ID))

	got, err := svc.GetHub(context.Background(), hub.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived())

	_, err = store.Get(context.Background(), hub.ID, models.ChannelBlog)
	require.ErrorIs(t, err, derivation.ErrNotFound)

	refs, err := registry.Refs(context.Background(), hub.ID, models.ChannelBlog)
	require.NoError(t, err)
	assert.Empty(t, refs)

	// Archiving twice is a no-op.
	require.NoError(t, svc.ArchiveHub(context.Background(), hub.ID))
}

func TestHubServiceSummary(t *testing.T) {
	db := newTestDB(t)
	svc, store, registry := newTestHubService(t, db)

	hub, err := svc.CreateHub(context.Background(), "launch post", "", nil, "")
	require.NoError(t, err)

	require.NoError(t, store.Create(context.Background(), &models.ChannelDerivationRecord{
		HubID:            hub.ID,
		Channel:          models.ChannelBlog,
		State:            models.StateCompleted,
		ChannelContentID: "post-1",
	}))
	_, err = registry.Attach(context.Background(), hub.ID, models.ChannelBlog, "post-1", true)
	require.NoError(t, err)
	require.NoError(t, store.Create(context.Background(), &models.ChannelDerivationRecord{
		HubID:     hub.ID,
		Channel:   models.ChannelSMS,
		State:     models.StateFailed,
		LastError: "rate limited",
	}))

	summary, err := svc.GetHubSummary(context.Background(), hub.ID)
	require.NoError(t, err)
	assert.Equal(t, hub.ID, summary.HubID)
	assert.False(t, summary.Archived)
	assert.Equal(t, models.StateCompleted, summary.ChannelStatus[models.ChannelBlog].State)
	assert.Equal(t, models.StateFailed, summary.ChannelStatus[models.ChannelSMS].State)
	assert.True(t, summary.NeedsAttention())
}

func TestHubSummaryNeedsAttention(t *testing.T) {
	healthy := &HubSummary{ChannelStatus: map[models.Channel]derivation.ChannelStatus{
		models.ChannelBlog: {State: models.StateCompleted},
		models.ChannelSMS:  {State: models.StatePending},
	}}
	assert.False(t, healthy.NeedsAttention())

	orphaned := &HubSummary{ChannelStatus: map[models.Channel]derivation.ChannelStatus{
		models.ChannelBlog: {State: models.StateCompletedOrphaned},
	}}
	assert.True(t, orphaned.NeedsAttention())
}
