package derivation

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yeolmae/hubcast/internal/models"
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
	))
	return db
}

func newTestHub(t *testing.T, db *gorm.DB, title string) *models.HubContent {
	t.Helper()

	hub := &models.HubContent{Title: title, Body: "body of " + title}
	require.NoError(t, db.Create(hub).Error)
	return hub
}

// fakeAdapter is a scriptable channel adapter for engine and reconciler tests.
type fakeAdapter struct {
	channel    models.Channel
	generateFn func(ctx context.Context, snap HubSnapshot) (string, error)
	existsFn   func(ctx context.Context, id string) (bool, error)
}

func (f *fakeAdapter) Channel() models.Channel {
	return f.channel
}

func (f *fakeAdapter) Generate(ctx context.Context, snap HubSnapshot) (string, error) {
	if f.generateFn == nil {
		return "generated-" + uuid.NewString(), nil
	}
	return f.generateFn(ctx, snap)
}

func (f *fakeAdapter) Exists(ctx context.Context, id string) (bool, error) {
	if f.existsFn == nil {
		return true, nil
	}
	return f.existsFn(ctx, id)
}

func staticAdapter(channel models.Channel, contentID string) *fakeAdapter {
	return &fakeAdapter{
		channel: channel,
		generateFn: func(context.Context, HubSnapshot) (string, error) {
			return contentID, nil
		},
	}
}

func failingAdapter(channel models.Channel, message string) *fakeAdapter {
	return &fakeAdapter{
		channel: channel,
		generateFn: func(context.Context, HubSnapshot) (string, error) {
			return "", fmt.Errorf("%s", message)
		},
	}
}

// newTestEngine wires an engine over a fresh database.
func newTestEngine(t *testing.T, db *gorm.DB) (*Engine, *RecordStore, *LinkRegistry) {
	t.Helper()

	store := NewRecordStore(db)
	registry := NewLinkRegistry(db, zap.NewNop())
	engine := NewEngine(db, store, registry, zap.NewNop())
	return engine, store, registry
}
