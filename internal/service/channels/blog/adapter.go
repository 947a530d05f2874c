package blog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yeolmae/hubcast/internal/models"
	"github.com/yeolmae/hubcast/internal/service/derivation"
	"github.com/yeolmae/hubcast/pkg/util"
)

// Adapter publishes hub content into the blog's authoritative posts table.
// The post slug doubles as the channel content id.
type Adapter struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewAdapter(db *gorm.DB, logger *zap.Logger) *Adapter {
	return &Adapter{db: db, logger: logger}
}

func (a *Adapter) Channel() models.Channel {
	return models.ChannelBlog
}

func (a *Adapter) Generate(ctx context.Context, snap derivation.HubSnapshot) (string, error) {
	publishDate := time.Now()
	if snap.ScheduledAt != nil {
		publishDate = *snap.ScheduledAt
	}

	slug, err := a.uniqueSlug(ctx, snap.Title, publishDate)
	if err != nil {
		return "", err
	}

	post := &models.BlogPost{
		Slug:        slug,
		Title:       snap.Title,
		Body:        snap.Body,
		PublishedAt: &publishDate,
	}
	if err := a.db.WithContext(ctx).Create(post).Error; err != nil {
		return "", fmt.Errorf("failed to create blog post: %w", err)
	}

	a.logger.Info("Blog post published",
		zap.Uint("hub_id", snap.HubID),
		zap.String("slug", slug))

	return slug, nil
}

func (a *Adapter) Exists(ctx context.Context, channelContentID string) (bool, error) {
	var count int64
	err := a.db.WithContext(ctx).Model(&models.BlogPost{}).
		Where("slug = ?", channelContentID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check blog post existence: %w", err)
	}
	return count > 0, nil
}

// uniqueSlug suffixes the dated slug until it is free. Repeated derivations
// of the same hub produce variant posts, so collisions are normal.
func (a *Adapter) uniqueSlug(ctx context.Context, title string, date time.Time) (string, error) {
	base := util.DatedSlug(title, date)
	slug := base
	for i := 2; ; i++ {
		var existing models.BlogPost
		err := a.db.WithContext(ctx).Unscoped().Where("slug = ?", slug).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return slug, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check slug availability: %w", err)
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}
