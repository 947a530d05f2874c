package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yeolmae/hubcast/internal/models"
	"github.com/yeolmae/hubcast/internal/service/derivation"
)

// HubService manages hub content items and their externally visible summary.
type HubService struct {
	db         *gorm.DB
	aggregator *derivation.Aggregator
	logger     *zap.Logger
}

func NewHubService(db *gorm.DB, aggregator *derivation.Aggregator, logger *zap.Logger) *HubService {
	return &HubService{
		db:         db,
		aggregator: aggregator,
		logger:     logger,
	}
}

// HubSummary is the dashboard view of a hub: its identity plus the
// per-channel status projection.
type HubSummary struct {
	HubID         uint                                        `json:"hub_id"`
	Title         string                                      `json:"title"`
	ScheduledAt   *time.Time                                  `json:"scheduled_at"`
	Archived      bool                                        `json:"archived"`
	ChannelStatus map[models.Channel]derivation.ChannelStatus `json:"channel_status"`
}

// NeedsAttention reports whether any channel is failed or orphaned.
func (s *HubSummary) NeedsAttention() bool {
	for _, status := range s.ChannelStatus {
		if status.State == models.StateFailed || status.State == models.StateCompletedOrphaned {
			return true
		}
	}
	return false
}

// CreateHub registers a new planned content item.
func (s *HubService) CreateHub(ctx context.Context, title, body string, scheduledAt *time.Time, owner string) (*models.HubContent, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	hub := &models.HubContent{
		Title:       title,
		Body:        body,
		ScheduledAt: scheduledAt,
		Owner:       owner,
	}
	if err := s.db.WithContext(ctx).Create(hub).Error; err != nil {
		return nil, fmt.Errorf("failed to create hub: %w", err)
	}

	s.logger.Info("Hub created", zap.Uint("hub_id", hub.ID), zap.String("title", title))
	return hub, nil
}

// GetHub loads one hub.
func (s *HubService) GetHub(ctx context.Context, hubID uint) (*models.HubContent, error) {
	var hub models.HubContent
	if err := s.db.WithContext(ctx).First(&hub, hubID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: hub %d", derivation.ErrNotFound, hubID)
		}
		return nil, fmt.Errorf("failed to load hub: %w", err)
	}
	return &hub, nil
}

// ListHubs returns the newest hubs, archived ones included.
func (s *HubService) ListHubs(ctx context.Context, limit int) ([]models.HubContent, error) {
	var hubs []models.HubContent
	if err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&hubs).Error; err != nil {
		return nil, fmt.Errorf("failed to list hubs: %w", err)
	}
	return hubs, nil
}

// UpdateHub edits title/body/schedule. Edits run concurrently with
// derivation; adapters work from the snapshot taken at Derive time.
func (s *HubService) UpdateHub(ctx context.Context, hubID uint, title, body string, scheduledAt *time.Time) (*models.HubContent, error) {
	hub, err := s.GetHub(ctx, hubID)
	if err != nil {
		return nil, err
	}
	if hub.Archived() {
		return nil, fmt.Errorf("%w: hub %d", derivation.ErrHubArchived, hubID)
	}

	updates := map[string]interface{}{}
	if title != "" {
		updates["title"] = title
	}
	if body != "" {
		updates["body"] = body
	}
	if scheduledAt != nil {
		updates["scheduled_at"] = scheduledAt
	}
	if len(updates) == 0 {
		return hub, nil
	}

	if err := s.db.WithContext(ctx).Model(hub).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update hub: %w", err)
	}
	return hub, nil
}

// ArchiveHub soft-archives a hub and cascades over its derivation records and
// channel content refs in one transaction. Hubs are never hard-deleted while
// completed derivations reference them.
func (s *HubService) ArchiveHub(ctx context.Context, hubID uint) error {
	hub, err := s.GetHub(ctx, hubID)
	if err != nil {
		return err
	}
	if hub.Archived() {
		return nil
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(hub).Update("archived_at", &now).Error; err != nil {
			return fmt.Errorf("failed to archive hub: %w", err)
		}
		if err := tx.Where("hub_id = ?", hubID).
			Delete(&models.ChannelDerivationRecord{}).Error; err != nil {
			return fmt.Errorf("failed to archive derivation records: %w", err)
		}
		if err := tx.Where("hub_id = ?", hubID).
			Delete(&models.ChannelContentRef{}).Error; err != nil {
			return fmt.Errorf("failed to archive channel content refs: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Hub archived", zap.Uint("hub_id", hubID))
	return nil
}

// GetHubSummary builds the read-only hub summary consumed by dashboards.
func (s *HubService) GetHubSummary(ctx context.Context, hubID uint) (*HubSummary, error) {
	hub, err := s.GetHub(ctx, hubID)
	if err != nil {
		return nil, err
	}

	channelStatus, err := s.aggregator.Summarize(ctx, hubID)
	if err != nil {
		return nil, err
	}

	return &HubSummary{
		HubID:         hub.ID,
		Title:         hub.Title,
		ScheduledAt:   hub.ScheduledAt,
		Archived:      hub.Archived(),
		ChannelStatus: channelStatus,
	}, nil
}
