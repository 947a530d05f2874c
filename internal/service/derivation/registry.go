package derivation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yeolmae/hubcast/internal/models"
)

// LinkRegistry maintains the many-to-many mapping between hubs and concrete
// channel content records. At most one ref per (hub, channel) is primary;
// demote and promote always happen inside the same transaction as the write
// that triggers them.
type LinkRegistry struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewLinkRegistry(db *gorm.DB, logger *zap.Logger) *LinkRegistry {
	return &LinkRegistry{db: db, logger: logger}
}

// Attach inserts a new ref. With primary=true any existing primary for the
// same (hub, channel) is demoted in the same transaction.
func (r *LinkRegistry) Attach(ctx context.Context, hubID uint, channel models.Channel, contentID string, primary bool) (*models.ChannelContentRef, error) {
	var ref *models.ChannelContentRef
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ref, err = r.AttachTx(tx, hubID, channel, contentID, primary)
		return err
	})
	return ref, err
}

// AttachTx is Attach running on an existing transaction handle.
func (r *LinkRegistry) AttachTx(tx *gorm.DB, hubID uint, channel models.Channel, contentID string, primary bool) (*models.ChannelContentRef, error) {
	if primary {
		if err := tx.Model(&models.ChannelContentRef{}).
			Where("hub_id = ? AND channel = ? AND is_primary = ?", hubID, channel, true).
			Update("is_primary", false).Error; err != nil {
			return nil, fmt.Errorf("failed to demote existing primary ref: %w", err)
		}
	}

	ref := &models.ChannelContentRef{
		HubID:            hubID,
		Channel:          channel,
		ChannelContentID: contentID,
		IsPrimary:        primary,
		AttachedAt:       time.Now(),
	}
	if err := tx.Create(ref).Error; err != nil {
		return nil, fmt.Errorf("failed to attach channel content ref: %w", err)
	}

	r.logger.Info("Channel content attached",
		zap.Uint("hub_id", hubID),
		zap.String("channel", string(channel)),
		zap.String("channel_content_id", contentID),
		zap.Bool("primary", primary))

	return ref, nil
}

// Detach removes a ref. If it was primary, the most-recently-attached
// remaining ref for the same (hub, channel) is promoted; if none remain, no
// primary is left.
func (r *LinkRegistry) Detach(ctx context.Context, hubID uint, channel models.Channel, contentID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.DetachTx(tx, hubID, channel, contentID)
	})
}

// DetachTx is Detach running on an existing transaction handle.
func (r *LinkRegistry) DetachTx(tx *gorm.DB, hubID uint, channel models.Channel, contentID string) error {
	var ref models.ChannelContentRef
	err := tx.Where("hub_id = ? AND channel = ? AND channel_content_id = ?", hubID, channel, contentID).
		First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: ref for hub %d channel %s content %s", ErrNotFound, hubID, channel, contentID)
	}
	if err != nil {
		return fmt.Errorf("failed to load channel content ref: %w", err)
	}

	if err := tx.Delete(&ref).Error; err != nil {
		return fmt.Errorf("failed to detach channel content ref: %w", err)
	}

	if ref.IsPrimary {
		var next models.ChannelContentRef
		err := tx.Where("hub_id = ? AND channel = ?", hubID, channel).
			Order("attached_at DESC").
			First(&next).Error
		if err == nil {
			if err := tx.Model(&next).Update("is_primary", true).Error; err != nil {
				return fmt.Errorf("failed to promote replacement primary ref: %w", err)
			}
			r.logger.Info("Promoted replacement primary ref",
				zap.Uint("hub_id", hubID),
				zap.String("channel", string(channel)),
				zap.String("channel_content_id", next.ChannelContentID))
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to find replacement primary ref: %w", err)
		}
	}

	return nil
}

// PrimaryOf returns the primary channel content id for (hubID, channel), or
// the empty string when none exists.
func (r *LinkRegistry) PrimaryOf(ctx context.Context, hubID uint, channel models.Channel) (string, error) {
	return r.PrimaryOfTx(r.db.WithContext(ctx), hubID, channel)
}

// PrimaryOfTx is PrimaryOf running on an existing transaction handle.
func (r *LinkRegistry) PrimaryOfTx(tx *gorm.DB, hubID uint, channel models.Channel) (string, error) {
	var ref models.ChannelContentRef
	err := tx.Where("hub_id = ? AND channel = ? AND is_primary = ?", hubID, channel, true).
		First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load primary ref: %w", err)
	}
	return ref.ChannelContentID, nil
}

// Refs returns all refs for (hubID, channel), most recently attached first.
func (r *LinkRegistry) Refs(ctx context.Context, hubID uint, channel models.Channel) ([]models.ChannelContentRef, error) {
	var refs []models.ChannelContentRef
	if err := r.db.WithContext(ctx).
		Where("hub_id = ? AND channel = ?", hubID, channel).
		Order("attached_at DESC").
		Find(&refs).Error; err != nil {
		return nil, fmt.Errorf("failed to list channel content refs: %w", err)
	}
	return refs, nil
}

// HasRef reports whether a ref for the exact (hubID, channel, contentID)
// triple exists.
func (r *LinkRegistry) HasRef(ctx context.Context, hubID uint, channel models.Channel, contentID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.ChannelContentRef{}).
		Where("hub_id = ? AND channel = ? AND channel_content_id = ?", hubID, channel, contentID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to count channel content refs: %w", err)
	}
	return count > 0, nil
}
