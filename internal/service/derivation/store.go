package derivation

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yeolmae/hubcast/internal/models"
)

// RecordStore persists ChannelDerivationRecords with row-level optimistic
// locking. Every update must carry the version the writer last read; a stale
// version fails with ErrConflict instead of silently overwriting a concurrent
// transition.
type RecordStore struct {
	db *gorm.DB
}

func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Get returns the record for (hubID, channel), or ErrNotFound.
func (s *RecordStore) Get(ctx context.Context, hubID uint, channel models.Channel) (*models.ChannelDerivationRecord, error) {
	var rec models.ChannelDerivationRecord
	err := s.db.WithContext(ctx).
		Where("hub_id = ? AND channel = ?", hubID, channel).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: derivation record for hub %d channel %s", ErrNotFound, hubID, channel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load derivation record: %w", err)
	}
	return &rec, nil
}

// ListForHub returns all derivation records for a hub.
func (s *RecordStore) ListForHub(ctx context.Context, hubID uint) ([]models.ChannelDerivationRecord, error) {
	var recs []models.ChannelDerivationRecord
	if err := s.db.WithContext(ctx).
		Where("hub_id = ?", hubID).
		Order("channel ASC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list derivation records: %w", err)
	}
	return recs, nil
}

// Create inserts a fresh record. A concurrent insert for the same
// (hub, channel) loses to the unique index and reports ErrConflict.
func (s *RecordStore) Create(ctx context.Context, rec *models.ChannelDerivationRecord) error {
	if rec.State == "" {
		rec.State = models.StatePending
	}
	if rec.Version == 0 {
		rec.Version = 1
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if _, getErr := s.Get(ctx, rec.HubID, rec.Channel); getErr == nil {
			return fmt.Errorf("%w: record for hub %d channel %s already exists", ErrConflict, rec.HubID, rec.Channel)
		}
		return fmt.Errorf("failed to create derivation record: %w", err)
	}
	return nil
}

// Update performs a compare-and-swap on rec's version. On success rec.Version
// is advanced; if the stored row moved on, ErrConflict is returned and rec is
// left untouched.
func (s *RecordStore) Update(ctx context.Context, rec *models.ChannelDerivationRecord) error {
	return s.UpdateTx(s.db.WithContext(ctx), rec)
}

// UpdateTx is Update running on an existing transaction handle.
func (s *RecordStore) UpdateTx(tx *gorm.DB, rec *models.ChannelDerivationRecord) error {
	res := tx.Model(&models.ChannelDerivationRecord{}).
		Where("id = ? AND version = ?", rec.ID, rec.Version).
		Updates(map[string]interface{}{
			"state":              rec.State,
			"channel_content_id": rec.ChannelContentID,
			"last_error":         rec.LastError,
			"version":            rec.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update derivation record: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: record %d at version %d", ErrConflict, rec.ID, rec.Version)
	}
	rec.Version++
	return nil
}
