package models

import (
	"time"

	"gorm.io/gorm"
)

// DerivationState is the lifecycle state of a channel derivation.
type DerivationState string

const (
	StatePending    DerivationState = "pending"
	StateGenerating DerivationState = "generating"
	StateCompleted  DerivationState = "completed"
	StateFailed     DerivationState = "failed"

	// StateCompletedOrphaned is reported by the status aggregator when a
	// completed record has no primary link. It is never persisted.
	StateCompletedOrphaned DerivationState = "completed_orphaned"
)

// ChannelDerivationRecord tracks one channel's derivation lifecycle for a hub.
// Exactly one row exists per (hub, channel). Version implements optimistic
// locking: every successful update increments it, and a writer must supply the
// version it last read.
type ChannelDerivationRecord struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	HubID            uint            `gorm:"not null;uniqueIndex:idx_hub_channel,priority:1" json:"hub_id"`
	Channel          Channel         `gorm:"size:50;not null;uniqueIndex:idx_hub_channel,priority:2" json:"channel"`
	State            DerivationState `gorm:"size:50;not null;default:'pending'" json:"state"`
	ChannelContentID string          `gorm:"size:255" json:"channel_content_id"`
	LastError        string          `gorm:"type:text" json:"last_error"`
	Version          int64           `gorm:"not null;default:1" json:"version"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"deleted_at"`

	Hub HubContent `gorm:"foreignKey:HubID" json:"-"`
}
