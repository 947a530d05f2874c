package models

import (
	"time"

	"gorm.io/gorm"
)

// ChannelContentRef links a hub to a concrete channel content record. A hub
// may hold at most one primary ref per channel plus any number of secondary
// refs (variants, historical posts).
type ChannelContentRef struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	HubID            uint           `gorm:"not null;index:idx_ref_hub_channel,priority:1" json:"hub_id"`
	Channel          Channel        `gorm:"size:50;not null;index:idx_ref_hub_channel,priority:2" json:"channel"`
	ChannelContentID string         `gorm:"size:255;not null" json:"channel_content_id"`
	IsPrimary        bool           `gorm:"not null;default:false" json:"is_primary"`
	AttachedAt       time.Time      `gorm:"not null" json:"attached_at"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at"`

	Hub HubContent `gorm:"foreignKey:HubID" json:"-"`
}
