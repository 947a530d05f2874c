package models

import (
	"time"

	"gorm.io/gorm"
)

// Channel identifies a distribution surface with its own publication lifecycle.
type Channel string

const (
	ChannelBlog      Channel = "blog"
	ChannelSMS       Channel = "sms"
	ChannelKakao     Channel = "kakao"
	ChannelNaverBlog Channel = "naver_blog"
	ChannelSocial    Channel = "social"
)

// AllChannels lists every recognized channel type.
var AllChannels = []Channel{ChannelBlog, ChannelSMS, ChannelKakao, ChannelNaverBlog, ChannelSocial}

// KnownChannel reports whether c is a recognized channel type.
func KnownChannel(c Channel) bool {
	for _, known := range AllChannels {
		if c == known {
			return true
		}
	}
	return false
}

// HubContent is a planned content item from which channel-specific artifacts
// are derived. The per-channel status summary is never stored on this row; it
// is computed on read from the ChannelDerivationRecords.
type HubContent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"not null;size:500" json:"title"`
	Body        string         `gorm:"type:text" json:"body"`
	ScheduledAt *time.Time     `json:"scheduled_at"`
	Owner       string         `gorm:"size:255" json:"owner"`
	ArchivedAt  *time.Time     `gorm:"index" json:"archived_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// Archived reports whether the hub has been soft-archived.
func (h *HubContent) Archived() bool {
	return h.ArchivedAt != nil
}
