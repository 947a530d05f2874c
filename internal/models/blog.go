package models

import (
	"time"

	"gorm.io/gorm"
)

// BlogPost is the blog channel's authoritative content store. It is owned by
// the blog rendering stack; the derivation subsystem only writes to it through
// the blog channel adapter and checks existence through the same adapter.
type BlogPost struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Slug        string         `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Title       string         `gorm:"not null;size:500" json:"title"`
	Body        string         `gorm:"type:text" json:"body"`
	PublishedAt *time.Time     `json:"published_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}
