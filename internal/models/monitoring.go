package models

import (
	"time"
)

// ErrorLog records operator-visible failures (adapter errors, repair actions
// that keep firing) so dashboards can flag hubs needing attention.
type ErrorLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Level      string     `gorm:"size:20;not null;index" json:"level"`
	Source     string     `gorm:"size:100;not null;index" json:"source"`
	Channel    Channel    `gorm:"size:50;index" json:"channel"`
	HubID      *uint      `gorm:"index" json:"hub_id"`
	Title      string     `gorm:"size:500;not null" json:"title"`
	Message    string     `gorm:"type:text;not null" json:"message"`
	Context    string     `gorm:"type:jsonb" json:"context"`
	Resolved   bool       `gorm:"default:false;index" json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Hub *HubContent `gorm:"foreignKey:HubID" json:"hub,omitempty"`
}
