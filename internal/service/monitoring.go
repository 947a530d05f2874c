package service

import (
	"encoding/json"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yeolmae/hubcast/internal/models"
)

// MonitoringService records operator-visible failures so dashboards can flag
// hubs needing attention.
type MonitoringService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewMonitoringService(db *gorm.DB, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		db:     db,
		logger: logger,
	}
}

// RecordError persists an error log entry.
func (m *MonitoringService) RecordError(level, source, title, message string, options ...ErrorLogOption) error {
	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   title,
		Message: message,
	}

	for _, option := range options {
		option(errorLog)
	}

	return m.db.Create(errorLog).Error
}

// UnresolvedErrors returns the newest unresolved error log entries.
func (m *MonitoringService) UnresolvedErrors(limit int) ([]models.ErrorLog, error) {
	var logs []models.ErrorLog
	err := m.db.Where("resolved = ?", false).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// ErrorLogOption customizes an error log entry.
type ErrorLogOption func(*models.ErrorLog)

// WithChannel tags the entry with a channel type.
func WithChannel(channel models.Channel) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.Channel = channel
	}
}

// WithHub tags the entry with the hub it concerns.
func WithHub(hubID uint) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.HubID = &hubID
	}
}

// WithContext attaches free-form context as JSON.
func WithContext(context map[string]interface{}) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}
