package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yeolmae/hubcast/internal/config"
	"github.com/yeolmae/hubcast/internal/models"
	"github.com/yeolmae/hubcast/internal/service/channels/blog"
	"github.com/yeolmae/hubcast/internal/service/channels/kakao"
	"github.com/yeolmae/hubcast/internal/service/channels/naverblog"
	"github.com/yeolmae/hubcast/internal/service/channels/sms"
	"github.com/yeolmae/hubcast/internal/service/channels/social"
	"github.com/yeolmae/hubcast/internal/service/derivation"
)

// DerivationService wires the derivation engine, aggregator and reconciler
// together and registers the channel adapters enabled in config.
type DerivationService struct {
	logger            *zap.Logger
	db                *gorm.DB
	config            *config.Config
	engine            *derivation.Engine
	aggregator        *derivation.Aggregator
	reconciler        *derivation.Reconciler
	store             *derivation.RecordStore
	monitoringService *MonitoringService
}

func NewDerivationService(cfg *config.Config, db *gorm.DB, logger *zap.Logger) *DerivationService {
	store := derivation.NewRecordStore(db)
	registry := derivation.NewLinkRegistry(db, logger)
	engine := derivation.NewEngine(db, store, registry, logger)

	stuckAfter, err := time.ParseDuration(cfg.Reconciler.StuckAfter)
	if err != nil {
		logger.Warn("Invalid stuck_after duration, stuck detector disabled",
			zap.String("stuck_after", cfg.Reconciler.StuckAfter))
		stuckAfter = 0
	}

	service := &DerivationService{
		logger:            logger,
		db:                db,
		config:            cfg,
		engine:            engine,
		aggregator:        derivation.NewAggregator(store, registry),
		reconciler:        derivation.NewReconciler(db, store, registry, engine, stuckAfter, logger),
		store:             store,
		monitoringService: NewMonitoringService(db, logger),
	}

	// Register adapters
	service.registerAdapters()

	return service
}

func (s *DerivationService) registerAdapters() {
	if s.config.Channels.Blog.Enabled {
		if err := s.engine.RegisterAdapter(blog.NewAdapter(s.db, s.logger)); err != nil {
			s.logger.Error("Failed to register blog adapter", zap.Error(err))
		}
	}
	if s.config.Channels.SMS.Enabled {
		if err := s.engine.RegisterAdapter(sms.NewAdapter(s.config.Channels.SMS.Config, s.logger)); err != nil {
			s.logger.Error("Failed to register sms adapter", zap.Error(err))
		}
	}
	if s.config.Channels.Kakao.Enabled {
		if err := s.engine.RegisterAdapter(kakao.NewAdapter(s.config.Channels.Kakao.Config, s.logger)); err != nil {
			s.logger.Error("Failed to register kakao adapter", zap.Error(err))
		}
	}
	if s.config.Channels.NaverBlog.Enabled {
		if err := s.engine.RegisterAdapter(naverblog.NewAdapter(s.config.Channels.NaverBlog.Config, s.logger)); err != nil {
			s.logger.Error("Failed to register naver blog adapter", zap.Error(err))
		}
	}
	if s.config.Channels.Social.Enabled {
		if err := s.engine.RegisterAdapter(social.NewAdapter(s.config.Channels.Social.Config, s.logger)); err != nil {
			s.logger.Error("Failed to register social adapter", zap.Error(err))
		}
	}
}

// Aggregator exposes the status aggregator for the hub summary view.
func (s *DerivationService) Aggregator() *derivation.Aggregator {
	return s.aggregator
}

// AvailableChannels returns the channels with a registered adapter.
func (s *DerivationService) AvailableChannels() []models.Channel {
	return s.engine.Channels()
}

// Derive fans one hub out into one channel. Adapter failures are recorded
// for operator attention; expected concurrency outcomes are passed through
// untouched so callers can treat them as skip/retry signals.
func (s *DerivationService) Derive(ctx context.Context, hubID uint, channel models.Channel) (*derivation.DerivationResult, error) {
	result, err := s.engine.Derive(ctx, hubID, channel)
	if err != nil {
		if !derivation.IsExpected(err) {
			s.monitoringService.RecordError("ERROR", "derivation",
				fmt.Sprintf("Derivation did not run for channel %s", channel), err.Error(),
				WithChannel(channel),
				WithHub(hubID))
		}
		return nil, err
	}

	if result.Err != nil {
		s.monitoringService.RecordError("ERROR", "derivation",
			fmt.Sprintf("Derivation failed on channel %s", channel), result.Err.Error(),
			WithChannel(channel),
			WithHub(hubID),
			WithContext(map[string]interface{}{
				"state": result.State,
			}))
	}

	return result, nil
}

// DeriveAll derives the hub into every channel with a registered adapter.
func (s *DerivationService) DeriveAll(ctx context.Context, hubID uint) (map[models.Channel]*derivation.DerivationResult, error) {
	results := make(map[models.Channel]*derivation.DerivationResult)
	for _, channel := range s.engine.Channels() {
		result, err := s.Derive(ctx, hubID, channel)
		if err != nil {
			if derivation.IsExpected(err) {
				s.logger.Info("Skipping channel, derivation already in progress",
					zap.Uint("hub_id", hubID),
					zap.String("channel", string(channel)))
				continue
			}
			return nil, err
		}
		results[channel] = result
	}
	return results, nil
}

// Reconcile runs one idempotent repair pass over a hub.
func (s *DerivationService) Reconcile(ctx context.Context, hubID uint) (*derivation.RepairReport, error) {
	report, err := s.reconciler.Reconcile(ctx, hubID)
	if err != nil {
		return nil, err
	}

	for _, action := range report.Actions {
		s.logger.Info("Repair action",
			zap.Uint("hub_id", hubID),
			zap.String("channel", string(action.Channel)),
			zap.String("kind", action.Kind),
			zap.String("channel_content_id", action.ChannelContentID))
	}
	return report, nil
}

// Summarize builds the per-channel status map for a hub.
func (s *DerivationService) Summarize(ctx context.Context, hubID uint) (map[models.Channel]derivation.ChannelStatus, error) {
	return s.aggregator.Summarize(ctx, hubID)
}

// GetDerivationHistory lists a hub's derivation records.
func (s *DerivationService) GetDerivationHistory(ctx context.Context, hubID uint) ([]models.ChannelDerivationRecord, error) {
	recs, err := s.store.ListForHub(ctx, hubID)
	if err != nil {
		return nil, err
	}
	return recs, nil
}
