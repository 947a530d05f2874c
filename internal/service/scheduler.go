package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yeolmae/hubcast/internal/config"
	"github.com/yeolmae/hubcast/internal/models"
	"github.com/yeolmae/hubcast/internal/service/derivation"
)

// Scheduler runs the periodic reconciliation sweep: every interval it walks a
// batch of live hubs and lets the reconciler repair any drift.
type Scheduler struct {
	config            *config.ReconcilerConfig
	logger            *zap.Logger
	db                *gorm.DB
	derivationService *DerivationService
	ticker            *time.Ticker
	stopCh            chan struct{}
}

func NewScheduler(cfg *config.ReconcilerConfig, db *gorm.DB, logger *zap.Logger, derivationService *DerivationService) *Scheduler {
	return &Scheduler{
		config:            cfg,
		logger:            logger,
		db:                db,
		derivationService: derivationService,
		stopCh:            make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Reconciliation sweep is disabled")
		return nil
	}

	interval, err := time.ParseDuration(s.config.SweepInterval)
	if err != nil {
		s.logger.Error("Invalid sweep interval", zap.String("interval", s.config.SweepInterval), zap.Error(err))
		return err
	}

	s.logger.Info("Starting reconciliation sweep", zap.String("sweep_interval", s.config.SweepInterval))

	s.ticker = time.NewTicker(interval)

	// Run first sweep immediately
	go func() {
		s.logger.Info("Running initial reconciliation sweep")
		if err := s.runSweep(ctx); err != nil {
			s.logger.Error("Initial reconciliation sweep failed", zap.Error(err))
		}
	}()

	// Start periodic sweeps
	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.logger.Info("Running scheduled reconciliation sweep")
				if err := s.runSweep(ctx); err != nil {
					s.logger.Error("Scheduled reconciliation sweep failed", zap.Error(err))
				}
			case <-s.stopCh:
				s.logger.Info("Reconciliation sweep stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Reconciliation sweep context cancelled")
				return
			}
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.logger.Info("Scheduler shutdown completed")
}

func (s *Scheduler) runSweep(ctx context.Context) error {
	start := time.Now()

	var hubs []models.HubContent
	if err := s.db.WithContext(ctx).
		Where("archived_at IS NULL").
		Order("updated_at DESC").
		Limit(s.config.BatchSize).
		Find(&hubs).Error; err != nil {
		return err
	}

	repaired := 0
	for _, hub := range hubs {
		report, err := s.derivationService.Reconcile(ctx, hub.ID)
		if err != nil {
			// A hub archived mid-sweep is fine; anything else is logged and
			// the sweep moves on to the next hub.
			if errors.Is(err, derivation.ErrNotFound) {
				continue
			}
			s.logger.Error("Reconciliation failed for hub",
				zap.Uint("hub_id", hub.ID),
				zap.Error(err))
			continue
		}
		if !report.Empty() {
			repaired++
		}
	}

	s.logger.Info("Reconciliation sweep completed",
		zap.Int("hubs_scanned", len(hubs)),
		zap.Int("hubs_repaired", repaired),
		zap.Duration("duration", time.Since(start)))
	return nil
}
