package derivation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yeolmae/hubcast/internal/models"
)

// Engine orchestrates a single channel derivation: it wins the generating
// state through the record store's version check, calls the channel adapter,
// and commits the adapter result and the link registry attach as one
// transaction. At most one derivation per (hub, channel) runs at a time; the
// loser of the race observes ErrAlreadyInProgress and causes no side effects.
type Engine struct {
	db       *gorm.DB
	store    *RecordStore
	registry *LinkRegistry
	adapters map[models.Channel]ChannelAdapter
	logger   *zap.Logger
}

func NewEngine(db *gorm.DB, store *RecordStore, registry *LinkRegistry, logger *zap.Logger) *Engine {
	return &Engine{
		db:       db,
		store:    store,
		registry: registry,
		adapters: make(map[models.Channel]ChannelAdapter),
		logger:   logger,
	}
}

// RegisterAdapter makes an adapter available for its channel.
func (e *Engine) RegisterAdapter(adapter ChannelAdapter) error {
	channel := adapter.Channel()
	if _, exists := e.adapters[channel]; exists {
		return fmt.Errorf("adapter for channel %s already registered", channel)
	}
	e.adapters[channel] = adapter
	e.logger.Info("Channel adapter registered", zap.String("channel", string(channel)))
	return nil
}

// Adapter returns the registered adapter for a channel, or ErrNoAdapter.
func (e *Engine) Adapter(channel models.Channel) (ChannelAdapter, error) {
	adapter, exists := e.adapters[channel]
	if !exists {
		return nil, fmt.Errorf("%w: channel %s", ErrNoAdapter, channel)
	}
	return adapter, nil
}

// Channels returns the channels with a registered adapter.
func (e *Engine) Channels() []models.Channel {
	var channels []models.Channel
	for _, channel := range models.AllChannels {
		if _, ok := e.adapters[channel]; ok {
			channels = append(channels, channel)
		}
	}
	return channels
}

// Derive fans hub content out into one channel. Adapter failures land on the
// record as a failed state with the error text; they are returned inside the
// result, not as the call's error. Retrying is the caller's concern: a later
// Derive on a failed record re-enters generating.
func (e *Engine) Derive(ctx context.Context, hubID uint, channel models.Channel) (*DerivationResult, error) {
	if !models.KnownChannel(channel) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}

	var hub models.HubContent
	if err := e.db.WithContext(ctx).First(&hub, hubID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: hub %d", ErrNotFound, hubID)
		}
		return nil, fmt.Errorf("failed to load hub: %w", err)
	}
	if hub.Archived() {
		return nil, fmt.Errorf("%w: hub %d", ErrHubArchived, hubID)
	}

	adapter, err := e.Adapter(channel)
	if err != nil {
		return nil, err
	}

	// Snapshot before any state change; concurrent edits only affect
	// freshness of the derived artifact.
	snap := SnapshotOf(&hub)

	rec, err := e.claimGenerating(ctx, hubID, channel)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Derivation started",
		zap.Uint("hub_id", hubID),
		zap.String("channel", string(channel)),
		zap.Int64("version", rec.Version))

	contentID, genErr := adapter.Generate(ctx, snap)
	if genErr != nil {
		return e.completeFailed(ctx, rec, &AdapterError{Channel: channel, Err: genErr})
	}
	return e.completeSucceeded(ctx, rec, contentID)
}

// claimGenerating reads (or creates) the record and performs the
// pending|failed -> generating compare-and-swap. Losing the swap means
// another worker got there first.
func (e *Engine) claimGenerating(ctx context.Context, hubID uint, channel models.Channel) (*models.ChannelDerivationRecord, error) {
	rec, err := e.store.Get(ctx, hubID, channel)
	if errors.Is(err, ErrNotFound) {
		rec = &models.ChannelDerivationRecord{
			HubID:   hubID,
			Channel: channel,
			State:   models.StatePending,
		}
		if createErr := e.store.Create(ctx, rec); createErr != nil {
			if !errors.Is(createErr, ErrConflict) {
				return nil, createErr
			}
			// Lost the creation race; pick up the winner's row.
			if rec, err = e.store.Get(ctx, hubID, channel); err != nil {
				return nil, err
			}
		}
	} else if err != nil {
		return nil, err
	}

	if rec.State == models.StateGenerating {
		return nil, fmt.Errorf("%w: hub %d channel %s", ErrAlreadyInProgress, rec.HubID, rec.Channel)
	}
	if err := Transition(rec, models.StateGenerating); err != nil {
		return nil, err
	}
	rec.LastError = ""

	if err := e.store.Update(ctx, rec); err != nil {
		if errors.Is(err, ErrConflict) {
			// Another worker transitioned the record between our read and
			// write; treat identically to losing the CAS outright.
			return nil, fmt.Errorf("%w: hub %d channel %s", ErrAlreadyInProgress, rec.HubID, rec.Channel)
		}
		return nil, err
	}
	return rec, nil
}

// completeSucceeded commits the adapter result: record goes to completed
// with the content id, and the ref is attached, all in one transaction. The
// new ref becomes primary when the channel has none yet (first wins).
func (e *Engine) completeSucceeded(ctx context.Context, rec *models.ChannelDerivationRecord, contentID string) (*DerivationResult, error) {
	if err := Transition(rec, models.StateCompleted); err != nil {
		return nil, err
	}
	rec.ChannelContentID = contentID
	rec.LastError = ""

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.store.UpdateTx(tx, rec); err != nil {
			return err
		}
		primary, err := e.registry.PrimaryOfTx(tx, rec.HubID, rec.Channel)
		if err != nil {
			return err
		}
		_, err = e.registry.AttachTx(tx, rec.HubID, rec.Channel, contentID, primary == "")
		return err
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Derivation completed",
		zap.Uint("hub_id", rec.HubID),
		zap.String("channel", string(rec.Channel)),
		zap.String("channel_content_id", contentID))

	return &DerivationResult{
		HubID:            rec.HubID,
		Channel:          rec.Channel,
		State:            rec.State,
		ChannelContentID: contentID,
	}, nil
}

// completeFailed parks the record in failed with the adapter error visible on
// last_error, leaving it retriable.
func (e *Engine) completeFailed(ctx context.Context, rec *models.ChannelDerivationRecord, aerr *AdapterError) (*DerivationResult, error) {
	if err := Transition(rec, models.StateFailed); err != nil {
		return nil, err
	}
	rec.LastError = aerr.Err.Error()

	if err := e.store.Update(ctx, rec); err != nil {
		return nil, err
	}

	e.logger.Warn("Derivation failed",
		zap.Uint("hub_id", rec.HubID),
		zap.String("channel", string(rec.Channel)),
		zap.Error(aerr.Err))

	return &DerivationResult{
		HubID:   rec.HubID,
		Channel: rec.Channel,
		State:   rec.State,
		Err:     aerr,
	}, nil
}
