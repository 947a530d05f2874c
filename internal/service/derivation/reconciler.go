package derivation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yeolmae/hubcast/internal/models"
)

// Repair action kinds reported by a reconciliation pass.
const (
	RepairReattachMissingRef  = "reattach_missing_ref"
	RepairDetachDanglingRef   = "detach_dangling_ref"
	RepairDemoteExtraPrimary  = "demote_extra_primary"
	RepairFailStuckGenerating = "fail_stuck_generating"
)

// RepairAction describes one repair performed during a reconciliation pass.
type RepairAction struct {
	Channel          models.Channel `json:"channel"`
	Kind             string         `json:"kind"`
	ChannelContentID string         `json:"channel_content_id,omitempty"`
	Detail           string         `json:"detail,omitempty"`
}

// RepairReport lists the repairs a reconciliation pass performed. A second
// pass over an unchanged hub produces an empty report.
type RepairReport struct {
	HubID   uint           `json:"hub_id"`
	Actions []RepairAction `json:"actions"`
}

func (r *RepairReport) Empty() bool {
	return len(r.Actions) == 0
}

func (r *RepairReport) add(action RepairAction) {
	r.Actions = append(r.Actions, action)
}

// Reconciler restores the link/record/authoritative-store invariants for a
// hub. Every repair goes through the same version check and transactions as
// the live derivation path, so it is safe to run repeatedly and concurrently
// with ongoing Derive calls; a repair that loses a version race is simply
// skipped and picked up by the next pass.
type Reconciler struct {
	db         *gorm.DB
	store      *RecordStore
	registry   *LinkRegistry
	engine     *Engine
	stuckAfter time.Duration
	logger     *zap.Logger
}

// NewReconciler builds a reconciler. stuckAfter bounds how long a record may
// sit in generating before it is forced back to failed for retry; zero
// disables the stuck detector.
func NewReconciler(db *gorm.DB, store *RecordStore, registry *LinkRegistry, engine *Engine, stuckAfter time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		db:         db,
		store:      store,
		registry:   registry,
		engine:     engine,
		stuckAfter: stuckAfter,
		logger:     logger,
	}
}

// Reconcile scans one hub for drift and repairs it deterministically.
func (r *Reconciler) Reconcile(ctx context.Context, hubID uint) (*RepairReport, error) {
	report := &RepairReport{HubID: hubID}

	var hub models.HubContent
	if err := r.db.WithContext(ctx).First(&hub, hubID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: hub %d", ErrNotFound, hubID)
		}
		return nil, fmt.Errorf("failed to load hub: %w", err)
	}
	if hub.Archived() {
		// Archival cascaded over records and refs; nothing left to repair.
		return report, nil
	}

	recs, err := r.store.ListForHub(ctx, hubID)
	if err != nil {
		return nil, err
	}

	recByChannel := make(map[models.Channel]*models.ChannelDerivationRecord, len(recs))
	for i := range recs {
		recByChannel[recs[i].Channel] = &recs[i]
	}

	for _, channel := range models.AllChannels {
		rec := recByChannel[channel]

		if rec != nil {
			if err := r.repairStuckGenerating(ctx, rec, report); err != nil {
				return nil, err
			}
			if err := r.repairMissingRef(ctx, rec, report); err != nil {
				return nil, err
			}
		}

		if err := r.repairDanglingRefs(ctx, hubID, channel, rec, report); err != nil {
			return nil, err
		}
		if err := r.repairExtraPrimaries(ctx, hubID, channel, report); err != nil {
			return nil, err
		}
	}

	if !report.Empty() {
		r.logger.Info("Reconciliation repaired drift",
			zap.Uint("hub_id", hubID),
			zap.Int("actions", len(report.Actions)))
	}
	return report, nil
}

// repairStuckGenerating forces a record that sat in generating past the
// threshold back to failed so an external retry can pick it up.
func (r *Reconciler) repairStuckGenerating(ctx context.Context, rec *models.ChannelDerivationRecord, report *RepairReport) error {
	if r.stuckAfter <= 0 || rec.State != models.StateGenerating {
		return nil
	}
	if time.Since(rec.UpdatedAt) < r.stuckAfter {
		return nil
	}

	if err := Transition(rec, models.StateFailed); err != nil {
		return err
	}
	rec.LastError = "generation timed out"
	if err := r.store.Update(ctx, rec); err != nil {
		if errors.Is(err, ErrConflict) {
			// The live path moved the record on; nothing stuck anymore.
			return nil
		}
		return err
	}

	report.add(RepairAction{
		Channel: rec.Channel,
		Kind:    RepairFailStuckGenerating,
		Detail:  "generation timed out",
	})
	return nil
}

// repairMissingRef re-attaches the ref for a completed record whose content
// id vanished from the registry.
func (r *Reconciler) repairMissingRef(ctx context.Context, rec *models.ChannelDerivationRecord, report *RepairReport) error {
	if rec.State != models.StateCompleted || rec.ChannelContentID == "" {
		return nil
	}

	exists, err := r.registry.HasRef(ctx, rec.HubID, rec.Channel, rec.ChannelContentID)
	if err != nil || exists {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		primary, err := r.registry.PrimaryOfTx(tx, rec.HubID, rec.Channel)
		if err != nil {
			return err
		}
		_, err = r.registry.AttachTx(tx, rec.HubID, rec.Channel, rec.ChannelContentID, primary == "")
		return err
	})
	if err != nil {
		return err
	}

	report.add(RepairAction{
		Channel:          rec.Channel,
		Kind:             RepairReattachMissingRef,
		ChannelContentID: rec.ChannelContentID,
	})
	return nil
}

// repairDanglingRefs detaches refs whose target no longer exists in the
// channel's authoritative store. When the dangling ref is the
// one the completed record points at, the record goes back to failed with
// "target deleted" so the channel is visibly broken and retriable.
func (r *Reconciler) repairDanglingRefs(ctx context.Context, hubID uint, channel models.Channel, rec *models.ChannelDerivationRecord, report *RepairReport) error {
	refs, err := r.registry.Refs(ctx, hubID, channel)
	if err != nil || len(refs) == 0 {
		return err
	}

	adapter, err := r.engine.Adapter(channel)
	if err != nil {
		// No adapter means no way to query the authoritative store; leave
		// the refs for a pass that can verify them.
		return nil
	}

	for _, ref := range refs {
		exists, err := adapter.Exists(ctx, ref.ChannelContentID)
		if err != nil {
			r.logger.Warn("Existence check failed, skipping ref",
				zap.Uint("hub_id", hubID),
				zap.String("channel", string(channel)),
				zap.String("channel_content_id", ref.ChannelContentID),
				zap.Error(err))
			continue
		}
		if exists {
			continue
		}

		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := r.registry.DetachTx(tx, hubID, channel, ref.ChannelContentID); err != nil {
				return err
			}
			if rec != nil && rec.State == models.StateCompleted && rec.ChannelContentID == ref.ChannelContentID {
				// Repair-only move: the completed artifact is gone, so the
				// record re-enters failed and becomes retriable.
				rec.State = models.StateFailed
				rec.LastError = "target deleted"
				rec.ChannelContentID = ""
				return r.store.UpdateTx(tx, rec)
			}
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
				// The live path or a concurrent pass got there first.
				continue
			}
			return err
		}

		report.add(RepairAction{
			Channel:          channel,
			Kind:             RepairDetachDanglingRef,
			ChannelContentID: ref.ChannelContentID,
			Detail:           "target deleted",
		})
	}
	return nil
}

// repairExtraPrimaries keeps only the most-recently-attached primary for a
// (hub, channel) and demotes the rest. The registry API cannot produce this
// state; only writes outside it can.
func (r *Reconciler) repairExtraPrimaries(ctx context.Context, hubID uint, channel models.Channel, report *RepairReport) error {
	refs, err := r.registry.Refs(ctx, hubID, channel)
	if err != nil {
		return err
	}

	var primaries []models.ChannelContentRef
	for _, ref := range refs {
		if ref.IsPrimary {
			primaries = append(primaries, ref)
		}
	}
	if len(primaries) <= 1 {
		return nil
	}

	// Refs are ordered most recently attached first; keep the head.
	for _, extra := range primaries[1:] {
		if err := r.db.WithContext(ctx).Model(&models.ChannelContentRef{}).
			Where("id = ? AND is_primary = ?", extra.ID, true).
			Update("is_primary", false).Error; err != nil {
			return fmt.Errorf("failed to demote extra primary ref: %w", err)
		}
		report.add(RepairAction{
			Channel:          channel,
			Kind:             RepairDemoteExtraPrimary,
			ChannelContentID: extra.ChannelContentID,
		})
	}
	return nil
}
