package derivation

import (
	"context"

	"github.com/yeolmae/hubcast/internal/models"
)

// Aggregator builds the hub-level channel status summary. It is a pure
// read-through projection over the derivation records and the link registry,
// never an independently written field, so it cannot drift from the records.
type Aggregator struct {
	store    *RecordStore
	registry *LinkRegistry
}

func NewAggregator(store *RecordStore, registry *LinkRegistry) *Aggregator {
	return &Aggregator{store: store, registry: registry}
}

// Summarize folds every derivation record for the hub into a per-channel
// status map. A completed record whose primary ref is missing is reported as
// completed_orphaned, surfacing the drift the reconciliation pass repairs.
func (a *Aggregator) Summarize(ctx context.Context, hubID uint) (map[models.Channel]ChannelStatus, error) {
	recs, err := a.store.ListForHub(ctx, hubID)
	if err != nil {
		return nil, err
	}

	summary := make(map[models.Channel]ChannelStatus, len(recs))
	for _, rec := range recs {
		status := ChannelStatus{
			State:            rec.State,
			ChannelContentID: rec.ChannelContentID,
			LastError:        rec.LastError,
			UpdatedAt:        rec.UpdatedAt,
		}

		if rec.State == models.StateCompleted {
			primary, err := a.registry.PrimaryOf(ctx, hubID, rec.Channel)
			if err != nil {
				return nil, err
			}
			if primary == "" {
				status.State = models.StateCompletedOrphaned
			}
		}

		summary[rec.Channel] = status
	}
	return summary, nil
}
