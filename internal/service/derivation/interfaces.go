package derivation

import (
	"context"
	"time"

	"github.com/yeolmae/hubcast/internal/models"
)

// HubSnapshot is the read-only view of hub content handed to channel
// adapters. It is taken once at Derive invocation time; concurrent edits to
// the hub only affect freshness of the derived artifact, never consistency.
type HubSnapshot struct {
	HubID       uint       `json:"hub_id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	Owner       string     `json:"owner"`
}

// SnapshotOf captures the adapter-facing fields of a hub.
func SnapshotOf(hub *models.HubContent) HubSnapshot {
	return HubSnapshot{
		HubID:       hub.ID,
		Title:       hub.Title,
		Body:        hub.Body,
		ScheduledAt: hub.ScheduledAt,
		Owner:       hub.Owner,
	}
}

// ChannelAdapter produces channel-specific artifacts from hub content. One
// implementation exists per channel type; adapters may be slow, rate-limited,
// or permanently failing, and the engine tolerates all of that.
type ChannelAdapter interface {
	// Channel returns the channel type this adapter serves.
	Channel() models.Channel

	// Generate publishes a channel artifact for the snapshot and returns the
	// channel content id. This is the only call in the derivation path that
	// may block on external I/O.
	Generate(ctx context.Context, snap HubSnapshot) (string, error)

	// Exists reports whether the channel content id still exists in the
	// channel's authoritative store.
	Exists(ctx context.Context, channelContentID string) (bool, error)
}

// DerivationResult is the outcome of a single Derive call. Err carries the
// adapter failure when State is failed; infrastructure problems are returned
// as the call's error instead.
type DerivationResult struct {
	HubID            uint                   `json:"hub_id"`
	Channel          models.Channel         `json:"channel"`
	State            models.DerivationState `json:"state"`
	ChannelContentID string                 `json:"channel_content_id,omitempty"`
	Err              error                  `json:"-"`
}

// ChannelStatus is one channel's entry in a hub summary.
type ChannelStatus struct {
	State            models.DerivationState `json:"state"`
	ChannelContentID string                 `json:"channel_content_id,omitempty"`
	LastError        string                 `json:"last_error,omitempty"`
	UpdatedAt        time.Time              `json:"updated_at"`
}
