package derivation

import (
	"fmt"

	"github.com/yeolmae/hubcast/internal/models"
)

// validTransitions encodes the per-record lifecycle: pending and failed may
// (re-)enter generating, and generating resolves to completed or failed.
var validTransitions = map[models.DerivationState][]models.DerivationState{
	models.StatePending:    {models.StateGenerating},
	models.StateFailed:     {models.StateGenerating},
	models.StateGenerating: {models.StateCompleted, models.StateFailed},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to models.DerivationState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves rec to the target state, rejecting illegal moves. The
// caller still has to persist rec through the store's version check; a stale
// callback loses there even when the transition itself looks legal.
func Transition(rec *models.ChannelDerivationRecord, to models.DerivationState) error {
	if !CanTransition(rec.State, to) {
		return fmt.Errorf("%w: %s -> %s for hub %d channel %s",
			ErrInvalidTransition, rec.State, to, rec.HubID, rec.Channel)
	}
	rec.State = to
	return nil
}
