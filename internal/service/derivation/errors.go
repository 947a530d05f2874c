package derivation

import (
	"errors"
	"fmt"

	"github.com/yeolmae/hubcast/internal/models"
)

var (
	// ErrNotFound indicates the hub or derivation record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a write with a stale optimistic-concurrency version.
	ErrConflict = errors.New("stale record version")

	// ErrAlreadyInProgress indicates another worker holds the generating state
	// for the same (hub, channel). Expected under concurrent use; not a failure.
	ErrAlreadyInProgress = errors.New("derivation already in progress")

	// ErrInvalidTransition indicates a state machine violation, e.g. a stale
	// completion callback. This is a caller bug, not a retriable condition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrHubArchived indicates the hub was soft-archived and can no longer
	// be derived.
	ErrHubArchived = errors.New("hub is archived")

	// ErrUnknownChannel indicates an unrecognized channel type.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrNoAdapter indicates no adapter is registered for the channel.
	ErrNoAdapter = errors.New("no adapter registered")
)

// AdapterError wraps a channel-specific failure, keeping the channel type and
// the underlying cause. It is persisted on the record's last error and
// surfaced to the caller.
type AdapterError struct {
	Channel models.Channel
	Err     error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("channel %s adapter: %v", e.Channel, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// IsExpected reports whether err is a normal outcome of concurrent use
// (retry or skip) rather than a failure worth logging.
func IsExpected(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyInProgress)
}
