package storage

import "context"

// Keys used by the pipeline and its sibling features. Each key is an
// independent record in the durable store; the delivery core touches only
// KeyUnsentEvents.
const (
	KeyUnsentEvents         = "telling_unsent_events"
	KeyFirstOpen            = "telling_first_open"
	KeyLastAppVersion       = "telling_last_app_version"
	KeyUpdateSnoozeUntil    = "telling_update_snooze_until"
	KeyUpdateSnoozeVersion  = "telling_update_snooze_version"
)

// Store is the durable string store consumed by the pipeline. All operations
// are best-effort from the pipeline's point of view: callers log failures
// and continue, they never propagate them as fatal.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes the value for key.
	Set(ctx context.Context, key, value string) error

	// GetList returns the ordered sequence stored under key and whether it
	// was present.
	GetList(ctx context.Context, key string) ([]string, bool, error)

	// SetList replaces the ordered sequence stored under key.
	SetList(ctx context.Context, key string, values []string) error
}
