package events

import (
	"context"

	"github.com/mediadl/dl-gateway/pkg/types"
)

// Subscription is one observer's view of a job's event channel. Every
// subscriber receives its own copy of every published snapshot (fan-out, not
// queue semantics).
type Subscription interface {
	// Events yields published snapshots. The channel is closed when the
	// subscription is released.
	Events() <-chan types.Snapshot

	// Close releases the subscription. Safe to call more than once.
	Close() error
}

// Bus is a per-job publish/subscribe channel used to push progress snapshots
// to live observers without polling. Publishing to a job with no subscribers
// is not an error; delivery is best effort, latest-value-wins.
type Bus interface {
	Publish(ctx context.Context, jobID string, snap types.Snapshot) error
	Subscribe(ctx context.Context, jobID string) (Subscription, error)
}
