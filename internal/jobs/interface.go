package jobs

import (
	"context"
	"errors"

	"github.com/mediadl/dl-gateway/pkg/types"
)

// ErrNotFound is returned when a job id is unknown or its record has expired.
// Callers must be able to distinguish this from transport failures.
var ErrNotFound = errors.New("job not found")

// Repository defines the storage contract for job records. Two backings
// exist: the Redis repository (transient, TTL-bounded) and the PostgreSQL
// repository (relational, retention enforced by a background sweep). The rest
// of the system never depends on which one is configured.
type Repository interface {
	// Create persists a new job record.
	Create(ctx context.Context, job *types.Job) error

	// Get retrieves a job by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*types.Job, error)

	// Update replaces the stored record for job.ID and refreshes its
	// retention window.
	Update(ctx context.Context, job *types.Job) error

	// List returns up to limit records, most recent first. Listing is best
	// effort: a record may expire between enumeration and read.
	List(ctx context.Context, limit int) ([]*types.Job, error)

	// Delete removes a job record. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying connections.
	Close() error
}
