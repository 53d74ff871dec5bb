package progress

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/mediadl/dl-gateway/internal/events"
	"github.com/mediadl/dl-gateway/pkg/types"
)

// finalizingPercent is reported once the transfer is done but the output is
// still being post-processed. The last percentage point is reserved for true
// completion so clients never see 100% before the file exists.
const finalizingPercent = 99.0

// Reporter normalizes raw engine progress events for one job, persists each
// accepted snapshot and publishes it on the job's event channel. Persist and
// publish are independent operations; consumers must not assume atomicity
// between the two.
//
// In-transfer events are throttled: at most one snapshot per interval, with
// only the elapsed-time gate deciding which events are written. Finalizing
// and terminal events always pass.
type Reporter struct {
	jobID    string
	store    SnapshotStore
	bus      events.Bus
	interval time.Duration

	now       func() time.Time
	lastWrite time.Time
}

// NewReporter creates a reporter for one job execution.
func NewReporter(jobID string, store SnapshotStore, bus events.Bus, interval time.Duration) *Reporter {
	return &Reporter{
		jobID:    jobID,
		store:    store,
		bus:      bus,
		interval: interval,
		now:      time.Now,
	}
}

// Downloading records an in-transfer sample. Percent is derived from
// downloaded/total when the total is known and positive; unknown-size
// transfers report zero rather than interpolating.
func (r *Reporter) Downloading(ctx context.Context, downloaded, total int64, speed float64, etaSeconds int64) {
	now := r.now()
	if now.Sub(r.lastWrite) < r.interval {
		return
	}
	r.lastWrite = now

	var pct float64
	if total > 0 {
		pct = float64(downloaded) / float64(total) * 100
		pct = math.Round(pct*10) / 10
	}

	r.emit(ctx, types.Snapshot{
		JobID:           r.jobID,
		Status:          types.JobStatusRunning,
		ProgressPercent: pct,
		DownloadedBytes: downloaded,
		TotalBytes:      total,
		Speed:           speed,
		ETASeconds:      etaSeconds,
	})
}

// Finalizing records the engine's "transfer finished" signal: bytes are on
// disk but merging/remuxing may still be running.
func (r *Reporter) Finalizing(ctx context.Context) {
	r.emit(ctx, types.Snapshot{
		JobID:           r.jobID,
		Status:          types.JobStatusFinalizing,
		ProgressPercent: finalizingPercent,
	})
}

// Completed records the terminal success snapshot.
func (r *Reporter) Completed(ctx context.Context, filename string) {
	r.emit(ctx, types.Snapshot{
		JobID:           r.jobID,
		Status:          types.JobStatusCompleted,
		ProgressPercent: 100.0,
		OutputFilename:  filename,
	})
}

// Failed records the terminal failure snapshot. The percentage carried here
// is the policy decision of the caller (reset to zero or preserved).
func (r *Reporter) Failed(ctx context.Context, detail string, percent float64) {
	r.emit(ctx, types.Snapshot{
		JobID:           r.jobID,
		Status:          types.JobStatusFailed,
		ProgressPercent: percent,
		ErrorDetail:     types.TruncateError(detail),
	})
}

func (r *Reporter) emit(ctx context.Context, snap types.Snapshot) {
	if err := r.store.Set(ctx, snap); err != nil {
		slog.Warn("Failed to persist progress snapshot", "job", r.jobID, "error", err)
	}
	if err := r.bus.Publish(ctx, r.jobID, snap); err != nil {
		slog.Warn("Failed to publish progress snapshot", "job", r.jobID, "error", err)
	}
}
