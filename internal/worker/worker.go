// Package worker executes download tasks delivered from the queue and drives
// job records through their lifecycle.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mediadl/dl-gateway/internal/engine"
	"github.com/mediadl/dl-gateway/internal/events"
	"github.com/mediadl/dl-gateway/internal/jobs"
	"github.com/mediadl/dl-gateway/internal/metrics"
	"github.com/mediadl/dl-gateway/internal/progress"
	"github.com/mediadl/dl-gateway/internal/queue"
	"github.com/mediadl/dl-gateway/pkg/types"
)

// Options tunes per-task behavior.
type Options struct {
	// ThrottleInterval caps how often in-transfer progress is recorded.
	ThrottleInterval time.Duration
	// PreserveProgressOnFailure keeps the last known percentage on failed
	// jobs instead of resetting it to zero.
	PreserveProgressOnFailure bool
}

// Worker turns queued task messages into finished downloads.
type Worker struct {
	repo  jobs.Repository
	snaps progress.SnapshotStore
	bus   events.Bus
	eng   engine.Engine
	dir   string
	opts  Options

	now func() time.Time
}

// New assembles a worker. dir is the output directory downloads land in.
func New(repo jobs.Repository, snaps progress.SnapshotStore, bus events.Bus, eng engine.Engine, dir string, opts Options) *Worker {
	if opts.ThrottleInterval <= 0 {
		opts.ThrottleInterval = 500 * time.Millisecond
	}
	return &Worker{
		repo:  repo,
		snaps: snaps,
		bus:   bus,
		eng:   eng,
		dir:   dir,
		opts:  opts,
		now:   time.Now,
	}
}

// Handle processes one delivered task. It returns an error only for
// infrastructure failures where redelivery can help; domain failures are
// recorded on the job and acknowledged, since retrying them blindly would
// just fail again.
func (w *Worker) Handle(ctx context.Context, msg queue.TaskMessage) error {
	log := slog.With("job", msg.JobID)

	job, err := w.repo.Get(ctx, msg.JobID)
	if err == jobs.ErrNotFound {
		// The record expired or was deleted while the task sat in the
		// queue. Nothing left to do.
		log.Warn("Dropping task for unknown job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	// Redelivered tasks for finished jobs are acknowledged without rerun.
	if job.Status.IsTerminal() {
		log.Info("Skipping redelivered task for terminal job", "status", job.Status)
		return nil
	}

	// A resubmitted job carries a fresh dispatch token; deliveries from the
	// old dispatch are stale.
	if msg.DispatchToken != "" && job.DispatchToken != "" && msg.DispatchToken != job.DispatchToken {
		log.Info("Skipping stale delivery", "token", msg.DispatchToken)
		return nil
	}

	job.Status = types.JobStatusRunning
	if err := w.repo.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	started := w.now()
	reporter := progress.NewReporter(job.ID, w.snaps, w.bus, w.opts.ThrottleInterval)

	var lastPercent atomic.Value
	lastPercent.Store(0.0)

	result, err := w.eng.Download(ctx, engine.DownloadRequest{
		JobID:     job.ID,
		URL:       job.SourceURL,
		FormatID:  job.FormatID,
		OutputDir: w.dir,
	}, func(ev engine.ProgressEvent) {
		if ev.Finished {
			w.markFinalizing(ctx, job, reporter, log)
			return
		}
		if ev.TotalBytes > 0 {
			lastPercent.Store(float64(ev.DownloadedBytes) / float64(ev.TotalBytes) * 100)
		}
		reporter.Downloading(ctx, ev.DownloadedBytes, ev.TotalBytes, ev.Speed, ev.ETASeconds)
	})

	metrics.DownloadDuration.Observe(w.now().Sub(started).Seconds())

	if err != nil {
		w.markFailed(ctx, job, reporter, err, lastPercent.Load().(float64), log)
		return nil
	}

	w.markCompleted(ctx, job, reporter, result, log)
	return nil
}

func (w *Worker) markFinalizing(ctx context.Context, job *types.Job, reporter *progress.Reporter, log *slog.Logger) {
	job.Status = types.JobStatusFinalizing
	if err := w.repo.Update(ctx, job); err != nil {
		log.Warn("Failed to mark job finalizing", "error", err)
	}
	reporter.Finalizing(ctx)
}

func (w *Worker) markCompleted(ctx context.Context, job *types.Job, reporter *progress.Reporter, result *engine.DownloadResult, log *slog.Logger) {
	job.Status = types.JobStatusCompleted
	job.ProgressPercent = 100.0
	job.OutputFilename = result.Filename
	job.OutputSizeBytes = result.SizeBytes
	if result.Title != "" {
		job.Title = result.Title
	}
	now := w.now()
	job.CompletedAt = &now

	if err := w.repo.Update(ctx, job); err != nil {
		log.Error("Failed to mark job completed", "error", err)
	}
	reporter.Completed(ctx, result.Filename)
	metrics.JobsCompleted.Inc()
	log.Info("Download completed", "filename", result.Filename, "bytes", result.SizeBytes)
}

func (w *Worker) markFailed(ctx context.Context, job *types.Job, reporter *progress.Reporter, cause error, lastPercent float64, log *slog.Logger) {
	percent := 0.0
	if w.opts.PreserveProgressOnFailure {
		percent = lastPercent
	}

	job.Status = types.JobStatusFailed
	job.ProgressPercent = percent
	job.ErrorDetail = types.TruncateError(cause.Error())
	now := w.now()
	job.CompletedAt = &now

	if err := w.repo.Update(ctx, job); err != nil {
		log.Error("Failed to mark job failed", "error", err)
	}
	reporter.Failed(ctx, cause.Error(), percent)
	metrics.JobsFailed.Inc()
	log.Error("Download failed", "error", cause)
}
