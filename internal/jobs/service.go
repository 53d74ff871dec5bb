package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mediadl/dl-gateway/internal/metrics"
	"github.com/mediadl/dl-gateway/internal/queue"
	"github.com/mediadl/dl-gateway/pkg/types"
)

// Service coordinates job creation and dispatch to the task queue.
type Service struct {
	repo      Repository
	publisher queue.Publisher

	now func() time.Time
}

// NewService wires a repository and a task publisher.
func NewService(repo Repository, publisher queue.Publisher) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
	}
}

// Submit records a new pending job and enqueues its task. The record is
// written before the enqueue so the client always gets a queryable job; if
// dispatch then fails the record is flipped to failed rather than deleted,
// so the failure stays visible.
func (s *Service) Submit(ctx context.Context, sourceURL, formatID, title, thumbnail string) (*types.Job, error) {
	job := &types.Job{
		ID:            uuid.NewString(),
		SourceURL:     sourceURL,
		FormatID:      formatID,
		Title:         title,
		Thumbnail:     thumbnail,
		Status:        types.JobStatusPending,
		DispatchToken: uuid.NewString(),
		CreatedAt:     s.now(),
	}

	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	msg := queue.TaskMessage{
		JobID:         job.ID,
		SourceURL:     job.SourceURL,
		FormatID:      job.FormatID,
		DispatchToken: job.DispatchToken,
	}
	if err := s.publishWithRetry(ctx, msg); err != nil {
		job.Status = types.JobStatusFailed
		job.ErrorDetail = types.TruncateError(fmt.Sprintf("failed to enqueue download task: %v", err))
		if updateErr := s.repo.Update(ctx, job); updateErr != nil {
			return nil, fmt.Errorf("failed to enqueue task and record failure: %w", err)
		}
		return nil, fmt.Errorf("failed to enqueue download task: %w", err)
	}

	metrics.JobsSubmitted.Inc()
	return job, nil
}

func (s *Service) publishWithRetry(ctx context.Context, msg queue.TaskMessage) error {
	var (
		baseDelay   = 500 * time.Millisecond
		maxDelay    = 10 * time.Second
		maxAttempts = 5
	)

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.publisher.Publish(ctx, msg); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == maxAttempts {
			break
		}

		backoff := baseDelay << (attempt - 1)
		if backoff > maxDelay {
			backoff = maxDelay
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
