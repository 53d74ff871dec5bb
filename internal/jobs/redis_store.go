package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mediadl/dl-gateway/pkg/types"
)

const jobKeyPrefix = "job:"

// RedisRepository stores job records as JSON under job:<id> with a bounded
// TTL. Every write refreshes the TTL, so a job disappears only after the
// retention window passes with no activity.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRepository creates a Redis-backed job repository.
func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	return &RedisRepository{client: client, ttl: ttl}
}

func jobKey(id string) string { return jobKeyPrefix + id }

// Create persists a new job record.
func (r *RedisRepository) Create(ctx context.Context, job *types.Job) error {
	return r.write(ctx, job)
}

// Update replaces the stored record and refreshes its TTL.
func (r *RedisRepository) Update(ctx context.Context, job *types.Job) error {
	return r.write(ctx, job)
}

func (r *RedisRepository) write(ctx context.Context, job *types.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is empty")
	}
	if !job.Status.Valid() {
		return fmt.Errorf("invalid job status %q", job.Status)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := r.client.Set(ctx, jobKey(job.ID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store job %s: %w", job.ID, err)
	}
	return nil
}

// Get retrieves a job by id, or ErrNotFound if the key is missing or expired.
func (r *RedisRepository) Get(ctx context.Context, id string) (*types.Job, error) {
	raw, err := r.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", id, err)
	}

	var job types.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	if !job.Status.Valid() {
		return nil, fmt.Errorf("stored job %s has invalid status %q", id, job.Status)
	}
	return &job, nil
}

// List scans job:* keys and returns up to limit records, newest first.
func (r *RedisRepository) List(ctx context.Context, limit int) ([]*types.Job, error) {
	var out []*types.Job

	iter := r.client.Scan(ctx, 0, jobKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			// Expired between scan and read.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", iter.Val(), err)
		}
		var job types.Job
		if err := json.Unmarshal(raw, &job); err != nil {
			continue
		}
		out = append(out, &job)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes a job record. Removing an unknown id is a no-op.
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, jobKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return nil
}

// Close is a no-op: the shared Redis client is owned by the caller.
func (r *RedisRepository) Close() error { return nil }
