package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mediadl/dl-gateway/pkg/types"
)

// ErrNoSnapshot is returned when no snapshot exists for a job, either because
// nothing was reported yet or because the key expired.
var ErrNoSnapshot = errors.New("no progress snapshot")

const snapshotKeyPrefix = "progress:"

// SnapshotStore holds the latest progress snapshot per job. Each write
// replaces the previous snapshot and refreshes its TTL.
type SnapshotStore interface {
	Set(ctx context.Context, snap types.Snapshot) error
	Get(ctx context.Context, jobID string) (*types.Snapshot, error)
	Delete(ctx context.Context, jobID string) error
}

// RedisSnapshotStore keeps snapshots under progress:<id>.
type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotStore creates a Redis-backed snapshot store.
func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, ttl: ttl}
}

func snapshotKey(jobID string) string { return snapshotKeyPrefix + jobID }

// Set overwrites the job's snapshot and refreshes the TTL.
func (s *RedisSnapshotStore) Set(ctx context.Context, snap types.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(snap.JobID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot for job %s: %w", snap.JobID, err)
	}
	return nil
}

// Get returns the latest snapshot, or ErrNoSnapshot.
func (s *RedisSnapshotStore) Get(ctx context.Context, jobID string) (*types.Snapshot, error) {
	raw, err := s.client.Get(ctx, snapshotKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot for job %s: %w", jobID, err)
	}

	var snap types.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for job %s: %w", jobID, err)
	}
	return &snap, nil
}

// Delete removes the job's snapshot.
func (s *RedisSnapshotStore) Delete(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, snapshotKey(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot for job %s: %w", jobID, err)
	}
	return nil
}
