package jobs

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/mediadl/dl-gateway/pkg/client/redis"
	"github.com/mediadl/dl-gateway/pkg/types"
)

// Requires a running Redis; set DL_REDIS_URL to run.
func newTestRedisRepo(t *testing.T) *RedisRepository {
	t.Helper()
	url := os.Getenv("DL_REDIS_URL")
	if url == "" {
		t.Skipf("Skipping Redis test: DL_REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := redisclient.NewClient(ctx, url)
	if err != nil {
		t.Fatalf("failed to connect to Redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return NewRedisRepository(client, time.Minute)
}

func TestRedisRepositoryLifecycle(t *testing.T) {
	repo := newTestRedisRepo(t)
	ctx := context.Background()

	job := &types.Job{
		ID:        uuid.NewString(),
		SourceURL: "https://example.com/v/1",
		FormatID:  "137",
		Status:    types.JobStatusPending,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	defer repo.Delete(ctx, job.ID)

	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SourceURL != job.SourceURL || got.Status != types.JobStatusPending {
		t.Errorf("Get returned %+v", got)
	}

	got.Status = types.JobStatusCompleted
	got.ProgressPercent = 100.0
	got.OutputFilename = "clip.mp4"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}

	updated, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if updated.Status != types.JobStatusCompleted || updated.OutputFilename != "clip.mp4" {
		t.Errorf("updated job = %+v", updated)
	}

	if err := repo.Delete(ctx, job.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestRedisRepositoryUnknownJob(t *testing.T) {
	repo := newTestRedisRepo(t)
	if _, err := repo.Get(context.Background(), "missing-"+uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestRedisRepositoryRejectsInvalidStatus(t *testing.T) {
	repo := newTestRedisRepo(t)
	job := &types.Job{
		ID:        uuid.NewString(),
		SourceURL: "https://example.com/v/2",
		Status:    types.JobStatus("exploded"),
		CreatedAt: time.Now(),
	}
	if err := repo.Create(context.Background(), job); err == nil {
		repo.Delete(context.Background(), job.ID)
		t.Error("Create should reject an invalid status")
	}
}
