package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mediadl/dl-gateway/internal/queue"
	"github.com/mediadl/dl-gateway/pkg/types"
)

type stubRepo struct {
	mu   sync.Mutex
	jobs map[string]*types.Job
}

func newStubRepo() *stubRepo {
	return &stubRepo{jobs: make(map[string]*types.Job)}
}

func (r *stubRepo) Create(ctx context.Context, job *types.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *stubRepo) Get(ctx context.Context, id string) (*types.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *stubRepo) Update(ctx context.Context, job *types.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *stubRepo) List(ctx context.Context, limit int) ([]*types.Job, error) { return nil, nil }
func (r *stubRepo) Delete(ctx context.Context, id string) error               { return nil }
func (r *stubRepo) Close() error                                              { return nil }

type stubPublisher struct {
	mu       sync.Mutex
	messages []queue.TaskMessage
	failures int // fail this many leading Publish calls
}

func (p *stubPublisher) Publish(ctx context.Context, msg queue.TaskMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *stubPublisher) Close() error { return nil }

func TestSubmitCreatesAndDispatches(t *testing.T) {
	repo := newStubRepo()
	pub := &stubPublisher{}
	svc := NewService(repo, pub)

	job, err := svc.Submit(context.Background(), "https://example.com/v/1", "137", "A title", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if job.Status != types.JobStatusPending {
		t.Errorf("status = %q, want pending", job.Status)
	}
	if job.ID == "" || job.DispatchToken == "" {
		t.Errorf("job missing id or dispatch token: %+v", job)
	}

	stored, err := repo.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.SourceURL != "https://example.com/v/1" || stored.FormatID != "137" {
		t.Errorf("stored job = %+v", stored)
	}

	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.JobID != job.ID || msg.DispatchToken != job.DispatchToken {
		t.Errorf("message = %+v", msg)
	}
}

func TestSubmitRetriesTransientPublishFailure(t *testing.T) {
	repo := newStubRepo()
	pub := &stubPublisher{failures: 2}
	svc := NewService(repo, pub)

	job, err := svc.Submit(context.Background(), "https://example.com/v/2", "", "", "")
	if err != nil {
		t.Fatalf("Submit should retry transient failures: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.messages))
	}
	if job.Status != types.JobStatusPending {
		t.Errorf("status = %q, want pending", job.Status)
	}
}

func TestSubmitMarksJobFailedWhenDispatchFails(t *testing.T) {
	repo := newStubRepo()
	pub := &stubPublisher{failures: 100}
	svc := NewService(repo, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel after the first retry backoff kicks in so the test stays fast.
	go func() {
		cancel()
	}()

	_, err := svc.Submit(ctx, "https://example.com/v/3", "", "", "")
	if err == nil {
		t.Fatal("Submit should fail when dispatch never succeeds")
	}

	// The pending record must have been flipped to failed, not deleted.
	var failed *types.Job
	repo.mu.Lock()
	for _, j := range repo.jobs {
		failed = j
	}
	repo.mu.Unlock()

	if failed == nil {
		t.Fatal("job record missing after dispatch failure")
	}
	if failed.Status != types.JobStatusFailed {
		t.Errorf("status = %q, want failed", failed.Status)
	}
	if failed.ErrorDetail == "" {
		t.Error("error detail not recorded")
	}
}
