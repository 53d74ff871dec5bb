package events

import (
	"context"
	"testing"

	"github.com/mediadl/dl-gateway/pkg/types"
)

func TestMemoryBusFanOut(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	sub1, err := bus.Subscribe(ctx, "j1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub1.Close()
	sub2, err := bus.Subscribe(ctx, "j1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub2.Close()

	other, err := bus.Subscribe(ctx, "j2")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer other.Close()

	snap := types.Snapshot{JobID: "j1", Status: types.JobStatusRunning, ProgressPercent: 42.0}
	if err := bus.Publish(ctx, "j1", snap); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i, sub := range []Subscription{sub1, sub2} {
		select {
		case got := <-sub.Events():
			if got.ProgressPercent != 42.0 {
				t.Errorf("subscriber %d got %+v", i, got)
			}
		default:
			t.Errorf("subscriber %d received nothing", i)
		}
	}

	select {
	case got := <-other.Events():
		t.Errorf("subscriber of another job received %+v", got)
	default:
	}
}

func TestMemoryBusPublishWithoutSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	if err := bus.Publish(context.Background(), "nobody", types.Snapshot{JobID: "nobody"}); err != nil {
		t.Fatalf("Publish with no subscribers: %v", err)
	}
}

func TestMemoryBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "j1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	// Publish past the buffer; the excess is dropped, not blocking.
	for i := 0; i < subscriberBuffer*2; i++ {
		if err := bus.Publish(ctx, "j1", types.Snapshot{JobID: "j1", ProgressPercent: float64(i)}); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	var received []types.Snapshot
	for {
		select {
		case snap := <-sub.Events():
			received = append(received, snap)
			continue
		default:
		}
		break
	}
	if len(received) != subscriberBuffer {
		t.Fatalf("received %d snapshots, want %d buffered", len(received), subscriberBuffer)
	}
	// Overflow evicts the oldest entries, so the newest ones survive.
	last := received[len(received)-1]
	if last.ProgressPercent != float64(subscriberBuffer*2-1) {
		t.Errorf("last buffered percent = %v, want %v", last.ProgressPercent, subscriberBuffer*2-1)
	}
}

func TestMemoryBusTerminalSnapshotSurvivesFullBuffer(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "j1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	// Fill the buffer with in-transfer samples the subscriber never reads,
	// then publish the terminal snapshot.
	for i := 0; i < subscriberBuffer; i++ {
		if err := bus.Publish(ctx, "j1", types.Snapshot{
			JobID:           "j1",
			Status:          types.JobStatusRunning,
			ProgressPercent: float64(i),
		}); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}
	if err := bus.Publish(ctx, "j1", types.Snapshot{
		JobID:           "j1",
		Status:          types.JobStatusCompleted,
		ProgressPercent: 100.0,
	}); err != nil {
		t.Fatalf("Publish terminal: %v", err)
	}

	var last types.Snapshot
	for {
		select {
		case snap := <-sub.Events():
			last = snap
			continue
		default:
		}
		break
	}
	if !last.Status.IsTerminal() {
		t.Errorf("last delivered snapshot = %+v, terminal snapshot was dropped", last)
	}
}

func TestMemoryBusCloseReleasesSubscription(t *testing.T) {
	bus := NewMemoryBus()
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "j1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Closing twice is safe.
	if err := sub.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, open := <-sub.Events(); open {
		t.Error("events channel still open after Close")
	}

	bus.mu.Lock()
	_, exists := bus.listeners["j1"]
	bus.mu.Unlock()
	if exists {
		t.Error("listener registry still holds the closed subscription")
	}

	// Publishing after the last subscriber left is still fine.
	if err := bus.Publish(ctx, "j1", types.Snapshot{JobID: "j1"}); err != nil {
		t.Fatalf("Publish after close: %v", err)
	}
}
