package events

import (
	"context"
	"sync"

	"github.com/mediadl/dl-gateway/pkg/types"
)

// subscriberBuffer bounds each subscriber's channel. A full buffer drops the
// message for that subscriber only: progress delivery is latest-value-wins.
const subscriberBuffer = 10

// MemoryBus fans out snapshots to in-process subscribers. It serves
// single-process deployments and tests; multi-process deployments use
// RedisBus.
type MemoryBus struct {
	mu        sync.Mutex
	listeners map[string][]*memorySubscription
}

// NewMemoryBus creates an in-process event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{listeners: make(map[string][]*memorySubscription)}
}

// Publish delivers snap to every current subscriber of jobID.
func (b *MemoryBus) Publish(_ context.Context, jobID string, snap types.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.listeners[jobID] {
		offer(sub.ch, snap)
	}
	return nil
}

// offer enqueues without blocking. When the buffer is full the oldest
// snapshot is evicted so the newest one survives; losing intermediate
// samples is fine (latest-value-wins), losing the terminal snapshot would
// leave the subscriber's stream open forever.
func offer(ch chan types.Snapshot, snap types.Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Subscribe registers a new observer for jobID.
func (b *MemoryBus) Subscribe(_ context.Context, jobID string) (Subscription, error) {
	sub := &memorySubscription{
		bus:   b,
		jobID: jobID,
		ch:    make(chan types.Snapshot, subscriberBuffer),
	}

	b.mu.Lock()
	b.listeners[jobID] = append(b.listeners[jobID], sub)
	b.mu.Unlock()

	return sub, nil
}

type memorySubscription struct {
	bus    *MemoryBus
	jobID  string
	ch     chan types.Snapshot
	closed sync.Once
}

func (s *memorySubscription) Events() <-chan types.Snapshot { return s.ch }

func (s *memorySubscription) Close() error {
	s.closed.Do(func() {
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.listeners[s.jobID]
		for i, sub := range subs {
			if sub == s {
				b.listeners[s.jobID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.listeners[s.jobID]) == 0 {
			delete(b.listeners, s.jobID)
		}
		close(s.ch)
	})
	return nil
}
