package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/mediadl/dl-gateway/pkg/types"
)

const channelPrefix = "progress-channel:"

// RedisBus implements Bus on Redis pub/sub with one channel per job id.
// Redis handles the fan-out: every subscriber of a channel receives every
// message published while it is subscribed.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus creates a Redis-backed event bus.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

func channelName(jobID string) string { return channelPrefix + jobID }

// Publish sends snap to the job's channel. Snapshots delivered to nobody are
// simply dropped by Redis; that is the intended best-effort semantics.
func (b *RedisBus) Publish(ctx context.Context, jobID string, snap types.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := b.client.Publish(ctx, channelName(jobID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish progress for job %s: %w", jobID, err)
	}
	return nil
}

// Subscribe opens a dedicated pub/sub connection for jobID. Subscribing to a
// job the store has never heard of is allowed: the subscription simply stays
// silent until something is published.
func (b *RedisBus) Subscribe(ctx context.Context, jobID string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channelName(jobID))

	// Force the SUBSCRIBE round trip so a broken connection surfaces here
	// rather than as a silent stream.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to job %s: %w", jobID, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan types.Snapshot, subscriberBuffer),
	}
	go sub.pump(pubsub.Channel())

	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan types.Snapshot
	closed sync.Once
}

func (s *redisSubscription) pump(in <-chan *redis.Message) {
	defer close(s.out)
	for msg := range in {
		var snap types.Snapshot
		if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
			slog.Warn("Dropping malformed progress message", "channel", msg.Channel, "error", err)
			continue
		}
		offer(s.out, snap)
	}
}

func (s *redisSubscription) Events() <-chan types.Snapshot { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.closed.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}
