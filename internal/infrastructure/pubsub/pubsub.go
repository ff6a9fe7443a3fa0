// Package pubsub implements the push side of the metrics/stream surface
// (spec.md §6) over Redis pub/sub, grounded on the teacher's
// infrastructure/pubsub.RedisPubSub. The teacher publishes protobuf
// notification events; this rework publishes JSON-encoded metrics
// snapshots and drops the protobuf coupling since the sync engine has no
// other use for it.
package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Publisher sends a payload to every current subscriber of channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Subscriber opens a channel subscription, returning a receive-only
// stream of payloads and a closer that unsubscribes and releases the
// connection. The returned channel is closed once the subscription ends.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
}

// RedisPubSub implements both Publisher and Subscriber over a shared
// *redis.Client, the same pairing the teacher's RedisPubSub used for
// notification fan-out.
type RedisPubSub struct {
	client *redis.Client
}

func NewRedisPubSub(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{client: client}
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, err
	}

	out := make(chan []byte, 16)
	redisCh := sub.Channel()
	go func() {
		defer close(out)
		for msg := range redisCh {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, sub.Close, nil
}

// NoOpPubSub satisfies Publisher and Subscriber without a Redis
// dependency, for local runs and tests where the streaming surface is
// unused.
type NoOpPubSub struct{}

func (NoOpPubSub) Publish(ctx context.Context, channel string, payload []byte) error { return nil }

func (NoOpPubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	ch := make(chan []byte)
	return ch, func() error { return nil }, nil
}
