package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/redis/go-redis/v9"
)

// streamMaxLen is the approximate maximum length for Redis streams, enforced
// via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// EventBus implements domain.EventBus using Redis Pub/Sub for live fan-out
// and Redis Streams for ordered replay. Channel and stream names are
// prefixed with the client's key prefix.
type EventBus struct {
	c *Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{c: c}
}

// Publish sends payload to a Pub/Sub channel.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.c.rdb.Publish(ctx, b.c.key(channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Pub/Sub subscription and returns a channel of raw
// payloads. The subscription and the returned channel are closed when ctx
// is cancelled.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	name := b.c.key(channel)
	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = b.c.rdb.PSubscribe(ctx, name)
	} else {
		pubsub = b.c.rdb.Subscribe(ctx, name)
	}

	// Wait for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern reports whether channel contains glob wildcards, in which case
// PSubscribe is used.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// StreamAppend appends payload to a stream with XADD MAXLEN ~ streamMaxLen.
func (b *EventBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: b.c.key(stream),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"payload": payload,
		},
	}
	if err := b.c.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead reads up to count messages after lastID. "0" reads from the
// beginning and "$" only new messages. No messages is not an error.
func (b *EventBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	args := &redis.XReadArgs{
		Streams: []string{b.c.key(stream), lastID},
		Count:   int64(count),
		Block:   -1,
	}

	results, err := b.c.rdb.XRead(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			var data []byte
			switch v := msg.Values["payload"].(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}
			messages = append(messages, domain.StreamMessage{ID: msg.ID, Payload: data})
		}
	}
	return messages, nil
}

var _ domain.EventBus = (*EventBus)(nil)
