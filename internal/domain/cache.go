package domain

import (
	"context"
	"time"
)

// MarketView is the read-side projection of a market.
type MarketView struct {
	Market
	TotalPool     Amount  `json:"total_pool"`
	YesPercentage float64 `json:"yes_percentage"`
	NoPercentage  float64 `json:"no_percentage"`
}

// MarketViewCache caches projected market views.
type MarketViewCache interface {
	Set(ctx context.Context, view MarketView) error
	Get(ctx context.Context, id uint64) (MarketView, error)
	Invalidate(ctx context.Context, id uint64) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus provides pub/sub and durable streams.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// EventPublisher receives ledger events after commit.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev LedgerEvent) error
}
