package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultMarketViewTTL = 30 * time.Second

// MarketViewCache implements domain.MarketViewCache using Redis hashes with
// JSON-serialized views.
//
// Key schema:
//
//	market:{id} - hash with field "data" containing JSON
//
// Resolved markets never change again, so they are kept for
// resolvedTTL instead of ttl.
type MarketViewCache struct {
	c           *Client
	ttl         time.Duration
	resolvedTTL time.Duration
}

// NewMarketViewCache creates a cache backed by the given Client. A zero ttl
// selects the default.
func NewMarketViewCache(c *Client, ttl time.Duration) *MarketViewCache {
	if ttl <= 0 {
		ttl = defaultMarketViewTTL
	}
	return &MarketViewCache{c: c, ttl: ttl, resolvedTTL: 20 * ttl}
}

func (mc *MarketViewCache) marketKey(id uint64) string {
	return mc.c.key("market:" + strconv.FormatUint(id, 10))
}

// Set stores view.
func (mc *MarketViewCache) Set(ctx context.Context, view domain.MarketView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("redis: marshal market %d: %w", view.ID, err)
	}

	ttl := mc.ttl
	if view.Resolved {
		ttl = mc.resolvedTTL
	}
	key := mc.marketKey(view.ID)

	pipe := mc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %d: %w", view.ID, err)
	}
	return nil
}

// Get returns the cached view or domain.ErrNotFound.
func (mc *MarketViewCache) Get(ctx context.Context, id uint64) (domain.MarketView, error) {
	data, err := mc.c.rdb.HGet(ctx, mc.marketKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MarketView{}, domain.ErrNotFound
		}
		return domain.MarketView{}, fmt.Errorf("redis: get market %d: %w", id, err)
	}

	var view domain.MarketView
	if err := json.Unmarshal(data, &view); err != nil {
		return domain.MarketView{}, fmt.Errorf("redis: unmarshal market %d: %w", id, err)
	}
	return view, nil
}

// Invalidate removes the cached view for id.
func (mc *MarketViewCache) Invalidate(ctx context.Context, id uint64) error {
	if err := mc.c.rdb.Del(ctx, mc.marketKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %d: %w", id, err)
	}
	return nil
}

var _ domain.MarketViewCache = (*MarketViewCache)(nil)
