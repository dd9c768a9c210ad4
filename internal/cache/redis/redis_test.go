package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/google/uuid"
)

// newTestClient connects to PARIMARKET_TEST_REDIS_ADDR under a unique key
// prefix, or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("PARIMARKET_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PARIMARKET_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, KeyPrefix: "test:" + uuid.NewString() + ":"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMarketViewCache(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	cache := NewMarketViewCache(c, time.Minute)

	if _, err := cache.Get(ctx, 7); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get on empty cache = %v, want ErrNotFound", err)
	}
	view := domain.MarketView{
		Market:        domain.Market{ID: 7, Question: "Q?", Creator: "c", YesPool: domain.MaxAmount()},
		TotalPool:     domain.MaxAmount(),
		YesPercentage: 100,
	}
	if err := cache.Set(ctx, view); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := cache.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Question != "Q?" || got.YesPool.Cmp(domain.MaxAmount()) != 0 || got.YesPercentage != 100 {
		t.Errorf("Get = %+v", got)
	}
	if err := cache.Invalidate(ctx, 7); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := cache.Get(ctx, 7); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after Invalidate = %v", err)
	}
}

func TestLockManager(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "ledger:writer", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := lm.Acquire(ctx, "ledger:writer", time.Second); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second Acquire = %v, want ErrLockHeld", err)
	}

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := lm.AcquireWait(short, "ledger:writer", time.Second); !errors.Is(err, domain.ErrContextDone) {
		t.Fatalf("AcquireWait on held lock = %v, want ErrContextDone", err)
	}

	unlock()
	unlock()
	again, err := lm.AcquireWait(ctx, "ledger:writer", time.Second)
	if err != nil {
		t.Fatalf("AcquireWait after unlock: %v", err)
	}
	again()
}

func TestRateLimiter(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "p", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("Allow #%d = %v, %v", i, ok, err)
		}
	}
	if ok, _ := rl.Allow(ctx, "p", 3, time.Minute); ok {
		t.Error("fourth request allowed")
	}
	if ok, _ := rl.Allow(ctx, "q", 3, time.Minute); !ok {
		t.Error("other key throttled")
	}
}

func TestEventBus(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewEventBus(c)

	ch, err := bus.Subscribe(ctx, "ledger:events")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := bus.Publish(ctx, "ledger:events", []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case got := <-ch:
		if string(got) != "x" {
			t.Errorf("payload = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
	}

	for _, p := range []string{"a", "b"} {
		if err := bus.StreamAppend(ctx, "ledger:events:stream", []byte(p)); err != nil {
			t.Fatalf("StreamAppend: %v", err)
		}
	}
	msgs, err := bus.StreamRead(ctx, "ledger:events:stream", "0", 10)
	if err != nil || len(msgs) != 2 || string(msgs[1].Payload) != "b" {
		t.Fatalf("StreamRead = %+v, %v", msgs, err)
	}
	rest, err := bus.StreamRead(ctx, "ledger:events:stream", msgs[1].ID, 10)
	if err != nil || len(rest) != 0 {
		t.Errorf("StreamRead past end = %+v, %v", rest, err)
	}
}
