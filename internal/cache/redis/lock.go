package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes a lock key only if its value matches the caller's
// token, so one holder cannot release another holder's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// lockRetryInterval is the poll interval of AcquireWait.
const lockRetryInterval = 25 * time.Millisecond

// LockManager implements domain.LockManager using Redis SET NX with a TTL
// and a Lua-based conditional unlock. The ledger service uses it to keep a
// single writer across replicas sharing one store.
type LockManager struct {
	c        *Client
	unlockSc *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		c:        c,
		unlockSc: redis.NewScript(unlockLua),
	}
}

func (lm *LockManager) lockKey(key string) string {
	return lm.c.key("lock:" + key)
}

// Acquire attempts to obtain the lock for key once. On success it returns
// an unlock function that is safe to call more than once.
//
// It returns domain.ErrLockHeld if the lock is already held.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lm.lockKey(key)

	ok, err := lm.c.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// The caller's context may already be cancelled.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlockSc.Run(unlockCtx, lm.c.rdb, []string{lk}, token).Err()
		})
	}
	return unlock, nil
}

// AcquireWait retries Acquire until it succeeds or ctx ends.
func (lm *LockManager) AcquireWait(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	for {
		unlock, err := lm.Acquire(ctx, key, ttl)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, err
		}
		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("redis: wait for lock %s: %w", key, errors.Join(domain.ErrContextDone, ctx.Err()))
		case <-timer.C:
		}
	}
}

var _ domain.LockManager = (*LockManager)(nil)
