package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockLua deletes the lock only while it still holds the caller's token,
// so an expired holder cannot release a lock someone else now owns.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const (
	defaultLockTTL   = 30 * time.Second
	defaultLockRetry = 25 * time.Millisecond
)

// LockManager is a distributed per-market lock built on SET NX with a TTL.
// It satisfies services.MarketLocker.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	ttl      time.Duration
	retry    time.Duration
}

// NewLockManager creates a LockManager. A zero ttl selects 30s.
func NewLockManager(c *Client, ttl time.Duration) *LockManager {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &LockManager{
		rdb:      c.rdb,
		unlockSc: redis.NewScript(unlockLua),
		ttl:      ttl,
		retry:    defaultLockRetry,
	}
}

func lockKey(marketID string) string {
	return "amm:lock:market:" + marketID
}

// TryLock makes one attempt to take the market lock. ok is false when
// another holder has it.
func (lm *LockManager) TryLock(ctx context.Context, marketID string) (unlock func(), ok bool, err error) {
	token := uuid.New().String()
	key := lockKey(marketID)

	ok, err = lm.rdb.SetNX(ctx, key, token, lm.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: acquire lock %s: %w", marketID, err)
	}
	if !ok {
		return nil, false, nil
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		// The caller's context may already be cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{key}, token).Err()
	}, true, nil
}

// Lock blocks until the market lock is taken or ctx ends.
func (lm *LockManager) Lock(ctx context.Context, marketID string) (func(), error) {
	ticker := time.NewTicker(lm.retry)
	defer ticker.Stop()

	for {
		unlock, ok, err := lm.TryLock(ctx, marketID)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("redis: lock %s: %w", marketID, ctx.Err())
		case <-ticker.C:
		}
	}
}
