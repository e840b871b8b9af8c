package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/user/webhook-ingest/internal/repository"
)

const lockKeyPrefix = "ingest:lock:"

// releaseScript deletes the lock only if it still carries our token, so an
// expired holder cannot release someone else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker implements repository.Locker with SET NX PX. The TTL bounds how long
// a crashed gateway can hold a lock.
type Locker struct {
	client     *redis.Client
	ttl        time.Duration
	retryDelay time.Duration
}

// NewLocker creates a Redis-backed Locker.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl, retryDelay: 25 * time.Millisecond}
}

func (l *Locker) Acquire(ctx context.Context, key string) (repository.ReleaseFunc, error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()

	delay := l.retryDelay
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", repository.ErrLockNotAcquired, key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", repository.ErrLockNotAcquired, key, ctx.Err())
		case <-timer.C:
		}
		if delay < time.Second {
			delay *= 2
		}
	}

	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		if n == 0 {
			return fmt.Errorf("lock %s expired before release", key)
		}
		return nil
	}, nil
}
