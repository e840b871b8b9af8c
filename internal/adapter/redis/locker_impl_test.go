package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/webhook-ingest/internal/repository"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("INGEST_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("INGEST_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestLocker_MutualExclusion(t *testing.T) {
	locker := NewLocker(newTestClient(t), 5*time.Second)
	key := "scrape_request:" + uuid.NewString()

	release, err := locker.Acquire(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, key)
	assert.ErrorIs(t, err, repository.ErrLockNotAcquired)

	require.NoError(t, release(context.Background()))
	again, err := locker.Acquire(context.Background(), key)
	require.NoError(t, err)
	require.NoError(t, again(context.Background()))
}

func TestLocker_SerializesCriticalSection(t *testing.T) {
	locker := NewLocker(newTestClient(t), 5*time.Second)
	key := "folder:" + uuid.NewString()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		overlap bool
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), key)
			if err != nil {
				return
			}
			mu.Lock()
			inside++
			if inside > 1 {
				overlap = true
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release(context.Background())
		}()
	}
	wg.Wait()
	assert.False(t, overlap)
}

func TestLocker_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	client := newTestClient(t)
	locker := NewLocker(client, 50*time.Millisecond)
	key := "scrape_request:" + uuid.NewString()

	stale, err := locker.Acquire(context.Background(), key)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	fresh, err := locker.Acquire(context.Background(), key)
	require.NoError(t, err)

	assert.Error(t, stale(context.Background()))
	exists, err := client.Exists(context.Background(), lockKeyPrefix+key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists, "the new holder keeps its lock")
	require.NoError(t, fresh(context.Background()))
}
