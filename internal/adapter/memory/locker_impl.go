package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/webhook-ingest/internal/repository"
)

// Locker is a process-local keyed mutex that honours context cancellation.
type Locker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

// NewLocker creates an in-process Locker.
func NewLocker() *Locker {
	return &Locker{held: map[string]chan struct{}{}}
}

func (l *Locker) Acquire(ctx context.Context, key string) (repository.ReleaseFunc, error) {
	for {
		l.mu.Lock()
		waitOn, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			var once sync.Once
			return func(context.Context) error {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)
				})
				return nil
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-waitOn:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", repository.ErrLockNotAcquired, key, ctx.Err())
		}
	}
}
