package postgres

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/webhook-ingest/internal/adapter/memory"
	"github.com/user/webhook-ingest/internal/repository"
	"github.com/user/webhook-ingest/pkg/utils"
)

// Locker implements repository.Locker with session-level advisory locks.
// Every lock taken through one Locker lives on a single shared session, so
// held and nested locks cost one pooled connection in total. Advisory locks
// are re-entrant within a session; a process-local keyed mutex keeps this
// process's goroutines apart.
type Locker struct {
	db         *pgxpool.Pool
	local      *memory.Locker
	retryDelay time.Duration

	mu      sync.Mutex
	session *pgxpool.Conn
	// generation changes whenever the session is replaced. Locks taken on an
	// older session died with it.
	generation int
}

// NewLocker creates an advisory-lock Locker.
func NewLocker(db *pgxpool.Pool) *Locker {
	return &Locker{db: db, local: memory.NewLocker(), retryDelay: 10 * time.Millisecond}
}

func (l *Locker) Acquire(ctx context.Context, key string) (repository.ReleaseFunc, error) {
	id := utils.HashKey(key)
	releaseLocal, err := l.local.Acquire(ctx, strconv.FormatInt(id, 10))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	delay := l.retryDelay
	for {
		gen, ok, err := l.tryLock(ctx, id)
		if err != nil {
			releaseLocal(ctx)
			return nil, fmt.Errorf("%w: %s: %w", repository.ErrLockNotAcquired, key, err)
		}
		if ok {
			return l.releaseFunc(key, id, gen, releaseLocal), nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			releaseLocal(ctx)
			return nil, fmt.Errorf("%w: %s: %w", repository.ErrLockNotAcquired, key, ctx.Err())
		case <-timer.C:
		}
		if delay < 500*time.Millisecond {
			delay *= 2
		}
	}
}

// Close unlocks everything still held and returns the session to the pool.
func (l *Locker) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		return
	}
	_, _ = l.session.Exec(context.Background(), `SELECT pg_advisory_unlock_all()`)
	l.session.Release()
	l.session = nil
	l.generation++
}

func (l *Locker) tryLock(ctx context.Context, id int64) (int, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil {
		conn, err := l.db.Acquire(ctx)
		if err != nil {
			return 0, false, err
		}
		l.session = conn
		l.generation++
	}
	var ok bool
	// A cancelled statement tears the connection down with every lock on it.
	err := l.session.QueryRow(context.WithoutCancel(ctx), `SELECT pg_try_advisory_lock($1)`, id).Scan(&ok)
	if err != nil {
		l.dropSession()
		return 0, false, err
	}
	return l.generation, ok, nil
}

func (l *Locker) releaseFunc(key string, id int64, gen int, releaseLocal repository.ReleaseFunc) repository.ReleaseFunc {
	var (
		once sync.Once
		err  error
	)
	return func(ctx context.Context) error {
		once.Do(func() {
			defer releaseLocal(ctx)
			err = l.unlock(ctx, key, id, gen)
		})
		return err
	}
}

func (l *Locker) unlock(ctx context.Context, key string, id int64, gen int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session == nil || l.generation != gen {
		return fmt.Errorf("advisory lock %s was lost with its session", key)
	}
	var ok bool
	err := l.session.QueryRow(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, id).Scan(&ok)
	if err != nil {
		l.dropSession()
		return fmt.Errorf("release advisory lock %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("advisory lock %s was not held", key)
	}
	return nil
}

func (l *Locker) dropSession() {
	l.session.Conn().Close(context.Background())
	l.session.Release()
	l.session = nil
	l.generation++
}
