package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/repository"
)

// RawEventRepoImpl keeps raw webhook events in memory.
type RawEventRepoImpl struct {
	mu     sync.RWMutex
	events map[string]*entity.RawWebhookEvent
}

// NewRawEventRepo creates an empty in-memory raw event store.
func NewRawEventRepo() *RawEventRepoImpl {
	return &RawEventRepoImpl{events: map[string]*entity.RawWebhookEvent{}}
}

func (r *RawEventRepoImpl) Create(ctx context.Context, event *entity.RawWebhookEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.events[event.ID]; exists {
		return repository.ErrConflict
	}
	r.events[event.ID] = cloneRawEvent(event)
	return nil
}

func (r *RawEventRepoImpl) Annotate(ctx context.Context, id string, requestID *int64, processingError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	if requestID != nil {
		ev.CorrelatedRequestID = ptrCopy(requestID)
	}
	if processingError != nil {
		ev.ProcessingError = ptrCopy(processingError)
	}
	return nil
}

func (r *RawEventRepoImpl) MarkCorrelated(ctx context.Context, id string, requestID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.events[id]
	if !ok {
		return repository.ErrNotFound
	}
	ev.CorrelatedRequestID = &requestID
	if ev.ProcessingError != nil && *ev.ProcessingError == entity.ProcessingErrorUncorrelated {
		ev.ProcessingError = nil
	}
	return nil
}

func (r *RawEventRepoImpl) FindByID(ctx context.Context, id string) (*entity.RawWebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneRawEvent(ev), nil
}

// All returns every stored event ordered by arrival.
func (r *RawEventRepoImpl) All() []*entity.RawWebhookEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.RawWebhookEvent, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, cloneRawEvent(ev))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out
}
