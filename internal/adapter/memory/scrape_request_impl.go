package memory

import (
	"context"
	"sync"
	"time"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/repository"
	"github.com/user/webhook-ingest/pkg/utils"
)

// ScrapeRequestRepoImpl keeps scrape requests in memory.
type ScrapeRequestRepoImpl struct {
	mu       sync.RWMutex
	nextID   int64
	requests map[int64]*entity.ScrapeRequest
}

// NewScrapeRequestRepo creates an empty in-memory request store.
func NewScrapeRequestRepo() *ScrapeRequestRepoImpl {
	return &ScrapeRequestRepoImpl{requests: map[int64]*entity.ScrapeRequest{}}
}

func (r *ScrapeRequestRepoImpl) Create(ctx context.Context, req *entity.ScrapeRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.ExternalRequestID != nil && r.externalIDTaken(*req.ExternalRequestID, 0) {
		return repository.ErrConflict
	}
	r.nextID++
	req.ID = r.nextID
	if req.Status == "" {
		req.Status = entity.StatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	r.requests[req.ID] = cloneRequest(req)
	return nil
}

func (r *ScrapeRequestRepoImpl) FindByID(ctx context.Context, id int64) (*entity.ScrapeRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (r *ScrapeRequestRepoImpl) FindByExternalID(ctx context.Context, externalID string) (*entity.ScrapeRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, req := range r.requests {
		if req.ExternalRequestID != nil && *req.ExternalRequestID == externalID {
			return cloneRequest(req), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *ScrapeRequestRepoImpl) FindProcessingByTargetURL(ctx context.Context, targetURL string) (*entity.ScrapeRequest, error) {
	want := utils.NormalizeURL(targetURL)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *entity.ScrapeRequest
	for _, req := range r.requests {
		if req.Status != entity.StatusProcessing || utils.NormalizeURL(req.TargetURL) != want {
			continue
		}
		if best == nil || newerThan(req, best) {
			best = req
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return cloneRequest(best), nil
}

func newerThan(a, b *entity.ScrapeRequest) bool {
	if a.StartedAt != nil && b.StartedAt != nil && !a.StartedAt.Equal(*b.StartedAt) {
		return a.StartedAt.After(*b.StartedAt)
	}
	return a.ID > b.ID
}

func (r *ScrapeRequestRepoImpl) Update(ctx context.Context, req *entity.ScrapeRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.requests[req.ID]; !ok {
		return repository.ErrNotFound
	}
	if req.ExternalRequestID != nil && r.externalIDTaken(*req.ExternalRequestID, req.ID) {
		return repository.ErrConflict
	}
	r.requests[req.ID] = cloneRequest(req)
	return nil
}

func (r *ScrapeRequestRepoImpl) AttachExternalID(ctx context.Context, id int64, externalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	if req.ExternalRequestID != nil {
		return nil
	}
	if r.externalIDTaken(externalID, id) {
		return repository.ErrConflict
	}
	req.ExternalRequestID = &externalID
	return nil
}

func (r *ScrapeRequestRepoImpl) externalIDTaken(externalID string, except int64) bool {
	for id, other := range r.requests {
		if id != except && other.ExternalRequestID != nil && *other.ExternalRequestID == externalID {
			return true
		}
	}
	return false
}
