package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/repository"
)

// PostRepoImpl keeps posts in memory, unique on (platform, request, natural key).
type PostRepoImpl struct {
	mu     sync.RWMutex
	nextID int64
	posts  map[string]*entity.Post
	// FailAll makes UpsertBatch fail as if the datastore were unreachable.
	FailAll error
}

// NewPostRepo creates an empty in-memory post store.
func NewPostRepo() *PostRepoImpl {
	return &PostRepoImpl{posts: map[string]*entity.Post{}}
}

func postKey(p *entity.Post) string {
	var req int64
	if p.ScrapeRequestID != nil {
		req = *p.ScrapeRequestID
	}
	return fmt.Sprintf("%s|%d|%s", p.Platform, req, p.NaturalKey)
}

func (r *PostRepoImpl) UpsertBatch(ctx context.Context, posts []*entity.Post) ([]repository.UpsertOutcome, error) {
	if r.FailAll != nil {
		return nil, r.FailAll
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	outcomes := make([]repository.UpsertOutcome, len(posts))
	for i, p := range posts {
		if p.NaturalKey == "" {
			outcomes[i].Err = errors.New("natural key is empty")
			continue
		}
		key := postKey(p)
		if existing, ok := r.posts[key]; ok {
			updated := clonePost(p)
			updated.ID = existing.ID
			updated.IngestedAt = existing.IngestedAt
			r.posts[key] = updated
			p.ID, p.IngestedAt = existing.ID, existing.IngestedAt
			continue
		}
		r.nextID++
		p.ID = r.nextID
		if p.IngestedAt.IsZero() {
			p.IngestedAt = time.Now().UTC()
		}
		r.posts[key] = clonePost(p)
		outcomes[i].Inserted = true
	}
	return outcomes, nil
}

// All returns every stored post ordered by id.
func (r *PostRepoImpl) All() []*entity.Post {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.Post, 0, len(r.posts))
	for _, p := range r.posts {
		out = append(out, clonePost(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
