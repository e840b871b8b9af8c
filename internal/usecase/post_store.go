package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/repository"
	"github.com/user/webhook-ingest/pkg/metrics"
)

var errMissingNaturalKey = errors.New("post has no identifying field")

// PostStore writes canonical posts exactly once per natural key.
type PostStore interface {
	// Upsert stores the batch in one transaction. A *BatchError reports the
	// items that failed; every other item was stored. Errors wrapping ErrStore
	// mean nothing can be assumed about the batch and the callback should be retried.
	Upsert(ctx context.Context, posts []entity.Post) (inserted int, updated int, err error)
}

type postStore struct {
	posts  repository.PostRepository
	logger *zap.Logger
}

// NewPostStore creates a PostStore.
func NewPostStore(posts repository.PostRepository, logger *zap.Logger) PostStore {
	return &postStore{posts: posts, logger: logger}
}

func (s *postStore) Upsert(ctx context.Context, posts []entity.Post) (int, int, error) {
	if len(posts) == 0 {
		return 0, 0, nil
	}

	var failures []ItemFailure
	batch := make([]*entity.Post, 0, len(posts))
	index := make([]int, 0, len(posts))
	for i := range posts {
		p := &posts[i]
		if p.NaturalKey == "" {
			p.NaturalKey = p.DeriveNaturalKey()
		}
		if p.NaturalKey == "" {
			failures = append(failures, ItemFailure{Index: i, Err: errMissingNaturalKey})
			continue
		}
		batch = append(batch, p)
		index = append(index, i)
	}

	var inserted, updated int
	if len(batch) > 0 {
		outcomes, err := s.posts.UpsertBatch(ctx, batch)
		if err != nil {
			return 0, 0, storeErr("upsert posts", err)
		}
		for j, outcome := range outcomes {
			p := batch[j]
			switch {
			case outcome.Err != nil:
				failures = append(failures, ItemFailure{Index: index[j], NaturalKey: p.NaturalKey, Err: outcome.Err})
				metrics.ItemsTotal.WithLabelValues(string(p.Platform), "failed").Inc()
				s.logger.Warn("post upsert failed",
					zap.String("natural_key", p.NaturalKey), zap.Error(outcome.Err))
			case outcome.Inserted:
				inserted++
				metrics.ItemsTotal.WithLabelValues(string(p.Platform), "inserted").Inc()
			default:
				updated++
				metrics.ItemsTotal.WithLabelValues(string(p.Platform), "updated").Inc()
			}
		}
	}

	if len(failures) > 0 {
		return inserted, updated, &BatchError{Failures: failures}
	}
	return inserted, updated, nil
}
