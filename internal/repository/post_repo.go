package repository

import (
	"context"

	"github.com/user/webhook-ingest/internal/entity"
)

// UpsertOutcome is the per-item result of a batch upsert.
type UpsertOutcome struct {
	Inserted bool
	Err      error
}

// PostRepository persists canonical posts keyed by their natural key.
type PostRepository interface {
	// UpsertBatch upserts every post in one transaction. An item-level failure is
	// reported in its outcome and does not affect the others; the returned error
	// is reserved for failures of the datastore itself.
	UpsertBatch(ctx context.Context, posts []*entity.Post) ([]UpsertOutcome, error)
}
