package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/webhook-ingest/internal/adapter/memory"
	"github.com/user/webhook-ingest/internal/entity"
)

func TestPostStore_UpsertUpdatesInPlace(t *testing.T) {
	repo := memory.NewPostRepo()
	store := NewPostStore(repo, zap.NewNop())
	reqID := int64(7)

	batch := []entity.Post{
		{Platform: entity.PlatformTikTok, ExternalID: "v1", ScrapeRequestID: &reqID, LikeCount: 1},
		{Platform: entity.PlatformTikTok, ExternalID: "v2", ScrapeRequestID: &reqID, LikeCount: 1},
	}
	inserted, updated, err := store.Upsert(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 0, updated)
	firstID, firstIngested := repo.All()[0].ID, repo.All()[0].IngestedAt

	redelivered := []entity.Post{
		{Platform: entity.PlatformTikTok, ExternalID: "v1", ScrapeRequestID: &reqID, LikeCount: 50, ContentText: "edited"},
	}
	inserted, updated, err = store.Upsert(context.Background(), redelivered)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
	assert.Equal(t, 1, updated)

	all := repo.All()
	require.Len(t, all, 2)
	assert.Equal(t, firstID, all[0].ID)
	assert.Equal(t, firstIngested, all[0].IngestedAt)
	assert.Equal(t, int64(50), all[0].LikeCount)
	assert.Equal(t, "edited", all[0].ContentText)
	assert.Equal(t, "tiktok:v1", all[0].NaturalKey)
}

func TestPostStore_SameKeyDifferentRequestsAreDistinct(t *testing.T) {
	repo := memory.NewPostRepo()
	store := NewPostStore(repo, zap.NewNop())
	a, b := int64(1), int64(2)

	_, _, err := store.Upsert(context.Background(), []entity.Post{
		{Platform: entity.PlatformFacebook, ExternalID: "f1", ScrapeRequestID: &a},
		{Platform: entity.PlatformFacebook, ExternalID: "f1", ScrapeRequestID: &b},
		{Platform: entity.PlatformFacebook, ExternalID: "f1"},
	})
	require.NoError(t, err)
	assert.Len(t, repo.All(), 3)
}

func TestPostStore_PartialFailure(t *testing.T) {
	repo := memory.NewPostRepo()
	store := NewPostStore(repo, zap.NewNop())

	inserted, _, err := store.Upsert(context.Background(), []entity.Post{
		{Platform: entity.PlatformInstagram, ExternalID: "ok-1"},
		{Platform: entity.PlatformInstagram},
		{Platform: entity.PlatformInstagram, Shortcode: "ok-2"},
	})
	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	require.Len(t, batchErr.Failures, 1)
	assert.Equal(t, 1, batchErr.Failures[0].Index)
	assert.Equal(t, 2, inserted)
	assert.Len(t, repo.All(), 2)
	assert.NotErrorIs(t, err, ErrStore)
}

func TestPostStore_OutageIsStoreError(t *testing.T) {
	repo := memory.NewPostRepo()
	repo.FailAll = errors.New("too many connections")
	store := NewPostStore(repo, zap.NewNop())

	_, _, err := store.Upsert(context.Background(), []entity.Post{{Platform: entity.PlatformInstagram, ExternalID: "x"}})
	assert.ErrorIs(t, err, ErrStore)
}

func TestPostStore_EmptyBatch(t *testing.T) {
	store := NewPostStore(memory.NewPostRepo(), zap.NewNop())
	inserted, updated, err := store.Upsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
	assert.Zero(t, updated)
}
