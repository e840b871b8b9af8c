package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/repository"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("INGEST_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("INGEST_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, InitSchema(ctx, pool))
	require.NoError(t, InitSchema(ctx, pool), "schema bootstrap is idempotent")
	_, err = pool.Exec(ctx, `TRUNCATE posts, raw_webhook_events, scrape_requests, folders RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return pool
}

func TestRawEventRepo(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewRawEventRepo(pool)

	ev := &entity.RawWebhookEvent{
		ID:              uuid.NewString(),
		ReceivedAt:      time.Now().UTC().Truncate(time.Microsecond),
		SourceIP:        "203.0.113.7",
		RequestURI:      "/api/ingest/webhook?snapshot_id=s1",
		HeadersSnapshot: map[string]string{"Content-Type": "application/json"},
		RawBody:         []byte("{not json"),
		ParsedOK:        false,
	}
	require.NoError(t, repo.Create(ctx, ev))
	assert.ErrorIs(t, repo.Create(ctx, ev), repository.ErrConflict)

	marker := entity.ProcessingErrorInvalidJSON
	require.NoError(t, repo.Annotate(ctx, ev.ID, nil, &marker))

	got, err := repo.FindByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.RawBody, got.RawBody)
	assert.Equal(t, ev.HeadersSnapshot, got.HeadersSnapshot)
	assert.False(t, got.ParsedOK)
	require.NotNil(t, got.ProcessingError)
	assert.Equal(t, marker, *got.ProcessingError)
	assert.Nil(t, got.CorrelatedRequestID)

	_, err = repo.FindByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.Annotate(ctx, uuid.NewString(), nil, &marker), repository.ErrNotFound)
}

func TestRawEventRepo_MarkCorrelated(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewRawEventRepo(pool)
	req := &entity.ScrapeRequest{Platform: entity.PlatformInstagram, TargetURL: "https://www.instagram.com/nasa/"}
	require.NoError(t, NewScrapeRequestRepo(pool).Create(ctx, req))

	uncorrelated := entity.ProcessingErrorUncorrelated
	timedOut := entity.ProcessingErrorTimeout
	tests := []struct {
		name      string
		marker    *string
		wantError *string
	}{
		{name: "uncorrelated marker is cleared", marker: &uncorrelated},
		{name: "other markers are kept", marker: &timedOut, wantError: &timedOut},
		{name: "no marker", marker: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &entity.RawWebhookEvent{
				ID:              uuid.NewString(),
				ReceivedAt:      time.Now().UTC(),
				RawBody:         []byte(`{}`),
				ParsedOK:        true,
				ProcessingError: tt.marker,
			}
			require.NoError(t, repo.Create(ctx, ev))
			require.NoError(t, repo.MarkCorrelated(ctx, ev.ID, req.ID))

			got, err := repo.FindByID(ctx, ev.ID)
			require.NoError(t, err)
			require.NotNil(t, got.CorrelatedRequestID)
			assert.Equal(t, req.ID, *got.CorrelatedRequestID)
			assert.Equal(t, tt.wantError, got.ProcessingError)
		})
	}

	assert.ErrorIs(t, repo.MarkCorrelated(ctx, uuid.NewString(), req.ID), repository.ErrNotFound)
}

func TestScrapeRequestRepo(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewScrapeRequestRepo(pool)

	ext := "snap-1"
	req := &entity.ScrapeRequest{Platform: entity.PlatformInstagram, TargetURL: "https://www.instagram.com/nasa/", ExternalRequestID: &ext}
	require.NoError(t, repo.Create(ctx, req))
	assert.Equal(t, entity.StatusPending, req.Status)

	dup := &entity.ScrapeRequest{Platform: entity.PlatformInstagram, ExternalRequestID: &ext}
	assert.ErrorIs(t, repo.Create(ctx, dup), repository.ErrConflict)

	found, err := repo.FindByExternalID(ctx, "snap-1")
	require.NoError(t, err)
	assert.Equal(t, req.ID, found.ID)

	_, err = repo.FindProcessingByTargetURL(ctx, "instagram.com/nasa")
	assert.ErrorIs(t, err, repository.ErrNotFound, "pending requests are not fallback candidates")

	now := time.Now().UTC().Truncate(time.Microsecond)
	found.Status = entity.StatusProcessing
	found.StartedAt = &now
	found.ItemsReceived = 4
	require.NoError(t, repo.Update(ctx, found))

	byURL, err := repo.FindProcessingByTargetURL(ctx, "https://instagram.com/nasa")
	require.NoError(t, err)
	assert.Equal(t, req.ID, byURL.ID)
	assert.Equal(t, 4, byURL.ItemsReceived)

	other := &entity.ScrapeRequest{Platform: entity.PlatformTikTok}
	require.NoError(t, repo.Create(ctx, other))
	assert.ErrorIs(t, repo.AttachExternalID(ctx, other.ID, "snap-1"), repository.ErrConflict)
	require.NoError(t, repo.AttachExternalID(ctx, other.ID, "snap-2"))
	require.NoError(t, repo.AttachExternalID(ctx, other.ID, "snap-3"), "attaching twice keeps the first id")
	got, err := repo.FindByID(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "snap-2", *got.ExternalRequestID)
	assert.ErrorIs(t, repo.AttachExternalID(ctx, 9999, "x"), repository.ErrNotFound)
}

func TestPostRepo_UpsertBatch(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	requests := NewScrapeRequestRepo(pool)
	posts := NewPostRepo(pool)

	req := &entity.ScrapeRequest{Platform: entity.PlatformFacebook}
	require.NoError(t, requests.Create(ctx, req))

	first := []*entity.Post{
		{Platform: entity.PlatformFacebook, NaturalKey: "facebook:1", ExternalID: "1", ScrapeRequestID: &req.ID, LikeCount: 1, RawPayload: json.RawMessage(`{"post_id":"1",  "likes":1}`)},
		{Platform: entity.PlatformFacebook, NaturalKey: "facebook:2", ExternalID: "2", ScrapeRequestID: &req.ID},
		{Platform: entity.PlatformFacebook, NaturalKey: "facebook:1", ExternalID: "1"},
	}
	outcomes, err := posts.UpsertBatch(ctx, first)
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
		assert.True(t, o.Inserted)
	}
	originalID := first[0].ID

	second := []*entity.Post{
		{Platform: entity.PlatformFacebook, NaturalKey: "facebook:1", ExternalID: "1", ScrapeRequestID: &req.ID, LikeCount: 99},
		{Platform: entity.PlatformFacebook, NaturalKey: "", ScrapeRequestID: &req.ID},
		{Platform: entity.PlatformFacebook, NaturalKey: "facebook:3", ExternalID: "3", ScrapeRequestID: &req.ID},
	}
	outcomes, err = posts.UpsertBatch(ctx, second)
	require.NoError(t, err)
	assert.False(t, outcomes[0].Inserted)
	assert.NoError(t, outcomes[0].Err)
	assert.Equal(t, originalID, second[0].ID)
	assert.Error(t, outcomes[1].Err, "empty natural key violates the check constraint")
	assert.True(t, outcomes[2].Inserted, "the batch continues past a rejected item")

	var count int
	var likes int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count))
	require.NoError(t, pool.QueryRow(ctx, `SELECT like_count FROM posts WHERE id = $1`, originalID).Scan(&likes))
	assert.Equal(t, 4, count)
	assert.Equal(t, int64(99), likes)
}

func TestFolderRepo_ConcurrentIterations(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	folders := NewFolderRepo(pool)

	run, err := folders.FindOrCreate(ctx, nil, entity.FolderKindRun, "campaign")
	require.NoError(t, err)
	again, err := folders.FindOrCreate(ctx, nil, entity.FolderKindRun, "campaign")
	require.NoError(t, err)
	assert.Equal(t, run.ID, again.ID)

	platform, err := folders.FindOrCreate(ctx, &run.ID, entity.FolderKindPlatform, "instagram")
	require.NoError(t, err)

	const parallel = 10
	var wg sync.WaitGroup
	iterations := make([]int, parallel)
	errs := make([]error, parallel)
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := folders.CreateNextIteration(ctx, platform.ID, fmt.Sprintf("instagram – %d", i))
			errs[i] = err
			if err == nil {
				iterations[i] = *f.ScrapeIteration
			}
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	sort.Ints(iterations)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, iterations)

	missing := int64(424242)
	_, err = folders.FindOrCreate(ctx, &missing, entity.FolderKindPlatform, "tiktok")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = folders.CreateNextIteration(ctx, run.ID, "wrong level")
	assert.Error(t, err)
}

func TestLocker(t *testing.T) {
	pool := newTestPool(t)
	locker := NewLocker(pool)

	release, err := locker.Acquire(context.Background(), "scrape_request:1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "scrape_request:1")
	assert.ErrorIs(t, err, repository.ErrLockNotAcquired)

	other, err := locker.Acquire(context.Background(), "scrape_request:2")
	require.NoError(t, err)
	require.NoError(t, other(context.Background()))

	require.NoError(t, release(context.Background()))
	reacquired, err := locker.Acquire(context.Background(), "scrape_request:1")
	require.NoError(t, err)
	require.NoError(t, reacquired(context.Background()))
}

func TestLocker_SeparateSessionsExclude(t *testing.T) {
	pool := newTestPool(t)
	first, second := NewLocker(pool), NewLocker(pool)
	t.Cleanup(first.Close)
	t.Cleanup(second.Close)

	release, err := first.Acquire(context.Background(), "folder:7")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = second.Acquire(ctx, "folder:7")
	assert.ErrorIs(t, err, repository.ErrLockNotAcquired)

	require.NoError(t, release(context.Background()))
	again, err := second.Acquire(context.Background(), "folder:7")
	require.NoError(t, err)
	require.NoError(t, again(context.Background()))
}

func TestLocker_NestedHoldersDoNotExhaustPool(t *testing.T) {
	newTestPool(t)
	cfg, err := pgxpool.ParseConfig(os.Getenv("INGEST_TEST_POSTGRES_DSN"))
	require.NoError(t, err)
	cfg.MaxConns = 2
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	locker := NewLocker(pool)
	t.Cleanup(locker.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const holders = 8
	errs := make([]error, holders)
	var wg sync.WaitGroup
	for i := 0; i < holders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outer, err := locker.Acquire(ctx, fmt.Sprintf("scrape_request:%d", i))
			if err != nil {
				errs[i] = err
				return
			}
			defer outer(ctx)
			inner, err := locker.Acquire(ctx, "folder:1")
			if err != nil {
				errs[i] = err
				return
			}
			defer inner(ctx)
			_, errs[i] = pool.Exec(ctx, `SELECT pg_sleep(0.01)`)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "holder %d", i)
	}
}
