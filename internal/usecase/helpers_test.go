package usecase

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/webhook-ingest/internal/adapter/memory"
	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/repository"
)

type pipeline struct {
	rawEvents *memory.RawEventRepoImpl
	requests  *memory.ScrapeRequestRepoImpl
	posts     *memory.PostRepoImpl
	folders   *memory.FolderRepoImpl
	locker    repository.Locker
	ingestion Ingestion
	assigner  FolderAssigner
	machine   StateMachine
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	return newPipelineWithLocker(t, memory.NewLocker(), true)
}

func newPipelineWithLocker(t *testing.T, locker repository.Locker, fallback bool) *pipeline {
	t.Helper()
	logger := zap.NewNop()
	p := &pipeline{
		rawEvents: memory.NewRawEventRepo(),
		requests:  memory.NewScrapeRequestRepo(),
		posts:     memory.NewPostRepo(),
		folders:   memory.NewFolderRepo(),
		locker:    locker,
	}
	p.machine = NewStateMachine(p.requests, logger)
	p.assigner = NewFolderAssigner(p.folders, locker, p.machine, "Unassigned", logger)
	p.ingestion = NewIngestionUseCase(
		p.rawEvents,
		p.requests,
		locker,
		NewCorrelationResolver(p.requests, fallback, logger),
		NewPostStore(p.posts, logger),
		p.machine,
		p.assigner,
		entity.PlatformInstagram,
		logger,
	)
	return p
}

// seedRequest creates a pending request under a fresh run folder.
func (p *pipeline) seedRequest(t *testing.T, platform entity.Platform, targetURL, externalID string) *entity.ScrapeRequest {
	t.Helper()
	run := p.folders.Seed("campaign")
	req := &entity.ScrapeRequest{Platform: platform, TargetURL: targetURL, RunFolderID: &run.ID}
	if externalID != "" {
		req.ExternalRequestID = &externalID
	}
	require.NoError(t, p.requests.Create(context.Background(), req))
	return req
}

// prepare stores a raw event for body and parses it like the gateway does.
func (p *pipeline) prepare(t *testing.T, body string, opts ...func(*Callback)) (string, *Callback) {
	t.Helper()
	ev := &entity.RawWebhookEvent{
		ID:         uuid.NewString(),
		ReceivedAt: time.Now().UTC(),
		RawBody:    []byte(body),
		ParsedOK:   true,
	}
	require.NoError(t, p.rawEvents.Create(context.Background(), ev))
	cb, err := ParseCallback([]byte(body), nil, nil)
	require.NoError(t, err)
	for _, opt := range opts {
		opt(cb)
	}
	return ev.ID, cb
}

func (p *pipeline) deliver(t *testing.T, body string, headers http.Header, query url.Values) (*Summary, error) {
	t.Helper()
	id, cb := p.prepare(t, body, func(cb *Callback) {
		if headers != nil {
			cb.Headers = headers
		}
		if query != nil {
			cb.Query = query
		}
	})
	return p.ingestion.Process(context.Background(), id, cb)
}

func (p *pipeline) request(t *testing.T, id int64) *entity.ScrapeRequest {
	t.Helper()
	req, err := p.requests.FindByID(context.Background(), id)
	require.NoError(t, err)
	return req
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Acquire(ctx context.Context, key string) (repository.ReleaseFunc, error) {
	args := m.Called(ctx, key)
	if fn, ok := args.Get(0).(repository.ReleaseFunc); ok {
		return fn, args.Error(1)
	}
	return nil, args.Error(1)
}
