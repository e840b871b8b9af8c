package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/mapper"
	"github.com/user/webhook-ingest/internal/repository"
	"github.com/user/webhook-ingest/pkg/metrics"
)

// ItemWarning is a non-fatal diagnostic about one delivered item.
type ItemWarning struct {
	Index      int    `json:"index"`
	NaturalKey string `json:"natural_key,omitempty"`
	Field      string `json:"field"`
	Message    string `json:"message"`
}

// ItemSkip describes a delivered item that was not stored.
type ItemSkip struct {
	Index      int    `json:"index"`
	NaturalKey string `json:"natural_key,omitempty"`
	Reason     string `json:"reason"`
}

// Summary is the acknowledgement returned to the provider.
type Summary struct {
	EventID          string        `json:"event_id"`
	RequestID        *int64        `json:"request_id"`
	Confidence       Confidence    `json:"confidence"`
	Status           string        `json:"status,omitempty"`
	FolderID         *int64        `json:"folder_id,omitempty"`
	ItemsReceived    int           `json:"items_received"`
	ItemsProcessed   int           `json:"items_processed"`
	ItemsStored      int           `json:"items_stored"`
	ItemsInserted    int           `json:"items_inserted"`
	ItemsUpdated     int           `json:"items_updated"`
	Warnings         []ItemWarning `json:"warnings"`
	Skipped          []ItemSkip    `json:"skipped"`
	ProcessingTimeMS int64         `json:"processing_time_ms"`
}

// Ingestion runs a parsed callback through correlation, mapping, storage,
// folder assignment and the request state machine.
type Ingestion interface {
	// Process handles a callback whose raw event eventID is already stored.
	Process(ctx context.Context, eventID string, cb *Callback) (*Summary, error)
	// Replay re-processes a stored raw event.
	Replay(ctx context.Context, eventID string) (*Summary, error)
}

type ingestionUseCase struct {
	rawEvents repository.RawEventRepository
	requests  repository.ScrapeRequestRepository
	locker    repository.Locker
	resolver  CorrelationResolver
	store     PostStore
	machine   StateMachine
	assigner  FolderAssigner

	// defaultPlatform is assumed for uncorrelated items with no platform hint.
	defaultPlatform entity.Platform
	logger          *zap.Logger
}

// NewIngestionUseCase wires the pipeline components together.
func NewIngestionUseCase(
	rawEvents repository.RawEventRepository,
	requests repository.ScrapeRequestRepository,
	locker repository.Locker,
	resolver CorrelationResolver,
	store PostStore,
	machine StateMachine,
	assigner FolderAssigner,
	defaultPlatform entity.Platform,
	logger *zap.Logger,
) Ingestion {
	return &ingestionUseCase{
		rawEvents: rawEvents,
		requests:  requests,
		locker:    locker,
		resolver:  resolver,
		store:     store,
		machine:   machine,
		assigner:  assigner,

		defaultPlatform: defaultPlatform,
		logger:          logger,
	}
}

func requestLockKey(id int64) string {
	return fmt.Sprintf("scrape_request:%d", id)
}

// mappedBatch is the outcome of running the field mapper over a callback.
type mappedBatch struct {
	posts []entity.Post
	// postIndex maps each post back to its item position in the callback.
	postIndex []int
	signals   []string
}

func (uc *ingestionUseCase) Process(ctx context.Context, eventID string, cb *Callback) (*Summary, error) {
	start := time.Now()
	summary := &Summary{
		EventID:       eventID,
		Confidence:    ConfidenceNone,
		ItemsReceived: len(cb.Items),
		Warnings:      []ItemWarning{},
		Skipped:       []ItemSkip{},
	}
	defer func() {
		summary.ProcessingTimeMS = time.Since(start).Milliseconds()
		metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	req, confidence, err := uc.resolver.Resolve(ctx, cb)
	if err != nil {
		return nil, err
	}
	summary.Confidence = confidence

	if req != nil {
		id := req.ID
		summary.RequestID = &id
		err = uc.rawEvents.MarkCorrelated(ctx, eventID, id)
	} else {
		marker := entity.ProcessingErrorUncorrelated
		err = uc.rawEvents.Annotate(ctx, eventID, nil, &marker)
		uc.logger.Warn("callback uncorrelated, storing as orphan", zap.String("event_id", eventID))
	}
	if err != nil {
		return nil, storeErr("annotate raw event", err)
	}

	batch := uc.mapItems(cb, req, summary)
	summary.ItemsProcessed = len(batch.posts)
	signal := batchSignal(cb.EnvelopeSignal(), batch)

	if req != nil {
		err = uc.processCorrelated(ctx, req.ID, confidence, cb, batch, signal, summary)
	} else {
		err = uc.processOrphans(ctx, batch, summary)
	}
	if err != nil {
		return nil, err
	}

	outcome := "stored"
	if req == nil {
		outcome = "uncorrelated"
	}
	metrics.CallbacksTotal.WithLabelValues(outcome).Inc()
	uc.logger.Info("callback processed",
		zap.String("event_id", eventID),
		zap.String("confidence", string(confidence)),
		zap.Int("items", summary.ItemsReceived),
		zap.Int("inserted", summary.ItemsInserted),
		zap.Int("updated", summary.ItemsUpdated),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("warnings", len(summary.Warnings)))
	return summary, nil
}

func (uc *ingestionUseCase) processCorrelated(
	ctx context.Context,
	requestID int64,
	confidence Confidence,
	cb *Callback,
	batch mappedBatch,
	signal Signal,
	summary *Summary,
) error {
	release, err := uc.locker.Acquire(ctx, requestLockKey(requestID))
	if err != nil {
		return storeErr("lock scrape request", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			uc.logger.Warn("failed to release request lock", zap.Int64("request_id", requestID), zap.Error(err))
		}
	}()

	// Re-read under the lock so counts and folder reflect concurrent callbacks.
	req, err := uc.requests.FindByID(ctx, requestID)
	if err != nil {
		return storeErr("reload scrape request", err)
	}

	if len(batch.posts) > 0 {
		folderID, err := uc.assigner.AssignFolder(ctx, req)
		if err != nil {
			return err
		}
		summary.FolderID = &folderID
		for i := range batch.posts {
			batch.posts[i].ScrapeRequestID = &req.ID
			batch.posts[i].FolderID = &folderID
		}
	}

	inserted, err := uc.upsert(ctx, batch, summary)
	if err != nil {
		return err
	}

	ev := Event{
		Signal:        signal,
		Delivered:     len(batch.posts),
		Inserted:      inserted,
		ItemsExpected: cb.ItemsExpected(),
	}
	if err := uc.machine.Advance(ctx, req, ev); err != nil {
		return err
	}

	if confidence == ConfidenceHeuristic {
		if ids := Identifiers(cb); len(ids) > 0 {
			if err := uc.machine.AttachExternalID(ctx, req, ids[0].Value); err != nil {
				return err
			}
		}
	}
	summary.Status = string(req.Status)
	return nil
}

func (uc *ingestionUseCase) processOrphans(ctx context.Context, batch mappedBatch, summary *Summary) error {
	if len(batch.posts) == 0 {
		return nil
	}
	folderID, err := uc.assigner.UnassignedFolder(ctx)
	if err != nil {
		return err
	}
	summary.FolderID = &folderID
	for i := range batch.posts {
		batch.posts[i].ScrapeRequestID = nil
		batch.posts[i].FolderID = &folderID
	}
	_, err = uc.upsert(ctx, batch, summary)
	return err
}

// upsert stores the batch and folds per-item failures into the summary. It
// returns the number of newly inserted posts.
func (uc *ingestionUseCase) upsert(ctx context.Context, batch mappedBatch, summary *Summary) (int, error) {
	inserted, updated, err := uc.store.Upsert(ctx, batch.posts)
	var batchErr *BatchError
	if errors.As(err, &batchErr) {
		for _, f := range batchErr.Failures {
			summary.Skipped = append(summary.Skipped, ItemSkip{
				Index:      batch.postIndex[f.Index],
				NaturalKey: f.NaturalKey,
				Reason:     f.Err.Error(),
			})
		}
	} else if err != nil {
		return 0, err
	}
	summary.ItemsInserted = inserted
	summary.ItemsUpdated = updated
	summary.ItemsStored = inserted + updated
	return inserted, nil
}

func (uc *ingestionUseCase) mapItems(cb *Callback, req *entity.ScrapeRequest, summary *Summary) mappedBatch {
	var batch mappedBatch
	queryPlatform, hasQueryPlatform := entity.ParsePlatform(cb.Query.Get("platform"))

	for i, item := range cb.Decoded {
		if item == nil {
			summary.Skipped = append(summary.Skipped, ItemSkip{Index: i, Reason: "item is not a JSON object"})
			metrics.ItemsTotal.WithLabelValues("unknown", "unmappable").Inc()
			continue
		}

		var platform entity.Platform
		switch {
		case req != nil:
			platform = req.Platform
		case hasQueryPlatform:
			platform = queryPlatform
		default:
			detected, ok := mapper.DetectPlatform(item)
			if !ok {
				detected, ok = mapper.DetectPlatform(cb.Envelope)
			}
			if !ok {
				detected = uc.defaultPlatform
				summary.Warnings = append(summary.Warnings, ItemWarning{
					Index:   i,
					Field:   "platform",
					Message: "platform not detected, assumed " + string(detected),
				})
				metrics.MappingWarningsTotal.WithLabelValues(string(detected)).Inc()
			}
			platform = detected
		}

		if code, ok := mapper.SignalCode(item); ok {
			batch.signals = append(batch.signals, code)
			summary.Warnings = append(summary.Warnings, ItemWarning{Index: i, Field: "signal", Message: code})
			metrics.ItemsTotal.WithLabelValues(string(platform), "signal").Inc()
			continue
		}

		post, warnings, err := mapper.MapRaw(platform, cb.Items[i])
		if err != nil {
			summary.Skipped = append(summary.Skipped, ItemSkip{Index: i, Reason: err.Error()})
			metrics.ItemsTotal.WithLabelValues(string(platform), "unmappable").Inc()
			uc.logger.Warn("item unmappable", zap.Int("index", i), zap.String("platform", string(platform)), zap.Error(err))
			continue
		}
		for _, w := range warnings {
			summary.Warnings = append(summary.Warnings, ItemWarning{Index: i, NaturalKey: post.NaturalKey, Field: w.Field, Message: w.Message})
		}
		if len(warnings) > 0 {
			metrics.MappingWarningsTotal.WithLabelValues(string(platform)).Add(float64(len(warnings)))
		}
		batch.posts = append(batch.posts, post)
		batch.postIndex = append(batch.postIndex, i)
	}
	return batch
}

// batchSignal combines the envelope status with signal items. An error
// always wins; signal items fail the request only when nothing else was delivered.
func batchSignal(envelope Signal, batch mappedBatch) Signal {
	if envelope.Kind == SignalError {
		return envelope
	}
	if len(batch.signals) > 0 && len(batch.posts) == 0 {
		return Signal{Kind: SignalError, Code: batch.signals[0]}
	}
	return envelope
}

func (uc *ingestionUseCase) Replay(ctx context.Context, eventID string) (*Summary, error) {
	ev, err := uc.rawEvents.FindByID(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if err != nil {
		return nil, storeErr("find raw event", err)
	}

	headers := http.Header{}
	for k, v := range ev.HeadersSnapshot {
		headers.Set(k, v)
	}
	var query url.Values
	if u, err := url.ParseRequestURI(ev.RequestURI); err == nil {
		query = u.Query()
	}

	cb, err := ParseCallback(ev.RawBody, headers, query)
	if err != nil {
		return nil, err
	}
	uc.logger.Info("replaying raw event", zap.String("event_id", eventID))
	return uc.Process(ctx, ev.ID, cb)
}
