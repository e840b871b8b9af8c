package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/repository"
	"github.com/user/webhook-ingest/pkg/metrics"
)

// Event is what one correlated callback contributed to its request.
type Event struct {
	Signal Signal
	// Delivered counts the posts the callback carried, stored or not.
	Delivered int
	// Inserted counts posts that did not exist before this callback.
	Inserted      int
	ItemsExpected *int
}

// Apply computes the next state of req for ev. It mutates req and reports
// whether the status changed. Terminal requests only accumulate counts.
func Apply(req *entity.ScrapeRequest, ev Event, now time.Time) bool {
	req.ItemsReceived += ev.Inserted
	if req.ItemsExpected == nil && ev.ItemsExpected != nil {
		n := *ev.ItemsExpected
		req.ItemsExpected = &n
	}
	if req.Status.IsTerminal() {
		return false
	}

	from := req.Status
	switch ev.Signal.Kind {
	case SignalError:
		code := ev.Signal.Code
		req.LastError = &code
		req.Status = entity.StatusFailed
	case SignalFinished:
		if req.ItemsReceived > 0 {
			req.Status = entity.StatusCompleted
		} else {
			req.Status = entity.StatusEmpty
		}
	default:
		if req.Status == entity.StatusPending && (ev.Delivered > 0 || ev.Signal.Kind == SignalProgress) {
			req.Status = entity.StatusProcessing
		}
	}

	if req.Status != entity.StatusPending && req.StartedAt == nil {
		t := now
		req.StartedAt = &t
	}
	if req.Status.IsTerminal() && req.CompletedAt == nil {
		t := now
		req.CompletedAt = &t
	}
	return req.Status != from
}

// StateMachine is the only writer of ScrapeRequest rows.
type StateMachine interface {
	// Advance applies ev to req and persists the result. Callers must hold the
	// request lock.
	Advance(ctx context.Context, req *entity.ScrapeRequest, ev Event) error
	// AttachFolder records the scrape-iteration folder assigned to req.
	AttachFolder(ctx context.Context, req *entity.ScrapeRequest, folder *entity.Folder) error
	// AttachExternalID records the provider id of a request that was matched
	// without one. It is a no-op when the id belongs to another request.
	AttachExternalID(ctx context.Context, req *entity.ScrapeRequest, externalID string) error
}

type stateMachine struct {
	requests repository.ScrapeRequestRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewStateMachine creates a StateMachine backed by the request repository.
func NewStateMachine(requests repository.ScrapeRequestRepository, logger *zap.Logger) StateMachine {
	return &stateMachine{
		requests: requests,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *stateMachine) Advance(ctx context.Context, req *entity.ScrapeRequest, ev Event) error {
	from := req.Status
	changed := Apply(req, ev, m.now())
	if err := m.requests.Update(ctx, req); err != nil {
		return storeErr("update scrape request", err)
	}
	if changed {
		metrics.RequestTransitionsTotal.WithLabelValues(string(from), string(req.Status)).Inc()
		m.logger.Info("scrape request transitioned",
			zap.Int64("request_id", req.ID),
			zap.String("from", string(from)),
			zap.String("to", string(req.Status)),
			zap.Int("items_received", req.ItemsReceived))
	} else if from.IsTerminal() && ev.Signal.Kind != SignalNone {
		m.logger.Debug("signal ignored for terminal request",
			zap.Int64("request_id", req.ID),
			zap.String("status", string(from)),
			zap.Stringer("signal", ev.Signal.Kind))
	}
	return nil
}

func (m *stateMachine) AttachFolder(ctx context.Context, req *entity.ScrapeRequest, folder *entity.Folder) error {
	id := folder.ID
	req.FolderID = &id
	if folder.ScrapeIteration != nil {
		n := *folder.ScrapeIteration
		req.ScrapeIteration = &n
	}
	if err := m.requests.Update(ctx, req); err != nil {
		return storeErr("attach folder", err)
	}
	return nil
}

func (m *stateMachine) AttachExternalID(ctx context.Context, req *entity.ScrapeRequest, externalID string) error {
	if req.ExternalRequestID != nil || externalID == "" {
		return nil
	}
	err := m.requests.AttachExternalID(ctx, req.ID, externalID)
	if errors.Is(err, repository.ErrConflict) {
		m.logger.Warn("provider id already attached to another request",
			zap.Int64("request_id", req.ID), zap.String("external_request_id", externalID))
		return nil
	}
	if err != nil {
		return storeErr("attach external id", err)
	}
	req.ExternalRequestID = &externalID
	return nil
}
