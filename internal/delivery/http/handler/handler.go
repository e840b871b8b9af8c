package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/webhook-ingest/internal/delivery/http/request"
	"github.com/user/webhook-ingest/internal/delivery/http/response"
	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/repository"
	"github.com/user/webhook-ingest/internal/usecase"
	"github.com/user/webhook-ingest/pkg/metrics"
)

const (
	// retryAfterSeconds is advertised on every retryable 503.
	retryAfterSeconds = 30
	archiveTimeout    = 10 * time.Second
)

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// Options tune the gateway.
type Options struct {
	MaxBodyBytes      int64
	ProcessingTimeout time.Duration
	// Archive is optional; nil disables the cold copy of raw bodies.
	Archive      repository.RawArchive
	HealthChecks map[string]HealthCheck
}

type Handler struct {
	ingestion usecase.Ingestion
	rawEvents repository.RawEventRepository
	auth      *Authenticator
	opts      Options
	logger    *zap.Logger
}

func NewHandler(ingestion usecase.Ingestion, rawEvents repository.RawEventRepository, auth *Authenticator, opts Options, logger *zap.Logger) *Handler {
	return &Handler{
		ingestion: ingestion,
		rawEvents: rawEvents,
		auth:      auth,
		opts:      opts,
		logger:    logger,
	}
}

// HandleWebhook persists the raw callback before anything else, then
// authenticates it, archives it and processes it within the processing budget.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, truncated, err := request.ReadBody(r, h.opts.MaxBodyBytes)
	if err != nil {
		h.logger.Warn("failed to read webhook body", zap.Error(err))
		h.writeJSONError(w, http.StatusBadRequest, response.CodeUnreadableBody, "could not read request body", "")
		return
	}

	var (
		cb       *usecase.Callback
		parseErr = usecase.ErrMalformedBody
	)
	if !truncated {
		cb, parseErr = usecase.ParseCallback(body, r.Header, r.URL.Query())
	}

	event := &entity.RawWebhookEvent{
		ID:              uuid.NewString(),
		ReceivedAt:      time.Now().UTC(),
		SourceIP:        request.ClientIP(r),
		RequestURI:      r.URL.RequestURI(),
		HeadersSnapshot: request.SnapshotHeaders(r.Header),
		RawBody:         body,
		ParsedOK:        parseErr == nil,
	}
	if truncated {
		marker := entity.ProcessingErrorTooLarge
		event.ProcessingError = &marker
	}
	if err := h.rawEvents.Create(r.Context(), event); err != nil {
		h.logger.Error("failed to persist raw webhook event", zap.Error(err))
		metrics.CallbacksTotal.WithLabelValues("store_error").Inc()
		h.writeRetryable(w, response.CodeStoreUnavailable, "datastore unavailable", "")
		return
	}

	log := h.logger.With(zap.String("event_id", event.ID), zap.String("source_ip", event.SourceIP))

	if !h.auth.Allow(r, event.SourceIP) {
		h.annotate(r.Context(), event.ID, entity.ProcessingErrorUnauthorized)
		log.Warn("webhook rejected: unauthorized")
		metrics.CallbacksTotal.WithLabelValues("unauthorized").Inc()
		h.writeJSONError(w, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or missing credentials", event.ID)
		return
	}
	h.archive(r.Context(), event)

	if truncated {
		log.Warn("webhook body exceeds limit", zap.Int64("limit", h.opts.MaxBodyBytes))
		metrics.CallbacksTotal.WithLabelValues("too_large").Inc()
		h.writeJSONError(w, http.StatusRequestEntityTooLarge, response.CodeBodyTooLarge,
			fmt.Sprintf("body exceeds %d bytes", h.opts.MaxBodyBytes), event.ID)
		return
	}

	if parseErr != nil {
		h.annotate(r.Context(), event.ID, entity.ProcessingErrorInvalidJSON)
		log.Warn("webhook body is not a usable JSON document", zap.Error(parseErr))
		metrics.CallbacksTotal.WithLabelValues("invalid_json").Inc()
		h.writeJSONError(w, http.StatusBadRequest, response.CodeInvalidJSON, "body is not a JSON object or array", event.ID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.ProcessingTimeout)
	defer cancel()

	summary, err := h.ingestion.Process(ctx, event.ID, cb)
	if err != nil {
		h.handleProcessingError(ctx, w, r, event.ID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// HandleReplay re-runs the pipeline over a stored raw event.
func (h *Handler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	if !h.auth.Allow(r, request.ClientIP(r)) {
		h.writeJSONError(w, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or missing credentials", "")
		return
	}
	eventID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.ProcessingTimeout)
	defer cancel()

	summary, err := h.ingestion.Replay(ctx, eventID)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, summary)
	case errors.Is(err, usecase.ErrEventNotFound):
		h.writeJSONError(w, http.StatusNotFound, response.CodeNotFound, "raw event not found", eventID)
	case errors.Is(err, usecase.ErrMalformedBody):
		h.writeJSONError(w, http.StatusBadRequest, response.CodeInvalidJSON, "stored body is not a JSON object or array", eventID)
	default:
		h.handleProcessingError(ctx, w, r, eventID, err)
	}
}

func (h *Handler) handleProcessingError(ctx context.Context, w http.ResponseWriter, r *http.Request, eventID string, err error) {
	log := h.logger.With(zap.String("event_id", eventID))
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		h.annotate(r.Context(), eventID, entity.ProcessingErrorTimeout)
		log.Error("webhook processing exceeded its budget", zap.Duration("budget", h.opts.ProcessingTimeout), zap.Error(err))
		metrics.CallbacksTotal.WithLabelValues("timeout").Inc()
		h.writeRetryable(w, response.CodeTimeout, "processing budget exceeded", eventID)
	case errors.Is(err, usecase.ErrStore):
		log.Error("webhook processing failed on the datastore", zap.Error(err))
		metrics.CallbacksTotal.WithLabelValues("store_error").Inc()
		h.writeRetryable(w, response.CodeStoreUnavailable, "datastore unavailable", eventID)
	default:
		log.Error("webhook processing failed", zap.Error(err))
		metrics.CallbacksTotal.WithLabelValues("internal_error").Inc()
		h.writeJSONError(w, http.StatusInternalServerError, response.CodeInternal, "internal server error", eventID)
	}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := response.HealthResponse{Status: "ok", Dependencies: map[string]string{}}
	for name, check := range h.opts.HealthChecks {
		if err := check(ctx); err != nil {
			h.logger.Error("health check failed", zap.String("dependency", name), zap.Error(err))
			resp.Dependencies[name] = "unhealthy"
			resp.Status = "degraded"
			continue
		}
		resp.Dependencies[name] = "healthy"
	}

	if resp.Status != "ok" {
		h.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// archive keeps a best-effort cold copy of an authenticated raw body.
func (h *Handler) archive(ctx context.Context, event *entity.RawWebhookEvent) {
	if h.opts.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	name := ArchiveName(event)
	if err := h.opts.Archive.Store(ctx, name, event.RawBody); err != nil {
		h.logger.Warn("failed to archive raw webhook body", zap.String("event_id", event.ID), zap.String("blob", name), zap.Error(err))
	}
}

// ArchiveName is the blob name of a raw event: raw/YYYY/MM/DD/<id>.json.
func ArchiveName(event *entity.RawWebhookEvent) string {
	return fmt.Sprintf("raw/%s/%s.json", event.ReceivedAt.UTC().Format("2006/01/02"), event.ID)
}

func (h *Handler) annotate(ctx context.Context, eventID, marker string) {
	if err := h.rawEvents.Annotate(context.WithoutCancel(ctx), eventID, nil, &marker); err != nil {
		h.logger.Error("failed to annotate raw webhook event",
			zap.String("event_id", eventID), zap.String("processing_error", marker), zap.Error(err))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, code, message, eventID string) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message, Code: code, EventID: eventID})
}

func (h *Handler) writeRetryable(w http.ResponseWriter, code, message, eventID string) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	h.writeJSONError(w, http.StatusServiceUnavailable, code, message, eventID)
}
