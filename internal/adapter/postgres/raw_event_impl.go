package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/repository"
)

// RawEventRepoImpl stores raw webhook events in PostgreSQL.
type RawEventRepoImpl struct {
	db *pgxpool.Pool
}

// NewRawEventRepo creates a new instance of RawEventRepoImpl.
func NewRawEventRepo(db *pgxpool.Pool) *RawEventRepoImpl {
	return &RawEventRepoImpl{db: db}
}

// Create inserts the event. Rows are only updated through Annotate and
// MarkCorrelated.
func (r *RawEventRepoImpl) Create(ctx context.Context, event *entity.RawWebhookEvent) error {
	headers, err := json.Marshal(event.HeadersSnapshot)
	if err != nil {
		return fmt.Errorf("encode headers snapshot: %w", err)
	}
	if event.HeadersSnapshot == nil {
		headers = []byte("{}")
	}

	query := `
		INSERT INTO raw_webhook_events
			(id, received_at, source_ip, request_uri, headers_snapshot, raw_body, parsed_ok, correlated_request_id, processing_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err = r.db.Exec(ctx, query,
		event.ID,
		event.ReceivedAt,
		event.SourceIP,
		event.RequestURI,
		headers,
		event.RawBody,
		event.ParsedOK,
		event.CorrelatedRequestID,
		event.ProcessingError,
	)
	return translateErr(err)
}

// Annotate fills in the correlation and processing error. COALESCE keeps the
// stored value where the argument is nil.
func (r *RawEventRepoImpl) Annotate(ctx context.Context, id string, requestID *int64, processingError *string) error {
	query := `
		UPDATE raw_webhook_events
		SET correlated_request_id = COALESCE($2, correlated_request_id),
			processing_error = COALESCE($3, processing_error)
		WHERE id = $1;
	`
	tag, err := r.db.Exec(ctx, query, id, requestID, processingError)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkCorrelated sets the correlated request and clears a stale
// "uncorrelated" marker left by an earlier attempt.
func (r *RawEventRepoImpl) MarkCorrelated(ctx context.Context, id string, requestID int64) error {
	query := `
		UPDATE raw_webhook_events
		SET correlated_request_id = $2,
			processing_error = NULLIF(processing_error, $3)
		WHERE id = $1;
	`
	tag, err := r.db.Exec(ctx, query, id, requestID, entity.ProcessingErrorUncorrelated)
	if err != nil {
		return translateErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// FindByID retrieves a raw event for replay.
func (r *RawEventRepoImpl) FindByID(ctx context.Context, id string) (*entity.RawWebhookEvent, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	query := `
		SELECT id::text, received_at, source_ip, request_uri, headers_snapshot, raw_body, parsed_ok, correlated_request_id, processing_error
		FROM raw_webhook_events
		WHERE id = $1;
	`
	var ev entity.RawWebhookEvent
	var headers []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&ev.ID,
		&ev.ReceivedAt,
		&ev.SourceIP,
		&ev.RequestURI,
		&headers,
		&ev.RawBody,
		&ev.ParsedOK,
		&ev.CorrelatedRequestID,
		&ev.ProcessingError,
	)
	if err != nil {
		return nil, translateErr(err)
	}
	if err := json.Unmarshal(headers, &ev.HeadersSnapshot); err != nil {
		return nil, fmt.Errorf("decode headers snapshot: %w", err)
	}
	return &ev, nil
}
