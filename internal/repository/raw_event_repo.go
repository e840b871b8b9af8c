package repository

import (
	"context"

	"github.com/user/webhook-ingest/internal/entity"
)

// RawEventRepository stores the audit trail of inbound callbacks.
type RawEventRepository interface {
	// Create persists a new raw event. It must succeed before any processing starts.
	Create(ctx context.Context, event *entity.RawWebhookEvent) error
	// Annotate attaches the correlated request and/or processing error once known.
	// Nil arguments leave the stored value untouched.
	Annotate(ctx context.Context, id string, requestID *int64, processingError *string) error
	// MarkCorrelated records the request an event belongs to and drops an
	// earlier "uncorrelated" marker, which the correlation now contradicts.
	MarkCorrelated(ctx context.Context, id string, requestID int64) error
	// FindByID retrieves a raw event for replay.
	FindByID(ctx context.Context, id string) (*entity.RawWebhookEvent, error)
}
