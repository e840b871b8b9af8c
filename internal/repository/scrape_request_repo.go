package repository

import (
	"context"

	"github.com/user/webhook-ingest/internal/entity"
)

// ScrapeRequestRepository defines access to tracked scrape jobs.
type ScrapeRequestRepository interface {
	// Create inserts a pending request. Only the trigger subsystem calls this.
	Create(ctx context.Context, req *entity.ScrapeRequest) error
	FindByID(ctx context.Context, id int64) (*entity.ScrapeRequest, error)
	// FindByExternalID looks a request up by the provider's snapshot/collection id.
	FindByExternalID(ctx context.Context, externalID string) (*entity.ScrapeRequest, error)
	// FindProcessingByTargetURL returns the most recently started processing request for a target URL.
	FindProcessingByTargetURL(ctx context.Context, targetURL string) (*entity.ScrapeRequest, error)
	// Update writes every mutable column of the request.
	Update(ctx context.Context, req *entity.ScrapeRequest) error
	// AttachExternalID sets external_request_id when it is still null.
	// Returns ErrConflict when the id already belongs to another request.
	AttachExternalID(ctx context.Context, id int64, externalID string) error
}
