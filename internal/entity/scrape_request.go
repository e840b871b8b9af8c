package entity

import "time"

// RequestStatus is the lifecycle state of a ScrapeRequest.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
	StatusEmpty      RequestStatus = "empty"
)

// IsTerminal reports whether no further status transition is allowed.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusEmpty
}

// ScrapeRequest mirrors the `scrape_requests` table. Rows are created by the
// trigger subsystem; the ingestion core only advances them.
type ScrapeRequest struct {
	ID                int64
	Platform          Platform
	TargetURL         string
	ExternalRequestID *string
	// RunFolderID is the run folder supplied by the trigger.
	RunFolderID *int64
	// FolderID is the scrape-iteration folder, assigned on the first batch.
	FolderID        *int64
	ScrapeIteration *int
	Status          RequestStatus
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ItemsExpected   *int
	ItemsReceived   int
	LastError       *string
}
