package entity

import "time"

// RawWebhookEvent is the audit record of one inbound callback. It is written
// before any processing and only ever gains a correlation or an error afterwards.
type RawWebhookEvent struct {
	ID                  string
	ReceivedAt          time.Time
	SourceIP            string
	RequestURI          string
	HeadersSnapshot     map[string]string
	RawBody             []byte
	ParsedOK            bool
	CorrelatedRequestID *int64
	ProcessingError     *string
}

// Processing error markers recorded on raw events.
const (
	ProcessingErrorUncorrelated = "uncorrelated"
	ProcessingErrorUnauthorized = "unauthorized"
	ProcessingErrorInvalidJSON  = "invalid_json"
	ProcessingErrorTooLarge     = "body_too_large"
	ProcessingErrorTimeout      = "timeout"
)
