package response

// ErrorResponse is the body of every non-2xx reply. Code is stable and
// machine readable; providers key their retry policy on the status code.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	EventID string `json:"event_id,omitempty"`
}

// HealthResponse reports each dependency as "healthy" or "unhealthy".
type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Error codes.
const (
	CodeUnreadableBody   = "unreadable_body"
	CodeBodyTooLarge     = "body_too_large"
	CodeUnauthorized     = "unauthorized"
	CodeInvalidJSON      = "invalid_json"
	CodeStoreUnavailable = "store_unavailable"
	CodeTimeout          = "timeout"
	CodeNotFound         = "not_found"
	CodeInternal         = "internal_error"
)
