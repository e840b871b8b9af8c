package usecase

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStore marks failures of shared infrastructure (datastore, lock manager).
	// They abort the callback and are safe to retry.
	ErrStore = errors.New("datastore unavailable")
	// ErrMalformedBody is returned when a callback body is not JSON.
	ErrMalformedBody = errors.New("malformed callback body")
	// ErrEventNotFound is returned when replaying an unknown raw event.
	ErrEventNotFound = errors.New("raw webhook event not found")
)

// ItemFailure describes one item of a batch that could not be stored.
type ItemFailure struct {
	Index      int
	NaturalKey string
	Err        error
}

// BatchError reports a partially failed batch upsert. The items not listed
// were stored.
type BatchError struct {
	Failures []ItemFailure
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("item %d (%s): %v", f.Index, f.NaturalKey, f.Err))
	}
	return fmt.Sprintf("%d item(s) failed to store: %s", len(e.Failures), strings.Join(parts, "; "))
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
