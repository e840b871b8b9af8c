package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/user/webhook-ingest/internal/mapper"
)

// Callback is one parsed provider push, ready for correlation and mapping.
type Callback struct {
	Headers http.Header
	Query   url.Values
	// Envelope is the top-level object when the body is an object, nil for arrays.
	Envelope map[string]any
	// Items holds the verbatim item payloads; Decoded holds the same items as
	// objects, nil where an item is not a JSON object.
	Items   []json.RawMessage
	Decoded []map[string]any
}

// envelopeItemKeys are the envelope fields that may wrap the delivered items.
var envelopeItemKeys = []string{"data", "items", "results", "posts", "records"}

// ParseCallback decodes a callback body, accepting a single object, an
// envelope wrapping an item array, or a bare array.
func ParseCallback(body []byte, headers http.Header, query url.Values) (*Callback, error) {
	cb := &Callback{Headers: headers, Query: query}
	if cb.Headers == nil {
		cb.Headers = http.Header{}
	}
	if cb.Query == nil {
		cb.Query = url.Values{}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedBody)
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		cb.setItems(items)
	case '{':
		envelope, err := mapper.DecodeItem(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		cb.Envelope = envelope
		items, err := envelopeItems(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		if items == nil && mapper.HasIdentity(envelope) {
			items = []json.RawMessage{json.RawMessage(trimmed)}
		}
		cb.setItems(items)
	default:
		return nil, fmt.Errorf("%w: body is neither an object nor an array", ErrMalformedBody)
	}
	return cb, nil
}

func envelopeItems(body []byte) ([]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	for _, key := range envelopeItemKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '[' {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		if items == nil {
			items = []json.RawMessage{}
		}
		return items, nil
	}
	return nil, nil
}

func (cb *Callback) setItems(items []json.RawMessage) {
	cb.Items = items
	cb.Decoded = make([]map[string]any, len(items))
	for i, raw := range items {
		if obj, err := mapper.DecodeItem(raw); err == nil {
			cb.Decoded[i] = obj
		}
	}
}

// SignalKind classifies what a callback says about its scrape job.
type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalProgress
	SignalFinished
	SignalError
)

func (k SignalKind) String() string {
	switch k {
	case SignalProgress:
		return "progress"
	case SignalFinished:
		return "finished"
	case SignalError:
		return "error"
	}
	return "none"
}

// Signal is the job-level status a callback declares.
type Signal struct {
	Kind SignalKind
	Code string
}

var (
	finishedWords = map[string]bool{"completed": true, "complete": true, "finished": true, "done": true, "ready": true, "success": true, "succeeded": true}
	errorWords    = map[string]bool{"failed": true, "failure": true, "error": true, "errored": true, "cancelled": true, "canceled": true}
	progressWords = map[string]bool{"running": true, "processing": true, "building": true, "collecting": true, "in_progress": true, "started": true}
)

// EnvelopeSignal reads the job status the envelope declares, if any.
func (cb *Callback) EnvelopeSignal() Signal {
	if cb.Envelope == nil {
		return Signal{}
	}
	status := strings.ToLower(mapper.FirstString(cb.Envelope, "status", "state"))
	code := mapper.FirstString(cb.Envelope, "error_code", "warning_code", "error")
	switch {
	case errorWords[status]:
		if code == "" {
			code = status
		}
		return Signal{Kind: SignalError, Code: code}
	case finishedWords[status]:
		return Signal{Kind: SignalFinished}
	case progressWords[status]:
		return Signal{Kind: SignalProgress}
	case status == "" && code != "" && !mapper.HasIdentity(cb.Envelope):
		return Signal{Kind: SignalError, Code: code}
	}
	return Signal{}
}

// ItemsExpected reads the item count the provider announces, if any.
func (cb *Callback) ItemsExpected() *int {
	if cb.Envelope == nil {
		return nil
	}
	raw := mapper.FirstString(cb.Envelope, "items_expected", "total_items", "records")
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
