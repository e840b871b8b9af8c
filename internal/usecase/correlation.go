package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/user/webhook-ingest/internal/entity"
	"github.com/user/webhook-ingest/internal/mapper"
	"github.com/user/webhook-ingest/internal/repository"
)

// IdentifierSource is where a correlation identifier was found.
type IdentifierSource int

const (
	SourceHeader IdentifierSource = iota + 1
	SourceQuery
	SourceBody
	SourceTargetURL
)

func (s IdentifierSource) String() string {
	switch s {
	case SourceHeader:
		return "header"
	case SourceQuery:
		return "query"
	case SourceBody:
		return "body"
	case SourceTargetURL:
		return "target_url"
	}
	return "unknown"
}

// Confidence grades how a request was matched.
type Confidence string

const (
	ConfidenceExact     Confidence = "exact"
	ConfidenceHeuristic Confidence = "heuristic"
	ConfidenceNone      Confidence = "none"
)

// Identifier is a candidate provider id extracted from a callback.
type Identifier struct {
	Source IdentifierSource
	Key    string
	Value  string
}

var (
	identifierHeaders = []string{"X-Snapshot-Id", "X-Collection-Id"}
	identifierFields  = []string{"snapshot_id", "collection_id", "request_id"}
)

// identifierExtractor pulls candidate ids from one location of a callback.
type identifierExtractor struct {
	source  IdentifierSource
	extract func(cb *Callback) []Identifier
}

// extractors run in fixed priority order: header, query, body.
var extractors = []identifierExtractor{
	{source: SourceHeader, extract: func(cb *Callback) []Identifier {
		var out []Identifier
		for _, h := range identifierHeaders {
			if v := cb.Headers.Get(h); v != "" {
				out = append(out, Identifier{Source: SourceHeader, Key: h, Value: v})
			}
		}
		return out
	}},
	{source: SourceQuery, extract: func(cb *Callback) []Identifier {
		var out []Identifier
		for _, k := range identifierFields {
			if v := cb.Query.Get(k); v != "" {
				out = append(out, Identifier{Source: SourceQuery, Key: k, Value: v})
			}
		}
		return out
	}},
	{source: SourceBody, extract: func(cb *Callback) []Identifier {
		if cb.Envelope == nil {
			return nil
		}
		var out []Identifier
		for _, k := range identifierFields {
			if v := mapper.FirstString(cb.Envelope, k); v != "" {
				out = append(out, Identifier{Source: SourceBody, Key: k, Value: v})
			}
		}
		for _, k := range identifierFields {
			if v := mapper.FirstString(cb.Envelope, "metadata."+k); v != "" {
				out = append(out, Identifier{Source: SourceBody, Key: "metadata." + k, Value: v})
			}
		}
		return out
	}},
}

// Identifiers lists every exact-match candidate in priority order.
func Identifiers(cb *Callback) []Identifier {
	var out []Identifier
	for _, ex := range extractors {
		out = append(out, ex.extract(cb)...)
	}
	return out
}

// CorrelationResolver ties a callback to the scrape request that caused it.
type CorrelationResolver interface {
	Resolve(ctx context.Context, cb *Callback) (*entity.ScrapeRequest, Confidence, error)
}

type correlationResolver struct {
	requests        repository.ScrapeRequestRepository
	fallbackEnabled bool
	logger          *zap.Logger
}

// NewCorrelationResolver creates a resolver. fallbackEnabled toggles matching
// on the echoed input URL.
func NewCorrelationResolver(requests repository.ScrapeRequestRepository, fallbackEnabled bool, logger *zap.Logger) CorrelationResolver {
	return &correlationResolver{
		requests:        requests,
		fallbackEnabled: fallbackEnabled,
		logger:          logger,
	}
}

// Resolve returns the first matching request. A callback that matches nothing
// yields a nil request with ConfidenceNone and no error; errors are reserved
// for datastore failures. Resolve has no side effects.
func (r *correlationResolver) Resolve(ctx context.Context, cb *Callback) (*entity.ScrapeRequest, Confidence, error) {
	for _, id := range Identifiers(cb) {
		req, err := r.requests.FindByExternalID(ctx, id.Value)
		if errors.Is(err, repository.ErrNotFound) {
			r.logger.Debug("identifier matched no request",
				zap.Stringer("source", id.Source), zap.String("key", id.Key), zap.String("value", id.Value))
			continue
		}
		if err != nil {
			return nil, ConfidenceNone, storeErr("find request by external id", err)
		}
		return req, ConfidenceExact, nil
	}

	if !r.fallbackEnabled {
		return nil, ConfidenceNone, nil
	}
	for _, target := range inputURLs(cb) {
		req, err := r.requests.FindProcessingByTargetURL(ctx, target)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, ConfidenceNone, storeErr("find request by target url", err)
		}
		r.logger.Info("callback correlated heuristically",
			zap.Int64("request_id", req.ID), zap.String("target_url", target))
		return req, ConfidenceHeuristic, nil
	}
	return nil, ConfidenceNone, nil
}

func inputURLs(cb *Callback) []string {
	seen := map[string]bool{}
	var out []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	if cb.Envelope != nil {
		add(mapper.InputURL(cb.Envelope))
	}
	for _, item := range cb.Decoded {
		if item != nil {
			add(mapper.InputURL(item))
		}
	}
	return out
}
