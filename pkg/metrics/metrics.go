package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// CallbacksTotal counts webhook callbacks by outcome:
	// stored, uncorrelated, invalid_json, unauthorized, too_large, store_error,
	// timeout, internal_error.
	CallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_callbacks_total",
			Help: "Total number of webhook callbacks by outcome.",
		},
		[]string{"outcome"},
	)

	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_items_total",
			Help: "Webhook items by platform and result (inserted, updated, failed, unmappable, signal).",
		},
		[]string{"platform", "result"},
	)

	MappingWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_mapping_warnings_total",
			Help: "Non-fatal field mapping warnings.",
		},
		[]string{"platform"},
	)

	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_seconds",
			Help:    "Time spent processing one webhook callback.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	RequestTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_request_transitions_total",
			Help: "Scrape request status transitions.",
		},
		[]string{"from", "to"},
	)

	FolderIterationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folder_iterations_created_total",
			Help: "Scrape-iteration folders created.",
		},
		[]string{"platform"},
	)
)
