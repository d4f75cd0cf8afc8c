// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatagramsTotal counts datagrams seen by source and direction
	DatagramsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirelab_datagrams_total",
			Help: "Total number of datagrams handled",
		},
		[]string{"source", "direction"},
	)

	// IdentifiedTotal counts identification outcomes. protocol and template
	// are empty for unidentified payloads.
	IdentifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirelab_identified_total",
			Help: "Total number of payloads identified, by protocol and template",
		},
		[]string{"protocol", "template", "parser"},
	)

	// DecodeErrorsTotal counts decoded fields carrying an error marker
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirelab_decode_errors_total",
			Help: "Total number of field-level decode errors",
		},
		[]string{"protocol", "kind"},
	)

	// IdentifyLatencySeconds measures one identification
	IdentifyLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wirelab_identify_latency_seconds",
			Help:    "Latency of payload identification in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 20), // 1µs to ~1s
		},
	)

	// AutoRepliesTotal counts reply datagrams sent by rule
	AutoRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirelab_auto_replies_total",
			Help: "Total number of auto-reply datagrams sent",
		},
		[]string{"rule", "result"},
	)

	// ReporterBatchSize tracks how many events each reporter flush carried
	ReporterBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wirelab_reporter_batch_size",
			Help:    "Number of events sent per reporter batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1, 2, 4, ..., 2048
		},
		[]string{"reporter"},
	)

	// ReporterErrorsTotal counts reporter errors by name and error type
	ReporterErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirelab_reporter_errors_total",
			Help: "Total number of reporter errors",
		},
		[]string{"reporter", "error_type"},
	)

	// HTTPRequestsTotal counts API requests by route and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wirelab_http_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"route", "status"},
	)
)
