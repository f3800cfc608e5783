// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Poller metrics
	PollCycles           *prometheus.CounterVec
	SignaturesFetched    prometheus.Counter
	EventsClassified     *prometheus.CounterVec
	PayloadBuildFailures prometheus.Counter

	// Dispatch metrics
	WebhooksDispatched *prometheus.CounterVec
	DispatchLatency    prometheus.Histogram

	// Ingestion metrics
	EnvelopesReceived prometheus.Counter
	EnvelopesStored   *prometheus.CounterVec
	EnvelopesSkipped  prometheus.Counter

	// RPC metrics
	RPCCallLatency *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "treasure_monitor"
	}

	return &Metrics{
		PollCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "cycles_total",
			Help:      "Total number of poll cycles by status",
		}, []string{"status"}),
		SignaturesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "signatures_fetched_total",
			Help:      "Total number of new signatures fetched",
		}),
		EventsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "events_classified_total",
			Help:      "Total number of transactions classified by event type",
		}, []string{"event_type"}),
		PayloadBuildFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "payload_build_failures_total",
			Help:      "Total number of transactions that could not be rendered as payloads",
		}),

		WebhooksDispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "webhooks_total",
			Help:      "Total number of webhook deliveries by event type and status",
		}, []string{"event_type", "status"}),
		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "latency_seconds",
			Help:      "Webhook delivery latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		EnvelopesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "envelopes_received_total",
			Help:      "Total number of webhook envelopes received",
		}),
		EnvelopesStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "envelopes_stored_total",
			Help:      "Total number of envelopes persisted by record kind",
		}, []string{"kind"}),
		EnvelopesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "envelopes_skipped_total",
			Help:      "Total number of envelopes skipped as unprocessable",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of the last poll cycle that completed without error",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPollCycle records a completed poll cycle.
func RecordPollCycle(status string) {
	DefaultMetrics.PollCycles.WithLabelValues(status).Inc()
}

// RecordSignaturesFetched adds to the fetched-signature counter.
func RecordSignaturesFetched(n int) {
	DefaultMetrics.SignaturesFetched.Add(float64(n))
}

// RecordEventClassified increments the classification counter for an event type.
func RecordEventClassified(eventType string) {
	DefaultMetrics.EventsClassified.WithLabelValues(eventType).Inc()
}

// RecordPayloadBuildFailure increments the unbuildable-payload counter.
func RecordPayloadBuildFailure() {
	DefaultMetrics.PayloadBuildFailures.Inc()
}

// RecordWebhookDispatched records one delivery attempt.
func RecordWebhookDispatched(eventType, status string, seconds float64) {
	DefaultMetrics.WebhooksDispatched.WithLabelValues(eventType, status).Inc()
	DefaultMetrics.DispatchLatency.Observe(seconds)
}

// RecordEnvelopeReceived increments the received-envelope counter.
func RecordEnvelopeReceived() {
	DefaultMetrics.EnvelopesReceived.Inc()
}

// RecordEnvelopeStored increments the stored counter for a record kind.
func RecordEnvelopeStored(kind string) {
	DefaultMetrics.EnvelopesStored.WithLabelValues(kind).Inc()
}

// RecordEnvelopeSkipped increments the skipped-envelope counter.
func RecordEnvelopeSkipped() {
	DefaultMetrics.EnvelopesSkipped.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// MarkCycleSuccess sets the last-successful-cycle timestamp to now.
func MarkCycleSuccess(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulCycle.Set(float64(unixSeconds))
}
