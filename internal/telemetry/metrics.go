package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	WebhooksTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	DispatchesTotal *prometheus.CounterVec
	CarrierErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		WebhooksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_webhooks_total",
				Help: "Total number of inbound webhook events by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dispatch_request_duration_seconds",
				Help:    "Request duration in seconds by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		DispatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_carrier_dispatches_total",
				Help: "Total carrier dispatch attempts by carrier and status",
			},
			[]string{"carrier", "status"},
		),
		CarrierErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_carrier_errors_total",
				Help: "Total carrier API errors by carrier and error type",
			},
			[]string{"carrier", "error_type"},
		),
	}
}

// RecordWebhook records an inbound webhook metric.
func (m *Metrics) RecordWebhook(source, outcome string) {
	m.WebhooksTotal.WithLabelValues(source, outcome).Inc()
}

// RecordDuration records an operation duration metric.
func (m *Metrics) RecordDuration(operation string, duration float64) {
	m.RequestDuration.WithLabelValues(operation).Observe(duration)
}

// RecordDispatch records a carrier dispatch attempt.
func (m *Metrics) RecordDispatch(carrier, status string) {
	m.DispatchesTotal.WithLabelValues(carrier, status).Inc()
}

// RecordError records a carrier error metric.
func (m *Metrics) RecordError(carrier, errorType string) {
	m.CarrierErrors.WithLabelValues(carrier, errorType).Inc()
}
