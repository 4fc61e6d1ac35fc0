package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components take this interface instead of touching the global Prometheus
// collectors directly so tests can inject MockMetricsRegistry.
type MetricsRegistry interface {
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	IncrementOperation(operation, status string)
	IncrementPolicyDecision(status string)

	IncrementAdapterCall(adapter, method, outcome string)
	RecordAdapterLatency(adapter, method string, duration time.Duration)

	IncrementSyncJob(syncType, status string)
	IncrementNotification(channel, outcome string)
	IncrementAuditWriteErrors()
	IncrementMessages(role string)
}

// PrometheusRegistry implements MetricsRegistry on the package-level
// Prometheus collectors.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry.
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementOperation(operation, status string) {
	OperationCount.WithLabelValues(operation, status).Inc()
}

func (r *PrometheusRegistry) IncrementPolicyDecision(status string) {
	PolicyDecisions.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementAdapterCall(adapter, method, outcome string) {
	AdapterCalls.WithLabelValues(adapter, method, outcome).Inc()
}

func (r *PrometheusRegistry) RecordAdapterLatency(adapter, method string, duration time.Duration) {
	AdapterLatency.WithLabelValues(adapter, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementSyncJob(syncType, status string) {
	SyncJobs.WithLabelValues(syncType, status).Inc()
}

func (r *PrometheusRegistry) IncrementNotification(channel, outcome string) {
	NotificationCount.WithLabelValues(channel, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementAuditWriteErrors() {
	AuditWriteErrors.Inc()
}

func (r *PrometheusRegistry) IncrementMessages(role string) {
	MessageCount.WithLabelValues(role).Inc()
}
