package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsales_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsales_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// executor operation outcomes
	OperationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsales_operations_total",
			Help: "Total executor operations by outcome",
		},
		[]string{"operation", "status"},
	)

	// policy engine decisions
	PolicyDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsales_policy_decisions_total",
			Help: "Total policy checks by resulting status",
		},
		[]string{"status"},
	)

	// adapter calls per ad server and method, labelled by outcome
	AdapterCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsales_adapter_calls_total",
			Help: "Total ad-server adapter calls",
		},
		[]string{"adapter", "method", "outcome"},
	)

	// adapter upstream latency
	AdapterLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adsales_adapter_duration_seconds",
			Help:    "Duration of ad-server adapter calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"adapter", "method"},
	)

	// inventory sync jobs per type and terminal status
	SyncJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsales_sync_jobs_total",
			Help: "Total inventory sync jobs by terminal status",
		},
		[]string{"sync_type", "status"},
	)

	// notification deliveries, labelled by channel and outcome
	NotificationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsales_notifications_total",
			Help: "Total side-channel notifications",
		},
		[]string{"channel", "outcome"},
	)

	// audit records that failed to persist
	AuditWriteErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adsales_audit_write_errors_total",
			Help: "Total audit records that could not be persisted",
		},
	)

	// conversation messages persisted, labelled by role
	MessageCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adsales_messages_total",
			Help: "Total conversation messages persisted",
		},
		[]string{"role"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		OperationCount,
		PolicyDecisions,
		AdapterCalls,
		AdapterLatency,
		SyncJobs,
		NotificationCount,
		AuditWriteErrors,
		MessageCount,
	)
}
