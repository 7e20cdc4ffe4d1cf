package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the arbitration client
type PrometheusMetrics struct {
	// Event projection metrics
	EventsProjectedTotal    *prometheus.CounterVec
	BlocksProcessedTotal    prometheus.Counter
	EventProjectionDuration *prometheus.HistogramVec

	// Oracle metrics
	OracleSubmissionsTotal *prometheus.CounterVec
	OraclePollsTotal       *prometheus.CounterVec
	OracleVerdictsTotal    *prometheus.CounterVec
	OraclePollDuration     *prometheus.HistogramVec

	// Claim metrics
	ClaimsTotal        *prometheus.CounterVec
	ClaimStateDuration *prometheus.HistogramVec

	// Connection and error metrics
	ConnectionErrorsTotal *prometheus.CounterVec
	RPCRequestsTotal      *prometheus.CounterVec
	RPCRequestDuration    *prometheus.HistogramVec

	// Ledger metrics
	LatestProcessedBlock prometheus.Gauge
	BlocksBehind         prometheus.Gauge

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec
	DatabaseConnections       prometheus.Gauge

	// Notification metrics
	NotificationsSentTotal    *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		EventsProjectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_events_projected_total",
				Help: "Total number of ledger events folded into projected state",
			},
			[]string{"event_name", "status"},
		),

		BlocksProcessedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "arb_blocks_processed_total",
				Help: "Total number of blocks scanned for arbitration events",
			},
		),

		EventProjectionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arb_event_projection_duration_seconds",
				Help:    "Time spent projecting individual events",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_name"},
		),

		OracleSubmissionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_oracle_submissions_total",
				Help: "Total number of evidence submissions to verification oracles",
			},
			[]string{"oracle_kind", "status"},
		),

		OraclePollsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_oracle_polls_total",
				Help: "Total number of oracle status polls",
			},
			[]string{"oracle_kind", "status"},
		),

		OracleVerdictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_oracle_verdicts_total",
				Help: "Total number of terminal oracle verdicts",
			},
			[]string{"oracle_kind", "verdict"},
		),

		OraclePollDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arb_oracle_poll_duration_seconds",
				Help:    "Duration of oracle status polls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"oracle_kind"},
		),

		ClaimsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_claims_total",
				Help: "Total number of compensation claims by type and outcome",
			},
			[]string{"claim_type", "outcome"},
		),

		ClaimStateDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arb_claim_state_duration_seconds",
				Help:    "Time claims spend in each orchestration state",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"state"},
		),

		ConnectionErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_connection_errors_total",
				Help: "Total number of connection errors to ledger nodes",
			},
			[]string{"endpoint", "error_type"},
		),

		RPCRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_rpc_requests_total",
				Help: "Total number of RPC requests made to ledger nodes",
			},
			[]string{"endpoint", "method", "status"},
		),

		RPCRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arb_rpc_request_duration_seconds",
				Help:    "Duration of RPC requests to ledger nodes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "method"},
		),

		LatestProcessedBlock: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_latest_processed_block",
				Help: "Latest block number folded into the projection",
			},
		),

		BlocksBehind: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_blocks_behind",
				Help: "Number of blocks behind the latest chain block",
			},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arb_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		DatabaseConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_database_connections",
				Help: "Number of active database connections",
			},
		),

		NotificationsSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_notifications_sent_total",
				Help: "Total number of notifications sent",
			},
			[]string{"channel", "type"},
		),

		NotificationFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_notification_failures_total",
				Help: "Total number of failed notifications",
			},
			[]string{"channel", "type", "error"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "arb_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "arb_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "arb_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "arb_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// RecordEventProjected records a projected event
func (m *PrometheusMetrics) RecordEventProjected(eventName, status string, duration time.Duration) {
	m.EventsProjectedTotal.WithLabelValues(eventName, status).Inc()
	m.EventProjectionDuration.WithLabelValues(eventName).Observe(duration.Seconds())
}

// RecordBlocksProcessed records scanned blocks
func (m *PrometheusMetrics) RecordBlocksProcessed(count uint64) {
	m.BlocksProcessedTotal.Add(float64(count))
}

// RecordOracleSubmission records an evidence submission outcome
func (m *PrometheusMetrics) RecordOracleSubmission(oracleKind, status string) {
	m.OracleSubmissionsTotal.WithLabelValues(oracleKind, status).Inc()
}

// RecordOraclePoll records one status poll
func (m *PrometheusMetrics) RecordOraclePoll(oracleKind, status string, duration time.Duration) {
	m.OraclePollsTotal.WithLabelValues(oracleKind, status).Inc()
	m.OraclePollDuration.WithLabelValues(oracleKind).Observe(duration.Seconds())
}

// RecordOracleVerdict records a terminal verdict
func (m *PrometheusMetrics) RecordOracleVerdict(oracleKind, verdict string) {
	m.OracleVerdictsTotal.WithLabelValues(oracleKind, verdict).Inc()
}

// RecordClaim records a claim outcome
func (m *PrometheusMetrics) RecordClaim(claimType, outcome string) {
	m.ClaimsTotal.WithLabelValues(claimType, outcome).Inc()
}

// RecordClaimStateDuration records time spent in one orchestration state
func (m *PrometheusMetrics) RecordClaimStateDuration(state string, duration time.Duration) {
	m.ClaimStateDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(endpoint, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// RecordRPCRequest records an RPC request
func (m *PrometheusMetrics) RecordRPCRequest(endpoint, method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// UpdateLatestProcessedBlock updates the latest processed block metric
func (m *PrometheusMetrics) UpdateLatestProcessedBlock(blockNumber uint64) {
	m.LatestProcessedBlock.Set(float64(blockNumber))
}

// UpdateBlocksBehind updates the blocks behind metric
func (m *PrometheusMetrics) UpdateBlocksBehind(behind uint64) {
	m.BlocksBehind.Set(float64(behind))
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// UpdateDatabaseConnections updates the database connections metric
func (m *PrometheusMetrics) UpdateDatabaseConnections(count int) {
	m.DatabaseConnections.Set(float64(count))
}

// RecordNotificationSent records a sent notification
func (m *PrometheusMetrics) RecordNotificationSent(channel, notificationType string) {
	m.NotificationsSentTotal.WithLabelValues(channel, notificationType).Inc()
}

// RecordNotificationFailure records a failed notification
func (m *PrometheusMetrics) RecordNotificationFailure(channel, notificationType, errorType string) {
	m.NotificationFailuresTotal.WithLabelValues(channel, notificationType, errorType).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
