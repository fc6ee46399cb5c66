package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	/* Request metrics */
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "governor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	/* Approval gate metrics */
	approvalDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_approval_decisions_total",
			Help: "Total number of approval gate decisions",
		},
		[]string{"action", "requires_approval"},
	)

	approvalsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_approvals_resolved_total",
			Help: "Total number of approvals that reached a terminal status",
		},
		[]string{"status"},
	)

	/* Quota metrics */
	quotaChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_quota_checks_total",
			Help: "Total number of quota checks by result",
		},
		[]string{"action", "result"},
	)

	/* Audit metrics */
	auditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_audit_entries_total",
			Help: "Total number of audit entries written",
		},
		[]string{"action", "success"},
	)

	auditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "governor_audit_write_failures_total",
			Help: "Total number of audit entries that could not be stored",
		},
	)

	/* Workflow metrics */
	workflowStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_workflow_steps_total",
			Help: "Total number of workflow step attempts by outcome",
		},
		[]string{"action", "outcome"},
	)

	workflowsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_workflows_created_total",
			Help: "Total number of workflow creation attempts by result",
		},
		[]string{"result"},
	)

	workflowStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "governor_workflow_step_duration_seconds",
			Help:    "Executor duration per workflow step in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"action"},
	)

	/* Notification metrics */
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_notifications_total",
			Help: "Total number of session notifications by status",
		},
		[]string{"status"},
	)

	/* Database connection pool metrics */
	dbPoolConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "governor_db_pool_connections",
			Help: "Database connections by state",
		},
		[]string{"state"},
	)
)

/* RecordHTTPRequest records an HTTP request */
func RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	statusClass := strconv.Itoa(status/100) + "xx"
	httpRequestsTotal.WithLabelValues(method, endpoint, statusClass).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

/* RecordApprovalDecision records an approval gate decision */
func RecordApprovalDecision(action string, requiresApproval bool) {
	approvalDecisionsTotal.WithLabelValues(action, strconv.FormatBool(requiresApproval)).Inc()
}

/* RecordApprovalResolved records an approval reaching a terminal status */
func RecordApprovalResolved(status string) {
	approvalsResolvedTotal.WithLabelValues(status).Inc()
}

/* RecordApprovalsExpired records a bulk expiry sweep */
func RecordApprovalsExpired(count int) {
	approvalsResolvedTotal.WithLabelValues("expired").Add(float64(count))
}

/* RecordQuotaCheck records a quota check. result is "allowed" or the name of the failing check */
func RecordQuotaCheck(action, result string) {
	quotaChecksTotal.WithLabelValues(action, result).Inc()
}

/* RecordAuditEntry records an audit entry that was stored */
func RecordAuditEntry(action string, success bool) {
	auditEntriesTotal.WithLabelValues(action, strconv.FormatBool(success)).Inc()
}

/* RecordAuditWriteFailure records an audit entry that could not be stored */
func RecordAuditWriteFailure() {
	auditWriteFailuresTotal.Inc()
}

/* RecordWorkflowStep records a workflow step attempt */
func RecordWorkflowStep(action, outcome string) {
	workflowStepsTotal.WithLabelValues(action, outcome).Inc()
}

/* RecordWorkflowCreated records a workflow creation attempt */
func RecordWorkflowCreated(result string) {
	workflowsCreatedTotal.WithLabelValues(result).Inc()
}

/* RecordStepExecution records executor latency for a step */
func RecordStepExecution(action string, duration time.Duration) {
	workflowStepDuration.WithLabelValues(action).Observe(duration.Seconds())
}

/* RecordNotification records a session notification attempt */
func RecordNotification(status string) {
	notificationsTotal.WithLabelValues(status).Inc()
}

/* RecordDBPoolStats records database connection pool statistics */
func RecordDBPoolStats(total, idle, acquired int32) {
	dbPoolConns.WithLabelValues("total").Set(float64(total))
	dbPoolConns.WithLabelValues("idle").Set(float64(idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(acquired))
}

/* GinMiddleware records request count and latency per route template */
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}

/* Handler returns the Prometheus metrics handler */
func Handler() http.Handler {
	return promhttp.Handler()
}
