package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/errandhub/backend/internal/apperr"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errandhub_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "errandhub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LedgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errandhub_ledger_operations_total",
			Help: "Wallet ledger operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	TaskTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errandhub_task_transitions_total",
			Help: "Task lifecycle transitions by outcome",
		},
		[]string{"transition", "outcome"},
	)

	DepositsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errandhub_deposits_total",
			Help: "Deposits by payment method and final status",
		},
		[]string{"method", "status"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errandhub_notifications_total",
			Help: "Task notifications delivered by event and status",
		},
		[]string{"event", "status"},
	)
)

// Outcome turns an error into a low-cardinality label value.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := apperr.CodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordLedgerOp(operation string, err error) {
	LedgerOperationsTotal.WithLabelValues(operation, Outcome(err)).Inc()
}

func RecordTaskTransition(transition string, err error) {
	TaskTransitionsTotal.WithLabelValues(transition, Outcome(err)).Inc()
}

func RecordDeposit(method, status string) {
	DepositsTotal.WithLabelValues(method, status).Inc()
}

func RecordNotification(event, status string) {
	NotificationsTotal.WithLabelValues(event, status).Inc()
}
