package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	stepDurationBuckets = []float64{60, 600, 3600, 14400, 86400, 259200, 604800}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Process metrics
	ProcessCreationsTotal   *prometheus.CounterVec
	ProcessForwardsTotal    *prometheus.CounterVec
	ProcessRevertsTotal     *prometheus.CounterVec
	ProcessCompletionsTotal *prometheus.CounterVec
	ProcessPicksTotal       prometheus.Counter
	ActiveProcesses         prometheus.Gauge
	StepDuration            *prometheus.HistogramVec

	// Inbox metrics
	InboxPendingItems  prometheus.Gauge
	InboxAlertsTotal   prometheus.Counter
	SideEffectFailures *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		ProcessCreationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_process_creations_total",
			Help: "Total number of processes created.",
		}, []string{"department"}),
		ProcessForwardsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_process_forwards_total",
			Help: "Total number of forward transitions.",
		}, []string{"department"}),
		ProcessRevertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_process_reverts_total",
			Help: "Total number of revert transitions.",
		}, []string{"department"}),
		ProcessCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_process_completions_total",
			Help: "Total number of completed processes.",
		}, []string{"department"}),
		ProcessPicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docflow_process_picks_total",
			Help: "Total number of step picks.",
		}),
		ActiveProcesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docflow_active_processes",
			Help: "Number of processes not yet completed.",
		}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docflow_step_duration_seconds",
			Help:    "Time a process spent at a step before transitioning.",
			Buckets: stepDurationBuckets,
		}, []string{"department"}),

		InboxPendingItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "docflow_inbox_pending_items",
			Help: "Total pending inbox items across all users.",
		}),
		InboxAlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docflow_inbox_alerts_total",
			Help: "Total notifications flagged as alerts by the sweep.",
		}),
		SideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docflow_side_effect_failures_total",
			Help: "Total failed best-effort side effects.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ProcessCreationsTotal,
		m.ProcessForwardsTotal,
		m.ProcessRevertsTotal,
		m.ProcessCompletionsTotal,
		m.ProcessPicksTotal,
		m.ActiveProcesses,
		m.StepDuration,
		m.InboxPendingItems,
		m.InboxAlertsTotal,
		m.SideEffectFailures,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusRecorder captures the response status for metric recording.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records request count and duration for every request.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RecordHTTPRequest(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
