package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := InitMetrics(reg)
	return m, reg
}

func TestInitMetrics_registersAllMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)
	if m == nil {
		t.Fatal("InitMetrics returned nil")
	}

	// Touch every instrument so Gather reports the vectors too.
	m.HTTPRequestsTotal.WithLabelValues("GET", "/api/processes", "200").Inc()
	m.HTTPRequestDuration.WithLabelValues("GET", "/api/processes").Observe(0.05)
	m.ProcessCreationsTotal.WithLabelValues("accounts").Inc()
	m.ProcessForwardsTotal.WithLabelValues("accounts").Inc()
	m.ProcessRevertsTotal.WithLabelValues("accounts").Inc()
	m.ProcessCompletionsTotal.WithLabelValues("accounts").Inc()
	m.ProcessPicksTotal.Inc()
	m.ActiveProcesses.Set(3)
	m.StepDuration.WithLabelValues("accounts").Observe(120)
	m.InboxPendingItems.Set(5)
	m.InboxAlertsTotal.Inc()
	m.SideEffectFailures.WithLabelValues("email").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	expected := []string{
		"docflow_http_requests_total",
		"docflow_http_request_duration_seconds",
		"docflow_process_creations_total",
		"docflow_process_forwards_total",
		"docflow_process_reverts_total",
		"docflow_process_completions_total",
		"docflow_process_picks_total",
		"docflow_active_processes",
		"docflow_step_duration_seconds",
		"docflow_inbox_pending_items",
		"docflow_inbox_alerts_total",
		"docflow_side_effect_failures_total",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordHTTPRequest(http.MethodPost, "/api/processes/{id}/forward", 200, 30*time.Millisecond)
	m.RecordHTTPRequest(http.MethodPost, "/api/processes/{id}/forward", 200, 40*time.Millisecond)
	m.RecordHTTPRequest(http.MethodPost, "/api/processes/{id}/forward", 422, 10*time.Millisecond)

	ok := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/processes/{id}/forward", "200"))
	if ok != 2 {
		t.Errorf("200 count = %v, want 2", ok)
	}
	failed := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/processes/{id}/forward", "422"))
	if failed != 1 {
		t.Errorf("422 count = %v, want 1", failed)
	}
}

func TestMetricsMiddleware_countsRequests(t *testing.T) {
	m, _ := newTestMetrics(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := m.MetricsMiddleware(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/processes/p1", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := testutil.CollectAndCount(m.HTTPRequestsTotal); got != 1 {
		t.Errorf("requests total series = %d, want 1", got)
	}
}

func TestStatusRecorder_defaultsTo200(t *testing.T) {
	m, _ := newTestMetrics(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	handler := m.MetricsMiddleware(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")); got != 1 {
		t.Errorf("200 count = %v, want 1", got)
	}
}
