package metric

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r.registry == nil {
		t.Fatal("registry field is nil")
	}
	if r.ThreadsTerminated == nil || r.ProcessExits == nil || r.HelperDrain == nil {
		t.Error("metrics should be initialized")
	}
}

func TestGlobal(t *testing.T) {
	if Global() != Global() {
		t.Error("Global() should return the same instance")
	}
	if Handler() == nil {
		t.Error("Handler() returned nil")
	}
}

func TestHandler_RuntimeCollectors(t *testing.T) {
	body := scrape(t, NewRegistry())

	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected go_goroutines metric")
	}
	if !strings.Contains(body, "process_") {
		t.Error("expected process metrics")
	}
}

func TestExitMetrics(t *testing.T) {
	r := NewRegistry()

	r.ThreadsTerminated.WithLabelValues(PathLocalParent).Inc()
	r.ThreadsTerminated.WithLabelValues(PathLocalParent).Inc()
	r.ThreadsTerminated.WithLabelValues(PathRemote).Inc()
	r.DuplicateTerminations.Inc()
	r.RemoteNotifications.WithLabelValues(ReasonOrphan).Inc()
	r.ProcessExits.WithLabelValues(OutcomeCleanup).Inc()
	r.HelperDrain.Observe(0.002)

	if got := testutil.ToFloat64(r.ThreadsTerminated.WithLabelValues(PathLocalParent)); got != 2 {
		t.Errorf("threads_terminated_total{path=local_parent} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.DuplicateTerminations); got != 1 {
		t.Errorf("duplicate_terminations_total = %v, want 1", got)
	}

	body := scrape(t, r)
	for _, want := range []string{
		`libos_threads_terminated_total{path="remote"} 1`,
		`libos_remote_notifications_total{reason="orphan"} 1`,
		`libos_process_exits_total{outcome="cleanup"} 1`,
		"libos_helper_drain_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %s", want)
		}
	}
}

func TestCounterValues(t *testing.T) {
	r := NewRegistry()
	r.ThreadsTerminated.WithLabelValues(PathLocalParent).Add(2)
	r.ThreadsTerminated.WithLabelValues(PathRemote).Inc()
	r.SigchldEnqueued.Inc()

	tests := []struct {
		name   string
		metric string
		label  string
		want   map[string]float64
	}{
		{"labelled", "threads_terminated_total", "path", map[string]float64{PathLocalParent: 2, PathRemote: 1}},
		{"unlabelled", "sigchld_enqueued_total", "", map[string]float64{"": 1}},
		{"no samples", "remote_notifications_total", "reason", map[string]float64{}},
		{"unknown", "nope_total", "", map[string]float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.CounterValues(tt.metric, tt.label)
			if err != nil {
				t.Fatalf("CounterValues() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("CounterValues() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("CounterValues()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestCounterValues_NotACounter(t *testing.T) {
	r := NewRegistry()
	r.HelperDrain.Observe(0.01)
	if _, err := r.CounterValues("helper_drain_seconds", ""); err == nil {
		t.Error("CounterValues() on a histogram error = nil, want error")
	}
}
