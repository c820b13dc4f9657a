package connection

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/yndnr/libos-go/internal/telemetry/metric"
)

func TestHTTPClient_Scrape(t *testing.T) {
	m := metric.NewRegistry()
	m.ThreadsTerminated.WithLabelValues(metric.PathRemote).Add(2)
	m.ThreadsTerminated.WithLabelValues(metric.PathLocalParent).Inc()
	m.HelperDrain.Observe(0.25)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	families, err := NewHTTPClient(server.URL, "dev").Scrape(context.Background(), "libos_")
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	for i := 1; i < len(families); i++ {
		if families[i-1].GetName() > families[i].GetName() {
			t.Errorf("families not sorted: %s before %s", families[i-1].GetName(), families[i].GetName())
		}
	}

	samples := Samples(families)
	byKey := make(map[string]Sample)
	for _, s := range samples {
		if !strings.HasPrefix(s.Name, "libos_") {
			t.Errorf("sample %s does not match the prefix", s.Name)
		}
		byKey[s.Name+"/"+s.Labels["path"]] = s
	}

	tests := []struct {
		key   string
		typ   string
		value float64
		count uint64
	}{
		{"libos_threads_terminated_total/remote", "counter", 2, 0},
		{"libos_threads_terminated_total/local_parent", "counter", 1, 0},
		{"libos_duplicate_terminations_total/", "counter", 0, 0},
		{"libos_helper_drain_seconds/", "histogram", 0.25, 1},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			s, ok := byKey[tt.key]
			if !ok {
				t.Fatalf("sample %s missing from %v", tt.key, samples)
			}
			if s.Type != tt.typ || s.Value != tt.value || s.Count != tt.count {
				t.Errorf("sample = %+v, want type %s value %v count %d", s, tt.typ, tt.value, tt.count)
			}
		})
	}
}

func TestSamples_Empty(t *testing.T) {
	if got := Samples(nil); len(got) != 0 {
		t.Errorf("Samples(nil) = %v, want empty", got)
	}
}
