package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func metricValue(t *testing.T, r *Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				switch {
				case m.Counter != nil:
					return m.GetCounter().GetValue()
				case m.Gauge != nil:
					return m.GetGauge().GetValue()
				case m.Histogram != nil:
					return float64(m.GetHistogram().GetSampleCount())
				}
			}
		}
	}
	return -1
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			found++
		}
	}
	return found == len(labels)
}

// TestObserveJob tests job run and duration recording
func TestObserveJob(t *testing.T) {
	r := NewRegistry()
	r.ObserveJob("fast_processing", 10*time.Millisecond, nil)
	r.ObserveJob("fast_processing", 10*time.Millisecond, errors.New("boom"))
	r.RecordSkip("fast_processing")

	if v := metricValue(t, r, "fleet_job_runs_total", map[string]string{"job": "fast_processing", "result": "success"}); v != 1 {
		t.Errorf("Expected 1 successful run, got %v", v)
	}
	if v := metricValue(t, r, "fleet_job_runs_total", map[string]string{"job": "fast_processing", "result": "error"}); v != 1 {
		t.Errorf("Expected 1 failed run, got %v", v)
	}
	if v := metricValue(t, r, "fleet_job_duration_seconds", map[string]string{"job": "fast_processing"}); v != 2 {
		t.Errorf("Expected 2 duration samples, got %v", v)
	}
	if v := metricValue(t, r, "fleet_job_skips_total", map[string]string{"job": "fast_processing"}); v != 1 {
		t.Errorf("Expected 1 skip, got %v", v)
	}
}

// TestSetFleetResetsStatuses tests that stale status gauges are cleared
func TestSetFleetResetsStatuses(t *testing.T) {
	r := NewRegistry()
	r.SetFleet(map[string]int{"learning": 3}, 10, 50)
	r.SetFleet(map[string]int{"trading": 2}, 25, 75)

	if v := metricValue(t, r, "fleet_bots", map[string]string{"status": "learning"}); v != -1 {
		t.Errorf("Expected learning gauge removed, got %v", v)
	}
	if v := metricValue(t, r, "fleet_bots", map[string]string{"status": "trading"}); v != 2 {
		t.Errorf("Expected 2 trading bots, got %v", v)
	}
	if v := metricValue(t, r, "fleet_profit_loss", nil); v != 25 {
		t.Errorf("Expected profit 25, got %v", v)
	}
}

// TestNilRegistry tests that a nil registry is a no-op
func TestNilRegistry(t *testing.T) {
	var r *Registry
	r.ObserveJob("x", time.Second, nil)
	r.RecordTrade("simulated")
	r.RecordSignal("godmode")
	r.SetAnalysis(100, 1)
}

// TestHandlerServesMetrics tests the HTTP exposition
func TestHandlerServesMetrics(t *testing.T) {
	r := NewRegistry()
	r.RecordTrade("executed")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `fleet_trades_total{origin="executed"} 1`) {
		t.Errorf("Expected trade counter in output")
	}
}
