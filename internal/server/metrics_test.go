package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// newMetricsTestServer builds a Server backed by a fresh isolated registry so
// tests do not pollute prometheus.DefaultRegisterer.
func newMetricsTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := &Server{
		planner: &fakePlanner{plan: acceptedPlan()},
		cfg: &Config{
			PlanTimeout:     time.Minute,
			MetricsRegistry: reg,
			MetricsGatherer: reg,
		},
		metrics: newServerMetrics(reg),
	}
	return s, reg
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	_, reg := newMetricsTestServer(t)

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_PlanCounterIncremented(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.observePlan("nuevo_paciente", time.Now(), nil)
	s.observePlan("nuevo_paciente", time.Now(), nutrition.ErrGenerationTimeout)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	counts := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "nutria_plan_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var outcome string
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" {
					outcome = lp.GetValue()
				}
			}
			counts[outcome] = m.GetCounter().GetValue()
		}
	}
	if counts["ok"] != 1 {
		t.Errorf("want ok=1, got %v", counts["ok"])
	}
	if counts["timeout"] != 1 {
		t.Errorf("want timeout=1, got %v", counts["timeout"])
	}
}

func Test_Metrics_ExhaustedOutcome(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	s.observePlan("control", time.Now(), nutrition.ErrValidationExhausted)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() != "nutria_plan_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == "exhausted" {
					if m.GetCounter().GetValue() != 1 {
						t.Errorf("want exhausted=1, got %v", m.GetCounter().GetValue())
					}
					return
				}
			}
		}
	}
	t.Error("nutria_plan_requests_total{outcome=\"exhausted\"} not found in gathered metrics")
}

func Test_Metrics_InflightGaugeReturnsToZero(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	done := s.trackPlan("nuevo_paciente")

	if got := inflightValue(t, reg, "nuevo_paciente"); got != 1 {
		t.Errorf("want inflight=1 during request, got %v", got)
	}

	done(nil)

	if got := inflightValue(t, reg, "nuevo_paciente"); got != 0 {
		t.Errorf("want inflight=0 after request, got %v", got)
	}
}

func inflightValue(t *testing.T, reg *prometheus.Registry, motor string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "nutria_plan_inflight" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "motor" && lp.GetValue() == motor {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func Test_Metrics_InstrumentRecordsStatus(t *testing.T) {
	t.Parallel()
	s, reg := newMetricsTestServer(t)

	h := s.instrument("plan_new", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/plan/new", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, mf := range mfs {
		if mf.GetName() != "nutria_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["handler"] == "plan_new" && labels["code"] == "422" {
				if m.GetCounter().GetValue() != 1 {
					t.Errorf("want counter=1, got %v", m.GetCounter().GetValue())
				}
				return
			}
		}
	}
	t.Error("nutria_http_requests_total{handler=\"plan_new\",code=\"422\"} not found")
}
