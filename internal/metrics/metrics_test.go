package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorRecordsHTTPMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	handlerInvoked := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerInvoked = true
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	instrumented := collector.InstrumentHandler(handler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	instrumented.ServeHTTP(rr, req)

	if !handlerInvoked {
		t.Fatal("expected handler to be invoked")
	}
	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	collector.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if metricsRR.Code != http.StatusOK {
		t.Fatalf("expected metrics handler to return 200, got %d", metricsRR.Code)
	}

	body := metricsRR.Body.String()
	if !strings.Contains(body, `archyards_http_requests_total{method="GET",path="/test",status="202"} 1`) {
		t.Fatalf("requests_total metric not recorded, body=%q", body)
	}
}

func TestCollectorRecordsPipelineMetrics(t *testing.T) {
	collector, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector returned error: %v", err)
	}

	collector.ObserveRun("manual", "ok", 2*time.Second)
	collector.ObserveFetch("Dezeen", 12, false)
	collector.ObserveFetch("Wallpaper", 0, true)
	collector.ObserveStage("selected", 5)

	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rr.Body.String()
	for _, want := range []string{
		`archyards_pipeline_runs_total{outcome="ok",trigger="manual"} 1`,
		`archyards_pipeline_candidates_fetched_total{source="Dezeen"} 12`,
		`archyards_pipeline_source_failures_total{source="Wallpaper"} 1`,
		`archyards_pipeline_articles_total{stage="selected"} 5`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metric missing: %s", want)
		}
	}
}
