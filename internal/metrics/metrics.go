package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for inbound HTTP requests and
// pipeline runs.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	articlesFetched *prometheus.CounterVec
	sourceFailures  *prometheus.CounterVec
	articlesStaged  *prometheus.CounterVec
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "archyards",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "archyards",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "archyards",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by trigger and outcome.",
	}, []string{"trigger", "outcome"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "archyards",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of pipeline runs.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	articlesFetched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "archyards",
		Subsystem: "pipeline",
		Name:      "candidates_fetched_total",
		Help:      "Candidates fetched per source.",
	}, []string{"source"})

	sourceFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "archyards",
		Subsystem: "pipeline",
		Name:      "source_failures_total",
		Help:      "Per-source fetch failures.",
	}, []string{"source"})

	articlesStaged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "archyards",
		Subsystem: "pipeline",
		Name:      "articles_total",
		Help:      "Articles counted per pipeline stage.",
	}, []string{"stage"})

	for _, c := range []prometheus.Collector{
		requestDuration, requestTotal, runsTotal, runDuration,
		articlesFetched, sourceFailures, articlesStaged,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:        registry,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		runsTotal:       runsTotal,
		runDuration:     runDuration,
		articlesFetched: articlesFetched,
		sourceFailures:  sourceFailures,
		articlesStaged:  articlesStaged,
	}, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

// ObserveRun records one completed pipeline run.
func (c *Collector) ObserveRun(trigger, outcome string, duration time.Duration) {
	c.runsTotal.WithLabelValues(trigger, outcome).Inc()
	c.runDuration.Observe(duration.Seconds())
}

// ObserveFetch records a per-source fetch result.
func (c *Collector) ObserveFetch(source string, candidates int, failed bool) {
	if failed {
		c.sourceFailures.WithLabelValues(source).Inc()
		return
	}
	c.articlesFetched.WithLabelValues(source).Add(float64(candidates))
}

// ObserveStage adds to a pipeline stage counter (selected, rewritten,
// rewrite_failed, published).
func (c *Collector) ObserveStage(stage string, n int) {
	c.articlesStaged.WithLabelValues(stage).Add(float64(n))
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
