package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes Prometheus metrics for inbound HTTP traffic and the
// acquisition pipeline.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	jobsTotal       *prometheus.CounterVec
	tierAttempts    *prometheus.CounterVec
	versionsCreated prometheus.Counter
}

// NewCollector constructs a collector with default histograms/counters.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "healthpulse",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency distribution for inbound HTTP requests.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthpulse",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of inbound HTTP requests.",
	}, []string{"method", "path", "status"})

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthpulse",
		Subsystem: "etl",
		Name:      "jobs_total",
		Help:      "ETL jobs by terminal status.",
	}, []string{"status"})

	tierAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthpulse",
		Subsystem: "scraper",
		Name:      "tier_attempts_total",
		Help:      "Extraction attempts by tier and outcome.",
	}, []string{"tier", "outcome"})

	versionsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthpulse",
		Subsystem: "versions",
		Name:      "created_total",
		Help:      "Dataset versions appended after a detected change.",
	})

	for _, c := range []prometheus.Collector{requestDuration, requestTotal, jobsTotal, tierAttempts, versionsCreated} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:        registry,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		jobsTotal:       jobsTotal,
		tierAttempts:    tierAttempts,
		versionsCreated: versionsCreated,
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

// ObserveJob records a job reaching a terminal status.
func (c *Collector) ObserveJob(status string) {
	c.jobsTotal.WithLabelValues(status).Inc()
}

// ObserveTierAttempt records one extraction attempt outcome for a tier.
func (c *Collector) ObserveTierAttempt(tier, outcome string) {
	c.tierAttempts.WithLabelValues(tier, outcome).Inc()
}

// ObserveVersionCreated records a new dataset version append.
func (c *Collector) ObserveVersionCreated() {
	c.versionsCreated.Inc()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
