// Package metrics exposes bot activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bandcoach"

// Metrics holds the collectors. Each instance owns its registry so tests
// can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	flowsStarted    *prometheus.CounterVec
	flowsFinished   *prometheus.CounterVec
	flowErrors      *prometheus.CounterVec
	scoringDuration *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	droppedUpdates  prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		flowsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_started_total",
			Help:      "Practice sessions started, by section.",
		}, []string{"section"}),
		flowsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_finished_total",
			Help:      "Practice sessions finished, by section and outcome.",
		}, []string{"section", "outcome"}),
		flowErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_errors_total",
			Help:      "Errors surfaced to learners, by kind.",
		}, []string{"kind"}),
		scoringDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Time spent in AI scoring, including transcription.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40},
		}, []string{"section"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "endpoint", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "endpoint"}),
		droppedUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_updates_total",
			Help:      "Inbound updates dropped by the per-learner rate limiter.",
		}),
	}
	m.registry.MustRegister(
		m.flowsStarted, m.flowsFinished, m.flowErrors, m.scoringDuration,
		m.httpRequests, m.httpDuration, m.droppedUpdates,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) FlowStarted(section string) {
	m.flowsStarted.WithLabelValues(section).Inc()
}

func (m *Metrics) FlowFinished(section, outcome string) {
	m.flowsFinished.WithLabelValues(section, outcome).Inc()
}

func (m *Metrics) FlowError(kind string) {
	m.flowErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveScoring(section string, d time.Duration) {
	m.scoringDuration.WithLabelValues(section).Observe(d.Seconds())
}

// UpdateDropped counts an update rejected by rate limiting.
func (m *Metrics) UpdateDropped() {
	m.droppedUpdates.Inc()
}

// Middleware counts and times HTTP requests.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
