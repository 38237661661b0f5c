// Package metrics records Prometheus metrics for the HTTP pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a registry so that several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry
	classify func(path string) string

	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
	Rejections   *prometheus.CounterVec
	SessionSaves *prometheus.CounterVec
}

// Option configures Metrics.
type Option func(*Metrics)

// WithPathClassifier maps request paths to a bounded set of label values.
func WithPathClassifier(classify func(path string) string) Option {
	return func(m *Metrics) {
		m.classify = classify
	}
}

// New registers the pipeline metrics plus the Go and process collectors.
func New(opts ...Option) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		classify: func(string) string { return "other" },
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP requests by path, method and status."},
			[]string{"path", "method", "status"},
		),
		HTTPLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request latency in seconds.", Buckets: prometheus.DefBuckets},
			[]string{"path", "method"},
		),
		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_rejections_total", Help: "Requests refused by the pipeline, by reason."},
			[]string{"reason"},
		),
		SessionSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "session_writes_total", Help: "Session store writes by operation and outcome."},
			[]string{"op", "outcome"},
		),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.registry.MustRegister(
		m.HTTPRequests, m.HTTPLatency, m.Rejections, m.SessionSaves,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Middleware observes latency and counts requests.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		path := m.classify(r.URL.Path)
		method := methodLabel(r.Method)
		m.HTTPLatency.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
		m.HTTPRequests.WithLabelValues(path, method, strconv.Itoa(rec.status)).Inc()
	})
}

var knownMethods = map[string]struct{}{
	http.MethodGet: {}, http.MethodHead: {}, http.MethodPost: {}, http.MethodPut: {},
	http.MethodPatch: {}, http.MethodDelete: {}, http.MethodConnect: {},
	http.MethodOptions: {}, http.MethodTrace: {},
}

// methodLabel keeps the method label bounded to the standard verbs.
func methodLabel(method string) string {
	if _, ok := knownMethods[method]; ok {
		return method
	}
	return "other"
}

// Reject counts a refused request.
func (m *Metrics) Reject(reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

// SessionWrite counts a session store operation.
func (m *Metrics) SessionWrite(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.SessionSaves.WithLabelValues(op, outcome).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
