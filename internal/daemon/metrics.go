package daemon

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	SearchCacheTotal *prometheus.CounterVec
	LoadErrorsTotal  *prometheus.CounterVec

	Crates       prometheus.Gauge
	Implementors prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferrisindex_requests_total",
				Help: "Total number of daemon requests",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ferrisindex_request_duration_seconds",
				Help:    "Daemon request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		SearchCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferrisindex_search_cache_total",
				Help: "Search result cache lookups",
			},
			[]string{"result"},
		),
		LoadErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferrisindex_load_errors_total",
				Help: "Errors while loading indexes and implementor shards",
			},
			[]string{"source"},
		),
		Crates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ferrisindex_crates",
			Help: "Number of loaded crate indexes",
		}),
		Implementors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ferrisindex_implementors",
			Help: "Number of merged implementor entries",
		}),
	}

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.SearchCacheTotal,
		m.LoadErrorsTotal,
		m.Crates,
		m.Implementors,
	)
	return m
}

// Handler serves the collected metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// instrument records the count and latency of requests to endpoint.
func (m *Metrics) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		m.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
