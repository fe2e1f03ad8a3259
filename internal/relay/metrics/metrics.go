// Package metrics holds the relay's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a private registry with the relay's collectors. Methods are
// safe on a nil receiver.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	wsActive        prometheus.Gauge
	wsEvents        *prometheus.CounterVec
	messages        prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nhrelay_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nhrelay_http_request_duration_seconds",
			Help:    "HTTP request latencies by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		wsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nhrelay_ws_active_connections",
			Help: "Open live-channel connections.",
		}),
		wsEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nhrelay_ws_events_total",
			Help: "Live-channel frames by direction and type.",
		}, []string{"direction", "type"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nhrelay_messages_created_total",
			Help: "Messages persisted.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.wsActive,
		m.wsEvents,
		m.messages,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latencies by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if m == nil {
			return
		}

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) WSConnected() {
	if m != nil {
		m.wsActive.Inc()
	}
}

func (m *Metrics) WSDisconnected() {
	if m != nil {
		m.wsActive.Dec()
	}
}

// WSEvent counts one frame; direction is "in" or "out".
func (m *Metrics) WSEvent(direction, typ string) {
	if m != nil {
		m.wsEvents.WithLabelValues(direction, typ).Inc()
	}
}

func (m *Metrics) MessageCreated() {
	if m != nil {
		m.messages.Inc()
	}
}
