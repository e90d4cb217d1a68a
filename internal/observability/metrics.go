package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brattlof/userboard/internal/api"
)

// Metrics holds the Prometheus collectors for the dashboard. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	upstreamTotal    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	refreshIgnored   prometheus.Counter
	viewsActive      prometheus.Gauge
	viewsEvicted     prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userboard_http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "userboard_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		upstreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userboard_upstream_requests_total",
			Help: "Requests sent to the users API, by endpoint and result.",
		}, []string{"endpoint", "result"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "userboard_upstream_request_duration_seconds",
			Help:    "Users API request latency by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		refreshIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "userboard_refresh_ignored_total",
			Help: "Refresh requests dropped because a users fetch was in flight.",
		}),
		viewsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "userboard_views_active",
			Help: "Dashboard views currently mounted.",
		}),
		viewsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "userboard_views_evicted_total",
			Help: "Views unmounted early because the view limit was reached.",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.upstreamTotal,
		m.upstreamDuration,
		m.refreshIgnored,
		m.viewsActive,
		m.viewsEvicted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})

	return m
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency for every request. The wrapped
// writer keeps http.Hijacker so websocket upgrades pass through.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) ObserveFetch(endpoint string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.upstreamTotal.WithLabelValues(endpoint, fetchResult(err)).Inc()
	m.upstreamDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) RefreshIgnored() {
	if m == nil {
		return
	}
	m.refreshIgnored.Inc()
}

func (m *Metrics) SetViewsActive(n int) {
	if m == nil {
		return
	}
	m.viewsActive.Set(float64(n))
}

func (m *Metrics) ViewEvicted() {
	if m == nil {
		return
	}
	m.viewsEvicted.Inc()
}

func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

func fetchResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case api.IsStatus(err):
		return "status"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
