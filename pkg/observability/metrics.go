package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	DecisionsTotal   *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec
	DomainResolution *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
	CacheErrorsTotal *prometheus.CounterVec

	// Rate limiting and auto-lock
	RateLimitRejectionsTotal *prometheus.CounterVec
	AutoLockViolationsTotal  *prometheus.CounterVec
	AutoLocksTotal           *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_authz_decisions_total",
				Help: "Authorization decisions by principal kind and outcome",
			},
			[]string{"principal", "outcome"},
		),
		DecisionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_authz_decision_duration_seconds",
				Help:    "Time spent computing an authorization decision",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"principal"},
		),
		DomainResolution: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_domain_resolutions_total",
				Help: "Tenant domain resolutions by kind",
			},
			[]string{"kind"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_cache_hits_total",
				Help: "Total number of permission cache hits",
			},
			[]string{"namespace"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_cache_misses_total",
				Help: "Total number of permission cache misses",
			},
			[]string{"namespace"},
		),
		CacheErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_cache_errors_total",
				Help: "Cache backend errors, treated as misses",
			},
			[]string{"operation"},
		),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_ratelimit_rejections_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"limiter"},
		),
		AutoLockViolationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_autolock_violations_total",
				Help: "Rate limit violations recorded by the auto-lock tracker",
			},
			[]string{"identifier"},
		),
		AutoLocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_autolock_locks_total",
				Help: "Accounts locked after crossing the violation threshold",
			},
			[]string{"identifier"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DecisionsTotal,
		m.DecisionDuration,
		m.DomainResolution,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheErrorsTotal,
		m.RateLimitRejectionsTotal,
		m.AutoLockViolationsTotal,
		m.AutoLocksTotal,
	)

	return m
}

// RecordCacheLookup counts a hit or miss. Safe on a nil receiver.
func (m *Metrics) RecordCacheLookup(namespace string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(namespace).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(namespace).Inc()
	}
}

// RecordCacheError counts a backend failure. Safe on a nil receiver.
func (m *Metrics) RecordCacheError(operation string) {
	if m == nil {
		return
	}
	m.CacheErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordDecision counts an authorization outcome. Safe on a nil receiver.
func (m *Metrics) RecordDecision(principal, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(principal, outcome).Inc()
	m.DecisionDuration.WithLabelValues(principal).Observe(elapsed.Seconds())
}

// RecordDomain counts a domain resolution. Safe on a nil receiver.
func (m *Metrics) RecordDomain(kind string) {
	if m == nil {
		return
	}
	m.DomainResolution.WithLabelValues(kind).Inc()
}

// RecordRateLimitRejection counts a rate limited request. Safe on a nil receiver.
func (m *Metrics) RecordRateLimitRejection(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitRejectionsTotal.WithLabelValues(limiter).Inc()
}

// RecordAutoLock counts a violation and, when locked is true, a lock. Safe on a nil receiver.
func (m *Metrics) RecordAutoLock(identifier string, locked bool) {
	if m == nil {
		return
	}
	m.AutoLockViolationsTotal.WithLabelValues(identifier).Inc()
	if locked {
		m.AutoLocksTotal.WithLabelValues(identifier).Inc()
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Requests are labelled by their mux route template to keep cardinality bounded.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
