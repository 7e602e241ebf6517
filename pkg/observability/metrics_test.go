package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCacheLookup("permission", true)
	m.RecordCacheLookup("permission", false)
	m.RecordCacheLookup("permission", false)
	m.RecordCacheError("get")
	m.RecordDecision("user", "allowed", time.Millisecond)
	m.RecordAutoLock("email", false)
	m.RecordAutoLock("email", true)
	m.RecordRateLimitRejection("user")
	m.RecordDomain("subdomain")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("permission")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("permission")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheErrorsTotal.WithLabelValues("get")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("user", "allowed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AutoLockViolationsTotal.WithLabelValues("email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AutoLocksTotal.WithLabelValues("email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitRejectionsTotal.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DomainResolution.WithLabelValues("subdomain")))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCacheLookup("x", true)
		m.RecordCacheError("get")
		m.RecordDecision("user", "denied", time.Second)
		m.RecordAutoLock("user_id", true)
		m.RecordRateLimitRejection("anon")
		m.RecordDomain("custom")
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/v2/orgs/{orgId}/roles", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v2/orgs/1/roles", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/v2/orgs/{orgId}/roles", "403")))

	rec = httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "gatehouse_http_requests_total"))
}
