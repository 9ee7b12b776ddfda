package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the auth core.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	loginTotal      *prometheus.CounterVec
	rotationTotal   prometheus.Counter
	theftCascades   prometheus.Counter
	sessionsSwept   prometheus.Counter
	tokensSwept     prometheus.Counter
	sessionsCreated *prometheus.CounterVec
}

// NewMetricsService registers all collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	loginTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Admin login attempts by outcome",
	}, []string{"outcome"})

	rotationTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Successful refresh token rotations",
	})

	theftCascades := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_theft_cascades_total",
		Help: "Cascade revocations triggered by refresh token reuse",
	})

	sessionsSwept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_swept_total",
		Help: "Expired sessions removed by the periodic sweep",
	})

	tokensSwept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_tokens_swept_total",
		Help: "Refresh tokens removed by the retention sweep",
	})

	sessionsCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_sessions_created_total",
		Help: "Portal sessions created by kind",
	}, []string{"kind"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, loginTotal, rotationTotal,
		theftCascades, sessionsSwept, tokensSwept, sessionsCreated, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		loginTotal:      loginTotal,
		rotationTotal:   rotationTotal,
		theftCascades:   theftCascades,
		sessionsSwept:   sessionsSwept,
		tokensSwept:     tokensSwept,
		sessionsCreated: sessionsCreated,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	return m.handler
}

// ObserveHTTPRequest records a completed HTTP request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{"method": method, "path": path, "status": strconv.Itoa(status)}
	m.requestDuration.With(labels).Observe(duration.Seconds())
	m.requestTotal.With(labels).Inc()
}

// RecordLogin records a login outcome ("success" or "failure").
func (m *MetricsService) RecordLogin(outcome string) {
	m.loginTotal.WithLabelValues(outcome).Inc()
}

// RecordRotation records a successful refresh token rotation.
func (m *MetricsService) RecordRotation() {
	m.rotationTotal.Inc()
}

// RecordTheftCascade records a reuse-triggered cascade revocation.
func (m *MetricsService) RecordTheftCascade() {
	m.theftCascades.Inc()
}

// RecordSessionsSwept adds to the session sweep counter.
func (m *MetricsService) RecordSessionsSwept(count int64) {
	m.sessionsSwept.Add(float64(count))
}

// RecordTokensSwept adds to the token sweep counter.
func (m *MetricsService) RecordTokensSwept(count int64) {
	m.tokensSwept.Add(float64(count))
}

// RecordSessionCreated records a portal session creation by kind.
func (m *MetricsService) RecordSessionCreated(kind string) {
	m.sessionsCreated.WithLabelValues(kind).Inc()
}
