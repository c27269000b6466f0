// Package metrics exposes Prometheus counters for token issuance, validation and
// authorization decisions.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values shared by callers.
const (
	ResultValid   = "valid"
	ResultSuccess = "success"
	ResultError   = "error"

	AuthAuthenticated = "authenticated"
	AuthAnonymous     = "anonymous"
	AuthFailed        = "failed"

	DecisionAllow        = "allow"
	DecisionUnauthorized = "unauthorized"
	DecisionForbidden    = "forbidden"
)

// Recorder records service metrics.
type Recorder interface {
	RecordTokenIssued(profile string, success bool)
	RecordTokenValidation(result string, duration time.Duration)
	RecordAuthentication(result string)
	RecordDecision(guard, outcome string)
	RecordRateLimited(route string)
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
	Handler() http.Handler
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	registry *prometheus.Registry

	TokensIssuedTotal       *prometheus.CounterVec
	TokenValidationTotal    *prometheus.CounterVec
	TokenValidationDuration prometheus.Histogram
	AuthenticationTotal     *prometheus.CounterVec
	DecisionsTotal          *prometheus.CounterVec
	RateLimitedTotal        *prometheus.CounterVec
	HTTPRequestsTotal       *prometheus.CounterVec
	HTTPRequestDuration     *prometheus.HistogramVec
}

// Init returns Prometheus-backed metrics when enabled and NoopMetrics otherwise.
// Each call with enabled=true uses a fresh registry, so tests can create as many as they need.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}
	return New(prometheus.NewRegistry())
}

// New creates all metrics and registers them, together with the Go and process collectors, on reg.
func New(reg *prometheus.Registry) *Metrics {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TokensIssuedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokengate_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{"profile", "result"}, // profile: custom or a predefined type
		),
		TokenValidationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokengate_token_validation_total",
				Help: "Total number of token validations",
			},
			[]string{"result"}, // valid, malformed, signature_invalid, expired
		),
		TokenValidationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tokengate_token_validation_duration_seconds",
				Help:    "Time spent verifying tokens",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
			},
		),
		AuthenticationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokengate_authentication_total",
				Help: "Requests seen by the authentication interceptor",
			},
			[]string{"result"}, // authenticated, anonymous, failed
		),
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokengate_authorization_decisions_total",
				Help: "Authorization decisions by guard and outcome",
			},
			[]string{"guard", "outcome"},
		),
		RateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokengate_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokengate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tokengate_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

func (m *Metrics) RecordTokenIssued(profile string, success bool) {
	result := ResultSuccess
	if !success {
		result = ResultError
	}
	m.TokensIssuedTotal.WithLabelValues(profile, result).Inc()
}

func (m *Metrics) RecordTokenValidation(result string, duration time.Duration) {
	m.TokenValidationTotal.WithLabelValues(result).Inc()
	m.TokenValidationDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordAuthentication(result string) {
	m.AuthenticationTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordDecision(guard, outcome string) {
	m.DecisionsTotal.WithLabelValues(guard, outcome).Inc()
}

func (m *Metrics) RecordRateLimited(route string) {
	m.RateLimitedTotal.WithLabelValues(route).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
