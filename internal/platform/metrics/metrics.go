// Package metrics exposes Prometheus instruments for the triage service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	assessments   *prometheus.CounterVec
	escalations   *prometheus.CounterVec
	riskScore     prometheus.Histogram
	forecasts     *prometheus.CounterVec
	surges        prometheus.Counter
	cacheLookups  *prometheus.CounterVec
	deviceRecords *prometheus.CounterVec
}

// New registers all instruments on reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration on the default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triage_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_assessments_total",
			Help: "Deterioration assessments by rule set and predicted priority.",
		}, []string{"rule_set", "predicted_priority"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_escalations_total",
			Help: "Predicted escalations by target priority.",
		}, []string{"to"}),
		riskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_risk_score",
			Help:    "Distribution of deterioration risk scores.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		forecasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_surge_forecasts_total",
			Help: "Surge forecasts by path (baseline or history).",
		}, []string{"path"}),
		surges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "triage_surges_detected_total",
			Help: "Forecasts that detected a surge.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_history_cache_lookups_total",
			Help: "Arrival history cache lookups by result.",
		}, []string{"result"}),
		deviceRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_device_messages_total",
			Help: "Bedside device messages by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.assessments,
		m.escalations,
		m.riskScore,
		m.forecasts,
		m.surges,
		m.cacheLookups,
		m.deviceRecords,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency keyed by the route pattern.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.httpRequests.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) ObserveAssessment(ruleSet, predicted string, score float64, escalated bool) {
	if m == nil {
		return
	}
	m.assessments.WithLabelValues(ruleSet, predicted).Inc()
	m.riskScore.Observe(score)
	if escalated {
		m.escalations.WithLabelValues(predicted).Inc()
	}
}

func (m *Metrics) ObserveForecast(baseline, surge bool) {
	if m == nil {
		return
	}
	path := "history"
	if baseline {
		path = "baseline"
	}
	m.forecasts.WithLabelValues(path).Inc()
	if surge {
		m.surges.Inc()
	}
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) DeviceMessage(outcome string) {
	if m == nil {
		return
	}
	m.deviceRecords.WithLabelValues(outcome).Inc()
}
