// Package metrics holds the Prometheus collectors of the billing service.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "billing"

// Metrics groups the service collectors. Create one per registry.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	webhookEvents   *prometheus.CounterVec
	webhookDuration *prometheus.HistogramVec
	checkouts       *prometheus.CounterVec
	usage           *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route", "status"},
		),
		requestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "events_total",
				Help:      "Provider webhook deliveries by event type and outcome.",
			},
			[]string{"event_type", "outcome"},
		),
		webhookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "processing_duration_seconds",
				Help:      "Time from receipt to terminal state of a webhook delivery.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		checkouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "checkout",
				Name:      "sessions_total",
				Help:      "Checkout session requests by plan and result.",
			},
			[]string{"plan", "result"},
		),
		usage: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "entitlement",
				Name:      "usage_total",
				Help:      "Gated actions recorded or rejected, by plan.",
			},
			[]string{"plan", "result"},
		),
	}
}

// ObserveWebhook records one delivery. eventType is empty for deliveries
// rejected before verification.
func (m *Metrics) ObserveWebhook(eventType, outcome string, elapsed time.Duration) {
	if eventType == "" {
		eventType = "unknown"
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
	m.webhookDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveCheckout records one checkout request.
func (m *Metrics) ObserveCheckout(planID, result string) {
	m.checkouts.WithLabelValues(planID, result).Inc()
}

// ObserveUsage records one usage attempt.
func (m *Metrics) ObserveUsage(planID, result string) {
	m.usage.WithLabelValues(planID, result).Inc()
}

// EchoMiddleware records request count and latency per route template.
func (m *Metrics) EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < 400 {
					status = 500
				}
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			code := strconv.Itoa(status)
			m.requestDuration.WithLabelValues(c.Request().Method, route, code).Observe(time.Since(start).Seconds())
			m.requestTotal.WithLabelValues(c.Request().Method, route, code).Inc()
			return err
		}
	}
}
