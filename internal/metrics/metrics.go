// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the server exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	CleanupRuns         *prometheus.CounterVec
	InvitationsExpired  prometheus.Counter
	InvitationsDeleted  prometheus.Counter
	NotificationsSent   *prometheus.CounterVec
	EmailDeliveryErrors prometheus.Counter
}

// New registers all collectors on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paypals",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paypals",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		CleanupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paypals",
			Name:      "invitation_cleanup_runs_total",
			Help:      "Invitation cleanup runs by result.",
		}, []string{"result"}),
		InvitationsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paypals",
			Name:      "invitations_expired_total",
			Help:      "Pending invitations marked expired by cleanup.",
		}),
		InvitationsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paypals",
			Name:      "invitations_deleted_total",
			Help:      "Expired invitations purged by cleanup.",
		}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paypals",
			Name:      "notifications_created_total",
			Help:      "In-app notifications created by type.",
		}, []string{"type"}),
		EmailDeliveryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "paypals",
			Name:      "email_delivery_errors_total",
			Help:      "Emails that could not be delivered.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.CleanupRuns,
		m.InvitationsExpired,
		m.InvitationsDeleted,
		m.NotificationsSent,
		m.EmailDeliveryErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) ObserveCleanup(expired, deleted int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.CleanupRuns.WithLabelValues("error").Inc()
		return
	}
	m.CleanupRuns.WithLabelValues("ok").Inc()
	m.InvitationsExpired.Add(float64(expired))
	m.InvitationsDeleted.Add(float64(deleted))
}

func (m *Metrics) ObserveNotification(kind string, n int) {
	if m == nil {
		return
	}
	m.NotificationsSent.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) ObserveEmailError() {
	if m == nil {
		return
	}
	m.EmailDeliveryErrors.Inc()
}
