// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Subscription outcomes.
const (
	ResultOK      = "ok"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

// Registry owns every collector and the registry they are registered on.
type Registry struct {
	reg *prometheus.Registry

	Subscriptions     *prometheus.CounterVec
	FeedActive        prometheus.Gauge
	FeedSnapshots     *prometheus.CounterVec
	SignIns           *prometheus.CounterVec
	NotificationsSent prometheus.Counter
	RequestDuration   *prometheus.HistogramVec
}

// New creates a Registry with process and Go runtime collectors included.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Subscriptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comingsoon_subscriptions_total",
				Help: "Subscription requests by outcome",
			},
			[]string{"result"},
		),
		FeedActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "comingsoon_feed_subscriptions_active",
				Help: "Live visitor feed subscriptions currently open",
			},
		),
		FeedSnapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comingsoon_feed_snapshots_total",
				Help: "Visitor feed snapshot loads by outcome",
			},
			[]string{"result"},
		),
		SignIns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comingsoon_admin_sign_ins_total",
				Help: "Admin sign-in attempts by outcome",
			},
			[]string{"result"},
		),
		NotificationsSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "comingsoon_lead_notifications_total",
				Help: "Lead notifications sent to Telegram chats",
			},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "comingsoon_http_request_duration_seconds",
				Help:    "HTTP request duration by route and status class",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"route", "code"},
		),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Subscriptions,
		r.FeedActive,
		r.FeedSnapshots,
		r.SignIns,
		r.NotificationsSent,
		r.RequestDuration,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Subscription counts one intake outcome.
func (r *Registry) Subscription(result string) {
	r.Subscriptions.WithLabelValues(result).Inc()
}

// FeedSubscriptions sets the number of open feed subscriptions.
func (r *Registry) FeedSubscriptions(active int) {
	r.FeedActive.Set(float64(active))
}

// FeedSnapshot counts one snapshot load.
func (r *Registry) FeedSnapshot(ok bool) {
	r.FeedSnapshots.WithLabelValues(okLabel(ok)).Inc()
}

// SignIn counts one admin sign-in attempt.
func (r *Registry) SignIn(ok bool) {
	r.SignIns.WithLabelValues(okLabel(ok)).Inc()
}

// NotificationSent counts one delivered lead notification.
func (r *Registry) NotificationSent() {
	r.NotificationsSent.Inc()
}

// ObserveRequest records one served HTTP request under its route template.
func (r *Registry) ObserveRequest(route string, code int, d time.Duration) {
	r.RequestDuration.WithLabelValues(route, fmt.Sprintf("%dxx", code/100)).Observe(d.Seconds())
}

func okLabel(ok bool) string {
	if ok {
		return ResultOK
	}
	return ResultError
}
