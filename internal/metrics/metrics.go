package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	OrdersSubmitted    prometheus.Counter
	StatusAdvanced     *prometheus.CounterVec
	SubscriptionsLive  prometheus.Gauge
	SnapshotsDelivered prometheus.Counter
	EventsFailed       prometheus.Counter
	DisplaysConnected  prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	submitted := prometheus.NewCounter(prometheus.CounterOpts{Name: "orders_submitted_total"})
	advanced := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orders_status_advanced_total"}, []string{"status"})
	live := prometheus.NewGauge(prometheus.GaugeOpts{Name: "stream_subscriptions_active"})
	delivered := prometheus.NewCounter(prometheus.CounterOpts{Name: "stream_snapshots_delivered_total"})
	failed := prometheus.NewCounter(prometheus.CounterOpts{Name: "order_events_failed_total"})
	displays := prometheus.NewGauge(prometheus.GaugeOpts{Name: "ws_displays_connected"})

	r.MustRegister(submitted, advanced, live, delivered, failed, displays)
	return &Registry{
		reg:                r,
		OrdersSubmitted:    submitted,
		StatusAdvanced:     advanced,
		SubscriptionsLive:  live,
		SnapshotsDelivered: delivered,
		EventsFailed:       failed,
		DisplaysConnected:  displays,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
