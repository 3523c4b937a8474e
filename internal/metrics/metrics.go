// Package metrics exposes delivery-pipeline counters on a dedicated
// prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Delivered    prometheus.Counter
	Stored       prometheus.Counter
	Replayed     prometheus.Counter
	DeadLettered prometheus.Counter
	Rejected     prometheus.Counter

	LiveSessions prometheus.Gauge

	RunDuration prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "notify_relay",
			Name:      "messages_delivered_total",
			Help:      "Messages pushed to a live connection.",
		}),
		Stored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "notify_relay",
			Name:      "messages_stored_total",
			Help:      "Messages routed to the pending store.",
		}),
		Replayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "notify_relay",
			Name:      "messages_replayed_total",
			Help:      "Stored messages delivered by the replay driver.",
		}),
		DeadLettered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "notify_relay",
			Name:      "messages_dead_lettered_total",
			Help:      "Attempts abandoned after exhausting store retries.",
		}),
		Rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "notify_relay",
			Name:      "messages_rejected_total",
			Help:      "Payloads rejected at ingestion validation.",
		}),
		LiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "notify_relay",
			Name:      "live_sessions",
			Help:      "Currently attached transport sessions.",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "notify_relay",
			Name:      "orchestration_run_seconds",
			Help:      "Duration of one delivery orchestration run.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler serves the registry in prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
