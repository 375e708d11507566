// Package metrics holds the Prometheus collectors of the API and the worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "group_notifier"

// Metrics groups every collector the service exports.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Deliveries *prometheus.CounterVec
	FanOut     *prometheus.CounterVec
	Retries    prometheus.Counter
	Dropped    prometheus.Counter
	Recovered  prometheus.Counter
	Swept      prometheus.Counter
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total", Help: "Scheduled deliveries by outcome",
		}, []string{"outcome"}),
		FanOut: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fanout_messages_total", Help: "Per-recipient sends by channel and result",
		}, []string{"channel", "result"}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "delivery_retries_total", Help: "Deliveries sent to the retry queue",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "delivery_dropped_total", Help: "Messages dropped after max retries or as malformed",
		}),
		Recovered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "recovered_pending_total", Help: "Pending notifications re-armed on worker start",
		}),
		Swept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "swept_deliveries_total", Help: "Overdue notifications fired by the periodic sweep",
		}),
	}
}
