// Package metrics exposes the process-wide counters, gauges and histograms
// of the core. The registry is constructed once at startup and passed by
// handle to every component; there is no ambient global state, and values
// reset only when the process restarts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a dedicated Prometheus registry with the collectors the
// core records into. Snapshot reads through Handler never block message
// processing.
type Registry struct {
	reg *prometheus.Registry

	// MessagesTotal counts accepted broadcasts, once per message and not
	// once per recipient.
	MessagesTotal prometheus.Counter

	// ConnectedUsers always equals the number of authenticated sessions
	// registered with the hub.
	ConnectedUsers prometheus.Gauge

	// QueryDuration samples every durable-store call, in milliseconds,
	// success or failure.
	QueryDuration prometheus.Histogram

	AuthFailures     prometheus.Counter
	SessionsDropped  prometheus.Counter
	AdmissionRefused prometheus.Counter

	ProcessResidentMemory prometheus.Gauge
	ProcessCPUPercent     prometheus.Gauge
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		MessagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total chat messages accepted for broadcast by this server instance",
		}),
		ConnectedUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "connected_users",
			Help: "Number of currently connected authenticated chat users",
		}),
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "query_duration_ms",
			Help:    "Durable store query latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total failed authentication attempts",
		}),
		SessionsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "sessions_dropped_total",
			Help: "Total sessions dropped because their outbound queue overflowed",
		}),
		AdmissionRefused: factory.NewCounter(prometheus.CounterOpts{
			Name: "admission_refused_total",
			Help: "Total connections refused by the concurrent-session limit",
		}),
		ProcessResidentMemory: factory.NewGauge(prometheus.GaugeOpts{
			Name: "process_resident_memory_mb",
			Help: "Resident memory of the server process in megabytes",
		}),
		ProcessCPUPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "process_cpu_percent",
			Help: "CPU usage of the server process in percent",
		}),
	}
}

// ObserveQuery records one durable-store call into the latency histogram.
// Call it with the start time, typically via defer, so failed calls are
// sampled exactly like successful ones.
func (r *Registry) ObserveQuery(start time.Time) {
	r.QueryDuration.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}

// Handler serves the pull-based text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
