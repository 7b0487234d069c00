// Package metrics provides Prometheus metrics for the resource loader.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pithecene-io/rtcbridge/bridge"
)

// Labels are bounded: kind and state only, never resource or request IDs.

// Collector records loader activity. It implements bridge.Observer.
type Collector struct {
	requests  *prometheus.CounterVec
	delivered prometheus.Counter
	inflight  prometheus.Gauge
	latency   *prometheus.HistogramVec
}

// New registers the loader metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rtcbridge_requests_total",
			Help: "Total number of completed load requests, by kind and final state.",
		}, []string{"kind", "state"}),
		delivered: f.NewCounter(prometheus.CounterOpts{
			Name: "rtcbridge_delivered_bytes_total",
			Help: "Total number of bytes written to the playback host.",
		}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtcbridge_inflight_requests",
			Help: "Current number of admitted load requests not yet completed.",
		}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rtcbridge_request_duration_seconds",
			Help:    "Time from admission to completion, by kind.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.2, 0.25, 0.5, 1, 2, 5},
		}, []string{"kind"}),
	}
}

// RequestStarted implements bridge.Observer.
func (c *Collector) RequestStarted(bridge.RequestKind) {
	c.inflight.Inc()
}

// RequestCompleted implements bridge.Observer.
func (c *Collector) RequestCompleted(comp bridge.Completion) {
	c.inflight.Dec()
	c.requests.WithLabelValues(comp.Kind.String(), comp.State.String()).Inc()
	if comp.Delivered > 0 {
		c.delivered.Add(float64(comp.Delivered))
	}
	c.latency.WithLabelValues(comp.Kind.String()).Observe(comp.Latency().Seconds())
}

// Ensure Collector implements bridge.Observer
var _ bridge.Observer = (*Collector)(nil)
