// Package metrics holds the Prometheus collectors shared by the sync core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "whobought"

var (
	// ConnectionState is 0 (disconnected), 1 (connecting) or 2 (connected).
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "connection_state",
		Help:      "Current state of the push-event connection.",
	})

	Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "reconnects_total",
		Help:      "Connection attempts made after the first one.",
	})

	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped before reaching subscribers, by reason.",
	}, []string{"reason"})

	QueueDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "transport",
		Name:      "outbound_queue_dropped_total",
		Help:      "Outbound frames evicted from the full send queue.",
	})

	Merges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "merges_total",
		Help:      "Inbound events processed by the store, by event and outcome.",
	}, []string{"event", "outcome"})

	GatewayRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Gateway requests, by operation and status code.",
	}, []string{"op", "code"})

	GatewayLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Gateway request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
)

// Collectors returns every collector in this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ConnectionState,
		Reconnects,
		FramesDropped,
		QueueDropped,
		Merges,
		GatewayRequests,
		GatewayLatency,
	}
}

// Register adds all collectors to reg. Collectors that are already
// registered are skipped.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
