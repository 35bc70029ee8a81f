// Package metrics exposes the transport's counters and gauges as
// Prometheus collectors, grounded the way the pack's aistore repo wires
// prometheus/client_golang: a private registry per instance so tests and
// demo binaries don't collide on the default global registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the collectors backing the transport façade's metrics
// surface (spec §3). The façade is the sole writer; Registry() lets a
// demo process export them over /metrics without the core depending on
// net/http itself.
type Metrics struct {
	reg *prometheus.Registry

	FragmentsBuffered    prometheus.Gauge
	TransactionsComplete prometheus.Counter
	ReassemblyFailures   prometheus.Counter
	OutboundDepth        prometheus.Gauge
	ReceivedDepth        prometheus.Gauge
	ConfirmationDepth    prometheus.Gauge
	DedupSize            prometheus.Gauge
	OutboundDropped      prometheus.Counter
}

// New creates a Metrics instance backed by a fresh, private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		reg: reg,
		FragmentsBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pollinet",
			Subsystem: "transport",
			Name:      "fragments_buffered",
			Help:      "Fragments currently held across all reassembly buckets.",
		}),
		TransactionsComplete: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pollinet",
			Subsystem: "transport",
			Name:      "transactions_complete_total",
			Help:      "Cumulative count of successfully reassembled transactions.",
		}),
		ReassemblyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pollinet",
			Subsystem: "transport",
			Name:      "reassembly_failures_total",
			Help:      "Cumulative count of buckets dropped due to checksum, oversize, or expiry.",
		}),
		OutboundDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pollinet",
			Subsystem: "transport",
			Name:      "outbound_depth",
			Help:      "Current depth of the outbound fragment queue.",
		}),
		ReceivedDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pollinet",
			Subsystem: "transport",
			Name:      "received_depth",
			Help:      "Current depth of the received-transaction queue.",
		}),
		ConfirmationDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pollinet",
			Subsystem: "transport",
			Name:      "confirmation_depth",
			Help:      "Current depth of the confirmation queue.",
		}),
		DedupSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pollinet",
			Subsystem: "transport",
			Name:      "dedup_size",
			Help:      "Current number of entries in the dedup set.",
		}),
		OutboundDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pollinet",
			Subsystem: "transport",
			Name:      "outbound_dropped_total",
			Help:      "Cumulative count of outbound fragments dropped by FIFO overflow.",
		}),
	}

	reg.MustRegister(
		m.FragmentsBuffered,
		m.TransactionsComplete,
		m.ReassemblyFailures,
		m.OutboundDepth,
		m.ReceivedDepth,
		m.ConfirmationDepth,
		m.DedupSize,
		m.OutboundDropped,
	)

	return m
}

// Registry returns the private registry these collectors are registered
// against, for mounting under promhttp.HandlerFor in a demo process.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}
