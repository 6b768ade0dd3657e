// Package zenohmetrics exposes Prometheus instrumentation for the session
// runtime: transmit pipeline counters, dispatch counters, and registry
// gauges.
package zenohmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "zenohd"
	subsystem = "session"
)

// Label names for session metrics.
const (
	labelReliability = "reliability"
	labelKind         = "kind"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Session Metrics
// -------------------------------------------------------------------------

// Collector holds all session-runtime Prometheus metrics.
//
//   - Frame/fragment counters track transmit pipeline volume.
//   - The congestion drop counter flags Drop-policy admission failures.
//   - Dispatch counters track inbound message routing by kind.
//   - Registry gauges track currently-registered subscribers and queryables.
type Collector struct {
	// FramesTransmitted counts FRAME messages successfully written to the
	// link (each fragment frame counts once), labeled by reliability
	// class. Transport messages sent through SendTransportMessage are not
	// counted.
	FramesTransmitted *prometheus.CounterVec

	// FragmentsEmitted counts fragment frames written by the transmit
	// pipeline's fragmentation fallback.
	FragmentsEmitted prometheus.Counter

	// CongestionDrops counts sends skipped because Drop congestion control
	// found the transmit mutex already held.
	CongestionDrops prometheus.Counter

	// DispatchTotal counts inbound zenoh messages routed by Dispatch,
	// labeled by message kind (data, query, declare, reply).
	DispatchTotal *prometheus.CounterVec

	// Subscribers tracks the number of currently-registered subscribers,
	// labeled by locality (local, remote).
	Subscribers *prometheus.GaugeVec

	// Queryables tracks the number of currently-registered local
	// queryables.
	Queryables prometheus.Gauge
}

// NewCollector creates a Collector with all session metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics carry the "zenohd_session_" prefix (namespace_subsystem) to
// avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.FramesTransmitted,
		c.FragmentsEmitted,
		c.CongestionDrops,
		c.DispatchTotal,
		c.Subscribers,
		c.Queryables,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		FramesTransmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "frames_transmitted_total",
			Help:      "Total transport frames successfully written to the link.",
		}, []string{labelReliability}),

		FragmentsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fragments_emitted_total",
			Help:      "Total fragment frames written by the transmit pipeline's fragmentation fallback.",
		}),

		CongestionDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "congestion_drops_total",
			Help:      "Total sends skipped under Drop congestion control because the transmit mutex was held.",
		}),

		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dispatch_total",
			Help:      "Total inbound zenoh messages routed by the receive dispatcher, by kind.",
		}, []string{labelKind}),

		Subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscribers",
			Help:      "Number of currently-registered subscribers.",
		}, []string{"locality"}),

		Queryables: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queryables",
			Help:      "Number of currently-registered local queryables.",
		}),
	}
}

// -------------------------------------------------------------------------
// Transmit Pipeline
// -------------------------------------------------------------------------

// IncFramesTransmitted increments the transmitted-frames counter for the
// given reliability class ("reliable" or "best_effort").
func (c *Collector) IncFramesTransmitted(reliability string) {
	c.FramesTransmitted.WithLabelValues(reliability).Inc()
}

// IncFragmentsEmitted increments the fragment-emission counter. Called once
// per fragment frame written by the fragmentation fallback.
func (c *Collector) IncFragmentsEmitted() {
	c.FragmentsEmitted.Inc()
}

// IncCongestionDrops increments the congestion-drop counter. Called when
// SendZenohMessage is invoked with Drop policy and the transmit mutex is
// already held.
func (c *Collector) IncCongestionDrops() {
	c.CongestionDrops.Inc()
}

// -------------------------------------------------------------------------
// Receive Dispatcher
// -------------------------------------------------------------------------

// IncDispatch increments the dispatch counter for the given message kind
// ("data", "query", "declare", "reply").
func (c *Collector) IncDispatch(kind string) {
	c.DispatchTotal.WithLabelValues(kind).Inc()
}

// -------------------------------------------------------------------------
// Registries
// -------------------------------------------------------------------------

// SetSubscribers sets the subscriber gauge for the given locality ("local"
// or "remote") to n.
func (c *Collector) SetSubscribers(locality string, n int) {
	c.Subscribers.WithLabelValues(locality).Set(float64(n))
}

// SetQueryables sets the local queryable gauge to n.
func (c *Collector) SetQueryables(n int) {
	c.Queryables.Set(float64(n))
}
