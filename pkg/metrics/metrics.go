// Package metrics exposes Prometheus collectors for the registry, the hub and the dispatcher.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector of the tracker.
type Metrics struct {
	processesInFlight   prometheus.Gauge
	processesRegistered prometheus.Counter
	processesFinished   *prometheus.CounterVec
	stepsRegistered     prometheus.Counter
	processDuration     *prometheus.HistogramVec
	snapshotFailures    prometheus.Counter

	sessionsConnected prometheus.Gauge
	sessionsClosed    *prometheus.CounterVec
	eventsDelivered   prometheus.Counter
	deliveryFailures  *prometheus.CounterVec

	tasksDropped prometheus.Counter
}

// New creates the collectors and registers them with reg.
// Registering twice on the same registerer panics, as with prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		processesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proctrace_processes_in_flight",
			Help: "Number of processes currently tracked in memory",
		}),
		processesRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctrace_processes_registered_total",
			Help: "Total number of registered processes",
		}),
		processesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proctrace_processes_finished_total",
			Help: "Total number of finished processes by terminal status",
		}, []string{"status"}),
		stepsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctrace_steps_registered_total",
			Help: "Total number of registered process steps",
		}),
		processDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "proctrace_process_duration_seconds",
			Help:    "Duration of finished processes",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
		}, []string{"type"}),
		snapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctrace_snapshot_failures_total",
			Help: "Total number of snapshots that could not be persisted",
		}),
		sessionsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proctrace_sessions_connected",
			Help: "Number of connected observer sessions",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proctrace_sessions_closed_total",
			Help: "Total number of closed observer sessions by reason",
		}, []string{"reason"}),
		eventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctrace_events_delivered_total",
			Help: "Total number of events handed to observer channels",
		}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proctrace_delivery_failures_total",
			Help: "Total number of failed deliveries by reason",
		}, []string{"reason"}),
		tasksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proctrace_dispatch_dropped_total",
			Help: "Total number of background tasks dropped because the queue was full",
		}),
	}

	reg.MustRegister(
		m.processesInFlight,
		m.processesRegistered,
		m.processesFinished,
		m.stepsRegistered,
		m.processDuration,
		m.snapshotFailures,
		m.sessionsConnected,
		m.sessionsClosed,
		m.eventsDelivered,
		m.deliveryFailures,
		m.tasksDropped,
	)
	return m
}

func (m *Metrics) ProcessRegistered() {
	if m == nil {
		return
	}
	m.processesRegistered.Inc()
	m.processesInFlight.Inc()
}

// ProcessFinished records a process leaving memory with its terminal status and duration.
func (m *Metrics) ProcessFinished(processType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.processesInFlight.Dec()
	m.processesFinished.WithLabelValues(status).Inc()
	m.processDuration.WithLabelValues(processType).Observe(seconds)
}

func (m *Metrics) StepRegistered() {
	if m == nil {
		return
	}
	m.stepsRegistered.Inc()
}

func (m *Metrics) SnapshotFailed() {
	if m == nil {
		return
	}
	m.snapshotFailures.Inc()
}

func (m *Metrics) SessionConnected() {
	if m == nil {
		return
	}
	m.sessionsConnected.Inc()
}

// SessionClosed records a session removal. reason is one of timeout, error, completion.
func (m *Metrics) SessionClosed(reason string) {
	if m == nil {
		return
	}
	m.sessionsConnected.Dec()
	m.sessionsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) EventDelivered() {
	if m == nil {
		return
	}
	m.eventsDelivered.Inc()
}

func (m *Metrics) DeliveryFailed(reason string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) TaskDropped() {
	if m == nil {
		return
	}
	m.tasksDropped.Inc()
}
