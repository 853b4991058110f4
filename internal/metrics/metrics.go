// Package metrics holds the Prometheus collectors of the alarm pipeline.
// Every method is safe to call on a nil *Metrics so components can run
// without instrumentation in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultStale   = "stale"
)

// Lifecycle event labels.
const (
	EventRaised       = "raised"
	EventAcknowledged = "acknowledged"
	EventResolved     = "resolved"
)

// Metrics bundles the pipeline metrics.
type Metrics struct {
	// CyclesTotal counts polling cycles by result.
	CyclesTotal *prometheus.CounterVec
	// CycleDuration observes how long a full cycle takes.
	CycleDuration prometheus.Histogram
	// SourceFetchTotal counts adapter fetches by source and result.
	SourceFetchTotal *prometheus.CounterVec
	// SyncRequestsTotal counts sync requests by source and result.
	SyncRequestsTotal *prometheus.CounterVec
	// Active is the number of active alarms by severity.
	Active *prometheus.GaugeVec
	// LifecycleEventsTotal counts lifecycle transitions.
	LifecycleEventsTotal *prometheus.CounterVec
	// TriggersDropped counts ticks and manual triggers dropped by overlap prevention.
	TriggersDropped prometheus.Counter
}

// New constructs the metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alarms_cycles_total",
				Help: "Total polling cycles by result",
			},
			[]string{"result"},
		),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alarms_cycle_duration_seconds",
			Help:    "Polling cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		SourceFetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alarms_source_fetch_total",
				Help: "Total source fetches by source and result",
			},
			[]string{"source", "result"},
		),
		SyncRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alarms_sync_requests_total",
				Help: "Total store sync requests by source and result",
			},
			[]string{"source", "result"},
		),
		Active: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "alarms_active",
				Help: "Active alarms by severity",
			},
			[]string{"severity"},
		),
		LifecycleEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "alarms_lifecycle_events_total",
				Help: "Total alarm lifecycle events",
			},
			[]string{"event"},
		),
		TriggersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alarms_triggers_dropped_total",
			Help: "Total cycle triggers dropped because a cycle was in flight",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.SourceFetchTotal,
		m.SyncRequestsTotal,
		m.Active,
		m.LifecycleEventsTotal,
		m.TriggersDropped,
	)

	return m
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(result string, took time.Duration) {
	if m == nil {
		return
	}

	m.CyclesTotal.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(took.Seconds())
}

// SourceFetch records one adapter fetch.
func (m *Metrics) SourceFetch(sourceID string, ok bool) {
	if m == nil {
		return
	}

	m.SourceFetchTotal.WithLabelValues(sourceID, resultLabel(ok)).Inc()
}

// SyncRequest records one sync request after retries.
func (m *Metrics) SyncRequest(sourceID string, ok bool) {
	if m == nil {
		return
	}

	m.SyncRequestsTotal.WithLabelValues(sourceID, resultLabel(ok)).Inc()
}

// SetActive replaces the active gauge with counts from the given feed.
func (m *Metrics) SetActive(alarms []alarm.Alarm) {
	if m == nil {
		return
	}

	counts := map[alarm.Severity]int{
		alarm.SeverityCritical: 0,
		alarm.SeverityWarning:  0,
		alarm.SeverityInfo:     0,
	}

	for _, a := range alarms {
		counts[a.Severity]++
	}

	for severity, count := range counts {
		m.Active.WithLabelValues(string(severity)).Set(float64(count))
	}
}

// LifecycleEvent adds n events of the given kind.
func (m *Metrics) LifecycleEvent(event string, n int) {
	if m == nil || n <= 0 {
		return
	}

	m.LifecycleEventsTotal.WithLabelValues(event).Add(float64(n))
}

// TriggerDropped records a dropped trigger.
func (m *Metrics) TriggerDropped() {
	if m == nil {
		return
	}

	m.TriggersDropped.Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return ResultSuccess
	}

	return ResultFailure
}
