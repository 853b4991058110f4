package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
)

// TestMetrics_Record checks counters and gauges move as expected.
func TestMetrics_Record(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())

	m.ObserveCycle(ResultSuccess, time.Second)
	m.SourceFetch("ct", true)
	m.SourceFetch("ct", false)
	m.SyncRequest("tr1", false)
	m.LifecycleEvent(EventRaised, 2)
	m.LifecycleEvent(EventResolved, 0)
	m.TriggerDropped()
	m.SetActive([]alarm.Alarm{
		{Severity: alarm.SeverityCritical},
		{Severity: alarm.SeverityCritical},
		{Severity: alarm.SeverityInfo},
	})

	require.InDelta(t, 1, testutil.ToFloat64(m.CyclesTotal.WithLabelValues(ResultSuccess)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.SourceFetchTotal.WithLabelValues("ct", ResultFailure)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.SyncRequestsTotal.WithLabelValues("tr1", ResultFailure)), 0)
	require.InDelta(t, 2, testutil.ToFloat64(m.LifecycleEventsTotal.WithLabelValues(EventRaised)), 0)
	require.InDelta(t, 0, testutil.ToFloat64(m.LifecycleEventsTotal.WithLabelValues(EventResolved)), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.TriggersDropped), 0)
	require.InDelta(t, 2, testutil.ToFloat64(m.Active.WithLabelValues(string(alarm.SeverityCritical))), 0)
	require.InDelta(t, 0, testutil.ToFloat64(m.Active.WithLabelValues(string(alarm.SeverityWarning))), 0)

	m.SetActive(nil)
	require.InDelta(t, 0, testutil.ToFloat64(m.Active.WithLabelValues(string(alarm.SeverityCritical))), 0)
}

// TestMetrics_Nil verifies a nil receiver is a no-op.
func TestMetrics_Nil(t *testing.T) {
	t.Parallel()

	var m *Metrics

	require.NotPanics(t, func() {
		m.ObserveCycle(ResultFailure, time.Millisecond)
		m.SourceFetch("ct", true)
		m.SyncRequest("ct", true)
		m.SetActive(nil)
		m.LifecycleEvent(EventAcknowledged, 1)
		m.TriggerDropped()
	})
}
