package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestAlarmClone verifies that Clone returns an independent copy and handles nil safely.
func TestAlarmClone(t *testing.T) {
	t.Parallel()
	require.Nil(t, (*Alarm)(nil).Clone())

	a := &Alarm{
		ID:        "ct:ct_defecto_telemetro",
		Severity:  SeverityCritical,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}

	b := a.Clone()

	require.Equal(t, a, b)
	require.NotSame(t, a, b)
}

// TestParseSeverity verifies mapping from strings to severities and handling of unknown values.
func TestParseSeverity(t *testing.T) {
	t.Parallel()

	cases := map[string]Severity{
		"critical":  SeverityCritical,
		" Warning ": SeverityWarning,
		"INFO":      SeverityInfo,
	}
	for s, want := range cases {
		got, ok := ParseSeverity(s)
		require.True(t, ok)
		require.Equal(t, want, got)
	}

	_, ok := ParseSeverity("fatal")
	require.False(t, ok)
}

// TestSortBySeverity checks severity ranking and stability for equal severities.
func TestSortBySeverity(t *testing.T) {
	t.Parallel()

	alarms := []Alarm{
		{ID: "a", Severity: SeverityInfo},
		{ID: "b", Severity: SeverityCritical},
		{ID: "c", Severity: SeverityWarning},
		{ID: "d", Severity: SeverityCritical},
	}

	SortBySeverity(alarms)

	ids := make([]string, 0, len(alarms))
	for _, a := range alarms {
		ids = append(ids, a.ID)
	}

	require.Equal(t, []string{"b", "d", "c", "a"}, ids)
}

// TestFilterByComponent checks exact component matching.
func TestFilterByComponent(t *testing.T) {
	t.Parallel()

	alarms := []Alarm{
		{ID: "a", Component: "Carro de transferencia"},
		{ID: "b", Component: "Transelevador 1"},
		{ID: "c", Component: "carro de transferencia"},
	}

	require.Len(t, FilterByComponent(alarms, ""), 3)

	filtered := FilterByComponent(alarms, "Carro de transferencia")
	require.Len(t, filtered, 1)
	require.Equal(t, "a", filtered[0].ID)
}
