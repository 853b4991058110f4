package alarm

import (
	"slices"
	"strings"
	"time"
)

// Severity ranks how urgently operators must react to an alarm.
type Severity string

const (
	// SeverityCritical stops the line or makes equipment unsafe.
	SeverityCritical Severity = "critical"
	// SeverityWarning degrades operation but the line keeps running.
	SeverityWarning Severity = "warning"
	// SeverityInfo is informational only.
	SeverityInfo Severity = "info"
)

// ParseSeverity converts string input to a Severity.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical, true
	case SeverityWarning:
		return SeverityWarning, true
	case SeverityInfo:
		return SeverityInfo, true
	default:
		return SeverityInfo, false
	}
}

// Rank returns a number that orders severities, higher is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// State is the lifecycle position of a tracked alarm.
type State string

const (
	// StateActive means the fault is present and nobody acknowledged it yet.
	StateActive State = "active"
	// StateAcknowledged means the fault is present and an operator acknowledged it.
	StateAcknowledged State = "acknowledged"
	// StateResolved means the fault cleared upstream or was resolved manually.
	StateResolved State = "resolved"
)

// Alarm is the unified alarm shape shared by every source.
type Alarm struct {
	// ID is stable across polls for the same fault condition.
	ID string `json:"id" msgpack:"id"`
	// SourceID is the configured source that produced the alarm.
	SourceID string `json:"source_id" msgpack:"source_id"`
	// DeviceID identifies the physical device.
	DeviceID string `json:"device_id" msgpack:"device_id"`
	// DeviceName is the operator-facing device label.
	DeviceName string `json:"device_name" msgpack:"device_name"`
	// Component groups alarms for filtering and must match the UI vocabulary.
	Component string `json:"component" msgpack:"component"`
	// Field is the fault field that raised the alarm, empty for native alarms.
	Field string `json:"field,omitempty" msgpack:"field,omitempty"`
	// Message is the rendered alarm text.
	Message string `json:"message" msgpack:"message"`
	// Severity is resolved from the source severity table.
	Severity Severity `json:"severity" msgpack:"severity"`
	// Timestamp is when the alarm was detected on this poll.
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	// Acknowledged is owned by the lifecycle tracker, never by the upstream source.
	Acknowledged bool `json:"acknowledged" msgpack:"acknowledged"`
	// State is filled in by the lifecycle tracker.
	State State `json:"state,omitempty" msgpack:"state,omitempty"`
}

// Clone returns a copy of the alarm.
func (a *Alarm) Clone() *Alarm {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// SortBySeverity orders alarms from the most to the least urgent.
// The sort is stable so alarms of equal severity keep their aggregation order.
func SortBySeverity(alarms []Alarm) {
	slices.SortStableFunc(alarms, func(a, b Alarm) int {
		return b.Severity.Rank() - a.Severity.Rank()
	})
}

// FilterByComponent keeps alarms whose component matches exactly.
// An empty component keeps everything.
func FilterByComponent(alarms []Alarm, component string) []Alarm {
	if component == "" {
		return alarms
	}

	result := make([]Alarm, 0, len(alarms))

	for _, a := range alarms {
		if a.Component == component {
			result = append(result, a)
		}
	}

	return result
}
