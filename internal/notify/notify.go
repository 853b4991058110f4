// Package notify fans alarm lifecycle events out to external consumers.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/logger"
)

// EventKind is the lifecycle transition an event reports.
type EventKind string

const (
	// EventRaised is emitted when an alarm enters the active view.
	EventRaised EventKind = "raised"
	// EventAcknowledged is emitted when an operator acknowledges an alarm.
	EventAcknowledged EventKind = "acknowledged"
	// EventResolved is emitted when an alarm leaves the active view.
	EventResolved EventKind = "resolved"
)

// Event is one lifecycle transition.
type Event struct {
	// Kind is the transition.
	Kind EventKind `json:"kind"`
	// Alarm is the alarm after the transition.
	Alarm alarm.Alarm `json:"alarm"`
	// At is when the transition was observed.
	At time.Time `json:"at"`
}

// Notifier delivers events.
type Notifier interface {
	Notify(ctx context.Context, events []Event) error
}

// NewEvents builds events of one kind for the given alarms.
func NewEvents(kind EventKind, at time.Time, alarms ...alarm.Alarm) []Event {
	events := make([]Event, 0, len(alarms))
	for _, a := range alarms {
		events = append(events, Event{Kind: kind, Alarm: a, At: at})
	}

	return events
}

// MultiNotifier dispatches events to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier constructs a MultiNotifier. Nil notifiers are skipped.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	m := new(MultiNotifier)

	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}

	return m
}

// Notify forwards events to all notifiers and joins their errors.
func (m *MultiNotifier) Notify(ctx context.Context, events []Event) error {
	if m == nil || len(events) == 0 {
		return nil
	}

	errs := make([]error, 0, len(m.notifiers))
	for _, n := range m.notifiers {
		errs = append(errs, n.Notify(ctx, events))
	}

	return errors.Join(errs...)
}

// LogNotifier writes events to the context logger.
type LogNotifier struct{}

// Notify logs every event.
func (LogNotifier) Notify(ctx context.Context, events []Event) error {
	for _, e := range events {
		logger.InfoKV(ctx, "alarm "+string(e.Kind),
			"id", e.Alarm.ID,
			"component", e.Alarm.Component,
			"severity", e.Alarm.Severity,
			"message", e.Alarm.Message,
		)
	}

	return nil
}
