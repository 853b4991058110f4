// Package engine runs one polling cycle end to end: sync the store, fetch
// and merge all sources, reconcile the lifecycle and publish the changes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/warehouse-alarms/internal/aggregator"
	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/lifecycle"
	"github.com/oshokin/warehouse-alarms/internal/logger"
	"github.com/oshokin/warehouse-alarms/internal/metrics"
	"github.com/oshokin/warehouse-alarms/internal/notify"
	"github.com/oshokin/warehouse-alarms/internal/scheduler"
	"github.com/oshokin/warehouse-alarms/internal/syncer"
)

// errStaleCycle marks results discarded because the scheduler stopped.
var errStaleCycle = errors.New("cycle result is stale")

// Syncer requests a store refresh before fetching.
type Syncer interface {
	Sync(ctx context.Context) (syncer.Result, error)
}

// SourceStatus is the diagnostic view of one source.
type SourceStatus struct {
	// ID is the source id.
	ID string `json:"id"`
	// Name is the device name.
	Name string `json:"name"`
	// Component is the filter label.
	Component string `json:"component"`
	// Kind is the adapter variant.
	Kind string `json:"kind"`
	// LastError is the failure of the latest fetch, empty after a success.
	LastError string `json:"last_error,omitempty"`
}

// Status describes the latest finished cycle.
type Status struct {
	// CycleID identifies the cycle.
	CycleID string `json:"cycle_id,omitempty"`
	// Trigger is what started it.
	Trigger string `json:"trigger,omitempty"`
	// StartedAt is when it started.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when it finished.
	FinishedAt time.Time `json:"finished_at"`
	// Completed is true once any cycle reconciled a feed.
	Completed bool `json:"completed"`
	// Sync is the outcome of the sync step.
	Sync syncer.Result `json:"sync"`
	// SyncError describes a failed sync step.
	SyncError string `json:"sync_error,omitempty"`
	// Error is the fatal error of the cycle, if any.
	Error string `json:"error,omitempty"`
	// ActiveCount is the size of the active view.
	ActiveCount int `json:"active_count"`
	// Sources holds per-source diagnostics.
	Sources []SourceStatus `json:"sources"`
}

// Healthy reports whether the last cycle completed and at least one source
// answered or synced.
func (s Status) Healthy() bool {
	if !s.Completed || s.Error != "" {
		return false
	}

	if s.Sync.Succeeded {
		return true
	}

	for _, src := range s.Sources {
		if src.LastError == "" {
			return true
		}
	}

	return false
}

// Engine wires the pipeline components together.
type Engine struct {
	// syncer refreshes the store, optional.
	syncer Syncer
	// aggregator fetches and merges alarms.
	aggregator *aggregator.Aggregator
	// tracker owns the lifecycle.
	tracker *lifecycle.Tracker
	// notifier receives lifecycle events, optional.
	notifier notify.Notifier
	// metrics is optional.
	metrics *metrics.Metrics
	// now is the clock.
	now func() time.Time

	// mu guards status.
	mu sync.RWMutex
	// status is the latest finished cycle.
	status Status
}

// Option configures the engine.
type Option func(*Engine)

// WithSyncer enables the sync step.
func WithSyncer(s Syncer) Option {
	return func(e *Engine) {
		e.syncer = s
	}
}

// WithNotifier sets the lifecycle event notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithMetrics enables instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an engine.
func New(agg *aggregator.Aggregator, tracker *lifecycle.Tracker, opts ...Option) *Engine {
	e := &Engine{
		aggregator: agg,
		tracker:    tracker,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.status.Sources = e.sourceStatuses()

	return e
}

// Tracker returns the lifecycle tracker.
func (e *Engine) Tracker() *lifecycle.Tracker {
	return e.tracker
}

// Active returns the active feed in aggregation order.
func (e *Engine) Active() []alarm.Alarm {
	return e.tracker.Active()
}

// Resolved returns the resolved history, most recent first.
func (e *Engine) Resolved() []lifecycle.ResolvedAlarm {
	return e.tracker.Resolved()
}

// Status returns the latest cycle status.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.status
}

// RunCycle is a scheduler.CycleFunc.
// A failed sync is logged and the fetch goes ahead. A failed fetch ends the
// cycle and keeps the previous active view. A stale cycle publishes nothing.
func (e *Engine) RunCycle(ctx context.Context, cycle scheduler.Cycle) error {
	cycleID := uuid.NewString()
	ctx = logger.WithKV(ctx, "cycle_id", cycleID, "trigger", cycle.Trigger)

	started := e.now()
	status := Status{
		CycleID:   cycleID,
		Trigger:   string(cycle.Trigger),
		StartedAt: started,
	}

	// Ask the store to refresh, then give it time to settle.
	if e.syncer != nil {
		result, err := e.syncer.Sync(ctx)
		status.Sync = result

		if err != nil {
			status.SyncError = err.Error()
			logger.WarnKV(ctx, "sync step failed, fetching anyway", "error", err)
		}
	}

	// Fetch and merge every source.
	fetched, err := e.aggregator.Fetch(ctx)
	if err != nil {
		e.finish(ctx, status, started, fmt.Errorf("fetch: %w", err), metrics.ResultFailure)

		return err
	}

	// A stopped scheduler must not see late results.
	if cycle.Stale() {
		logger.DebugKV(ctx, "discarding stale cycle result")
		e.metrics.ObserveCycle(metrics.ResultStale, e.now().Sub(started))

		return errStaleCycle
	}

	changes := e.tracker.Reconcile(ctx, fetched)
	active := e.tracker.Active()

	e.publish(ctx, changes)
	e.metrics.SetActive(active)

	status.Completed = true
	status.ActiveCount = len(active)

	e.finish(ctx, status, started, nil, metrics.ResultSuccess)

	return nil
}

// Acknowledge acknowledges an active alarm and publishes the transition.
func (e *Engine) Acknowledge(ctx context.Context, id string) (alarm.Alarm, error) {
	acknowledged, err := e.tracker.Acknowledge(ctx, id)
	if err != nil {
		return alarm.Alarm{}, err
	}

	e.metrics.LifecycleEvent(metrics.EventAcknowledged, 1)
	e.notify(ctx, notify.NewEvents(notify.EventAcknowledged, e.now(), acknowledged))

	return acknowledged, nil
}

// Resolve resolves an active alarm by operator action and publishes the transition.
func (e *Engine) Resolve(ctx context.Context, id string) (alarm.Alarm, error) {
	resolved, err := e.tracker.Resolve(ctx, id)
	if err != nil {
		return alarm.Alarm{}, err
	}

	e.metrics.LifecycleEvent(metrics.EventResolved, 1)
	e.notify(ctx, notify.NewEvents(notify.EventResolved, e.now(), resolved))
	e.metrics.SetActive(e.tracker.Active())

	return resolved, nil
}

func (e *Engine) publish(ctx context.Context, changes lifecycle.Changes) {
	e.metrics.LifecycleEvent(metrics.EventRaised, len(changes.Raised))
	e.metrics.LifecycleEvent(metrics.EventResolved, len(changes.Resolved))

	if changes.Empty() {
		return
	}

	now := e.now()
	events := append(
		notify.NewEvents(notify.EventRaised, now, changes.Raised...),
		notify.NewEvents(notify.EventResolved, now, changes.Resolved...)...,
	)

	e.notify(ctx, events)
}

func (e *Engine) notify(ctx context.Context, events []notify.Event) {
	if e.notifier == nil {
		return
	}

	if err := e.notifier.Notify(ctx, events); err != nil {
		logger.WarnKV(ctx, "lifecycle notification failed", "error", err)
	}
}

func (e *Engine) finish(ctx context.Context, status Status, started time.Time, err error, result string) {
	finished := e.now()
	status.FinishedAt = finished
	status.Sources = e.sourceStatuses()

	if err != nil {
		status.Error = err.Error()
		logger.ErrorKV(ctx, "cycle failed", "error", err)
	}

	e.mu.Lock()
	// A failed cycle keeps the previous feed, so the completed flag and count carry over.
	if err != nil {
		status.Completed = e.status.Completed
		status.ActiveCount = e.status.ActiveCount
	}

	e.status = status
	e.mu.Unlock()

	e.metrics.ObserveCycle(result, finished.Sub(started))
	logger.DebugKV(ctx, "cycle finished", "active", status.ActiveCount, "took", finished.Sub(started).String())
}

func (e *Engine) sourceStatuses() []SourceStatus {
	adapters := e.aggregator.Adapters()
	result := make([]SourceStatus, 0, len(adapters))

	for _, a := range adapters {
		cfg := a.Source()
		s := SourceStatus{
			ID:        cfg.ID,
			Name:      cfg.Name,
			Component: cfg.Component,
			Kind:      string(cfg.Kind),
		}

		if err := a.LastError(); err != nil {
			s.LastError = err.Error()
		}

		result = append(result, s)
	}

	return result
}
