// Package scheduler runs the polling cycle on a fixed interval.
//
// At most one cycle is in flight at a time. A tick that arrives while a cycle
// runs is dropped, a manual trigger is refused with ErrCycleInFlight. Every
// cycle carries the generation it started in, so results of a cycle that
// outlived Stop can be recognized as stale and discarded.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oshokin/warehouse-alarms/internal/logger"
	"github.com/oshokin/warehouse-alarms/internal/metrics"
)

// Trigger names what started a cycle.
type Trigger string

const (
	// TriggerStart is the cycle run immediately on Start.
	TriggerStart Trigger = "start"
	// TriggerTick is a regular interval cycle.
	TriggerTick Trigger = "tick"
	// TriggerManual is a cycle requested through TriggerNow.
	TriggerManual Trigger = "manual"
)

var (
	// ErrCycleInFlight is returned by TriggerNow while another cycle runs.
	ErrCycleInFlight = errors.New("cycle already in flight")
	// errAlreadyRunning is returned by Start on a running scheduler.
	errAlreadyRunning = errors.New("scheduler already running")
	// errInvalidInterval is returned for non-positive intervals.
	errInvalidInterval = errors.New("interval must be positive")
)

// CycleFunc runs one polling cycle.
type CycleFunc func(ctx context.Context, cycle Cycle) error

// Cycle identifies one run of the cycle func.
type Cycle struct {
	// Generation is the scheduler generation the cycle started in.
	Generation uint64
	// Trigger is what started the cycle.
	Trigger Trigger
	// StartedAt is when the cycle started.
	StartedAt time.Time

	generation *atomic.Uint64
}

// Stale reports whether the scheduler was stopped since the cycle started.
func (c Cycle) Stale() bool {
	return c.generation != nil && c.generation.Load() != c.Generation
}

// Scheduler runs a cycle func immediately and then on every tick.
type Scheduler struct {
	// cycle is the work to run.
	cycle CycleFunc
	// interval is the tick period.
	interval time.Duration
	// clock provides tickers.
	clock Clock
	// metrics is optional.
	metrics *metrics.Metrics

	// inFlight is set while a cycle runs.
	inFlight atomic.Bool
	// generation is bumped by Stop.
	generation atomic.Uint64
	// cycles tracks running cycle goroutines.
	cycles sync.WaitGroup

	// mu guards cancel and done.
	mu sync.Mutex
	// cancel stops the loop, nil when not running.
	cancel context.CancelFunc
	// done is closed when the loop exits.
	done chan struct{}
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMetrics makes the scheduler count dropped triggers.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// New creates a stopped scheduler.
func New(cycle CycleFunc, interval time.Duration, opts ...Option) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errInvalidInterval
	}

	s := &Scheduler{
		cycle:    cycle,
		interval: interval,
		clock:    realClock{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Start runs a cycle immediately and then one per interval until ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(logger.WithName(ctx, "scheduler"))
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(runCtx, s.done)

	return nil
}

// Stop halts the loop, marks running cycles stale and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	s.generation.Add(1)

	if cancel == nil {
		return
	}

	cancel()
	<-done
	s.cycles.Wait()
}

// TriggerNow runs a cycle synchronously unless one is already in flight.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.TriggerDropped()

		return ErrCycleInFlight
	}

	defer s.inFlight.Store(false)

	return s.cycle(ctx, s.newCycle(TriggerManual))
}

// InFlight reports whether a cycle is running.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.tryRun(ctx, TriggerStart)

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.tryRun(ctx, TriggerTick)
		}
	}
}

// tryRun starts a cycle in the background or drops the trigger.
func (s *Scheduler) tryRun(ctx context.Context, trigger Trigger) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.TriggerDropped()
		logger.DebugKV(ctx, "cycle in flight, trigger dropped", "trigger", trigger)

		return
	}

	cycle := s.newCycle(trigger)

	s.cycles.Go(func() {
		defer s.inFlight.Store(false)

		if err := s.cycle(ctx, cycle); err != nil {
			logger.WarnKV(ctx, "cycle failed", "trigger", trigger, "error", err)
		}
	})
}

func (s *Scheduler) newCycle(trigger Trigger) Cycle {
	return Cycle{
		Generation: s.generation.Load(),
		Trigger:    trigger,
		StartedAt:  s.clock.Now(),
		generation: &s.generation,
	}
}
