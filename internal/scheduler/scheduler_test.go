package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/warehouse-alarms/internal/metrics"
)

// fakeClock hands out a ticker driven by the test.
type fakeClock struct {
	ticks chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{ticks: make(chan time.Time)}
}

func (c *fakeClock) Now() time.Time {
	return time.Now()
}

func (c *fakeClock) Ticker(time.Duration) Ticker {
	return c
}

func (c *fakeClock) Chan() <-chan time.Time {
	return c.ticks
}

func (c *fakeClock) Stop() {}

// blockingCycle counts runs and blocks until released.
type blockingCycle struct {
	runs    atomic.Int32
	release chan struct{}
	last    atomic.Value
}

func newBlockingCycle() *blockingCycle {
	return &blockingCycle{release: make(chan struct{})}
}

func (b *blockingCycle) run(ctx context.Context, cycle Cycle) error {
	b.runs.Add(1)
	b.last.Store(cycle)

	select {
	case <-b.release:
	case <-ctx.Done():
	}

	return nil
}

// TestNew_InvalidInterval rejects non-positive intervals.
func TestNew_InvalidInterval(t *testing.T) {
	t.Parallel()

	_, err := New(func(context.Context, Cycle) error { return nil }, 0)
	require.ErrorIs(t, err, errInvalidInterval)
}

// TestScheduler_OverlapPrevention drops ticks and refuses manual triggers while a cycle runs.
func TestScheduler_OverlapPrevention(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		clock := newFakeClock()
		cycle := newBlockingCycle()
		m := metrics.New(prometheus.NewRegistry())

		s, err := New(cycle.run, time.Second, WithClock(clock), WithMetrics(m))
		require.NoError(t, err)
		require.NoError(t, s.Start(context.Background()))
		require.ErrorIs(t, s.Start(context.Background()), errAlreadyRunning)

		synctest.Wait()
		require.EqualValues(t, 1, cycle.runs.Load())
		require.True(t, s.InFlight())

		// Second trigger while the first is pending does not run.
		require.ErrorIs(t, s.TriggerNow(context.Background()), ErrCycleInFlight)

		clock.ticks <- time.Now()
		synctest.Wait()
		require.EqualValues(t, 1, cycle.runs.Load())
		require.InDelta(t, 2, testutil.ToFloat64(m.TriggersDropped), 0)

		// Once released the next tick runs.
		cycle.release <- struct{}{}
		synctest.Wait()
		require.False(t, s.InFlight())

		clock.ticks <- time.Now()
		synctest.Wait()
		require.EqualValues(t, 2, cycle.runs.Load())
		require.Equal(t, TriggerTick, cycle.last.Load().(Cycle).Trigger)

		s.Stop()
		require.False(t, s.InFlight())
	})
}

// TestScheduler_TriggerNow runs a manual cycle synchronously.
func TestScheduler_TriggerNow(t *testing.T) {
	t.Parallel()

	var got Cycle

	s, err := New(func(_ context.Context, cycle Cycle) error {
		got = cycle

		return nil
	}, time.Second)
	require.NoError(t, err)

	require.NoError(t, s.TriggerNow(context.Background()))
	require.Equal(t, TriggerManual, got.Trigger)
	require.False(t, got.Stale())
	require.False(t, s.InFlight())
}

// TestScheduler_StopMarksStale checks a cycle that outlives Stop sees itself as stale.
func TestScheduler_StopMarksStale(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		staleSeen := make(chan bool, 1)

		s, err := New(func(ctx context.Context, cycle Cycle) error {
			<-ctx.Done()
			staleSeen <- cycle.Stale()

			return ctx.Err()
		}, time.Minute, WithClock(newFakeClock()))
		require.NoError(t, err)
		require.NoError(t, s.Start(context.Background()))

		synctest.Wait()
		s.Stop()

		require.True(t, <-staleSeen)

		// Stop on a stopped scheduler is a no-op and it can be started again.
		s.Stop()
		require.NoError(t, s.Start(context.Background()))
		s.Stop()
	})
}

// TestScheduler_RealTicker runs on the interval with the real clock inside a bubble.
func TestScheduler_RealTicker(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		var runs atomic.Int32

		s, err := New(func(context.Context, Cycle) error {
			runs.Add(1)

			return nil
		}, 10*time.Second)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		require.NoError(t, s.Start(ctx))

		time.Sleep(35 * time.Second)
		synctest.Wait()

		require.EqualValues(t, 4, runs.Load())

		s.Stop()
	})
}
