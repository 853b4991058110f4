// Package aggregator merges the alarms of every registered source into one
// de-duplicated feed.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/logger"
	"github.com/oshokin/warehouse-alarms/internal/source"
)

// DefaultAdapterTimeout bounds a single adapter call.
const DefaultAdapterTimeout = 5 * time.Second

var (
	// ErrNoAdapters is returned when nothing is registered.
	ErrNoAdapters = errors.New("no adapters registered")
	// errAdapterPanic wraps a recovered adapter panic.
	errAdapterPanic = errors.New("adapter panicked")
)

// Aggregator fans out to adapters and merges their results.
type Aggregator struct {
	// adapters are kept in registration order.
	adapters []source.Adapter
	// timeout bounds each adapter call.
	timeout time.Duration
}

// Option configures the aggregator.
type Option func(*Aggregator)

// WithAdapterTimeout overrides the per-adapter timeout.
func WithAdapterTimeout(timeout time.Duration) Option {
	return func(a *Aggregator) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// New creates an aggregator over adapters in registration order.
func New(adapters []source.Adapter, opts ...Option) *Aggregator {
	a := &Aggregator{
		adapters: adapters,
		timeout:  DefaultAdapterTimeout,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Adapters returns the registered adapters.
func (a *Aggregator) Adapters() []source.Adapter {
	return a.adapters
}

// Fetch queries every adapter concurrently and waits for all of them.
// Results are concatenated in registration order and de-duplicated by id,
// keeping the first occurrence. Adapter failures are soft. Only a missing
// registration or a canceled parent context is returned as an error.
func (a *Aggregator) Fetch(ctx context.Context) ([]alarm.Alarm, error) {
	if len(a.adapters) == 0 {
		return nil, ErrNoAdapters
	}

	results := make([][]alarm.Alarm, len(a.adapters))

	// Adapter errors never cancel siblings, so a plain group is enough.
	var group errgroup.Group

	for i, adapter := range a.adapters {
		group.Go(func() error {
			results[i] = a.fetchOne(ctx, adapter)

			return nil
		})
	}

	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	return merge(results), nil
}

// fetchOne calls one adapter under its own deadline and recovers panics.
func (a *Aggregator) fetchOne(ctx context.Context, adapter source.Adapter) (result []alarm.Alarm) {
	sourceID := adapter.Source().ID

	callCtx, cancel := context.WithTimeout(logger.WithKV(ctx, "source", sourceID), a.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorKV(callCtx, "source adapter panicked", "error", fmt.Errorf("%w: %v", errAdapterPanic, r))

			result = []alarm.Alarm{}
		}
	}()

	return adapter.FetchActiveAlarms(callCtx)
}

// merge concatenates per-adapter results and drops repeated ids.
func merge(results [][]alarm.Alarm) []alarm.Alarm {
	total := 0
	for _, r := range results {
		total += len(r)
	}

	seen := make(map[string]struct{}, total)
	merged := make([]alarm.Alarm, 0, total)

	for _, r := range results {
		for _, a := range r {
			if _, dup := seen[a.ID]; dup {
				continue
			}

			seen[a.ID] = struct{}{}
			merged = append(merged, a)
		}
	}

	return merged
}
