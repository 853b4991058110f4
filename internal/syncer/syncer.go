// Package syncer drives the sync-then-fetch protocol against the backing
// store.
//
// The store mirrors the devices asynchronously, so a successful sync only
// means a refresh was requested. The coordinator waits a settling delay
// before signalling that fetching is reasonable. Reads stay best-effort-fresh.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/gateway"
	"github.com/oshokin/warehouse-alarms/internal/logger"
	"github.com/oshokin/warehouse-alarms/internal/metrics"
)

const (
	// DefaultSettleDelay is how long the store is given to pick up a sync.
	DefaultSettleDelay = 1500 * time.Millisecond
	// DefaultRetryMaxElapsed bounds the retries of one sync request.
	DefaultRetryMaxElapsed = 2 * time.Second

	retryInitialInterval = 200 * time.Millisecond
	retryMaxInterval     = time.Second
)

// ErrAllSourcesFailed is returned when no sync request succeeded.
// Callers still fetch, results may be stale.
var ErrAllSourcesFailed = errors.New("all sync requests failed")

// Client is the part of the gateway client used for syncing.
type Client interface {
	// Sync asks the store to refresh one source.
	Sync(ctx context.Context, baseURL, path string) error
}

// Result is the outcome of one coordinated sync.
type Result struct {
	// Operations holds one entry per synced source in registration order.
	Operations []alarm.SyncOperation `json:"operations"`
	// Succeeded is true when at least one source synced.
	Succeeded bool `json:"succeeded"`
	// Settled is true when the settling delay elapsed.
	Settled bool `json:"settled"`
}

// Coordinator issues sync requests for every source with a sync endpoint.
type Coordinator struct {
	// client performs the requests.
	client Client
	// sources are the sources with a sync endpoint.
	sources []config.SourceConfig
	// settleDelay is waited after a successful sync. Zero or negative disables it.
	settleDelay time.Duration
	// retryMaxElapsed bounds retries per request.
	retryMaxElapsed time.Duration
	// metrics is optional.
	metrics *metrics.Metrics
	// now stamps operations.
	now func() time.Time
}

// Option configures the coordinator.
type Option func(*Coordinator)

// WithSettleDelay overrides the settling delay.
func WithSettleDelay(delay time.Duration) Option {
	return func(c *Coordinator) {
		c.settleDelay = delay
	}
}

// WithRetryMaxElapsed overrides the retry budget of a single request.
func WithRetryMaxElapsed(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.retryMaxElapsed = d
		}
	}
}

// WithMetrics makes the coordinator count requests.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// New creates a coordinator. Sources without a sync path are skipped.
func New(client Client, sources []config.SourceConfig, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:          client,
		settleDelay:     DefaultSettleDelay,
		retryMaxElapsed: DefaultRetryMaxElapsed,
		now:             time.Now,
	}

	for _, s := range sources {
		if s.SyncPath != "" {
			c.sources = append(c.sources, s)
		}
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Sync requests a refresh for every source concurrently, then waits the
// settling delay when at least one request succeeded.
func (c *Coordinator) Sync(ctx context.Context) (Result, error) {
	if len(c.sources) == 0 {
		return Result{}, nil
	}

	ops := make([]alarm.SyncOperation, len(c.sources))

	var group errgroup.Group

	for i, s := range c.sources {
		group.Go(func() error {
			ops[i] = c.syncOne(ctx, s)

			return nil
		})
	}

	_ = group.Wait()

	result := Result{Operations: ops}

	for _, op := range ops {
		if op.Succeeded() {
			result.Succeeded = true

			break
		}
	}

	if !result.Succeeded {
		return result, ErrAllSourcesFailed
	}

	if err := c.settle(ctx); err != nil {
		return result, err
	}

	result.Settled = true

	return result, nil
}

// syncOne issues one sync request with retries.
func (c *Coordinator) syncOne(ctx context.Context, s config.SourceConfig) alarm.SyncOperation {
	op := alarm.SyncOperation{
		SourceID:    s.ID,
		RequestedAt: c.now(),
		Outcome:     alarm.SyncSuccess,
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.MaxInterval = retryMaxInterval

	operation := func() (struct{}, error) {
		err := c.client.Sync(ctx, s.BaseURL, s.SyncPath)
		if errors.Is(err, gateway.ErrShape) {
			return struct{}{}, backoff.Permanent(err)
		}

		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(c.retryMaxElapsed))
	if err != nil {
		op.Outcome = alarm.SyncFailure
		op.Err = err.Error()

		logger.WarnKV(ctx, "sync request failed", "source", s.ID, "error", err)
	}

	c.metrics.SyncRequest(s.ID, err == nil)

	return op
}

// settle waits the settling delay unless ctx ends first.
func (c *Coordinator) settle(ctx context.Context) error {
	if c.settleDelay <= 0 {
		return nil
	}

	timer := time.NewTimer(c.settleDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("settle: %w", ctx.Err())
	}
}
