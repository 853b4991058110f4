package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/gateway"
)

var errStoreDown = errors.New("store down")

// fakeClient fails for the configured paths and counts calls per path.
type fakeClient struct {
	mu      sync.Mutex
	failing map[string]error
	calls   map[string]int
}

func newFakeClient(failing map[string]error) *fakeClient {
	return &fakeClient{failing: failing, calls: make(map[string]int)}
}

func (f *fakeClient) Sync(_ context.Context, _, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[path]++

	return f.failing[path]
}

func (f *fakeClient) callsFor(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[path]
}

func sources() []config.SourceConfig {
	return []config.SourceConfig{
		{ID: "ct", SyncPath: "/ct/sync"},
		{ID: "tr1", SyncPath: "/tr1/sync"},
		{ID: "tables"},
	}
}

// TestSync_PartialSuccessWaitsSettle checks the OR outcome and the settling delay.
func TestSync_PartialSuccessWaitsSettle(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		client := newFakeClient(map[string]error{"/tr1/sync": errStoreDown})
		coordinator := New(client, sources(), WithSettleDelay(1500*time.Millisecond), WithRetryMaxElapsed(time.Second))

		start := time.Now()

		result, err := coordinator.Sync(context.Background())
		require.NoError(t, err)
		require.True(t, result.Succeeded)
		require.True(t, result.Settled)
		require.GreaterOrEqual(t, time.Since(start), 1500*time.Millisecond)

		require.Len(t, result.Operations, 2)
		require.Equal(t, "ct", result.Operations[0].SourceID)
		require.Equal(t, alarm.SyncSuccess, result.Operations[0].Outcome)
		require.Equal(t, "tr1", result.Operations[1].SourceID)
		require.Equal(t, alarm.SyncFailure, result.Operations[1].Outcome)
		require.Contains(t, result.Operations[1].Err, errStoreDown.Error())

		require.Equal(t, 1, client.callsFor("/ct/sync"))
		require.Greater(t, client.callsFor("/tr1/sync"), 1)
	})
}

// TestSync_AllFailed returns the sentinel without waiting.
func TestSync_AllFailed(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		client := newFakeClient(map[string]error{
			"/ct/sync":  errStoreDown,
			"/tr1/sync": fmt.Errorf("%w: not json", gateway.ErrShape),
		})
		coordinator := New(client, sources(), WithSettleDelay(time.Hour), WithRetryMaxElapsed(time.Second))

		result, err := coordinator.Sync(context.Background())
		require.ErrorIs(t, err, ErrAllSourcesFailed)
		require.False(t, result.Succeeded)
		require.False(t, result.Settled)

		// Shape errors are not retried.
		require.Equal(t, 1, client.callsFor("/tr1/sync"))
	})
}

// TestSync_CancelDuringSettle interrupts the settling wait.
func TestSync_CancelDuringSettle(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		coordinator := New(newFakeClient(nil), sources(), WithSettleDelay(time.Hour))

		result, err := coordinator.Sync(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.True(t, result.Succeeded)
		require.False(t, result.Settled)
	})
}

// TestSync_NoSources is a no-op.
func TestSync_NoSources(t *testing.T) {
	t.Parallel()

	client := newFakeClient(nil)

	result, err := New(client, []config.SourceConfig{{ID: "tables"}}).Sync(context.Background())
	require.NoError(t, err)
	require.Empty(t, result.Operations)
	require.False(t, result.Succeeded)
}

// TestSync_NegativeSettleDelay skips waiting.
func TestSync_NegativeSettleDelay(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		start := time.Now()

		result, err := New(newFakeClient(nil), sources(), WithSettleDelay(-1)).Sync(context.Background())
		require.NoError(t, err)
		require.True(t, result.Settled)
		require.Zero(t, time.Since(start))
	})
}
