package aggregator

import (
	"context"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/source"
)

// fakeAdapter returns canned alarms, optionally after a delay or by panicking.
type fakeAdapter struct {
	id     string
	alarms []alarm.Alarm
	delay  time.Duration
	panics bool
}

func (f *fakeAdapter) Source() config.SourceConfig {
	return config.SourceConfig{ID: f.id}
}

func (f *fakeAdapter) FetchActiveAlarms(ctx context.Context) []alarm.Alarm {
	if f.panics {
		panic("boom")
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return []alarm.Alarm{}
		}
	}

	return f.alarms
}

func (f *fakeAdapter) LastError() error {
	return nil
}

func ids(alarms []alarm.Alarm) []string {
	result := make([]string, 0, len(alarms))
	for _, a := range alarms {
		result = append(result, a.ID)
	}

	return result
}

// TestFetch_DedupKeepsFirst checks registration order wins for repeated ids.
func TestFetch_DedupKeepsFirst(t *testing.T) {
	t.Parallel()

	first := &fakeAdapter{id: "a", alarms: []alarm.Alarm{
		{ID: "x", Message: "from a"},
		{ID: "y"},
	}}
	second := &fakeAdapter{id: "b", alarms: []alarm.Alarm{
		{ID: "z"},
		{ID: "x", Message: "from b"},
	}}

	got, err := New([]source.Adapter{first, second}).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y", "z"}, ids(got))
	require.Equal(t, "from a", got[0].Message)
}

// TestFetch_FailSoft checks a broken adapter does not hide the others.
func TestFetch_FailSoft(t *testing.T) {
	t.Parallel()

	failing := &fakeAdapter{id: "a", alarms: []alarm.Alarm{}}
	panicking := &fakeAdapter{id: "p", panics: true}
	healthy := &fakeAdapter{id: "b", alarms: []alarm.Alarm{{ID: "b:1"}}}

	got, err := New([]source.Adapter{failing, panicking, healthy}).Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"b:1"}, ids(got))
}

// TestFetch_AdapterTimeout checks a hanging adapter is cut off by its own deadline.
func TestFetch_AdapterTimeout(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		hanging := &fakeAdapter{id: "slow", delay: time.Hour, alarms: []alarm.Alarm{{ID: "late"}}}
		fast := &fakeAdapter{id: "fast", alarms: []alarm.Alarm{{ID: "fast:1"}}}

		start := time.Now()

		got, err := New([]source.Adapter{hanging, fast}, WithAdapterTimeout(time.Second)).Fetch(context.Background())
		require.NoError(t, err)
		require.Equal(t, []string{"fast:1"}, ids(got))
		require.Equal(t, time.Second, time.Since(start))
	})
}

// TestFetch_Errors covers orchestration failures.
func TestFetch_Errors(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Fetch(context.Background())
	require.ErrorIs(t, err, ErrNoAdapters)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = New([]source.Adapter{&fakeAdapter{id: "a"}}).Fetch(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
