package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/gateway"
	"github.com/oshokin/warehouse-alarms/internal/logger"
	"github.com/oshokin/warehouse-alarms/internal/metrics"
)

var (
	errUnknownKind = errors.New("unknown source kind")
	errNilClient   = errors.New("gateway client is not set")
)

// Adapter fetches the currently active alarms of one source.
type Adapter interface {
	// Source returns the configuration the adapter was built from.
	Source() config.SourceConfig
	// FetchActiveAlarms never fails. Failures yield an empty slice.
	FetchActiveAlarms(ctx context.Context) []alarm.Alarm
	// LastError returns the failure of the latest fetch, nil after a success.
	LastError() error
}

// Gateway is the part of the gateway client used by adapters.
type Gateway interface {
	// FetchStatus reads a raw status record.
	FetchStatus(ctx context.Context, baseURL, path string) (alarm.RawStatusRecord, error)
	// FetchAlarms reads a list of raw alarm objects.
	FetchAlarms(ctx context.Context, baseURL, path string) ([]gateway.RawAlarm, error)
}

// Option configures an adapter.
type Option func(*base)

// WithMetrics makes the adapter count fetch results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) {
		b.metrics = m
	}
}

// WithClock overrides the detection clock.
func WithClock(now func() time.Time) Option {
	return func(b *base) {
		if now != nil {
			b.now = now
		}
	}
}

// New builds the adapter variant selected by the source kind.
func New(cfg config.SourceConfig, client Gateway, opts ...Option) (Adapter, error) {
	if client == nil {
		return nil, errNilClient
	}

	switch cfg.Kind {
	case config.KindFields:
		return NewFieldAdapter(cfg, client, opts...), nil
	case config.KindNative:
		return NewNativeAdapter(cfg, client, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q for source %s", errUnknownKind, cfg.Kind, cfg.ID)
	}
}

// NewAll builds adapters for every configured source in registration order.
func NewAll(sources []config.SourceConfig, client Gateway, opts ...Option) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(sources))

	for _, cfg := range sources {
		adapter, err := New(cfg, client, opts...)
		if err != nil {
			return nil, err
		}

		adapters = append(adapters, adapter)
	}

	return adapters, nil
}

// base carries what both adapter variants share.
type base struct {
	// cfg is the source configuration.
	cfg config.SourceConfig
	// metrics is optional.
	metrics *metrics.Metrics
	// now stamps detection time.
	now func() time.Time

	// mu guards lastErr.
	mu sync.Mutex
	// lastErr is the failure of the latest fetch.
	lastErr error
}

func newBase(cfg config.SourceConfig, opts []Option) *base {
	b := &base{
		cfg: cfg,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Source returns the source configuration.
func (b *base) Source() config.SourceConfig {
	return b.cfg
}

// LastError returns the failure of the latest fetch.
func (b *base) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.lastErr
}

// fail records a failed fetch and returns an empty result.
func (b *base) fail(ctx context.Context, err error) []alarm.Alarm {
	b.mu.Lock()
	b.lastErr = err
	b.mu.Unlock()

	b.metrics.SourceFetch(b.cfg.ID, false)
	logger.WarnKV(ctx, "source fetch failed", "source", b.cfg.ID, "error", err)

	return []alarm.Alarm{}
}

// succeed clears the recorded failure.
func (b *base) succeed() {
	b.mu.Lock()
	b.lastErr = nil
	b.mu.Unlock()

	b.metrics.SourceFetch(b.cfg.ID, true)
}

// alarmID namespaces an upstream key with the source id.
func (b *base) alarmID(key string) string {
	return b.cfg.ID + ":" + key
}
