//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oshokin/warehouse-alarms/internal/aggregator"
	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/engine"
	"github.com/oshokin/warehouse-alarms/internal/gateway"
	"github.com/oshokin/warehouse-alarms/internal/lifecycle"
	"github.com/oshokin/warehouse-alarms/internal/logger"
	"github.com/oshokin/warehouse-alarms/internal/metrics"
	"github.com/oshokin/warehouse-alarms/internal/notify"
	"github.com/oshokin/warehouse-alarms/internal/source"
	"github.com/oshokin/warehouse-alarms/internal/syncer"
)

// LoadConfig loads the optional .env file next to the configuration and in
// the working directory, reads and validates the configuration, resolves the
// gateway URL of every source and configures the global logger.
func LoadConfig(ctx context.Context, path string, addrs config.AddrLister) (*config.Config, error) {
	if path == "" {
		path = config.DefaultConfigFilename
	}

	if addrs == nil {
		addrs = net.InterfaceAddrs
	}

	if envFile := config.LoadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); envFile != "" {
		logger.DebugKV(ctx, "Loaded environment file", "path", envFile)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if err = cfg.ResolveSourceURLs(addrs); err != nil {
		return nil, fmt.Errorf("resolve gateway: %w", err)
	}

	logger.Configure(cfg.Log.Level, cfg.Log.Format)

	return cfg, nil
}

// Pipeline is the wired set of components that runs a polling cycle.
type Pipeline struct {
	// Config is the configuration the pipeline was built from.
	Config *config.Config
	// Gateway talks to the device gateway and the backing store.
	Gateway *gateway.Client
	// Adapters are the per-source adapters in registration order.
	Adapters []source.Adapter
	// Aggregator merges the adapters.
	Aggregator *aggregator.Aggregator
	// Syncer drives the sync step.
	Syncer *syncer.Coordinator
	// Tracker owns the lifecycle.
	Tracker *lifecycle.Tracker
	// Engine runs cycles.
	Engine *engine.Engine
	// Metrics is nil when no registerer was given.
	Metrics *metrics.Metrics
}

// buildOptions collects optional Build dependencies.
type buildOptions struct {
	registerer prometheus.Registerer
	notifier   notify.Notifier
	httpClient *http.Client
	backend    lifecycle.Backend
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

// WithRegisterer enables metrics on the given registerer.
func WithRegisterer(reg prometheus.Registerer) BuildOption {
	return func(o *buildOptions) {
		o.registerer = reg
	}
}

// WithNotifier sets the lifecycle notifier.
func WithNotifier(n notify.Notifier) BuildOption {
	return func(o *buildOptions) {
		o.notifier = n
	}
}

// WithHTTPClient replaces the HTTP client used to reach the gateway.
func WithHTTPClient(c *http.Client) BuildOption {
	return func(o *buildOptions) {
		o.httpClient = c
	}
}

// WithBackend replaces the lifecycle backend.
func WithBackend(b lifecycle.Backend) BuildOption {
	return func(o *buildOptions) {
		o.backend = b
	}
}

// Build wires the pipeline from a validated configuration.
func Build(cfg *config.Config, opts ...BuildOption) (*Pipeline, error) {
	var options buildOptions
	for _, opt := range opts {
		opt(&options)
	}

	p := &Pipeline{Config: cfg}

	if options.registerer != nil {
		p.Metrics = metrics.New(options.registerer)
	}

	p.Gateway = gateway.New(gateway.WithHTTPClient(options.httpClient))

	adapters, err := source.NewAll(cfg.Sources, p.Gateway, source.WithMetrics(p.Metrics))
	if err != nil {
		return nil, fmt.Errorf("build adapters: %w", err)
	}

	p.Adapters = adapters
	p.Aggregator = aggregator.New(adapters, aggregator.WithAdapterTimeout(cfg.AdapterTimeout))
	p.Syncer = syncer.New(p.Gateway, cfg.Sources,
		syncer.WithSettleDelay(cfg.SettleDelay),
		syncer.WithRetryMaxElapsed(cfg.SyncRetryMaxElapsed),
		syncer.WithMetrics(p.Metrics),
	)
	p.Tracker = lifecycle.New(
		lifecycle.WithHistory(cfg.ResolvedHistory.Size, cfg.ResolvedHistory.Retention),
		lifecycle.WithBackend(options.backend),
	)
	p.Engine = engine.New(p.Aggregator, p.Tracker,
		engine.WithSyncer(p.Syncer),
		engine.WithNotifier(options.notifier),
		engine.WithMetrics(p.Metrics),
	)

	return p, nil
}

// NewNotifier builds the lifecycle notifier from configuration.
// Events are always logged and also published to NATS when a URL is set.
// The returned func releases the NATS connection.
func NewNotifier(ctx context.Context, cfg config.NotifyConfig) (notify.Notifier, func(), error) {
	if cfg.NatsURL == "" {
		return notify.NewMultiNotifier(notify.LogNotifier{}), func() {}, nil
	}

	publisher, err := notify.DialNATS(ctx, cfg.NatsURL, cfg.SubjectPrefix)
	if err != nil {
		return nil, nil, err
	}

	return notify.NewMultiNotifier(notify.LogNotifier{}, publisher), publisher.Close, nil
}
