package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of the alarm dashboard.
type Config struct {
	// HTTPAddress is the listen address of the operator API.
	HTTPAddress string `yaml:"http_addr"`
	// GRPCAddress is the listen address of the gRPC health service, empty disables it.
	GRPCAddress string `yaml:"grpc_addr"`
	// PollInterval is the time between two polling cycles.
	PollInterval time.Duration `yaml:"poll_interval"`
	// SettleDelay is how long to wait after sync before fetching.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// AdapterTimeout bounds every source fetch.
	AdapterTimeout time.Duration `yaml:"adapter_timeout"`
	// SyncRetryMaxElapsed bounds retries of a single sync request.
	SyncRetryMaxElapsed time.Duration `yaml:"sync_retry_max_elapsed"`
	// ResolvedHistory configures how many resolved alarms are kept.
	ResolvedHistory HistoryConfig `yaml:"resolved_history"`
	// Gateway describes where the device gateway lives.
	Gateway GatewayConfig `yaml:"gateway"`
	// Log configures logging output.
	Log LogConfig `yaml:"log"`
	// Notify configures lifecycle event publishing.
	Notify NotifyConfig `yaml:"notify"`
	// Sources lists alarm sources in registration order.
	Sources []SourceConfig `yaml:"sources"`
}

// HistoryConfig bounds the resolved alarm history.
type HistoryConfig struct {
	// Size is the maximum number of resolved alarms kept.
	Size int `yaml:"size"`
	// Retention is how long a resolved alarm stays in history.
	Retention time.Duration `yaml:"retention"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is console or json.
	Format string `yaml:"format"`
}

// NotifyConfig configures lifecycle notifications.
type NotifyConfig struct {
	// NatsURL enables publishing to NATS when set.
	NatsURL string `yaml:"nats_url"`
	// SubjectPrefix is prepended to event subjects.
	SubjectPrefix string `yaml:"subject_prefix"`
}

const (
	// DefaultConfigFilename is the default filename for dashboard settings.
	DefaultConfigFilename = "alarm-dashboard.yaml"

	// DefaultHTTPAddress is the default operator API listen address.
	DefaultHTTPAddress = ":8080"

	// DefaultPollInterval is the default time between polling cycles.
	DefaultPollInterval = 10 * time.Second

	// DefaultSettleDelay gives the store time to commit data pushed by the gateway.
	DefaultSettleDelay = 1500 * time.Millisecond

	// DefaultAdapterTimeout bounds a single source fetch.
	DefaultAdapterTimeout = 5 * time.Second

	// DefaultSyncRetryMaxElapsed bounds retries of one sync request.
	DefaultSyncRetryMaxElapsed = 2 * time.Second

	// DefaultHistorySize is the default number of resolved alarms kept.
	DefaultHistorySize = 200

	// DefaultHistoryRetention is the default lifetime of a resolved alarm in history.
	DefaultHistoryRetention = 30 * time.Minute

	// DefaultSubjectPrefix is the default NATS subject prefix.
	DefaultSubjectPrefix = "alarms"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// minPollInterval keeps the dashboard from hammering the gateway.
	minPollInterval = time.Second
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errNoSources is returned when no alarm source is configured.
	errNoSources = errors.New("at least one source must be configured")
	// errPollIntervalTooShort is returned for intervals below minPollInterval.
	errPollIntervalTooShort = errors.New("poll interval is too short")
)

// Load reads configuration from the provided path, applies environment
// overrides and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	ApplyEnv(&cfg)

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and fills in defaults.
//
//nolint:cyclop // Each branch is a single default or check.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.HTTPAddress == "" {
		cfg.HTTPAddress = DefaultHTTPAddress
	}

	if _, _, err := net.SplitHostPort(cfg.HTTPAddress); err != nil {
		return fmt.Errorf("invalid http address: %w", err)
	}

	if cfg.GRPCAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.GRPCAddress); err != nil {
			return fmt.Errorf("invalid grpc address: %w", err)
		}
	}

	switch {
	case cfg.PollInterval == 0:
		cfg.PollInterval = DefaultPollInterval
	case cfg.PollInterval < minPollInterval:
		return fmt.Errorf("%w: %s", errPollIntervalTooShort, cfg.PollInterval)
	}

	// A negative settle delay disables waiting after sync.
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}

	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = DefaultAdapterTimeout
	}

	if cfg.SyncRetryMaxElapsed <= 0 {
		cfg.SyncRetryMaxElapsed = DefaultSyncRetryMaxElapsed
	}

	if cfg.ResolvedHistory.Size <= 0 {
		cfg.ResolvedHistory.Size = DefaultHistorySize
	}

	if cfg.ResolvedHistory.Retention <= 0 {
		cfg.ResolvedHistory.Retention = DefaultHistoryRetention
	}

	if cfg.Notify.SubjectPrefix == "" {
		cfg.Notify.SubjectPrefix = DefaultSubjectPrefix
	}

	return validateSources(cfg.Sources)
}

// validateSources checks every source and rejects duplicate identifiers.
func validateSources(sources []SourceConfig) error {
	if len(sources) == 0 {
		return errNoSources
	}

	seen := make(map[string]struct{}, len(sources))

	for i := range sources {
		if err := sources[i].Validate(); err != nil {
			return fmt.Errorf("source #%d: %w", i+1, err)
		}

		if _, ok := seen[sources[i].ID]; ok {
			return fmt.Errorf("source %q: %w", sources[i].ID, errDuplicateSource)
		}

		seen[sources[i].ID] = struct{}{}
	}

	return nil
}
