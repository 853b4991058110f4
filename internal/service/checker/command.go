package checker

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/logger"
	"github.com/oshokin/warehouse-alarms/internal/scheduler"
	"github.com/oshokin/warehouse-alarms/internal/service/common"
)

// Options controls the checker polling behavior and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Once runs a single cycle, prints it and exits.
	Once bool
	// Component limits the printed feed to one component.
	Component string
	// Out receives the rendered feed. Defaults to stdout.
	Out io.Writer
	// AddrLister lists interface addresses for gateway resolution, defaults to net.InterfaceAddrs.
	AddrLister config.AddrLister
}

// Run polls the configured sources and prints the feed after every cycle.
// With Once set the cycle error is returned, otherwise failures are logged
// and polling goes on until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-checker")

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	// Load settings from configuration file.
	cfg, err := common.LoadConfig(ctx, opts.ConfigPath, opts.AddrLister)
	if err != nil {
		return err
	}

	// Metrics are not served here, keep them off the global registry.
	pipeline, err := common.Build(cfg, common.WithRegisterer(prometheus.NewRegistry()))
	if err != nil {
		return fmt.Errorf("initialise pipeline: %w", err)
	}

	show := func(ctx context.Context) {
		if err := Render(out, feed(pipeline.Engine.Active(), opts.Component), pipeline.Engine.Status()); err != nil {
			logger.WarnKV(ctx, "Render feed failed", "error", err)
		}
	}

	if opts.Once {
		err = pipeline.Engine.RunCycle(ctx, scheduler.Cycle{Trigger: scheduler.TriggerManual})
		show(ctx)

		return err
	}

	sched, err := scheduler.New(func(ctx context.Context, cycle scheduler.Cycle) error {
		defer show(ctx)

		return pipeline.Engine.RunCycle(ctx, cycle)
	}, cfg.PollInterval)
	if err != nil {
		return fmt.Errorf("initialise scheduler: %w", err)
	}

	logger.InfoKV(ctx, "Polling alarm sources", "sources", len(cfg.Sources), "interval", cfg.PollInterval.String())

	if err = sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	sched.Stop()

	logger.Info(ctx, "Context canceled, exiting")

	return nil
}

// feed filters by component and orders by severity without touching the input.
func feed(active []alarm.Alarm, component string) []alarm.Alarm {
	result := slices.Clone(alarm.FilterByComponent(active, component))
	alarm.SortBySeverity(result)

	return result
}
