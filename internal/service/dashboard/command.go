package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/oshokin/warehouse-alarms/internal/api/grpc/health"
	httpapi "github.com/oshokin/warehouse-alarms/internal/api/http/alarms"
	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/logger"
	"github.com/oshokin/warehouse-alarms/internal/scheduler"
	"github.com/oshokin/warehouse-alarms/internal/service/common"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Options controls the dashboard process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// HTTPAddress provides an optional listen address override for the HTTP API.
	HTTPAddress string
	// GRPCAddress provides an optional listen address override for the gRPC health endpoint.
	GRPCAddress string
	// AddrLister lists interface addresses for gateway resolution, defaults to net.InterfaceAddrs.
	AddrLister config.AddrLister
	// Ready, when set, receives the bound HTTP and gRPC addresses once listening.
	Ready func(httpAddr, grpcAddr net.Addr)
}

// Run starts the scheduler and the servers and blocks until ctx is canceled
// or a server fails.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-dashboard")

	// Load settings and resolve where the gateway lives.
	cfg, err := common.LoadConfig(ctx, opts.ConfigPath, opts.AddrLister)
	if err != nil {
		return err
	}

	// Command line addresses override the configuration.
	if opts.HTTPAddress != "" {
		cfg.HTTPAddress = opts.HTTPAddress
	}

	if opts.GRPCAddress != "" {
		cfg.GRPCAddress = opts.GRPCAddress
	}

	// Lifecycle events are logged and optionally published to NATS.
	notifier, releaseNotifier, err := common.NewNotifier(ctx, cfg.Notify)
	if err != nil {
		return fmt.Errorf("initialise notifier: %w", err)
	}

	defer releaseNotifier()

	// Metrics go to a private registry served on /metrics.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pipeline, err := common.Build(cfg, common.WithRegisterer(registry), common.WithNotifier(notifier))
	if err != nil {
		return fmt.Errorf("initialise pipeline: %w", err)
	}

	healthServer := health.NewServer(pipeline.Engine)

	// Every finished cycle refreshes the health state.
	cycle := func(ctx context.Context, c scheduler.Cycle) error {
		defer healthServer.Update(ctx)

		return pipeline.Engine.RunCycle(ctx, c)
	}

	sched, err := scheduler.New(cycle, cfg.PollInterval, scheduler.WithMetrics(pipeline.Metrics))
	if err != nil {
		return fmt.Errorf("initialise scheduler: %w", err)
	}

	// Setup listeners before anything runs so address errors surface early.
	lc := net.ListenConfig{}

	httpListener, err := lc.Listen(ctx, "tcp", cfg.HTTPAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTPAddress, err)
	}

	var grpcListener net.Listener
	if cfg.GRPCAddress != "" {
		grpcListener, err = lc.Listen(ctx, "tcp", cfg.GRPCAddress)
		if err != nil {
			_ = httpListener.Close()

			return fmt.Errorf("listen on %s: %w", cfg.GRPCAddress, err)
		}
	}

	e := httpapi.NewServer(ctx, &httpapi.Dependencies{
		Feed:     pipeline.Engine,
		Trigger:  sched,
		History:  pipeline.Gateway,
		Sources:  cfg.Sources,
		Gatherer: registry,
	})
	e.Listener = httpListener

	grpcServer := grpc.NewServer()
	healthServer.Register(grpcServer)

	logger.InfoKV(ctx, "Alarm dashboard listening",
		"http_address", httpListener.Addr().String(),
		"grpc_address", cfg.GRPCAddress,
		"sources", len(cfg.Sources),
		"poll_interval", cfg.PollInterval.String(),
	)

	if opts.Ready != nil {
		var grpcAddr net.Addr
		if grpcListener != nil {
			grpcAddr = grpcListener.Addr()
		}

		opts.Ready(httpListener.Addr(), grpcAddr)
	}

	// Polling starts before serving so the first cycle is already underway.
	if err = sched.Start(ctx); err != nil {
		_ = httpListener.Close()

		if grpcListener != nil {
			_ = grpcListener.Close()
		}

		return fmt.Errorf("start scheduler: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP API.
	group.Go(func() error {
		if err := e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}

		return nil
	})

	// gRPC health endpoint.
	if grpcListener != nil {
		group.Go(func() error {
			if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("serve grpc: %w", err)
			}

			return nil
		})
	}

	// Shutdown once the context ends or a server fails.
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down alarm dashboard")

		sched.Stop()
		healthServer.Shutdown()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}

		return nil
	})

	err = group.Wait()

	logger.Info(ctx, "Alarm dashboard stopped")

	return err
}
