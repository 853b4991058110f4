package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/service/dashboard"
	"github.com/oshokin/warehouse-alarms/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// grpcAddress overrides the gRPC health listen address.
	grpcAddress string

	// rootCmd represents the base command for running the dashboard backend.
	rootCmd = &cobra.Command{
		Use:   "alarm-dashboard [listen-address]",
		Short: "Run the warehouse alarm dashboard backend.",
		Long: `Polls every configured alarm source through the device gateway and serves the
merged feed to operators over HTTP.

Each cycle asks the gateway to push fresh device data into the store, waits for
the store to settle, reads every source in parallel and reconciles the result
with acknowledged and resolved alarms.
Listen address can be provided as argument to override config (e.g., :9090).
A gRPC health endpoint is served when grpc_addr or --grpc-address is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &dashboard.Options{
				ConfigPath:  configPath,
				HTTPAddress: listenAddress,
				GRPCAddress: grpcAddress,
			}

			return dashboard.Run(ctx, options)
		},
	}
)

// Execute runs the alarm-dashboard CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&grpcAddress, "grpc-address", "g", "", "gRPC health listen address")

	rootCmd.AddCommand(checkCmd, healthCmd)
}
