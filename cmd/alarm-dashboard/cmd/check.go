package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/warehouse-alarms/internal/service/checker"
)

var (
	// once runs a single cycle and exits.
	once bool
	// component limits the printed feed.
	component string

	// checkCmd polls the sources in the foreground and prints the feed.
	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Poll alarm sources and print the active feed.",
		Long: `Runs the same polling cycle as the dashboard without serving anything and prints
the active alarms as a table after every cycle.

Use --once for a single cycle, the exit status is non-zero when it fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return checker.Run(ctx, &checker.Options{
				ConfigPath: configPath,
				Once:       once,
				Component:  component,
				Out:        cmd.OutOrStdout(),
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	checkCmd.Flags().BoolVarP(&once, "once", "o", false, "run a single cycle and exit")
	checkCmd.Flags().StringVar(&component, "component", "", "only print alarms of this component")
}
