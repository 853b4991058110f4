package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/warehouse-alarms/internal/api/grpc/health"
	"github.com/oshokin/warehouse-alarms/internal/service/common"
)

// errNotServing is returned when the dashboard reports anything but SERVING.
var errNotServing = errors.New("dashboard is not serving")

var (
	// probeTimeout bounds the health check call.
	probeTimeout time.Duration

	// healthCmd probes a running dashboard over gRPC.
	healthCmd = &cobra.Command{
		Use:   "health <grpc-address>",
		Short: "Probe the gRPC health endpoint of a running dashboard.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			client, err := common.Dial(ctx, args[0], common.WithCallTimeout(probeTimeout))
			if err != nil {
				return fmt.Errorf("dial dashboard: %w", err)
			}

			defer func() {
				_ = client.Close()
			}()

			status, err := client.Check(ctx, health.ServiceName)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), status.String())

			if status != healthpb.HealthCheckResponse_SERVING {
				return errNotServing
			}

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	healthCmd.Flags().DurationVarP(&probeTimeout, "timeout", "t", common.DefaultCallTimeout, "health call timeout")
}
