package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/warehouse-alarms/internal/api/grpc/health"
	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/service/common"
)

const configTemplate = `
poll_interval: 1s
settle_delay: -1ns
http_addr: 127.0.0.1:0
grpc_addr: 127.0.0.1:0
gateway:
  url: %s
log:
  level: error
sources:
  - id: ct
    name: Carro de transferencia
    kind: fields
    severity: critical
    status_path: /api/ct/status
    sync_path: /api/ct/sync
    field_prefix: ct_defecto_
    fields: [ct_defecto_telemetro, ct_defecto_seta]
`

// newGateway serves one active field alarm.
func newGateway(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/ct/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":{"ct_defecto_telemetro":true,"ct_defecto_seta":false}}`))
	})
	mux.HandleFunc("/api/ct/sync", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

// TestRun serves the feed and the health endpoint until the context ends.
//
//nolint:paralleltest // Configures the global logger.
func TestRun(t *testing.T) {
	gateway := newGateway(t)

	path := filepath.Join(t.TempDir(), config.DefaultConfigFilename)
	require.NoError(t, os.WriteFile(path, fmt.Appendf(nil, configTemplate, gateway.URL), config.DefaultFilePermissions))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan [2]net.Addr, 1)
	errCh := make(chan error, 1)

	go func() {
		errCh <- Run(ctx, &Options{
			ConfigPath: path,
			Ready: func(httpAddr, grpcAddr net.Addr) {
				ready <- [2]net.Addr{httpAddr, grpcAddr}
			},
		})
	}()

	var addrs [2]net.Addr
	select {
	case addrs = <-ready:
	case err := <-errCh:
		t.Fatalf("run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("dashboard did not start")
	}

	feedURL := "http://" + addrs[0].String() + "/api/alarms"

	var feed struct {
		Success bool          `json:"success"`
		Data    []alarm.Alarm `json:"data"`
	}

	require.Eventually(t, func() bool {
		resp, err := http.Get(feedURL) //nolint:noctx // Test helper.
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		feed.Data = nil

		return json.NewDecoder(resp.Body).Decode(&feed) == nil && len(feed.Data) == 1
	}, 5*time.Second, 50*time.Millisecond)

	require.True(t, feed.Success)
	require.Equal(t, "ct:ct_defecto_telemetro", feed.Data[0].ID)
	require.Equal(t, "Carro de transferencia", feed.Data[0].Component)
	require.False(t, feed.Data[0].Acknowledged)

	client, err := common.Dial(ctx, addrs[1].String())
	require.NoError(t, err)

	defer client.Close()

	require.Eventually(t, func() bool {
		status, err := client.Check(ctx, health.ServiceName)

		return err == nil && status == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 50*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("dashboard did not stop")
	}
}

// TestRun_MissingConfig fails before listening.
//
//nolint:paralleltest // Configures the global logger.
func TestRun_MissingConfig(t *testing.T) {
	err := Run(context.Background(), &Options{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.ErrorIs(t, err, os.ErrNotExist)
}
