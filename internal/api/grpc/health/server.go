package health

import (
	"context"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/warehouse-alarms/internal/engine"
	"github.com/oshokin/warehouse-alarms/internal/logger"
)

// ServiceName is the name the dashboard reports under, besides the empty overall name.
const ServiceName = "warehouse.alarms.Dashboard"

// StatusSource exposes the latest cycle status.
type StatusSource interface {
	Status() engine.Status
}

// Server keeps the health service in line with the pipeline status.
type Server struct {
	// health is the standard health implementation.
	health *grpchealth.Server
	// source provides the status.
	source StatusSource
}

// NewServer creates a health server that starts as NOT_SERVING.
func NewServer(source StatusSource) *Server {
	s := &Server{
		health: grpchealth.NewServer(),
		source: source,
	}

	s.set(healthpb.HealthCheckResponse_NOT_SERVING)

	return s
}

// Register attaches the health service to a gRPC server.
func (s *Server) Register(grpcServer *grpc.Server) {
	healthpb.RegisterHealthServer(grpcServer, s.health)
}

// Update recomputes the serving state from the latest status.
func (s *Server) Update(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	state := ServingStatus(s.source.Status())
	s.set(state)

	logger.DebugKV(ctx, "health updated", "state", state.String())

	return state
}

// Check answers a health check directly, without a transport.
func (s *Server) Check(ctx context.Context, service string) (*healthpb.HealthCheckResponse, error) {
	return s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
}

// Shutdown marks every service NOT_SERVING and ignores later updates.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// ServingStatus maps a cycle status to a health state.
func ServingStatus(status engine.Status) healthpb.HealthCheckResponse_ServingStatus {
	if status.Healthy() {
		return healthpb.HealthCheckResponse_SERVING
	}

	return healthpb.HealthCheckResponse_NOT_SERVING
}

func (s *Server) set(state healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", state)
	s.health.SetServingStatus(ServiceName, state)
}
