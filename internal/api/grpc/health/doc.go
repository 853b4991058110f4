// Package health implements the gRPC health transport of the alarm dashboard.
//
// It maps the status of the latest polling cycle onto the standard
// grpc.health.v1 serving states.
package health
