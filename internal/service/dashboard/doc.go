// Package dashboard runs the alarm dashboard backend: the polling scheduler,
// the HTTP API and the gRPC health endpoint.
package dashboard
