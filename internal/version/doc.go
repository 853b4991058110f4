// Package version exposes build metadata of the alarm dashboard.
//
// Version, Commit and BuildTime are injected at build time via Go ldflags.
// UserAgent identifies the dashboard to the gateway and to NATS.
package version
