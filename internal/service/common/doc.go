// Package common holds helpers shared by several services.
//
// It loads and resolves the configuration, builds the polling pipeline from
// it and provides a small gRPC health client with per-call timeouts.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
