// Package alarms implements the HTTP JSON transport of the alarm dashboard.
//
// It serves the unified active feed, the resolved history, the backing-store
// history with an XLSX export, operator actions and the operational endpoints
// (status, health, metrics).
package alarms
