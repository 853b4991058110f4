// Package alarm contains core domain types for the alarm feed.
//
// It defines the raw status record received from a device gateway, the
// candidates decoded from it, the unified Alarm shown to operators and the
// ephemeral SyncOperation produced by the sync protocol. Clone helpers avoid
// leaking internal references across package boundaries.
package alarm
