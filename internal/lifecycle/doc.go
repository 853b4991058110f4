// Package lifecycle tracks every alarm through active, acknowledged and
// resolved across repeated polls.
//
// The acknowledged flag is owned here, never by upstream sources. An alarm
// that stops being reported moves to a bounded resolved history.
package lifecycle
