// Package checker runs the polling pipeline in the foreground and prints the
// active alarm feed to a terminal.
package checker
