// Package logger wraps zap to offer:
//   - a global sugared logger with console or JSON encoding,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, WarnKV, etc.).
//
// Every component takes a context and extracts the logger from it, so a
// polling cycle or an API request carries its own scoped fields.
package logger
