// Package config defines the dashboard settings and provides helpers to
// load, validate and save them in YAML format.
//
// Settings cover the served addresses, polling and sync timing, the device
// gateway location and the list of alarm sources with their fault field
// allow-lists and severity tables. A few values can be overridden from the
// environment or a .env file.
package config
