package config

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
)

// SourceKind selects how a source exposes its alarms.
type SourceKind string

const (
	// KindFields sources expose a raw status record with fault flags.
	KindFields SourceKind = "fields"
	// KindNative sources already return discrete alarm objects.
	KindNative SourceKind = "native"
)

// DefaultSeverity is used when a source does not set one.
const DefaultSeverity = alarm.SeverityWarning

// SourceConfig describes one upstream alarm source.
type SourceConfig struct {
	// ID is the unique source identifier, also used to namespace alarm ids.
	ID string `yaml:"id"`
	// Name is the operator-facing device name.
	Name string `yaml:"name"`
	// DeviceID identifies the physical device, defaults to ID.
	DeviceID string `yaml:"device_id"`
	// Component is the label used by the UI filters, defaults to Name.
	Component string `yaml:"component"`
	// Kind selects the adapter implementation.
	Kind SourceKind `yaml:"kind"`
	// Severity is the default severity of every alarm from this source.
	Severity string `yaml:"severity"`
	// SeverityOverrides maps individual fault fields to a severity.
	SeverityOverrides map[string]string `yaml:"severity_overrides,omitempty"`
	// BaseURL overrides the resolved gateway URL for this source.
	BaseURL string `yaml:"base_url,omitempty"`
	// StatusPath is the raw status endpoint of a fields source.
	StatusPath string `yaml:"status_path,omitempty"`
	// AlarmsPath is the active alarm list endpoint of a native source.
	AlarmsPath string `yaml:"alarms_path,omitempty"`
	// SyncPath asks the backing store to refresh this source, empty skips sync.
	SyncPath string `yaml:"sync_path,omitempty"`
	// HistoryPath is the alarm history read endpoint, optional.
	HistoryPath string `yaml:"history_path,omitempty"`
	// FieldPrefix is stripped from field names to build human readable names.
	FieldPrefix string `yaml:"field_prefix,omitempty"`
	// Fields is the ordered fault field allow-list of a fields source.
	Fields []string `yaml:"fields,omitempty"`
}

var (
	// errSourceIDRequired is returned when a source has no identifier.
	errSourceIDRequired = errors.New("id must be provided")
	// errDuplicateSource is returned when two sources share an identifier.
	errDuplicateSource = errors.New("duplicate source id")
	// errUnknownKind is returned for an unsupported source kind.
	errUnknownKind = errors.New("unknown source kind")
	// errUnknownSeverity is returned for an unsupported severity.
	errUnknownSeverity = errors.New("unknown severity")
	// errStatusPathRequired is returned when a fields source lacks a status endpoint.
	errStatusPathRequired = errors.New("status_path must be provided for fields sources")
	// errFieldsRequired is returned when a fields source has an empty allow-list.
	errFieldsRequired = errors.New("fields must be provided for fields sources")
	// errAlarmsPathRequired is returned when a native source lacks an alarm list endpoint.
	errAlarmsPathRequired = errors.New("alarms_path must be provided for native sources")
)

// Validate checks the source and fills in defaults.
//
//nolint:cyclop // Flat list of checks.
func (s *SourceConfig) Validate() error {
	if s.ID == "" {
		return errSourceIDRequired
	}

	if s.Name == "" {
		s.Name = s.ID
	}

	if s.DeviceID == "" {
		s.DeviceID = s.ID
	}

	if s.Component == "" {
		s.Component = s.Name
	}

	if s.Severity == "" {
		s.Severity = string(DefaultSeverity)
	}

	if _, ok := alarm.ParseSeverity(s.Severity); !ok {
		return fmt.Errorf("%w: %q", errUnknownSeverity, s.Severity)
	}

	for field, severity := range s.SeverityOverrides {
		if _, ok := alarm.ParseSeverity(severity); !ok {
			return fmt.Errorf("field %s: %w: %q", field, errUnknownSeverity, severity)
		}
	}

	switch s.Kind {
	case KindFields:
		if s.StatusPath == "" {
			return errStatusPathRequired
		}

		if len(s.Fields) == 0 {
			return errFieldsRequired
		}
	case KindNative:
		if s.AlarmsPath == "" {
			return errAlarmsPathRequired
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownKind, s.Kind)
	}

	if s.BaseURL != "" {
		if _, err := url.ParseRequestURI(s.BaseURL); err != nil {
			return fmt.Errorf("invalid base url: %w", err)
		}
	}

	return nil
}

// SeverityFor returns the severity of a field, using the override table first.
func (s *SourceConfig) SeverityFor(field string) alarm.Severity {
	if override, ok := s.SeverityOverrides[field]; ok {
		if severity, valid := alarm.ParseSeverity(override); valid {
			return severity
		}
	}

	severity, _ := alarm.ParseSeverity(s.Severity)

	return severity
}
