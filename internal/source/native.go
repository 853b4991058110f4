package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/decoder"
	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/gateway"
	"github.com/oshokin/warehouse-alarms/internal/logger"
)

// Accepted spellings of native alarm fields, in lookup order.
var (
	idKeys        = []string{"id", "alarm_id"}
	messageKeys   = []string{"message", "description", "text"}
	timestampKeys = []string{"timestamp", "created_at", "time"}
)

const (
	keyDeviceID   = "device_id"
	keyDeviceName = "device_name"
	keySeverity   = "severity"
	keyActive     = "active"

	// unixMillisThreshold separates unix seconds from unix milliseconds.
	unixMillisThreshold = 1e11

	localTimeLayout = "2006-01-02 15:04:05"
)

// NativeAdapter normalizes a list of discrete alarm objects.
type NativeAdapter struct {
	*base

	// client reads the alarm list.
	client Gateway
}

// NewNativeAdapter creates a native adapter.
func NewNativeAdapter(cfg config.SourceConfig, client Gateway, opts ...Option) *NativeAdapter {
	return &NativeAdapter{
		base:   newBase(cfg, opts),
		client: client,
	}
}

// FetchActiveAlarms returns the normalized active alarms in upstream order.
// Entries without an id or flagged inactive are skipped.
func (a *NativeAdapter) FetchActiveAlarms(ctx context.Context) []alarm.Alarm {
	raw, err := a.client.FetchAlarms(ctx, a.cfg.BaseURL, a.cfg.AlarmsPath)
	if err != nil {
		return a.fail(ctx, err)
	}

	a.succeed()

	detected := a.now()
	result := make([]alarm.Alarm, 0, len(raw))

	for i, entry := range raw {
		if active, found := entry[keyActive]; found && !decoder.IsTruthy(active) {
			continue
		}

		normalized, ok := Normalize(a.cfg, entry, detected)
		if !ok {
			logger.DebugKV(ctx, "skipping native alarm entry", "source", a.cfg.ID, "index", i)

			continue
		}

		result = append(result, normalized)
	}

	return result
}

// Normalize converts one raw alarm object of a source to the unified shape.
// Entries without an id are rejected. The detected time is used when the
// entry carries no usable timestamp.
func Normalize(cfg config.SourceConfig, entry gateway.RawAlarm, detected time.Time) (alarm.Alarm, bool) {
	upstreamID := stringValue(lookup(entry, idKeys...))
	if upstreamID == "" {
		return alarm.Alarm{}, false
	}

	deviceName := stringValue(entry[keyDeviceName])
	if deviceName == "" {
		deviceName = cfg.Name
	}

	deviceID := stringValue(entry[keyDeviceID])
	if deviceID == "" {
		deviceID = cfg.DeviceID
	}

	message := stringValue(lookup(entry, messageKeys...))
	if message == "" {
		message = fmt.Sprintf("%s: alarm %s", deviceName, upstreamID)
	}

	severity := resolveSeverity(cfg, upstreamID, entry)

	timestamp, ok := parseTimestamp(lookup(entry, timestampKeys...))
	if !ok {
		timestamp = detected
	}

	return alarm.Alarm{
		ID:         cfg.ID + ":" + upstreamID,
		SourceID:   cfg.ID,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		Component:  cfg.Component,
		Message:    message,
		Severity:   severity,
		Timestamp:  timestamp,
	}, true
}

// resolveSeverity applies the severity table of the source. The severity sent
// by the upstream system is used only when the source configures neither an
// override for the alarm nor a default severity.
func resolveSeverity(cfg config.SourceConfig, upstreamID string, entry gateway.RawAlarm) alarm.Severity {
	_, overridden := cfg.SeverityOverrides[upstreamID]
	if !overridden && cfg.Severity == "" {
		if severity, ok := alarm.ParseSeverity(stringValue(entry[keySeverity])); ok {
			return severity
		}
	}

	return cfg.SeverityFor(upstreamID)
}

// NormalizeHistory converts history entries, keeping inactive ones.
func NormalizeHistory(cfg config.SourceConfig, entries []gateway.RawAlarm, detected time.Time) []alarm.Alarm {
	result := make([]alarm.Alarm, 0, len(entries))

	for _, entry := range entries {
		if normalized, ok := Normalize(cfg, entry, detected); ok {
			result = append(result, normalized)
		}
	}

	return result
}

// lookup returns the first non-nil value among keys.
func lookup(entry gateway.RawAlarm, keys ...string) any {
	for _, key := range keys {
		if v, ok := entry[key]; ok && v != nil {
			return v
		}
	}

	return nil
}

// stringValue renders scalars as strings. Whole floats lose their fraction.
func stringValue(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case bool:
		return strconv.FormatBool(value)
	default:
		return ""
	}
}

// parseTimestamp coerces RFC3339 strings, "2006-01-02 15:04:05" strings and
// unix seconds or milliseconds to a time.
func parseTimestamp(v any) (time.Time, bool) {
	switch value := v.(type) {
	case string:
		value = strings.TrimSpace(value)

		if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
			return t, true
		}

		if t, err := time.ParseInLocation(localTimeLayout, value, time.Local); err == nil {
			return t, true
		}

		if n, err := strconv.ParseFloat(value, 64); err == nil {
			return fromUnix(n)
		}
	case float64:
		return fromUnix(value)
	case int64:
		return fromUnix(float64(value))
	}

	return time.Time{}, false
}

func fromUnix(n float64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}

	if n >= unixMillisThreshold {
		return time.UnixMilli(int64(n)), true
	}

	return time.Unix(int64(n), 0), true
}
