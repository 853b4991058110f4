package decoder

import (
	"encoding/json"
	"strings"

	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
)

// separatorReplacer turns internal field separators into spaces.
//
//nolint:gochecknoglobals // Immutable replacer shared by all decode calls.
var separatorReplacer = strings.NewReplacer("_", " ", "-", " ", ".", " ")

// Decode returns one candidate per allow-listed field present in the record,
// in allow-list order. Fields missing from the record are skipped.
// A nil record yields an empty slice.
func Decode(record alarm.RawStatusRecord, fields []string, prefix string) []alarm.Candidate {
	candidates := make([]alarm.Candidate, 0, len(fields))
	if len(record) == 0 {
		return candidates
	}

	for _, field := range fields {
		value, ok := record[field]
		if !ok {
			continue
		}

		candidates = append(candidates, alarm.Candidate{
			Field:     field,
			HumanName: HumanName(field, prefix),
			Active:    IsTruthy(value),
		})
	}

	return candidates
}

// Active keeps only active candidates, preserving order.
func Active(candidates []alarm.Candidate) []alarm.Candidate {
	result := make([]alarm.Candidate, 0, len(candidates))

	for _, c := range candidates {
		if c.Active {
			result = append(result, c)
		}
	}

	return result
}

// HumanName strips the known prefix and replaces separators with spaces.
func HumanName(field, prefix string) string {
	name := field
	if prefix != "" {
		name = strings.TrimPrefix(name, prefix)
	}

	name = strings.TrimSpace(separatorReplacer.Replace(name))
	if name == "" {
		return field
	}

	return strings.Join(strings.Fields(name), " ")
}

// IsTruthy reports whether v equals 1, true, "1" or "true".
// Numbers compare by value, so 1, 1.0 and json.Number("1") are all active.
//
//nolint:cyclop // A flat type switch reads better than a lookup table here.
func IsTruthy(v any) bool {
	switch value := v.(type) {
	case nil:
		return false
	case bool:
		return value
	case string:
		return value == "1" || value == "true"
	case json.Number:
		f, err := value.Float64()

		return err == nil && f == 1
	case float64:
		return value == 1
	case float32:
		return value == 1
	case int:
		return value == 1
	case int8:
		return value == 1
	case int16:
		return value == 1
	case int32:
		return value == 1
	case int64:
		return value == 1
	case uint:
		return value == 1
	case uint8:
		return value == 1
	case uint16:
		return value == 1
	case uint32:
		return value == 1
	case uint64:
		return value == 1
	default:
		return false
	}
}
