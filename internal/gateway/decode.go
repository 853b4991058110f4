package gateway

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
)

// RawAlarm is one alarm object as returned by a native alarm endpoint.
// Values are narrowed by the source adapter.
type RawAlarm map[string]any

// decodeStatus narrows status data into a record. Data is either an object
// or an array whose first element is the current snapshot. An empty array
// yields an empty record.
func decodeStatus(data []byte) (alarm.RawStatusRecord, error) {
	var value structpb.Value
	if err := protojson.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("%w: decode status: %w", ErrShape, err)
	}

	switch kind := value.GetKind().(type) {
	case *structpb.Value_StructValue:
		return kind.StructValue.AsMap(), nil
	case *structpb.Value_ListValue:
		items := kind.ListValue.GetValues()
		if len(items) == 0 {
			return alarm.RawStatusRecord{}, nil
		}

		first := items[0].GetStructValue()
		if first == nil {
			return nil, fmt.Errorf("%w: status snapshot is not an object", ErrShape)
		}

		return first.AsMap(), nil
	default:
		return nil, fmt.Errorf("%w: status data is neither object nor array", ErrShape)
	}
}

// decodeAlarms narrows list data into raw alarm objects.
// Elements that are not objects are rejected.
func decodeAlarms(data []byte) ([]RawAlarm, error) {
	var value structpb.Value
	if err := protojson.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("%w: decode alarms: %w", ErrShape, err)
	}

	list := value.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: alarm data is not an array", ErrShape)
	}

	result := make([]RawAlarm, 0, len(list.GetValues()))

	for i, item := range list.GetValues() {
		object := item.GetStructValue()
		if object == nil {
			return nil, fmt.Errorf("%w: alarm #%d is not an object", ErrShape, i)
		}

		result = append(result, object.AsMap())
	}

	return result, nil
}
