package source

import (
	"context"
	"fmt"

	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/decoder"
	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
)

// FieldAdapter derives alarms from the fault fields of a status record.
type FieldAdapter struct {
	*base

	// client reads the status record.
	client Gateway
}

// NewFieldAdapter creates a field adapter.
func NewFieldAdapter(cfg config.SourceConfig, client Gateway, opts ...Option) *FieldAdapter {
	return &FieldAdapter{
		base:   newBase(cfg, opts),
		client: client,
	}
}

// FetchActiveAlarms returns one alarm per truthy allow-listed field,
// in allow-list order.
func (a *FieldAdapter) FetchActiveAlarms(ctx context.Context) []alarm.Alarm {
	record, err := a.client.FetchStatus(ctx, a.cfg.BaseURL, a.cfg.StatusPath)
	if err != nil {
		return a.fail(ctx, err)
	}

	a.succeed()

	candidates := decoder.Active(decoder.Decode(record, a.cfg.Fields, a.cfg.FieldPrefix))
	detected := a.now()
	result := make([]alarm.Alarm, 0, len(candidates))

	for _, c := range candidates {
		result = append(result, alarm.Alarm{
			ID:         a.alarmID(c.Field),
			SourceID:   a.cfg.ID,
			DeviceID:   a.cfg.DeviceID,
			DeviceName: a.cfg.Name,
			Component:  a.cfg.Component,
			Field:      c.Field,
			Message:    fmt.Sprintf("%s: %s", a.cfg.Name, c.HumanName),
			Severity:   a.cfg.SeverityFor(c.Field),
			Timestamp:  detected,
		})
	}

	return result
}
