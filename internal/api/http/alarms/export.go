package alarms

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	historySheet    = "history"
	headerRow       = 3
)

var historyHeader = []string{"ID", "Device", "Component", "Severity", "Message", "Timestamp"}

// BuildHistoryXLSX renders alarm history as a single-sheet workbook.
func BuildHistoryXLSX(sourceID string, history []alarm.Alarm) ([]byte, error) {
	f := excelize.NewFile()

	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := writeHistoryCells(f, sourceID, history); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}

	return buf.Bytes(), nil
}

// writeHistoryCells fills the title, the header row and one row per alarm.
// It stops at the first cell that cannot be written.
func writeHistoryCells(f *excelize.File, sourceID string, history []alarm.Alarm) error {
	set := func(col, row int, value any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return fmt.Errorf("cell %d:%d: %w", col, row, err)
		}

		if err = f.SetCellValue(historySheet, cell, value); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}

		return nil
	}

	if err := set(1, 1, "Alarm history"); err != nil {
		return err
	}

	if err := set(2, 1, sourceID); err != nil {
		return err
	}

	for i, title := range historyHeader {
		if err := set(i+1, headerRow, title); err != nil {
			return err
		}
	}

	for i, a := range history {
		values := []any{
			a.ID,
			a.DeviceName,
			a.Component,
			string(a.Severity),
			a.Message,
			a.Timestamp.Format(time.RFC3339),
		}

		for col, value := range values {
			if err := set(col+1, headerRow+1+i, value); err != nil {
				return err
			}
		}
	}

	return nil
}
