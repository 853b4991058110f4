package alarms

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
)

// TestBuildHistoryXLSX_CellError fails instead of returning a partial workbook.
func TestBuildHistoryXLSX_CellError(t *testing.T) {
	t.Parallel()

	history := []alarm.Alarm{
		{ID: "tr1:E1", Message: "Fallo"},
		{ID: "tr1:E2", Message: strings.Repeat("x", excelize.TotalCellChars+1)},
	}

	data, err := BuildHistoryXLSX("tr1", history)
	require.ErrorIs(t, err, excelize.ErrCellCharsLength)
	require.Nil(t, data)
}

// TestBuildHistoryXLSX_Layout checks the title, header and first data row.
func TestBuildHistoryXLSX_Layout(t *testing.T) {
	t.Parallel()

	data, err := BuildHistoryXLSX("tr1", []alarm.Alarm{{ID: "tr1:E1", Severity: alarm.SeverityWarning}})
	require.NoError(t, err)

	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)

	defer func() {
		_ = workbook.Close()
	}()

	rows, err := workbook.GetRows(historySheet)
	require.NoError(t, err)
	require.Equal(t, []string{"Alarm history", "tr1"}, rows[0])
	require.Equal(t, historyHeader, rows[2])
	require.Equal(t, "tr1:E1", rows[3][0])
	require.Equal(t, "warning", rows[3][3])
}
