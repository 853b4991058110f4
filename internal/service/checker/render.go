package checker

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/engine"
)

// Dracula theme colors.
const (
	colorRed     = "#FF5555"
	colorOrange  = "#FFB86C"
	colorCyan    = "#8BE9FD"
	colorComment = "#6272A4"
	colorPurple  = "#BD93F9"
)

// severityColumn is where the severity is rendered.
const severityColumn = 0

// Render writes the feed as a table followed by a one-line cycle summary.
func Render(w io.Writer, alarms []alarm.Alarm, status engine.Status) error {
	renderer := lipgloss.NewRenderer(w)

	var b strings.Builder

	if len(alarms) == 0 {
		b.WriteString(renderer.NewStyle().Foreground(lipgloss.Color(colorComment)).Render("no active alarms"))
		b.WriteString("\n")
	} else {
		b.WriteString(feedTable(renderer, alarms).Render())
		b.WriteString("\n")
	}

	b.WriteString(summary(status))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())

	return err
}

func feedTable(renderer *lipgloss.Renderer, alarms []alarm.Alarm) *table.Table {
	rows := make([][]string, 0, len(alarms))

	for _, a := range alarms {
		ack := ""
		if a.Acknowledged {
			ack = "yes"
		}

		rows = append(rows, []string{
			string(a.Severity),
			a.Component,
			a.Message,
			a.Timestamp.Local().Format(time.DateTime),
			ack,
		})
	}

	header := renderer.NewStyle().Bold(true).Padding(0, 1)
	cell := renderer.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(renderer.NewStyle().Foreground(lipgloss.Color(colorPurple))).
		Headers("SEVERITY", "COMPONENT", "MESSAGE", "SINCE", "ACK").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case col == severityColumn && row >= 0 && row < len(alarms):
				return cell.Foreground(severityColor(alarms[row].Severity))
			default:
				return cell
			}
		})
}

func severityColor(s alarm.Severity) lipgloss.Color {
	switch s {
	case alarm.SeverityCritical:
		return lipgloss.Color(colorRed)
	case alarm.SeverityWarning:
		return lipgloss.Color(colorOrange)
	default:
		return lipgloss.Color(colorCyan)
	}
}

func summary(status engine.Status) string {
	line := fmt.Sprintf("cycle %s (%s) active=%d", status.CycleID, status.Trigger, status.ActiveCount)

	if status.SyncError != "" {
		line += " sync_error=" + status.SyncError
	}

	if status.Error != "" {
		line += " error=" + status.Error
	}

	return line
}
