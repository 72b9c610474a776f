package tapview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/motoki-oss/docdb/highlight"
	"github.com/motoki-oss/docdb/taplog"
)

const (
	colMarker   = 2
	colOp       = 9
	colDuration = 10
	colStatus   = 5
)

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return ""
	}
	if m.err != nil {
		return lipgloss.NewStyle().Width(m.width).Render("Error: " + m.err.Error())
	}
	if len(m.events) == 0 {
		return "Waiting for events..."
	}

	switch m.view {
	case viewInspect:
		return m.renderInspector()
	default:
		return m.renderList()
	}
}

func eventStatus(ev taplog.Event) string {
	if ev.Err != "" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render("ERR")
	}
	if ev.NPlus1 {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Render("N+1")
	}
	return ""
}

func (m Model) renderList() string {
	innerWidth := max(m.width-4, 20)
	colNS := max(innerWidth-colMarker-colOp-colDuration-colStatus-4, 10)

	title := fmt.Sprintf(" docdb-view (%d events) ", len(m.events))

	header := fmt.Sprintf("  %-*s %-*s %*s %-*s",
		colOp, "Op",
		colNS, "Namespace",
		colDuration, "Duration",
		colStatus, "",
	)

	maxRows := max(m.height-8, 3)
	start := 0
	if len(m.events) > maxRows {
		start = max(m.cursor-maxRows/2, 0)
		if start+maxRows > len(m.events) {
			start = len(m.events) - maxRows
		}
	}
	end := min(start+maxRows, len(m.events))

	var rows []string
	rows = append(rows, lipgloss.NewStyle().Bold(true).Render(header))
	for i := start; i < end; i++ {
		rows = append(rows, m.renderRow(i, colNS))
	}

	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(innerWidth).
		BorderForeground(lipgloss.Color("240"))

	box := border.Render(strings.Join(rows, "\n"))
	lines := strings.Split(box, "\n")
	if len(lines) > 0 {
		borderFg := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
		titleStyle := lipgloss.NewStyle().Bold(true)
		dashes := max(innerWidth-len([]rune(title)), 0)
		lines[0] = borderFg.Render("╭") + titleStyle.Render(title) + borderFg.Render(strings.Repeat("─", dashes)+"╮")
		box = strings.Join(lines, "\n")
	}

	footer := "q: quit  j/k: navigate  enter: inspect  y: copy rendered doc"
	return strings.Join([]string{box, footer}, "\n")
}

func (m Model) renderRow(i int, colNS int) string {
	ev := m.events[i]
	marker := "  "
	if i == m.cursor {
		marker = "▶ "
	}

	row := fmt.Sprintf("%s%-*s %-*s %*s %s",
		marker,
		colOp, ev.Op.String(),
		colNS, truncate(ev.Namespace, colNS),
		colDuration, formatDuration(ev.Duration),
		eventStatus(ev),
	)
	if i == m.cursor {
		row = lipgloss.NewStyle().Bold(true).Render(row)
	}
	return row
}

func (m Model) renderInspector() string {
	innerWidth := max(m.width-4, 20)
	ev := m.events[m.cursor]

	var lines []string
	lines = append(lines, "Session:  "+ev.SessionID)
	lines = append(lines, "Op:       "+ev.Op.String())
	lines = append(lines, "Namespace:"+" "+ev.Namespace)
	lines = append(lines, "Duration: "+formatDuration(ev.Duration))
	if ev.Err != "" {
		lines = append(lines, "Error:    "+ev.Err)
	}
	if ev.NPlus1 {
		lines = append(lines, "Flagged:  repeated query shape (possible N+1)")
	}
	lines = append(lines, "")
	lines = append(lines, strings.Split(highlight.Document(ev.Rendered), "\n")...)

	visible := lines
	if m.inspectScroll > 0 && m.inspectScroll < len(lines) {
		visible = lines[m.inspectScroll:]
	}

	content := strings.Join(visible, "\n")
	border := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(innerWidth).
		BorderForeground(lipgloss.Color("240"))

	footer := "q/esc: back  j/k: scroll  y: copy rendered doc"
	return strings.Join([]string{border.Render(content), footer}, "\n")
}
