package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/peoplepulse/pulse/internal/timesheet"
)

const (
	labelWidth = 22
	cellWidth  = 8
)

var dayNames = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func truncateLabel(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

func (a *App) gridView() string {
	week := a.session.Week()
	snap := a.session.Snapshot()
	var b strings.Builder

	b.WriteString(titleStyle.Render("PeoplePulse timesheet"))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(a.weekLabel(week)))
	b.WriteString("\n\n")

	// Header
	b.WriteString(pad("", labelWidth))
	for i := range week.Days {
		head := fmt.Sprintf("%s %02d", dayNames[i], week.Days[i].Day())
		if _, ok := a.holidays[week.Key(i)]; ok {
			head = holidayStyle.Render(head + "*")
		} else if i >= 5 {
			head = dimStyle.Render(head)
		}
		b.WriteString(pad(head, cellWidth))
	}
	b.WriteString(pad("Total", cellWidth))
	b.WriteString("\n")

	for _, field := range []int{rowStart, rowEnd} {
		label := "Start"
		if field == rowEnd {
			label = "End"
		}
		b.WriteString(pad(dimStyle.Render(label), labelWidth))
		for i := range week.Days {
			r := snap.Ranges[week.Key(i)]
			v := r.Start
			if field == rowEnd {
				v = r.End
			}
			b.WriteString(a.cell(field, i, v))
		}
		b.WriteString("\n")
	}

	if len(snap.Projects) == 0 {
		b.WriteString(dimStyle.Render("  No projects yet. Press a to add one."))
		b.WriteString("\n")
	}
	for pi, p := range snap.Projects {
		row := firstProjectRow + pi
		b.WriteString(pad(truncateLabel(p.Name, labelWidth-2), labelWidth))
		for i := range week.Days {
			v := ""
			if h, ok := snap.Hours(p.ID, week.Key(i)); ok {
				v = formatHours(h)
			}
			b.WriteString(a.cell(row, i, v))
		}
		b.WriteString(pad(formatHours(snap.ProjectTotal(p.ID, week)), cellWidth))
		b.WriteString("\n")
	}

	// Day totals
	overtime := make(map[string]bool)
	for _, d := range snap.OvertimeDays(week, a.opts.DailyLimit) {
		overtime[d] = true
	}
	b.WriteString(pad(highlightStyle.Render("Total"), labelWidth))
	for i := range week.Days {
		key := week.Key(i)
		v := formatHours(snap.DayTotal(key))
		if overtime[key] {
			v = overtimeStyle.Render(v + "!")
		}
		b.WriteString(pad(v, cellWidth))
	}
	worked := snap.WorkedHours(week)
	b.WriteString(pad(highlightStyle.Render(formatHours(worked)), cellWidth))
	b.WriteString(dimStyle.Render(fmt.Sprintf(" / %d", timesheet.WeeklyTargetHours)))
	b.WriteString("\n")

	if name, ok := a.holidays[week.Key(a.col)]; ok {
		b.WriteString(holidayStyle.Render(fmt.Sprintf("\n%s: %s", week.Key(a.col), name)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case a.busy != "":
		b.WriteString(a.spinner.View() + " " + a.busy + "...")
	case a.state == editView:
		b.WriteString(a.input.View())
	case a.errMsg != "":
		b.WriteString(errorStyle.Render("Error: ") + a.errMsg)
	case a.status != "":
		b.WriteString(successStyle.Render(a.status))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(a.help()))

	return b.String()
}

func (a *App) cell(row, col int, v string) string {
	if row == a.row && col == a.col {
		if v == "" {
			v = "·"
		}
		return pad(cursorStyle.Render(pad(v, cellWidth-2)), cellWidth)
	}
	if v == "" {
		v = dimStyle.Render("·")
	}
	return pad(v, cellWidth)
}

func (a *App) weekLabel(week timesheet.Week) string {
	label := fmt.Sprintf("Week of %s – %s", week.Key(0), week.Key(6))
	switch {
	case week.Offset == 0:
		label += " (this week)"
	case week.Offset == -1:
		label += " (last week)"
	default:
		label += fmt.Sprintf(" (%d weeks ago)", -week.Offset)
	}

	phase := a.session.Phase()
	switch {
	case phase == timesheet.PhaseSubmitted:
		label += " • submitted"
	case !week.Editable():
		label += " • read-only"
	case a.session.Dirty():
		label += " • unsaved changes"
	case phase == timesheet.PhaseDraftSaved:
		label += " • draft saved"
	case a.session.Persisted() != nil:
		label += " • draft"
	}
	return label
}

func (a *App) help() string {
	if a.state == editView {
		return "Enter: apply • Esc: cancel • empty value clears the cell"
	}
	parts := []string{"←↑↓→: move", "Enter: edit"}
	if a.session.Editable() {
		parts = append(parts, "a: add project", "f: auto-fill", "w: save draft")
		if a.session.CanSubmit() {
			parts = append(parts, "S: submit")
		}
	}
	parts = append(parts, "[ ]: week", "t: this week", "q: quit")
	return strings.Join(parts, " • ")
}
