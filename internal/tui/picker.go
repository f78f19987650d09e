package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/peoplepulse/pulse/internal/timesheet"
)

const pickerVisible = 10

// projectPickerModel selects one project from the assignable list.
type projectPickerModel struct {
	projects []timesheet.ProjectRef
	filtered []int // indices into projects
	cursor   int
	filter   textinput.Model
	chosen   *timesheet.ProjectRef
	canceled bool
}

func newProjectPicker(projects []timesheet.ProjectRef) projectPickerModel {
	ti := textinput.New()
	ti.Placeholder = "Filter projects..."
	ti.CharLimit = 100
	ti.Width = 40
	ti.Focus()

	filtered := make([]int, len(projects))
	for i := range projects {
		filtered[i] = i
	}

	return projectPickerModel{
		projects: projects,
		filtered: filtered,
		filter:   ti,
	}
}

func (m projectPickerModel) Update(msg tea.Msg) (projectPickerModel, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "esc":
			m.canceled = true
			return m, nil
		case "enter":
			// Nothing selected keeps the picker open, like a disabled add button.
			if len(m.filtered) > 0 {
				p := m.projects[m.filtered[m.cursor]]
				m.chosen = &p
			}
			return m, nil
		case "up", "ctrl+k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case "down", "ctrl+j":
			if m.cursor < len(m.filtered)-1 {
				m.cursor++
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	prevFilter := m.filter.Value()
	m.filter, cmd = m.filter.Update(msg)

	if m.filter.Value() != prevFilter {
		m.applyFilter()
	}

	return m, cmd
}

func (m *projectPickerModel) applyFilter() {
	query := strings.ToLower(m.filter.Value())
	m.filtered = m.filtered[:0]
	for i, p := range m.projects {
		if query == "" ||
			strings.Contains(strings.ToLower(p.Name), query) ||
			strings.Contains(p.ID, query) {
			m.filtered = append(m.filtered, i)
		}
	}
	if m.cursor >= len(m.filtered) {
		m.cursor = max(0, len(m.filtered)-1)
	}
}

func (m projectPickerModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Add project"))
	b.WriteString("\n")
	b.WriteString(m.filter.View())
	b.WriteString("\n\n")

	if len(m.filtered) == 0 {
		if len(m.projects) == 0 {
			b.WriteString(dimStyle.Render("  All assigned projects are already on this week"))
		} else {
			b.WriteString(dimStyle.Render("  No projects match filter"))
		}
		b.WriteString("\n")
	} else {
		start := 0
		if m.cursor >= pickerVisible {
			start = m.cursor - pickerVisible + 1
		}
		end := min(start+pickerVisible, len(m.filtered))

		for vi := start; vi < end; vi++ {
			p := m.projects[m.filtered[vi]]
			line := fmt.Sprintf("  %s %s", p.Name, dimStyle.Render("#"+p.ID))
			if vi == m.cursor {
				line = highlightStyle.Render("> "+p.Name) + " " + dimStyle.Render("#"+p.ID)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString(helpStyle.Render("Enter: add • ↑/↓: move • Esc: cancel"))
	return boxStyle.Render(b.String())
}
