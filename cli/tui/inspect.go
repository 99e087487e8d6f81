package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/stitcher/types"
)

// InspectModel is a Bubble Tea model for inspect views.
type InspectModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "inspect_design":
		content = m.renderInspectDesign()
	case "inspect_report":
		content = m.renderInspectReport()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectDesign() string {
	var d types.Design
	switch v := m.data.(type) {
	case types.Design:
		d = v
	case *types.Design:
		d = *v
	default:
		return "Invalid data type for inspect_design"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Design"))
	b.WriteString("\n\n")
	writeRows(&b, designRows(d))
	return BoxStyle.Render(b.String())
}

func (m InspectModel) renderInspectReport() string {
	var r types.JobReport
	switch v := m.data.(type) {
	case types.JobReport:
		r = v
	case *types.JobReport:
		r = *v
	default:
		return "Invalid data type for inspect_report"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Job Report"))
	b.WriteString("\n\n")

	status := string(r.Outcome)
	if status == "" {
		status = string(r.State)
	}
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Job ID:"), ValueStyle.Render(r.JobID))
	fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Outcome:"), StateStyle(status).Render(status))

	rows := [][]string{
		{"File", r.File},
		{"Design", r.Design.Name},
		{"Format", r.Design.Format},
		{"Stitches", progressText(r.Executed.Stitches, r.Programmed.Stitches)},
		{"Jumps", progressText(r.Executed.Jumps, r.Programmed.Jumps)},
		{"Trims", progressText(r.Executed.Trims, r.Programmed.Trims)},
		{"Thread Changes", progressText(r.Executed.ThreadChanges, r.Programmed.ThreadChanges)},
		{"Triggers", fmt.Sprintf("%d", r.Triggers)},
		{"Duration", r.Duration.Round(time.Millisecond).String()},
		{"Position", fmt.Sprintf("X%.3f Y%.3f", r.Position.X, r.Position.Y)},
	}
	if rpm := r.RPM(); rpm > 0 {
		rows = append(rows, []string{"Needle RPM", fmt.Sprintf("%.0f", rpm)})
	}
	writeRows(&b, rows)

	if r.TriggerErrors > 0 {
		fmt.Fprintf(&b, "%s %s\n", LabelStyle.Render("Trigger Errors:"),
			ErrorStyle.Render(fmt.Sprintf("%d", r.TriggerErrors)))
	}
	if r.Truncated {
		b.WriteString(WarningStyle.Render("Pattern truncated: the file ended inside a record"))
		b.WriteString("\n")
	}

	return BoxStyle.Render(b.String())
}

func designRows(d types.Design) [][]string {
	return [][]string{
		{"Name", d.Name},
		{"Format", d.Format},
		{"Stitches", fmt.Sprintf("%d", d.Stitches)},
		{"Color Changes", fmt.Sprintf("%d", d.ColorChanges)},
		{"Threads", fmt.Sprintf("%d", d.Threads)},
		{"Size", fmt.Sprintf("%.1f x %.1f mm", d.Size.X, d.Size.Y)},
	}
}

func writeRows(b *strings.Builder, rows [][]string) {
	for _, row := range rows {
		fmt.Fprintf(b, "%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1]))
	}
}

func progressText(done, total int64) string {
	if total == 0 {
		return fmt.Sprintf("%d", done)
	}
	return fmt.Sprintf("%d / %d", done, total)
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
