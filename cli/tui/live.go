package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/stitcher/types"
)

const barWidth = 40

// ProgressMsg carries a job snapshot to the live view.
type ProgressMsg types.JobReport

// DoneMsg ends the live view with the final outcome.
type DoneMsg struct {
	Outcome string
	Message string
}

// LiveModel is a Bubble Tea model following a running job.
type LiveModel struct {
	meta      types.JobMeta
	design    types.Design
	report    types.JobReport
	spinner   spinner.Model
	cancel    func()
	canceling bool
	done      *DoneMsg
}

// NewLiveModel creates a live model. cancel is called once when the
// operator quits before the job has ended.
func NewLiveModel(meta types.JobMeta, design types.Design, cancel func()) LiveModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle
	return LiveModel{
		meta:    meta,
		design:  design,
		spinner: s,
		cancel:  cancel,
	}
}

// Init implements tea.Model.
func (m LiveModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			if m.done != nil {
				return m, tea.Quit
			}
			if !m.canceling && m.cancel != nil {
				m.canceling = true
				m.cancel()
			}
		}
		return m, nil

	case ProgressMsg:
		m.report = types.JobReport(msg)
		return m, nil

	case DoneMsg:
		m.done = &msg
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m LiveModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Stitching " + m.meta.File))
	b.WriteString("\n")

	state := string(m.report.State)
	switch {
	case m.done != nil:
		fmt.Fprintf(&b, "%s %s\n", StateStyle(m.done.Outcome).Render(m.done.Outcome), m.done.Message)
	case m.canceling:
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), WarningStyle.Render("canceling..."))
	default:
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), StateStyle(state).Render(state))
	}

	total := int64(m.design.Stitches)
	if total == 0 {
		total = m.report.Programmed.Stitches
	}
	b.WriteString(Bar(m.report.Executed.Stitches, total, barWidth))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Stitches", progressText(m.report.Executed.Stitches, total)},
		{"Thread Changes", fmt.Sprintf("%d", m.report.Executed.ThreadChanges)},
		{"Trims", fmt.Sprintf("%d", m.report.Executed.Trims)},
		{"Needle RPM", fmt.Sprintf("%.0f", m.report.RPM())},
		{"Trigger Errors", fmt.Sprintf("%d", m.report.TriggerErrors)},
		{"Elapsed", m.report.Duration.Round(100 * time.Millisecond).String()},
	}
	writeRows(&b, rows)

	help := "Press q or Ctrl+C to cancel the job"
	if m.done != nil {
		help = "Press q to quit"
	}
	return BoxStyle.Render(b.String()) + "\n" + HelpStyle.Render(help)
}

// Bar renders a fixed-width progress bar for done out of total.
func Bar(done, total int64, width int) string {
	filled := 0
	if total > 0 {
		filled = int(min(done, total) * int64(width) / total)
	}
	pct := 0.0
	if total > 0 {
		pct = float64(min(done, total)) * 100 / float64(total)
	}
	return BarFillStyle.Render(strings.Repeat("█", filled)) +
		BarEmptyStyle.Render(strings.Repeat("░", width-filled)) +
		fmt.Sprintf(" %5.1f%%", pct)
}

// LiveView runs a LiveModel on its own goroutine.
type LiveView struct {
	program *tea.Program
	done    chan error
}

// NewLiveView creates a live view for a job. Call Start, feed snapshots
// with Progress, and end with Finish.
func NewLiveView(meta types.JobMeta, design types.Design, cancel func(), opts ...tea.ProgramOption) *LiveView {
	return &LiveView{
		program: tea.NewProgram(NewLiveModel(meta, design, cancel), opts...),
		done:    make(chan error, 1),
	}
}

// Start runs the program in the background.
func (v *LiveView) Start() {
	go func() {
		_, err := v.program.Run()
		v.done <- err
	}()
}

// Progress sends a snapshot to the view.
func (v *LiveView) Progress(r types.JobReport) {
	v.program.Send(ProgressMsg(r))
}

// Finish shows the outcome and waits for the program to exit.
func (v *LiveView) Finish(outcome, message string) error {
	v.program.Send(DoneMsg{Outcome: outcome, Message: message})
	return <-v.done
}
