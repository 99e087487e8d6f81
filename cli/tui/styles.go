// Package tui provides Bubble Tea TUI components for the stitcher CLI.
//
// TUI rules:
//   - TUI is opt-in only (--tui flag)
//   - inspect views are read-only and use the same payloads as non-TUI rendering
//   - the live job view only offers cancel
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for TUI components.
var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// SuccessStyle for success states.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarningStyle for warning states.
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// ErrorStyle for error states.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// BoxStyle for bordered containers.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)

	// BarFillStyle and BarEmptyStyle draw the stitch progress bar.
	BarFillStyle = lipgloss.NewStyle().
			Foreground(highlightColor)
	BarEmptyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// SpinnerStyle colors the live view spinner.
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(primaryColor)
)

// StateStyle returns a style based on the state string.
func StateStyle(state string) lipgloss.Style {
	switch state {
	case "completed", "idle":
		return SuccessStyle
	case "streaming", "paused":
		return WarningStyle
	case "canceled", "failed":
		return ErrorStyle
	default:
		return ValueStyle
	}
}
