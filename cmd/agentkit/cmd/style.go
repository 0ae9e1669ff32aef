package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Color palette.
var (
	colorPrimary = lipgloss.Color("#7C3AED") // Purple
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorDanger  = lipgloss.Color("#EF4444") // Red
	colorMuted   = lipgloss.Color("#6B7280") // Gray
	colorWarning = lipgloss.Color("#F59E0B") // Amber
)

// Styles for command output. Colors are dropped automatically when the
// output is not a terminal, so scripts see plain text.
var (
	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorDanger)

	hintStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	labelStyle = lipgloss.NewStyle().
			Bold(true)
)

// field renders an aligned "label value" line.
func field(label, value string) string {
	return "  " + labelStyle.Render(fmt.Sprintf("%-15s", label)) + " " + value
}
