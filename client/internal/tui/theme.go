// Package tui provides shared theme and styles for the tapremote TUI.
package tui

import "github.com/charmbracelet/lipgloss"

// Colors.
var (
	ColorPrimary   = lipgloss.Color("#0EA5E9") // sky
	ColorSecondary = lipgloss.Color("#6366F1") // indigo
	ColorAccent    = lipgloss.Color("#F59E0B") // amber

	ColorSuccess = lipgloss.Color("#10B981") // emerald
	ColorWarning = lipgloss.Color("#F59E0B") // amber
	ColorError   = lipgloss.Color("#EF4444") // red
	ColorMuted   = lipgloss.Color("#6B7280") // gray-500
	ColorText    = lipgloss.Color("#E5E7EB") // gray-200
	ColorSubtle  = lipgloss.Color("#9CA3AF") // gray-400
)

// Shared styles used across the dashboard.
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	Description = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	Selected = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	Dimmed = lipgloss.NewStyle().
		Foreground(ColorMuted)

	Success = lipgloss.NewStyle().
		Foreground(ColorSuccess)

	// ErrorStyle avoids colliding with the builtin error.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// Help for keybind hints at the bottom.
	Help = lipgloss.NewStyle().
		Foreground(ColorMuted)

	ActiveDot = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Render("●")

	InactiveDot = lipgloss.NewStyle().
			Foreground(ColorError).
			Render("●")

	WarnDot = lipgloss.NewStyle().
		Foreground(ColorWarning).
		Render("●")
)

// StatusDot returns a colored dot for a transport status as reported by
// transport.Status.String.
func StatusDot(status string) string {
	switch status {
	case "connected":
		return ActiveDot
	case "connecting":
		return WarnDot
	default:
		return InactiveDot
	}
}

// StatusText returns a colored status label.
func StatusText(status string) string {
	switch status {
	case "connected":
		return Success.Render(status)
	case "connecting":
		return WarningStyle.Render(status)
	default:
		return ErrorStyle.Render(status)
	}
}

// LogLevelStyle returns a style for the given log level.
func LogLevelStyle(level string) lipgloss.Style {
	switch level {
	case "DEBUG":
		return lipgloss.NewStyle().Foreground(ColorMuted)
	case "INFO":
		return lipgloss.NewStyle().Foreground(ColorSuccess)
	case "WARN":
		return lipgloss.NewStyle().Foreground(ColorWarning)
	case "ERROR":
		return lipgloss.NewStyle().Foreground(ColorError)
	default:
		return lipgloss.NewStyle().Foreground(ColorText)
	}
}
