package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorFgPrimary = lipgloss.Color("#ABB2BF")
	colorFgMuted   = lipgloss.Color("#636B78")
	colorBorder    = lipgloss.Color("#3E4451")
	colorRed       = lipgloss.Color("#E06C75")
	colorGreen     = lipgloss.Color("#98C379")
	colorYellow    = lipgloss.Color("#E5C07B")
	colorBlue      = lipgloss.Color("#61AFEF")
	colorCyan      = lipgloss.Color("#56B6C2")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	stageStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	approvalStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	completedStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorFgMuted)

	diagnosticStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	planStyle = lipgloss.NewStyle().
			Foreground(colorFgPrimary).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	inputPromptStyle = lipgloss.NewStyle().
				Foreground(colorBlue).
				Bold(true)
)
