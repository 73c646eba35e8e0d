package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorCyan  = lipgloss.Color("#00FFFF")
	colorGray  = lipgloss.Color("#666666")
	colorRed   = lipgloss.Color("#FF0000")
	colorGreen = lipgloss.Color("#00FF00")
	colorWhite = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	panelTitleActiveStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorCyan)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	panelActiveStyle = panelStyle.
				BorderForeground(colorCyan)

	selectedStyle = lipgloss.NewStyle().
			Reverse(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	enabledStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)
)
