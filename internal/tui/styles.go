package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#7C3AED")
	ownColor     = lipgloss.Color("#10B981")
	bgColor      = lipgloss.Color("#1F2937")
	mutedColor   = lipgloss.Color("#9CA3AF")
	errorColor   = lipgloss.Color("#EF4444")
	activeBorder = lipgloss.Color("#F59E0B")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)

	systemStyle = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)

	errorStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)

	successStyle = lipgloss.NewStyle().Foreground(ownColor)

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	selectedItemStyle = lipgloss.NewStyle().
				Foreground(ownColor).
				Bold(true).
				PaddingLeft(1).
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(ownColor)

	itemStyle = lipgloss.NewStyle().PaddingLeft(2)

	activeTabStyle = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(primaryColor)

	threadStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder())

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(mutedColor).
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(mutedColor).
			Padding(0, 1)

	ownNameStyle   = lipgloss.NewStyle().Foreground(ownColor).Bold(true)
	otherNameStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(activeBorder).
			Background(bgColor).
			Padding(1, 2)
)
