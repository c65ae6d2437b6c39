package report

import "github.com/charmbracelet/lipgloss"

var (
	colorPass    = lipgloss.Color("#22C55E")
	colorWarn    = lipgloss.Color("#EAB308")
	colorFail    = lipgloss.Color("#EF4444")
	colorUnknown = lipgloss.Color("#6B7280")
	colorDim     = lipgloss.Color("#9CA3AF")
	colorWhite   = lipgloss.Color("#F9FAFB")
)

var (
	sectionNameStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorWhite).
				MarginTop(1)

	sectionCountStyle = lipgloss.NewStyle().
				Foreground(colorDim)

	summaryBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1).
			MarginBottom(1)

	passStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorPass)
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorWarn)
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorFail)
	unknownStyle = lipgloss.NewStyle().Foreground(colorUnknown)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)
)
