package status

import "github.com/charmbracelet/lipgloss"

var (
	colorPass    = lipgloss.Color("#22C55E")
	colorFail    = lipgloss.Color("#EF4444")
	colorPrimary = lipgloss.Color("#4A9EFF")
	colorDim     = lipgloss.Color("#9CA3AF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorDim)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(colorDim)

	passStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPass)
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(colorFail)
	dimStyle  = lipgloss.NewStyle().Foreground(colorDim)
)
