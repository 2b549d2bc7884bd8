package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	priorityStyle = map[string]lipgloss.Style{
		"blocking": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		"high":     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		"standard": lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		"none":     subtleStyle,
	}
	boxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func priorityBadge(p string) string {
	st, ok := priorityStyle[p]
	if !ok {
		st = subtleStyle
	}
	return st.Render("[" + p + "]")
}
