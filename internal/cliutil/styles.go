package cliutil

import "github.com/charmbracelet/lipgloss"

// Color palette, trimmed to the statuses a maintenance/ingest CLI reports.
const (
	colorLime = "154"
	colorGray = "245"
	colorRed  = "196"
	colorYellow = "220"
)

// Styles holds the text styles used by Writer.
type Styles struct {
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Label   lipgloss.Style
}

func coloredStyles() Styles {
	return Styles{
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color(colorLime)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(colorYellow)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray)),
	}
}

func plainStyles() Styles {
	return Styles{
		Success: lipgloss.NewStyle(),
		Warning: lipgloss.NewStyle(),
		Error:   lipgloss.NewStyle(),
		Label:   lipgloss.NewStyle(),
	}
}

func stylesFor(mode Mode) Styles {
	if mode == ModeColor {
		return coloredStyles()
	}
	return plainStyles()
}
