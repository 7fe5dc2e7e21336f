package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/tui/colors"
)

var (
	ColorNeonPink  = colors.NeonPink
	ColorNeonCyan  = colors.NeonCyan
	ColorGray      = colors.Gray
	ColorLightGray = colors.LightGray
	ColorWhite     = colors.White
)

// === Layout Styles ===
var (
	// Standard pane border
	PaneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 1)

	GraphStyle = PaneStyle.
			BorderForeground(ColorNeonCyan)

	// === Text Styles ===

	PaneTitleStyle = lipgloss.NewStyle().
			Foreground(ColorNeonCyan).
			Bold(true)

	StatsLabelStyle = lipgloss.NewStyle().
			Foreground(ColorNeonCyan).
			Width(12)

	StatsValueStyle = lipgloss.NewStyle().
			Foreground(ColorNeonPink).
			Bold(true)

	HeaderRowStyle = lipgloss.NewStyle().
			Foreground(ColorLightGray).
			Bold(true)

	RowStyle = lipgloss.NewStyle().
			Foreground(ColorWhite)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorLightGray)

	NoticeStyle = lipgloss.NewStyle().
			Foreground(colors.StatePaused)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colors.StateError)
)

// stateStyle colors the batch state label.
func stateStyle(state types.BatchState) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch state {
	case types.StateRunning:
		return s.Foreground(colors.StateRunning)
	case types.StatePaused:
		return s.Foreground(colors.StatePaused)
	case types.StateStopped:
		return s.Foreground(colors.StateError)
	}
	return s.Foreground(colors.StateDone)
}
