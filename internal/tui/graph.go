package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// speedHistoryLen is the number of snapshots kept for the speed graph.
const speedHistoryLen = 60

var graphGradient = []lipgloss.TerminalColor{
	lipgloss.AdaptiveColor{Light: "#ce93d8", Dark: "#5f005f"}, // Bottom
	lipgloss.AdaptiveColor{Light: "#ab47bc", Dark: "#8700af"},
	lipgloss.AdaptiveColor{Light: "#8e24aa", Dark: "#af00d7"},
	lipgloss.AdaptiveColor{Light: "#4a148c", Dark: "#ff00ff"}, // Top
}

// Partial fills, from empty to full
var blocks = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// renderSpeedGraph draws data as a bar graph of the given size, scaled so
// that maxVal fills the full height. The data is stretched across the width.
func renderSpeedGraph(data []float64, width, height int, maxVal float64) string {
	if width < 1 || height < 1 {
		return ""
	}

	gridStyle := lipgloss.NewStyle().Foreground(ColorGray)
	rows := make([][]string, height)
	for i := range rows {
		rows[i] = make([]string, width)
		for j := range rows[i] {
			if i == height-1 {
				rows[i][j] = gridStyle.Render("─")
			} else {
				rows[i][j] = " "
			}
		}
	}

	// Pre-render every block character once per row
	rowChars := make([][]string, height)
	for y := 0; y < height; y++ {
		colorIdx := (y * len(graphGradient)) / height
		style := lipgloss.NewStyle().Foreground(graphGradient[colorIdx])
		rowChars[y] = make([]string, len(blocks))
		for k, b := range blocks {
			rowChars[y][k] = style.Render(b)
		}
	}

	if len(data) > 0 && maxVal > 0 {
		colsPerPoint := float64(width) / float64(len(data))
		for i, val := range data {
			pct := val / maxVal
			if pct < 0 {
				pct = 0
			}
			if pct > 1 {
				pct = 1
			}
			subBlocks := pct * float64(height) * 8

			startCol := int(float64(i) * colsPerPoint)
			endCol := int(float64(i+1) * colsPerPoint)
			if endCol > width {
				endCol = width
			}

			for col := startCol; col < endCol; col++ {
				for y := 0; y < height; y++ {
					fill := subBlocks - float64(y*8)
					if fill <= 0 {
						continue
					}
					idx := 8
					if fill < 8 {
						idx = int(fill)
					}
					if idx > 0 {
						rows[height-1-y][col] = rowChars[y][idx]
					}
				}
			}
		}
	}

	var b strings.Builder
	for i, row := range rows {
		b.WriteString(strings.Join(row, ""))
		if i < height-1 {
			b.WriteRune('\n')
		}
	}
	return b.String()
}

// pushSpeed appends v to history, keeping at most speedHistoryLen points.
func pushSpeed(history []float64, v float64) []float64 {
	history = append(history, v)
	if len(history) > speedHistoryLen {
		history = history[len(history)-speedHistoryLen:]
	}
	return history
}
