package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/tui/colors"
	"github.com/surge-downloader/batchget/internal/utils"
)

const (
	logo        = "batchget"
	graphHeight = 4
	minWidth    = 40
)

// View renders the batch dashboard
func (m Model) View() string {
	width := m.width
	if width < minWidth {
		width = minWidth
	}

	sections := []string{m.renderHeader(), m.renderProgress(width)}

	// The graph is dropped first on short terminals
	if m.height >= 16+graphHeight {
		sections = append(sections, m.renderGraph(width))
	}

	sections = append(sections, m.renderItems(width))

	if m.done {
		sections = append(sections, m.renderEnd())
	} else if m.notice != "" {
		sections = append(sections, NoticeStyle.Render(m.notice))
	}
	sections = append(sections, m.help.View(m.keys))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := ApplyGradient(logo, colors.LogoStart, colors.LogoEnd)
	state := stateStyle(m.state).Render(strings.ToUpper(string(m.state)))

	batchID := "-"
	if m.last != nil && m.last.BatchID != "" {
		batchID = shortID(m.last.BatchID)
	}
	return fmt.Sprintf("%s  %s  %s", title, state, DimStyle.Render("batch "+batchID))
}

func (m Model) renderProgress(width int) string {
	completed, total := 0, 0
	if m.last != nil {
		completed, total = m.last.Completed, m.last.Total
	}

	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total)
	}

	counts := fmt.Sprintf(" %d/%d complete", completed, total)
	bar := m.progress
	bar.Width = width - lipgloss.Width(counts)
	if bar.Width < 10 {
		bar.Width = 10
	}
	return bar.ViewAs(pct) + StatsValueStyle.Render(counts)
}

func (m Model) renderGraph(width int) string {
	var current int64
	if n := len(m.speedHistory); n > 0 {
		current = int64(m.speedHistory[n-1])
	}

	stats := StatsLabelStyle.Render("Speed") + StatsValueStyle.Render(utils.FormatSpeed(current)) +
		"  " + StatsLabelStyle.Render("Top") + StatsValueStyle.Render(utils.FormatSpeed(m.topSpeed))

	inner := width - GraphStyle.GetHorizontalFrameSize()
	graph := renderSpeedGraph(m.speedHistory, inner, graphHeight, float64(m.topSpeed))
	return GraphStyle.Render(lipgloss.JoinVertical(lipgloss.Left, stats, graph))
}

func (m Model) renderItems(width int) string {
	if m.last == nil {
		return DimStyle.Render("Waiting for the first update...")
	}
	if len(m.last.Items) == 0 {
		return DimStyle.Render("No active downloads")
	}

	nameWidth := width - 53
	if nameWidth < 8 {
		nameWidth = 8
	}
	row := func(gid, size, speed, pct, name string) string {
		return fmt.Sprintf("%-8s %22s %12s %6s  %s", gid, size, speed, pct, truncate(name, nameWidth))
	}

	lines := []string{HeaderRowStyle.Render(row("GID", "SIZE", "SPEED", "%", "FILE"))}
	for _, it := range m.visibleItems() {
		name := it.Filename
		if name == "" {
			name = "-"
		}
		lines = append(lines, RowStyle.Render(row(
			it.GID.Short(),
			utils.FormatSize(it.CompletedLength, it.TotalLength),
			utils.FormatSpeed(it.DownloadSpeed),
			fmt.Sprintf("%d%%", it.Progress()),
			name,
		)))
	}
	if hidden := len(m.last.Items) - len(lines) + 1; hidden > 0 {
		lines = append(lines, DimStyle.Render(fmt.Sprintf("... and %d more", hidden)))
	}
	return PaneTitleStyle.Render("Active") + "\n" + strings.Join(lines, "\n")
}

// visibleItems returns the rows that fit under the header and graph.
func (m Model) visibleItems() []types.DownloadStatus {
	items := m.last.Items
	room := m.height - 10
	if m.height >= 16+graphHeight {
		room -= graphHeight + 3
	}
	if room < 1 {
		room = 1
	}
	if len(items) > room {
		return items[:room]
	}
	return items
}

func (m Model) renderEnd() string {
	if m.last == nil || !m.last.Final {
		return ErrorStyle.Render("Snapshot stream closed")
	}
	msg := fmt.Sprintf("Batch %s: %d/%d complete", m.last.Reason, m.last.Completed, m.last.Total)
	if m.err != nil {
		return ErrorStyle.Render(msg + ": " + m.err.Error())
	}
	if m.last.Reason == types.ReasonDrained {
		return lipgloss.NewStyle().Foreground(colors.StateDone).Bold(true).Render(msg)
	}
	return stateStyle(types.StateStopped).Render(msg)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
