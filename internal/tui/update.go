package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/utils"
)

var errNoController = errors.New("batch control unavailable")

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		return m.applySnapshot(msg.Snapshot)

	case streamClosedMsg:
		m.done = true
		m.state = types.StateStopped
		return m, tea.Quit

	case controlResultMsg:
		if msg.err != nil {
			utils.Debug("tui: %s failed: %v", msg.action, msg.err)
			m.notice = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			return m, nil
		}
		switch msg.action {
		case actionPause:
			m.state = types.StatePaused
			m.notice = "Paused all downloads"
		case actionResume:
			m.state = types.StateRunning
			m.notice = "Resumed"
		case actionStop:
			m.notice = "Stopping..."
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case m.done:
			return m, nil
		case key.Matches(msg, m.keys.Pause):
			return m, m.control(actionPause)
		case key.Matches(msg, m.keys.Resume):
			return m, m.control(actionResume)
		case key.Matches(msg, m.keys.Stop):
			return m, m.control(actionStop)
		}
	}

	return m, nil
}

func (m Model) applySnapshot(snap types.Snapshot) (tea.Model, tea.Cmd) {
	m.last = &snap

	var speed int64
	for _, it := range snap.Items {
		speed += it.DownloadSpeed
	}
	if speed > m.topSpeed {
		m.topSpeed = speed
	}
	m.speedHistory = pushSpeed(m.speedHistory, float64(speed))

	if snap.Final {
		m.done = true
		m.state = types.StateStopped
		if snap.Err != "" {
			m.err = errors.New(snap.Err)
		}
		return m, tea.Quit
	}

	// Snapshots only arrive while the batch is not paused
	m.state = types.StateRunning
	return m, waitForSnapshot(m.stream)
}
