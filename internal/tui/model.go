// Package tui renders batch snapshots in the terminal.
package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/surge-downloader/batchget/internal/engine/types"
)

// Controller is the part of a batch service the view drives.
type Controller interface {
	PauseAll() error
	ResumeAll() error
	Stop() error
}

// SnapshotMsg carries one snapshot into the program.
type SnapshotMsg struct {
	Snapshot types.Snapshot
}

// streamClosedMsg is sent when the snapshot channel closes without a
// terminal snapshot.
type streamClosedMsg struct{}

type controlAction string

const (
	actionPause  controlAction = "pause"
	actionResume controlAction = "resume"
	actionStop   controlAction = "stop"
)

type controlResultMsg struct {
	action controlAction
	err    error
}

// Model is the bubbletea model of a running batch.
type Model struct {
	ctrl   Controller
	stream <-chan types.Snapshot

	keys     KeyMap
	help     help.Model
	progress progress.Model

	last         *types.Snapshot
	state        types.BatchState
	speedHistory []float64
	topSpeed     int64

	notice string
	err    error

	width  int
	height int

	done     bool
	quitting bool
}

// NewModel builds a view fed by stream. ctrl may be nil, in which case the
// control keys only report that control is unavailable.
func NewModel(ctrl Controller, stream <-chan types.Snapshot) Model {
	return Model{
		ctrl:     ctrl,
		stream:   stream,
		keys:     Keys,
		help:     help.New(),
		progress: progress.New(progress.WithDefaultGradient()),
		state:    types.StateRunning,
		width:    80,
		height:   24,
	}
}

func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.stream)
}

// Last returns the most recent snapshot, or nil before the first one.
func (m Model) Last() *types.Snapshot {
	return m.last
}

// Quitting reports whether the user asked to leave before the batch ended.
func (m Model) Quitting() bool {
	return m.quitting
}

func waitForSnapshot(stream <-chan types.Snapshot) tea.Cmd {
	if stream == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-stream
		if !ok {
			return streamClosedMsg{}
		}
		return SnapshotMsg{Snapshot: snap}
	}
}

func (m Model) control(action controlAction) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if ctrl == nil {
			return controlResultMsg{action: action, err: errNoController}
		}
		var err error
		switch action {
		case actionPause:
			err = ctrl.PauseAll()
		case actionResume:
			err = ctrl.ResumeAll()
		case actionStop:
			err = ctrl.Stop()
		}
		return controlResultMsg{action: action, err: err}
	}
}
