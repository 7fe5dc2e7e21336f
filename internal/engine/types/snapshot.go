package types

import "time"

// EndReason tells a consumer why a batch stopped producing snapshots.
type EndReason string

const (
	ReasonNone    EndReason = ""
	ReasonDrained EndReason = "drained"
	ReasonStopped EndReason = "stopped"
	ReasonError   EndReason = "error"
)

// Snapshot is one point-in-time view of a batch. It is built fresh on every
// emitting tick and never modified after it is sent.
type Snapshot struct {
	BatchID   string           `json:"batch_id"`
	Seq       uint64           `json:"seq"`
	Items     []DownloadStatus `json:"items"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
	At        time.Time        `json:"at"`

	// Set only on the last snapshot of a batch.
	Final  bool      `json:"final,omitempty"`
	Reason EndReason `json:"reason,omitempty"`
	Err    string    `json:"error,omitempty"`
}

// CompletedCount derives the aggregate completed count from the engine's
// global counters, clamped to [0, total].
func CompletedCount(total, numActive, numWaiting int) int {
	n := total - numActive - numWaiting
	if n < 0 {
		return 0
	}
	if n > total {
		return total
	}
	return n
}

// BatchState is the externally visible state of a batch monitor.
type BatchState string

const (
	StateIdle    BatchState = "idle"
	StateCreated BatchState = "created"
	StateRunning BatchState = "running"
	StatePaused  BatchState = "paused"
	StateStopped BatchState = "stopped"
)

// SubmitResult reports what happened to each URI of a submitted batch.
type SubmitResult struct {
	BatchID  string             `json:"batch_id"`
	GIDs     []GID              `json:"gids"`
	Failures []*InvalidURIError `json:"failures,omitempty"`
}

// BatchStatus describes the batch currently owned by a control surface.
type BatchStatus struct {
	BatchID string     `json:"batch_id,omitempty"`
	State   BatchState `json:"state"`
	Dir     string     `json:"dir,omitempty"`
	Total   int        `json:"total"`
	Paused  []GID      `json:"paused,omitempty"`
	Last    *Snapshot  `json:"last,omitempty"`
}
