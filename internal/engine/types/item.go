package types

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// GID identifies one download item inside an engine session.
type GID string

// NewGID returns a random 16 hex digit identifier.
func NewGID() GID {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("gid: %v", err))
	}
	// Never hand out the zero GID
	if binary.BigEndian.Uint64(b[:]) == 0 {
		b[7] = 1
	}
	return GID(hex.EncodeToString(b[:]))
}

// Short returns the first 8 characters for display.
func (g GID) Short() string {
	if len(g) > 8 {
		return string(g[:8])
	}
	return string(g)
}

// ItemState is the engine-side lifecycle state of one item.
type ItemState string

const (
	ItemActive   ItemState = "active"
	ItemWaiting  ItemState = "waiting"
	ItemPaused   ItemState = "paused"
	ItemComplete ItemState = "complete"
	ItemError    ItemState = "error"
	ItemRemoved  ItemState = "removed"
)

// IsRunnable reports whether the item is downloading or queued to download.
func (s ItemState) IsRunnable() bool {
	return s == ItemActive || s == ItemWaiting
}

// IsFinished reports whether the item has left the engine's work set.
func (s ItemState) IsFinished() bool {
	return s == ItemComplete || s == ItemError || s == ItemRemoved
}

// DownloadItem is the engine's view of one item at the time of the query.
type DownloadItem struct {
	GID             GID
	URI             string
	TotalLength     int64
	CompletedLength int64
	DownloadSpeed   int64
	Name            string
	State           ItemState
	Err             error
}

// Status converts the item into the record carried by a snapshot.
func (d DownloadItem) Status() DownloadStatus {
	return DownloadStatus{
		GID:             d.GID,
		TotalLength:     d.TotalLength,
		CompletedLength: d.CompletedLength,
		DownloadSpeed:   d.DownloadSpeed,
		Filename:        d.Name,
	}
}

// DownloadStatus is the per-item record delivered to snapshot consumers.
type DownloadStatus struct {
	GID             GID    `json:"gid"`
	TotalLength     int64  `json:"total_length"`
	CompletedLength int64  `json:"completed_length"`
	DownloadSpeed   int64  `json:"download_speed"`
	Filename        string `json:"filename"`
}

// Progress returns the completed percentage, or 0 while the size is unknown.
func (d DownloadStatus) Progress() int64 {
	if d.TotalLength <= 0 {
		return 0
	}
	return 100 * d.CompletedLength / d.TotalLength
}
