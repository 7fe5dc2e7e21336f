package types

import (
	"time"
)

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB

	// IncompleteSuffix is appended to files while downloading
	IncompleteSuffix = ".part"
)

// Segment constants for split downloads
const (
	MinSegment   = 1 * MB  // Smallest segment handed to a connection
	AlignSize    = 4 * KB  // Align segments to 4KB for filesystem
	WorkerBuffer = 32 * KB // Read buffer per connection
)

// Engine defaults
const (
	DefaultSplit                  = 6
	MaxSplit                      = 16
	DefaultMaxConcurrentDownloads = 5
	DefaultStepTimeout            = 100 * time.Millisecond
	SpeedSampleInterval           = 500 * time.Millisecond
	DefaultUserAgent              = "batchget/1.0"
)

// HTTP Client Tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 15 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second
	ProbeTimeout                 = 30 * time.Second
)

// Monitor defaults
const (
	DefaultPollInterval   = 900 * time.Millisecond
	SnapshotChannelBuffer = 16
)

// Segment is a byte range of an item still to be fetched.
type Segment struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// End returns the exclusive end offset of the segment.
func (s Segment) End() int64 {
	return s.Offset + s.Length
}
