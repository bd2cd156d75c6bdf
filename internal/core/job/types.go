package job

import "time"

// Status is the lifecycle state shared by worker job states and client records.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusDone        Status = "done"
	StatusError       Status = "error"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusDownloading, StatusDone, StatusError:
		return true
	}
	return false
}

const (
	MinCeiling     = 1
	MaxCeiling     = 4
	DefaultCeiling = 2
)

// ClampCeiling bounds a concurrency ceiling to the supported range.
// Zero or negative values fall back to DefaultCeiling.
func ClampCeiling(n int) int {
	switch {
	case n <= 0:
		return DefaultCeiling
	case n < MinCeiling:
		return MinCeiling
	case n > MaxCeiling:
		return MaxCeiling
	}
	return n
}

// State is the worker-side view of a single download.
type State struct {
	ID            string     `json:"id"`
	Status        Status     `json:"status"`
	Percent       float64    `json:"percent"`
	Speed         string     `json:"speed,omitempty"`
	SpeedBytes    int64      `json:"speedBytes,omitempty"`
	ETA           string     `json:"eta,omitempty"`
	FilePath      string     `json:"filePath,omitempty"`
	ThumbnailPath string     `json:"thumbnailPath,omitempty"`
	FileSize      int64      `json:"fileSize,omitempty"`
	Duration      int64      `json:"duration,omitempty"`
	Description   string     `json:"description,omitempty"`
	Error         string     `json:"error,omitempty"`
	ErrorKind     ErrorKind  `json:"errorKind,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
}

// Progress is one parsed progress sample.
type Progress struct {
	Percent    float64
	Speed      string
	SpeedBytes int64
	ETA        string
}

// Result holds the fields derived while finalizing a successful download.
type Result struct {
	FilePath      string
	ThumbnailPath string
	FileSize      int64
	Duration      int64
	Description   string
}
