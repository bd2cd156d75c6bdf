package event

import "time"

type EventType string

const (
	// Download lifecycle
	EventDownloadQueued    EventType = "download.queued"
	EventDownloadStarted   EventType = "download.started"
	EventDownloadProgress  EventType = "download.progress"
	EventDownloadCompleted EventType = "download.completed"
	EventDownloadFailed    EventType = "download.failed"
	EventDownloadCancelled EventType = "download.cancelled"

	// Worker connection
	EventConnectionRestored EventType = "connection.restored"
	EventConnectionLost     EventType = "connection.lost"

	// Library
	EventVideoDeleted  EventType = "video.deleted"
	EventSyncCompleted EventType = "sync.completed"
)

type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type DownloadEvent struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Percent    float64 `json:"percent,omitempty"`
	Speed      string  `json:"speed,omitempty"`
	SpeedBytes int64   `json:"speedBytes,omitempty"`
	ETA        string  `json:"eta,omitempty"`
	FilePath   string  `json:"filePath,omitempty"`
	FileSize   int64   `json:"fileSize,omitempty"`
	Error      string  `json:"error,omitempty"`
	ErrorKind  string  `json:"errorKind,omitempty"`
}

type ConnectionEvent struct {
	WorkerURL string `json:"workerUrl"`
	PID       int    `json:"pid,omitempty"`
	Error     string `json:"error,omitempty"`
}

type VideoEvent struct {
	ID string `json:"id"`
}

type SyncEvent struct {
	Found int    `json:"found"`
	Error string `json:"error,omitempty"`
}
