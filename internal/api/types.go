package api

import "time"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueItem describes a render item in a transport-friendly format.
type QueueItem struct {
	ID           int64         `json:"id"`
	Token        string        `json:"token"`
	Filename     string        `json:"filename"`
	ContentType  string        `json:"contentType,omitempty"`
	SizeBytes    int64         `json:"sizeBytes,omitempty"`
	Width        int           `json:"width,omitempty"`
	Height       int           `json:"height,omitempty"`
	Status       string        `json:"status"`
	Stage        string        `json:"stageKey"`
	Progress     QueueProgress `json:"progress"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	VideoURL     string        `json:"videoUrl,omitempty"`
	FinalFile    string        `json:"finalFile,omitempty"`
	CreatedAt    string        `json:"createdAt,omitempty"`
	UpdatedAt    string        `json:"updatedAt,omitempty"`
}

// QueueProgress captures stage progress information for a render item.
type QueueProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// AcceptedUpload identifies one stored file in an upload response.
type AcceptedUpload struct {
	Token    string `json:"token"`
	Filename string `json:"filename"`
}

// RejectedUpload describes one file the daemon refused to store.
type RejectedUpload struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

// UploadResponse is the POST /api/upload reply.
type UploadResponse struct {
	Accepted []AcceptedUpload `json:"accepted"`
	Rejected []RejectedUpload `json:"rejected"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastItem    *QueueItem     `json:"lastItem,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	QueueDBPath  string         `json:"queueDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
	Sessions     int            `json:"websocketSessions"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// QueueListResponse wraps a collection of render items for API responses.
type QueueListResponse struct {
	Items []QueueItem `json:"items"`
}

// QueueItemResponse wraps a single render item.
type QueueItemResponse struct {
	Item QueueItem `json:"item"`
}

// QueueHealthResponse reports aggregate queue counts.
type QueueHealthResponse struct {
	Total      int `json:"total"`
	Uploaded   int `json:"uploaded"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`
}

// ClearResponse reports how many rows a maintenance action removed or reset.
type ClearResponse struct {
	Affected int64 `json:"affected"`
}

// LogEvent mirrors one structured log line from the daemon's stream buffer.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"timestamp"`
	Level         string            `json:"level"`
	Message       string            `json:"message"`
	Component     string            `json:"component,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	ItemID        int64             `json:"itemId,omitempty"`
	Token         string            `json:"token,omitempty"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse carries a page of log events plus the cursor for the
// next poll.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}
