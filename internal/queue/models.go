package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a render item.
type Status string

const (
	// StatusUploaded marks an item whose file is staged but whose render has
	// not been requested yet. The browser releases it with a process message.
	StatusUploaded   Status = "uploaded"
	StatusPending    Status = "pending"
	StatusInspecting Status = "inspecting"
	StatusInspected  Status = "inspected"
	StatusRendering  Status = "rendering"
	StatusRendered   Status = "rendered"
	StatusPublishing Status = "publishing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusUploaded,
	StatusPending,
	StatusInspecting,
	StatusInspected,
	StatusRendering,
	StatusRendered,
	StatusPublishing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusInspecting: {},
	StatusRendering:  {},
	StatusPublishing: {},
}

type statusTransition struct {
	from Status
	to   Status
}

var stageRollbackTransitions = []statusTransition{
	{from: StatusInspecting, to: StatusPending},
	{from: StatusRendering, to: StatusInspected},
	{from: StatusPublishing, to: StatusRendered},
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	IntegrityCheck   bool
	TotalItems       int
	Error            string
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Uploaded   int
	Pending    int
	Processing int
	Failed     int
	Completed  int
}

// Item represents a render item persisted in SQLite.
type Item struct {
	ID              int64
	Token           string
	Filename        string
	StagedPath      string
	ContentType     string
	SizeBytes       int64
	Width           int
	Height          int
	Status          Status
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	RenderedFile    string
	FinalFile       string
	VideoURL        string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastHeartbeat   *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (i Item) IsProcessing() bool {
	return IsProcessingStatus(i.Status)
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether an item has finished its lifecycle.
func (i Item) IsTerminal() bool {
	return i.Status == StatusCompleted || i.Status == StatusFailed
}

// InitProgress resets progress fields for a new stage. If ProgressStage is
// currently empty it is set to the provided stage value; otherwise the
// existing stage is preserved to support resume scenarios.
func (i *Item) InitProgress(stage, message string) {
	if i.ProgressStage == "" {
		i.ProgressStage = stage
	}
	i.ProgressMessage = message
	i.ProgressPercent = 0
	i.ErrorMessage = ""
}

// SetProgress updates all three progress fields atomically.
func (i *Item) SetProgress(stage, message string, percent float64) {
	i.ProgressStage = stage
	i.ProgressMessage = message
	i.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
func (i *Item) SetProgressComplete(stage, message string) {
	i.SetProgress(stage, message, 100)
}

// SetFailed marks the item as failed with the given error message.
// Clears the heartbeat and sets progress fields appropriately.
func (i *Item) SetFailed(message string) {
	i.Status = StatusFailed
	i.ErrorMessage = message
	i.ProgressPercent = 0
	i.ProgressMessage = message
	i.LastHeartbeat = nil
	i.ProgressStage = "Failed"
}

// StageKey returns the normalized stage identifier used in API presentation.
func (s Status) StageKey() string {
	switch s {
	case "":
		return ""
	case StatusUploaded:
		return "queued"
	case StatusPending:
		return "planned"
	case StatusCompleted:
		return "final"
	default:
		if _, ok := statusSet[s]; ok {
			return string(s)
		}
		return ""
	}
}
