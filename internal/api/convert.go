package api

import (
	"sort"

	"filmstrip/internal/queue"
	"filmstrip/internal/workflow"
)

// FromQueueItem converts a queue record to its API representation.
func FromQueueItem(item *queue.Item) QueueItem {
	if item == nil {
		return QueueItem{}
	}

	dto := QueueItem{
		ID:          item.ID,
		Token:       item.Token,
		Filename:    item.Filename,
		ContentType: item.ContentType,
		SizeBytes:   item.SizeBytes,
		Width:       item.Width,
		Height:      item.Height,
		Status:      string(item.Status),
		Stage:       item.Status.StageKey(),
		Progress: QueueProgress{
			Stage:   item.ProgressStage,
			Percent: item.ProgressPercent,
			Message: item.ProgressMessage,
		},
		ErrorMessage: item.ErrorMessage,
		VideoURL:     item.VideoURL,
		FinalFile:    item.FinalFile,
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromQueueItems converts a slice of queue records into API DTOs.
func FromQueueItems(items []*queue.Item) []QueueItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromQueueItem(item))
	}
	return out
}

// FromWorkflowStatus converts a workflow summary into its API form.
func FromWorkflowStatus(summary workflow.StatusSummary) WorkflowStatus {
	status := WorkflowStatus{
		Running:    summary.Running,
		LastError:  summary.LastError,
		QueueStats: make(map[string]int, len(summary.QueueStats)),
	}
	for key, count := range summary.QueueStats {
		status.QueueStats[string(key)] = count
	}
	if summary.LastItem != nil {
		item := FromQueueItem(summary.LastItem)
		status.LastItem = &item
	}
	names := make([]string, 0, len(summary.StageHealth))
	for name := range summary.StageHealth {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		health := summary.StageHealth[name]
		status.StageHealth = append(status.StageHealth, StageHealth{
			Name:   health.Name,
			Ready:  health.Ready,
			Detail: health.Detail,
		})
	}
	return status
}

// FromHealthSummary converts queue health counts into the API payload.
func FromHealthSummary(health queue.HealthSummary) QueueHealthResponse {
	return QueueHealthResponse{
		Total:      health.Total,
		Uploaded:   health.Uploaded,
		Pending:    health.Pending,
		Processing: health.Processing,
		Failed:     health.Failed,
		Completed:  health.Completed,
	}
}
