package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"filmstrip/internal/config"
	"filmstrip/internal/notifications"
	"filmstrip/internal/queue"
	"filmstrip/internal/stage"
)

// ProgressSink receives item snapshots whenever the manager records a state
// change. The websocket hub implements this to push live updates to browsers.
type ProgressSink interface {
	ItemProgress(item *queue.Item)
}

// loggerAware is implemented by stage handlers that accept a scoped logger
// before each run.
type loggerAware interface {
	SetLogger(*slog.Logger)
}

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Inspector stage.Handler
	Renderer  stage.Handler
	Publisher stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
}

// Manager coordinates queue processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	pollInterval time.Duration
	notifier     notifications.Service

	heartbeat *HeartbeatMonitor

	stages             []pipelineStage
	stageByStart       map[queue.Status]pipelineStage
	statusOrder        []queue.Status
	processingStatuses []queue.Status

	mu       sync.RWMutex
	sink     ProgressSink
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastItem *queue.Item

	queueActive bool
	queueStart  time.Time
}

// NewManager constructs a workflow manager with a notifier derived from config.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		notifier:     notifier,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}

// ConfigureStages registers the concrete stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) {
	var stages []pipelineStage
	if set.Inspector != nil {
		stages = append(stages, pipelineStage{
			name:             "inspector",
			handler:          set.Inspector,
			startStatus:      queue.StatusPending,
			processingStatus: queue.StatusInspecting,
			doneStatus:       queue.StatusInspected,
		})
	}
	rendererStart := queue.StatusPending
	if set.Inspector != nil {
		rendererStart = queue.StatusInspected
	}
	publisherStart := queue.StatusRendered
	if set.Renderer != nil {
		stages = append(stages, pipelineStage{
			name:             "renderer",
			handler:          set.Renderer,
			startStatus:      rendererStart,
			processingStatus: queue.StatusRendering,
			doneStatus:       queue.StatusRendered,
		})
	}
	if set.Publisher != nil {
		stages = append(stages, pipelineStage{
			name:             "publisher",
			handler:          set.Publisher,
			startStatus:      publisherStart,
			processingStatus: queue.StatusPublishing,
			doneStatus:       queue.StatusCompleted,
		})
	}

	stageByStart := make(map[queue.Status]pipelineStage, len(stages))
	statusOrder := make([]queue.Status, 0, len(stages))
	processing := make([]queue.Status, 0, len(stages))
	for _, stg := range stages {
		stageByStart[stg.startStatus] = stg
		statusOrder = append(statusOrder, stg.startStatus)
		if stg.processingStatus != "" {
			processing = append(processing, stg.processingStatus)
		}
	}

	m.mu.Lock()
	m.stages = stages
	m.stageByStart = stageByStart
	m.statusOrder = statusOrder
	m.processingStatuses = processing
	m.mu.Unlock()
}

// SetProgressSink registers the live progress consumer. Pass nil to detach.
func (m *Manager) SetProgressSink(sink ProgressSink) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
}

func (m *Manager) publishProgress(item *queue.Item) {
	m.mu.RLock()
	sink := m.sink
	m.mu.RUnlock()
	if sink == nil || item == nil {
		return
	}
	snapshot := *item
	sink.ItemProgress(&snapshot)
}

func (m *Manager) stageForStatus(status queue.Status) (pipelineStage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stg, ok := m.stageByStart[status]
	return stg, ok
}
