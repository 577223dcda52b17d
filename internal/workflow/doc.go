// Package workflow advances queue items through the configured processing
// stages.
//
// The Manager polls the queue, reclaims stale work via heartbeats, and feeds
// items into registered stage handlers (inspector, renderer, publisher) while
// capturing progress and failure metadata. It also aggregates queue stats,
// calls stage health checks, pushes live progress updates to an optional
// sink, and emits queue-level notifications when processing completes.
//
// Add new lifecycle stages by extending StageSet, updating the queue status
// enums, and teaching the manager how to transition items; this package is the
// authoritative home for that coordination logic.
package workflow
