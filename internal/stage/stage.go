// Package stage defines the contract between the workflow manager and the
// inspect, render, and publish steps of the pipeline.
package stage

import (
	"context"

	"filmstrip/internal/queue"
)

// Handler is one step of the render pipeline. Prepare validates inputs and
// claims working directories, Execute does the work and mutates the item,
// and HealthCheck reports whether the step could run right now (binaries
// present, directories writable).
type Handler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *queue.Item) error
	HealthCheck(context.Context) Health
}

// Health is a point-in-time readiness report for one pipeline step. Detail
// is empty when Ready and names the missing prerequisite when not.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy reports a step as ready to run.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy reports a step as unable to run, with the reason in detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
