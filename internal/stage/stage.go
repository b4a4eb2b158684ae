// Package stage defines the contract pipeline stages implement and the
// health reporting they expose to preflight checks.
package stage

import (
	"context"
	"log/slog"

	"scribe/internal/queue"
)

// Handler is implemented by each pipeline stage. Prepare validates inputs and
// fills derived fields on the run; Execute performs the work and records the
// produced artifacts on the run before returning.
type Handler interface {
	Prepare(context.Context, *queue.Run) error
	Execute(context.Context, *queue.Run) error
	HealthCheck(context.Context) Health
}

// LoggerAware is implemented by stages that keep a logger. The executor uses
// it to swap in a run-scoped logger before invoking the handler.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

// Health summarizes the readiness of a single stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy reports a stage as ready.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy reports a stage as not ready along with the reason.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
