package stage

import (
	"context"

	"wikiseed/internal/queue"
)

// Handler is the execution body for one job kind.
type Handler interface {
	Execute(context.Context, *queue.Job) (Result, error)
	HealthCheck(context.Context) Health
}

// Result is what a successful execution hands back to the worker loop. The
// payload is stored as the job result and follow-ups are enqueued in the same
// transaction that completes the job.
type Result struct {
	Payload   map[string]any `json:"result,omitempty"`
	FollowUps []queue.NewJob `json:"enqueue,omitempty"`
}

// HandlerFunc adapts a function to the Handler interface. It always reports
// healthy.
type HandlerFunc func(context.Context, *queue.Job) (Result, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, job *queue.Job) (Result, error) {
	return f(ctx, job)
}

// HealthCheck reports a ready func handler.
func (f HandlerFunc) HealthCheck(context.Context) Health {
	return Healthy("func")
}
