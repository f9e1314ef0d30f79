package stage

import (
	"context"

	"lapse/internal/queue"
)

// Handler describes the contract the workflow manager needs from each job
// engine. Prepare validates inputs before any work starts; Execute produces
// the artifact and records its output fields on the job.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}
