package scheduler

import "context"

// Job represents a unit of work that can be executed by the worker pool.
type Job interface {
	// Execute runs the job. Implementations must respect ctx cancellation.
	Execute(ctx context.Context) error

	// Key identifies what the job works on, for logs and traces.
	Key() string

	Description() string
}
