package orchestrator

import (
	"context"
	"time"
)

// Task is one unit of work the orchestrator schedules. Run must return
// promptly once ctx is done; a task that does not is still reported as
// timed out at its deadline.
type Task interface {
	Name() string
	Run(ctx context.Context) (Result, error)
}

// Result is what a task reports about its own work.
type Result struct {
	// Records is the number of records the task produced.
	Records int
	// Output is free-form text, such as a command's captured stdout.
	Output string
}

// Outcome is the orchestrator's record of a finished task.
type Outcome struct {
	Task       string
	Status     Status
	Result     Result
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is how long the task ran.
func (o Outcome) Duration() time.Duration { return o.FinishedAt.Sub(o.StartedAt) }

// TaskFunc adapts a function to the Task interface.
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) (Result, error)
}

func (t TaskFunc) Name() string                             { return t.TaskName }
func (t TaskFunc) Run(ctx context.Context) (Result, error) { return t.Fn(ctx) }
