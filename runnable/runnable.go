// Package runnable defines the minimal contract shared by Agent and
// Workflow, enabling either to nest inside the other uniformly.
package runnable

import (
	"context"

	"github.com/agentflow/core/runctx"
)

// Status mirrors session.Status values a caller cares about without
// importing the session package, keeping this contract minimal.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusSuspended Status = "suspended"
)

// Output is what Run returns.
type Output struct {
	RunID     string
	SessionID string
	Response  string
	Status    Status
	Error     string
}

// Runnable is satisfied by both Agent and Workflow (Pipeline, Parallel,
// Loop). A runnable must honor ctx's abort signal and refuse to start
// when ctx.Depth exceeds ctx.MaxDepth.
type Runnable interface {
	ID() string
	Run(ctx context.Context, input string, ectx *runctx.ExecutionContext) (Output, error)
}
