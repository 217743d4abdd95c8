// Package runctx defines the ephemeral ExecutionContext shared by every
// runnable, plus the cooperative AbortSignal used for cancellation.
package runctx

import (
	"context"
	"sync"
	"time"

	"github.com/agentflow/core/wire"
)

// AbortSignal is a cancellable, one-shot binary flag shared by a run and
// all its descendants. It is backed by a context.Context so blocking
// calls (model streams, tool I/O, store writes) can select on it
// directly via Done().
type AbortSignal struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	reason string
}

// NewAbortSignal creates a fresh, unset signal derived from parent.
func NewAbortSignal(parent context.Context) *AbortSignal {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &AbortSignal{ctx: ctx, cancel: cancel}
}

// NewAbortSignalWithTimeout derives a signal that also aborts after d elapses.
func NewAbortSignalWithTimeout(parent context.Context, d time.Duration) (*AbortSignal, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, d)
	return &AbortSignal{ctx: ctx, cancel: cancel}, cancel
}

// Set trips the signal. Safe to call multiple times and concurrently.
func (a *AbortSignal) Set(reason string) {
	a.mu.Lock()
	if a.reason == "" {
		a.reason = reason
	}
	a.mu.Unlock()
	a.cancel()
}

// Aborted reports whether the signal has tripped.
func (a *AbortSignal) Aborted() bool {
	select {
	case <-a.ctx.Done():
		return true
	default:
		return false
	}
}

// Reason returns the reason passed to Set, or "" if not yet aborted.
func (a *AbortSignal) Reason() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reason
}

// Done returns the channel closed when the signal trips, for use in
// select statements alongside other blocking I/O.
func (a *AbortSignal) Done() <-chan struct{} { return a.ctx.Done() }

// Context returns the underlying context.Context, suitable for passing
// to model/tool/store calls that accept one directly.
func (a *AbortSignal) Context() context.Context { return a.ctx }

// ExecutionContext is the ephemeral identity and plumbing carried
// through one run. Every event emitted within a run must carry this
// context's run/session/depth/parent identity.
type ExecutionContext struct {
	RunID             string
	SessionID         string
	UserID            string
	Depth             int
	ParentRunID       string
	NestedRunnableID  string
	Wire              *wire.Wire
	Abort             *AbortSignal
	MaxDepth          int
}

// Child derives a context for a nested runnable invocation: depth+1,
// parent_run_id set to this context's run_id, a fresh child wire, and
// the nested runnable's identity recorded.
func (c *ExecutionContext) Child(childRunID, nestedRunnableID string, childWire *wire.Wire) *ExecutionContext {
	return &ExecutionContext{
		RunID:            childRunID,
		SessionID:        c.SessionID,
		UserID:           c.UserID,
		Depth:            c.Depth + 1,
		ParentRunID:      c.RunID,
		NestedRunnableID: nestedRunnableID,
		Wire:             childWire,
		Abort:            c.Abort,
		MaxDepth:         c.MaxDepth,
	}
}

// DepthExceeded reports whether this context's depth is already above
// the configured maximum (0 means unlimited).
func (c *ExecutionContext) DepthExceeded() bool {
	return c.MaxDepth > 0 && c.Depth > c.MaxDepth
}
