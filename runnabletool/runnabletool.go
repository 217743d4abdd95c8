// Package runnabletool adapts any Runnable (an Agent or a Workflow)
// into a Tool, so one agent can call another agent, an agent can call
// a workflow, or a workflow stage can itself be an agent calling a
// tool that is really another workflow, uniformly through the same
// tool-calling path.
package runnabletool

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/agentflow/core/event"
	"github.com/agentflow/core/runctx"
	"github.com/agentflow/core/runnable"
	"github.com/agentflow/core/tool"
	"github.com/agentflow/core/wire"
)

// Adapter wraps a Runnable as a tool.Tool. Calling it constructs a
// child execution context one depth level deeper than the caller's,
// with its own wire whose events are forwarded onto the caller's wire
// with parent_run_id and depth rewritten.
type Adapter struct {
	target      runnable.Runnable
	description string
}

// New constructs an Adapter exposing target under tool name
// target.ID() with the given human-facing description.
func New(target runnable.Runnable, description string) *Adapter {
	return &Adapter{target: target, description: description}
}

func (a *Adapter) Definition() tool.Definition {
	return tool.Definition{
		Name:        a.target.ID(),
		Description: a.description,
		Schema: map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"input": map[string]any{"type": "string"}},
			"required":             []any{"input"},
			"additionalProperties": false,
		},
	}
}

// ExecuteWithContext satisfies tool.ExecutionAware, giving the executor
// a way to pass the real calling ExecutionContext through so the nested
// run gets correct depth, parent_run_id, and forwarded events instead
// of starting a disconnected sub-tree.
func (a *Adapter) ExecuteWithContext(ctx context.Context, parent *runctx.ExecutionContext, args map[string]any) (string, string, error) {
	input, _ := args["input"].(string)

	childWire := wire.New(16)
	childCtx := parent.Child(uuid.NewString(), a.target.ID(), childWire)

	done := make(chan struct{})
	go func() {
		defer close(done)
		wire.Forwarder(childWire, parent.Wire, func(e wire.Event) wire.Event {
			evt, ok := e.(event.Event)
			if !ok {
				return e
			}
			return event.Rewrite(evt, parent.RunID, childCtx.Depth)
		})
	}()

	out, err := a.target.Run(ctx, input, childCtx)
	childWire.Close()
	<-done
	if err != nil {
		return "", "", fmt.Errorf("runnabletool %s: %w", a.target.ID(), err)
	}
	return out.Response, "", nil
}

// Execute satisfies the plain tool.Tool interface for callers that
// invoke the adapter directly without an ExecutionContext (e.g. a
// standalone test); it runs the target as a fresh root run with its
// own throwaway wire. Real call sites go through the executor, which
// prefers ExecuteWithContext automatically.
func (a *Adapter) Execute(ctx context.Context, args map[string]any) (string, string, error) {
	input, _ := args["input"].(string)
	out, err := a.target.Run(ctx, input, &runctx.ExecutionContext{
		RunID: uuid.NewString(),
		Wire:  wire.New(16),
		Abort: runctx.NewAbortSignal(ctx),
	})
	if err != nil {
		return "", "", fmt.Errorf("runnabletool %s: %w", a.target.ID(), err)
	}
	return out.Response, "", nil
}
