// Package workflow implements the three composition operators —
// Pipeline, Parallel, and Loop — that let stages invoke other
// runnables (agents or nested workflows) and stitch their outputs
// together through a small template environment.
package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/agentflow/core/errs"
	"github.com/agentflow/core/event"
	"github.com/agentflow/core/runctx"
	"github.com/agentflow/core/runnable"
	"github.com/agentflow/core/session"
	"github.com/agentflow/core/template"
	"github.com/agentflow/core/wire"
)

// runStageMetered resolves the stage's runnable, runs it with the
// already rendered input on a freshly derived child context whose wire is
// forwarded onto parent, and returns its output plus the child run's
// persisted metrics so a composition operator can fold them into its
// own run_completed event. abort overrides the child's abort signal
// when non-nil, letting Parallel scope cancellation to one fan-out
// group without affecting the rest of the run tree. store is only used
// for the metrics lookup; a nil store skips it and returns a zero
// Metrics.
func runStageMetered(ctx context.Context, parent *runctx.ExecutionContext, store session.Store, factory *event.Factory, stage Stage, rendered string, abort *runctx.AbortSignal) (runnable.Output, session.Metrics, error) {
	r, err := stage.Runnable()
	if err != nil {
		return runnable.Output{}, session.Metrics{}, fmt.Errorf("workflow: stage %s: %w", stage.ID, err)
	}

	childWire := wire.New(16)
	childCtx := parent.Child(uuid.NewString(), r.ID(), childWire)
	if abort != nil {
		childCtx.Abort = abort
	}

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

	out, err := r.Run(ctx, rendered, childCtx)
	childWire.Close()
	<-done

	var metrics session.Metrics
	if store != nil {
		if childRun, getErr := store.GetRun(ctx, childCtx.RunID); getErr == nil && childRun != nil {
			metrics = childRun.Metrics
		}
	}

	if err != nil {
		return out, metrics, fmt.Errorf("workflow: stage %s: %w", stage.ID, err)
	}
	return out, metrics, nil
}

// newRun persists a starting run record for a workflow operator and
// emits run_started, mirroring what the agent runner does for its own
// runs so every runnable in the tree is equally traceable.
func newRun(ctx context.Context, store session.Store, factory *event.Factory, ectx *runctx.ExecutionContext, runnableID, query string) error {
	run := &session.Run{
		RunID:       ectx.RunID,
		SessionID:   ectx.SessionID,
		RunnableID:  runnableID,
		Status:      session.StatusRunning,
		ParentRunID: ectx.ParentRunID,
		Depth:       ectx.Depth,
	}
	if err := store.SaveRun(ctx, run); err != nil {
		return err
	}
	factory.Emit(event.KindRunStarted, "", map[string]any{
		"runnable_id": runnableID,
		"query":       query,
		"session_id":  ectx.SessionID,
	})
	return nil
}

func finishRun(ctx context.Context, store session.Store, factory *event.Factory, ectx *runctx.ExecutionContext, status session.Status, response string, metrics session.Metrics, runErr error) {
	run := &session.Run{
		RunID:       ectx.RunID,
		SessionID:   ectx.SessionID,
		Status:      status,
		ParentRunID: ectx.ParentRunID,
		Depth:       ectx.Depth,
		Response:    response,
		Metrics:     metrics,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	_ = store.SaveRun(ctx, run)

	switch status {
	case session.StatusCompleted:
		factory.Emit(event.KindRunCompleted, "", map[string]any{"response": response, "metrics": metrics})
	case session.StatusFailed:
		slog.Error("workflow: run failed", "run_id", ectx.RunID, "error", run.Error)
		factory.Emit(event.KindRunFailed, "", map[string]any{"error": run.Error, "is_fatal": true})
	case session.StatusCancelled:
		factory.Emit(event.KindRunCancelled, "", map[string]any{"reason": ectx.Abort.Reason()})
	}
}

// ensureSession creates a session when the caller didn't already start
// one, the same way the agent runner does, so a workflow can be the
// first runnable entered in a fresh conversation.
func ensureSession(ctx context.Context, store session.Store, ectx *runctx.ExecutionContext, runnableID string) error {
	if ectx.SessionID != "" {
		return nil
	}
	sess, err := store.CreateSession(ctx, runnableID)
	if err != nil {
		return err
	}
	ectx.SessionID = sess.SessionID
	return nil
}

func depthCheck(ectx *runctx.ExecutionContext) error {
	if ectx.DepthExceeded() {
		return errs.ErrDepthExceeded
	}
	return nil
}

// envWithOutput returns a copy of env with stageID's output recorded.
func envWithOutput(env template.Env, stageID, output string) template.Env {
	out := make(template.Env, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	out[stageID+".output"] = output
	return out
}
