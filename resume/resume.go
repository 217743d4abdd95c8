// Package resume implements resuming a session after an interruption:
// picking back up after a crash, a consent suspension, or simply a
// trailing user message that never got a response.
package resume

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/agentflow/core/errs"
	"github.com/agentflow/core/event"
	"github.com/agentflow/core/hitl"
	"github.com/agentflow/core/model"
	"github.com/agentflow/core/observability"
	"github.com/agentflow/core/runctx"
	"github.com/agentflow/core/runnable"
	"github.com/agentflow/core/session"
	"github.com/agentflow/core/step"
	"github.com/agentflow/core/tool"
)

// Config carries the same per-agent pieces the step executor needs, so
// resume can re-drive the loop exactly like a fresh run would.
type Config struct {
	LLM            model.LLM
	Tools          *tool.Executor
	ToolDefs       []model.ToolDefinition
	MaxSteps       int
	UserID         string
	ContextOptions session.ContextBuilderOptions
	Recorder       *observability.Recorder
}

// Engine resumes sessions against a shared store and run configuration.
type Engine struct {
	store session.Store
	cfg   Config
}

// New constructs a resume Engine.
func New(store session.Store, cfg Config) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// Resume inspects sessionID's steps in reverse and continues from
// wherever execution left off. response, when non-nil, is the human's
// answer to a pending consent suspension and is only meaningful when
// the session actually has one recorded.
func (e *Engine) Resume(ctx context.Context, ectx *runctx.ExecutionContext, sessionID string, response *hitl.Response) (runnable.Output, error) {
	ectx.SessionID = sessionID

	release, err := e.store.TryAcquireSession(ctx, sessionID)
	if err != nil {
		return runnable.Output{SessionID: sessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}
	defer release()

	steps, err := e.store.ListSteps(ctx, sessionID, session.SequenceRange{From: 1})
	if err != nil {
		return runnable.Output{SessionID: sessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}
	if len(steps) == 0 {
		err := fmt.Errorf("resume: session %s has no steps", sessionID)
		return runnable.Output{SessionID: sessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}

	last := steps[len(steps)-1]
	factory := event.NewFactory(ectx, nil)
	slog.Info("resume: resuming session", "session_id", sessionID, "last_role", last.Role, "last_sequence", last.Sequence)

	switch {
	case last.Role == session.RoleUser:
		ectx.RunID = last.RunID
		return e.continueLoop(ctx, ectx, factory, last.Sequence)

	case last.Role == session.RoleAssistant && len(last.ToolCalls) == 0:
		return runnable.Output{RunID: last.RunID, SessionID: sessionID, Response: last.Content, Status: runnable.StatusCompleted}, nil

	case last.Role == session.RoleAssistant:
		return e.finishToolCalls(ctx, ectx, factory, sessionID, last, last.ToolCalls, response)

	case last.Role == session.RoleTool:
		parent := findParentAssistant(steps, last)
		if parent == nil {
			err := fmt.Errorf("resume: tool step seq=%d has no preceding assistant step", last.Sequence)
			return runnable.Output{SessionID: sessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
		}
		return e.finishToolCalls(ctx, ectx, factory, sessionID, parent, parent.ToolCalls, response)

	default:
		err := fmt.Errorf("resume: unhandled last step role %q", last.Role)
		return runnable.Output{SessionID: sessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}
}

// findParentAssistant walks backward from the tool step to the nearest
// preceding assistant step with tool_calls.
func findParentAssistant(steps []*session.Step, toolStep *session.Step) *session.Step {
	for i := len(steps) - 1; i >= 0; i-- {
		st := steps[i]
		if st.Sequence >= toolStep.Sequence {
			continue
		}
		if st.Role == session.RoleAssistant && len(st.ToolCalls) > 0 {
			return st
		}
	}
	return nil
}

// finishToolCalls re-invokes the tool executor for any of assistantStep's
// tool_calls that don't already have a matching tool step (idempotence:
// existence checked by (session_id, tool_call_id)), persists the
// results, and continues the model loop.
func (e *Engine) finishToolCalls(ctx context.Context, ectx *runctx.ExecutionContext, factory *event.Factory, sessionID string, assistantStep *session.Step, calls []model.ToolCall, response *hitl.Response) (runnable.Output, error) {
	ectx.RunID = assistantStep.RunID

	var missing []model.ToolCall
	for _, tc := range calls {
		_, found, err := e.store.FindStepByToolCallID(ctx, sessionID, tc.ID)
		if err != nil {
			return runnable.Output{RunID: ectx.RunID, SessionID: sessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
		}
		if !found {
			missing = append(missing, tc)
		}
	}

	if response != nil && e.cfg.Tools != nil {
		if err := e.applyConsentResponse(missing, response); err != nil {
			return runnable.Output{RunID: ectx.RunID, SessionID: sessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
		}
	}

	if len(missing) > 0 {
		results := e.cfg.Tools.ExecuteBatch(ctx, ectx, factory, e.cfg.UserID, missing)
		for _, r := range results {
			if r.Kind == tool.KindNeedsConsent {
				state := &session.SuspendedState{
					RunID:                ectx.RunID,
					InteractionRequestID: r.Suspension.Request.ID,
					Request:              r.Suspension.Request,
					PendingToolCall:      r.Suspension.PendingToolCall,
				}
				if err := e.store.SaveSuspendedState(ctx, state); err != nil {
					return runnable.Output{RunID: ectx.RunID, SessionID: sessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
				}
				slog.Info("resume: re-suspended on a still-pending tool call", "session_id", sessionID, "request_id", r.Suspension.Request.ID)
				return runnable.Output{RunID: ectx.RunID, SessionID: sessionID, Status: runnable.StatusSuspended}, nil
			}
		}

		for _, r := range results {
			seq, err := e.store.NextSequence(ctx, sessionID)
			if err != nil {
				return runnable.Output{RunID: ectx.RunID, SessionID: sessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
			}
			toolStep := &session.Step{
				StepID:         uuid.NewString(),
				SessionID:      sessionID,
				RunID:          ectx.RunID,
				Sequence:       seq,
				Role:           session.RoleTool,
				Content:        r.Content,
				ContentForUser: r.ContentForUser,
				ToolCallID:     r.ToolCallID,
				Name:           r.ToolName,
			}
			if err := e.store.SaveStep(ctx, toolStep); err != nil {
				return runnable.Output{RunID: ectx.RunID, SessionID: sessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
			}
			factory.EmitSnapshot(event.KindStepCompleted, toolStep.StepID, nil, toolStep)
		}
	}

	if err := e.store.DeleteSuspendedState(ctx, ectx.RunID); err != nil && err != errs.ErrNoSuspendedState {
		return runnable.Output{RunID: ectx.RunID, SessionID: sessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}

	latest, err := e.store.ListSteps(ctx, sessionID, session.SequenceRange{From: 1})
	if err != nil {
		return runnable.Output{RunID: ectx.RunID, SessionID: sessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}
	return e.continueLoop(ctx, ectx, factory, latest[len(latest)-1].Sequence)
}

// applyConsentResponse records the human's allow/deny decision for
// each pending call's resource before it is re-invoked, so the
// permission manager doesn't raise the same NeedsConsent suspension
// again.
func (e *Engine) applyConsentResponse(missing []model.ToolCall, response *hitl.Response) error {
	perm := e.cfg.Tools.Permission()
	for _, tc := range missing {
		var args map[string]any
		if tc.ArgumentsJSON != "" {
			if err := json.Unmarshal([]byte(tc.ArgumentsJSON), &args); err != nil {
				return fmt.Errorf("resume: decode pending arguments: %w", err)
			}
		}
		resource := tool.ResourceFor(tc.Name, args)
		perm.RecordDecision(e.cfg.UserID, resource, response.Confirmed())
	}
	return nil
}

// continueLoop builds fresh LLM context up to upToSequence and resumes
// the model/tool loop from there.
func (e *Engine) continueLoop(ctx context.Context, ectx *runctx.ExecutionContext, factory *event.Factory, upToSequence int) (runnable.Output, error) {
	messages, err := session.BuildContext(ctx, e.store, ectx.SessionID, upToSequence, e.cfg.ContextOptions)
	if err != nil {
		return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}

	cfg := step.Config{LLM: e.cfg.LLM, Tools: e.cfg.Tools, ToolDefs: e.cfg.ToolDefs, MaxSteps: e.cfg.MaxSteps, UserID: e.cfg.UserID, Recorder: e.cfg.Recorder}
	outcome, err := step.Run(ctx, ectx, factory, e.store, messages, upToSequence+1, cfg)
	if err != nil {
		return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}

	if outcome.Suspension != nil {
		state := &session.SuspendedState{
			RunID:                ectx.RunID,
			InteractionRequestID: outcome.Suspension.Request.ID,
			Request:              outcome.Suspension.Request,
			PendingToolCall:      outcome.Suspension.PendingToolCall,
		}
		if err := e.store.SaveSuspendedState(ctx, state); err != nil {
			return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
		}
		return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusSuspended}, nil
	}

	response := ""
	if outcome.LastAssistantStep != nil {
		response = outcome.LastAssistantStep.Content
	}
	return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Response: response, Status: runnable.StatusCompleted}, nil
}
