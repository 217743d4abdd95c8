package workflow

import (
	"context"

	"github.com/agentflow/core/event"
	"github.com/agentflow/core/runctx"
	"github.com/agentflow/core/runnable"
	"github.com/agentflow/core/session"
	"github.com/agentflow/core/template"
)

// Pipeline runs stages in order, piping each stage's templated input
// through the prior stages' outputs.
type Pipeline struct {
	id             string
	store          session.Store
	stages         []Stage
	outputTemplate string // empty means "last non-skipped stage's response"
}

// NewPipeline constructs a Pipeline. outputTemplate, if non-empty, is
// rendered against the final env instead of using the last stage's
// response verbatim.
func NewPipeline(id string, store session.Store, stages []Stage, outputTemplate string) *Pipeline {
	return &Pipeline{id: id, store: store, stages: stages, outputTemplate: outputTemplate}
}

func (p *Pipeline) ID() string { return p.id }

func (p *Pipeline) Run(ctx context.Context, input string, ectx *runctx.ExecutionContext) (runnable.Output, error) {
	if err := depthCheck(ectx); err != nil {
		return runnable.Output{Status: runnable.StatusFailed, Error: err.Error()}, err
	}
	if err := ensureSession(ctx, p.store, ectx, p.id); err != nil {
		return runnable.Output{Status: runnable.StatusFailed, Error: err.Error()}, err
	}

	factory := event.NewFactory(ectx, nil)
	if err := newRun(ctx, p.store, factory, ectx, p.id, input); err != nil {
		return runnable.Output{SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}

	env := template.Env{"input": input}
	lastResponse := ""
	var totalMetrics session.Metrics

	for _, stage := range p.stages {
		if ectx.Abort.Aborted() {
			finishRun(ctx, p.store, factory, ectx, session.StatusCancelled, lastResponse, totalMetrics, nil)
			return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusCancelled, Error: ectx.Abort.Reason()}, nil
		}

		run, err := template.EvalCondition(stage.Condition, env)
		if err != nil {
			finishRun(ctx, p.store, factory, ectx, session.StatusFailed, "", totalMetrics, err)
			return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
		}
		if !run {
			factory.Emit(event.KindStepCompleted, "", map[string]any{"stage": stage.ID, "skipped": true})
			continue
		}

		rendered := template.Render(stage.Input, env)
		out, metrics, err := runStageMetered(ctx, ectx, p.store, factory, stage, rendered, nil)
		if err != nil {
			finishRun(ctx, p.store, factory, ectx, session.StatusFailed, "", totalMetrics, err)
			return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
		}
		if out.Status == runnable.StatusSuspended {
			_ = p.store.SaveRun(ctx, &session.Run{RunID: ectx.RunID, SessionID: ectx.SessionID, RunnableID: p.id, Status: session.StatusSuspended, ParentRunID: ectx.ParentRunID, Depth: ectx.Depth})
			return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusSuspended}, nil
		}

		totalMetrics.Accumulate(metrics.Usage)
		lastResponse = out.Response
		env = envWithOutput(env, stage.ID, out.Response)
	}

	response := lastResponse
	if p.outputTemplate != "" {
		response = template.Render(p.outputTemplate, env)
	}
	finishRun(ctx, p.store, factory, ectx, session.StatusCompleted, response, totalMetrics, nil)
	return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Response: response, Status: runnable.StatusCompleted}, nil
}
