package workflow

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/agentflow/core/event"
	"github.com/agentflow/core/runctx"
	"github.com/agentflow/core/runnable"
	"github.com/agentflow/core/session"
	"github.com/agentflow/core/template"
)

// Loop repeats its stages sequentially while a condition holds, bounded
// by MaxIterations.
type Loop struct {
	id            string
	store         session.Store
	stages        []Stage
	condition     string
	maxIterations int
}

// NewLoop constructs a Loop operator. maxIterations <= 0 means
// unbounded (the condition alone must eventually turn false).
func NewLoop(id string, store session.Store, stages []Stage, condition string, maxIterations int) *Loop {
	return &Loop{id: id, store: store, stages: stages, condition: condition, maxIterations: maxIterations}
}

func (l *Loop) ID() string { return l.id }

func (l *Loop) Run(ctx context.Context, input string, ectx *runctx.ExecutionContext) (runnable.Output, error) {
	if err := depthCheck(ectx); err != nil {
		return runnable.Output{Status: runnable.StatusFailed, Error: err.Error()}, err
	}
	if err := ensureSession(ctx, l.store, ectx, l.id); err != nil {
		return runnable.Output{Status: runnable.StatusFailed, Error: err.Error()}, err
	}

	factory := event.NewFactory(ectx, nil)
	if err := newRun(ctx, l.store, factory, ectx, l.id, input); err != nil {
		return runnable.Output{SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}

	env := template.Env{"input": input}
	var totalMetrics session.Metrics

	for iteration := 0; l.maxIterations <= 0 || iteration < l.maxIterations; iteration++ {
		if ectx.Abort.Aborted() {
			finishRun(ctx, l.store, factory, ectx, session.StatusCancelled, "", totalMetrics, nil)
			return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusCancelled, Error: ectx.Abort.Reason()}, nil
		}

		for _, stage := range l.stages {
			rendered := template.Render(stage.Input, env)
			out, metrics, err := runStageMetered(ctx, ectx, l.store, factory, stage, rendered, nil)
			if err != nil {
				finishRun(ctx, l.store, factory, ectx, session.StatusFailed, "", totalMetrics, err)
				return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
			}
			if out.Status == runnable.StatusSuspended {
				_ = l.store.SaveRun(ctx, &session.Run{RunID: ectx.RunID, SessionID: ectx.SessionID, RunnableID: l.id, Status: session.StatusSuspended, ParentRunID: ectx.ParentRunID, Depth: ectx.Depth})
				return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusSuspended}, nil
			}
			totalMetrics.Accumulate(metrics.Usage)
			env = envWithOutput(env, stage.ID, out.Response)
		}

		env["iteration"] = strconv.Itoa(iteration + 1)
		keepGoing, err := template.EvalCondition(l.condition, env)
		if err != nil {
			finishRun(ctx, l.store, factory, ectx, session.StatusFailed, "", totalMetrics, err)
			return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
		}
		if !keepGoing {
			break
		}
	}

	snapshot, _ := json.Marshal(env)
	response := string(snapshot)
	finishRun(ctx, l.store, factory, ectx, session.StatusCompleted, response, totalMetrics, nil)
	return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Response: response, Status: runnable.StatusCompleted}, nil
}
