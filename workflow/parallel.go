package workflow

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agentflow/core/event"
	"github.com/agentflow/core/runctx"
	"github.com/agentflow/core/runnable"
	"github.com/agentflow/core/session"
	"github.com/agentflow/core/template"
)

// Parallel runs its branches concurrently, each on an independent child
// context, then merges their outputs via a template.
type Parallel struct {
	id            string
	store         session.Store
	branches      []Stage
	mergeTemplate string
	// Strict, when true, cancels the remaining branches as soon as one
	// fails instead of waiting for all of them to finish.
	Strict bool
}

// NewParallel constructs a Parallel operator.
func NewParallel(id string, store session.Store, branches []Stage, mergeTemplate string) *Parallel {
	return &Parallel{id: id, store: store, branches: branches, mergeTemplate: mergeTemplate}
}

func (p *Parallel) ID() string { return p.id }

func (p *Parallel) Run(ctx context.Context, input string, ectx *runctx.ExecutionContext) (runnable.Output, error) {
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

	// A group-local abort signal, derived from the run's own abort
	// signal, so a top-down abort still reaches every branch but one
	// branch's strict-mode failure only cancels its siblings, not the
	// rest of the run tree.
	groupAbort := runctx.NewAbortSignal(ectx.Abort.Context())

	// branchEnv is each branch's input: the env as it stood before any
	// branch started, not the accumulating merge env below. Branches
	// run concurrently and never see each other's output -- that's what
	// Pipeline is for -- so this is read once, before any goroutine
	// starts, and never touched again.
	branchEnv := template.Env{"input": input}

	env := template.Env{"input": input}
	var mu sync.Mutex
	var suspended *runnable.Output
	var totalMetrics session.Metrics

	g, gctx := new(errgroup.Group), ctx
	if p.Strict {
		g, gctx = errgroup.WithContext(ctx)
	}
	for _, stage := range p.branches {
		stage := stage
		g.Go(func() error {
			rendered := template.Render(stage.Input, branchEnv)
			out, metrics, err := runStageMetered(gctx, ectx, p.store, factory, stage, rendered, groupAbort)
			if err != nil {
				if p.Strict {
					groupAbort.Set("branch " + stage.ID + " failed")
				}
				return err
			}
			mu.Lock()
			if out.Status == runnable.StatusSuspended {
				o := out
				suspended = &o
			} else {
				env = envWithOutput(env, stage.ID, out.Response)
				totalMetrics.Accumulate(metrics.Usage)
			}
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		finishRun(ctx, p.store, factory, ectx, session.StatusFailed, "", totalMetrics, err)
		return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}
	if suspended != nil {
		_ = p.store.SaveRun(ctx, &session.Run{RunID: ectx.RunID, SessionID: ectx.SessionID, RunnableID: p.id, Status: session.StatusSuspended, ParentRunID: ectx.ParentRunID, Depth: ectx.Depth})
		return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusSuspended}, nil
	}

	response := template.Render(p.mergeTemplate, env)
	finishRun(ctx, p.store, factory, ectx, session.StatusCompleted, response, totalMetrics, nil)
	return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Response: response, Status: runnable.StatusCompleted}, nil
}
