// Package agent implements the agent runner: the state machine that
// takes one user input, drives the step executor's model/tool loop to
// completion, suspension, or failure, and persists a Run record
// describing the outcome.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentflow/core/errs"
	"github.com/agentflow/core/event"
	"github.com/agentflow/core/model"
	"github.com/agentflow/core/observability"
	"github.com/agentflow/core/permission"
	"github.com/agentflow/core/runctx"
	"github.com/agentflow/core/runnable"
	"github.com/agentflow/core/session"
	"github.com/agentflow/core/step"
	"github.com/agentflow/core/tool"
)

// Config parameterizes one Agent instance.
type Config struct {
	Name         string
	LLM          model.LLM
	Tools        tool.Map
	Permission   *permission.Manager
	Classifier   tool.Classifier
	SystemPrompt string
	// MaxSteps bounds how many model-call/tool-call iterations one Run
	// performs before giving up and, if EnableTerminationSummary is set,
	// issuing one final no-tools call asking the model to summarize
	// where it left off.
	MaxSteps                 int
	EnableTerminationSummary bool
	ToolConcurrency          int64
	ContextOptions           session.ContextBuilderOptions
	// Recorder, if set, receives a TraceRecord per model call and a
	// UsageSummary when the run finishes.
	Recorder *observability.Recorder
}

// Agent runs a single configured model/tool-set/system-prompt
// combination against a session, implementing runnable.Runnable.
type Agent struct {
	id    string
	cfg   Config
	store session.Store
	tools *tool.Executor
}

// New constructs an Agent identified by id, persisting through store.
func New(id string, cfg Config, store session.Store) *Agent {
	perm := cfg.Permission
	if perm == nil {
		perm = permission.NewManager()
	}
	ex := tool.NewExecutor(cfg.Tools, perm, cfg.Classifier)
	ex.ConcurrencyLimit = cfg.ToolConcurrency
	if cfg.ContextOptions.SystemPrompt == "" {
		cfg.ContextOptions.SystemPrompt = cfg.SystemPrompt
	}
	return &Agent{id: id, cfg: cfg, store: store, tools: ex}
}

func (a *Agent) ID() string { return a.id }

// Run executes one agent turn. If ectx.SessionID is empty a new session
// is created and ectx.SessionID is set to it before returning. ectx.RunID
// must already be populated by the caller; Run does not allocate it,
// since the caller — a direct top-level invocation or the
// runnable-as-tool adapter for a nested call — is the one that knows
// whether this run is a root run or a child of another.
func (a *Agent) Run(ctx context.Context, input string, ectx *runctx.ExecutionContext) (runnable.Output, error) {
	if ectx.DepthExceeded() {
		return runnable.Output{Status: runnable.StatusFailed, Error: errs.ErrDepthExceeded.Error()}, errs.ErrDepthExceeded
	}

	stop := linkAbort(ctx, ectx)
	defer stop()

	if ectx.SessionID == "" {
		sess, err := a.store.CreateSession(ectx.Abort.Context(), a.id)
		if err != nil {
			return runnable.Output{Status: runnable.StatusFailed, Error: err.Error()}, err
		}
		ectx.SessionID = sess.SessionID
	}

	release, err := a.store.TryAcquireSession(ectx.Abort.Context(), ectx.SessionID)
	if err != nil {
		return runnable.Output{SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}
	defer release()

	factory := event.NewFactory(ectx, nil)
	factory.Emit(event.KindRunStarted, "", map[string]any{"runnable_id": a.id, "input": input, "query": input, "session_id": ectx.SessionID})

	startSeq, err := a.store.NextSequence(ectx.Abort.Context(), ectx.SessionID)
	if err != nil {
		return a.fail(factory, ectx, err)
	}
	userStep := &session.Step{
		StepID:    uuid.NewString(),
		SessionID: ectx.SessionID,
		RunID:     ectx.RunID,
		Sequence:  startSeq,
		Role:      session.RoleUser,
		Content:   input,
	}
	if err := a.store.SaveStep(ectx.Abort.Context(), userStep); err != nil {
		return a.fail(factory, ectx, err)
	}
	factory.EmitSnapshot(event.KindStepCompleted, userStep.StepID, nil, userStep)

	run := &session.Run{
		RunID:         ectx.RunID,
		SessionID:     ectx.SessionID,
		RunnableID:    a.id,
		Status:        session.StatusRunning,
		StartSequence: startSeq,
		ParentRunID:   ectx.ParentRunID,
		Depth:         ectx.Depth,
	}
	if err := a.store.SaveRun(ectx.Abort.Context(), run); err != nil {
		return a.fail(factory, ectx, err)
	}

	messages, err := session.BuildContext(ectx.Abort.Context(), a.store, ectx.SessionID, startSeq, a.cfg.ContextOptions)
	if err != nil {
		return a.fail(factory, ectx, err)
	}

	cfg := step.Config{
		LLM:      a.cfg.LLM,
		Tools:    a.tools,
		ToolDefs: toolDefs(a.cfg.Tools),
		MaxSteps: a.cfg.MaxSteps,
		Recorder: a.cfg.Recorder,
	}

	var finishRun func(observability.UsageSummary)
	if a.cfg.Recorder != nil {
		finishRun = a.cfg.Recorder.StartRun(ectx.Abort.Context(), ectx.SessionID, ectx.RunID)
	}

	outcome, err := step.Run(ectx.Abort.Context(), ectx, factory, a.store, messages, startSeq+1, cfg)
	if err != nil {
		if finishRun != nil {
			finishRun(observability.UsageSummary{})
		}
		return a.fail(factory, ectx, err)
	}

	if ectx.Abort.Aborted() && outcome.Suspension == nil {
		run.Status = session.StatusCancelled
		run.EndSequence = outcome.NextSequence - 1
		run.Metrics = session.Metrics{Usage: outcome.Metrics}
		_ = a.store.SaveRun(ectx.Abort.Context(), run)
		factory.Emit(event.KindRunCancelled, "", map[string]any{"reason": ectx.Abort.Reason()})
		if finishRun != nil {
			finishRun(observability.UsageSummary{InputTokens: outcome.Metrics.InputTokens, OutputTokens: outcome.Metrics.OutputTokens, ToolCalls: outcome.ToolCalls})
		}
		return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusCancelled, Error: ectx.Abort.Reason()}, nil
	}

	if outcome.Suspension != nil {
		slog.Info("agent: run suspended pending human input", "agent_id", a.id, "run_id", ectx.RunID, "request_id", outcome.Suspension.Request.ID)
		if finishRun != nil {
			finishRun(observability.UsageSummary{InputTokens: outcome.Metrics.InputTokens, OutputTokens: outcome.Metrics.OutputTokens, ToolCalls: outcome.ToolCalls})
		}
		return a.suspend(ectx, run, outcome)
	}

	if outcome.BudgetExhausted && a.cfg.EnableTerminationSummary {
		summary, summErr := a.terminationSummary(ectx, factory, outcome)
		if summErr == nil {
			outcome.LastAssistantStep = summary
			outcome.NextSequence++
		}
	}

	response := ""
	if outcome.LastAssistantStep != nil {
		response = outcome.LastAssistantStep.Content
	}

	run.Status = session.StatusCompleted
	run.EndSequence = outcome.NextSequence - 1
	run.Metrics = session.Metrics{Usage: outcome.Metrics}
	run.Response = response
	if err := a.store.SaveRun(ectx.Abort.Context(), run); err != nil {
		if finishRun != nil {
			finishRun(observability.UsageSummary{InputTokens: outcome.Metrics.InputTokens, OutputTokens: outcome.Metrics.OutputTokens, ToolCalls: outcome.ToolCalls})
		}
		return a.fail(factory, ectx, err)
	}
	factory.EmitSnapshot(event.KindRunCompleted, "", map[string]any{"response": response, "metrics": run.Metrics}, run)
	slog.Debug("agent: run completed", "agent_id", a.id, "run_id", ectx.RunID, "steps", outcome.NextSequence-startSeq-1)
	if finishRun != nil {
		finishRun(observability.UsageSummary{InputTokens: outcome.Metrics.InputTokens, OutputTokens: outcome.Metrics.OutputTokens, ToolCalls: outcome.ToolCalls})
	}

	return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Response: response, Status: runnable.StatusCompleted}, nil
}

// terminationSummary issues one final no-tools model call asking the
// model to summarize progress when the step budget runs out before the
// model naturally stops calling tools.
func (a *Agent) terminationSummary(ectx *runctx.ExecutionContext, factory *event.Factory, outcome *step.Outcome) (*session.Step, error) {
	prompt := "The available step budget has been used up. Summarize what has been accomplished so far and what remains."
	messages := append(append([]model.Message{}, outcome.Messages...), model.Message{Role: string(session.RoleUser), Content: prompt})

	summaryCfg := step.Config{LLM: a.cfg.LLM, Tools: a.tools, MaxSteps: 1}
	summaryOutcome, err := step.Run(ectx.Abort.Context(), ectx, factory, a.store, messages, outcome.NextSequence, summaryCfg)
	if err != nil {
		return nil, err
	}
	return summaryOutcome.LastAssistantStep, nil
}

func (a *Agent) suspend(ectx *runctx.ExecutionContext, run *session.Run, outcome *step.Outcome) (runnable.Output, error) {
	susp := outcome.Suspension
	state := &session.SuspendedState{
		RunID:                ectx.RunID,
		InteractionRequestID: susp.Request.ID,
		Request:              susp.Request,
		PendingToolCall:      susp.PendingToolCall,
		SuspendedAt:          time.Now(),
	}
	if err := a.store.SaveSuspendedState(ectx.Abort.Context(), state); err != nil {
		return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}
	run.Status = session.StatusSuspended
	run.EndSequence = outcome.NextSequence - 1
	run.Metrics = session.Metrics{Usage: outcome.Metrics}
	if err := a.store.SaveRun(ectx.Abort.Context(), run); err != nil {
		return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, err
	}
	return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusSuspended}, nil
}

func (a *Agent) fail(factory *event.Factory, ectx *runctx.ExecutionContext, err error) (runnable.Output, error) {
	run := &session.Run{RunID: ectx.RunID, SessionID: ectx.SessionID, RunnableID: a.id, Status: session.StatusFailed, Error: err.Error()}
	_ = a.store.SaveRun(context.Background(), run)
	factory.Emit(event.KindRunFailed, "", map[string]any{"error": err.Error(), "is_fatal": true})
	slog.Error("agent: run failed", "agent_id", a.id, "run_id", ectx.RunID, "error", err)
	return runnable.Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Status: runnable.StatusFailed, Error: err.Error()}, fmt.Errorf("agent %s: %w", a.id, err)
}

func toolDefs(tools tool.Map) []model.ToolDefinition {
	defs := tools.Definitions()
	out := make([]model.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, model.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Schema})
	}
	return out
}

// linkAbort trips ectx.Abort when ctx is cancelled, so a caller
// cancelling the context they passed into Run stops the run the same
// way an explicit Abort.Set call would. It returns a func to release
// the watcher goroutine once Run has finished.
func linkAbort(ctx context.Context, ectx *runctx.ExecutionContext) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ectx.Abort.Set("context cancelled")
		case <-done:
		}
	}()
	return func() { close(done) }
}
