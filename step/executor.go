package step

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/agentflow/core/event"
	"github.com/agentflow/core/hitl"
	"github.com/agentflow/core/model"
	"github.com/agentflow/core/observability"
	"github.com/agentflow/core/runctx"
	"github.com/agentflow/core/session"
	"github.com/agentflow/core/tool"
)

// Config parameterizes one Run invocation of the step executor.
type Config struct {
	LLM      model.LLM
	Tools    *tool.Executor
	ToolDefs []model.ToolDefinition
	MaxSteps int
	UserID   string
	// Recorder, if set, receives one TraceRecord per model call.
	Recorder *observability.Recorder
}

// Outcome summarizes why the loop stopped.
type Outcome struct {
	LastAssistantStep *session.Step
	NextSequence      int
	Suspension        *hitl.SuspendExecution
	BudgetExhausted   bool
	Metrics           model.Usage
	ToolCalls         int
	Messages          []model.Message // final message list, for a termination-summary follow-up call
}

// Run drives one run's model-call/tool-call loop: issue a model call,
// stream chunks accumulating content/reasoning/tool-call fragments,
// persist and emit the assistant step, then — unless the model
// returned no tool calls — execute the tool batch, persist a tool step
// per result in call order, and loop. It stops when the model returns
// no tool calls, the step budget is exhausted, a tool call raises a
// consent suspension, or the abort signal trips.
//
// The assistant step's projected message is appended to the running
// `messages` list immediately after it is persisted, before any
// tool-step messages are appended, so an assistant message with
// tool_calls is always immediately followed by its own tool results —
// matching both the context-builder's grouping invariant and every
// real LLM wire format, which requires the assistant's tool_calls
// message to precede its tool results.
func Run(ctx context.Context, ectx *runctx.ExecutionContext, factory *event.Factory, store session.Store, messages []model.Message, startSequence int, cfg Config) (*Outcome, error) {
	seq := startSequence
	budget := cfg.MaxSteps
	if budget <= 0 {
		budget = 1
	}
	var totalUsage model.Usage
	toolCallCount := 0

	for budget > 0 {
		if ectx.Abort.Aborted() {
			return &Outcome{NextSequence: seq, Metrics: totalUsage, ToolCalls: toolCallCount, Messages: messages}, nil
		}

		assistantStepID := uuid.NewString()
		factory.Emit(event.KindStepStarted, assistantStepID, map[string]any{"sequence": seq, "role": string(session.RoleAssistant)})

		acc := NewAccumulator()
		var contentBuf, reasoningBuf string
		var metrics model.Usage
		callStarted := time.Now()

		chunks, err := cfg.LLM.Stream(ectx.Abort.Context(), model.Request{Messages: messages, Tools: cfg.ToolDefs})
		if err != nil {
			return nil, fmt.Errorf("step executor: model stream: %w", err)
		}
		for chunk := range chunks {
			if chunk.ContentDelta != "" {
				contentBuf += chunk.ContentDelta
				factory.EmitDelta(assistantStepID, event.Delta{Content: chunk.ContentDelta})
			}
			if chunk.ReasoningDelta != "" {
				reasoningBuf += chunk.ReasoningDelta
				factory.EmitDelta(assistantStepID, event.Delta{ReasoningContent: chunk.ReasoningDelta})
			}
			for _, frag := range chunk.ToolCallFragments {
				acc.Merge(frag)
				factory.EmitDelta(assistantStepID, event.Delta{ToolCalls: []event.ToolCallDelta{toEventDelta(frag)}})
			}
			if chunk.Usage != nil {
				metrics.Accumulate(*chunk.Usage)
			}
			if ectx.Abort.Aborted() {
				break
			}
		}

		toolCalls := acc.Finalize()
		assistantStep := &session.Step{
			StepID:           assistantStepID,
			SessionID:        ectx.SessionID,
			RunID:            ectx.RunID,
			Sequence:         seq,
			Role:             session.RoleAssistant,
			Content:          contentBuf,
			ReasoningContent: reasoningBuf,
			ToolCalls:        toolCalls,
			Metrics:          session.Metrics{Usage: metrics},
		}
		if err := store.SaveStep(ectx.Abort.Context(), assistantStep); err != nil {
			return nil, fmt.Errorf("step executor: save assistant step: %w", err)
		}
		factory.EmitSnapshot(event.KindStepCompleted, assistantStepID, nil, assistantStep)
		seq++
		totalUsage.Accumulate(metrics)
		if cfg.Recorder != nil {
			_ = cfg.Recorder.RecordLLMCall(ectx.Abort.Context(), ectx.SessionID, observability.TraceRecord{
				RunID:        ectx.RunID,
				StepSequence: assistantStep.Sequence,
				ModelName:    cfg.LLM.Name(),
				InputTokens:  metrics.InputTokens,
				OutputTokens: metrics.OutputTokens,
				Duration:     time.Since(callStarted),
				StartedAt:    callStarted,
			})
		}
		messages = append(messages, projectStep(assistantStep))

		if len(toolCalls) == 0 {
			return &Outcome{LastAssistantStep: assistantStep, NextSequence: seq, Metrics: totalUsage, ToolCalls: toolCallCount, Messages: messages}, nil
		}
		toolCallCount += len(toolCalls)

		results := cfg.Tools.ExecuteBatch(ectx.Abort.Context(), ectx, factory, cfg.UserID, toolCalls)

		for _, r := range results {
			if r.Kind == tool.KindNeedsConsent {
				slog.Debug("step executor: suspending on tool consent", "run_id", ectx.RunID, "sequence", seq)
				return &Outcome{LastAssistantStep: assistantStep, NextSequence: seq, Suspension: r.Suspension, Metrics: totalUsage, ToolCalls: toolCallCount, Messages: messages}, nil
			}
		}

		for _, r := range results {
			toolStep := &session.Step{
				StepID:         uuid.NewString(),
				SessionID:      ectx.SessionID,
				RunID:          ectx.RunID,
				Sequence:       seq,
				Role:           session.RoleTool,
				Content:        r.Content,
				ContentForUser: r.ContentForUser,
				ToolCallID:     r.ToolCallID,
				Name:           r.ToolName,
			}
			if err := store.SaveStep(ectx.Abort.Context(), toolStep); err != nil {
				return nil, fmt.Errorf("step executor: save tool step: %w", err)
			}
			factory.EmitSnapshot(event.KindStepCompleted, toolStep.StepID, nil, toolStep)
			seq++
			messages = append(messages, projectStep(toolStep))
		}

		budget--
	}

	return &Outcome{NextSequence: seq, BudgetExhausted: true, Metrics: totalUsage, ToolCalls: toolCallCount, Messages: messages}, nil
}

func projectStep(st *session.Step) model.Message {
	return model.Message{
		Role:             string(st.Role),
		Content:          st.Content,
		ReasoningContent: st.ReasoningContent,
		ToolCallID:       st.ToolCallID,
		Name:             st.Name,
		ToolCalls:        st.ToolCalls,
	}
}

func toEventDelta(f model.ToolCallFragment) event.ToolCallDelta {
	return event.ToolCallDelta{Index: f.Index, ID: f.ID, Name: f.Name, Arguments: f.Arguments}
}
