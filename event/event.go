// Package event defines the complete set of StepEvent kinds emitted on
// a run's wire and the context-bound factory that stamps every event
// with run identity, depth, and timestamp.
package event

import (
	"time"

	"github.com/agentflow/core/runctx"
)

// Kind enumerates the known event kinds.
type Kind string

const (
	KindRunStarted          Kind = "run_started"
	KindRunCompleted        Kind = "run_completed"
	KindRunFailed           Kind = "run_failed"
	KindRunCancelled        Kind = "run_cancelled"
	KindStepStarted         Kind = "step_started"
	KindStepDelta           Kind = "step_delta"
	KindStepCompleted       Kind = "step_completed"
	KindToolCallStarted     Kind = "tool_call_started"
	KindToolCallCompleted   Kind = "tool_call_completed"
	KindToolCallFailed      Kind = "tool_call_failed"
	KindInteractionRequest  Kind = "interaction_request"
	KindExecutionSuspended  Kind = "execution_suspended"
)

// ToolCallDelta mirrors a single streamed tool-call fragment as carried
// on a step_delta event.
type ToolCallDelta struct {
	Index    int     `json:"index"`
	ID       *string `json:"id,omitempty"`
	Name     *string `json:"function_name,omitempty"`
	Arguments *string `json:"function_arguments,omitempty"`
}

// Event is the common envelope for every emitted event. Kind-specific
// fields live in Data as a loosely typed map (`data.*` / `delta.*` /
// `snapshot`) so the common header fields stay uniform across kinds
// without forcing callers through a type switch per kind.
type Event struct {
	Type        Kind           `json:"type"`
	RunID       string         `json:"run_id"`
	ParentRunID string         `json:"parent_run_id,omitempty"`
	Depth       int            `json:"depth"`
	Timestamp   time.Time      `json:"timestamp"`
	StepID      string         `json:"step_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Delta       *Delta         `json:"delta,omitempty"`
	Snapshot    any            `json:"snapshot,omitempty"`
}

// Delta carries an incremental streaming fragment (step_delta only).
type Delta struct {
	Content          string           `json:"content,omitempty"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCallDelta  `json:"tool_calls,omitempty"`
}

// Factory is bound at construction to an ExecutionContext and stamps
// every event it builds with that context's run/parent/depth identity
// plus a fresh timestamp.
type Factory struct {
	ctx *runctx.ExecutionContext
	now func() time.Time
}

// NewFactory binds a Factory to ctx. nowFn defaults to time.Now; tests
// may override it for deterministic timestamps.
func NewFactory(ctx *runctx.ExecutionContext, nowFn func() time.Time) *Factory {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Factory{ctx: ctx, now: nowFn}
}

func (f *Factory) base(kind Kind, stepID string) Event {
	return Event{
		Type:        kind,
		RunID:       f.ctx.RunID,
		ParentRunID: f.ctx.ParentRunID,
		Depth:       f.ctx.Depth,
		Timestamp:   f.now(),
		StepID:      stepID,
	}
}

// Emit constructs and writes an event with the given kind, data payload
// and optional step id onto the factory's bound wire.
func (f *Factory) Emit(kind Kind, stepID string, data map[string]any) Event {
	evt := f.base(kind, stepID)
	evt.Data = data
	f.ctx.Wire.Write(evt)
	return evt
}

// EmitDelta writes a step_delta event.
func (f *Factory) EmitDelta(stepID string, delta Delta) Event {
	evt := f.base(KindStepDelta, stepID)
	evt.Delta = &delta
	f.ctx.Wire.Write(evt)
	return evt
}

// EmitSnapshot writes an event carrying a full object snapshot
// (step_completed carries a Step; run_completed may attach one too).
func (f *Factory) EmitSnapshot(kind Kind, stepID string, data map[string]any, snapshot any) Event {
	evt := f.base(kind, stepID)
	evt.Data = data
	evt.Snapshot = snapshot
	f.ctx.Wire.Write(evt)
	return evt
}

// Rewrite patches an event's parent_run_id and depth fields, used by
// the runnable-as-tool adapter and workflow branch forwarders to
// re-stamp a child's events as they cross into a parent's wire. The
// original run_id is preserved — identity of the run that produced the
// event never changes, only its position in the nesting the consumer
// observes.
func Rewrite(evt Event, parentRunID string, depth int) Event {
	evt.ParentRunID = parentRunID
	evt.Depth = depth
	return evt
}
