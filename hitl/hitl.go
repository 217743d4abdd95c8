// Package hitl implements the human-in-the-loop interaction layer:
// request/response types and the SuspendExecution control-flow signal
// that unwinds the step executor to the runner boundary without losing
// state.
package hitl

import (
	"time"

	"github.com/agentflow/core/model"
)

// RequestKind enumerates the kinds of interaction a run can request.
type RequestKind string

const (
	KindConfirm RequestKind = "confirm"
)

// InteractionRequest is raised when a tool call needs explicit consent.
type InteractionRequest struct {
	ID       string         `json:"id"`
	Kind     RequestKind    `json:"kind"`
	Resource string         `json:"resource"`
	Prompt   string         `json:"prompt"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// Response is the human's answer to an InteractionRequest.
type Response struct {
	RequestID string    `json:"request_id"`
	Type      string    `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	RespondedAt time.Time `json:"responded_at"`
}

// Confirmed reports whether a confirm-kind response approved the
// request. Defaults to false (deny) if the payload doesn't carry an
// explicit "confirmed" boolean.
func (r Response) Confirmed() bool {
	if r.Payload == nil {
		return false
	}
	v, ok := r.Payload["confirmed"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// SuspendExecution is a typed, non-error control-flow signal: it
// satisfies the error interface purely so it can travel up an ordinary
// Go call stack via a normal error return, but callers (the agent
// runner) must check for it with errors.As and treat it as "pause, not
// fail". It carries everything needed to resume: the interaction
// request, the tool call that couldn't proceed, and identity of the
// execution context that raised it.
type SuspendExecution struct {
	Request         *InteractionRequest
	PendingToolCall model.ToolCall
	RunID           string
	SessionID       string
}

func (s *SuspendExecution) Error() string {
	return "execution suspended pending interaction: " + s.Request.ID
}
