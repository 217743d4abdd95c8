// Package session implements the durable session/run/step data model,
// the session store contract, and the context builder that projects a
// persisted step sequence into an LLM message list.
package session

import (
	"time"

	"github.com/agentflow/core/model"
)

// Status is a Run's lifecycle state.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusSuspended Status = "suspended"
)

// Role is a Step's role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Session is a durable conversation surface. It lives forever until
// deleted and is the scope of step sequencing.
type Session struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	AgentID   string    `json:"agent_id,omitempty"`
}

// Metrics aggregates token usage and wall-clock duration.
type Metrics struct {
	model.Usage
	DurationMS int64 `json:"duration_ms"`
}

// Run is one invocation of a runnable.
type Run struct {
	RunID         string    `json:"run_id"`
	SessionID     string    `json:"session_id"`
	RunnableID    string    `json:"runnable_id"`
	Status        Status    `json:"status"`
	StartSequence int       `json:"start_sequence"`
	EndSequence   int       `json:"end_sequence"`
	ParentRunID   string    `json:"parent_run_id,omitempty"`
	Depth         int       `json:"depth"`
	Metrics       Metrics   `json:"metrics"`
	Response      string    `json:"response,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Step is one immutable turn in a session.
type Step struct {
	StepID           string           `json:"step_id"`
	SessionID        string           `json:"session_id"`
	RunID            string           `json:"run_id"`
	Sequence         int              `json:"sequence"`
	Role             Role             `json:"role"`
	Content          string           `json:"content,omitempty"`
	ContentForUser   string           `json:"content_for_user,omitempty"`
	ReasoningContent string           `json:"reasoning_content,omitempty"`
	ToolCallID       string           `json:"tool_call_id,omitempty"`
	Name             string           `json:"name,omitempty"`
	ToolCalls        []model.ToolCall `json:"tool_calls,omitempty"`
	Metrics          Metrics          `json:"metrics"`
}

// SuspendedState is the durable record of a run paused pending human
// input, keyed by run id.
type SuspendedState struct {
	RunID                string         `json:"run_id"`
	InteractionRequestID  string         `json:"interaction_request_id"`
	Request              any            `json:"interaction_request"`
	PendingToolCall       model.ToolCall `json:"pending_tool_call"`
	SerializedContext     []byte         `json:"serialized_context"`
	SuspendedAt           time.Time      `json:"suspended_at"`
}

// InteractionResponse records a human's response to a suspension.
type InteractionResponse struct {
	RequestID   string    `json:"request_id"`
	Type        string    `json:"type"`
	Payload     any       `json:"payload"`
	RespondedAt time.Time `json:"responded_at"`
}

// SequenceRange is an inclusive [From, To] step-sequence window; To==0
// means "through the end".
type SequenceRange struct {
	From int
	To   int
}
