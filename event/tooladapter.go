package event

import (
	"time"

	"github.com/agentflow/core/hitl"
)

// The methods below let *Factory satisfy tool.Events directly, so the
// step executor can hand its event factory straight to the tool
// executor without an adapter type.

func (f *Factory) ToolCallStarted(toolCallID, toolName string, args map[string]any) {
	f.Emit(KindToolCallStarted, "", map[string]any{
		"tool_name":    toolName,
		"tool_call_id": toolCallID,
		"args":         args,
	})
}

func (f *Factory) ToolCallCompleted(toolCallID string, duration time.Duration) {
	f.Emit(KindToolCallCompleted, "", map[string]any{
		"tool_call_id": toolCallID,
		"duration_ms":  duration.Milliseconds(),
	})
}

func (f *Factory) ToolCallFailed(toolCallID string, err error, retryable bool) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	f.Emit(KindToolCallFailed, "", map[string]any{
		"tool_call_id": toolCallID,
		"error":        msg,
		"retryable":    retryable,
	})
}

func (f *Factory) InteractionRequested(req *hitl.InteractionRequest) {
	f.Emit(KindInteractionRequest, "", map[string]any{
		"interaction_request": req,
	})
}

func (f *Factory) ExecutionSuspended(interactionRequestID string) {
	f.Emit(KindExecutionSuspended, "", map[string]any{
		"interaction_request_id": interactionRequestID,
	})
}
