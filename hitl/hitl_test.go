package hitl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentflow/core/model"
)

func TestResponseConfirmedTrue(t *testing.T) {
	r := Response{Payload: map[string]any{"confirmed": true}}
	require.True(t, r.Confirmed())
}

func TestResponseConfirmedDefaultsFalse(t *testing.T) {
	require.False(t, (Response{}).Confirmed())
	require.False(t, (Response{Payload: map[string]any{}}).Confirmed())
	require.False(t, (Response{Payload: map[string]any{"confirmed": "yes"}}).Confirmed())
}

func TestSuspendExecutionSatisfiesErrorAndErrorsAs(t *testing.T) {
	req := &InteractionRequest{ID: "req-1", Kind: KindConfirm, Resource: "shell(rm *)"}
	var err error = &SuspendExecution{
		Request:         req,
		PendingToolCall: model.ToolCall{ID: "call-1", Name: "shell"},
		RunID:           "run-1",
		SessionID:       "sess-1",
	}

	var target *SuspendExecution
	require.True(t, errors.As(err, &target))
	require.Equal(t, "req-1", target.Request.ID)
	require.Contains(t, err.Error(), "req-1")
}
