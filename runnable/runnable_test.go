package runnable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentflow/core/runctx"
)

type fakeRunnable struct{ id string }

func (f fakeRunnable) ID() string { return f.id }

func (f fakeRunnable) Run(ctx context.Context, input string, ectx *runctx.ExecutionContext) (Output, error) {
	return Output{RunID: ectx.RunID, SessionID: ectx.SessionID, Response: input, Status: StatusCompleted}, nil
}

func TestFakeRunnableSatisfiesContract(t *testing.T) {
	var r Runnable = fakeRunnable{id: "r1"}
	require.Equal(t, "r1", r.ID())

	ectx := &runctx.ExecutionContext{RunID: "run-1", SessionID: "sess-1"}
	out, err := r.Run(context.Background(), "hi", ectx)
	require.NoError(t, err)
	require.Equal(t, "hi", out.Response)
	require.Equal(t, StatusCompleted, out.Status)
}
