package tool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentflow/core/errs"
	"github.com/agentflow/core/hitl"
	"github.com/agentflow/core/model"
	"github.com/agentflow/core/permission"
	"github.com/agentflow/core/runctx"
)

type recordingEvents struct {
	started   []string
	completed []string
	failed    []string
	requested []*hitl.InteractionRequest
	suspended []string
}

func (r *recordingEvents) ToolCallStarted(id, name string, args map[string]any) {
	r.started = append(r.started, id)
}
func (r *recordingEvents) ToolCallCompleted(id string, d time.Duration) {
	r.completed = append(r.completed, id)
}
func (r *recordingEvents) ToolCallFailed(id string, err error, retryable bool) {
	r.failed = append(r.failed, id)
}
func (r *recordingEvents) InteractionRequested(req *hitl.InteractionRequest) {
	r.requested = append(r.requested, req)
}
func (r *recordingEvents) ExecutionSuspended(interactionRequestID string) {
	r.suspended = append(r.suspended, interactionRequestID)
}

func newExecCtx() *runctx.ExecutionContext {
	return &runctx.ExecutionContext{RunID: "run-1", SessionID: "sess-1", Abort: runctx.NewAbortSignal(context.Background())}
}

func TestExecuteUnknownTool(t *testing.T) {
	e := NewExecutor(Map{}, permission.NewManager(), nil)
	ev := &recordingEvents{}
	res := e.Execute(context.Background(), newExecCtx(), ev, "u1", model.ToolCall{ID: "c1", Name: "nope"})
	require.Equal(t, KindUnknownTool, res.Kind)
	require.ErrorIs(t, res.Err, errs.ErrUnknownTool)
}

func TestExecuteBadArgumentsJSON(t *testing.T) {
	e := NewExecutor(Map{"echo": Echo{}}, permission.NewManager(), nil)
	ev := &recordingEvents{}
	res := e.Execute(context.Background(), newExecCtx(), ev, "u1", model.ToolCall{ID: "c1", Name: "echo", ArgumentsJSON: "{not json"})
	require.Equal(t, KindBadArguments, res.Kind)
}

func TestExecuteSchemaViolation(t *testing.T) {
	e := NewExecutor(Map{"echo": Echo{}}, permission.NewManager(), nil)
	ev := &recordingEvents{}
	res := e.Execute(context.Background(), newExecCtx(), ev, "u1", model.ToolCall{ID: "c1", Name: "echo", ArgumentsJSON: `{}`})
	require.Equal(t, KindBadArguments, res.Kind)
}

func TestExecuteOKAndCachesPureResult(t *testing.T) {
	perm := permission.NewManager()
	perm.RecordDecision("u1", "echo(text=hi)", true)
	e := NewExecutor(Map{"echo": Echo{}}, perm, nil)
	ev := &recordingEvents{}
	tc := model.ToolCall{ID: "c1", Name: "echo", ArgumentsJSON: `{"text":"hi"}`}

	res1 := e.Execute(context.Background(), newExecCtx(), ev, "u1", tc)
	require.Equal(t, KindOK, res1.Kind)
	require.Equal(t, "hi", res1.Content)
	require.False(t, res1.FromCache)

	res2 := e.Execute(context.Background(), newExecCtx(), ev, "u1", tc)
	require.Equal(t, KindOK, res2.Kind)
	require.True(t, res2.FromCache)
}

func TestExecuteDenied(t *testing.T) {
	perm := permission.NewManager()
	perm.RecordDecision("u1", "echo(text=hi)", false)
	e := NewExecutor(Map{"echo": Echo{}}, perm, nil)
	ev := &recordingEvents{}
	res := e.Execute(context.Background(), newExecCtx(), ev, "u1", model.ToolCall{ID: "c1", Name: "echo", ArgumentsJSON: `{"text":"hi"}`})
	require.Equal(t, KindDenied, res.Kind)
	require.ErrorIs(t, res.Err, errs.ErrDenied)
}

func TestExecuteNeedsConsentSuspendsWithoutRunningBody(t *testing.T) {
	e := NewExecutor(Map{"echo": Echo{}}, permission.NewManager(), nil)
	ev := &recordingEvents{}
	res := e.Execute(context.Background(), newExecCtx(), ev, "u1", model.ToolCall{ID: "c1", Name: "echo", ArgumentsJSON: `{"text":"hi"}`})
	require.Equal(t, KindNeedsConsent, res.Kind)
	require.NotNil(t, res.Suspension)
	require.Equal(t, "run-1", res.Suspension.RunID)
	require.Len(t, ev.requested, 1)
	require.Len(t, ev.suspended, 1)
}

func TestExecuteAbortedBeforeBodyRuns(t *testing.T) {
	perm := permission.NewManager()
	perm.RecordDecision("u1", "echo(text=hi)", true)
	e := NewExecutor(Map{"echo": Echo{}}, perm, nil)
	ev := &recordingEvents{}
	ectx := newExecCtx()
	ectx.Abort.Set("cancelled")
	res := e.Execute(context.Background(), ectx, ev, "u1", model.ToolCall{ID: "c1", Name: "echo", ArgumentsJSON: `{"text":"hi"}`})
	require.Equal(t, KindAborted, res.Kind)
}

func TestExecuteToolErrorClassification(t *testing.T) {
	perm := permission.NewManager()
	perm.RecordDecision("u1", "fail()", true)
	e := NewExecutor(Map{"fail": Fail{}}, perm, func(error) bool { return true })
	ev := &recordingEvents{}
	res := e.Execute(context.Background(), newExecCtx(), ev, "u1", model.ToolCall{ID: "c1", Name: "fail"})
	require.Equal(t, KindToolError, res.Kind)
	require.True(t, res.Retryable)
}

func TestExecuteBatchPreservesInputOrder(t *testing.T) {
	perm := permission.NewManager()
	perm.RecordDecision("u1", "echo(text=a)", true)
	perm.RecordDecision("u1", "echo(text=b)", true)
	perm.RecordDecision("u1", "echo(text=c)", true)
	e := NewExecutor(Map{"echo": Echo{}}, perm, nil)
	ev := &recordingEvents{}
	calls := []model.ToolCall{
		{ID: "1", Name: "echo", ArgumentsJSON: `{"text":"a"}`},
		{ID: "2", Name: "echo", ArgumentsJSON: `{"text":"b"}`},
		{ID: "3", Name: "echo", ArgumentsJSON: `{"text":"c"}`},
	}
	results := e.ExecuteBatch(context.Background(), newExecCtx(), ev, "u1", calls)
	require.Len(t, results, 3)
	require.Equal(t, "a", results[0].Content)
	require.Equal(t, "b", results[1].Content)
	require.Equal(t, "c", results[2].Content)
}

func TestResourceForMatchesExecutorInternalResource(t *testing.T) {
	require.Equal(t, "echo(text=hi)", ResourceFor("echo", map[string]any{"text": "hi"}))
}
