package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreQueryOrdersBySequence(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.RecordLLMCall(ctx, "sess-1", TraceRecord{RunID: "run-1", StepSequence: 3, ModelName: "gpt"}))
	require.NoError(t, store.RecordLLMCall(ctx, "sess-1", TraceRecord{RunID: "run-1", StepSequence: 1, ModelName: "gpt"}))
	require.NoError(t, store.RecordLLMCall(ctx, "sess-1", TraceRecord{RunID: "run-1", StepSequence: 2, ModelName: "gpt"}))

	recs, err := store.Query(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, []int{1, 2, 3}, []int{recs[0].StepSequence, recs[1].StepSequence, recs[2].StepSequence})
}

func TestMemoryStoreQueryIsolatesSessions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.RecordLLMCall(ctx, "sess-1", TraceRecord{RunID: "run-1", StepSequence: 1}))
	require.NoError(t, store.RecordLLMCall(ctx, "sess-2", TraceRecord{RunID: "run-2", StepSequence: 1}))

	recs, err := store.Query(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "run-1", recs[0].RunID)
}

func TestMemoryStoreRunSummary(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.RunSummary(ctx, "run-1")
	require.NoError(t, err)
	require.False(t, ok)

	summary := UsageSummary{InputTokens: 10, OutputTokens: 5, ToolCalls: 2, Duration: time.Second}
	require.NoError(t, store.RecordRun(ctx, "sess-1", "run-1", summary))

	got, ok, err := store.RunSummary(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 15, got.TotalTokens())
	require.Equal(t, summary, got)
}

func TestUsageSummaryAdd(t *testing.T) {
	var total UsageSummary
	total.Add(UsageSummary{InputTokens: 1, OutputTokens: 2, ToolCalls: 1, Duration: time.Millisecond})
	total.Add(UsageSummary{InputTokens: 3, OutputTokens: 4, ToolCalls: 2, Duration: time.Millisecond})

	require.Equal(t, 4, total.InputTokens)
	require.Equal(t, 6, total.OutputTokens)
	require.Equal(t, 3, total.ToolCalls)
	require.Equal(t, 2*time.Millisecond, total.Duration)
	require.Equal(t, 10, total.TotalTokens())
}
