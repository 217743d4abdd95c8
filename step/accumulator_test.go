package step

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentflow/core/model"
)

func strptr(s string) *string { return &s }

func TestAccumulatorReassemblesArgumentsInOrder(t *testing.T) {
	a := NewAccumulator()
	a.Merge(model.ToolCallFragment{Index: 0, ID: strptr("call-1"), Name: strptr("echo")})
	a.Merge(model.ToolCallFragment{Index: 0, Arguments: strptr(`{"text":`)})
	a.Merge(model.ToolCallFragment{Index: 0, Arguments: strptr(`"hi"}`), Final: true})

	calls := a.Finalize()
	require.Len(t, calls, 1)
	require.Equal(t, "call-1", calls[0].ID)
	require.Equal(t, "echo", calls[0].Name)
	require.Equal(t, `{"text":"hi"}`, calls[0].ArgumentsJSON)
}

func TestAccumulatorOrdersByIndexRegardlessOfArrivalOrder(t *testing.T) {
	a := NewAccumulator()
	a.Merge(model.ToolCallFragment{Index: 1, ID: strptr("call-2"), Name: strptr("b")})
	a.Merge(model.ToolCallFragment{Index: 0, ID: strptr("call-1"), Name: strptr("a")})

	calls := a.Finalize()
	require.Len(t, calls, 2)
	require.Equal(t, "call-1", calls[0].ID)
	require.Equal(t, "call-2", calls[1].ID)
}

func TestAccumulatorSuppressesArgumentsAfterFinalized(t *testing.T) {
	a := NewAccumulator()
	a.Merge(model.ToolCallFragment{Index: 0, ID: strptr("call-1"), Arguments: strptr("{}"), Final: true})
	a.Merge(model.ToolCallFragment{Index: 0, Arguments: strptr("garbage")})

	calls := a.Finalize()
	require.Equal(t, "{}", calls[0].ArgumentsJSON)
}

func TestAccumulatorLenCountsDistinctIndices(t *testing.T) {
	a := NewAccumulator()
	require.Equal(t, 0, a.Len())
	a.Merge(model.ToolCallFragment{Index: 0})
	a.Merge(model.ToolCallFragment{Index: 0})
	a.Merge(model.ToolCallFragment{Index: 1})
	require.Equal(t, 2, a.Len())
}
