package dag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentflow/core/config"
	"github.com/agentflow/core/errs"
)

func agentWithTools(name, model string, toolAgents ...string) *config.Component {
	var tools []any
	for _, t := range toolAgents {
		tools = append(tools, map[string]any{"type": "agent_tool", "agent": t})
	}
	return &config.Component{
		Type: config.TypeAgent, Name: name,
		Params: map[string]any{"model": model, "tools": tools},
	}
}

func TestLayersOrdersDependenciesFirst(t *testing.T) {
	components := []*config.Component{
		{Type: config.TypeModel, Name: "gpt"},
		agentWithTools("helper", "gpt"),
		agentWithTools("main", "gpt", "helper"),
	}
	g, err := Build(components)
	require.NoError(t, err)

	layers, err := g.Layers()
	require.NoError(t, err)
	require.Len(t, layers, 3)
	require.Equal(t, config.Key{Type: config.TypeModel, Name: "gpt"}, layers[0][0])
	require.Contains(t, layers[1], config.Key{Type: config.TypeAgent, Name: "helper"})
	require.Contains(t, layers[2], config.Key{Type: config.TypeAgent, Name: "main"})
}

func TestLayersDetectsCycle(t *testing.T) {
	components := []*config.Component{
		agentWithTools("a1", "gpt", "a2"),
		agentWithTools("a2", "gpt", "a1"),
		{Type: config.TypeModel, Name: "gpt"},
	}
	g, err := Build(components)
	require.NoError(t, err)

	_, err = g.Layers()
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrCycle))
	require.Contains(t, err.Error(), "a1")
	require.Contains(t, err.Error(), "a2")
}

func TestAffectedComputesTransitiveDependents(t *testing.T) {
	components := []*config.Component{
		{Type: config.TypeModel, Name: "gpt"},
		agentWithTools("helper", "gpt"),
		agentWithTools("main", "gpt", "helper"),
	}
	g, err := Build(components)
	require.NoError(t, err)

	affected := g.Affected(config.Key{Type: config.TypeModel, Name: "gpt"})
	require.ElementsMatch(t, []config.Key{
		{Type: config.TypeAgent, Name: "helper"},
		{Type: config.TypeAgent, Name: "main"},
	}, affected)
}

func TestReverseTopoOrderDestroysCallersBeforeCallees(t *testing.T) {
	components := []*config.Component{
		{Type: config.TypeModel, Name: "gpt"},
		agentWithTools("helper", "gpt"),
		agentWithTools("main", "gpt", "helper"),
	}
	g, err := Build(components)
	require.NoError(t, err)

	affected := g.Affected(config.Key{Type: config.TypeModel, Name: "gpt"})
	order := g.ReverseTopoOrder(affected)
	require.Equal(t, config.Key{Type: config.TypeAgent, Name: "main"}, order[0])
	require.Equal(t, config.Key{Type: config.TypeAgent, Name: "helper"}, order[1])
}

func TestLayersReportsUnresolvedDependency(t *testing.T) {
	components := []*config.Component{
		agentWithTools("main", "does-not-exist"),
	}
	g, err := Build(components)
	require.NoError(t, err)

	_, err = g.Layers()
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrUnresolvedDependency))
}
