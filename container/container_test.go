package container

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentflow/core/config"
)

type fakeModel struct{ name string }
type fakeAgent struct {
	name  string
	model *fakeModel
}

func modelBuilder(_ context.Context, c *config.Component, _ map[string]any) (any, error) {
	return &fakeModel{name: c.Name}, nil
}

func agentBuilder(_ context.Context, c *config.Component, deps map[string]any) (any, error) {
	modelName, _ := c.Params["model"].(string)
	m, _ := deps[modelName].(*fakeModel)
	return &fakeAgent{name: c.Name, model: m}, nil
}

func newTestContainer() *Container {
	c := New()
	c.RegisterBuilder(config.TypeModel, modelBuilder)
	c.RegisterBuilder(config.TypeAgent, agentBuilder)
	return c
}

func TestBuildAllWiresDependencies(t *testing.T) {
	c := newTestContainer()
	components := []*config.Component{
		{Type: config.TypeModel, Name: "gpt"},
		{Type: config.TypeAgent, Name: "main", Params: map[string]any{"model": "gpt"}},
	}

	require.NoError(t, c.BuildAll(context.Background(), components))

	val, ok := c.Get(config.Key{Type: config.TypeAgent, Name: "main"})
	require.True(t, ok)
	agent := val.(*fakeAgent)
	require.NotNil(t, agent.model)
	require.Equal(t, "gpt", agent.model.name)
}

func TestBuildAllFailsOnMissingBuilder(t *testing.T) {
	c := New()
	components := []*config.Component{{Type: config.TypeModel, Name: "gpt"}}
	err := c.BuildAll(context.Background(), components)
	require.Error(t, err)
}

func TestSaveConfigRebuildsDependents(t *testing.T) {
	c := newTestContainer()
	components := []*config.Component{
		{Type: config.TypeModel, Name: "gpt"},
		{Type: config.TypeAgent, Name: "main", Params: map[string]any{"model": "gpt"}},
	}
	require.NoError(t, c.BuildAll(context.Background(), components))

	var notified []ChangeType
	c.OnChange(func(_ config.Key, change ChangeType) { notified = append(notified, change) })

	require.NoError(t, c.SaveConfig(context.Background(), &config.Component{
		Type: config.TypeModel, Name: "gpt", Description: "updated",
	}))

	val, ok := c.Get(config.Key{Type: config.TypeAgent, Name: "main"})
	require.True(t, ok)
	require.NotNil(t, val.(*fakeAgent).model)
	require.Contains(t, notified, ChangeUpdated)
}

func TestSaveConfigRestoresPriorInstancesOnRebuildFailure(t *testing.T) {
	c := newTestContainer()
	components := []*config.Component{
		{Type: config.TypeModel, Name: "gpt"},
		{Type: config.TypeAgent, Name: "main", Params: map[string]any{"model": "gpt"}},
	}
	require.NoError(t, c.BuildAll(context.Background(), components))

	originalAgent, _ := c.Get(config.Key{Type: config.TypeAgent, Name: "main"})
	originalModel, _ := c.Get(config.Key{Type: config.TypeModel, Name: "gpt"})

	c.RegisterBuilder(config.TypeAgent, func(_ context.Context, _ *config.Component, _ map[string]any) (any, error) {
		return nil, fmt.Errorf("boom")
	})

	var notified []ChangeType
	c.OnChange(func(_ config.Key, change ChangeType) { notified = append(notified, change) })

	err := c.SaveConfig(context.Background(), &config.Component{
		Type: config.TypeModel, Name: "gpt", Description: "updated",
	})
	require.Error(t, err)
	require.Contains(t, notified, ChangeFailed)
	require.NotContains(t, notified, ChangeUpdated)

	agentVal, ok := c.Get(config.Key{Type: config.TypeAgent, Name: "main"})
	require.True(t, ok)
	require.Same(t, originalAgent, agentVal)

	modelVal, ok := c.Get(config.Key{Type: config.TypeModel, Name: "gpt"})
	require.True(t, ok)
	require.Same(t, originalModel, modelVal)
}

func TestDeleteConfigDoesNotRebuild(t *testing.T) {
	c := newTestContainer()
	components := []*config.Component{
		{Type: config.TypeModel, Name: "gpt"},
		{Type: config.TypeAgent, Name: "main", Params: map[string]any{"model": "gpt"}},
	}
	require.NoError(t, c.BuildAll(context.Background(), components))

	require.NoError(t, c.DeleteConfig(context.Background(), config.Key{Type: config.TypeModel, Name: "gpt"}))

	_, ok := c.Get(config.Key{Type: config.TypeModel, Name: "gpt"})
	require.False(t, ok)
	_, ok = c.Get(config.Key{Type: config.TypeAgent, Name: "main"})
	require.False(t, ok)
}
