package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUsageAccumulate(t *testing.T) {
	var total Usage
	total.Accumulate(Usage{InputTokens: 10, OutputTokens: 5})
	total.Accumulate(Usage{InputTokens: 3, OutputTokens: 2})

	require.Equal(t, 13, total.InputTokens)
	require.Equal(t, 7, total.OutputTokens)
}

func TestGenerateConfigCloneIsIndependent(t *testing.T) {
	temp := 0.5
	cfg := &GenerateConfig{Temperature: &temp}
	clone := cfg.Clone()

	*clone.Temperature = 0.9
	require.Equal(t, 0.5, *cfg.Temperature)
	require.Equal(t, 0.9, *clone.Temperature)
}

func TestGenerateConfigCloneNil(t *testing.T) {
	var cfg *GenerateConfig
	require.Nil(t, cfg.Clone())
}
