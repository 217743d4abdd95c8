package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadSkipsDisabled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "type: model\nname: m1\nenabled: false\n")
	writeFile(t, dir, "b.yaml", "type: model\nname: m2\n")

	result, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, result.Components, 1)
	require.Equal(t, "m2", result.Components[0].Name)
}

func TestLoadReportsMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", "description: no type or name\n")

	result, err := Load(dir)
	require.NoError(t, err)
	require.Empty(t, result.Components)
	require.Len(t, result.Errors, 1)
}

func TestLoadDuplicateKeepsLastSeen(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "type: model\nname: m1\ndescription: first\n")
	writeFile(t, dir, "z.yaml", "type: model\nname: m1\ndescription: second\n")

	result, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, result.Components, 1)
	require.Equal(t, "second", result.Components[0].Description)
}

func TestLoadRendersEnvTemplates(t *testing.T) {
	t.Setenv("AGENTFLOW_MODEL_NAME", "gpt-5")
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "type: model\nname: m1\nparams_value: \"{{ env.AGENTFLOW_MODEL_NAME }}\"\n")

	result, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, result.Components, 1)
	require.Equal(t, "gpt-5", result.Components[0].Params["params_value"])
}

func TestLoadRejectsUnknownType(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "type: spaceship\nname: m1\n")

	result, err := Load(dir)
	require.NoError(t, err)
	require.Empty(t, result.Components)
	require.Len(t, result.Errors, 1)
}
