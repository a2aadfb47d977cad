package manifest_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modnet-labs/registry-scheduler/manifest"
)

func writeTool(t *testing.T, dir, name, content string) {
	t.Helper()
	toolDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(toolDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(toolDir, "tool.json"), []byte(content), 0o644))
}

func TestLoadProcessTool(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "echo", `{
		"id": "echo",
		"name": "echo",
		"version": "1.0.0",
		"runtime": "process",
		"entry": {"command": "cat", "args": []},
		"schema": {"parameters": {"type":"object","required":["text"]}}
	}`)

	tools, err := manifest.Load(dir, nil)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].ID)
	assert.Equal(t, manifest.RuntimeProcess, tools[0].Runtime)
	require.NotNil(t, tools[0].Process)
	assert.Equal(t, "cat", tools[0].Process.Command)
	assert.NotNil(t, tools[0].Parameters)
}

func TestLoadWasmToolDefaultsExport(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "echo-wasm", `{
		"id": "echo-wasm",
		"name": "echo-wasm",
		"version": "1.0.0",
		"runtime": "wasm",
		"entry": {"wasm_path": "modules/echo.wasm"}
	}`)

	tools, err := manifest.Load(dir, nil)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].Wasm)
	assert.Equal(t, "call", tools[0].Wasm.Export)
}

func TestLoadPythonUVScript(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "pyscript", `{
		"id": "pyscript",
		"name": "pyscript",
		"version": "1.0.0",
		"runtime": "python-uv-script",
		"entry": {"uv_args": ["--quiet"], "script": "main.py"}
	}`)

	tools, err := manifest.Load(dir, nil)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].Process)
	assert.Equal(t, "uv", tools[0].Process.Command)
	assert.Equal(t, []string{"run", "--quiet", "main.py"}, tools[0].Process.Args)
}

func TestLoadSkipsMalformedAndUnknownRuntime(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "broken", `{not valid json`)
	writeTool(t, dir, "unknown-runtime", `{
		"id": "mystery",
		"name": "mystery",
		"version": "1.0.0",
		"runtime": "perl",
		"entry": {}
	}`)
	writeTool(t, dir, "good", `{
		"id": "good",
		"name": "good",
		"version": "1.0.0",
		"runtime": "binary",
		"entry": {"command": "/bin/true", "args": []}
	}`)

	tools, err := manifest.Load(dir, nil)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "good", tools[0].ID)
}

func TestLoadDowngradesInvalidSchemaToAbsent(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "badschema", `{
		"id": "badschema",
		"name": "badschema",
		"version": "1.0.0",
		"runtime": "process",
		"entry": {"command": "true", "args": []},
		"schema": {"parameters": {"type": "not-a-real-type", "required": 123}}
	}`)

	tools, err := manifest.Load(dir, nil)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Nil(t, tools[0].Parameters)
}

func TestLoadAppliesPolicyDefaults(t *testing.T) {
	dir := t.TempDir()
	writeTool(t, dir, "policytest", `{
		"id": "policytest",
		"name": "policytest",
		"version": "1.0.0",
		"runtime": "process",
		"entry": {"command": "true", "args": []}
	}`)

	tools, err := manifest.Load(dir, nil)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.EqualValues(t, 8000, tools[0].Policy.TimeoutMs)
}
