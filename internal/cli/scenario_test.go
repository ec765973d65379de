package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

const failingScenario = `
name: always_fails
description: "expects an item that is never there"
feed: comments
steps:
  - op: seed
assertions:
  - type: len
    count: 1
`

func TestScenarioCommand_HarnessScenariosPass(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewScenarioCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{harnessScenarios})

	require.NoError(t, cmd.Execute(), buf.String())
	assert.Contains(t, buf.String(), "✓ own_echo_promoted")
	assert.Contains(t, buf.String(), "0 failed")
	assert.Contains(t, buf.String(), "✓ All scenarios passed")
}

func TestScenarioCommand_Filter(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewScenarioCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{harnessScenarios, "--filter", "d*"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string          `json:"status"`
		Data   ScenarioSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total, "delete_unknown_row and duplicate_delivery")
	assert.Equal(t, 2, resp.Data.Passed)
}

func TestScenarioCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(scenarios, 0o755))
	src, err := os.ReadFile(filepath.Join(harnessScenarios, "delete_unknown_row.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "b.yaml"), src, 0o644))

	cmd := NewScenarioCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{scenarios, "--update"})
	require.NoError(t, cmd.Execute())
	golden := filepath.Join(dir, "golden", "delete_unknown_row.golden")
	require.FileExists(t, golden)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario": "tampered"}`), 0o644))
	buf := &bytes.Buffer{}
	cmd = NewScenarioCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{scenarios})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "trace does not match golden file")
}

func TestScenarioCommand_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fails.yaml"), []byte(failingScenario), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yml"), []byte("name: [\n"), 0o644))

	buf := &bytes.Buffer{}
	cmd := NewScenarioCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_SCENARIO_FAILED", resp.Error.Code)
	assert.Equal(t, "2 scenario(s) failed", resp.Error.Message)
}

func TestScenarioCommand_MissingDir(t *testing.T) {
	cmd := NewScenarioCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"/nonexistent/scenarios"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestScenarioCommand_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewScenarioCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{t.TempDir()})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "No scenarios found.")
}

func TestFindScenarioFiles_InvalidFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(failingScenario), 0o644))

	_, err := findScenarioFiles(dir, "[")
	assert.ErrorContains(t, err, "invalid filter pattern")
}
