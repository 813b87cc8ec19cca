package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	harnessScenarios = "../harness/testdata/scenarios"
	harnessGolden    = "../harness/testdata/golden"
)

const passingScenario = `
name: single
description: one record passes through duplicate resolution
mode:
  name: duplicate
batches:
  - - id: a
      class: water
      membership: 0.5
      geometry: POLYGON((0 0,1 0,1 1,0 1,0 0))
assertions:
  - type: count
    count: 1
  - type: membership_zero
`

const failingScenario = `
name: wrong_count
description: expects two records but gets one
mode:
  name: duplicate
batches:
  - - id: a
      class: water
      geometry: POLYGON((0 0,1 0,1 1,0 1,0 0))
assertions:
  - type: count
    count: 2
`

func TestScenarioRun_HarnessScenariosMatchGolden(t *testing.T) {
	stdout, _, err := executeCommand(t, "scenario", "run", harnessScenarios, "--golden-dir", harnessGolden)
	require.NoError(t, err, stdout)
	assert.Contains(t, stdout, "✓ All scenarios passed")
	assert.Contains(t, stdout, "✓ clip_two_rois")
}

func TestScenarioRun_Filter(t *testing.T) {
	stdout, _, err := executeCommand(t, "--format", "json", "scenario", "run", harnessScenarios,
		"--golden-dir", harnessGolden, "--filter", "merge_*")
	require.NoError(t, err)

	var resp struct {
		Data ScenarioSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Equal(t, 1, resp.Data.Total)
	assert.Equal(t, "merge_resolved_fragments", resp.Data.Scenarios[0].Name)
}

func TestScenarioRun_Failure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.yaml", passingScenario)
	writeFile(t, dir, "bad.yaml", failingScenario)

	stdout, _, err := executeCommand(t, "--format", "json", "scenario", "run", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string          `json:"status"`
		Data   ScenarioSummary `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeFailed, resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
}

func TestScenarioRun_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "single.yaml", passingScenario)

	stdout, _, err := executeCommand(t, "scenario", "run", file, "--update")
	require.NoError(t, err)
	assert.Contains(t, stdout, "golden updated")

	goldenPath := filepath.Join(dir, "golden", "single.golden")
	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario": "single"`)

	_, _, err = executeCommand(t, "scenario", "run", file)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}\n"), 0644))
	stdout, _, err = executeCommand(t, "scenario", "run", file)
	require.Error(t, err)
	assert.Contains(t, stdout, "golden file mismatch")
}

func TestScenarioRun_LoadError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: broken\n")

	stdout, _, err := executeCommand(t, "scenario", "run", dir)
	require.Error(t, err)
	assert.Contains(t, stdout, "failed to load scenario")
}

func TestScenarioRun_MissingPath(t *testing.T) {
	_, _, err := executeCommand(t, "scenario", "run", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScenarioRun_EmptyDir(t *testing.T) {
	stdout, _, err := executeCommand(t, "scenario", "run", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stdout, "No scenarios found.")
}
